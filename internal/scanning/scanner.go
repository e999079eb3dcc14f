package scanning

// Item is a single line item extracted from a receipt
type Item struct {
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// ReceiptData contains structured information extracted from a receipt
type ReceiptData struct {
	TotalAmount        float64 `json:"total_amount"`
	TransactionSummary string  `json:"transaction_summary"`
	Items              []Item  `json:"items"`
}

// Scanner defines the interface for receipt extraction operations
type Scanner interface {
	// ScanReceipt analyzes a receipt image/PDF and extracts structured data
	ScanReceipt(imageData []byte, contentType string) (*ReceiptData, error)
	// Close closes the scanner and releases resources
	Close() error
}
