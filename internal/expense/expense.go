package expense

import "time"

// Expense statuses. An expense starts pending and is moved to a terminal
// status through the share workflow.
const (
	StatusPending    = "pending"
	StatusReimbursed = "reimbursed"
	StatusDenied     = "denied"
)

// Actions accepted by the shared status update.
const (
	ActionReimburse = "reimburse"
	ActionDeny      = "deny"
)

// LineItem is a single line extracted from a receipt.
type LineItem struct {
	Description string `json:"description"`
	Price       int    `json:"price"` // Price in cents
}

// Expense represents an expense record owned by a user
type Expense struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Description  string     `json:"description"`
	Amount       int        `json:"amount"` // Amount in cents
	Status       string     `json:"status"`
	ReceiptURI   string     `json:"receipt_uri,omitempty"`
	DenialReason string     `json:"denial_reason,omitempty"`
	Items        []LineItem `json:"items,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

// ShareLink maps an opaque share identifier to the owning user. At most one
// exists per user; it is created lazily on the first share request and reused
// afterwards. There is no revocation path.
type ShareLink struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PendingReceipt tracks a receipt blob uploaded during expense composition,
// before the expense record exists. It is removed when the expense is
// finalized or abandoned, or reclaimed by the orphan sweep.
type PendingReceipt struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	BlobURI    string    `json:"blob_uri"`
	UploadedAt time.Time `json:"uploaded_at"`
}
