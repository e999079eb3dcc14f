package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// receiptScanPrompt is the shared prompt used by all model providers
const receiptScanPrompt = `You are analyzing a receipt or invoice document. Carefully read all text in the image and extract the following information:

1. **Total Amount**: Find the final total, grand total, or amount due. This is usually at the bottom of the receipt, labeled "TOTAL", "Amount Due", "Grand Total", or similar. Extract only the numeric value (e.g., 42.75 for $42.75).

2. **Transaction Summary**: A short description of the purchase, starting with the merchant or business name from the top of the receipt. Examples: "Walmart - groceries", "Shell - fuel".

3. **Line Items**: The individual purchased items with their prices, if legible.

Return ONLY valid JSON in this exact format:
{
  "total_amount": 0.00,
  "transaction_summary": "Merchant - brief description",
  "items": [{"description": "item name", "price": 0.00}]
}

Important:
- total_amount and every price must be numbers (not strings), representing dollars and cents
- If line items are not legible, return an empty items array
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// pdfFirstPagePNG renders the first page of a PDF as PNG. Receipts are
// almost always single page.
func pdfFirstPagePNG(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEIC detects HEIC/HEIF content from either the data's ftyp box or the
// declared MIME type. Go's standard image package cannot decode it.
func isHEIC(data []byte, mimeType string) bool {
	if strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif") {
		return true
	}
	if len(data) >= 12 && string(data[4:8]) == "ftyp" {
		switch string(data[8:12]) {
		case "heic", "heif", "mif1", "msf1":
			return true
		}
	}
	return false
}

// prepareImageData converts any supported upload (PDF, HEIC, JPEG, GIF, PNG)
// to PNG so providers only ever see one image format.
func prepareImageData(data []byte, contentType string) ([]byte, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))

	if mimeType == "application/pdf" {
		pngData, err := pdfFirstPagePNG(data)
		if err != nil {
			return nil, fmt.Errorf("converting PDF to image: %w", err)
		}
		return pngData, nil
	}

	if isHEIC(data, mimeType) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return encodePNG(img)
	}

	if mimeType == "image/png" {
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image (supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF): %w", err)
	}
	return encodePNG(img)
}
