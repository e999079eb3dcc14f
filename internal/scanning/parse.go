package scanning

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrSchemaMismatch reports a model response that did not match the expected
// extraction schema. Callers surface it with a distinct user-facing message.
var ErrSchemaMismatch = errors.New("extraction response did not match the expected schema")

// parseReceiptJSON parses the JSON response returned by a model
func parseReceiptJSON(text string) (*ReceiptData, error) {
	text = strings.TrimSpace(text)

	// Remove markdown code blocks if present
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	endIdx := strings.LastIndex(text, "}")
	if startIdx == -1 || endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("no JSON object found in response: %w", ErrSchemaMismatch)
	}
	text = text[startIdx : endIdx+1]

	var data ReceiptData
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %v: %w", err, ErrSchemaMismatch)
	}

	if data.TotalAmount < 0 {
		return nil, fmt.Errorf("negative total_amount %v: %w", data.TotalAmount, ErrSchemaMismatch)
	}

	data.TransactionSummary = strings.TrimSpace(data.TransactionSummary)
	if data.TransactionSummary == "" {
		data.TransactionSummary = "Unknown expense"
	}

	// Drop malformed line items rather than failing the whole extraction
	items := data.Items[:0]
	for _, item := range data.Items {
		item.Description = strings.TrimSpace(item.Description)
		if item.Description == "" && item.Price == 0 {
			continue
		}
		items = append(items, item)
	}
	data.Items = items

	return &data, nil
}
