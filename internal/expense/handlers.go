package expense

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON writes a JSON response body
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError maps a service error to an HTTP response
func writeError(w http.ResponseWriter, err error) {
	setCORSHeaders(w)
	status := http.StatusInternalServerError
	switch KindOf(err) {
	case KindInvalidArgument:
		status = http.StatusBadRequest
	case KindUnauthenticated:
		status = http.StatusUnauthorized
	case KindNotFound:
		status = http.StatusNotFound
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("Internal error", "error", err)
		message = "Internal server error"
	}
	writeJSON(w, status, map[string]string{"error": message})
}

// handleIssueShareLink issues (or returns the existing) share link for the caller
func (s *Server) handleIssueShareLink(w http.ResponseWriter, r *http.Request) {
	shareID, err := s.service.IssueShareLink(s.callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"share_id": shareID})
}

// handleSharedExpenses lists the pending expenses visible through a share link
func (s *Server) handleSharedExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.service.SharedExpenses(r.PathValue("shareID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": expenses})
}

// handleUpdateSharedStatus applies a reimburse/deny transition through a share link
func (s *Server) handleUpdateSharedStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExpenseIDs []string `json:"expense_ids"`
		Action     string   `json:"action"`
		Reason     string   `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, invalidArgument("invalid request body"))
		return
	}

	result, err := s.service.UpdateSharedStatus(r.PathValue("shareID"), req.ExpenseIDs, req.Action, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"updated_count": result.UpdatedCount,
	})
}

// handleReceiptDownloadURL returns a time-limited signed URL for a receipt
func (s *Server) handleReceiptDownloadURL(w http.ResponseWriter, r *http.Request) {
	url, err := s.service.ReceiptDownloadURL(r.PathValue("shareID"), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"download_url": url})
}

// handleSignedDownload serves receipt bytes for a valid signed URL
func (s *Server) handleSignedDownload(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	query := r.URL.Query()
	if !s.signer.Verify(path, query.Get("expires"), query.Get("sig"), s.service.timeSource.Now()) {
		setCORSHeaders(w)
		http.Error(w, "Invalid or expired signature", http.StatusForbidden)
		return
	}

	data, err := s.store.Get(s.store.URI(path))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentTypeForPath(path, data))
	w.Write(data)
}

// contentTypeForPath guesses a content type from the file extension, falling
// back to content sniffing
func contentTypeForPath(path string, data []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic", ".heif":
		return "image/heic"
	}
	return http.DetectContentType(data)
}

// handleUploadReceipt handles a receipt upload during expense composition
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	// 50MB cap to handle high-resolution phone photos
	maxFormSize := int64(50 << 20)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		message := "Error parsing form"
		if err.Error() == "http: request body too large" {
			message = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		writeError(w, invalidArgument(message))
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, invalidArgument("No file was selected. Please choose a file to upload."))
		return
	}
	defer f.Close()

	if header.Size > maxFormSize {
		writeError(w, invalidArgument("File is too large. Maximum size is 50MB. Please compress or resize your image."))
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, internal("reading uploaded file", err))
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" {
		contentType = contentTypeForFilename(header.Filename)
	}

	result, err := s.service.UploadReceipt(s.callerID(r), header.Filename, data, contentType, r.FormValue("replaces_id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// contentTypeForFilename maps common receipt file extensions to MIME types
func contentTypeForFilename(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleAbandonReceipt removes a pending receipt and its blob
func (s *Server) handleAbandonReceipt(w http.ResponseWriter, r *http.Request) {
	if err := s.service.AbandonReceipt(s.callerID(r), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleFinalizeExpense creates an expense from a pending receipt
func (s *Server) handleFinalizeExpense(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PendingReceiptID string     `json:"pending_receipt_id"`
		Description      string     `json:"description"`
		Amount           int        `json:"amount"`
		Items            []LineItem `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, invalidArgument("invalid request body"))
		return
	}

	exp, err := s.service.FinalizeExpense(s.callerID(r), req.PendingReceiptID, req.Description, req.Amount, req.Items)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, exp)
}

// handleListExpenses returns all of the owner's expenses
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.service.ListExpenses(s.callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if expenses == nil {
		expenses = []*Expense{}
	}
	writeJSON(w, http.StatusOK, expenses)
}

// handleGetExpense returns a single expense owned by the caller
func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	exp, err := s.service.GetExpense(s.callerID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// handleDeleteExpense removes an expense and its receipt
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteExpense(s.callerID(r), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
