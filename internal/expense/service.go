package expense

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tbecker/expenseshare/internal/scanning"
)

// IDGenerator generates opaque identifiers for records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates UUID v4 identifiers
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service implements the expense sharing and receipt lifecycle operations
type Service struct {
	db          DB
	store       BlobStore
	scanner     scanning.Scanner
	signer      *URLSigner
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, store BlobStore, scanner scanning.Scanner, signer *URLSigner) *Service {
	return &Service{
		db:          db,
		store:       store,
		scanner:     scanner,
		signer:      signer,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, store BlobStore, scanner scanning.Scanner, signer *URLSigner, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		store:       store,
		scanner:     scanner,
		signer:      signer,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// IssueShareLink returns the caller's share link, creating it on first use.
// Calling it again returns the same identifier.
func (s *Service) IssueShareLink(userID string) (string, error) {
	if userID == "" {
		return "", unauthenticated("authentication required to share an expense report")
	}

	link, err := s.db.EnsureShareLink(userID, func() *ShareLink {
		return &ShareLink{
			ID:        s.idGenerator.Generate(),
			UserID:    userID,
			CreatedAt: s.timeSource.Now(),
		}
	})
	if err != nil {
		return "", internal("issuing share link", err)
	}
	return link.ID, nil
}

// resolveShareLink maps a share identifier to the owning user
func (s *Service) resolveShareLink(shareID string) (string, error) {
	if shareID == "" {
		return "", invalidArgument("share link identifier is required")
	}

	link, err := s.db.GetShareLink(shareID)
	if errors.Is(err, ErrNotFound) {
		return "", notFound("invalid or expired link")
	}
	if err != nil {
		return "", internal("resolving share link", err)
	}
	if link.UserID == "" {
		return "", internal("corrupted link data", nil)
	}
	return link.UserID, nil
}

// SharedExpenses returns the pending expenses visible through a share link,
// newest first. Reimbursed and denied expenses are never exposed.
func (s *Service) SharedExpenses(shareID string) ([]*Expense, error) {
	userID, err := s.resolveShareLink(shareID)
	if err != nil {
		return nil, err
	}

	all, err := s.db.ListExpenses(userID)
	if err != nil {
		return nil, internal("listing shared expenses", err)
	}

	expenses := make([]*Expense, 0, len(all))
	for _, exp := range all {
		if exp.Status == StatusPending {
			expenses = append(expenses, exp)
		}
	}
	sortByCreatedAtDesc(expenses)
	return expenses, nil
}

func sortByCreatedAtDesc(expenses []*Expense) {
	sort.Slice(expenses, func(i, j int) bool {
		return expenses[i].CreatedAt.After(expenses[j].CreatedAt)
	})
}

// StatusUpdateResult reports the outcome of a shared status update
type StatusUpdateResult struct {
	UpdatedCount int `json:"updated_count"`
}

// UpdateSharedStatus applies a reimburse or deny transition to the given
// expenses through a share link. Expenses that do not exist are skipped.
// Receipt blobs of transitioned expenses are deleted best-effort after the
// status change commits.
func (s *Service) UpdateSharedStatus(shareID string, expenseIDs []string, action, reason string) (*StatusUpdateResult, error) {
	if shareID == "" {
		return nil, invalidArgument("share link identifier is required")
	}
	if len(expenseIDs) == 0 {
		return nil, invalidArgument("at least one expense identifier is required")
	}
	if action != ActionReimburse && action != ActionDeny {
		return nil, invalidArgument(fmt.Sprintf("invalid action %q, must be %q or %q", action, ActionReimburse, ActionDeny))
	}

	userID, err := s.resolveShareLink(shareID)
	if err != nil {
		return nil, err
	}

	expenses, err := s.db.GetExpenses(userID, expenseIDs)
	if err != nil {
		return nil, internal("fetching expenses", err)
	}
	if len(expenses) != len(expenseIDs) {
		slog.Warn("Some requested expenses do not exist",
			"requested", len(expenseIDs),
			"found", len(expenses),
		)
	}
	if len(expenses) == 0 {
		return &StatusUpdateResult{UpdatedCount: 0}, nil
	}

	now := s.timeSource.Now()
	var orphanedBlobs []string
	for _, exp := range expenses {
		if exp.ReceiptURI != "" {
			orphanedBlobs = append(orphanedBlobs, exp.ReceiptURI)
		}
		switch action {
		case ActionReimburse:
			exp.Status = StatusReimbursed
			exp.DenialReason = ""
		case ActionDeny:
			exp.Status = StatusDenied
			exp.DenialReason = reason
		}
		exp.ReceiptURI = ""
		exp.UpdatedAt = now
		processedAt := now
		exp.ProcessedAt = &processedAt
	}

	if err := s.db.UpdateExpenses(expenses); err != nil {
		return nil, internal("updating expense status", err)
	}

	// The status change is authoritative once committed; blob cleanup
	// failures are logged, never propagated.
	s.deleteBlobs(orphanedBlobs)

	return &StatusUpdateResult{UpdatedCount: len(expenses)}, nil
}

// deleteBlobs removes the given blobs concurrently, waiting for every
// deletion to settle and logging each failure.
func (s *Service) deleteBlobs(uris []string) {
	var wg sync.WaitGroup
	for _, uri := range uris {
		wg.Add(1)
		go func(uri string) {
			defer wg.Done()
			if err := s.store.Delete(uri); err != nil {
				slog.Error("Failed to delete receipt blob", "uri", uri, "error", err)
			}
		}(uri)
	}
	wg.Wait()
}

// ReceiptDownloadURL returns a time-limited signed URL for an expense's
// receipt, accessed through a share link.
func (s *Service) ReceiptDownloadURL(shareID, expenseID string) (string, error) {
	if expenseID == "" {
		return "", invalidArgument("expense identifier is required")
	}

	userID, err := s.resolveShareLink(shareID)
	if err != nil {
		return "", err
	}

	exp, err := s.db.GetExpense(userID, expenseID)
	if errors.Is(err, ErrNotFound) {
		return "", notFound("expense does not exist")
	}
	if err != nil {
		return "", internal("fetching expense", err)
	}
	if exp.ReceiptURI == "" {
		return "", notFound("expense has no receipt")
	}

	path, err := objectPath(exp.ReceiptURI)
	if err != nil {
		return "", err
	}
	return s.signer.Sign(path, s.timeSource.Now().Add(DownloadURLTTL)), nil
}

// objectPath strips the gs://<bucket>/ prefix from a blob URI
func objectPath(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", invalidArgument(fmt.Sprintf("invalid blob URI: %s", uri))
	}
	_, path, ok := strings.Cut(rest, "/")
	if !ok || path == "" {
		return "", invalidArgument(fmt.Sprintf("invalid blob URI: %s", uri))
	}
	return path, nil
}

// sanitizeFilename cleans up a filename by removing special characters and
// truncating length. Phone cameras generate long, messy names.
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	reg := regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	base = reg.ReplaceAllString(base, "")
	reg = regexp.MustCompile(`\s+`)
	base = reg.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	if base == "" {
		base = "receipt"
	}

	return base + ext
}

// UploadResult is the outcome of a receipt upload: the tracking record plus
// the extracted draft fields for the expense form.
type UploadResult struct {
	Receipt *PendingReceipt       `json:"receipt"`
	Draft   *scanning.ReceiptData `json:"draft"`
}

// UploadReceipt stores a receipt blob, tracks it as pending, and extracts
// draft expense fields from it. If replacesID names an earlier pending
// receipt, that receipt and its blob are removed first. Extraction failure
// rolls the upload back entirely.
func (s *Service) UploadReceipt(userID, filename string, data []byte, contentType, replacesID string) (*UploadResult, error) {
	if userID == "" {
		return nil, unauthenticated("authentication required to upload a receipt")
	}
	if len(data) == 0 {
		return nil, invalidArgument("receipt data is required")
	}

	if replacesID != "" {
		if err := s.AbandonReceipt(userID, replacesID); err != nil && KindOf(err) != KindNotFound {
			return nil, err
		}
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	uri, err := s.store.Save(fmt.Sprintf("%s/%s_%s", userID, id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, internal("saving receipt blob", err)
	}

	pending := &PendingReceipt{
		ID:         id,
		UserID:     userID,
		BlobURI:    uri,
		UploadedAt: now,
	}
	if err := s.db.SavePendingReceipt(pending); err != nil {
		if delErr := s.store.Delete(uri); delErr != nil {
			slog.Error("Failed to clean up blob after tracking failure", "uri", uri, "error", delErr)
		}
		return nil, internal("tracking pending receipt", err)
	}

	draft, err := s.scanner.ScanReceipt(data, contentType)
	if err != nil {
		slog.Error("Failed to extract receipt data",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		// Extraction failed: the upload is rolled back so the session
		// returns to its empty state
		if delErr := s.store.Delete(uri); delErr != nil {
			slog.Error("Failed to clean up blob after extraction failure", "uri", uri, "error", delErr)
		}
		if delErr := s.db.DeletePendingReceipt(userID, id); delErr != nil {
			slog.Error("Failed to clean up pending receipt after extraction failure", "id", id, "error", delErr)
		}
		return nil, internal("extracting receipt data", err)
	}

	return &UploadResult{Receipt: pending, Draft: draft}, nil
}

// FinalizeExpense converts a pending receipt into an expense record. The
// blob reference transfers to the expense and the tracking record is removed.
func (s *Service) FinalizeExpense(userID, pendingID, description string, amount int, items []LineItem) (*Expense, error) {
	if userID == "" {
		return nil, unauthenticated("authentication required to create an expense")
	}
	if pendingID == "" {
		return nil, invalidArgument("pending receipt identifier is required")
	}
	if description == "" {
		return nil, invalidArgument("description is required")
	}
	if amount <= 0 {
		return nil, invalidArgument("amount must be positive")
	}

	pending, err := s.db.GetPendingReceipt(userID, pendingID)
	if errors.Is(err, ErrNotFound) {
		return nil, notFound("pending receipt does not exist")
	}
	if err != nil {
		return nil, internal("fetching pending receipt", err)
	}

	now := s.timeSource.Now()
	exp := &Expense{
		ID:          s.idGenerator.Generate(),
		UserID:      userID,
		Description: description,
		Amount:      amount,
		Status:      StatusPending,
		ReceiptURI:  pending.BlobURI,
		Items:       items,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.SaveExpense(exp); err != nil {
		return nil, internal("saving expense", err)
	}

	// The blob now belongs to the expense; only the tracking record goes
	if err := s.db.DeletePendingReceipt(userID, pendingID); err != nil {
		slog.Warn("Failed to remove pending receipt after finalize", "id", pendingID, "error", err)
	}

	return exp, nil
}

// AbandonReceipt removes a pending receipt and its blob
func (s *Service) AbandonReceipt(userID, pendingID string) error {
	if userID == "" {
		return unauthenticated("authentication required")
	}
	if pendingID == "" {
		return invalidArgument("pending receipt identifier is required")
	}

	pending, err := s.db.GetPendingReceipt(userID, pendingID)
	if errors.Is(err, ErrNotFound) {
		return notFound("pending receipt does not exist")
	}
	if err != nil {
		return internal("fetching pending receipt", err)
	}

	if err := s.store.Delete(pending.BlobURI); err != nil {
		slog.Error("Failed to delete abandoned receipt blob", "uri", pending.BlobURI, "error", err)
	}
	if err := s.db.DeletePendingReceipt(userID, pendingID); err != nil {
		return internal("removing pending receipt", err)
	}
	return nil
}

// ListExpenses returns all of the owner's expenses, newest first
func (s *Service) ListExpenses(userID string) ([]*Expense, error) {
	if userID == "" {
		return nil, unauthenticated("authentication required")
	}
	expenses, err := s.db.ListExpenses(userID)
	if err != nil {
		return nil, internal("listing expenses", err)
	}
	sortByCreatedAtDesc(expenses)
	return expenses, nil
}

// GetExpense retrieves one of the owner's expenses
func (s *Service) GetExpense(userID, id string) (*Expense, error) {
	if userID == "" {
		return nil, unauthenticated("authentication required")
	}
	if id == "" {
		return nil, invalidArgument("expense identifier is required")
	}
	exp, err := s.db.GetExpense(userID, id)
	if errors.Is(err, ErrNotFound) {
		return nil, notFound("expense does not exist")
	}
	if err != nil {
		return nil, internal("fetching expense", err)
	}
	return exp, nil
}

// DeleteExpense removes one of the owner's expenses and its receipt blob.
// Unlike the share workflow, a blob deletion failure here is a hard error.
func (s *Service) DeleteExpense(userID, id string) error {
	exp, err := s.GetExpense(userID, id)
	if err != nil {
		return err
	}

	if exp.ReceiptURI != "" {
		if err := s.store.Delete(exp.ReceiptURI); err != nil {
			return err
		}
	}
	if err := s.db.DeleteExpense(userID, id); err != nil {
		return internal("deleting expense", err)
	}
	return nil
}
