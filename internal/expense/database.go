package expense

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	shareLinkBucketName       = "share_links"
	shareLinkByUserBucketName = "share_links_by_user"
	expenseBucketName         = "expenses"
	pendingReceiptBucketName  = "pending_receipts"
)

// DB defines the interface for database operations
type DB interface {
	// EnsureShareLink returns the user's share link, creating it with create
	// if none exists yet. Lookup and creation happen atomically so two
	// concurrent first calls cannot produce two links.
	EnsureShareLink(userID string, create func() *ShareLink) (*ShareLink, error)

	// GetShareLink retrieves a share link by its opaque ID
	GetShareLink(id string) (*ShareLink, error)

	// SaveExpense saves an expense record
	SaveExpense(exp *Expense) error

	// GetExpense retrieves a user's expense by ID
	GetExpense(userID, id string) (*Expense, error)

	// ListExpenses returns all expenses for a user
	ListExpenses(userID string) ([]*Expense, error)

	// GetExpenses returns the subset of the requested expenses that exist.
	// Missing IDs are skipped, not errors.
	GetExpenses(userID string, ids []string) ([]*Expense, error)

	// UpdateExpenses writes all given expenses in a single transaction
	UpdateExpenses(expenses []*Expense) error

	// DeleteExpense removes a user's expense
	DeleteExpense(userID, id string) error

	// SavePendingReceipt saves a pending receipt record
	SavePendingReceipt(rec *PendingReceipt) error

	// GetPendingReceipt retrieves a user's pending receipt by ID
	GetPendingReceipt(userID, id string) (*PendingReceipt, error)

	// ListPendingReceiptsBefore returns all pending receipts uploaded
	// before the cutoff, across all users
	ListPendingReceiptsBefore(cutoff time.Time) ([]*PendingReceipt, error)

	// DeletePendingReceipt removes a pending receipt record
	DeletePendingReceipt(userID, id string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	// Create buckets if they don't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{shareLinkBucketName, shareLinkByUserBucketName, expenseBucketName, pendingReceiptBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// userKey builds the per-user key for expense and pending receipt records
func userKey(userID, id string) []byte {
	return []byte(userID + "/" + id)
}

// EnsureShareLink returns the existing share link for userID or creates one
func (b *BoltDB) EnsureShareLink(userID string, create func() *ShareLink) (*ShareLink, error) {
	var link *ShareLink
	err := b.db.Update(func(tx *bbolt.Tx) error {
		index := tx.Bucket([]byte(shareLinkByUserBucketName))
		links := tx.Bucket([]byte(shareLinkBucketName))

		if id := index.Get([]byte(userID)); id != nil {
			data := links.Get(id)
			if data == nil {
				return fmt.Errorf("share link %s indexed but %w", id, ErrNotFound)
			}
			return json.Unmarshal(data, &link)
		}

		link = create()
		data, err := json.Marshal(link)
		if err != nil {
			return fmt.Errorf("marshaling share link: %w", err)
		}
		if err := links.Put([]byte(link.ID), data); err != nil {
			return err
		}
		return index.Put([]byte(userID), []byte(link.ID))
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// GetShareLink retrieves a share link by ID
func (b *BoltDB) GetShareLink(id string) (*ShareLink, error) {
	var link *ShareLink
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(shareLinkBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("share link %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &link)
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// SaveExpense saves an expense record
func (b *BoltDB) SaveExpense(exp *Expense) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expenseBucketName))
		data, err := json.Marshal(exp)
		if err != nil {
			return fmt.Errorf("marshaling expense: %w", err)
		}
		return bucket.Put(userKey(exp.UserID, exp.ID), data)
	})
}

// GetExpense retrieves a user's expense by ID
func (b *BoltDB) GetExpense(userID, id string) (*Expense, error) {
	var exp *Expense
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expenseBucketName))
		data := bucket.Get(userKey(userID, id))
		if data == nil {
			return fmt.Errorf("expense %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &exp)
	})
	if err != nil {
		return nil, err
	}
	return exp, nil
}

// ListExpenses returns all expenses for a user
func (b *BoltDB) ListExpenses(userID string) ([]*Expense, error) {
	expenses := make([]*Expense, 0)
	prefix := []byte(userID + "/")
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(expenseBucketName)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var exp Expense
			if err := json.Unmarshal(v, &exp); err != nil {
				return fmt.Errorf("unmarshaling expense: %w", err)
			}
			expenses = append(expenses, &exp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expenses, nil
}

// GetExpenses returns the subset of the requested expenses that exist
func (b *BoltDB) GetExpenses(userID string, ids []string) ([]*Expense, error) {
	expenses := make([]*Expense, 0, len(ids))
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expenseBucketName))
		for _, id := range ids {
			data := bucket.Get(userKey(userID, id))
			if data == nil {
				continue
			}
			var exp Expense
			if err := json.Unmarshal(data, &exp); err != nil {
				return fmt.Errorf("unmarshaling expense: %w", err)
			}
			expenses = append(expenses, &exp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expenses, nil
}

// UpdateExpenses writes all given expenses in a single transaction. Either
// every record is written or none is.
func (b *BoltDB) UpdateExpenses(expenses []*Expense) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expenseBucketName))
		for _, exp := range expenses {
			data, err := json.Marshal(exp)
			if err != nil {
				return fmt.Errorf("marshaling expense: %w", err)
			}
			if err := bucket.Put(userKey(exp.UserID, exp.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteExpense removes a user's expense
func (b *BoltDB) DeleteExpense(userID, id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(expenseBucketName)).Delete(userKey(userID, id))
	})
}

// SavePendingReceipt saves a pending receipt record
func (b *BoltDB) SavePendingReceipt(rec *PendingReceipt) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(pendingReceiptBucketName))
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshaling pending receipt: %w", err)
		}
		return bucket.Put(userKey(rec.UserID, rec.ID), data)
	})
}

// GetPendingReceipt retrieves a user's pending receipt by ID
func (b *BoltDB) GetPendingReceipt(userID, id string) (*PendingReceipt, error) {
	var rec *PendingReceipt
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(pendingReceiptBucketName))
		data := bucket.Get(userKey(userID, id))
		if data == nil {
			return fmt.Errorf("pending receipt %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListPendingReceiptsBefore returns all pending receipts uploaded before cutoff
func (b *BoltDB) ListPendingReceiptsBefore(cutoff time.Time) ([]*PendingReceipt, error) {
	records := make([]*PendingReceipt, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(pendingReceiptBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var rec PendingReceipt
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshaling pending receipt: %w", err)
			}
			if rec.UploadedAt.Before(cutoff) {
				records = append(records, &rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// DeletePendingReceipt removes a pending receipt record
func (b *BoltDB) DeletePendingReceipt(userID, id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(pendingReceiptBucketName)).Delete(userKey(userID, id))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
