package expense

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Default sweep schedule: run daily, reclaim receipts older than a day.
const (
	DefaultSweepInterval = 24 * time.Hour
	DefaultSweepMaxAge   = 24 * time.Hour
)

// Sweeper reclaims receipts that were uploaded but never attached to an
// expense. It is the backstop for abandoned compositions whose client-side
// cleanup never ran.
type Sweeper struct {
	db         DB
	store      BlobStore
	interval   time.Duration
	maxAge     time.Duration
	timeSource TimeSource
}

// NewSweeper creates a new Sweeper
func NewSweeper(db DB, store BlobStore, interval, maxAge time.Duration) *Sweeper {
	return &Sweeper{
		db:         db,
		store:      store,
		interval:   interval,
		maxAge:     maxAge,
		timeSource: &defaultTimeSource{},
	}
}

// NewSweeperWithTimeSource creates a new Sweeper with a custom time source for testing
func NewSweeperWithTimeSource(db DB, store BlobStore, interval, maxAge time.Duration, timeSrc TimeSource) *Sweeper {
	s := NewSweeper(db, store, interval, maxAge)
	s.timeSource = timeSrc
	return s
}

// Run sweeps on a fixed interval until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

// RunOnce sweeps all pending receipts older than the configured age. Blob
// and record deletions are best-effort and run concurrently; the run waits
// for every deletion to settle and never reports an error.
func (s *Sweeper) RunOnce() {
	cutoff := s.timeSource.Now().Add(-s.maxAge)
	orphans, err := s.db.ListPendingReceiptsBefore(cutoff)
	if err != nil {
		slog.Error("Orphan sweep failed to list pending receipts", "error", err)
		return
	}
	if len(orphans) == 0 {
		slog.Info("Orphan sweep found nothing to clean up")
		return
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	failures := 0
	for _, rec := range orphans {
		wg.Add(1)
		go func(rec *PendingReceipt) {
			defer wg.Done()
			failed := false
			if rec.BlobURI != "" {
				if err := s.store.Delete(rec.BlobURI); err != nil {
					slog.Error("Orphan sweep failed to delete blob", "uri", rec.BlobURI, "error", err)
					failed = true
				}
			}
			// The tracking record goes regardless of the blob outcome
			if err := s.db.DeletePendingReceipt(rec.UserID, rec.ID); err != nil {
				slog.Error("Orphan sweep failed to delete pending receipt", "id", rec.ID, "error", err)
				failed = true
			}
			if failed {
				mu.Lock()
				failures++
				mu.Unlock()
			}
		}(rec)
	}
	wg.Wait()

	slog.Info("Orphan sweep completed", "swept", len(orphans), "failures", failures)
}
