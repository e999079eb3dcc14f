package expense

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Sweeper", func() {
	var (
		db      *mockDB
		store   *mockBlobStore
		sweeper *Sweeper
	)

	BeforeEach(func() {
		db = newMockDB()
		store = newMockBlobStore()
		sweeper = NewSweeperWithTimeSource(db, store, DefaultSweepInterval, DefaultSweepMaxAge, &fixedTimeSource{now: testNow})
	})

	Describe("RunOnce", func() {
		When("a pending receipt is older than the threshold", func() {
			BeforeEach(func() {
				db.pending["alice/old"] = &PendingReceipt{
					ID: "old", UserID: "alice",
					BlobURI:    "gs://test-bucket/alice/old.png",
					UploadedAt: testNow.Add(-25 * time.Hour),
				}
				store.blobs["gs://test-bucket/alice/old.png"] = []byte("x")
			})

			It("should delete both the blob and the tracking record", func() {
				sweeper.RunOnce()
				Expect(db.pending).To(BeEmpty())
				Expect(store.blobs).To(BeEmpty())
			})
		})

		When("a pending receipt is newer than the threshold", func() {
			BeforeEach(func() {
				db.pending["alice/fresh"] = &PendingReceipt{
					ID: "fresh", UserID: "alice",
					BlobURI:    "gs://test-bucket/alice/fresh.png",
					UploadedAt: testNow.Add(-time.Hour),
				}
				store.blobs["gs://test-bucket/alice/fresh.png"] = []byte("x")
			})

			It("should leave it alone", func() {
				sweeper.RunOnce()
				Expect(db.pending).To(HaveKey("alice/fresh"))
				Expect(store.blobs).To(HaveKey("gs://test-bucket/alice/fresh.png"))
			})
		})

		When("a record has no blob reference", func() {
			BeforeEach(func() {
				db.pending["alice/bare"] = &PendingReceipt{
					ID: "bare", UserID: "alice",
					UploadedAt: testNow.Add(-25 * time.Hour),
				}
			})

			It("should still delete the record", func() {
				sweeper.RunOnce()
				Expect(db.pending).To(BeEmpty())
			})
		})

		When("the blob deletion fails", func() {
			BeforeEach(func() {
				db.pending["alice/old"] = &PendingReceipt{
					ID: "old", UserID: "alice",
					BlobURI:    "gs://test-bucket/alice/old.png",
					UploadedAt: testNow.Add(-25 * time.Hour),
				}
				store.deleteErr = errors.New("storage unavailable")
			})

			It("should still delete the tracking record and complete", func() {
				sweeper.RunOnce()
				Expect(db.pending).To(BeEmpty())
			})
		})

		When("listing pending receipts fails", func() {
			BeforeEach(func() {
				db.listPendingErr = errors.New("db closed")
			})

			It("should complete without panicking", func() {
				Expect(sweeper.RunOnce).NotTo(Panic())
			})
		})

		When("many records are eligible", func() {
			BeforeEach(func() {
				for _, id := range []string{"a", "b", "c", "d", "e"} {
					db.pending["alice/"+id] = &PendingReceipt{
						ID: id, UserID: "alice",
						BlobURI:    "gs://test-bucket/alice/" + id + ".png",
						UploadedAt: testNow.Add(-48 * time.Hour),
					}
					store.blobs["gs://test-bucket/alice/"+id+".png"] = []byte("x")
				}
			})

			It("should reclaim everything", func() {
				sweeper.RunOnce()
				Expect(db.pending).To(BeEmpty())
				Expect(store.blobs).To(BeEmpty())
			})
		})
	})
})
