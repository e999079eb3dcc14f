package expense

import (
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("EnsureShareLink", func() {
		newLink := func(id string) func() *ShareLink {
			return func() *ShareLink {
				return &ShareLink{ID: id, UserID: "alice", CreatedAt: testNow}
			}
		}

		When("no link exists for the user", func() {
			It("should create one", func() {
				link, err := db.EnsureShareLink("alice", newLink("share-1"))
				Expect(err).NotTo(HaveOccurred())
				Expect(link.ID).To(Equal("share-1"))

				saved, err := db.GetShareLink("share-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(saved.UserID).To(Equal("alice"))
			})
		})

		When("a link already exists for the user", func() {
			BeforeEach(func() {
				_, err := db.EnsureShareLink("alice", newLink("share-1"))
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return the existing link and not create another", func() {
				link, err := db.EnsureShareLink("alice", newLink("share-2"))
				Expect(err).NotTo(HaveOccurred())
				Expect(link.ID).To(Equal("share-1"))

				_, err = db.GetShareLink("share-2")
				Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			})
		})

		When("different users each request a link", func() {
			It("should create one per user", func() {
				a, err := db.EnsureShareLink("alice", newLink("share-a"))
				Expect(err).NotTo(HaveOccurred())
				b, err := db.EnsureShareLink("bob", func() *ShareLink {
					return &ShareLink{ID: "share-b", UserID: "bob", CreatedAt: testNow}
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(a.ID).NotTo(Equal(b.ID))
			})
		})
	})

	Describe("GetShareLink", func() {
		When("the link does not exist", func() {
			It("should return ErrNotFound", func() {
				_, err := db.GetShareLink("nope")
				Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			})
		})
	})

	Describe("expenses", func() {
		var exp *Expense

		BeforeEach(func() {
			exp = &Expense{
				ID:          "e1",
				UserID:      "alice",
				Description: "Test Store - office supplies",
				Amount:      4275,
				Status:      StatusPending,
				ReceiptURI:  "gs://test-bucket/alice/r1.png",
				CreatedAt:   testNow,
				UpdatedAt:   testNow,
			}
			Expect(db.SaveExpense(exp)).To(Succeed())
		})

		It("should round-trip an expense", func() {
			saved, err := db.GetExpense("alice", "e1")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.Description).To(Equal("Test Store - office supplies"))
			Expect(saved.Amount).To(Equal(4275))
			Expect(saved.ReceiptURI).To(Equal("gs://test-bucket/alice/r1.png"))
		})

		It("should not expose one user's expense to another user's key space", func() {
			_, err := db.GetExpense("bob", "e1")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})

		Describe("ListExpenses", func() {
			BeforeEach(func() {
				Expect(db.SaveExpense(&Expense{ID: "e2", UserID: "alice", Status: StatusPending, CreatedAt: testNow})).To(Succeed())
				Expect(db.SaveExpense(&Expense{ID: "e3", UserID: "bob", Status: StatusPending, CreatedAt: testNow})).To(Succeed())
			})

			It("should list only the given user's expenses", func() {
				expenses, err := db.ListExpenses("alice")
				Expect(err).NotTo(HaveOccurred())
				Expect(expenses).To(HaveLen(2))
			})

			It("should return an empty slice for an unknown user", func() {
				expenses, err := db.ListExpenses("carol")
				Expect(err).NotTo(HaveOccurred())
				Expect(expenses).To(BeEmpty())
			})
		})

		Describe("GetExpenses", func() {
			It("should skip missing identifiers", func() {
				expenses, err := db.GetExpenses("alice", []string{"e1", "ghost"})
				Expect(err).NotTo(HaveOccurred())
				Expect(expenses).To(HaveLen(1))
				Expect(expenses[0].ID).To(Equal("e1"))
			})
		})

		Describe("UpdateExpenses", func() {
			It("should persist every record in the batch", func() {
				other := &Expense{ID: "e2", UserID: "alice", Status: StatusPending, CreatedAt: testNow}
				Expect(db.SaveExpense(other)).To(Succeed())

				exp.Status = StatusReimbursed
				exp.ReceiptURI = ""
				other.Status = StatusReimbursed
				Expect(db.UpdateExpenses([]*Expense{exp, other})).To(Succeed())

				for _, id := range []string{"e1", "e2"} {
					saved, err := db.GetExpense("alice", id)
					Expect(err).NotTo(HaveOccurred())
					Expect(saved.Status).To(Equal(StatusReimbursed))
				}
			})
		})

		Describe("DeleteExpense", func() {
			It("should remove the expense", func() {
				Expect(db.DeleteExpense("alice", "e1")).To(Succeed())
				_, err := db.GetExpense("alice", "e1")
				Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			})
		})
	})

	Describe("pending receipts", func() {
		BeforeEach(func() {
			Expect(db.SavePendingReceipt(&PendingReceipt{
				ID: "p1", UserID: "alice", BlobURI: "gs://test-bucket/alice/r1.png", UploadedAt: testNow.Add(-48 * time.Hour),
			})).To(Succeed())
			Expect(db.SavePendingReceipt(&PendingReceipt{
				ID: "p2", UserID: "bob", BlobURI: "gs://test-bucket/bob/r2.png", UploadedAt: testNow.Add(-time.Hour),
			})).To(Succeed())
		})

		It("should round-trip a pending receipt", func() {
			rec, err := db.GetPendingReceipt("alice", "p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.BlobURI).To(Equal("gs://test-bucket/alice/r1.png"))
		})

		Describe("ListPendingReceiptsBefore", func() {
			It("should return only records older than the cutoff, across users", func() {
				records, err := db.ListPendingReceiptsBefore(testNow.Add(-24 * time.Hour))
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(1))
				Expect(records[0].ID).To(Equal("p1"))
			})

			It("should return everything for a future cutoff", func() {
				records, err := db.ListPendingReceiptsBefore(testNow.Add(time.Hour))
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(2))
			})
		})

		Describe("DeletePendingReceipt", func() {
			It("should remove the record", func() {
				Expect(db.DeletePendingReceipt("alice", "p1")).To(Succeed())
				_, err := db.GetPendingReceipt("alice", "p1")
				Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			})
		})
	})
})
