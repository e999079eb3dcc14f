package expense

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalBlobStore", func() {
	var store *LocalBlobStore

	BeforeEach(func() {
		var err error
		store, err = NewLocalBlobStore("test-bucket", GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewLocalBlobStore", func() {
		When("no bucket name is given", func() {
			It("should fail", func() {
				_, err := NewLocalBlobStore("", GinkgoT().TempDir())
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Save", func() {
		It("should return a URI in the configured bucket", func() {
			uri, err := store.Save("alice/r1.png", []byte("data"))
			Expect(err).NotTo(HaveOccurred())
			Expect(uri).To(Equal("gs://test-bucket/alice/r1.png"))
		})

		It("should make the blob readable through Get", func() {
			uri, err := store.Save("alice/r1.png", []byte("data"))
			Expect(err).NotTo(HaveOccurred())
			data, err := store.Get(uri)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("data")))
		})
	})

	Describe("Get", func() {
		When("the blob does not exist", func() {
			It("should fail with KindNotFound", func() {
				_, err := store.Get("gs://test-bucket/alice/missing.png")
				Expect(KindOf(err)).To(Equal(KindNotFound))
			})
		})

		When("the URI names a foreign bucket", func() {
			It("should fail with KindInvalidArgument", func() {
				_, err := store.Get("gs://other-bucket/alice/r1.png")
				Expect(KindOf(err)).To(Equal(KindInvalidArgument))
			})
		})
	})

	Describe("Delete", func() {
		When("the URI is empty", func() {
			It("should succeed without touching anything", func() {
				Expect(store.Delete("")).To(Succeed())
			})
		})

		When("the URI is malformed", func() {
			It("should fail with KindInvalidArgument", func() {
				err := store.Delete("http://example.com/r1.png")
				Expect(KindOf(err)).To(Equal(KindInvalidArgument))
			})
		})

		When("the URI names a foreign bucket", func() {
			It("should fail with KindInvalidArgument", func() {
				err := store.Delete("gs://other-bucket/alice/r1.png")
				Expect(KindOf(err)).To(Equal(KindInvalidArgument))
			})
		})

		When("the blob exists", func() {
			var uri string

			BeforeEach(func() {
				var err error
				uri, err = store.Save("alice/r1.png", []byte("data"))
				Expect(err).NotTo(HaveOccurred())
			})

			It("should remove it", func() {
				Expect(store.Delete(uri)).To(Succeed())
				_, err := store.Get(uri)
				Expect(err).To(HaveOccurred())
			})

			It("should be idempotent", func() {
				Expect(store.Delete(uri)).To(Succeed())
				Expect(store.Delete(uri)).To(Succeed())
			})
		})

		When("the blob never existed", func() {
			It("should treat not-found as success", func() {
				Expect(store.Delete("gs://test-bucket/alice/never.png")).To(Succeed())
			})
		})

		When("the path tries to escape the bucket", func() {
			It("should fail with KindInvalidArgument", func() {
				err := store.Delete("gs://test-bucket/../outside.png")
				Expect(KindOf(err)).To(Equal(KindInvalidArgument))
			})
		})
	})
})
