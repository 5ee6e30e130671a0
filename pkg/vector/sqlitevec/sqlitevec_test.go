package sqlitevec_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/vector"
	"github.com/papercomputeco/engram/pkg/vector/sqlitevec"
)

var _ = Describe("Driver", func() {
	var (
		ctx    context.Context
		driver *sqlitevec.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		driver, err = sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:     ":memory:",
			Dimensions: 3,
		}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(driver.Close()).To(Succeed())
	})

	record := func(id, text, userID string, embedding []float32) vector.Record {
		now := time.Now().UTC().Truncate(time.Second)
		return vector.Record{
			ID:        id,
			Embedding: embedding,
			Payload: vector.Payload{
				Data:      text,
				Hash:      "hash-" + id,
				UserID:    userID,
				Metadata:  map[string]string{"category": "test"},
				CreatedAt: now,
				UpdatedAt: now,
				State:     vector.StateActive,
			},
		}
	}

	It("requires a database path and dimensions", func() {
		_, err := sqlitevec.NewDriver(sqlitevec.Config{Dimensions: 3}, zap.NewNop())
		Expect(err).To(HaveOccurred())

		_, err = sqlitevec.NewDriver(sqlitevec.Config{DBPath: ":memory:"}, zap.NewNop())
		Expect(err).To(HaveOccurred())
	})

	It("round-trips a record", func() {
		in := record("m1", "User likes tea", "alice", []float32{1, 0, 0})
		Expect(driver.Upsert(ctx, []vector.Record{in})).To(Succeed())

		out, err := driver.Get(ctx, "m1")
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Payload.Data).To(Equal("User likes tea"))
		Expect(out.Payload.Hash).To(Equal("hash-m1"))
		Expect(out.Payload.UserID).To(Equal("alice"))
		Expect(out.Payload.Metadata).To(HaveKeyWithValue("category", "test"))
		Expect(out.Payload.State).To(Equal(vector.StateActive))
		Expect(out.Embedding).To(Equal([]float32{1, 0, 0}))
	})

	It("replaces a record upserted under the same id", func() {
		Expect(driver.Upsert(ctx, []vector.Record{
			record("m1", "User likes tea", "alice", []float32{1, 0, 0}),
		})).To(Succeed())
		Expect(driver.Upsert(ctx, []vector.Record{
			record("m1", "User prefers oolong", "alice", []float32{0, 1, 0}),
		})).To(Succeed())

		out, err := driver.Get(ctx, "m1")
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Payload.Data).To(Equal("User prefers oolong"))
		Expect(out.Embedding).To(Equal([]float32{0, 1, 0}))

		records, err := driver.List(ctx, vector.Filter{UserID: "alice"})
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(1))
	})

	It("returns ErrNotFound for an unknown id", func() {
		_, err := driver.Get(ctx, "nope")
		Expect(err).To(MatchError(vector.ErrNotFound))
	})

	Describe("Search", func() {
		BeforeEach(func() {
			Expect(driver.Upsert(ctx, []vector.Record{
				record("m1", "User likes tea", "alice", []float32{1, 0, 0}),
				record("m2", "User has a dog", "alice", []float32{0, 1, 0}),
				record("m3", "User likes coffee", "bob", []float32{1, 0, 0}),
			})).To(Succeed())
		})

		It("ranks nearer vectors first", func() {
			results, err := driver.Search(ctx, []float32{0.9, 0.1, 0}, vector.Filter{UserID: "alice"}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].ID).To(Equal("m1"))
			Expect(results[0].Score).To(BeNumerically(">", results[1].Score))
		})

		It("respects the scope filter", func() {
			results, err := driver.Search(ctx, []float32{1, 0, 0}, vector.Filter{UserID: "bob"}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal("m3"))
		})

		It("excludes soft-deleted records by default", func() {
			tombstone := record("m1", "User likes tea", "alice", []float32{1, 0, 0})
			tombstone.Payload.Deleted = true
			tombstone.Payload.State = vector.StateDeleted
			Expect(driver.Upsert(ctx, []vector.Record{tombstone})).To(Succeed())

			results, err := driver.Search(ctx, []float32{1, 0, 0}, vector.Filter{UserID: "alice"}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal("m2"))
		})

		It("caps results at topK", func() {
			results, err := driver.Search(ctx, []float32{1, 0, 0}, vector.Filter{UserID: "alice"}, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
		})

		It("filters by metadata", func() {
			results, err := driver.Search(ctx, []float32{1, 0, 0}, vector.Filter{
				UserID:   "alice",
				Metadata: map[string]string{"category": "other"},
			}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})
	})

	It("lists by filter and deletes by id", func() {
		Expect(driver.Upsert(ctx, []vector.Record{
			record("m1", "User likes tea", "alice", []float32{1, 0, 0}),
			record("m2", "User has a dog", "alice", []float32{0, 1, 0}),
		})).To(Succeed())

		Expect(driver.Delete(ctx, []string{"m1"})).To(Succeed())

		records, err := driver.List(ctx, vector.Filter{UserID: "alice"})
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(1))
		Expect(records[0].ID).To(Equal("m2"))

		_, err = driver.Get(ctx, "m1")
		Expect(err).To(MatchError(vector.ErrNotFound))
	})
})
