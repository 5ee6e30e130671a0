package memory_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/engram/pkg/graph"
	"github.com/papercomputeco/engram/pkg/memory"
)

var _ = Describe("Engine.Search", func() {
	ctx := context.Background()

	It("rejects an empty scope", func() {
		f := newFixture(memory.Policy{})
		_, err := f.engine.Search(ctx, "tea", memory.Scope{}, memory.SearchOptions{})
		Expect(err).To(MatchError(memory.ErrInvalidInput))
	})

	It("rejects an empty query", func() {
		f := newFixture(memory.Policy{})
		_, err := f.engine.Search(ctx, "   ", alice, memory.SearchOptions{})
		Expect(err).To(MatchError(memory.ErrInvalidInput))
	})

	It("ranks by similarity to the query", func() {
		f := newFixture(memory.Policy{})
		f.embedder.Embeddings["User likes tea"] = []float32{1, 0, 0}
		f.embedder.Embeddings["User has a dog"] = []float32{0, 1, 0}
		f.embedder.Embeddings["favorite drink"] = []float32{0.9, 0.1, 0}

		now := time.Now().UTC()
		f.seed("m1", "User likes tea", alice, []float32{1, 0, 0}, now)
		f.seed("m2", "User has a dog", alice, []float32{0, 1, 0}, now)

		results, err := f.engine.Search(ctx, "favorite drink", alice, memory.SearchOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))
		Expect(results[0].ID).To(Equal("m1"))
		Expect(results[0].Score).To(BeNumerically(">", results[1].Score))
	})

	It("never crosses scopes", func() {
		f := newFixture(memory.Policy{})
		now := time.Now().UTC()
		f.seed("m1", "User likes tea", alice, nil, now)
		f.seed("m2", "User likes coffee", bob, nil, now)

		results, err := f.engine.Search(ctx, "drinks", alice, memory.SearchOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].ID).To(Equal("m1"))
	})

	It("excludes deleted memories", func() {
		f := newFixture(memory.Policy{})
		now := time.Now().UTC()
		f.seed("m1", "User likes tea", alice, nil, now)
		f.seed("m2", "User likes coffee", alice, nil, now)
		Expect(f.engine.Delete(ctx, "m2")).To(Succeed())

		results, err := f.engine.Search(ctx, "drinks", alice, memory.SearchOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].ID).To(Equal("m1"))
	})

	It("surfaces tombstones when deleted memories are requested", func() {
		f := newFixture(memory.Policy{})
		now := time.Now().UTC()
		f.seed("m1", "User likes tea", alice, nil, now)
		f.seed("m2", "User likes coffee", alice, nil, now)
		Expect(f.engine.Delete(ctx, "m2")).To(Succeed())

		results, err := f.engine.Search(ctx, "drinks", alice, memory.SearchOptions{IncludeDeleted: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))

		byID := map[string]bool{}
		for _, r := range results {
			byID[r.ID] = r.Deleted
		}
		Expect(byID["m1"]).To(BeFalse())
		Expect(byID["m2"]).To(BeTrue())
	})

	It("drops results below the score floor", func() {
		f := newFixture(memory.Policy{})
		f.embedder.Embeddings["tea"] = []float32{1, 0, 0}

		now := time.Now().UTC()
		f.seed("m1", "User likes tea", alice, []float32{1, 0, 0}, now)
		f.seed("m2", "User has a dog", alice, []float32{0, 1, 0}, now)

		results, err := f.engine.Search(ctx, "tea", alice, memory.SearchOptions{MinScore: 0.5})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].ID).To(Equal("m1"))
	})

	It("caps results at the limit", func() {
		f := newFixture(memory.Policy{})
		now := time.Now().UTC()
		f.seed("m1", "note one", alice, nil, now)
		f.seed("m2", "note two", alice, nil, now)
		f.seed("m3", "note three", alice, nil, now)

		results, err := f.engine.Search(ctx, "notes", alice, memory.SearchOptions{Limit: 2})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))
	})

	It("filters by metadata", func() {
		f := newFixture(memory.Policy{}, `{"facts": ["User likes tea"]}`)
		_, err := f.engine.Add(ctx, "I like tea", alice, memory.AddOptions{
			Metadata: map[string]string{"category": "food"},
		})
		Expect(err).NotTo(HaveOccurred())

		results, err := f.engine.Search(ctx, "tea", alice, memory.SearchOptions{
			Metadata: map[string]string{"category": "food"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))

		results, err = f.engine.Search(ctx, "tea", alice, memory.SearchOptions{
			Metadata: map[string]string{"category": "work"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(BeEmpty())
	})

	It("surfaces retrieval failures", func() {
		f := newFixture(memory.Policy{})
		f.vectors.FailSearch = true

		_, err := f.engine.Search(ctx, "tea", alice, memory.SearchOptions{})
		Expect(err).To(MatchError(memory.ErrRetrieval))
	})

	Context("with graph expansion", func() {
		It("boosts results near entities from the top hits", func() {
			f := newGraphFixture(memory.Policy{})

			f.embedder.Embeddings["where does the user work"] = []float32{1, 0, 0}
			now := time.Now().UTC()
			f.seed("m1", "User mentioned alice recently", alice, []float32{0.9, 0.1, 0}, now)
			f.seed("m2", "Acme ships widgets", alice, []float32{0.5, 0.5, 0}, now)
			f.seed("m3", "User has a dog", alice, []float32{0.5, 0.5, 0.01}, now)

			Expect(f.graph.UpsertNode(ctx, graph.Node{
				UserID: "alice", Name: "alice", Type: "person",
			})).To(Succeed())
			Expect(f.graph.UpsertNode(ctx, graph.Node{
				UserID: "alice", Name: "Acme", Type: "organization",
			})).To(Succeed())
			Expect(f.graph.UpsertEdge(ctx, graph.Edge{
				UserID: "alice", Source: "alice", Target: "Acme",
				Relationship: "WORKS_AT", Confidence: 0.5,
			})).To(Succeed())

			results, err := f.engine.Search(ctx, "where does the user work", alice,
				memory.SearchOptions{ExpandGraph: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(3))

			// m2 mentions Acme, one hop from alice, so it overtakes m3
			// despite near-identical semantic scores.
			Expect(results[0].ID).To(Equal("m1"))
			Expect(results[1].ID).To(Equal("m2"))
			Expect(results[2].ID).To(Equal("m3"))
		})

		It("leaves ranking untouched when the scope has no graph", func() {
			f := newGraphFixture(memory.Policy{})
			now := time.Now().UTC()
			f.seed("m1", "User likes tea", alice, nil, now)

			results, err := f.engine.Search(ctx, "tea", alice,
				memory.SearchOptions{ExpandGraph: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
		})
	})
})
