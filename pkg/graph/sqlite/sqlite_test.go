package sqlite_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/graph"
	"github.com/papercomputeco/engram/pkg/graph/sqlite"
)

var _ = Describe("Store", func() {
	var (
		ctx   context.Context
		store *sqlite.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		store, err = sqlite.NewStore(sqlite.Config{DBPath: ":memory:"}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	edge := func(source, rel, target string, confidence float64) graph.Edge {
		return graph.Edge{
			UserID:       "alice",
			Source:       source,
			Target:       target,
			Relationship: rel,
			Confidence:   confidence,
			CreatedAt:    time.Now().UTC(),
		}
	}

	It("rejects an empty database path", func() {
		_, err := sqlite.NewStore(sqlite.Config{}, zap.NewNop())
		Expect(err).To(HaveOccurred())
	})

	It("upserts nodes idempotently", func() {
		node := graph.Node{UserID: "alice", Name: "Acme", Type: "organization"}
		Expect(store.UpsertNode(ctx, node)).To(Succeed())
		Expect(store.UpsertNode(ctx, node)).To(Succeed())

		nodes, err := store.Nodes(ctx, "alice", "", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(1))
		Expect(nodes[0].Name).To(Equal("Acme"))
	})

	It("raises edge confidence on re-observation, capped at 1.0", func() {
		Expect(store.UpsertEdge(ctx, edge("alice", "WORKS_AT", "Acme", 0.5))).To(Succeed())

		for i := 0; i < 10; i++ {
			Expect(store.UpsertEdge(ctx, edge("alice", "WORKS_AT", "Acme", 0.5))).To(Succeed())
		}

		edges, err := store.Neighbors(ctx, "alice", "", "", "alice", 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(edges).To(HaveLen(1))
		Expect(edges[0].Confidence).To(Equal(1.0))
	})

	It("never lowers confidence for a weaker re-observation", func() {
		Expect(store.UpsertEdge(ctx, edge("alice", "WORKS_AT", "Acme", 0.8))).To(Succeed())
		Expect(store.UpsertEdge(ctx, edge("alice", "WORKS_AT", "Acme", 0.1))).To(Succeed())

		edges, err := store.Neighbors(ctx, "alice", "", "", "alice", 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(edges[0].Confidence).To(BeNumerically(">=", 0.8))
	})

	It("walks neighbors to the requested depth", func() {
		Expect(store.UpsertEdge(ctx, edge("alice", "WORKS_AT", "Acme", 0.5))).To(Succeed())
		Expect(store.UpsertEdge(ctx, edge("Acme", "LOCATED_IN", "Berlin", 0.5))).To(Succeed())
		Expect(store.UpsertEdge(ctx, edge("Berlin", "PART_OF", "Germany", 0.5))).To(Succeed())

		edges, err := store.Neighbors(ctx, "alice", "", "", "alice", 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(edges).To(HaveLen(1))

		edges, err = store.Neighbors(ctx, "alice", "", "", "alice", 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(edges).To(HaveLen(2))
	})

	It("partitions by scope", func() {
		Expect(store.UpsertEdge(ctx, edge("alice", "WORKS_AT", "Acme", 0.5))).To(Succeed())
		other := edge("alice", "WORKS_AT", "Acme", 0.5)
		other.UserID = "bob"
		Expect(store.UpsertEdge(ctx, other)).To(Succeed())

		edges, err := store.Neighbors(ctx, "bob", "", "", "alice", 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(edges).To(HaveLen(1))
		Expect(edges[0].UserID).To(Equal("bob"))
	})

	It("deletes a scope without touching others", func() {
		Expect(store.UpsertNode(ctx, graph.Node{UserID: "alice", Name: "Acme", Type: "organization"})).To(Succeed())
		Expect(store.UpsertNode(ctx, graph.Node{UserID: "bob", Name: "Acme", Type: "organization"})).To(Succeed())
		Expect(store.UpsertEdge(ctx, edge("alice", "WORKS_AT", "Acme", 0.5))).To(Succeed())

		Expect(store.DeleteScope(ctx, "alice", "", "")).To(Succeed())

		nodes, err := store.Nodes(ctx, "alice", "", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(BeEmpty())

		nodes, err = store.Nodes(ctx, "bob", "", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(1))

		edges, err := store.Neighbors(ctx, "alice", "", "", "alice", 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(edges).To(BeEmpty())
	})
})
