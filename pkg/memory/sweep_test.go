package memory_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/engram/pkg/history"
	"github.com/papercomputeco/engram/pkg/memory"
	"github.com/papercomputeco/engram/pkg/vector"
)

var _ = Describe("Engine.Sweep", func() {
	ctx := context.Background()

	// seedProcessing plants a record as a crash mid-Add would leave it.
	seedProcessing := func(f *fixture, id, text string, updatedAt time.Time) {
		err := f.vectors.Upsert(ctx, []vector.Record{{
			ID:        id,
			Embedding: []float32{0.1, 0.2, 0.3},
			Payload: vector.Payload{
				Data:      text,
				Hash:      memory.ContentHash(text),
				UserID:    "alice",
				CreatedAt: updatedAt,
				UpdatedAt: updatedAt,
				State:     vector.StateProcessing,
			},
		}})
		Expect(err).NotTo(HaveOccurred())
	}

	It("finalizes records stranded past the grace period", func() {
		f := newFixture(memory.Policy{})
		seedProcessing(f, "m1", "User likes tea", time.Now().UTC().Add(-time.Hour))

		swept, err := f.engine.Sweep(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(swept).To(Equal(1))

		record, err := f.vectors.Get(ctx, "m1")
		Expect(err).NotTo(HaveOccurred())
		Expect(record.Payload.State).To(Equal(vector.StateActive))
	})

	It("repairs a missing ledger entry with the sweeper actor", func() {
		f := newFixture(memory.Policy{})
		seedProcessing(f, "m1", "User likes tea", time.Now().UTC().Add(-time.Hour))

		_, err := f.engine.Sweep(ctx)
		Expect(err).NotTo(HaveOccurred())

		entries := f.history.All()
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].MemoryID).To(Equal("m1"))
		Expect(entries[0].Event).To(Equal(string(memory.EventAdd)))
		Expect(entries[0].Actor).To(Equal(history.ActorSweeper))
		Expect(entries[0].NewValue).To(Equal("User likes tea"))
	})

	It("does not duplicate an existing ledger entry", func() {
		f := newFixture(memory.Policy{})
		seedProcessing(f, "m1", "User likes tea", time.Now().UTC().Add(-time.Hour))
		Expect(f.history.Append(ctx, history.Entry{
			ID:        "h1",
			MemoryID:  "m1",
			Event:     string(memory.EventAdd),
			NewValue:  "User likes tea",
			CreatedAt: time.Now().UTC().Add(-time.Hour),
			Actor:     history.ActorSystem,
		})).To(Succeed())

		swept, err := f.engine.Sweep(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(swept).To(Equal(1))
		Expect(f.history.All()).To(HaveLen(1))
	})

	It("leaves in-flight records alone", func() {
		f := newFixture(memory.Policy{})
		seedProcessing(f, "m1", "User likes tea", time.Now().UTC())

		swept, err := f.engine.Sweep(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(swept).To(Equal(0))

		record, err := f.vectors.Get(ctx, "m1")
		Expect(err).NotTo(HaveOccurred())
		Expect(record.Payload.State).To(Equal(vector.StateProcessing))
	})

	It("ignores active and deleted records", func() {
		f := newFixture(memory.Policy{})
		old := time.Now().UTC().Add(-time.Hour)
		f.seed("m1", "User likes tea", alice, nil, old)
		Expect(f.engine.Delete(ctx, "m1")).To(Succeed())

		swept, err := f.engine.Sweep(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(swept).To(Equal(0))
	})

	It("honors a custom grace period", func() {
		f := newFixture(memory.Policy{SweepGrace: time.Second})
		seedProcessing(f, "m1", "User likes tea", time.Now().UTC().Add(-2*time.Second))

		swept, err := f.engine.Sweep(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(swept).To(Equal(1))
	})
})
