package memory_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/history"
	"github.com/papercomputeco/engram/pkg/memory"
	testutils "github.com/papercomputeco/engram/pkg/utils/test"
	"github.com/papercomputeco/engram/pkg/vector"
)

type fixture struct {
	llm      *testutils.ScriptedLLM
	embedder *testutils.MockEmbedder
	vectors  *testutils.MockVectorDriver
	history  *testutils.MockHistoryStore
	events   *testutils.MockPublisher
	graph    *testutils.MockGraphStore
	engine   *memory.Engine
}

func newFixture(policy memory.Policy, responses ...string) *fixture {
	f := &fixture{
		llm:      testutils.NewScriptedLLM(responses...),
		embedder: testutils.NewMockEmbedder(),
		vectors:  testutils.NewMockVectorDriver(),
		history:  testutils.NewMockHistoryStore(),
		events:   testutils.NewMockPublisher(),
	}

	engine, err := memory.New(memory.Options{
		Embedder: f.embedder,
		LLM:      f.llm.Call,
		Vectors:  f.vectors,
		History:  f.history,
		Logger:   zap.NewNop(),
		Events:   f.events,
		Policy:   policy,
	})
	Expect(err).NotTo(HaveOccurred())
	f.engine = engine
	return f
}

func newGraphFixture(policy memory.Policy, responses ...string) *fixture {
	f := &fixture{
		llm:      testutils.NewScriptedLLM(responses...),
		embedder: testutils.NewMockEmbedder(),
		vectors:  testutils.NewMockVectorDriver(),
		history:  testutils.NewMockHistoryStore(),
		events:   testutils.NewMockPublisher(),
		graph:    testutils.NewMockGraphStore(),
	}

	engine, err := memory.New(memory.Options{
		Embedder:   f.embedder,
		LLM:        f.llm.Call,
		Vectors:    f.vectors,
		History:    f.history,
		Logger:     zap.NewNop(),
		Events:     f.events,
		GraphStore: f.graph,
		Policy:     policy,
	})
	Expect(err).NotTo(HaveOccurred())
	f.engine = engine
	return f
}

// seed stores an active memory directly in the vector driver, as a prior
// Add would have left it.
func (f *fixture) seed(id, text string, scope memory.Scope, embedding []float32, updatedAt time.Time) {
	if embedding == nil {
		embedding = []float32{0.1, 0.2, 0.3}
	}
	err := f.vectors.Upsert(context.Background(), []vector.Record{{
		ID:        id,
		Embedding: embedding,
		Payload: vector.Payload{
			Data:      text,
			Hash:      memory.ContentHash(text),
			UserID:    scope.UserID,
			AgentID:   scope.AgentID,
			RunID:     scope.RunID,
			CreatedAt: updatedAt,
			UpdatedAt: updatedAt,
			State:     vector.StateActive,
		},
	}})
	Expect(err).NotTo(HaveOccurred())
}

var (
	alice = memory.Scope{UserID: "alice"}
	bob   = memory.Scope{UserID: "bob"}
)

var _ = Describe("Engine.New", func() {
	It("rejects missing collaborators", func() {
		_, err := memory.New(memory.Options{})
		Expect(err).To(HaveOccurred())
	})

	It("fills in policy defaults", func() {
		f := newFixture(memory.Policy{})
		Expect(f.engine).NotTo(BeNil())
	})
})

var _ = Describe("Engine.Add", func() {
	ctx := context.Background()

	It("rejects an empty scope", func() {
		f := newFixture(memory.Policy{})
		_, err := f.engine.Add(ctx, "hello", memory.Scope{}, memory.AddOptions{})
		Expect(err).To(MatchError(memory.ErrInvalidInput))
	})

	It("rejects invalid input", func() {
		f := newFixture(memory.Policy{})
		_, err := f.engine.Add(ctx, []memory.Message{}, alice, memory.AddOptions{})
		Expect(err).To(MatchError(memory.ErrInvalidInput))
	})

	Context("against an empty store", func() {
		It("adds every extracted fact without consulting the decision model", func() {
			f := newFixture(memory.Policy{},
				`{"facts": ["User likes tea", "User lives in Berlin"]}`)

			result, err := f.engine.Add(ctx, "I like tea and I live in Berlin", alice, memory.AddOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Results).To(HaveLen(2))
			for _, r := range result.Results {
				Expect(r.Event).To(Equal(memory.EventAdd))
				Expect(r.ID).NotTo(BeEmpty())
				Expect(r.Err).NotTo(HaveOccurred())
			}

			// One extraction call, no decision call.
			Expect(f.llm.Prompts).To(HaveLen(1))
			Expect(f.vectors.Len()).To(Equal(2))

			entries := f.history.All()
			Expect(entries).To(HaveLen(2))
			for _, entry := range entries {
				Expect(entry.Event).To(Equal(string(memory.EventAdd)))
				Expect(entry.Actor).To(Equal(history.ActorSystem))
				Expect(entry.PrevValue).To(BeEmpty())
			}

			Expect(f.events.Events()).To(HaveLen(2))
		})

		It("activates new memories", func() {
			f := newFixture(memory.Policy{}, `{"facts": ["User likes tea"]}`)

			result, err := f.engine.Add(ctx, "I like tea", alice, memory.AddOptions{})
			Expect(err).NotTo(HaveOccurred())

			record, err := f.vectors.Get(ctx, result.Results[0].ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Payload.State).To(Equal(vector.StateActive))
			Expect(record.Payload.Hash).To(Equal(memory.ContentHash("User likes tea")))
		})
	})

	Context("with an exact duplicate stored", func() {
		It("resolves to NONE by content hash without consulting the decision model", func() {
			f := newFixture(memory.Policy{}, `{"facts": ["User likes tea"]}`)
			f.seed("m1", "User likes tea", alice, nil, time.Now().UTC().Add(-time.Hour))

			result, err := f.engine.Add(ctx, "I like tea", alice, memory.AddOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Results).To(HaveLen(1))
			Expect(result.Results[0].Event).To(Equal(memory.EventNone))
			Expect(result.Results[0].ID).To(Equal("m1"))

			Expect(f.llm.Prompts).To(HaveLen(1))
			Expect(f.vectors.Len()).To(Equal(1))
			Expect(f.history.All()).To(BeEmpty())
			Expect(f.events.Events()).To(BeEmpty())
		})

		It("writes a noop ledger entry when the policy audits noops", func() {
			f := newFixture(memory.Policy{AuditNoop: true}, `{"facts": ["User likes tea"]}`)
			f.seed("m1", "User likes tea", alice, nil, time.Now().UTC().Add(-time.Hour))

			_, err := f.engine.Add(ctx, "I like tea", alice, memory.AddOptions{})
			Expect(err).NotTo(HaveOccurred())

			entries := f.history.All()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Event).To(Equal(string(memory.EventNone)))
			Expect(entries[0].MemoryID).To(Equal("m1"))
		})
	})

	Context("when a fact refines a stored memory", func() {
		It("updates in place, preserving the memory's id", func() {
			f := newFixture(memory.Policy{},
				`{"facts": ["User loves green tea"]}`,
				`{"memory": [{"id": "0", "event": "UPDATE", "text": "User loves green tea"}]}`)
			seeded := time.Now().UTC().Add(-time.Hour)
			f.seed("m1", "User likes tea", alice, nil, seeded)

			result, err := f.engine.Add(ctx, "Actually I love green tea", alice, memory.AddOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Results).To(HaveLen(1))

			r := result.Results[0]
			Expect(r.Event).To(Equal(memory.EventUpdate))
			Expect(r.ID).To(Equal("m1"))
			Expect(r.Text).To(Equal("User loves green tea"))
			Expect(r.PrevText).To(Equal("User likes tea"))

			record, err := f.vectors.Get(ctx, "m1")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Payload.Data).To(Equal("User loves green tea"))
			Expect(record.Payload.UpdatedAt).To(BeTemporally(">", seeded))
			Expect(f.vectors.Len()).To(Equal(1))

			entries := f.history.All()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Event).To(Equal(string(memory.EventUpdate)))
			Expect(entries[0].PrevValue).To(Equal("User likes tea"))
			Expect(entries[0].NewValue).To(Equal("User loves green tea"))
		})

		It("keeps real memory ids out of the decision prompt", func() {
			f := newFixture(memory.Policy{},
				`{"facts": ["User loves green tea"]}`,
				`{"memory": [{"id": "0", "event": "NONE"}]}`)
			f.seed("mem-secret-id", "User likes tea", alice, nil, time.Now().UTC().Add(-time.Hour))

			_, err := f.engine.Add(ctx, "I love green tea", alice, memory.AddOptions{})
			Expect(err).NotTo(HaveOccurred())

			Expect(f.llm.Prompts).To(HaveLen(2))
			Expect(f.llm.Prompts[1]).NotTo(ContainSubstring("mem-secret-id"))
		})

		It("applies two updates to the same memory without losing the first", func() {
			f := newFixture(memory.Policy{},
				`{"facts": ["User prefers green tea", "User drinks tea every morning"]}`,
				`{"memory": [
					{"id": "0", "event": "UPDATE", "text": "User prefers green tea"},
					{"id": "0", "event": "UPDATE", "text": "User prefers green tea every morning"}
				]}`)
			f.seed("m1", "User likes tea", alice, nil, time.Now().UTC().Add(-time.Hour))

			result, err := f.engine.Add(ctx, "I prefer green tea and drink it every morning", alice, memory.AddOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Results).To(HaveLen(2))

			first, second := result.Results[0], result.Results[1]
			Expect(first.Event).To(Equal(memory.EventUpdate))
			Expect(first.ID).To(Equal("m1"))
			Expect(first.PrevText).To(Equal("User likes tea"))
			Expect(first.Err).NotTo(HaveOccurred())

			// The second decision carries the version read before the first
			// update landed; it re-reads and applies on top of it.
			Expect(second.Event).To(Equal(memory.EventUpdate))
			Expect(second.ID).To(Equal("m1"))
			Expect(second.PrevText).To(Equal("User prefers green tea"))
			Expect(second.Err).NotTo(HaveOccurred())

			record, err := f.vectors.Get(ctx, "m1")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Payload.Data).To(Equal("User prefers green tea every morning"))
			Expect(f.vectors.Len()).To(Equal(1))

			entries := f.history.All()
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].PrevValue).To(Equal("User likes tea"))
			Expect(entries[1].PrevValue).To(Equal("User prefers green tea"))
			Expect(entries[1].NewValue).To(Equal("User prefers green tea every morning"))
		})
	})

	Context("when a fact contradicts a stored memory", func() {
		It("retires the memory as a soft-deleted tombstone", func() {
			f := newFixture(memory.Policy{},
				`{"facts": ["User is vegan"]}`,
				`{"memory": [{"id": "0", "event": "DELETE"}]}`)
			f.seed("m1", "User loves cheese", alice, nil, time.Now().UTC().Add(-time.Hour))

			result, err := f.engine.Add(ctx, "I went vegan last month", alice, memory.AddOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Results).To(HaveLen(1))
			Expect(result.Results[0].Event).To(Equal(memory.EventDelete))
			Expect(result.Results[0].ID).To(Equal("m1"))
			Expect(result.Results[0].PrevText).To(Equal("User loves cheese"))

			record, err := f.vectors.Get(ctx, "m1")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Payload.Deleted).To(BeTrue())
			Expect(record.Payload.State).To(Equal(vector.StateDeleted))

			entries := f.history.All()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Event).To(Equal(string(memory.EventDelete)))
			Expect(entries[0].PrevValue).To(Equal("User loves cheese"))
			Expect(entries[0].NewValue).To(BeEmpty())
		})

		It("removes the record physically under a hard-delete policy", func() {
			f := newFixture(memory.Policy{HardDelete: true},
				`{"facts": ["User is vegan"]}`,
				`{"memory": [{"id": "0", "event": "DELETE"}]}`)
			f.seed("m1", "User loves cheese", alice, nil, time.Now().UTC().Add(-time.Hour))

			_, err := f.engine.Add(ctx, "I went vegan last month", alice, memory.AddOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(f.vectors.Len()).To(Equal(0))
		})
	})

	Context("with a mixed batch", func() {
		It("settles duplicates by hash and sends only the rest to the model", func() {
			f := newFixture(memory.Policy{},
				`{"facts": ["User likes tea", "User has a dog"]}`,
				`{"memory": [{"id": "", "event": "ADD", "text": "User has a dog"}]}`)
			f.seed("m1", "User likes tea", alice, nil, time.Now().UTC().Add(-time.Hour))

			result, err := f.engine.Add(ctx, "I like tea and I have a dog", alice, memory.AddOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Results).To(HaveLen(2))

			events := []memory.Event{result.Results[0].Event, result.Results[1].Event}
			Expect(events).To(ConsistOf(memory.EventNone, memory.EventAdd))
			Expect(f.vectors.Len()).To(Equal(2))
		})
	})

	Context("when the decision response is malformed", func() {
		It("downgrades the whole batch to ADD", func() {
			f := newFixture(memory.Policy{},
				`{"facts": ["User plays chess"]}`,
				`I cannot help with that.`)
			f.seed("m1", "User enjoys board games", alice, nil, time.Now().UTC().Add(-time.Hour))

			result, err := f.engine.Add(ctx, "I play chess", alice, memory.AddOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Results).To(HaveLen(1))
			Expect(result.Results[0].Event).To(Equal(memory.EventAdd))
			Expect(result.Results[0].ID).NotTo(Equal("m1"))
			Expect(f.vectors.Len()).To(Equal(2))
		})

		It("downgrades a decision referencing an unknown alias to ADD", func() {
			f := newFixture(memory.Policy{},
				`{"facts": ["User plays chess"]}`,
				`{"memory": [{"id": "42", "event": "UPDATE", "text": "User plays chess"}]}`)
			f.seed("m1", "User enjoys board games", alice, nil, time.Now().UTC().Add(-time.Hour))

			result, err := f.engine.Add(ctx, "I play chess", alice, memory.AddOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Results[0].Event).To(Equal(memory.EventAdd))
			Expect(result.Results[0].ID).NotTo(Equal("m1"))
		})

		It("downgrades an unknown event to ADD", func() {
			f := newFixture(memory.Policy{},
				`{"facts": ["User plays chess"]}`,
				`{"memory": [{"id": "0", "event": "MERGE", "text": "User plays chess"}]}`)
			f.seed("m1", "User enjoys board games", alice, nil, time.Now().UTC().Add(-time.Hour))

			result, err := f.engine.Add(ctx, "I play chess", alice, memory.AddOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Results[0].Event).To(Equal(memory.EventAdd))
		})
	})

	Context("when fact extraction fails", func() {
		It("retries once with a stricter prompt", func() {
			f := newFixture(memory.Policy{},
				`no json here`,
				`{"facts": ["User likes tea"]}`)

			result, err := f.engine.Add(ctx, "I like tea", alice, memory.AddOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Results).To(HaveLen(1))
			Expect(result.Results[0].Event).To(Equal(memory.EventAdd))
			Expect(f.llm.Prompts).To(HaveLen(2))
		})

		It("completes with zero candidates after the retry also fails", func() {
			f := newFixture(memory.Policy{},
				`no json here`,
				`still no json`)

			result, err := f.engine.Add(ctx, "I like tea", alice, memory.AddOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Results).To(BeEmpty())
			Expect(f.llm.Prompts).To(HaveLen(2))
			Expect(f.vectors.Len()).To(Equal(0))
		})
	})

	It("returns nothing when no facts are extracted", func() {
		f := newFixture(memory.Policy{}, `{"facts": []}`)

		result, err := f.engine.Add(ctx, "The weather is nice today.", alice, memory.AddOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Results).To(BeEmpty())
		Expect(f.llm.Prompts).To(HaveLen(1))
	})

	It("fails the whole add when retrieval fails", func() {
		f := newFixture(memory.Policy{}, `{"facts": ["User likes tea"]}`)
		f.vectors.FailSearch = true

		_, err := f.engine.Add(ctx, "I like tea", alice, memory.AddOptions{})
		Expect(err).To(MatchError(memory.ErrRetrieval))
	})

	It("confines a failed mutation to its candidate", func() {
		f := newFixture(memory.Policy{},
			`{"facts": ["User likes tea", "User has a dog"]}`,
			`{"memory": [{"id": "0", "event": "UPDATE", "text": "User prefers oolong"},
				{"id": "", "event": "ADD", "text": "User has a dog"}]}`)
		f.seed("m1", "User enjoys beverages", alice, nil, time.Now().UTC().Add(-time.Hour))

		// The update rewrites the text, forcing a re-embed that fails.
		// Its sibling must still land.
		f.embedder.FailOn = "User prefers oolong"

		result, err := f.engine.Add(ctx, "I like tea and I have a dog", alice, memory.AddOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Results).To(HaveLen(2))
		Expect(result.Results[0].Err).To(HaveOccurred())
		Expect(result.Results[1].Event).To(Equal(memory.EventAdd))
		Expect(result.Results[1].Err).NotTo(HaveOccurred())
	})

	Context("with inference skipped", func() {
		It("stores each message verbatim without any model call", func() {
			f := newFixture(memory.Policy{})

			input := []memory.Message{
				{Role: "user", Content: "raw note one"},
				{Role: "user", Content: "raw note two"},
			}
			result, err := f.engine.Add(ctx, input, alice, memory.AddOptions{SkipInference: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Results).To(HaveLen(2))
			Expect(result.Results[0].Text).To(Equal("raw note one"))
			Expect(f.llm.Prompts).To(BeEmpty())
			Expect(f.vectors.Len()).To(Equal(2))
		})
	})

	It("attaches call metadata to created memories", func() {
		f := newFixture(memory.Policy{}, `{"facts": ["User likes tea"]}`)

		result, err := f.engine.Add(ctx, "I like tea", alice, memory.AddOptions{
			Metadata: map[string]string{"source": "onboarding"},
		})
		Expect(err).NotTo(HaveOccurred())

		record, err := f.vectors.Get(ctx, result.Results[0].ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(record.Payload.Metadata).To(HaveKeyWithValue("source", "onboarding"))
	})

	It("stamps mutation events with the scope", func() {
		f := newFixture(memory.Policy{}, `{"facts": ["User likes tea"]}`)

		_, err := f.engine.Add(ctx, "I like tea", alice, memory.AddOptions{})
		Expect(err).NotTo(HaveOccurred())

		events := f.events.Events()
		Expect(events).To(HaveLen(1))
		Expect(events[0].Scope.UserID).To(Equal("alice"))
		Expect(events[0].Mutation.Event).To(Equal(string(memory.EventAdd)))
		Expect(events[0].EventID).NotTo(BeEmpty())
	})

	Context("with a graph store configured", func() {
		It("builds graph memory alongside the vector path", func() {
			f := newGraphFixture(memory.Policy{},
				`{"entities": [{"name": "alice", "type": "person"}, {"name": "Acme", "type": "organization"}],
				  "relations": [{"source": "alice", "relationship": "WORKS_AT", "target": "Acme"}]}`)

			input := []memory.Message{{Role: "user", Content: "I work at Acme"}}
			result, err := f.engine.Add(ctx, input, alice, memory.AddOptions{SkipInference: true})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Relations).To(HaveLen(1))
			Expect(result.Relations[0].Source).To(Equal("alice"))
			Expect(result.Relations[0].Relationship).To(Equal("WORKS_AT"))
			Expect(result.Relations[0].Target).To(Equal("Acme"))

			nodes, err := f.graph.Nodes(ctx, "alice", "", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(nodes).To(HaveLen(2))
			Expect(f.graph.Edges()).To(HaveLen(1))
		})

		It("never fails the add when the graph path breaks", func() {
			f := newGraphFixture(memory.Policy{}, `not valid graph json`)

			input := []memory.Message{{Role: "user", Content: "I work at Acme"}}
			result, err := f.engine.Add(ctx, input, alice, memory.AddOptions{SkipInference: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Relations).To(BeEmpty())
			Expect(result.Results).To(HaveLen(1))
		})

		It("raises edge confidence on repeated observation without duplicating", func() {
			graphJSON := `{"entities": [{"name": "alice", "type": "person"}],
				"relations": [{"source": "alice", "relationship": "WORKS_AT", "target": "Acme"}]}`
			f := newGraphFixture(memory.Policy{}, graphJSON, graphJSON)

			input := []memory.Message{{Role: "user", Content: "I work at Acme"}}
			_, err := f.engine.Add(ctx, input, alice, memory.AddOptions{SkipInference: true})
			Expect(err).NotTo(HaveOccurred())
			_, err = f.engine.Add(ctx, input, alice, memory.AddOptions{SkipInference: true})
			Expect(err).NotTo(HaveOccurred())

			edges := f.graph.Edges()
			Expect(edges).To(HaveLen(1))
			Expect(edges[0].Confidence).To(BeNumerically(">", 0.5))
			Expect(edges[0].Confidence).To(BeNumerically("<=", 1.0))
		})
	})
})
