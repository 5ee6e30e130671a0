package vector_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/engram/pkg/vector"
)

var _ = Describe("Filter.Matches", func() {
	payload := vector.Payload{
		Data:     "User likes tea",
		UserID:   "alice",
		AgentID:  "helper",
		RunID:    "run-1",
		Metadata: map[string]string{"category": "food"},
		State:    vector.StateActive,
	}

	It("matches when every set component agrees", func() {
		f := vector.Filter{UserID: "alice", AgentID: "helper"}
		Expect(f.Matches(payload)).To(BeTrue())
	})

	It("treats unset components as wildcards", func() {
		Expect(vector.Filter{}.Matches(payload)).To(BeTrue())
	})

	It("rejects a different scope", func() {
		Expect(vector.Filter{UserID: "bob"}.Matches(payload)).To(BeFalse())
		Expect(vector.Filter{UserID: "alice", RunID: "run-2"}.Matches(payload)).To(BeFalse())
	})

	It("excludes soft-deleted payloads unless asked", func() {
		tombstone := payload
		tombstone.Deleted = true

		Expect(vector.Filter{UserID: "alice"}.Matches(tombstone)).To(BeFalse())
		Expect(vector.Filter{UserID: "alice", IncludeDeleted: true}.Matches(tombstone)).To(BeTrue())
	})

	It("restricts by draft state when set", func() {
		Expect(vector.Filter{State: vector.StateActive}.Matches(payload)).To(BeTrue())
		Expect(vector.Filter{State: vector.StateProcessing}.Matches(payload)).To(BeFalse())
	})

	It("requires all metadata entries to match", func() {
		Expect(vector.Filter{Metadata: map[string]string{"category": "food"}}.Matches(payload)).To(BeTrue())
		Expect(vector.Filter{Metadata: map[string]string{"category": "work"}}.Matches(payload)).To(BeFalse())
		Expect(vector.Filter{Metadata: map[string]string{
			"category": "food",
			"missing":  "x",
		}}.Matches(payload)).To(BeFalse())
	})
})
