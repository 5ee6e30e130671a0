package qdrant

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/engram/pkg/vector"
)

func scrolledPoint(id, data string) *qdrant.RetrievedPoint {
	return &qdrant.RetrievedPoint{
		Id:      qdrant.NewID(id),
		Payload: payloadToValueMap(vector.Payload{Data: data}),
	}
}

var _ = Describe("appendScrolled", func() {
	const (
		idA = "6ba7b810-9dad-11d1-80b4-00c04fd430a1"
		idB = "6ba7b810-9dad-11d1-80b4-00c04fd430a2"
		idC = "6ba7b810-9dad-11d1-80b4-00c04fd430a3"
		idD = "6ba7b810-9dad-11d1-80b4-00c04fd430a4"
	)

	It("converts a page into records in order", func() {
		seen := map[string]bool{}
		records := appendScrolled(nil, seen, []*qdrant.RetrievedPoint{
			scrolledPoint(idA, "User likes tea"),
			scrolledPoint(idB, "User has a dog"),
		})

		Expect(records).To(HaveLen(2))
		Expect(records[0].ID).To(Equal(idA))
		Expect(records[0].Payload.Data).To(Equal("User likes tea"))
		Expect(records[1].ID).To(Equal(idB))
	})

	It("drops the boundary point repeated across pages", func() {
		seen := map[string]bool{}

		records := appendScrolled(nil, seen, []*qdrant.RetrievedPoint{
			scrolledPoint(idA, "one"),
			scrolledPoint(idB, "two"),
			scrolledPoint(idC, "three"),
		})

		// The next page resumes from the last id of the previous one.
		records = appendScrolled(records, seen, []*qdrant.RetrievedPoint{
			scrolledPoint(idC, "three"),
			scrolledPoint(idD, "four"),
		})

		Expect(records).To(HaveLen(4))

		ids := make([]string, len(records))
		for i, r := range records {
			ids[i] = r.ID
		}
		Expect(ids).To(Equal([]string{idA, idB, idC, idD}))
	})
})
