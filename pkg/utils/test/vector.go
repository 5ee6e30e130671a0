package testutils

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/papercomputeco/engram/pkg/vector"
)

// MockVectorDriver is an in-memory vector driver. Search ranks by cosine
// similarity over the stored embeddings, so tests control ranking entirely
// through the vectors they store.
type MockVectorDriver struct {
	mu      sync.Mutex
	records map[string]vector.Record

	// FailSearch causes Search to return an error.
	FailSearch bool

	// FailUpsert causes Upsert to return an error.
	FailUpsert bool
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{
		records: make(map[string]vector.Record),
	}
}

func (m *MockVectorDriver) Upsert(_ context.Context, records []vector.Record) error {
	if m.FailUpsert {
		return fmt.Errorf("mock upsert failure")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, record := range records {
		m.records[record.ID] = record
	}
	return nil
}

func (m *MockVectorDriver) Search(_ context.Context, embedding []float32, filter vector.Filter, topK int) ([]vector.SearchResult, error) {
	if m.FailSearch {
		return nil, fmt.Errorf("mock search failure")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var results []vector.SearchResult
	for _, record := range m.records {
		if !filter.Matches(record.Payload) {
			continue
		}
		results = append(results, vector.SearchResult{
			Record: record,
			Score:  cosine(embedding, record.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Payload.UpdatedAt.After(results[j].Payload.UpdatedAt)
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *MockVectorDriver) Get(_ context.Context, id string) (*vector.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[id]
	if !ok {
		return nil, vector.ErrNotFound
	}
	return &record, nil
}

func (m *MockVectorDriver) List(_ context.Context, filter vector.Filter) ([]vector.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var records []vector.Record
	for _, record := range m.records {
		if filter.Matches(record.Payload) {
			records = append(records, record)
		}
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func (m *MockVectorDriver) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.records, id)
	}
	return nil
}

func (m *MockVectorDriver) Close() error {
	return nil
}

// Len reports how many records the driver holds.
func (m *MockVectorDriver) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

var _ vector.Driver = (*MockVectorDriver)(nil)
