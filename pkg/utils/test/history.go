package testutils

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/papercomputeco/engram/pkg/history"
)

// MockHistoryStore is an in-memory append-only ledger.
type MockHistoryStore struct {
	mu      sync.Mutex
	entries []history.Entry

	// FailAppend causes Append to return an error.
	FailAppend bool
}

func NewMockHistoryStore() *MockHistoryStore {
	return &MockHistoryStore{}
}

func (m *MockHistoryStore) Append(_ context.Context, entry history.Entry) error {
	if m.FailAppend {
		return fmt.Errorf("mock append failure")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockHistoryStore) Query(_ context.Context, memoryID string) ([]history.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []history.Entry
	for _, entry := range m.entries {
		if entry.MemoryID == memoryID {
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MockHistoryStore) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	return nil
}

func (m *MockHistoryStore) Close() error {
	return nil
}

// All returns every entry in append order.
func (m *MockHistoryStore) All() []history.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]history.Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

var _ history.Store = (*MockHistoryStore)(nil)
