package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/engram/pkg/eventstream"
)

// MockPublisher captures published mutation events.
type MockPublisher struct {
	mu     sync.Mutex
	events []eventstream.MemoryMutatedEvent
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) PublishMutation(_ context.Context, event *eventstream.MemoryMutatedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *event)
	return nil
}

func (m *MockPublisher) Close() error {
	return nil
}

// Events returns the captured events in publish order.
func (m *MockPublisher) Events() []eventstream.MemoryMutatedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]eventstream.MemoryMutatedEvent, len(m.events))
	copy(out, m.events)
	return out
}

var _ eventstream.Publisher = (*MockPublisher)(nil)
