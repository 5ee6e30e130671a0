// Package nop provides a no-op event stream publisher, used when no
// streaming backend is configured.
package nop

import (
	"context"

	"github.com/papercomputeco/engram/pkg/eventstream"
)

// Publisher discards all events.
type Publisher struct{}

// NewPublisher creates a no-op publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishMutation discards the event.
func (p *Publisher) PublishMutation(_ context.Context, _ *eventstream.MemoryMutatedEvent) error {
	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}

var _ eventstream.Publisher = (*Publisher)(nil)
