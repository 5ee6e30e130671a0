// Package eventstream publishes memory mutation events to a streaming
// backend so external systems can follow store changes.
package eventstream

import "context"

// Publisher publishes mutation events to an event stream backend.
type Publisher interface {
	PublishMutation(ctx context.Context, event *MemoryMutatedEvent) error
	Close() error
}
