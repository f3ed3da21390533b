package nop

import (
	"context"

	"github.com/papercomputeco/keepsake/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishFact validates input and otherwise does nothing.
func (p *Publisher) PublishFact(_ context.Context, event *eventstream.FactPersistedEvent) error {
	if event == nil {
		return eventstream.ErrNilFactEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}

var _ eventstream.Publisher = (*Publisher)(nil)
