package queue

import (
	"context"
	"errors"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
	"github.com/kirillkom/docverify-assistant/internal/core/ports"
)

// Fanout delivers every event to all publishers and joins their errors.
type Fanout struct {
	publishers []ports.EventPublisher
}

func NewFanout(publishers ...ports.EventPublisher) *Fanout {
	out := make([]ports.EventPublisher, 0, len(publishers))
	for _, publisher := range publishers {
		if publisher != nil {
			out = append(out, publisher)
		}
	}
	return &Fanout{publishers: out}
}

func (f *Fanout) PublishWorkflowEvent(ctx context.Context, event domain.WorkflowEvent) error {
	var errs []error
	for _, publisher := range f.publishers {
		if err := publisher.PublishWorkflowEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) Len() int {
	return len(f.publishers)
}
