package metrics

import (
	"context"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
)

// WorkflowEventRecorder turns workflow events into metrics. It is registered
// as one more event publisher.
type WorkflowEventRecorder struct {
	metrics *HTTPServerMetrics
}

func NewWorkflowEventRecorder(metrics *HTTPServerMetrics) *WorkflowEventRecorder {
	return &WorkflowEventRecorder{metrics: metrics}
}

func (r *WorkflowEventRecorder) PublishWorkflowEvent(_ context.Context, event domain.WorkflowEvent) error {
	r.metrics.RecordTransition(event)
	return nil
}
