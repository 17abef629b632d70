package ports

import (
	"context"
	"image"
	"time"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
)

// PayloadEncoder converts a document into its transport encoding.
type PayloadEncoder interface {
	Encode(ctx context.Context, doc domain.Document) (domain.EncodedPayload, error)
}

// QualityAssessor asks the model whether a document image is fit for OCR.
type QualityAssessor interface {
	AssessQuality(ctx context.Context, payload domain.EncodedPayload) (domain.QualityReport, error)
}

// FieldExtractor asks the model for a flat label->value mapping.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, payload domain.EncodedPayload, hint domain.DocumentTypeHint) (domain.FieldMap, error)
}

// FieldVerifier asks the model to check user-edited values against the document.
type FieldVerifier interface {
	VerifyFields(ctx context.Context, payload domain.EncodedPayload, fields domain.FieldMap) (domain.VerificationMap, error)
}

// CaptureDevice hands out live frame streams.
type CaptureDevice interface {
	Acquire(ctx context.Context, constraints domain.CaptureConstraints) (CaptureStream, error)
}

// CaptureStream is a held device stream. Stop must be safe to call more than once.
type CaptureStream interface {
	Ready(ctx context.Context) error
	Frame(ctx context.Context) (image.Image, error)
	Stop() error
}

// EventPublisher emits workflow transitions.
type EventPublisher interface {
	PublishWorkflowEvent(ctx context.Context, event domain.WorkflowEvent) error
}

// EventSubscriber consumes workflow transitions until ctx is done.
type EventSubscriber interface {
	SubscribeWorkflowEvents(ctx context.Context, handler func(context.Context, domain.WorkflowEvent) error) error
}

// ModelCallObserver receives the outcome of every remote model call.
type ModelCallObserver interface {
	ObserveModelCall(operation string, duration time.Duration, err error)
}

// ResultExporter renders a session snapshot as a downloadable file.
type ResultExporter interface {
	ContentType() string
	Export(view domain.SessionView) ([]byte, error)
}

// DocumentLoader reads a document from a path.
type DocumentLoader interface {
	Load(ctx context.Context, path string) (domain.Document, error)
}
