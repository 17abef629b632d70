package ports

import (
	"context"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
)

// SessionService is the inbound contract for the document workflow.
// Operations that change state return the resulting view even when they fail,
// so presenters can render the rolled-back state together with the error.
type SessionService interface {
	Create(ctx context.Context) (domain.SessionView, error)
	View(ctx context.Context, sessionID string) (domain.SessionView, error)
	Close(ctx context.Context, sessionID string) error

	SelectDocument(ctx context.Context, sessionID string, doc domain.Document) (domain.SessionView, error)
	SetDocumentType(ctx context.Context, sessionID string, hint domain.DocumentTypeHint) (domain.SessionView, error)
	RequestExtraction(ctx context.Context, sessionID string) (domain.SessionView, error)
	EditField(ctx context.Context, sessionID, label, value string) (domain.SessionView, error)
	RequestVerification(ctx context.Context, sessionID string) (domain.SessionView, error)

	// Preview returns the current document when it has an image preview.
	Preview(ctx context.Context, sessionID string) (domain.Document, error)
}

// CaptureService is the inbound contract for camera capture inside a session.
type CaptureService interface {
	OpenCapture(ctx context.Context, sessionID string) (domain.CaptureView, error)
	CaptureStatus(ctx context.Context, sessionID string) (domain.CaptureView, error)
	CaptureFrame(ctx context.Context, sessionID string) ([]byte, error)
	TakeSnapshot(ctx context.Context, sessionID string) (domain.CaptureView, error)
	RetakeCapture(ctx context.Context, sessionID string) (domain.CaptureView, error)
	ConfirmCapture(ctx context.Context, sessionID string) (domain.SessionView, error)
	CloseCapture(ctx context.Context, sessionID string) (domain.CaptureView, error)
}

// DocumentAnalyzer runs single stateless model operations on a document.
type DocumentAnalyzer interface {
	Assess(ctx context.Context, doc domain.Document) (domain.QualityReport, error)
	Extract(ctx context.Context, doc domain.Document, hint domain.DocumentTypeHint) (domain.FieldMap, error)
	Verify(ctx context.Context, doc domain.Document, fields domain.FieldMap) (domain.VerificationMap, error)
}
