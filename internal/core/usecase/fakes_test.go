package usecase

import (
	"context"
	"encoding/base64"
	"sync"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
)

type encoderFake struct {
	err   error
	calls int
}

func (f *encoderFake) Encode(_ context.Context, doc domain.Document) (domain.EncodedPayload, error) {
	f.calls++
	if f.err != nil {
		return domain.EncodedPayload{}, f.err
	}
	return domain.EncodedPayload{
		Data:     base64.StdEncoding.EncodeToString(doc.Content),
		MimeType: doc.MimeType,
	}, nil
}

type assessorFake struct {
	report domain.QualityReport
	err    error
	calls  int
}

func (f *assessorFake) AssessQuality(context.Context, domain.EncodedPayload) (domain.QualityReport, error) {
	f.calls++
	if f.err != nil {
		return domain.QualityReport{}, f.err
	}
	return f.report, nil
}

type extractorFake struct {
	fields   domain.FieldMap
	err      error
	lastHint domain.DocumentTypeHint
	calls    int
}

func (f *extractorFake) ExtractFields(_ context.Context, _ domain.EncodedPayload, hint domain.DocumentTypeHint) (domain.FieldMap, error) {
	f.calls++
	f.lastHint = hint
	if f.err != nil {
		return nil, f.err
	}
	return f.fields.Clone(), nil
}

type verifierFake struct {
	verdicts domain.VerificationMap
	err      error
	sent     domain.FieldMap
	calls    int

	// started and release, when set, hold the call open until the test lets it go.
	started chan struct{}
	release chan struct{}
}

func (f *verifierFake) VerifyFields(_ context.Context, _ domain.EncodedPayload, fields domain.FieldMap) (domain.VerificationMap, error) {
	f.calls++
	f.sent = fields.Clone()
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.verdicts.Clone(), nil
}

type eventsFake struct {
	mu     sync.Mutex
	events []domain.WorkflowEvent
	err    error
}

func (f *eventsFake) PublishWorkflowEvent(_ context.Context, event domain.WorkflowEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func (f *eventsFake) states() []domain.WorkflowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.WorkflowState, 0, len(f.events))
	for _, event := range f.events {
		out = append(out, event.To)
	}
	return out
}

type workflowFixture struct {
	encoder   *encoderFake
	assessor  *assessorFake
	extractor *extractorFake
	verifier  *verifierFake
	events    *eventsFake
}

func newWorkflowFixture() *workflowFixture {
	return &workflowFixture{
		encoder: &encoderFake{},
		assessor: &assessorFake{report: domain.QualityReport{
			IsGoodQuality: true,
			Score:         92,
			Feedback:      []string{"Sharp", "Well lit"},
		}},
		extractor: &extractorFake{fields: domain.FieldMap{
			"Invoice Number": "INV-001",
			"Total Amount":   "$42.00",
		}},
		verifier: &verifierFake{verdicts: domain.VerificationMap{
			"Invoice Number": {Match: true},
			"Total Amount":   {Match: false, Reason: "Image shows $42.00"},
		}},
		events: &eventsFake{},
	}
}

func (f *workflowFixture) deps() WorkflowDependencies {
	return WorkflowDependencies{
		Encoder:   f.encoder,
		Assessor:  f.assessor,
		Extractor: f.extractor,
		Verifier:  f.verifier,
		Events:    f.events,
	}
}

func (f *workflowFixture) workflow() *Workflow {
	return NewWorkflow("session-1", f.deps())
}

func invoicePNG() domain.Document {
	return domain.Document{
		Filename: "invoice.png",
		MimeType: "image/png",
		Content:  []byte("png-bytes"),
	}
}
