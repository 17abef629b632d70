package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
	"github.com/kirillkom/docverify-assistant/internal/core/ports"
)

const (
	opSelectDocument      = "select_document"
	opSetDocumentType     = "set_document_type"
	opRequestExtraction   = "request_extraction"
	opEditField           = "edit_field"
	opRequestVerification = "request_verification"
)

var (
	errSessionBusy         = errors.New("session is busy, wait for the current operation to finish")
	errNoDocument          = errors.New("please select a file first")
	errNoDocumentToVerify  = errors.New("an image is required for verification")
	errNoFieldsToVerify    = errors.New("there are no fields to verify")
	errNoFieldsToEdit      = errors.New("there are no extracted fields to edit")
	errBlankLabel          = errors.New("field label must not be blank")
	errStaleVerification   = errors.New("fields changed while verification was running, verify again")
	errNoMatchingVerdicts  = errors.New("verifier returned no verdict for any extracted field")
	errNoPreview           = errors.New("document has no image preview")
	errExtractionNotIdle   = errors.New("extraction is only available before editing starts")
	errVerificationNotEdit = errors.New("verification is only available while editing")
	errHintNotIdle         = errors.New("document type can only be changed before extraction")
)

type WorkflowDependencies struct {
	Encoder   ports.PayloadEncoder
	Assessor  ports.QualityAssessor
	Extractor ports.FieldExtractor
	Verifier  ports.FieldVerifier
	Events    ports.EventPublisher
	Logger    *slog.Logger
	Now       func() time.Time
}

// Workflow owns the document and field data of one session and governs the
// transitions between idle, quality analysis, extraction, editing and
// verification. The mutex only guards state; it is never held across remote
// calls, the busy states gate concurrent actions instead.
type Workflow struct {
	id        string
	encoder   ports.PayloadEncoder
	assessor  ports.QualityAssessor
	extractor ports.FieldExtractor
	verifier  ports.FieldVerifier
	events    ports.EventPublisher
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	state     domain.WorkflowState
	doc       *domain.Document
	hint      domain.DocumentTypeHint
	quality   *domain.QualityReport
	fields    domain.FieldMap
	verdicts  domain.VerificationMap
	revision  uint64
	lastError string
	updatedAt time.Time
}

func NewWorkflow(id string, deps WorkflowDependencies) *Workflow {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Workflow{
		id:        id,
		encoder:   deps.Encoder,
		assessor:  deps.Assessor,
		extractor: deps.Extractor,
		verifier:  deps.Verifier,
		events:    deps.Events,
		logger:    logger.With("session_id", id),
		now:       now,
		state:     domain.StateIdle,
		hint:      domain.HintGeneric,
		fields:    domain.FieldMap{},
		verdicts:  domain.VerificationMap{},
		updatedAt: now().UTC(),
	}
}

func (w *Workflow) ID() string {
	return w.id
}

func (w *Workflow) State() domain.WorkflowState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Workflow) View() domain.SessionView {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.viewLocked()
}

// SelectDocument replaces the current document, discards all data derived
// from the previous one and runs the quality analysis.
func (w *Workflow) SelectDocument(ctx context.Context, doc domain.Document) (domain.SessionView, error) {
	w.mu.Lock()
	if w.state.Busy() {
		view := w.viewLocked()
		w.mu.Unlock()
		return view, domain.WrapError(domain.ErrInvalidState, opSelectDocument, errSessionBusy)
	}

	doc.Content = bytes.Clone(doc.Content)
	if doc.SelectedAt.IsZero() {
		doc.SelectedAt = w.now().UTC()
	}
	w.doc = &doc
	w.fields = domain.FieldMap{}
	w.verdicts = domain.VerificationMap{}
	w.quality = nil
	w.hint = domain.HintGeneric
	w.lastError = ""
	w.revision++
	event := w.moveLocked(opSelectDocument, domain.StateAnalyzingQuality)
	w.mu.Unlock()
	w.publish(ctx, event)

	report, err := w.assess(ctx, doc)

	w.mu.Lock()
	if err != nil {
		w.lastError = err.Error()
	} else {
		cloned := report.Clone()
		w.quality = &cloned
	}
	event = w.moveLocked(opSelectDocument, domain.StateIdle)
	if w.quality != nil {
		score := w.quality.Score
		event.QualityScore = &score
	}
	view := w.viewLocked()
	w.mu.Unlock()
	w.publish(ctx, event)

	return view, err
}

// SetDocumentType records the hint used by the next extraction.
func (w *Workflow) SetDocumentType(ctx context.Context, hint domain.DocumentTypeHint) (domain.SessionView, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	parsed, err := domain.ParseDocumentTypeHint(string(hint))
	if err != nil {
		return w.viewLocked(), err
	}
	if w.doc == nil {
		err := domain.WrapError(domain.ErrMissingInput, opSetDocumentType, errNoDocument)
		w.lastError = err.Error()
		return w.viewLocked(), err
	}
	if w.state.Busy() {
		return w.viewLocked(), domain.WrapError(domain.ErrInvalidState, opSetDocumentType, errSessionBusy)
	}
	if w.state != domain.StateIdle {
		return w.viewLocked(), domain.WrapError(domain.ErrInvalidState, opSetDocumentType, errHintNotIdle)
	}

	w.hint = parsed
	w.updatedAt = w.now().UTC()
	return w.viewLocked(), nil
}

// RequestExtraction asks the model for the document's fields and replaces the
// field map wholesale on success.
func (w *Workflow) RequestExtraction(ctx context.Context) (domain.SessionView, error) {
	w.mu.Lock()
	if w.doc == nil {
		err := domain.WrapError(domain.ErrMissingInput, opRequestExtraction, errNoDocument)
		w.lastError = err.Error()
		view := w.viewLocked()
		w.mu.Unlock()
		return view, err
	}
	if w.state.Busy() {
		view := w.viewLocked()
		w.mu.Unlock()
		return view, domain.WrapError(domain.ErrInvalidState, opRequestExtraction, errSessionBusy)
	}
	if !domain.CanTransition(w.state, domain.StateLoadingExtraction) {
		view := w.viewLocked()
		w.mu.Unlock()
		return view, domain.WrapError(domain.ErrInvalidState, opRequestExtraction, errExtractionNotIdle)
	}

	doc := *w.doc
	hint := w.hint
	w.lastError = ""
	event := w.moveLocked(opRequestExtraction, domain.StateLoadingExtraction)
	w.mu.Unlock()
	w.publish(ctx, event)

	fields, err := w.extract(ctx, doc, hint)

	w.mu.Lock()
	if err != nil {
		w.lastError = err.Error()
		event = w.moveLocked(opRequestExtraction, domain.StateIdle)
	} else {
		w.fields = fields.Clone()
		w.verdicts = domain.VerificationMap{}
		w.revision++
		event = w.moveLocked(opRequestExtraction, domain.StateEditing)
	}
	view := w.viewLocked()
	w.mu.Unlock()
	w.publish(ctx, event)

	return view, err
}

// EditField sets one field value. Any edit after verification invalidates
// every verdict, not only the edited field's.
func (w *Workflow) EditField(ctx context.Context, label, value string) (domain.SessionView, error) {
	w.mu.Lock()
	if strings.TrimSpace(label) == "" {
		view := w.viewLocked()
		w.mu.Unlock()
		return view, domain.WrapError(domain.ErrInvalidInput, opEditField, errBlankLabel)
	}
	if !w.state.Editable() {
		view := w.viewLocked()
		w.mu.Unlock()
		return view, domain.WrapError(domain.ErrInvalidState, opEditField, errNoFieldsToEdit)
	}

	fields := w.fields.Clone()
	fields[label] = value
	w.fields = fields
	w.revision++
	w.updatedAt = w.now().UTC()

	var event *domain.WorkflowEvent
	if w.state == domain.StateVerified {
		w.verdicts = domain.VerificationMap{}
		w.lastError = ""
		moved := w.moveLocked(opEditField, domain.StateEditing)
		event = &moved
	}
	view := w.viewLocked()
	w.mu.Unlock()

	if event != nil {
		w.publish(ctx, *event)
	}
	return view, nil
}

// RequestVerification sends the full field map to the model and swaps in the
// returned verdicts. Failures return to editing without touching the fields.
func (w *Workflow) RequestVerification(ctx context.Context) (domain.SessionView, error) {
	w.mu.Lock()
	if w.doc == nil {
		err := domain.WrapError(domain.ErrMissingInput, opRequestVerification, errNoDocumentToVerify)
		w.lastError = err.Error()
		view := w.viewLocked()
		w.mu.Unlock()
		return view, err
	}
	if w.state.Busy() {
		view := w.viewLocked()
		w.mu.Unlock()
		return view, domain.WrapError(domain.ErrInvalidState, opRequestVerification, errSessionBusy)
	}
	if w.state != domain.StateEditing {
		view := w.viewLocked()
		w.mu.Unlock()
		return view, domain.WrapError(domain.ErrInvalidState, opRequestVerification, errVerificationNotEdit)
	}
	if len(w.fields) == 0 {
		err := domain.WrapError(domain.ErrMissingInput, opRequestVerification, errNoFieldsToVerify)
		w.lastError = err.Error()
		view := w.viewLocked()
		w.mu.Unlock()
		return view, err
	}

	doc := *w.doc
	fields := w.fields.Clone()
	revision := w.revision
	w.lastError = ""
	event := w.moveLocked(opRequestVerification, domain.StateVerifying)
	w.mu.Unlock()
	w.publish(ctx, event)

	verdicts, err := w.verify(ctx, doc, fields)

	w.mu.Lock()
	switch {
	case err != nil:
		w.lastError = err.Error()
		event = w.moveLocked(opRequestVerification, domain.StateEditing)
	case w.revision != revision:
		err = domain.WrapError(domain.ErrInvalidState, opRequestVerification, errStaleVerification)
		w.lastError = err.Error()
		w.verdicts = domain.VerificationMap{}
		event = w.moveLocked(opRequestVerification, domain.StateEditing)
	case len(verdicts.Restrict(w.fields)) == 0:
		err = domain.WrapError(domain.ErrMalformedResponse, opRequestVerification, errNoMatchingVerdicts)
		w.lastError = err.Error()
		event = w.moveLocked(opRequestVerification, domain.StateEditing)
	default:
		w.verdicts = verdicts.Restrict(w.fields)
		event = w.moveLocked(opRequestVerification, domain.StateVerified)
		accuracy := w.verdicts.Summary().Accuracy
		event.Accuracy = &accuracy
	}
	view := w.viewLocked()
	w.mu.Unlock()
	w.publish(ctx, event)

	return view, err
}

// Preview returns the current document if it has an image preview.
func (w *Workflow) Preview() (domain.Document, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.doc == nil {
		return domain.Document{}, domain.WrapError(domain.ErrMissingInput, "preview", errNoDocument)
	}
	if !w.doc.HasPreview() {
		return domain.Document{}, domain.WrapError(domain.ErrInvalidInput, "preview", errNoPreview)
	}
	doc := *w.doc
	doc.Content = bytes.Clone(w.doc.Content)
	return doc, nil
}

// Release drops the document and all derived data at session end.
func (w *Workflow) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.doc = nil
	w.quality = nil
	w.fields = domain.FieldMap{}
	w.verdicts = domain.VerificationMap{}
}

func (w *Workflow) assess(ctx context.Context, doc domain.Document) (domain.QualityReport, error) {
	payload, err := w.encode(ctx, doc)
	if err != nil {
		return domain.QualityReport{}, err
	}
	report, err := w.assessor.AssessQuality(ctx, payload)
	if err != nil {
		return domain.QualityReport{}, fmt.Errorf("analyze image quality: %w", err)
	}
	return report, nil
}

func (w *Workflow) extract(ctx context.Context, doc domain.Document, hint domain.DocumentTypeHint) (domain.FieldMap, error) {
	payload, err := w.encode(ctx, doc)
	if err != nil {
		return nil, err
	}
	fields, err := w.extractor.ExtractFields(ctx, payload, hint)
	if err != nil {
		return nil, fmt.Errorf("extract fields: %w", err)
	}
	if fields == nil {
		fields = domain.FieldMap{}
	}
	return fields, nil
}

func (w *Workflow) verify(ctx context.Context, doc domain.Document, fields domain.FieldMap) (domain.VerificationMap, error) {
	payload, err := w.encode(ctx, doc)
	if err != nil {
		return nil, err
	}
	verdicts, err := w.verifier.VerifyFields(ctx, payload, fields)
	if err != nil {
		return nil, fmt.Errorf("verify fields: %w", err)
	}
	if verdicts == nil {
		verdicts = domain.VerificationMap{}
	}
	return verdicts, nil
}

func (w *Workflow) encode(ctx context.Context, doc domain.Document) (domain.EncodedPayload, error) {
	payload, err := w.encoder.Encode(ctx, doc)
	if err != nil {
		return domain.EncodedPayload{}, fmt.Errorf("encode document: %w", err)
	}
	return payload, nil
}

// moveLocked performs a transition from the legal edge table. Callers check
// preconditions first, so an illegal edge here is a programming error.
func (w *Workflow) moveLocked(operation string, to domain.WorkflowState) domain.WorkflowEvent {
	from := w.state
	if !domain.CanTransition(from, to) {
		panic(fmt.Sprintf("workflow: illegal transition %s -> %s during %s", from, to, operation))
	}
	w.state = to
	w.updatedAt = w.now().UTC()

	w.logger.Info("workflow.transition",
		"operation", operation,
		"from", from.String(),
		"to", to.String(),
	)
	return domain.WorkflowEvent{
		SessionID: w.id,
		Operation: operation,
		From:      from,
		To:        to,
		Error:     w.lastError,
		At:        w.updatedAt,
	}
}

func (w *Workflow) publish(ctx context.Context, event domain.WorkflowEvent) {
	if w.events == nil {
		return
	}
	if err := w.events.PublishWorkflowEvent(ctx, event); err != nil {
		w.logger.Warn("workflow.event_publish_failed",
			"operation", event.Operation,
			"to", event.To.String(),
			"error", err,
		)
	}
}

func (w *Workflow) viewLocked() domain.SessionView {
	view := domain.SessionView{
		ID:           w.id,
		State:        w.state,
		DocumentType: w.hint,
		Fields:       w.fields.Clone(),
		Verification: w.verdicts.Clone(),
		Error:        w.lastError,
		UpdatedAt:    w.updatedAt,
	}
	if w.doc != nil {
		info := w.doc.Info()
		view.Document = &info
	}
	if w.quality != nil {
		report := w.quality.Clone()
		view.Quality = &report
		view.QualitySeverity = report.Severity()
	}
	if w.state == domain.StateVerified {
		summary := w.verdicts.Summary()
		view.Summary = &summary
	}
	return view
}
