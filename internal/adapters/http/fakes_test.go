package httpadapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/kirillkom/docverify-assistant/internal/config"
	"github.com/kirillkom/docverify-assistant/internal/core/domain"
)

// sessionsFake serves both the session and the capture contract.
type sessionsFake struct {
	mu       sync.Mutex
	views    map[string]domain.SessionView
	docs     map[string]domain.Document
	lastDoc  domain.Document
	lastHint domain.DocumentTypeHint
	edits    map[string]string

	createErr  error
	extractErr error
	verifyErr  error

	captureView domain.CaptureView
	captureErr  error
	frame       []byte
}

func newSessionsFake() *sessionsFake {
	return &sessionsFake{
		views: map[string]domain.SessionView{},
		docs:  map[string]domain.Document{},
		edits: map[string]string{},
	}
}

func (f *sessionsFake) withSession(id string, state domain.WorkflowState) *sessionsFake {
	f.views[id] = domain.SessionView{
		ID:           id,
		State:        state,
		DocumentType: domain.HintGeneric,
		Fields:       domain.FieldMap{},
		Verification: domain.VerificationMap{},
	}
	return f
}

func (f *sessionsFake) lookup(op, id string) (domain.SessionView, error) {
	view, ok := f.views[id]
	if !ok {
		return domain.SessionView{}, domain.WrapError(domain.ErrSessionNotFound, op, errors.New("id="+id))
	}
	return view, nil
}

func (f *sessionsFake) Create(context.Context) (domain.SessionView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return domain.SessionView{}, f.createErr
	}
	f.withSession("s-new", domain.StateIdle)
	return f.views["s-new"], nil
}

func (f *sessionsFake) View(_ context.Context, id string) (domain.SessionView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookup("view session", id)
}

func (f *sessionsFake) Close(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.lookup("close session", id); err != nil {
		return err
	}
	delete(f.views, id)
	return nil
}

func (f *sessionsFake) SelectDocument(_ context.Context, id string, doc domain.Document) (domain.SessionView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	view, err := f.lookup("select document", id)
	if err != nil {
		return view, err
	}
	f.lastDoc = doc
	f.docs[id] = doc
	info := doc.Info()
	view.Document = &info
	view.Quality = &domain.QualityReport{IsGoodQuality: true, Score: 90, Feedback: []string{"Excellent image quality."}}
	view.QualitySeverity = view.Quality.Severity()
	f.views[id] = view
	return view, nil
}

func (f *sessionsFake) SetDocumentType(_ context.Context, id string, hint domain.DocumentTypeHint) (domain.SessionView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	view, err := f.lookup("set document type", id)
	if err != nil {
		return view, err
	}
	f.lastHint = hint
	view.DocumentType = hint
	f.views[id] = view
	return view, nil
}

func (f *sessionsFake) RequestExtraction(_ context.Context, id string) (domain.SessionView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	view, err := f.lookup("request extraction", id)
	if err != nil {
		return view, err
	}
	if f.extractErr != nil {
		view.Error = f.extractErr.Error()
		return view, f.extractErr
	}
	view.State = domain.StateEditing
	view.Fields = domain.FieldMap{"Invoice Number": "INV-001", "Total Amount": "$100.00"}
	f.views[id] = view
	return view, nil
}

func (f *sessionsFake) EditField(_ context.Context, id, label, value string) (domain.SessionView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	view, err := f.lookup("edit field", id)
	if err != nil {
		return view, err
	}
	if _, ok := view.Fields[label]; !ok {
		return view, domain.WrapError(domain.ErrInvalidInput, "edit field", errors.New("unknown field "+label))
	}
	f.edits[label] = value
	view.Fields[label] = value
	return view, nil
}

func (f *sessionsFake) RequestVerification(_ context.Context, id string) (domain.SessionView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	view, err := f.lookup("request verification", id)
	if err != nil {
		return view, err
	}
	if f.verifyErr != nil {
		view.State = domain.StateEditing
		view.Error = f.verifyErr.Error()
		return view, f.verifyErr
	}
	view.State = domain.StateVerified
	view.Verification = domain.VerificationMap{"Invoice Number": {Match: true}}
	summary := view.Verification.Summary()
	view.Summary = &summary
	return view, nil
}

func (f *sessionsFake) Preview(_ context.Context, id string) (domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.lookup("preview", id); err != nil {
		return domain.Document{}, err
	}
	doc, ok := f.docs[id]
	if !ok {
		return domain.Document{}, domain.WrapError(domain.ErrMissingInput, "preview", errors.New("no document selected"))
	}
	if !doc.HasPreview() {
		return domain.Document{}, domain.WrapError(domain.ErrInvalidInput, "preview", errors.New("document has no image preview"))
	}
	return doc, nil
}

func (f *sessionsFake) captureResult(op, id string) (domain.CaptureView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.lookup(op, id); err != nil {
		return domain.CaptureView{}, err
	}
	if f.captureErr != nil {
		return domain.CaptureView{}, f.captureErr
	}
	return f.captureView, nil
}

func (f *sessionsFake) OpenCapture(_ context.Context, id string) (domain.CaptureView, error) {
	return f.captureResult("open capture", id)
}

func (f *sessionsFake) CaptureStatus(_ context.Context, id string) (domain.CaptureView, error) {
	return f.captureResult("capture status", id)
}

func (f *sessionsFake) CaptureFrame(_ context.Context, id string) ([]byte, error) {
	if _, err := f.captureResult("capture frame", id); err != nil {
		return nil, err
	}
	return f.frame, nil
}

func (f *sessionsFake) TakeSnapshot(_ context.Context, id string) (domain.CaptureView, error) {
	return f.captureResult("take snapshot", id)
}

func (f *sessionsFake) RetakeCapture(_ context.Context, id string) (domain.CaptureView, error) {
	return f.captureResult("retake capture", id)
}

func (f *sessionsFake) ConfirmCapture(ctx context.Context, id string) (domain.SessionView, error) {
	if _, err := f.captureResult("confirm capture", id); err != nil {
		return domain.SessionView{}, err
	}
	return f.SelectDocument(ctx, id, domain.Document{Filename: "scan.jpeg", MimeType: "image/jpeg", Content: []byte{0xff, 0xd8}})
}

func (f *sessionsFake) CloseCapture(_ context.Context, id string) (domain.CaptureView, error) {
	return f.captureResult("close capture", id)
}

type exporterFake struct {
	exported []domain.SessionView
	err      error
}

func (f *exporterFake) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (f *exporterFake) Export(view domain.SessionView) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.exported = append(f.exported, view)
	return []byte("PK-xlsx"), nil
}

func newTestHandler(cfg config.Config, sessions *sessionsFake) http.Handler {
	return newTestRouter(cfg, sessions, &exporterFake{}).Handler()
}

func newTestRouter(cfg config.Config, sessions *sessionsFake, exporter *exporterFake) *Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(cfg, sessions, sessions, exporter, nil, logger)
}
