package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
	"github.com/kirillkom/docverify-assistant/internal/core/ports"
)

var (
	errSessionLimit    = errors.New("session limit reached")
	errCaptureDisabled = errors.New("no capture device configured")
	errCaptureOpen     = errors.New("capture is already open")
	errCaptureMissing  = errors.New("capture is not open")
)

type SessionOptions struct {
	MaxSessions        int
	IdleTTL            time.Duration
	CaptureConstraints domain.CaptureConstraints
	JPEGQuality        int
}

type session struct {
	workflow *Workflow

	mu       sync.Mutex
	capture  *CaptureController
	lastSeen time.Time
	closed   bool
}

// SessionManager keeps the in-memory session registry. Sessions share no
// mutable state; each owns its workflow and at most one capture controller.
type SessionManager struct {
	deps    WorkflowDependencies
	device  ports.CaptureDevice
	options SessionOptions
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// NewSessionManager builds a registry. A nil device disables capture.
func NewSessionManager(deps WorkflowDependencies, device ports.CaptureDevice, options SessionOptions) *SessionManager {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if options.CaptureConstraints.Width == 0 || options.CaptureConstraints.Height == 0 {
		options.CaptureConstraints = domain.DefaultCaptureConstraints()
	}
	return &SessionManager{
		deps:     deps,
		device:   device,
		options:  options,
		logger:   logger,
		now:      now,
		sessions: make(map[string]*session),
	}
}

func (m *SessionManager) Create(_ context.Context) (domain.SessionView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.options.MaxSessions > 0 && len(m.sessions) >= m.options.MaxSessions {
		return domain.SessionView{}, domain.WrapError(domain.ErrInvalidState, "create session", errSessionLimit)
	}

	id := uuid.NewString()
	wf := NewWorkflow(id, m.deps)
	m.sessions[id] = &session{workflow: wf, lastSeen: m.now()}
	m.logger.Info("session.created", "session_id", id, "sessions", len(m.sessions))
	return wf.View(), nil
}

func (m *SessionManager) View(_ context.Context, sessionID string) (domain.SessionView, error) {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	return sess.workflow.View(), nil
}

// Close ends a session, releasing its document and any held device stream.
func (m *SessionManager) Close(_ context.Context, sessionID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return domain.WrapError(domain.ErrSessionNotFound, "close session", fmt.Errorf("id %q", sessionID))
	}
	m.teardown(sess)
	m.logger.Info("session.closed", "session_id", sessionID)
	return nil
}

// Remote calls run detached from the caller's context: an in-flight model call
// is never cancelled, it completes and the state machine advances.

func (m *SessionManager) SelectDocument(ctx context.Context, sessionID string, doc domain.Document) (domain.SessionView, error) {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	return sess.workflow.SelectDocument(context.WithoutCancel(ctx), doc)
}

func (m *SessionManager) SetDocumentType(ctx context.Context, sessionID string, hint domain.DocumentTypeHint) (domain.SessionView, error) {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	return sess.workflow.SetDocumentType(ctx, hint)
}

func (m *SessionManager) RequestExtraction(ctx context.Context, sessionID string) (domain.SessionView, error) {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	return sess.workflow.RequestExtraction(context.WithoutCancel(ctx))
}

func (m *SessionManager) EditField(ctx context.Context, sessionID, label, value string) (domain.SessionView, error) {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	return sess.workflow.EditField(ctx, label, value)
}

func (m *SessionManager) RequestVerification(ctx context.Context, sessionID string) (domain.SessionView, error) {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	return sess.workflow.RequestVerification(context.WithoutCancel(ctx))
}

func (m *SessionManager) Preview(_ context.Context, sessionID string) (domain.Document, error) {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return domain.Document{}, err
	}
	return sess.workflow.Preview()
}

func (m *SessionManager) OpenCapture(ctx context.Context, sessionID string) (domain.CaptureView, error) {
	if m.device == nil {
		return domain.CaptureView{}, domain.WrapError(domain.ErrDeviceUnavailable, "open capture", errCaptureDisabled)
	}
	sess, err := m.lookup(sessionID)
	if err != nil {
		return domain.CaptureView{}, err
	}

	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return domain.CaptureView{}, domain.WrapError(domain.ErrSessionNotFound, "open capture", fmt.Errorf("id %q", sessionID))
	}
	if sess.capture != nil && sess.capture.View().State != domain.CaptureClosed {
		view := sess.capture.View()
		sess.mu.Unlock()
		return view, domain.WrapError(domain.ErrInvalidState, "open capture", errCaptureOpen)
	}
	ctrl := NewCaptureController(m.device, m.options.CaptureConstraints, m.options.JPEGQuality, m.logger.With("session_id", sessionID))
	sess.capture = ctrl
	sess.mu.Unlock()

	return ctrl.Open(ctx)
}

func (m *SessionManager) CaptureStatus(_ context.Context, sessionID string) (domain.CaptureView, error) {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return domain.CaptureView{}, err
	}
	ctrl := sess.captureController()
	if ctrl == nil {
		return domain.CaptureView{State: domain.CaptureClosed}, nil
	}
	return ctrl.View(), nil
}

func (m *SessionManager) CaptureFrame(ctx context.Context, sessionID string) ([]byte, error) {
	ctrl, err := m.openController(sessionID, "capture frame")
	if err != nil {
		return nil, err
	}
	return ctrl.Frame(ctx)
}

func (m *SessionManager) TakeSnapshot(ctx context.Context, sessionID string) (domain.CaptureView, error) {
	ctrl, err := m.openController(sessionID, "take snapshot")
	if err != nil {
		return domain.CaptureView{}, err
	}
	return ctrl.Capture(ctx)
}

func (m *SessionManager) RetakeCapture(ctx context.Context, sessionID string) (domain.CaptureView, error) {
	ctrl, err := m.openController(sessionID, "retake capture")
	if err != nil {
		return domain.CaptureView{}, err
	}
	return ctrl.Retake(ctx)
}

// ConfirmCapture hands the frozen frame to the workflow as a new document and
// ends the capture session.
func (m *SessionManager) ConfirmCapture(ctx context.Context, sessionID string) (domain.SessionView, error) {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	ctrl := sess.captureController()
	if ctrl == nil {
		return sess.workflow.View(), domain.WrapError(domain.ErrInvalidState, "confirm capture", errCaptureMissing)
	}
	if sess.workflow.State().Busy() {
		return sess.workflow.View(), domain.WrapError(domain.ErrInvalidState, "confirm capture", errSessionBusy)
	}

	doc, err := ctrl.Confirm()
	if err != nil {
		return sess.workflow.View(), err
	}
	ctrl.Close()
	return sess.workflow.SelectDocument(context.WithoutCancel(ctx), doc)
}

func (m *SessionManager) CloseCapture(_ context.Context, sessionID string) (domain.CaptureView, error) {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return domain.CaptureView{}, err
	}
	ctrl := sess.captureController()
	if ctrl == nil {
		return domain.CaptureView{State: domain.CaptureClosed}, nil
	}
	return ctrl.Close(), nil
}

// Sweep closes sessions idle for longer than the configured TTL. Sessions with
// an outstanding model call are left alone.
func (m *SessionManager) Sweep() int {
	if m.options.IdleTTL <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.options.IdleTTL)

	m.mu.Lock()
	expired := make([]*session, 0)
	for id, sess := range m.sessions {
		sess.mu.Lock()
		idle := sess.lastSeen.Before(cutoff)
		sess.mu.Unlock()
		if !idle || sess.workflow.State().Busy() {
			continue
		}
		delete(m.sessions, id)
		expired = append(expired, sess)
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	for _, sess := range expired {
		m.teardown(sess)
	}
	if len(expired) > 0 {
		m.logger.Info("session.swept", "expired", len(expired), "sessions", remaining)
	}
	return len(expired)
}

// RunSweeper sweeps on every tick until ctx is done. onSweep, when set,
// receives the number of live sessions after each sweep.
func (m *SessionManager) RunSweeper(ctx context.Context, interval time.Duration, onSweep func(active int)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
			if onSweep != nil {
				onSweep(m.Len())
			}
		}
	}
}

// Shutdown closes every session.
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*session)
	m.mu.Unlock()

	for _, sess := range all {
		m.teardown(sess)
	}
}

func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *SessionManager) lookup(sessionID string) (*session, error) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "lookup session", fmt.Errorf("id %q", sessionID))
	}

	sess.mu.Lock()
	sess.lastSeen = m.now()
	sess.mu.Unlock()
	return sess, nil
}

func (m *SessionManager) openController(sessionID, operation string) (*CaptureController, error) {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	ctrl := sess.captureController()
	if ctrl == nil {
		return nil, domain.WrapError(domain.ErrInvalidState, operation, errCaptureMissing)
	}
	return ctrl, nil
}

// teardown marks the session closed before closing its capture, so a
// concurrent OpenCapture either sees the flag or has its controller closed.
func (m *SessionManager) teardown(sess *session) {
	sess.mu.Lock()
	sess.closed = true
	ctrl := sess.capture
	sess.mu.Unlock()

	if ctrl != nil {
		ctrl.Close()
	}
	sess.workflow.Release()
}

func (s *session) captureController() *CaptureController {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture
}
