package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/docverify-assistant/internal/config"
	"github.com/kirillkom/docverify-assistant/internal/core/domain"
	"github.com/kirillkom/docverify-assistant/internal/core/ports"
	"github.com/kirillkom/docverify-assistant/internal/core/usecase"
	"github.com/kirillkom/docverify-assistant/internal/infrastructure/camera"
	"github.com/kirillkom/docverify-assistant/internal/infrastructure/encoder"
	"github.com/kirillkom/docverify-assistant/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/docverify-assistant/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/docverify-assistant/internal/infrastructure/queue"
	"github.com/kirillkom/docverify-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docverify-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/docverify-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/docverify-assistant/internal/observability/metrics"
)

const cameraTimeout = 10 * time.Second

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.HTTPServerMetrics

	Deps     usecase.WorkflowDependencies
	Sessions *usecase.SessionManager
	Analyzer *usecase.DocumentAnalyzer
	Loader   ports.DocumentLoader
	Exporter *xlsx.Exporter

	closeFn func()
}

// New wires the application. service names the process in metrics and logs.
// Event publishing to NATS is enabled only when NATS_URL is set.
func New(_ context.Context, cfg config.Config, service string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	guard := resilience.NewGuard(resilience.Config{
		BreakerEnabled:          cfg.BreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.BreakerMinRequests, 0)),
		BreakerFailureRatio:     cfg.BreakerFailureRatio,
		BreakerOpenTimeout:      time.Duration(cfg.BreakerOpenTimeoutSeconds) * time.Second,
		BreakerHalfOpenMaxCalls: uint32(max(cfg.BreakerHalfOpenMaxCalls, 0)),
	})
	httpMetrics := metrics.NewHTTPServerMetrics(service)

	client := gemini.New(gemini.Options{
		BaseURL:   cfg.GeminiBaseURL,
		Model:     cfg.GeminiModel,
		APIKeyEnv: cfg.ModelAPIKeyEnv,
		Timeout:   cfg.ModelTimeout(),
		Guard:     guard,
		Observer:  httpMetrics,
		Logger:    logger,
	})

	var eventQueue *nats.Queue
	if cfg.NATSURL != "" {
		q, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{Guard: guard, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("init event queue: %w", err)
		}
		eventQueue = q
	}

	publishers := []ports.EventPublisher{metrics.NewWorkflowEventRecorder(httpMetrics)}
	if eventQueue != nil {
		publishers = append(publishers, eventQueue)
	}

	deps := usecase.WorkflowDependencies{
		Encoder:   encoder.New(cfg.UploadMaxBytes),
		Assessor:  gemini.NewQualityAssessor(client),
		Extractor: gemini.NewExtractor(client),
		Verifier:  gemini.NewVerifier(client),
		Events:    queue.NewFanout(publishers...),
		Logger:    logger,
	}

	var device ports.CaptureDevice
	if cfg.CameraSnapshotURL != "" {
		device = camera.NewSnapshotDevice(cfg.CameraSnapshotURL, cameraTimeout, logger)
	}

	sessions := usecase.NewSessionManager(deps, device, usecase.SessionOptions{
		MaxSessions: cfg.MaxSessions,
		IdleTTL:     cfg.SessionIdleTTL(),
		CaptureConstraints: domain.CaptureConstraints{
			Facing: domain.FacingMode(cfg.CameraFacing),
			Width:  cfg.CameraWidth,
			Height: cfg.CameraHeight,
		},
		JPEGQuality: cfg.CameraJPEGQuality,
	})

	return &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: httpMetrics,

		Deps:     deps,
		Sessions: sessions,
		Analyzer: usecase.NewDocumentAnalyzer(deps),
		Loader:   localfs.NewLoader("", cfg.UploadMaxBytes),
		Exporter: xlsx.NewExporter(logger),

		closeFn: func() {
			sessions.Shutdown()
			if eventQueue != nil {
				eventQueue.Close()
			}
		},
	}, nil
}

// RunHousekeeping evicts idle sessions and refreshes the active-session
// gauge until ctx is done.
func (a *App) RunHousekeeping(ctx context.Context) {
	interval := a.Config.SessionSweepInterval()
	if interval <= 0 {
		interval = time.Minute
	}
	a.Sessions.RunSweeper(ctx, interval, a.Metrics.SetActiveSessions)
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// NewEventSubscriber connects a NATS subscriber for the event tail.
func NewEventSubscriber(cfg config.Config, logger *slog.Logger) (ports.EventSubscriber, func(), error) {
	if cfg.NATSURL == "" {
		return nil, nil, fmt.Errorf("NATS_URL is required for the event tail")
	}
	q, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{Logger: logger})
	if err != nil {
		return nil, nil, fmt.Errorf("init event queue: %w", err)
	}
	return q, q.Close, nil
}
