package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/docverify-assistant/internal/bootstrap"
	"github.com/kirillkom/docverify-assistant/internal/config"
	"github.com/kirillkom/docverify-assistant/internal/core/domain"
	"github.com/kirillkom/docverify-assistant/internal/observability/logging"
	"github.com/kirillkom/docverify-assistant/internal/observability/metrics"
)

const serviceName = "eventtail"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	subscriber, closeFn, err := bootstrap.NewEventSubscriber(cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer closeFn()

	tailMetrics := metrics.NewEventTailMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:              ":" + cfg.EventTailMetricsPort,
		Handler:           tailMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("eventtail_subscribed", "subject", cfg.NATSSubject, "metrics_port", cfg.EventTailMetricsPort)
	if err := subscriber.SubscribeWorkflowEvents(ctx, newEventHandler(logger, tailMetrics, time.Now)); err != nil {
		logger.Error("eventtail_subscribe_failed", "error", err)
		os.Exit(1)
	}
}

// newEventHandler logs every workflow transition and records its lag.
func newEventHandler(logger *slog.Logger, tailMetrics *metrics.EventTailMetrics, now func() time.Time) func(context.Context, domain.WorkflowEvent) error {
	return func(_ context.Context, event domain.WorkflowEvent) error {
		tailMetrics.StartEvent()
		defer tailMetrics.FinishEvent(serviceName, event)

		if !event.At.IsZero() {
			tailMetrics.ObserveEventLag(serviceName, now().Sub(event.At))
		}

		attrs := []any{
			"session_id", event.SessionID,
			"operation", event.Operation,
			"from", event.From.String(),
			"to", event.To.String(),
		}
		if event.QualityScore != nil {
			attrs = append(attrs, "quality_score", *event.QualityScore)
		}
		if event.Accuracy != nil {
			attrs = append(attrs, "accuracy_percent", *event.Accuracy)
		}
		if event.Error != "" {
			logger.Warn("workflow_event", append(attrs, "error", event.Error)...)
			return nil
		}
		logger.Info("workflow_event", attrs...)
		return nil
	}
}
