package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
	"github.com/kirillkom/docverify-assistant/internal/infrastructure/resilience"
)

type Queue struct {
	conn    *nats.Conn
	subject string
	guard   *resilience.Guard
	logger  *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	Guard                *resilience.Guard
	Logger               *slog.Logger
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("docverify-assistant"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:    conn,
		subject: subject,
		guard:   options.Guard,
		logger:  logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishWorkflowEvent(ctx context.Context, event domain.WorkflowEvent) error {
	data, err := encodeEvent(event)
	if err != nil {
		return err
	}

	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, data); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.guard != nil {
		err = q.guard.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeWorkflowEvents blocks until ctx is done, then drains the subscription.
func (q *Queue) SubscribeWorkflowEvents(ctx context.Context, handler func(context.Context, domain.WorkflowEvent) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, "eventtail", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		event, err := decodeEvent(msg.Data)
		if err != nil {
			q.logger.Warn("event_decode_failed", "subject", msg.Subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, event); err != nil {
			q.logger.Error("event_handler_failed", "session_id", event.SessionID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodeEvent(event domain.WorkflowEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow event: %w", err)
	}
	return data, nil
}

func decodeEvent(data []byte) (domain.WorkflowEvent, error) {
	var wire struct {
		SessionID    string    `json:"session_id"`
		Operation    string    `json:"operation"`
		From         string    `json:"from"`
		To           string    `json:"to"`
		Error        string    `json:"error"`
		QualityScore *int      `json:"quality_score"`
		Accuracy     *int      `json:"accuracy_percent"`
		At           time.Time `json:"at"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return domain.WorkflowEvent{}, fmt.Errorf("unmarshal workflow event: %w", err)
	}
	from, err := domain.ParseWorkflowState(wire.From)
	if err != nil {
		return domain.WorkflowEvent{}, err
	}
	to, err := domain.ParseWorkflowState(wire.To)
	if err != nil {
		return domain.WorkflowEvent{}, err
	}
	return domain.WorkflowEvent{
		SessionID:    wire.SessionID,
		Operation:    wire.Operation,
		From:         from,
		To:           to,
		Error:        wire.Error,
		QualityScore: wire.QualityScore,
		Accuracy:     wire.Accuracy,
		At:           wire.At,
	}, nil
}
