package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
)

type EventTailMetrics struct {
	registry *prometheus.Registry

	eventsTotal    *prometheus.CounterVec
	eventLag       *prometheus.HistogramVec
	eventsInFlight prometheus.Gauge
}

func NewEventTailMetrics(service string) *EventTailMetrics {
	registry := prometheus.NewRegistry()

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventtail",
			Name:      "events_total",
			Help:      "Total consumed workflow events by target state and outcome.",
		},
		[]string{"service", "to", "outcome"},
	)
	eventLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "eventtail",
			Name:      "event_lag_seconds",
			Help:      "Delay between a transition and its consumption.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"service"},
	)
	eventsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "eventtail",
			Name:      "events_in_flight",
			Help:      "Number of events being handled.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(eventsTotal, eventLag, eventsInFlight)

	return &EventTailMetrics{
		registry:       registry,
		eventsTotal:    eventsTotal,
		eventLag:       eventLag,
		eventsInFlight: eventsInFlight,
	}
}

func (m *EventTailMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *EventTailMetrics) StartEvent() {
	m.eventsInFlight.Inc()
}

func (m *EventTailMetrics) FinishEvent(service string, event domain.WorkflowEvent) {
	m.eventsInFlight.Dec()

	outcome := "ok"
	if event.Error != "" {
		outcome = "error"
	}
	m.eventsTotal.WithLabelValues(service, event.To.String(), outcome).Inc()
}

func (m *EventTailMetrics) ObserveEventLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.eventLag.WithLabelValues(service).Observe(lag.Seconds())
}
