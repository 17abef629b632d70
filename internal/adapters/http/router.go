package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/routers"

	"github.com/kirillkom/docverify-assistant/internal/config"
	"github.com/kirillkom/docverify-assistant/internal/core/ports"
	"github.com/kirillkom/docverify-assistant/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	sessions ports.SessionService
	capture  ports.CaptureService
	exporter ports.ResultExporter
	metrics  *metrics.HTTPServerMetrics
	logger   *slog.Logger

	rateLimitRPS     float64
	rateLimitBurst   int
	maxInFlight      int
	backpressureWait time.Duration
	uploadMaxBytes   int64

	openAPI       *openapi3.T
	openAPIRouter routers.Router
}

func NewRouter(
	cfg config.Config,
	sessions ports.SessionService,
	capture ports.CaptureService,
	exporter ports.ResultExporter,
	httpMetrics *metrics.HTTPServerMetrics,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	uploadMaxBytes := int64(cfg.UploadMaxBytes)
	if uploadMaxBytes <= 0 {
		uploadMaxBytes = 20 << 20
	}

	rt := &Router{
		sessions:         sessions,
		capture:          capture,
		exporter:         exporter,
		metrics:          httpMetrics,
		logger:           logger,
		rateLimitRPS:     cfg.APIRateLimitRPS,
		rateLimitBurst:   cfg.APIRateLimitBurst,
		maxInFlight:      cfg.APIMaxInFlight,
		backpressureWait: cfg.BackpressureWait(),
		uploadMaxBytes:   uploadMaxBytes,
	}

	doc, router, err := loadOpenAPI(context.Background())
	if err != nil {
		logger.Error("openapi_load_failed", "error", err)
	} else {
		rt.openAPI = doc
		rt.openAPIRouter = router
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.json", rt.openAPIDocument)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	mux.HandleFunc("POST /v1/sessions", rt.createSession)
	mux.HandleFunc("GET /v1/sessions/{id}", rt.getSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", rt.deleteSession)
	mux.HandleFunc("PUT /v1/sessions/{id}/document", rt.selectDocument)
	mux.HandleFunc("GET /v1/sessions/{id}/document/preview", rt.previewDocument)
	mux.HandleFunc("PUT /v1/sessions/{id}/document-type", rt.setDocumentType)
	mux.HandleFunc("POST /v1/sessions/{id}/extraction", rt.requestExtraction)
	mux.HandleFunc("PATCH /v1/sessions/{id}/fields", rt.editField)
	mux.HandleFunc("POST /v1/sessions/{id}/verification", rt.requestVerification)
	mux.HandleFunc("GET /v1/sessions/{id}/export.xlsx", rt.exportSession)

	mux.HandleFunc("POST /v1/sessions/{id}/capture", rt.openCapture)
	mux.HandleFunc("GET /v1/sessions/{id}/capture", rt.captureStatus)
	mux.HandleFunc("DELETE /v1/sessions/{id}/capture", rt.closeCapture)
	mux.HandleFunc("GET /v1/sessions/{id}/capture/frame", rt.captureFrame)
	mux.HandleFunc("POST /v1/sessions/{id}/capture/snapshot", rt.takeSnapshot)
	mux.HandleFunc("POST /v1/sessions/{id}/capture/retake", rt.retakeCapture)
	mux.HandleFunc("POST /v1/sessions/{id}/capture/confirm", rt.confirmCapture)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	if rt.openAPIRouter != nil {
		handler = openAPIValidationMiddleware(rt.openAPIRouter, handler)
	}
	handler = backpressureMiddleware(handler, rt.maxInFlight, rt.backpressureWait, rt.recordRejected)
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst, rt.recordRejected)
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) recordRejected(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(serviceName, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
