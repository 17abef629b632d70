package httpadapter

import (
	"context"
	"net/http"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
)

func (rt *Router) openCapture(w http.ResponseWriter, r *http.Request) {
	rt.captureCall(w, r, rt.capture.OpenCapture)
}

func (rt *Router) captureStatus(w http.ResponseWriter, r *http.Request) {
	rt.captureCall(w, r, rt.capture.CaptureStatus)
}

func (rt *Router) takeSnapshot(w http.ResponseWriter, r *http.Request) {
	rt.captureCall(w, r, rt.capture.TakeSnapshot)
}

func (rt *Router) retakeCapture(w http.ResponseWriter, r *http.Request) {
	rt.captureCall(w, r, rt.capture.RetakeCapture)
}

func (rt *Router) closeCapture(w http.ResponseWriter, r *http.Request) {
	rt.captureCall(w, r, rt.capture.CloseCapture)
}

func (rt *Router) captureCall(
	w http.ResponseWriter,
	r *http.Request,
	call func(ctx context.Context, sessionID string) (domain.CaptureView, error),
) {
	view, err := call(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) captureFrame(w http.ResponseWriter, r *http.Request) {
	frame, err := rt.capture.CaptureFrame(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frame)
}

func (rt *Router) confirmCapture(w http.ResponseWriter, r *http.Request) {
	view, err := rt.capture.ConfirmCapture(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, &view)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
