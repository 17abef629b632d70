package httpadapter

import (
	"net/http"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrMissingInput):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrInvalidState):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrMissingCredential):
		return http.StatusInternalServerError
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrModelCall), domain.IsKind(err, domain.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error   string              `json:"error"`
	Kind    string              `json:"kind"`
	Session *domain.SessionView `json:"session,omitempty"`
}

// writeError renders a domain error. A non-empty view is attached so clients
// can show the rolled-back state next to the message.
func writeError(w http.ResponseWriter, err error, view *domain.SessionView) {
	if view != nil && view.ID == "" {
		view = nil
	}
	writeJSON(w, mapErrorToHTTPStatus(err), errorResponse{
		Error:   err.Error(),
		Kind:    domain.KindName(err),
		Session: view,
	})
}
