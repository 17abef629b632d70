package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMissingInput      = errors.New("missing input")
	ErrMissingCredential = errors.New("missing credential")
	ErrModelCall         = errors.New("model call failed")
	ErrMalformedResponse = errors.New("malformed model response")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidState      = errors.New("invalid state")
	ErrSessionNotFound   = errors.New("session not found")
	ErrTemporary         = errors.New("temporary failure")
	ErrDeviceUnavailable = errors.New("capture device unavailable")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// KindName returns a stable machine-readable name for the first matching kind.
func KindName(err error) string {
	switch {
	case err == nil:
		return ""
	case IsKind(err, ErrMissingInput):
		return "missing_input"
	case IsKind(err, ErrMissingCredential):
		return "missing_credential"
	case IsKind(err, ErrMalformedResponse):
		return "malformed_response"
	case IsKind(err, ErrTemporary):
		return "temporary"
	case IsKind(err, ErrModelCall):
		return "model_call"
	case IsKind(err, ErrInvalidInput):
		return "invalid_input"
	case IsKind(err, ErrInvalidState):
		return "invalid_state"
	case IsKind(err, ErrSessionNotFound):
		return "not_found"
	case IsKind(err, ErrDeviceUnavailable):
		return "device_unavailable"
	default:
		return "internal"
	}
}
