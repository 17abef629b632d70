package domain

import "fmt"

// CaptureState is the closed set of states of a camera capture session.
type CaptureState uint8

const (
	CaptureInitializing CaptureState = iota
	CaptureLive
	CaptureCaptured
	CaptureClosed
	CaptureError
)

var captureStateNames = [...]string{
	CaptureInitializing: "initializing",
	CaptureLive:         "live",
	CaptureCaptured:     "captured",
	CaptureClosed:       "closed",
	CaptureError:        "error",
}

func (s CaptureState) String() string {
	if int(s) < len(captureStateNames) {
		return captureStateNames[s]
	}
	return fmt.Sprintf("capture_state(%d)", uint8(s))
}

func (s CaptureState) MarshalText() ([]byte, error) {
	if int(s) >= len(captureStateNames) {
		return nil, fmt.Errorf("unknown capture state %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *CaptureState) UnmarshalText(text []byte) error {
	for state, name := range captureStateNames {
		if name == string(text) {
			*s = CaptureState(state)
			return nil
		}
	}
	return fmt.Errorf("unknown capture state %q", text)
}

type FacingMode string

const (
	FacingEnvironment FacingMode = "environment"
	FacingUser        FacingMode = "user"
)

// CaptureConstraints are the preferred device settings. Devices may deliver
// a different resolution.
type CaptureConstraints struct {
	Facing FacingMode
	Width  int
	Height int
}

func DefaultCaptureConstraints() CaptureConstraints {
	return CaptureConstraints{Facing: FacingEnvironment, Width: 1920, Height: 1080}
}

type CaptureView struct {
	State  CaptureState `json:"state"`
	Error  string       `json:"error,omitempty"`
	Width  int          `json:"width,omitempty"`
	Height int          `json:"height,omitempty"`
}
