package domain

import (
	"fmt"
	"time"
)

// WorkflowState is the closed set of states of a capture/extraction session.
type WorkflowState uint8

const (
	StateIdle WorkflowState = iota
	StateAnalyzingQuality
	StateLoadingExtraction
	StateEditing
	StateVerifying
	StateVerified
)

var workflowStateNames = [...]string{
	StateIdle:              "idle",
	StateAnalyzingQuality:  "analyzing_quality",
	StateLoadingExtraction: "loading_extraction",
	StateEditing:           "editing",
	StateVerifying:         "verifying",
	StateVerified:          "verified",
}

// workflowTransitions lists every legal edge. Selecting a new document is
// allowed from every non-busy state and always lands in AnalyzingQuality.
var workflowTransitions = map[WorkflowState][]WorkflowState{
	StateIdle:              {StateAnalyzingQuality, StateLoadingExtraction},
	StateAnalyzingQuality:  {StateIdle},
	StateLoadingExtraction: {StateIdle, StateEditing},
	StateEditing:           {StateAnalyzingQuality, StateVerifying},
	StateVerifying:         {StateEditing, StateVerified},
	StateVerified:          {StateAnalyzingQuality, StateEditing},
}

func (s WorkflowState) String() string {
	if int(s) < len(workflowStateNames) {
		return workflowStateNames[s]
	}
	return fmt.Sprintf("workflow_state(%d)", uint8(s))
}

func (s WorkflowState) MarshalText() ([]byte, error) {
	if int(s) >= len(workflowStateNames) {
		return nil, fmt.Errorf("unknown workflow state %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *WorkflowState) UnmarshalText(text []byte) error {
	state, err := ParseWorkflowState(string(text))
	if err != nil {
		return err
	}
	*s = state
	return nil
}

func ParseWorkflowState(raw string) (WorkflowState, error) {
	for state, name := range workflowStateNames {
		if name == raw {
			return WorkflowState(state), nil
		}
	}
	return 0, fmt.Errorf("unknown workflow state %q", raw)
}

// Busy reports whether a remote call is outstanding in this state.
func (s WorkflowState) Busy() bool {
	switch s {
	case StateAnalyzingQuality, StateLoadingExtraction, StateVerifying:
		return true
	default:
		return false
	}
}

// Editable reports whether fields may be edited in this state.
func (s WorkflowState) Editable() bool {
	switch s {
	case StateEditing, StateVerifying, StateVerified:
		return true
	default:
		return false
	}
}

func CanTransition(from, to WorkflowState) bool {
	for _, next := range workflowTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SessionView is an immutable snapshot of a session handed to presenters.
type SessionView struct {
	ID              string               `json:"id"`
	State           WorkflowState        `json:"state"`
	Document        *DocumentInfo        `json:"document,omitempty"`
	DocumentType    DocumentTypeHint     `json:"document_type"`
	Quality         *QualityReport       `json:"quality,omitempty"`
	QualitySeverity QualitySeverity      `json:"quality_severity,omitempty"`
	Fields          FieldMap             `json:"fields"`
	Verification    VerificationMap      `json:"verification"`
	Summary         *VerificationSummary `json:"summary,omitempty"`
	Error           string               `json:"error,omitempty"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// WorkflowEvent describes one state transition of a session.
type WorkflowEvent struct {
	SessionID    string        `json:"session_id"`
	Operation    string        `json:"operation"`
	From         WorkflowState `json:"from"`
	To           WorkflowState `json:"to"`
	Error        string        `json:"error,omitempty"`
	QualityScore *int          `json:"quality_score,omitempty"`
	Accuracy     *int          `json:"accuracy_percent,omitempty"`
	At           time.Time     `json:"at"`
}
