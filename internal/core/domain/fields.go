package domain

import (
	"math"
	"sort"
)

// FieldMap maps a human-readable field label to its value.
type FieldMap map[string]string

func (m FieldMap) Clone() FieldMap {
	out := make(FieldMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Labels returns the field labels in stable order.
func (m FieldMap) Labels() []string {
	labels := make([]string, 0, len(m))
	for k := range m {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	return labels
}

// FieldVerdict is the verification result for one field. Reason is set only
// for mismatches.
type FieldVerdict struct {
	Match  bool   `json:"match"`
	Reason string `json:"reason,omitempty"`
}

type VerificationMap map[string]FieldVerdict

func (m VerificationMap) Clone() VerificationMap {
	out := make(VerificationMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Restrict drops verdicts whose label is not present in fields.
func (m VerificationMap) Restrict(fields FieldMap) VerificationMap {
	out := make(VerificationMap, len(m))
	for label, verdict := range m {
		if _, ok := fields[label]; ok {
			out[label] = verdict
		}
	}
	return out
}

type VerificationSummary struct {
	Total    int `json:"total"`
	Matched  int `json:"matched"`
	Accuracy int `json:"accuracy_percent"`
}

// Summary computes matched/total with accuracy rounded to a whole percent.
func (m VerificationMap) Summary() VerificationSummary {
	summary := VerificationSummary{Total: len(m)}
	for _, verdict := range m {
		if verdict.Match {
			summary.Matched++
		}
	}
	if summary.Total > 0 {
		summary.Accuracy = int(math.Round(float64(summary.Matched) / float64(summary.Total) * 100))
	}
	return summary
}
