package gemini

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
)

// stripFences removes markdown code fences the model sometimes wraps JSON in.
func stripFences(raw string) string {
	cleaned := strings.ReplaceAll(raw, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	return strings.TrimSpace(cleaned)
}

// parseFieldMap decodes an extraction response. Empty text and JSON null are
// both a valid "nothing found".
func parseFieldMap(cleaned string) (domain.FieldMap, error) {
	if cleaned == "" {
		return domain.FieldMap{}, nil
	}

	decoder := json.NewDecoder(strings.NewReader(cleaned))
	decoder.UseNumber()
	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse extraction json: %w", err)
	}

	switch value := raw.(type) {
	case nil:
		return domain.FieldMap{}, nil
	case map[string]any:
		fields := make(domain.FieldMap, len(value))
		for label, item := range value {
			fields[label] = stringifyValue(item)
		}
		return fields, nil
	default:
		return nil, fmt.Errorf("extraction response is %T, want a JSON object", raw)
	}
}

func stringifyValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		var buf bytes.Buffer
		encoder := json.NewEncoder(&buf)
		encoder.SetEscapeHTML(false)
		if err := encoder.Encode(v); err != nil {
			return fmt.Sprint(v)
		}
		return strings.TrimSpace(buf.String())
	}
}

var (
	errEmptyVerification = errors.New("AI verifier returned an empty response")
	errEmptyQuality      = errors.New("AI quality analyst returned an empty response")
)

func parseVerificationMap(cleaned string) (domain.VerificationMap, error) {
	if cleaned == "" {
		return nil, errEmptyVerification
	}
	if err := validateJSON(verificationValidationSchema, []byte(cleaned)); err != nil {
		return nil, err
	}

	var raw map[string]struct {
		Match  bool    `json:"match"`
		Reason *string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("parse verification json: %w", err)
	}
	if len(raw) == 0 {
		return nil, errEmptyVerification
	}

	verdicts := make(domain.VerificationMap, len(raw))
	for label, item := range raw {
		verdict := domain.FieldVerdict{Match: item.Match}
		if !item.Match && item.Reason != nil {
			verdict.Reason = strings.TrimSpace(*item.Reason)
		}
		verdicts[label] = verdict
	}
	return verdicts, nil
}

func parseQualityReport(cleaned string) (domain.QualityReport, error) {
	if cleaned == "" {
		return domain.QualityReport{}, errEmptyQuality
	}
	if err := validateJSON(qualityValidationSchema, []byte(cleaned)); err != nil {
		return domain.QualityReport{}, err
	}

	var report domain.QualityReport
	if err := json.Unmarshal([]byte(cleaned), &report); err != nil {
		return domain.QualityReport{}, fmt.Errorf("parse quality json: %w", err)
	}
	return report.Clone(), nil
}
