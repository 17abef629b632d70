package domain

// QualityReport is the model's assessment of a document image for OCR.
type QualityReport struct {
	IsGoodQuality bool     `json:"isGoodQuality"`
	Score         int      `json:"score"`
	Feedback      []string `json:"feedback"`
}

func (r QualityReport) Clone() QualityReport {
	out := r
	out.Feedback = append([]string(nil), r.Feedback...)
	if out.Feedback == nil {
		out.Feedback = []string{}
	}
	return out
}

// QualitySeverity is the client-side colouring of a score. It is independent
// of the model's own IsGoodQuality judgement and may disagree with it.
type QualitySeverity string

const (
	SeverityGood QualitySeverity = "good"
	SeverityWarn QualitySeverity = "warn"
	SeverityPoor QualitySeverity = "poor"
)

const (
	goodScoreThreshold = 85
	warnScoreThreshold = 60
)

func (r QualityReport) Severity() QualitySeverity {
	switch {
	case r.Score >= goodScoreThreshold:
		return SeverityGood
	case r.Score >= warnScoreThreshold:
		return SeverityWarn
	default:
		return SeverityPoor
	}
}
