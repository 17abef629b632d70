package gemini

import (
	"context"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
)

type QualityAssessor struct {
	client *Client
}

func NewQualityAssessor(client *Client) *QualityAssessor {
	return &QualityAssessor{client: client}
}

func (a *QualityAssessor) AssessQuality(ctx context.Context, payload domain.EncodedPayload) (domain.QualityReport, error) {
	text, err := a.client.generate(ctx, OperationQuality, payload, buildQualityPrompt(), qualityResponseSchema)
	if err != nil {
		return domain.QualityReport{}, err
	}
	report, err := parseQualityReport(stripFences(text))
	if err != nil {
		return domain.QualityReport{}, domain.WrapError(domain.ErrMalformedResponse, OperationQuality, err)
	}
	return report, nil
}

type Extractor struct {
	client *Client
}

func NewExtractor(client *Client) *Extractor {
	return &Extractor{client: client}
}

func (e *Extractor) ExtractFields(ctx context.Context, payload domain.EncodedPayload, hint domain.DocumentTypeHint) (domain.FieldMap, error) {
	text, err := e.client.generate(ctx, OperationExtract, payload, buildExtractionPrompt(hint), nil)
	if err != nil {
		return nil, err
	}
	fields, err := parseFieldMap(stripFences(text))
	if err != nil {
		return nil, domain.WrapError(domain.ErrMalformedResponse, OperationExtract, err)
	}
	return fields, nil
}

type Verifier struct {
	client *Client
}

func NewVerifier(client *Client) *Verifier {
	return &Verifier{client: client}
}

func (v *Verifier) VerifyFields(ctx context.Context, payload domain.EncodedPayload, fields domain.FieldMap) (domain.VerificationMap, error) {
	prompt, err := buildVerificationPrompt(fields)
	if err != nil {
		return nil, err
	}
	text, err := v.client.generate(ctx, OperationVerify, payload, prompt, nil)
	if err != nil {
		return nil, err
	}
	verdicts, err := parseVerificationMap(stripFences(text))
	if err != nil {
		return nil, domain.WrapError(domain.ErrMalformedResponse, OperationVerify, err)
	}
	return verdicts, nil
}
