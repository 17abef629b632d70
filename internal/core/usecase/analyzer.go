package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
	"github.com/kirillkom/docverify-assistant/internal/core/ports"
)

// DocumentAnalyzer runs one-shot model operations without a session.
type DocumentAnalyzer struct {
	encoder   ports.PayloadEncoder
	assessor  ports.QualityAssessor
	extractor ports.FieldExtractor
	verifier  ports.FieldVerifier
	logger    *slog.Logger
}

func NewDocumentAnalyzer(deps WorkflowDependencies) *DocumentAnalyzer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentAnalyzer{
		encoder:   deps.Encoder,
		assessor:  deps.Assessor,
		extractor: deps.Extractor,
		verifier:  deps.Verifier,
		logger:    logger,
	}
}

func (a *DocumentAnalyzer) Assess(ctx context.Context, doc domain.Document) (domain.QualityReport, error) {
	started := time.Now()
	payload, err := a.encode(ctx, doc)
	if err != nil {
		return domain.QualityReport{}, err
	}
	report, err := a.assessor.AssessQuality(ctx, payload)
	if err != nil {
		return domain.QualityReport{}, fmt.Errorf("analyze image quality: %w", err)
	}
	a.logger.Info("analyzer.assessed",
		"filename", doc.Filename,
		"score", report.Score,
		"elapsed_ms", time.Since(started).Milliseconds(),
	)
	return report.Clone(), nil
}

func (a *DocumentAnalyzer) Extract(ctx context.Context, doc domain.Document, hint domain.DocumentTypeHint) (domain.FieldMap, error) {
	hint, err := domain.ParseDocumentTypeHint(string(hint))
	if err != nil {
		return nil, err
	}
	payload, err := a.encode(ctx, doc)
	if err != nil {
		return nil, err
	}
	fields, err := a.extractor.ExtractFields(ctx, payload, hint)
	if err != nil {
		return nil, fmt.Errorf("extract fields: %w", err)
	}
	if fields == nil {
		fields = domain.FieldMap{}
	}
	a.logger.Info("analyzer.extracted", "filename", doc.Filename, "hint", string(hint), "fields", len(fields))
	return fields, nil
}

func (a *DocumentAnalyzer) Verify(ctx context.Context, doc domain.Document, fields domain.FieldMap) (domain.VerificationMap, error) {
	if len(fields) == 0 {
		return nil, domain.WrapError(domain.ErrMissingInput, "verify fields", errNoFieldsToVerify)
	}
	payload, err := a.encode(ctx, doc)
	if err != nil {
		return nil, err
	}
	verdicts, err := a.verifier.VerifyFields(ctx, payload, fields)
	if err != nil {
		return nil, fmt.Errorf("verify fields: %w", err)
	}
	verdicts = verdicts.Restrict(fields)
	if len(verdicts) == 0 {
		return nil, domain.WrapError(domain.ErrMalformedResponse, "verify fields", errNoMatchingVerdicts)
	}
	a.logger.Info("analyzer.verified", "filename", doc.Filename, "accuracy_percent", verdicts.Summary().Accuracy)
	return verdicts, nil
}

func (a *DocumentAnalyzer) encode(ctx context.Context, doc domain.Document) (domain.EncodedPayload, error) {
	if len(doc.Content) == 0 {
		return domain.EncodedPayload{}, domain.WrapError(domain.ErrMissingInput, "encode document", errNoDocument)
	}
	payload, err := a.encoder.Encode(ctx, doc)
	if err != nil {
		return domain.EncodedPayload{}, fmt.Errorf("encode document: %w", err)
	}
	return payload, nil
}
