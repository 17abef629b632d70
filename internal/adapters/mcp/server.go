package mcpadapter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
	"github.com/kirillkom/docverify-assistant/internal/core/ports"
)

const (
	ToolAssessQuality = "assess_quality"
	ToolExtractFields = "extract_fields"
	ToolVerifyFields  = "verify_fields"
)

// Server exposes the document analyzer as MCP tools.
type Server struct {
	analyzer ports.DocumentAnalyzer
	loader   ports.DocumentLoader
	logger   *slog.Logger
	version  string
}

func NewServer(analyzer ports.DocumentAnalyzer, loader ports.DocumentLoader, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}
	return &Server{analyzer: analyzer, loader: loader, logger: logger, version: version}
}

// MCPServer builds the protocol server with every tool registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("docverify", s.version, server.WithToolCapabilities(false))
	srv.AddTool(assessTool(), s.handleAssess)
	srv.AddTool(extractTool(), s.handleExtract)
	srv.AddTool(verifyTool(), s.handleVerify)
	return srv
}

// ServeStdio blocks serving requests on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.MCPServer())
}

func documentOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("file_path", mcp.Description("Path to a PNG, JPEG, WEBP or PDF document.")),
		mcp.WithString("document_base64", mcp.Description("Document bytes in standard base64. Used when file_path is empty.")),
		mcp.WithString("mime_type", mcp.Description("Media type of document_base64, e.g. image/png.")),
	}
}

func assessTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Rate a document image for OCR readiness. Returns isGoodQuality, score (0-100) and feedback."),
	}, documentOptions()...)
	return mcp.NewTool(ToolAssessQuality, opts...)
}

func extractTool() mcp.Tool {
	hints := domain.DocumentTypeHints()
	enum := make([]string, 0, len(hints))
	for _, hint := range hints {
		enum = append(enum, string(hint))
	}
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Extract labeled fields from a document as a flat JSON object."),
		mcp.WithString("document_type",
			mcp.Description("Document type hint that steers which fields are extracted."),
			mcp.Enum(enum...),
		),
	}, documentOptions()...)
	return mcp.NewTool(ToolExtractFields, opts...)
}

func verifyTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Check field values against the document. Returns a match/reason verdict per field."),
		mcp.WithString("fields",
			mcp.Required(),
			mcp.Description(`JSON object of label to value, e.g. {"Total Amount": "$100.00"}.`),
		),
	}, documentOptions()...)
	return mcp.NewTool(ToolVerifyFields, opts...)
}

func (s *Server) handleAssess(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	started := time.Now()
	doc, err := s.document(ctx, request)
	if err != nil {
		return s.toolError(ToolAssessQuality, err), nil
	}
	report, err := s.analyzer.Assess(ctx, doc)
	if err != nil {
		return s.toolError(ToolAssessQuality, err), nil
	}
	s.logger.Info("mcp.tool_completed", "tool", ToolAssessQuality, "elapsed_ms", time.Since(started).Milliseconds())
	return jsonResult(struct {
		domain.QualityReport
		Severity domain.QualitySeverity `json:"severity"`
	}{report, report.Severity()})
}

func (s *Server) handleExtract(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	started := time.Now()
	hint, err := domain.ParseDocumentTypeHint(request.GetString("document_type", ""))
	if err != nil {
		return s.toolError(ToolExtractFields, err), nil
	}
	doc, err := s.document(ctx, request)
	if err != nil {
		return s.toolError(ToolExtractFields, err), nil
	}
	fields, err := s.analyzer.Extract(ctx, doc, hint)
	if err != nil {
		return s.toolError(ToolExtractFields, err), nil
	}
	s.logger.Info("mcp.tool_completed",
		"tool", ToolExtractFields,
		"fields", len(fields),
		"elapsed_ms", time.Since(started).Milliseconds(),
	)
	return jsonResult(fields)
}

func (s *Server) handleVerify(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	started := time.Now()
	fields, err := parseFieldsArgument(request.GetString("fields", ""))
	if err != nil {
		return s.toolError(ToolVerifyFields, err), nil
	}
	doc, err := s.document(ctx, request)
	if err != nil {
		return s.toolError(ToolVerifyFields, err), nil
	}
	verdicts, err := s.analyzer.Verify(ctx, doc, fields)
	if err != nil {
		return s.toolError(ToolVerifyFields, err), nil
	}
	s.logger.Info("mcp.tool_completed",
		"tool", ToolVerifyFields,
		"fields", len(fields),
		"elapsed_ms", time.Since(started).Milliseconds(),
	)
	return jsonResult(struct {
		Verification domain.VerificationMap     `json:"verification"`
		Summary      domain.VerificationSummary `json:"summary"`
	}{verdicts, verdicts.Summary()})
}

// document resolves the tool input. file_path wins over inline base64.
func (s *Server) document(ctx context.Context, request mcp.CallToolRequest) (domain.Document, error) {
	if path := strings.TrimSpace(request.GetString("file_path", "")); path != "" {
		if s.loader == nil {
			return domain.Document{}, domain.WrapError(domain.ErrInvalidInput, "load document", errors.New("file access is disabled"))
		}
		return s.loader.Load(ctx, path)
	}

	encoded := strings.TrimSpace(request.GetString("document_base64", ""))
	if encoded == "" {
		return domain.Document{}, domain.WrapError(domain.ErrMissingInput, "load document",
			errors.New("please select a file first: provide file_path or document_base64"))
	}
	content, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return domain.Document{}, domain.WrapError(domain.ErrInvalidInput, "decode document", err)
	}
	return domain.Document{
		Filename:   "inline",
		MimeType:   request.GetString("mime_type", ""),
		Content:    content,
		SelectedAt: time.Now().UTC(),
	}, nil
}

func parseFieldsArgument(raw string) (domain.FieldMap, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, domain.WrapError(domain.ErrMissingInput, "parse fields", errors.New("fields are required"))
	}
	var fields map[string]string
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse fields",
			fmt.Errorf("fields must be a JSON object of strings: %w", err))
	}
	return domain.FieldMap(fields), nil
}

func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	s.logger.Warn("mcp.tool_failed", "tool", tool, "kind", domain.KindName(err), "error", err)
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", domain.KindName(err), err.Error()))
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
