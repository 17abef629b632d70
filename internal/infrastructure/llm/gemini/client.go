package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
	"github.com/kirillkom/docverify-assistant/internal/core/ports"
	"github.com/kirillkom/docverify-assistant/internal/infrastructure/resilience"
)

const (
	DefaultBaseURL   = "https://generativelanguage.googleapis.com"
	DefaultModel     = "gemini-2.5-flash"
	DefaultAPIKeyEnv = "API_KEY"
	DefaultTimeout   = 60 * time.Second

	OperationQuality = "assess_quality"
	OperationExtract = "extract_fields"
	OperationVerify  = "verify_fields"
)

type Options struct {
	BaseURL   string
	Model     string
	APIKeyEnv string
	Timeout   time.Duration

	// LookupEnv resolves the credential before every call. Defaults to os.LookupEnv.
	LookupEnv  func(string) (string, bool)
	HTTPClient *http.Client
	Guard      *resilience.Guard
	Observer   ports.ModelCallObserver
	Logger     *slog.Logger
}

// Client talks to the generateContent endpoint. It holds no per-call state.
type Client struct {
	baseURL    string
	model      string
	apiKeyEnv  string
	lookupEnv  func(string) (string, bool)
	httpClient *http.Client
	guard      *resilience.Guard
	observer   ports.ModelCallObserver
	logger     *slog.Logger
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	apiKeyEnv := strings.TrimSpace(opts.APIKeyEnv)
	if apiKeyEnv == "" {
		apiKeyEnv = DefaultAPIKeyEnv
	}
	lookupEnv := opts.LookupEnv
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		model:      model,
		apiKeyEnv:  apiKeyEnv,
		lookupEnv:  lookupEnv,
		httpClient: httpClient,
		guard:      opts.Guard,
		observer:   opts.Observer,
		logger:     logger,
	}
}

// generate sends the payload and prompt and returns the concatenated response
// text. The credential is resolved first; without it no request is made.
func (c *Client) generate(ctx context.Context, operation string, payload domain.EncodedPayload, prompt string, responseSchema map[string]any) (text string, err error) {
	started := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveModelCall(operation, time.Since(started), err)
		}
	}()

	apiKey, err := c.credential(operation)
	if err != nil {
		return "", err
	}

	request := generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{InlineData: &inlineData{MimeType: payload.MimeType, Data: payload.Data}},
				{Text: prompt},
			},
		}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   responseSchema,
		},
	}

	requestID := uuid.NewString()
	c.logger.Info("gemini.request",
		"request_id", requestID,
		"operation", operation,
		"model", c.model,
		"mime_type", payload.MimeType,
		"payload_bytes", len(payload.Data),
	)

	var response generateResponse
	call := func(callCtx context.Context) error {
		return c.postJSON(callCtx, c.generatePath(), apiKey, request, &response, operation)
	}
	if c.guard != nil {
		err = c.guard.Execute(ctx, "gemini."+operation, call, classifyGeminiError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		c.logger.Warn("gemini.response",
			"request_id", requestID,
			"operation", operation,
			"elapsed_ms", time.Since(started).Milliseconds(),
			"error", err,
		)
		return "", wrapCallError(operation, err)
	}

	text, err = response.text()
	if err != nil {
		return "", domain.WrapError(domain.ErrMalformedResponse, operation, err)
	}
	c.logger.Info("gemini.response",
		"request_id", requestID,
		"operation", operation,
		"elapsed_ms", time.Since(started).Milliseconds(),
		"response_chars", len(text),
	)
	return text, nil
}

func (c *Client) credential(operation string) (string, error) {
	value, ok := c.lookupEnv(c.apiKeyEnv)
	if !ok || strings.TrimSpace(value) == "" {
		return "", domain.WrapError(domain.ErrMissingCredential, operation,
			fmt.Errorf("%s environment variable is not set", c.apiKeyEnv))
	}
	return strings.TrimSpace(value), nil
}

func (c *Client) generatePath() string {
	return "/v1beta/models/" + c.model + ":generateContent"
}

var errNoCandidates = errors.New("model returned no candidates")
