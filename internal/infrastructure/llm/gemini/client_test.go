package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
	"github.com/kirillkom/docverify-assistant/internal/infrastructure/resilience"
)

type capturedRequest struct {
	path   string
	apiKey string
	body   generateRequest
}

func newModelServer(t *testing.T, status int, text string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.path = r.URL.Path
		captured.apiKey = r.Header.Get("x-goog-api-key")
		if err := json.NewDecoder(r.Body).Decode(&captured.body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"code":503,"message":"model overloaded","status":"UNAVAILABLE"}}`))
			return
		}
		resp := map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"parts": []any{map[string]any{"text": text}}},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server, captured
}

type observerFake struct {
	mu    sync.Mutex
	calls []string
	errs  []error
}

func (o *observerFake) ObserveModelCall(operation string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, operation)
	o.errs = append(o.errs, err)
}

func newTestClient(baseURL string, observer *observerFake) *Client {
	opts := Options{
		BaseURL: baseURL,
		LookupEnv: func(name string) (string, bool) {
			if name == DefaultAPIKeyEnv {
				return "test-key", true
			}
			return "", false
		},
	}
	if observer != nil {
		opts.Observer = observer
	}
	return New(opts)
}

var testPayload = domain.EncodedPayload{Data: "aW1n", MimeType: "image/png", Pages: 1}

func TestExtractorSendsHintAndImage(t *testing.T) {
	server, captured := newModelServer(t, http.StatusOK, "```json\n{\"Invoice Number\": \"INV-100\", \"Total Amount\": 42.5, \"Paid\": true, \"Notes\": null}\n```")
	observer := &observerFake{}
	extractor := NewExtractor(newTestClient(server.URL, observer))

	fields, err := extractor.ExtractFields(context.Background(), testPayload, domain.HintInvoice)
	if err != nil {
		t.Fatalf("ExtractFields() error = %v", err)
	}
	if captured.path != "/v1beta/models/gemini-2.5-flash:generateContent" {
		t.Fatalf("unexpected path %s", captured.path)
	}
	if captured.apiKey != "test-key" {
		t.Fatalf("expected api key header, got %q", captured.apiKey)
	}
	parts := captured.body.Contents[0].Parts
	if parts[0].InlineData == nil || parts[0].InlineData.MimeType != "image/png" || parts[0].InlineData.Data != "aW1n" {
		t.Fatalf("unexpected inline data %+v", parts[0].InlineData)
	}
	if !strings.Contains(parts[1].Text, "This is an invoice.") {
		t.Fatalf("prompt lacks invoice guidance: %s", parts[1].Text)
	}
	if captured.body.GenerationConfig.ResponseMimeType != "application/json" || captured.body.GenerationConfig.ResponseSchema != nil {
		t.Fatalf("unexpected generation config %+v", captured.body.GenerationConfig)
	}

	want := domain.FieldMap{"Invoice Number": "INV-100", "Total Amount": "42.5", "Paid": "true", "Notes": ""}
	for label, value := range want {
		if fields[label] != value {
			t.Fatalf("field %q: expected %q, got %q", label, value, fields[label])
		}
	}
	if len(observer.calls) != 1 || observer.calls[0] != OperationExtract || observer.errs[0] != nil {
		t.Fatalf("unexpected observer calls %v %v", observer.calls, observer.errs)
	}
}

func TestExtractorTreatsEmptyResponseAsNoFields(t *testing.T) {
	for _, text := range []string{"", "```json\n```", "null", "{}"} {
		server, _ := newModelServer(t, http.StatusOK, text)
		fields, err := NewExtractor(newTestClient(server.URL, nil)).ExtractFields(context.Background(), testPayload, domain.HintGeneric)
		if err != nil {
			t.Fatalf("%q: expected no error, got %v", text, err)
		}
		if fields == nil || len(fields) != 0 {
			t.Fatalf("%q: expected empty field map, got %+v", text, fields)
		}
	}
}

func TestExtractorRejectsNonObject(t *testing.T) {
	server, _ := newModelServer(t, http.StatusOK, `["a","b"]`)
	_, err := NewExtractor(newTestClient(server.URL, nil)).ExtractFields(context.Background(), testPayload, domain.HintGeneric)
	if !domain.IsKind(err, domain.ErrMalformedResponse) {
		t.Fatalf("expected malformed response, got %v", err)
	}
}

func TestVerifierParsesVerdicts(t *testing.T) {
	server, captured := newModelServer(t, http.StatusOK, `{"Invoice Number":{"match":true,"reason":""},"Total Amount":{"match":false,"reason":" Document shows $42.00 "}}`)
	verifier := NewVerifier(newTestClient(server.URL, nil))

	verdicts, err := verifier.VerifyFields(context.Background(), testPayload, domain.FieldMap{
		"Invoice Number": "INV-100",
		"Total Amount":   "$45.00",
	})
	if err != nil {
		t.Fatalf("VerifyFields() error = %v", err)
	}
	if !strings.Contains(captured.body.Contents[0].Parts[1].Text, `"Total Amount": "$45.00"`) {
		t.Fatalf("prompt lacks indented field json: %s", captured.body.Contents[0].Parts[1].Text)
	}
	if !verdicts["Invoice Number"].Match || verdicts["Invoice Number"].Reason != "" {
		t.Fatalf("unexpected match verdict %+v", verdicts["Invoice Number"])
	}
	if verdicts["Total Amount"].Match || verdicts["Total Amount"].Reason != "Document shows $42.00" {
		t.Fatalf("unexpected mismatch verdict %+v", verdicts["Total Amount"])
	}
}

func TestVerifierAndQualityRejectEmptyResponse(t *testing.T) {
	for _, body := range []string{"```json```", "{}", "```json\n{}\n```"} {
		server, _ := newModelServer(t, http.StatusOK, body)
		client := newTestClient(server.URL, nil)

		if verdicts, err := NewVerifier(client).VerifyFields(context.Background(), testPayload, domain.FieldMap{"A": "1"}); !domain.IsKind(err, domain.ErrMalformedResponse) {
			t.Fatalf("body %q: expected malformed response from verifier, got %v (%v)", body, err, verdicts)
		}
		if _, err := NewQualityAssessor(client).AssessQuality(context.Background(), testPayload); !domain.IsKind(err, domain.ErrMalformedResponse) {
			t.Fatalf("body %q: expected malformed response from quality, got %v", body, err)
		}
	}
}

func TestQualityAssessorSendsSchemaAndValidates(t *testing.T) {
	server, captured := newModelServer(t, http.StatusOK, `{"isGoodQuality":true,"score":92,"feedback":["Excellent image quality."]}`)
	report, err := NewQualityAssessor(newTestClient(server.URL, nil)).AssessQuality(context.Background(), testPayload)
	if err != nil {
		t.Fatalf("AssessQuality() error = %v", err)
	}
	if !report.IsGoodQuality || report.Score != 92 || len(report.Feedback) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if captured.body.GenerationConfig.ResponseSchema == nil {
		t.Fatalf("expected response schema on quality request")
	}

	bad, _ := newModelServer(t, http.StatusOK, `{"isGoodQuality":true,"score":140,"feedback":[]}`)
	if _, err := NewQualityAssessor(newTestClient(bad.URL, nil)).AssessQuality(context.Background(), testPayload); !domain.IsKind(err, domain.ErrMalformedResponse) {
		t.Fatalf("expected schema violation to be malformed, got %v", err)
	}
}

func TestMissingCredentialMakesNoRequest(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { requests++ }))
	defer server.Close()

	observer := &observerFake{}
	client := New(Options{
		BaseURL:   server.URL,
		LookupEnv: func(string) (string, bool) { return "  ", true },
		Observer:  observer,
	})
	_, err := NewQualityAssessor(client).AssessQuality(context.Background(), testPayload)
	if !domain.IsKind(err, domain.ErrMissingCredential) {
		t.Fatalf("expected missing credential, got %v", err)
	}
	if !strings.Contains(err.Error(), "API_KEY environment variable is not set") {
		t.Fatalf("unexpected message %v", err)
	}
	if requests != 0 {
		t.Fatalf("no request expected, got %d", requests)
	}
	if len(observer.errs) != 1 || observer.errs[0] == nil {
		t.Fatalf("observer must see the failed call")
	}
}

func TestUpstreamFailureIsTemporaryModelCall(t *testing.T) {
	server, _ := newModelServer(t, http.StatusServiceUnavailable, "")
	_, err := NewExtractor(newTestClient(server.URL, nil)).ExtractFields(context.Background(), testPayload, domain.HintGeneric)
	if !domain.IsKind(err, domain.ErrModelCall) || !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary model call error, got %v", err)
	}
	if !strings.Contains(err.Error(), "model overloaded") {
		t.Fatalf("expected upstream message in error, got %v", err)
	}
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected status error in chain, got %v", err)
	}
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	server, _ := newModelServer(t, http.StatusBadRequest, "")
	guard := resilience.NewGuard(resilience.Config{BreakerEnabled: true, BreakerMinRequests: 1, BreakerFailureRatio: 0.1})
	client := New(Options{
		BaseURL:   server.URL,
		LookupEnv: func(string) (string, bool) { return "k", true },
		Guard:     guard,
	})

	for i := 0; i < 3; i++ {
		_, err := NewExtractor(client).ExtractFields(context.Background(), testPayload, domain.HintGeneric)
		if !domain.IsKind(err, domain.ErrModelCall) || domain.IsKind(err, domain.ErrTemporary) {
			t.Fatalf("expected permanent model call error, got %v", err)
		}
	}
	if guard.State("gemini."+OperationExtract) != "closed" {
		t.Fatalf("bad requests must not open the breaker")
	}
}

func TestStripFences(t *testing.T) {
	if got := stripFences("```json\n{\"a\":1}\n```\n"); got != `{"a":1}` {
		t.Fatalf("unexpected stripped text %q", got)
	}
}
