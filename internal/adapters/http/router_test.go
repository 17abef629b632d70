package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/kirillkom/docverify-assistant/internal/config"
	"github.com/kirillkom/docverify-assistant/internal/core/domain"
)

func decodeBody[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(res.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", res.Body.String(), err)
	}
	return out
}

func doJSON(handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func multipartUpload(t *testing.T, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestHealthzEndpoint(t *testing.T) {
	handler := newTestHandler(config.Config{}, newSessionsFake())
	res := doJSON(handler, http.MethodGet, "/healthz", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestLoadOpenAPIValidatesEmbeddedContract(t *testing.T) {
	doc, router, err := loadOpenAPI(context.Background())
	if err != nil {
		t.Fatalf("load openapi: %v", err)
	}
	if doc.Paths.Find("/v1/sessions/{id}/capture/confirm") == nil {
		t.Fatalf("expected capture confirm path in contract")
	}
	if router == nil {
		t.Fatalf("expected router")
	}
}

func TestOpenAPIDocumentIsServed(t *testing.T) {
	handler := newTestHandler(config.Config{}, newSessionsFake())
	res := doJSON(handler, http.MethodGet, "/openapi.json", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	body := decodeBody[map[string]any](t, res)
	if body["openapi"] != "3.0.3" {
		t.Fatalf("unexpected openapi version: %v", body["openapi"])
	}
}

func TestCreateSessionReturns201(t *testing.T) {
	handler := newTestHandler(config.Config{}, newSessionsFake())
	res := doJSON(handler, http.MethodPost, "/v1/sessions", "")
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	view := decodeBody[map[string]any](t, res)
	if view["id"] != "s-new" || view["state"] != "idle" {
		t.Fatalf("unexpected session: %v", view)
	}
}

func TestCreateSessionLimitMapsTo409(t *testing.T) {
	sessions := newSessionsFake()
	sessions.createErr = domain.WrapError(domain.ErrInvalidState, "create session", errors.New("session limit reached"))
	handler := newTestHandler(config.Config{}, sessions)

	res := doJSON(handler, http.MethodPost, "/v1/sessions", "")
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
}

func TestGetSessionReturns404ForUnknownID(t *testing.T) {
	handler := newTestHandler(config.Config{}, newSessionsFake())
	res := doJSON(handler, http.MethodGet, "/v1/sessions/missing", "")
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
	body := decodeBody[errorResponse](t, res)
	if body.Kind != "not_found" {
		t.Fatalf("expected not_found kind, got %q", body.Kind)
	}
}

func TestDeleteSessionReturns204(t *testing.T) {
	sessions := newSessionsFake().withSession("s-1", domain.StateIdle)
	handler := newTestHandler(config.Config{}, sessions)

	res := doJSON(handler, http.MethodDelete, "/v1/sessions/s-1", "")
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if _, ok := sessions.views["s-1"]; ok {
		t.Fatalf("expected session to be closed")
	}
}

func TestSelectDocumentPassesUploadToSession(t *testing.T) {
	sessions := newSessionsFake().withSession("s-1", domain.StateIdle)
	handler := newTestHandler(config.Config{UploadMaxBytes: 1024}, sessions)

	body, contentType := multipartUpload(t, "invoice.png", "image/png", []byte("\x89PNG\r\n\x1a\nrest"))
	req := httptest.NewRequest(http.MethodPut, "/v1/sessions/s-1/document", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if sessions.lastDoc.Filename != "invoice.png" || sessions.lastDoc.MimeType != "image/png" {
		t.Fatalf("unexpected document: %+v", sessions.lastDoc)
	}
	if sessions.lastDoc.SelectedAt.IsZero() {
		t.Fatalf("expected selection time to be set")
	}
}

func TestSelectDocumentDetectsMissingContentType(t *testing.T) {
	sessions := newSessionsFake().withSession("s-1", domain.StateIdle)
	handler := newTestHandler(config.Config{UploadMaxBytes: 1024}, sessions)

	body, contentType := multipartUpload(t, "scan", "", []byte("%PDF-1.4\n%..."))
	req := httptest.NewRequest(http.MethodPut, "/v1/sessions/s-1/document", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if sessions.lastDoc.MimeType != "application/pdf" {
		t.Fatalf("expected sniffed pdf type, got %q", sessions.lastDoc.MimeType)
	}
}

func TestSelectDocumentRejectsOversizedUpload(t *testing.T) {
	sessions := newSessionsFake().withSession("s-1", domain.StateIdle)
	handler := newTestHandler(config.Config{UploadMaxBytes: 8}, sessions)

	body, contentType := multipartUpload(t, "big.png", "image/png", bytes.Repeat([]byte{1}, 64))
	req := httptest.NewRequest(http.MethodPut, "/v1/sessions/s-1/document", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.Code)
	}
	if sessions.lastDoc.Filename != "" {
		t.Fatalf("oversized document must not reach the session")
	}
}

func TestSelectDocumentRequiresFileField(t *testing.T) {
	sessions := newSessionsFake().withSession("s-1", domain.StateIdle)
	handler := newTestHandler(config.Config{}, sessions)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	_ = writer.WriteField("other", "value")
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPut, "/v1/sessions/s-1/document", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestSetDocumentTypeStoresHint(t *testing.T) {
	sessions := newSessionsFake().withSession("s-1", domain.StateIdle)
	handler := newTestHandler(config.Config{}, sessions)

	res := doJSON(handler, http.MethodPut, "/v1/sessions/s-1/document-type", `{"document_type":"invoice"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if sessions.lastHint != domain.HintInvoice {
		t.Fatalf("expected invoice hint, got %q", sessions.lastHint)
	}
}

func TestSetDocumentTypeRejectsUnknownHint(t *testing.T) {
	sessions := newSessionsFake().withSession("s-1", domain.StateIdle)
	handler := newTestHandler(config.Config{}, sessions)

	res := doJSON(handler, http.MethodPut, "/v1/sessions/s-1/document-type", `{"document_type":"passport"}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	body := decodeBody[errorResponse](t, res)
	if body.Kind != "invalid_input" {
		t.Fatalf("expected invalid_input kind, got %q", body.Kind)
	}
	if sessions.lastHint != "" {
		t.Fatalf("invalid hint must not reach the session")
	}
}

func TestEditFieldValidatesBody(t *testing.T) {
	sessions := newSessionsFake().withSession("s-1", domain.StateIdle)
	handler := newTestHandler(config.Config{}, sessions)

	res := doJSON(handler, http.MethodPatch, "/v1/sessions/s-1/fields", `{"label":""}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid body, got %d", res.Code)
	}
}

func TestExtractionThenEditField(t *testing.T) {
	sessions := newSessionsFake().withSession("s-1", domain.StateIdle)
	handler := newTestHandler(config.Config{}, sessions)

	res := doJSON(handler, http.MethodPost, "/v1/sessions/s-1/extraction", "")
	if res.Code != http.StatusOK {
		t.Fatalf("extraction expected 200, got %d: %s", res.Code, res.Body.String())
	}

	res = doJSON(handler, http.MethodPatch, "/v1/sessions/s-1/fields", `{"label":"Total Amount","value":"$120.00"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("edit expected 200, got %d: %s", res.Code, res.Body.String())
	}
	view := decodeBody[domain.SessionView](t, res)
	if view.Fields["Total Amount"] != "$120.00" {
		t.Fatalf("expected edited value, got %v", view.Fields)
	}

	res = doJSON(handler, http.MethodPatch, "/v1/sessions/s-1/fields", `{"label":"Nope","value":"x"}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("unknown label expected 400, got %d", res.Code)
	}
}

func TestExtractionFailureReturnsSessionSnapshot(t *testing.T) {
	sessions := newSessionsFake().withSession("s-1", domain.StateIdle)
	sessions.extractErr = domain.WrapError(domain.ErrMissingCredential, "request extraction", errors.New("API_KEY environment variable is not set"))
	handler := newTestHandler(config.Config{}, sessions)

	res := doJSON(handler, http.MethodPost, "/v1/sessions/s-1/extraction", "")
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	body := decodeBody[errorResponse](t, res)
	if body.Kind != "missing_credential" {
		t.Fatalf("expected missing_credential kind, got %q", body.Kind)
	}
	if body.Session == nil || body.Session.State != domain.StateIdle {
		t.Fatalf("expected idle session snapshot, got %+v", body.Session)
	}
}

func TestVerificationModelFailureMapsTo502(t *testing.T) {
	sessions := newSessionsFake().withSession("s-1", domain.StateEditing)
	sessions.verifyErr = domain.WrapError(domain.ErrModelCall, "request verification", errors.New("status 500"))
	handler := newTestHandler(config.Config{}, sessions)

	res := doJSON(handler, http.MethodPost, "/v1/sessions/s-1/verification", "")
	if res.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", res.Code)
	}
	body := decodeBody[errorResponse](t, res)
	if body.Session == nil || body.Session.State != domain.StateEditing {
		t.Fatalf("expected editing snapshot, got %+v", body.Session)
	}
}

func TestVerificationReturnsSummary(t *testing.T) {
	sessions := newSessionsFake().withSession("s-1", domain.StateEditing)
	handler := newTestHandler(config.Config{}, sessions)

	res := doJSON(handler, http.MethodPost, "/v1/sessions/s-1/verification", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	view := decodeBody[domain.SessionView](t, res)
	if view.Summary == nil || view.Summary.Accuracy != 100 {
		t.Fatalf("expected 100%% accuracy summary, got %+v", view.Summary)
	}
}

func TestPreviewReturnsImageBytes(t *testing.T) {
	sessions := newSessionsFake().withSession("s-1", domain.StateIdle)
	sessions.docs["s-1"] = domain.Document{Filename: "a.png", MimeType: "image/png", Content: []byte("png-bytes")}
	handler := newTestHandler(config.Config{}, sessions)

	res := doJSON(handler, http.MethodGet, "/v1/sessions/s-1/document/preview", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get("Content-Type") != "image/png" || res.Body.String() != "png-bytes" {
		t.Fatalf("unexpected preview response: %q %q", res.Header().Get("Content-Type"), res.Body.String())
	}
	if res.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected nosniff on preview")
	}
}

func TestPreviewReturns404ForUploadedSVG(t *testing.T) {
	sessions := newSessionsFake().withSession("s-1", domain.StateIdle)
	handler := newTestHandler(config.Config{UploadMaxBytes: 1024}, sessions)

	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg"><script>alert(1)</script></svg>`)
	body, contentType := multipartUpload(t, "logo.svg", "image/svg+xml", svg)
	req := httptest.NewRequest(http.MethodPut, "/v1/sessions/s-1/document", body)
	req.Header.Set("Content-Type", contentType)
	upload := httptest.NewRecorder()
	handler.ServeHTTP(upload, req)
	if upload.Code != http.StatusOK {
		t.Fatalf("expected upload to be stored, got %d: %s", upload.Code, upload.Body.String())
	}

	res := doJSON(handler, http.MethodGet, "/v1/sessions/s-1/document/preview", "")
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for svg preview, got %d", res.Code)
	}
	if strings.Contains(res.Header().Get("Content-Type"), "svg") || strings.Contains(res.Body.String(), "<script>") {
		t.Fatalf("svg must not be served: %q %q", res.Header().Get("Content-Type"), res.Body.String())
	}
}

func TestPreviewReturns404ForPDF(t *testing.T) {
	sessions := newSessionsFake().withSession("s-1", domain.StateIdle)
	sessions.docs["s-1"] = domain.Document{Filename: "a.pdf", MimeType: "application/pdf", Content: []byte("%PDF")}
	handler := newTestHandler(config.Config{}, sessions)

	res := doJSON(handler, http.MethodGet, "/v1/sessions/s-1/document/preview", "")
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestExportReturnsWorkbook(t *testing.T) {
	sessions := newSessionsFake().withSession("s-1", domain.StateVerified)
	exporter := &exporterFake{}
	handler := newTestRouter(config.Config{}, sessions, exporter).Handler()

	res := doJSON(handler, http.MethodGet, "/v1/sessions/s-1/export.xlsx", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Header().Get("Content-Disposition"), "session-s-1.xlsx") {
		t.Fatalf("unexpected disposition: %q", res.Header().Get("Content-Disposition"))
	}
	if len(exporter.exported) != 1 || exporter.exported[0].ID != "s-1" {
		t.Fatalf("expected exporter to receive session view, got %+v", exporter.exported)
	}
}

func TestCaptureFrameReturnsJPEG(t *testing.T) {
	sessions := newSessionsFake().withSession("s-1", domain.StateIdle)
	sessions.captureView = domain.CaptureView{State: domain.CaptureLive}
	sessions.frame = []byte{0xff, 0xd8, 0xff}
	handler := newTestHandler(config.Config{}, sessions)

	res := doJSON(handler, http.MethodGet, "/v1/sessions/s-1/capture/frame", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get("Content-Type") != "image/jpeg" {
		t.Fatalf("expected jpeg content type, got %q", res.Header().Get("Content-Type"))
	}
	if res.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected nosniff on frame")
	}
}

func TestOpenCaptureWithoutDeviceMapsTo503(t *testing.T) {
	sessions := newSessionsFake().withSession("s-1", domain.StateIdle)
	sessions.captureErr = domain.WrapError(domain.ErrDeviceUnavailable, "open capture", errors.New("no capture device configured"))
	handler := newTestHandler(config.Config{}, sessions)

	res := doJSON(handler, http.MethodPost, "/v1/sessions/s-1/capture", "")
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
	body := decodeBody[errorResponse](t, res)
	if body.Kind != "device_unavailable" {
		t.Fatalf("expected device_unavailable kind, got %q", body.Kind)
	}
}

func TestConfirmCaptureSelectsDocument(t *testing.T) {
	sessions := newSessionsFake().withSession("s-1", domain.StateIdle)
	sessions.captureView = domain.CaptureView{State: domain.CaptureCaptured}
	handler := newTestHandler(config.Config{}, sessions)

	res := doJSON(handler, http.MethodPost, "/v1/sessions/s-1/capture/confirm", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if sessions.lastDoc.MimeType != "image/jpeg" {
		t.Fatalf("expected captured jpeg to be selected, got %+v", sessions.lastDoc)
	}
}

func TestUnsupportedMethodReturns405(t *testing.T) {
	handler := newTestHandler(config.Config{}, newSessionsFake().withSession("s-1", domain.StateIdle))
	res := doJSON(handler, http.MethodPost, "/v1/sessions/s-1/document/preview", "")
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}
