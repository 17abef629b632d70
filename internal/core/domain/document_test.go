package domain

import (
	"errors"
	"testing"
)

func TestParseDocumentTypeHint(t *testing.T) {
	if hint, err := ParseDocumentTypeHint(""); err != nil || hint != HintGeneric {
		t.Fatalf("expected generic for empty, got %q %v", hint, err)
	}
	if hint, err := ParseDocumentTypeHint(" Invoice "); err != nil || hint != HintInvoice {
		t.Fatalf("expected invoice, got %q %v", hint, err)
	}
	if _, err := ParseDocumentTypeHint("passport"); !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestDocumentPreviewOnlyForImages(t *testing.T) {
	if !(Document{MimeType: "image/webp"}).HasPreview() {
		t.Fatalf("webp must have a preview")
	}
	if (Document{MimeType: "application/pdf"}).HasPreview() {
		t.Fatalf("pdf must not have a preview")
	}
	for _, mimeType := range []string{"image/svg+xml", "image/SVG+XML; charset=utf-8", "image/gif", "text/html"} {
		if (Document{MimeType: mimeType}).HasPreview() {
			t.Fatalf("%s must not have a preview", mimeType)
		}
	}
	if got := (Document{MimeType: " Image/JPG; q=1"}).PreviewMimeType(); got != "image/jpeg" {
		t.Fatalf("expected normalized jpeg preview type, got %q", got)
	}
}

func TestWrapErrorKeepsKindAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := WrapError(ErrModelCall, "extract fields", cause)
	if !IsKind(err, ErrModelCall) || !errors.Is(err, cause) {
		t.Fatalf("expected kind and cause in chain: %v", err)
	}
	if KindName(err) != "model_call" {
		t.Fatalf("unexpected kind name %q", KindName(err))
	}
	if WrapError(ErrModelCall, "noop", nil) != nil {
		t.Fatalf("expected nil for nil cause")
	}
}
