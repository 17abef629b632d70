package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
)

func TestLoadResolvesRelativePathAndType(t *testing.T) {
	dir := t.TempDir()
	content := []byte("\x89PNG\r\n\x1a\n0000")
	if err := os.WriteFile(filepath.Join(dir, "scan.png"), content, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	doc, err := NewLoader(dir, 1024).Load(context.Background(), "scan.png")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.Filename != "scan.png" || doc.MimeType != "image/png" {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if string(doc.Content) != string(content) {
		t.Fatalf("content mismatch")
	}
	if doc.SelectedAt.IsZero() {
		t.Fatalf("expected selection time")
	}
}

func TestLoadSniffsUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.bin")
	if err := os.WriteFile(path, []byte("%PDF-1.7\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	doc, err := NewLoader("", 1024).Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.MimeType != "application/pdf" {
		t.Fatalf("expected sniffed pdf, got %q", doc.MimeType)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	big := filepath.Join(dir, "big.jpg")
	if err := os.WriteFile(big, make([]byte, 64), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	loader := NewLoader(dir, 16)

	if _, err := loader.Load(context.Background(), ""); !domain.IsKind(err, domain.ErrMissingInput) {
		t.Fatalf("expected missing input, got %v", err)
	}
	if _, err := loader.Load(context.Background(), "nope.png"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for missing file, got %v", err)
	}
	if _, err := loader.Load(context.Background(), "big.jpg"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for oversized file, got %v", err)
	}
	if _, err := loader.Load(context.Background(), "."); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for directory, got %v", err)
	}
}
