package domain

import (
	"fmt"
	"strings"
	"time"
)

// Document is the user-provided source artifact for one session.
// It is never mutated after selection; a new selection replaces it wholesale.
type Document struct {
	Filename   string
	MimeType   string
	Content    []byte
	SelectedAt time.Time
}

var previewTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/webp": {},
}

// PreviewMimeType returns the normalized raster type the preview is served
// as, or "" when the document has no preview. Only png, jpeg and webp qualify;
// PDFs and other image types such as svg get no visual preview.
func (d Document) PreviewMimeType() string {
	mediaType, _, _ := strings.Cut(d.MimeType, ";")
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if mediaType == "image/jpg" || mediaType == "image/pjpeg" {
		mediaType = "image/jpeg"
	}
	if _, ok := previewTypes[mediaType]; !ok {
		return ""
	}
	return mediaType
}

// HasPreview reports whether the document can be shown as an image preview.
func (d Document) HasPreview() bool {
	return d.PreviewMimeType() != ""
}

func (d Document) Info() DocumentInfo {
	return DocumentInfo{
		Filename:   d.Filename,
		MimeType:   d.MimeType,
		SizeBytes:  len(d.Content),
		HasPreview: d.HasPreview(),
		SelectedAt: d.SelectedAt,
	}
}

type DocumentInfo struct {
	Filename   string    `json:"filename"`
	MimeType   string    `json:"mime_type"`
	SizeBytes  int       `json:"size_bytes"`
	HasPreview bool      `json:"has_preview"`
	SelectedAt time.Time `json:"selected_at"`
}

// EncodedPayload is the transport-safe form of a Document.
type EncodedPayload struct {
	Data     string
	MimeType string
	Pages    int
}

type DocumentTypeHint string

const (
	HintGeneric DocumentTypeHint = "generic"
	HintIDCard  DocumentTypeHint = "id_card"
	HintInvoice DocumentTypeHint = "invoice"
	HintReceipt DocumentTypeHint = "receipt"
)

var documentTypeHints = []DocumentTypeHint{HintGeneric, HintIDCard, HintInvoice, HintReceipt}

func DocumentTypeHints() []DocumentTypeHint {
	out := make([]DocumentTypeHint, len(documentTypeHints))
	copy(out, documentTypeHints)
	return out
}

// ParseDocumentTypeHint maps user input onto the closed hint set.
// An empty value selects the generic hint.
func ParseDocumentTypeHint(raw string) (DocumentTypeHint, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return HintGeneric, nil
	}
	for _, hint := range documentTypeHints {
		if string(hint) == value {
			return hint, nil
		}
	}
	return "", WrapError(ErrInvalidInput, "parse document type", fmt.Errorf("unknown document type %q", raw))
}
