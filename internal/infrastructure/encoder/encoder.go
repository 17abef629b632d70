package encoder

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
)

const (
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
	MimeWEBP = "image/webp"
	MimePDF  = "application/pdf"

	DefaultMaxBytes = 20 << 20
)

var acceptedTypes = map[string]struct{}{
	MimePNG:  {},
	MimeJPEG: {},
	MimeWEBP: {},
	MimePDF:  {},
}

var errEmptyDocument = errors.New("document is empty")

// Encoder turns a selected document into base64 plus a normalized media type.
type Encoder struct {
	maxBytes int
}

func New(maxBytes int) *Encoder {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Encoder{maxBytes: maxBytes}
}

func (e *Encoder) Encode(_ context.Context, doc domain.Document) (domain.EncodedPayload, error) {
	if len(doc.Content) == 0 {
		return domain.EncodedPayload{}, domain.WrapError(domain.ErrInvalidInput, "encode document", errEmptyDocument)
	}
	if len(doc.Content) > e.maxBytes {
		return domain.EncodedPayload{}, domain.WrapError(domain.ErrInvalidInput, "encode document",
			fmt.Errorf("document is %d bytes, limit is %d", len(doc.Content), e.maxBytes))
	}

	mimeType := DetectMimeType(doc.MimeType, doc.Content)
	if _, ok := acceptedTypes[mimeType]; !ok {
		return domain.EncodedPayload{}, domain.WrapError(domain.ErrInvalidInput, "encode document",
			fmt.Errorf("unsupported media type %q", mimeType))
	}

	pages := 1
	if mimeType == MimePDF {
		count, err := countPDFPages(doc.Content)
		if err != nil {
			return domain.EncodedPayload{}, domain.WrapError(domain.ErrInvalidInput, "encode document", err)
		}
		pages = count
	}

	return domain.EncodedPayload{
		Data:     base64.StdEncoding.EncodeToString(doc.Content),
		MimeType: mimeType,
		Pages:    pages,
	}, nil
}

// DetectMimeType normalizes the declared type and falls back to content
// sniffing when the declaration is missing or generic.
func DetectMimeType(declared string, content []byte) string {
	mimeType := NormalizeMimeType(declared)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = NormalizeMimeType(http.DetectContentType(content))
	}
	return mimeType
}

func NormalizeMimeType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		mediaType = strings.ToLower(strings.SplitN(raw, ";", 2)[0])
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if mediaType == "image/jpg" || mediaType == "image/pjpeg" {
		return MimeJPEG
	}
	return mediaType
}

// Accepted reports whether the media type can be sent to the model.
func Accepted(mimeType string) bool {
	_, ok := acceptedTypes[NormalizeMimeType(mimeType)]
	return ok
}

// countPDFPages opens the document with the pdf reader. The reader panics on
// some malformed inputs, so those are reported as unreadable.
func countPDFPages(content []byte) (pages int, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			pages = 0
			err = fmt.Errorf("unreadable pdf: %v", recovered)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return 0, fmt.Errorf("unreadable pdf: %w", err)
	}
	pages = reader.NumPage()
	if pages < 1 {
		return 0, errors.New("pdf has no pages")
	}
	return pages, nil
}
