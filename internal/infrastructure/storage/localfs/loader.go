package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
	"github.com/kirillkom/docverify-assistant/internal/infrastructure/encoder"
)

// Loader reads documents from the local filesystem. Relative paths resolve
// against basePath when one is set.
type Loader struct {
	basePath string
	maxBytes int64
	now      func() time.Time
}

func NewLoader(basePath string, maxBytes int) *Loader {
	if maxBytes <= 0 {
		maxBytes = encoder.DefaultMaxBytes
	}
	return &Loader{basePath: basePath, maxBytes: int64(maxBytes), now: time.Now}
}

func (l *Loader) Load(_ context.Context, path string) (domain.Document, error) {
	if path == "" {
		return domain.Document{}, domain.WrapError(domain.ErrMissingInput, "load document", errors.New("please select a file first"))
	}
	if l.basePath != "" && !filepath.IsAbs(path) {
		path = filepath.Join(l.basePath, path)
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Document{}, domain.WrapError(domain.ErrInvalidInput, "load document", fmt.Errorf("file %s does not exist", path))
		}
		return domain.Document{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return domain.Document{}, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return domain.Document{}, domain.WrapError(domain.ErrInvalidInput, "load document", fmt.Errorf("%s is a directory", path))
	}
	if info.Size() > l.maxBytes {
		return domain.Document{}, domain.WrapError(domain.ErrInvalidInput, "load document",
			fmt.Errorf("file is %d bytes, limit is %d", info.Size(), l.maxBytes))
	}

	content, err := io.ReadAll(io.LimitReader(f, l.maxBytes+1))
	if err != nil {
		return domain.Document{}, fmt.Errorf("read file: %w", err)
	}

	return domain.Document{
		Filename:   filepath.Base(path),
		MimeType:   encoder.DetectMimeType(mime.TypeByExtension(filepath.Ext(path)), content),
		Content:    content,
		SelectedAt: l.now().UTC(),
	}, nil
}
