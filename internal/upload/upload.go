// Package upload stores customer receipt files on local disk.
package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront/internal/logger"
)

var (
	ErrTooLarge        = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEmpty           = errors.New("file is empty")
)

// allowed maps sniffed MIME types to the extensions a client may name them with.
// The first extension is the canonical one used on disk.
var allowed = map[string][]string{
	"image/jpeg":      {".jpg", ".jpeg"},
	"image/png":       {".png"},
	"image/gif":       {".gif"},
	"image/webp":      {".webp"},
	"application/pdf": {".pdf"},
}

// Stored describes a saved file.
type Stored struct {
	Name     string
	MIME     string
	Size     int64
	URL      string
	Path     string
	Original string
}

// Receipts writes uploads into dir and serves them under urlPrefix.
type Receipts struct {
	dir       string
	urlPrefix string
	maxBytes  int64
	logger    *zap.Logger
}

func NewReceipts(dir, urlPrefix string, maxBytes int64, l *zap.Logger) *Receipts {
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	return &Receipts{
		dir:       dir,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
		maxBytes:  maxBytes,
		logger:    logger.OrNop(l).Named("uploads"),
	}
}

// MaxBytes is the per-file size limit.
func (r *Receipts) MaxBytes() int64 {
	return r.maxBytes
}

// Save validates and stores one file. The extension of filename must agree
// with the sniffed content type.
func (r *Receipts) Save(filename string, src io.Reader) (*Stored, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(src, r.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if n == 0 {
		return nil, ErrEmpty
	}
	if n > r.maxBytes {
		return nil, ErrTooLarge
	}

	mt := mimetype.Detect(buf.Bytes())
	exts, ok := allowed[mt.String()]
	if !ok {
		r.logger.Info("upload rejected", zap.String("mime", mt.String()), zap.String("filename", filename))
		return nil, ErrUnsupportedType
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !contains(exts, ext) {
		r.logger.Info("upload extension mismatch", zap.String("mime", mt.String()), zap.String("ext", ext))
		return nil, ErrUnsupportedType
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	name := uuid.NewString() + exts[0]
	path := filepath.Join(r.dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("write upload: %w", err)
	}

	return &Stored{
		Name:     name,
		MIME:     mt.String(),
		Size:     n,
		URL:      r.urlPrefix + "/" + name,
		Path:     path,
		Original: filepath.Base(filename),
	}, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
