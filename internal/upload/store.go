package upload

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// sniffLen is how many leading bytes are inspected to detect the real type.
const sniffLen = 512

// DefaultAllowedTypes are the image types accepted when none are configured.
var DefaultAllowedTypes = []string{"image/jpeg", "image/png", "image/webp"}

var allowedExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

var extensionByType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Config holds the upload store settings.
type Config struct {
	// Dir is where uploads are written.
	Dir string
	// BaseURL is the public origin that serves Dir under /media/.
	BaseURL string
	// AllowedTypes lists accepted content types.
	AllowedTypes []string
}

// Store writes uploaded images to a local directory under random names.
type Store struct {
	dir     string
	baseURL string
	allowed []string
	logger  *slog.Logger
}

// New creates the media directory if needed and returns a Store.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("upload directory cannot be empty")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	allowed := cfg.AllowedTypes
	if len(allowed) == 0 {
		allowed = DefaultAllowedTypes
	}
	normalized := make([]string, 0, len(allowed))
	for _, ct := range allowed {
		normalized = append(normalized, normalizeType(ct))
	}

	return &Store{
		dir:     cfg.Dir,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		allowed: normalized,
		logger:  logger.With(slog.String("component", "upload_store")),
	}, nil
}

// Dir returns the media directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save streams r into a new file and returns its name. The declared content
// type must be allowed and must agree with what the leading bytes look like.
// At most limit bytes are accepted; a larger upload is removed and
// ErrPayloadTooLarge is returned. A limit <= 0 disables the check.
func (s *Store) Save(ctx context.Context, r io.Reader, filename, contentType string, limit int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	declared := normalizeType(contentType)
	if !s.isAllowed(declared) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMediaType, contentType)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	detected := mimetype.Detect(head)
	if !mimetype.EqualsAny(detected.String(), s.allowed...) {
		return "", fmt.Errorf("%w: content looks like %s", ErrUnsupportedMediaType, detected.String())
	}

	name := newName(extension(filename, declared))
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	src := io.MultiReader(bytes.NewReader(head), r)
	if limit > 0 {
		src = io.LimitReader(src, limit+1)
	}

	written, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		s.remove(path)
		return "", fmt.Errorf("write upload: %w", copyErr)
	case limit > 0 && written > limit:
		s.remove(path)
		return "", fmt.Errorf("%w: limit is %d bytes", ErrPayloadTooLarge, limit)
	case closeErr != nil:
		s.remove(path)
		return "", fmt.Errorf("close upload: %w", closeErr)
	}

	s.logger.Debug("stored upload",
		slog.String("name", name),
		slog.String("content_type", detected.String()),
		slog.Int64("bytes", written))
	return name, nil
}

// Delete removes an upload. Deleting a missing file is not an error.
func (s *Store) Delete(name string) error {
	if !validName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete upload %s: %w", name, err)
	}
	return nil
}

// DeleteAll removes every named upload and returns the joined errors.
func (s *Store) DeleteAll(names []string) error {
	var errs []error
	for _, name := range names {
		if err := s.Delete(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublicURL returns the URL the provider fetches the upload from.
func (s *Store) PublicURL(name string) string {
	return s.baseURL + "/media/" + url.PathEscape(name)
}

func (s *Store) isAllowed(ct string) bool {
	for _, a := range s.allowed {
		if a == ct {
			return true
		}
	}
	return false
}

func (s *Store) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Error("failed to remove partial upload",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}

// extension picks the original extension when it is an allowed image
// extension, then the one for the content type, then .jpg.
func extension(filename, contentType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedExtensions[ext]; ok {
		return ext
	}
	if ext, ok := extensionByType[contentType]; ok {
		return ext
	}
	return ".jpg"
}

func newName(ext string) string {
	id := uuid.New()
	return hex.EncodeToString(id[:]) + ext
}

func normalizeType(ct string) string {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mediaType
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		filepath.Base(name) == name && !strings.ContainsAny(name, `/\`)
}
