package photo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/theirix/simple-file-repository/interfaces"
)

const (
	// DefaultThumbSize is the thumbnail width and height used when none is given.
	DefaultThumbSize = 200

	// TagKind marks derived blobs. Thumbnails are stored with kind=thumb.
	TagKind   = "kind"
	KindThumb = "thumb"
)

// PhotoStorage adds thumbnail generation to any storage backend.
// Every interfaces.Storage operation is delegated unchanged.
type PhotoStorage struct {
	interfaces.Storage

	converter Converter
	log       *slog.Logger
}

// NewPhotoStorage wraps backend. The converter is only checked when a
// thumbnail is requested.
func NewPhotoStorage(backend interfaces.Storage, converter Converter, log *slog.Logger) *PhotoStorage {
	if log == nil {
		log = slog.Default()
	}
	return &PhotoStorage{
		Storage:   backend,
		converter: converter,
		log:       log,
	}
}

// Backend returns the wrapped storage.
func (p *PhotoStorage) Backend() interfaces.Storage {
	return p.Storage
}

// ExtensionFor returns the file extension, including the dot, for mimeType.
func ExtensionFor(mimeType string) (string, error) {
	m := mimetype.Lookup(mimeType)
	if m == nil || m.Extension() == "" {
		return "", fmt.Errorf("%w: %q", interfaces.ErrNoExtension, mimeType)
	}
	return m.Extension(), nil
}

// GenerateThumbnail reads the image id, converts it to a size x size image of
// mimeType and stores the result as a new blob tagged kind=thumb. A size of
// zero or less means DefaultThumbSize. Converter failures are not retried.
func (p *PhotoStorage) GenerateThumbnail(ctx context.Context, id interfaces.BlobID, mimeType string, size int) (interfaces.BlobID, error) {
	if size <= 0 {
		size = DefaultThumbSize
	}
	if p.converter == nil {
		return interfaces.BlobID{}, fmt.Errorf("%w: no converter configured", interfaces.ErrConverterUnavailable)
	}
	if err := p.converter.Available(); err != nil {
		return interfaces.BlobID{}, err
	}
	ext, err := ExtensionFor(mimeType)
	if err != nil {
		return interfaces.BlobID{}, err
	}

	content, err := p.Get(ctx, id)
	if err != nil {
		return interfaces.BlobID{}, err
	}

	start := time.Now()
	tmpDir, err := os.MkdirTemp("", "sfr-thumb-")
	if err != nil {
		return interfaces.BlobID{}, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	src := filepath.Join(tmpDir, "saved-"+id.String()+ext)
	if err := os.WriteFile(src, content, 0o600); err != nil {
		return interfaces.BlobID{}, fmt.Errorf("failed to write source image: %w", err)
	}
	dst := filepath.Join(tmpDir, "target"+ext)
	if err := p.converter.Convert(ctx, src, dst, size); err != nil {
		p.log.Error("Thumbnail conversion failed",
			slog.String("storage", p.Name()),
			slog.String("id", id.String()),
			"err", err)
		return interfaces.BlobID{}, err
	}

	thumb, err := os.ReadFile(dst)
	if err != nil {
		return interfaces.BlobID{}, fmt.Errorf("failed to read thumbnail: %w", err)
	}

	thumbID, err := p.Store(ctx, thumb, interfaces.StoreOptions{
		ContentType: mimeType,
		Tags:        map[string]string{TagKind: KindThumb},
	})
	if err != nil {
		return interfaces.BlobID{}, err
	}

	p.log.Debug("Generated thumbnail",
		slog.String("storage", p.Name()),
		slog.String("source", id.String()),
		slog.String("thumbnail", thumbID.String()),
		slog.Int("size", size),
		slog.Duration("duration", time.Since(start)))
	return thumbID, nil
}

// String describes the wrapped backend.
func (p *PhotoStorage) String() string {
	return fmt.Sprintf("PhotoStorage(%s)", p.Name())
}
