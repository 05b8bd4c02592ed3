package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/theirix/simple-file-repository/interfaces"
)

// DefaultMimeType is reported when the content type cannot be determined.
const DefaultMimeType = "application/octet-stream"

// SniffMimeType guesses the media type of content from its leading bytes.
// Parameters such as charset are dropped.
func SniffMimeType(prefix []byte) string {
	if len(prefix) == 0 {
		return DefaultMimeType
	}
	media, _, _ := strings.Cut(mimetype.Detect(prefix).String(), ";")
	media = strings.TrimSpace(media)
	if media == "" {
		return DefaultMimeType
	}
	return media
}

// DeleteSilent deletes a blob and ignores ErrNotFound.
// Any other failure is returned unchanged.
func DeleteSilent(ctx context.Context, s interfaces.Storage, id interfaces.BlobID) error {
	err := s.Delete(ctx, id)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil
	}
	return err
}
