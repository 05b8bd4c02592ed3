package photo

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/theirix/simple-file-repository/interfaces"
)

// DefaultConvertPath is the ImageMagick executable looked up in PATH when none is configured.
const DefaultConvertPath = "convert"

// Converter turns the image at src into a square thumbnail of size pixels at dst.
// The output format follows the extension of dst.
type Converter interface {
	// Available returns ErrConverterUnavailable if Convert cannot run.
	Available() error

	Convert(ctx context.Context, src, dst string, size int) error
}

// ImageMagickConverter runs the ImageMagick convert executable.
type ImageMagickConverter struct {
	path string
}

// NewImageMagickConverter returns a converter for the executable at path, or
// the convert executable in PATH if path is empty.
func NewImageMagickConverter(path string) *ImageMagickConverter {
	if path == "" {
		path = DefaultConvertPath
	}
	return &ImageMagickConverter{path: path}
}

// Path returns the configured executable.
func (c *ImageMagickConverter) Path() string {
	return c.path
}

// Available resolves the executable without running it.
func (c *ImageMagickConverter) Available() error {
	if _, err := exec.LookPath(c.path); err != nil {
		return fmt.Errorf("%w: %s: %w", interfaces.ErrConverterUnavailable, c.path, err)
	}
	return nil
}

// Args returns the convert arguments producing an auto-oriented thumbnail,
// centered on a transparent square canvas with metadata stripped.
func (c *ImageMagickConverter) Args(src, dst string, size int) []string {
	dim := strconv.Itoa(size) + "x" + strconv.Itoa(size)
	return []string{
		src,
		"-auto-orient",
		"-thumbnail", dim,
		"-gravity", "center",
		"-background", "transparent",
		"-extent", dim,
		"-strip",
		dst,
	}
}

// Convert runs convert once. A non-zero exit is returned with its stderr.
func (c *ImageMagickConverter) Convert(ctx context.Context, src, dst string, size int) error {
	cmd := exec.CommandContext(ctx, c.path, c.Args(src, dst, size)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("convert failed: %w: %s", err, msg)
		}
		return fmt.Errorf("convert failed: %w", err)
	}
	return nil
}
