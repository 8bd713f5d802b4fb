// Package codec reads and writes image files.
package codec

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/road-overlay/internal/segment"
)

// Decode reads an image in any supported format. Pixel values are kept as
// stored; EXIF orientation is not applied.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", segment.ErrInvalidImage, err)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", segment.ErrInvalidImage, b.Dx(), b.Dy())
	}
	return img, nil
}

// Load decodes the image file at path.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", segment.ErrInvalidImage, err)
	}
	defer f.Close()

	return Decode(f)
}

// Encode writes img to w in the given format.
func Encode(w io.Writer, img image.Image, format imaging.Format) error {
	return imaging.Encode(w, img, format)
}

// Save encodes img in the format implied by the extension of path. The data
// is written to a temporary file next to path and renamed into place, so a
// failed save never leaves a partial file behind.
func Save(path string, img image.Image) error {
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, img, format); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode %s: %w", format, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to set output permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}
