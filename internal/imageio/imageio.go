package imageio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/gographics/imagick.v3/imagick"
)

// Image is a decoded in-memory raster: interleaved 8-bit samples in
// discovery order. It is never mutated after decode.
type Image struct {
	Pixels   []byte
	Width    int
	Height   int
	Channels int
}

// Empty reports whether the image carries no pixel data.
func (im *Image) Empty() bool {
	return im == nil || len(im.Pixels) == 0 || im.Width == 0 || im.Height == 0
}

// ImageSet is an ordered sequence of decoded images. Order matches the
// input path order; it is preserved for logging and debugging.
type ImageSet struct {
	Images []*Image
	Paths  []string
}

// Len returns the number of images in the set.
func (s *ImageSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Images)
}

// LoadError identifies the single file that broke an all-or-nothing load.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load image %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Loader decodes image files into memory via ImageMagick.
type Loader struct{}

// NewLoader returns a Loader.
func NewLoader() *Loader { return &Loader{} }

// Load decodes every path into an ImageSet preserving input order. The
// contract is all-or-nothing: if any path fails to decode the whole load
// fails with a LoadError naming that path, and the caller must not
// proceed with a subset. No caching across calls.
func (l *Loader) Load(ctx context.Context, paths []string) (*ImageSet, error) {
	imagick.Initialize()
	defer imagick.Terminate()

	set := &ImageSet{
		Images: make([]*Image, 0, len(paths)),
		Paths:  append([]string(nil), paths...),
	}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, &LoadError{Path: path, Err: err}
		}
		img, err := decodeFile(path)
		if err != nil {
			return nil, &LoadError{Path: path, Err: err}
		}
		set.Images = append(set.Images, img)
	}
	return set, nil
}

func decodeFile(path string) (*Image, error) {
	mw := imagick.NewMagickWand()
	defer mw.Destroy()

	if err := mw.ReadImage(path); err != nil {
		return nil, err
	}
	if err := mw.AutoOrientImage(); err != nil {
		return nil, fmt.Errorf("failed to auto-orient: %w", err)
	}

	width := mw.GetImageWidth()
	height := mw.GetImageHeight()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("decoded to empty raster")
	}

	raw, err := mw.ExportImagePixels(0, 0, width, height, "RGB", imagick.PIXEL_CHAR)
	if err != nil {
		return nil, fmt.Errorf("failed to export pixels: %w", err)
	}
	pixels, ok := raw.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected pixel storage type %T", raw)
	}

	return &Image{
		Pixels:   pixels,
		Width:    int(width),
		Height:   int(height),
		Channels: 3,
	}, nil
}

// Writer persists a produced panorama to durable storage.
type Writer struct {
	// JPEGQuality applies when the destination is a JPEG. Zero keeps the
	// encoder default.
	JPEGQuality int
}

// NewWriter returns a Writer with the given JPEG quality.
func NewWriter(jpegQuality int) *Writer {
	return &Writer{JPEGQuality: jpegQuality}
}

// Write encodes the panorama to destination, overwriting any existing
// file there. The encode goes to a temp file in the destination
// directory first and is renamed into place, so a failed run never
// leaves a partial output behind.
func (w *Writer) Write(ctx context.Context, img *Image, destination string) error {
	if img.Empty() {
		return fmt.Errorf("refusing to write empty panorama to %s", destination)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(destination)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}

	tmp, err := os.CreateTemp(dir, ".panoforge-*"+filepath.Ext(destination))
	if err != nil {
		return fmt.Errorf("failed to create temp output: %v", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := w.encodeTo(img, tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, destination); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move output into place: %v", err)
	}
	return nil
}

func (w *Writer) encodeTo(img *Image, path string) error {
	imagick.Initialize()
	defer imagick.Terminate()

	mw := imagick.NewMagickWand()
	defer mw.Destroy()

	err := mw.ConstituteImage(uint(img.Width), uint(img.Height), "RGB", imagick.PIXEL_CHAR, img.Pixels)
	if err != nil {
		return fmt.Errorf("failed to constitute image: %w", err)
	}
	if w.JPEGQuality > 0 {
		if err := mw.SetImageCompressionQuality(uint(w.JPEGQuality)); err != nil {
			return fmt.Errorf("failed to set quality: %w", err)
		}
	}
	if err := mw.WriteImage(path); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
