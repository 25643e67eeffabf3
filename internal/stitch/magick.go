package stitch

import (
	"context"
	"fmt"

	"gopkg.in/gographics/imagick.v3/imagick"

	"panoforge/internal/imageio"
)

// MagickEngine is the last-resort engine: an in-process horizontal
// append through ImageMagick. It performs no alignment or blending, so
// it only ever fails for lack of input, never for geometry.
type MagickEngine struct {
	opts Options
}

// NewMagickEngine returns an ImageMagick-backed engine.
func NewMagickEngine(opts Options) *MagickEngine {
	return &MagickEngine{opts: opts}
}

func (e *MagickEngine) Name() string { return "imagemagick" }

// IsAvailable is always true: the binding links the library directly.
func (e *MagickEngine) IsAvailable() bool { return true }

func (e *MagickEngine) Stitch(ctx context.Context, set *imageio.ImageSet) (Status, *imageio.Image, error) {
	if set.Len() < 2 {
		return StatusNeedMoreImages, nil, nil
	}
	if err := ctx.Err(); err != nil {
		return StatusOK, nil, err
	}

	imagick.Initialize()
	defer imagick.Terminate()

	seq := imagick.NewMagickWand()
	defer seq.Destroy()

	for i, img := range set.Images {
		frame := imagick.NewMagickWand()
		err := frame.ConstituteImage(uint(img.Width), uint(img.Height), "RGB", imagick.PIXEL_CHAR, img.Pixels)
		if err != nil {
			frame.Destroy()
			return StatusOK, nil, fmt.Errorf("failed to stage frame %d: %w", i, err)
		}
		if err := seq.AddImage(frame); err != nil {
			frame.Destroy()
			return StatusOK, nil, fmt.Errorf("failed to append frame %d: %w", i, err)
		}
		frame.Destroy()
	}

	seq.ResetIterator()
	appended := seq.AppendImages(false)
	if appended == nil {
		return StatusOK, nil, fmt.Errorf("append produced no image")
	}
	defer appended.Destroy()

	width := appended.GetImageWidth()
	height := appended.GetImageHeight()
	raw, err := appended.ExportImagePixels(0, 0, width, height, "RGB", imagick.PIXEL_CHAR)
	if err != nil {
		return StatusOK, nil, fmt.Errorf("failed to export panorama pixels: %w", err)
	}
	pixels, ok := raw.([]byte)
	if !ok {
		return StatusOK, nil, fmt.Errorf("unexpected pixel storage type %T", raw)
	}

	return StatusOK, &imageio.Image{
		Pixels:   pixels,
		Width:    int(width),
		Height:   int(height),
		Channels: 3,
	}, nil
}
