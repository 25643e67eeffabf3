package stitch

import (
	"context"
	"fmt"

	"panoforge/internal/imageio"
)

// Result is the outcome of a single stitch attempt. Exactly one of
// Panorama or Err is set; Status carries the engine's code either way.
type Result struct {
	Status   Status
	Panorama *imageio.Image
	Err      error
}

// Success reports whether the attempt produced a panorama.
func (r Result) Success() bool {
	return r.Err == nil && r.Panorama != nil
}

// Assemble drives one stitching attempt and normalizes its outcome.
// The engine is invoked exactly once with the full ordered set; its
// status is passed through without reinterpretation, and unrecognized
// codes become a generic failure. A failed attempt is terminal: no
// retry, no partial panorama.
func Assemble(ctx context.Context, engine Engine, set *imageio.ImageSet) Result {
	if set.Len() == 0 {
		return Result{Err: fmt.Errorf("cannot stitch an empty image set")}
	}

	status, pano, err := engine.Stitch(ctx, set)
	if err != nil {
		return Result{Status: status, Err: fmt.Errorf("stitching engine %s: %w", engine.Name(), err)}
	}

	switch status {
	case StatusOK:
		if pano.Empty() {
			return Result{Status: status, Err: fmt.Errorf("stitching engine %s reported success without a panorama", engine.Name())}
		}
		return Result{Status: StatusOK, Panorama: pano}
	case StatusNeedMoreImages, StatusHomographyFail, StatusCameraParamsFail:
		return Result{Status: status, Err: &Error{Status: status}}
	default:
		return Result{Status: status, Err: fmt.Errorf("stitching engine %s returned %s", engine.Name(), status)}
	}
}
