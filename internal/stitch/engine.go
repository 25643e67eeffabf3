// Package stitch defines the contract with the stitching engine and the
// orchestration of a single stitch attempt. The stitching algorithm
// itself (feature matching, homography estimation, blending) lives in
// external tools; this package only adapts them.
package stitch

import (
	"context"
	"fmt"
	"os/exec"

	"panoforge/internal/config"
	"panoforge/internal/imageio"
)

// Status is the discriminated status code returned by a stitching
// engine. The numeric values follow the classic stitcher convention so
// codes pass through unaltered.
type Status int

const (
	StatusOK               Status = 0
	StatusNeedMoreImages   Status = 1
	StatusHomographyFail   Status = 2
	StatusCameraParamsFail Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNeedMoreImages:
		return "need more images"
	case StatusHomographyFail:
		return "homography estimation failed"
	case StatusCameraParamsFail:
		return "camera parameter adjustment failed"
	default:
		return fmt.Sprintf("unrecognized status %d", int(s))
	}
}

// Error wraps a non-success engine status. The status is carried
// verbatim; callers must not reinterpret it.
type Error struct {
	Status Status
}

func (e *Error) Error() string {
	return fmt.Sprintf("stitching failed: %s (code %d)", e.Status, int(e.Status))
}

// Engine is the external stitching capability: one blocking call that
// turns an ordered image set into a panorama or a failure status. An
// engine may parallelize internally; callers treat the call as a
// non-cancellable unit.
type Engine interface {
	Name() string
	IsAvailable() bool
	Stitch(ctx context.Context, set *imageio.ImageSet) (Status, *imageio.Image, error)
}

// Options carries rendering preferences shared by engine adapters.
type Options struct {
	Projection string // cylindrical, spherical, planar
	Blending   string // multiband, feather, none
	Quality    string // fast, normal, high
}

func optionsFromConfig(cfg *config.Stitcher) Options {
	opts := Options{
		Projection: cfg.Projection,
		Blending:   cfg.Blending,
		Quality:    cfg.Quality,
	}
	if opts.Projection == "" {
		opts.Projection = "cylindrical"
	}
	if opts.Blending == "" {
		opts.Blending = "multiband"
	}
	if opts.Quality == "" {
		opts.Quality = "normal"
	}
	return opts
}

// SelectEngine picks the first available engine from the configured
// preference order.
func SelectEngine(cfg *config.Stitcher) (Engine, error) {
	opts := optionsFromConfig(cfg)
	names := append([]string{cfg.Preferred}, cfg.Fallbacks...)
	for _, name := range names {
		var eng Engine
		switch name {
		case "hugin":
			eng = NewHuginEngine(opts)
		case "imagemagick":
			eng = NewMagickEngine(opts)
		default:
			continue
		}
		if eng.IsAvailable() {
			return eng, nil
		}
	}
	return nil, fmt.Errorf("no stitching engine available (tried %v)", names)
}

func commandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
