package stitch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"panoforge/internal/config"
)

func stitcherConfig(preferred string, fallbacks []string) *config.Config {
	return &config.Config{Stitcher: config.Stitcher{
		Preferred: preferred,
		Fallbacks: fallbacks,
	}}
}

func TestOptionsFromConfigDefaults(t *testing.T) {
	opts := optionsFromConfig(&config.Stitcher{})
	if opts.Projection != "cylindrical" || opts.Blending != "multiband" || opts.Quality != "normal" {
		t.Fatalf("unexpected defaults: %+v", opts)
	}
}

func TestOptionsFromConfigPassthrough(t *testing.T) {
	opts := optionsFromConfig(&config.Stitcher{Projection: "spherical", Blending: "feather", Quality: "high"})
	if opts.Projection != "spherical" || opts.Blending != "feather" || opts.Quality != "high" {
		t.Fatalf("config values should pass through: %+v", opts)
	}
}

func TestCountControlPoints(t *testing.T) {
	pto := filepath.Join(t.TempDir(), "p.pto")
	content := "p f1 w100 h50 v70\ni w10 h10\nc n0 N1 x1 y1 X2 Y2\nc n0 N1 x3 y3 X4 Y4\n"
	if err := os.WriteFile(pto, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := countControlPoints(pto); got != 2 {
		t.Fatalf("expected 2 control points, got %d", got)
	}
	if got := countControlPoints(filepath.Join(t.TempDir(), "missing.pto")); got != 0 {
		t.Fatalf("missing file should count 0, got %d", got)
	}
}

func TestUpdatePTOProjection(t *testing.T) {
	pto := filepath.Join(t.TempDir(), "p.pto")
	if err := os.WriteFile(pto, []byte("p f1 w100 h50 v70\ni w10 h10\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := updatePTOProjection(pto, "spherical"); err != nil {
		t.Fatalf("update: %v", err)
	}
	raw, err := os.ReadFile(pto)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if want := "p f2 w100 h50 v70"; !strings.Contains(string(raw), want) {
		t.Fatalf("expected %q in rewritten file, got %q", want, string(raw))
	}
}

func TestHuginEngineNeedsTwoImages(t *testing.T) {
	eng := NewHuginEngine(Options{})
	status, pano, err := eng.Stitch(context.Background(), testSet(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusNeedMoreImages {
		t.Fatalf("expected need-more-images, got %v", status)
	}
	if pano != nil {
		t.Fatalf("failure must not return a raster")
	}
}

func TestMagickEngineNeedsTwoImages(t *testing.T) {
	eng := NewMagickEngine(Options{})
	status, pano, err := eng.Stitch(context.Background(), testSet(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusNeedMoreImages {
		t.Fatalf("expected need-more-images, got %v", status)
	}
	if pano != nil {
		t.Fatalf("failure must not return a raster")
	}
}
