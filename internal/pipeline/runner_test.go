package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"panoforge/internal/config"
	"panoforge/internal/fsutil"
	"panoforge/internal/imageio"
	"panoforge/internal/stitch"
)

type fakeLoader struct {
	calls int
	paths []string
	set   *imageio.ImageSet
	err   error
}

func (f *fakeLoader) Load(ctx context.Context, paths []string) (*imageio.ImageSet, error) {
	f.calls++
	f.paths = paths
	if f.err != nil {
		return nil, f.err
	}
	if f.set != nil {
		return f.set, nil
	}
	set := &imageio.ImageSet{Paths: paths}
	for range paths {
		set.Images = append(set.Images, testImage())
	}
	return set, nil
}

type fakeWriter struct {
	calls int
	dest  string
	err   error
}

func (f *fakeWriter) Write(ctx context.Context, img *imageio.Image, destination string) error {
	f.calls++
	f.dest = destination
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(destination, []byte("pano"), 0o644)
}

type spyEngine struct {
	calls  int
	status stitch.Status
	pano   *imageio.Image
}

func (s *spyEngine) Name() string      { return "spy" }
func (s *spyEngine) IsAvailable() bool { return true }

func (s *spyEngine) Stitch(ctx context.Context, set *imageio.ImageSet) (stitch.Status, *imageio.Image, error) {
	s.calls++
	return s.status, s.pano, nil
}

func testImage() *imageio.Image {
	return &imageio.Image{Pixels: make([]byte, 2*2*3), Width: 2, Height: 2, Channels: 3}
}

func newTestRunner(t *testing.T, eng stitch.Engine, loader *fakeLoader, writer *fakeWriter) *Runner {
	t.Helper()
	return &Runner{
		log:    slog.Default(),
		cfg:    &config.Config{},
		loader: loader,
		writer: writer,
		discover: func(dir string) ([]string, error) {
			return []string{filepath.Join(dir, "a.jpg"), filepath.Join(dir, "b.jpg")}, nil
		},
		engineFac: func(cfg *config.Stitcher) (stitch.Engine, error) { return eng, nil },
	}
}

func TestRunnerSuccessWritesOutput(t *testing.T) {
	eng := &spyEngine{status: stitch.StatusOK, pano: &imageio.Image{Pixels: make([]byte, 4*2*3), Width: 4, Height: 2, Channels: 3}}
	loader := &fakeLoader{}
	writer := &fakeWriter{}
	r := newTestRunner(t, eng, loader, writer)

	out := filepath.Join(t.TempDir(), "panorama_output.jpg")
	res := r.Process(context.Background(), Job{ID: "run-ok", InputPath: t.TempDir(), Output: out})
	if res.Error != nil {
		t.Fatalf("expected success, got %v (stage %s)", res.Error, res.Stage)
	}
	if res.Stage != StageDone {
		t.Fatalf("expected done stage, got %s", res.Stage)
	}
	if eng.calls != 1 {
		t.Fatalf("engine must be invoked exactly once, got %d", eng.calls)
	}
	if writer.calls != 1 || writer.dest != out {
		t.Fatalf("expected one write to %s, got %d to %s", out, writer.calls, writer.dest)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("expected destination file: %v", err)
	}
	if res.Meta["dimensions"] != "4x2" {
		t.Fatalf("unexpected dimensions meta: %v", res.Meta["dimensions"])
	}
}

func TestRunnerEmptyDiscoveryIsInputErrorBeforeDecode(t *testing.T) {
	eng := &spyEngine{status: stitch.StatusOK, pano: testImage()}
	loader := &fakeLoader{}
	writer := &fakeWriter{}
	r := newTestRunner(t, eng, loader, writer)
	r.discover = func(dir string) ([]string, error) { return nil, nil }

	res := r.Process(context.Background(), Job{ID: "run-empty", InputPath: "/photos/empty"})
	if res.Stage != StageNoInput {
		t.Fatalf("expected no_input stage, got %s", res.Stage)
	}
	var inputErr *InputError
	if !errors.As(res.Error, &inputErr) {
		t.Fatalf("expected InputError, got %v", res.Error)
	}
	if loader.calls != 0 {
		t.Fatalf("decode must never start on empty discovery, got %d loads", loader.calls)
	}
	if eng.calls != 0 || writer.calls != 0 {
		t.Fatalf("nothing downstream may run")
	}
}

func TestRunnerLoadFailureAbortsBeforeStitching(t *testing.T) {
	eng := &spyEngine{status: stitch.StatusOK, pano: testImage()}
	loadErr := &imageio.LoadError{Path: "/photos/b.png", Err: errors.New("corrupt data")}
	loader := &fakeLoader{err: loadErr}
	writer := &fakeWriter{}
	r := newTestRunner(t, eng, loader, writer)

	res := r.Process(context.Background(), Job{ID: "run-badload", InputPath: "/photos"})
	if res.Stage != StageLoadFailed {
		t.Fatalf("expected load_failed stage, got %s", res.Stage)
	}
	var le *imageio.LoadError
	if !errors.As(res.Error, &le) || le.Path != "/photos/b.png" {
		t.Fatalf("error must identify the failing file, got %v", res.Error)
	}
	if eng.calls != 0 {
		t.Fatalf("engine must record zero invocations after a load failure, got %d", eng.calls)
	}
	if writer.calls != 0 {
		t.Fatalf("writer must never be invoked after a load failure")
	}
}

func TestRunnerStitchFailureCarriesExactCodeAndSkipsWriter(t *testing.T) {
	for _, status := range []stitch.Status{stitch.StatusNeedMoreImages, stitch.StatusHomographyFail, stitch.StatusCameraParamsFail} {
		eng := &spyEngine{status: status}
		loader := &fakeLoader{}
		writer := &fakeWriter{}
		r := newTestRunner(t, eng, loader, writer)

		res := r.Process(context.Background(), Job{ID: "run-fail", InputPath: "/photos", Output: "/out/p.jpg"})
		if res.Stage != StageStitchFailed {
			t.Fatalf("status %v: expected stitch_failed, got %s", status, res.Stage)
		}
		if res.Meta["statusCode"] != int(status) {
			t.Fatalf("expected exact code %d in meta, got %v", int(status), res.Meta["statusCode"])
		}
		var stitchErr *stitch.Error
		if !errors.As(res.Error, &stitchErr) || stitchErr.Status != status {
			t.Fatalf("expected code %v passed through, got %v", status, res.Error)
		}
		if writer.calls != 0 {
			t.Fatalf("writer must never run on stitch failure")
		}
	}
}

func TestRunnerWriteFailureIsTerminal(t *testing.T) {
	eng := &spyEngine{status: stitch.StatusOK, pano: testImage()}
	loader := &fakeLoader{}
	writer := &fakeWriter{err: errors.New("disk full")}
	r := newTestRunner(t, eng, loader, writer)

	res := r.Process(context.Background(), Job{ID: "run-wfail", InputPath: "/photos", Output: "/out/p.jpg"})
	if res.Stage != StageWriteFailed {
		t.Fatalf("expected write_failed stage, got %s", res.Stage)
	}
	if writer.calls != 1 {
		t.Fatalf("write is attempted once, not retried: %d", writer.calls)
	}
}

func TestRunnerDiscoveryIgnoresNonImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.jpg", "b.png", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("touch: %v", err)
		}
	}

	eng := &spyEngine{status: stitch.StatusOK, pano: testImage()}
	loader := &fakeLoader{}
	writer := &fakeWriter{}
	r := newTestRunner(t, eng, loader, writer)
	r.discover = fsutil.DiscoverImages

	out := filepath.Join(t.TempDir(), "panorama_output.jpg")
	res := r.Process(context.Background(), Job{ID: "run-filter", InputPath: dir, Output: out})
	if res.Error != nil {
		t.Fatalf("expected success, got %v", res.Error)
	}
	want := []string{filepath.Join(dir, "a.jpg"), filepath.Join(dir, "b.png")}
	if len(loader.paths) != 2 || loader.paths[0] != want[0] || loader.paths[1] != want[1] {
		t.Fatalf("expected %v handed to loader, got %v", want, loader.paths)
	}
}

func TestRunnerRerunOverwritesDestination(t *testing.T) {
	eng := &spyEngine{status: stitch.StatusOK, pano: testImage()}
	loader := &fakeLoader{}
	writer := &fakeWriter{}
	r := newTestRunner(t, eng, loader, writer)

	outDir := t.TempDir()
	out := filepath.Join(outDir, "panorama_output.jpg")
	for i := 0; i < 2; i++ {
		res := r.Process(context.Background(), Job{ID: "run-again", InputPath: "/photos", Output: out})
		if res.Error != nil {
			t.Fatalf("run %d failed: %v", i, res.Error)
		}
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("destination must exist exactly once, got %d entries", len(entries))
	}
}

func TestRunnerEngineOptionsOverrideConfig(t *testing.T) {
	eng := &spyEngine{status: stitch.StatusOK, pano: testImage()}
	loader := &fakeLoader{}
	writer := &fakeWriter{}
	r := newTestRunner(t, eng, loader, writer)
	r.cfg = &config.Config{Stitcher: config.Stitcher{Preferred: "hugin", Fallbacks: []string{"imagemagick"}, Projection: "cylindrical"}}

	var got *config.Stitcher
	r.engineFac = func(cfg *config.Stitcher) (stitch.Engine, error) {
		got = cfg
		return eng, nil
	}

	out := filepath.Join(t.TempDir(), "p.jpg")
	res := r.Process(context.Background(), Job{
		ID:        "run-opts",
		InputPath: "/photos",
		Output:    out,
		Options:   map[string]any{"engine": "imagemagick", "projection": "spherical"},
	})
	if res.Error != nil {
		t.Fatalf("run failed: %v", res.Error)
	}
	if got.Preferred != "imagemagick" || len(got.Fallbacks) != 0 {
		t.Fatalf("engine override should pin the engine, got %+v", got)
	}
	if got.Projection != "spherical" {
		t.Fatalf("projection override lost: %+v", got)
	}
}
