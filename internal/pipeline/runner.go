package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"panoforge/internal/config"
	"panoforge/internal/fsutil"
	"panoforge/internal/imageio"
	"panoforge/internal/logging"
	"panoforge/internal/stitch"
	"panoforge/internal/storage"
)

// Stage names for the run state machine. Every failure stage is
// terminal; there is no retry edge anywhere.
const (
	StageDiscovering  = "discovering"
	StageNoInput      = "no_input"
	StageLoading      = "loading"
	StageLoadFailed   = "load_failed"
	StageLoaded       = "loaded"
	StageStitching    = "stitching"
	StageStitchFailed = "stitch_failed"
	StageStitched     = "stitched"
	StageWriting      = "writing"
	StageWriteFailed  = "write_failed"
	StageDone         = "done"
)

// InputError reports an empty discovery result. It is surfaced before
// any decode happens.
type InputError struct {
	Dir string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("no candidate images found in %s", e.Dir)
}

type imageLoader interface {
	Load(ctx context.Context, paths []string) (*imageio.ImageSet, error)
}

type panoramaWriter interface {
	Write(ctx context.Context, img *imageio.Image, destination string) error
}

type discoverFunc func(dir string) ([]string, error)

type engineFactory func(cfg *config.Stitcher) (stitch.Engine, error)

type exifFunc func(ctx context.Context, path string) (storage.ImageMetadata, error)

// Runner executes one stitch run start to finish: discover candidates,
// load them all or none, hand the set to the engine once, persist the
// panorama. Each stage completes fully before the next begins.
type Runner struct {
	log       *slog.Logger
	store     *storage.Store
	cfg       *config.Config
	loader    imageLoader
	writer    panoramaWriter
	discover  discoverFunc
	engineFac engineFactory
	exifFn    exifFunc
}

// NewRunner builds a Runner with the real loader, writer and engine
// selection.
func NewRunner(logger *slog.Logger, store *storage.Store, cfg *config.Config) *Runner {
	return &Runner{
		log:       logger,
		store:     store,
		cfg:       cfg,
		loader:    imageio.NewLoader(),
		writer:    imageio.NewWriter(cfg.Stitcher.JPEGQual),
		discover:  fsutil.DiscoverImages,
		engineFac: stitch.SelectEngine,
		exifFn:    imageio.ExtractEXIF,
	}
}

// Process runs the full state machine for one job.
func (r *Runner) Process(ctx context.Context, job Job) Result {
	r.setStage(job.ID, StageDiscovering)
	paths, err := r.discover(job.InputPath)
	if err != nil {
		return Result{Job: job, Stage: StageNoInput, Error: fmt.Errorf("failed to scan %s: %w", job.InputPath, err)}
	}
	if len(paths) == 0 {
		return Result{Job: job, Stage: StageNoInput, Error: &InputError{Dir: job.InputPath}}
	}

	logging.LogStage(r.log, job.ID, StageDiscovering, map[string]any{
		"input_dir": job.InputPath,
		"images":    len(paths),
	})

	r.setStage(job.ID, StageLoading)
	set, err := r.loader.Load(ctx, paths)
	if err != nil {
		// All-or-nothing: a reduced set is never stitched.
		return Result{Job: job, Stage: StageLoadFailed, Error: err}
	}
	r.setStage(job.ID, StageLoaded)
	r.recordMetadata(ctx, paths)

	engine, err := r.buildEngine(job.Options)
	if err != nil {
		return Result{Job: job, Stage: StageStitchFailed, Error: err}
	}

	r.log.Info("stitching image set",
		"run", job.ID,
		"images", set.Len(),
		"engine", engine.Name(),
	)

	r.setStage(job.ID, StageStitching)
	res := stitch.Assemble(ctx, engine, set)
	if !res.Success() {
		return Result{Job: job, Stage: StageStitchFailed, Error: res.Err, Meta: map[string]any{
			"statusCode": int(res.Status),
			"status":     res.Status.String(),
			"engine":     engine.Name(),
			"imageCount": set.Len(),
		}}
	}
	r.setStage(job.ID, StageStitched)

	r.setStage(job.ID, StageWriting)
	if err := r.writer.Write(ctx, res.Panorama, job.Output); err != nil {
		return Result{Job: job, Stage: StageWriteFailed, Error: err}
	}

	return Result{Job: job, Stage: StageDone, Meta: map[string]any{
		"output":     job.Output,
		"engine":     engine.Name(),
		"imageCount": set.Len(),
		"dimensions": fmt.Sprintf("%dx%d", res.Panorama.Width, res.Panorama.Height),
	}}
}

func (r *Runner) buildEngine(options map[string]any) (stitch.Engine, error) {
	cfg := r.cfg.Stitcher
	if name := getStringOption(options, "engine"); name != "" {
		cfg.Preferred = name
		cfg.Fallbacks = nil
	}
	if v := getStringOption(options, "projection"); v != "" {
		cfg.Projection = v
	}
	if v := getStringOption(options, "blending"); v != "" {
		cfg.Blending = v
	}
	if v := getStringOption(options, "quality"); v != "" {
		cfg.Quality = v
	}
	return r.engineFac(&cfg)
}

// recordMetadata captures EXIF for the source images, best effort.
func (r *Runner) recordMetadata(ctx context.Context, paths []string) {
	if r.store == nil || r.exifFn == nil {
		return
	}
	for _, p := range paths {
		meta, err := r.exifFn(ctx, p)
		if err != nil {
			continue
		}
		_ = r.store.RecordImageMetadata(meta)
	}
}

func (r *Runner) setStage(id string, stage string) {
	if r.store != nil {
		_ = r.store.RecordRunStage(id, stage)
	}
}

func getStringOption(options map[string]any, key string) string {
	if v, ok := options[key].(string); ok {
		return v
	}
	return ""
}
