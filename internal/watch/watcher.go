package watch

import (
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"panoforge/internal/fsutil"
)

// DefaultSettle is how long a hot folder must stay quiet before a run
// is triggered. Panorama sweeps arrive as bursts of files; triggering
// per file would stitch half a set.
const DefaultSettle = 5 * time.Second

// Watcher monitors a source directory and fires once a burst of new
// images has settled.
type Watcher struct {
	dir     string
	settle  time.Duration
	watcher *fsnotify.Watcher
	trigger func(dir string)
	log     *slog.Logger
	done    chan struct{}
}

// New creates a watcher for dir. trigger is called with dir after each
// settled burst of image creations.
func New(dir string, settle time.Duration, log *slog.Logger, trigger func(dir string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Watcher{
		dir:     dir,
		settle:  settle,
		watcher: fsw,
		trigger: trigger,
		log:     log,
		done:    make(chan struct{}),
	}, nil
}

// Start begins monitoring the directory.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	w.log.Info("watching directory", "dir", w.dir, "settle", w.settle.String())
	go w.processEvents()
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) processEvents() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !fsutil.IsImageFile(event.Name) {
				continue
			}
			w.log.Debug("image event", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.settle)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timerC:
					default:
					}
				}
				timer.Reset(w.settle)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			w.log.Info("image burst settled, triggering run", "dir", w.dir)
			w.trigger(w.dir)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}
