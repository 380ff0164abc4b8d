// Package watcher reloads definition files when they change on disk.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/rs/zerolog"
)

const defaultDebounceDuration = 200 * time.Millisecond

// Reloader is the engine surface the watcher drives.
type Reloader interface {
	LoadDefinitionFromFile(path string) error
}

// Watcher watches a definitions directory and reloads individual files as
// they are written. Rapid successive writes to the same file collapse
// into one reload.
type Watcher struct {
	dir      string
	reloader Reloader
	logger   zerolog.Logger
	pattern  glob.Glob

	watcher          *fsnotify.Watcher
	debounceDuration time.Duration
	debounceTimers   map[string]*time.Timer
	mu               sync.Mutex
	cancel           context.CancelFunc
	wg               sync.WaitGroup
}

// New creates a watcher for definition files matching the glob pattern
// (default "*.{json,yaml,yml}") inside dir.
func New(dir string, reloader Reloader, logger zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	pattern, err := glob.Compile("*.{json,yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("compiling watch pattern: %w", err)
	}

	return &Watcher{
		dir:              dir,
		reloader:         reloader,
		logger:           logger,
		pattern:          pattern,
		watcher:          fsw,
		debounceDuration: defaultDebounceDuration,
		debounceTimers:   make(map[string]*time.Timer),
	}, nil
}

// SetDebounceDuration overrides the reload debounce window.
func (w *Watcher) SetDebounceDuration(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounceDuration = d
}

// Start begins watching the definitions directory.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.wg.Add(1)
	go w.eventLoop(ctx)

	w.logger.Info().Str("dir", w.dir).Msg("watching definitions directory")
	return nil
}

// Stop halts the watcher and cancels pending reloads.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
		w.wg.Wait()
	}

	w.mu.Lock()
	for _, timer := range w.debounceTimers {
		timer.Stop()
	}
	w.mu.Unlock()

	return w.watcher.Close()
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !w.pattern.Match(filepath.Base(event.Name)) {
				continue
			}
			w.scheduleReload(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("definitions watcher error")
		}
	}
}

func (w *Watcher) scheduleReload(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.debounceTimers[path]; ok {
		timer.Stop()
	}
	w.debounceTimers[path] = time.AfterFunc(w.debounceDuration, func() {
		w.mu.Lock()
		delete(w.debounceTimers, path)
		w.mu.Unlock()

		if err := w.reloader.LoadDefinitionFromFile(path); err != nil {
			w.logger.Warn().Err(err).Str("file", filepath.Base(path)).Msg("definition reload failed")
			return
		}
		w.logger.Info().Str("file", filepath.Base(path)).Msg("definition reloaded")
	})
}
