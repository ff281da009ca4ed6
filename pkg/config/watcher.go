package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ReloadFunc receives the catalog options of a freshly loaded configuration.
type ReloadFunc func(CatalogConfig) error

// Watcher reloads catalog options when the configuration file changes.
// Other sections need a restart to take effect.
type Watcher struct {
	path   string
	logger zerolog.Logger
	delay  time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher for the configuration file at path.
func NewWatcher(path string, logger zerolog.Logger) *Watcher {
	return &Watcher{
		path:   filepath.Clean(path),
		logger: logger.With().Str("component", "config-watcher").Str("path", path).Logger(),
		delay:  500 * time.Millisecond,
	}
}

// Watch starts watching in the background until ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context, reloadFn ReloadFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Editors often replace the file, so the directory is watched and events filtered by name.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	go w.processEvents(ctx, watcher, reloadFn)

	w.logger.Info().Msg("Started watching configuration file")
	return nil
}

func (w *Watcher) processEvents(ctx context.Context, watcher *fsnotify.Watcher, reloadFn ReloadFunc) {
	var reloadTimer *time.Timer
	defer func() {
		if reloadTimer != nil {
			reloadTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			w.logger.Debug().Str("op", event.Op.String()).Msg("Configuration file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(w.delay, func() {
				if err := w.reload(reloadFn); err != nil {
					w.logger.Error().Err(err).Msg("Failed to reload catalog options")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// reload loads the file and hands the catalog section to reloadFn.
// An invalid file leaves the previous options in place.
func (w *Watcher) reload(reloadFn ReloadFunc) error {
	cfg, err := Load(w.path)
	if err != nil {
		return err
	}
	if err := reloadFn(cfg.Catalog); err != nil {
		return fmt.Errorf("failed to apply catalog options: %w", err)
	}

	w.logger.Info().
		Strs("data_centers", cfg.Catalog.DataCenters).
		Strs("networks", cfg.Catalog.Networks).
		Int("max_fan_out", cfg.Catalog.MaxFanOut).
		Msg("Catalog options reloaded")
	return nil
}

// Stop stops watching for file changes.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	w.watcher = nil
	return err
}
