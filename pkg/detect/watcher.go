package detect

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher hot-reloads a detector's keyword table when the backing YAML
// file changes. A reload that fails to parse or validate is logged and
// the previous table stays in effect.
type Watcher struct {
	detector *Detector
	path     string
	logger   zerolog.Logger
}

// NewWatcher creates a watcher for the given table file.
func NewWatcher(detector *Detector, path string, logger zerolog.Logger) *Watcher {
	return &Watcher{
		detector: detector,
		path:     path,
		logger:   logger.With().Str("component", "table-watcher").Logger(),
	}
}

// Watch blocks until the context is cancelled, reloading the table on
// every write or create event for the watched file.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors often replace files atomically, which
	// drops a watch on the file itself.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("File watcher error")
		}
	}
}

func (w *Watcher) reload() {
	table, err := LoadTable(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", w.path).Msg("Keyword table reload failed, keeping previous table")
		return
	}
	if err := w.detector.SwapTable(table); err != nil {
		w.logger.Warn().Err(err).Str("path", w.path).Msg("Keyword table swap rejected")
		return
	}
	w.logger.Info().Str("path", w.path).Msg("Keyword table reloaded")
}
