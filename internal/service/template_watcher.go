package service

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/weiawesome/wes-io-stage/pkg/log"
)

// TemplateWatcher reloads the lower-third catalogue whenever the templates
// file changes on disk.
type TemplateWatcher struct {
	path   string
	reload func(ctx context.Context) error
}

// NewTemplateWatcher creates a watcher for path. reload is called after
// every write, create or rename of the file.
func NewTemplateWatcher(path string, reload func(ctx context.Context) error) *TemplateWatcher {
	return &TemplateWatcher{path: filepath.Clean(path), reload: reload}
}

// Run watches until ctx is done. The parent directory is watched so
// editors that replace the file by rename are followed.
func (w *TemplateWatcher) Run(ctx context.Context) error {
	l := log.Ctx(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}
	l.Info().Str("path", w.path).Msg("watching lower third templates")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// A half-written file fails to decode; the previous catalogue
			// stays until the next event.
			if err := w.reload(ctx); err != nil {
				l.Warn().Err(err).Str("path", w.path).Msg("template reload failed")
				continue
			}
			l.Info().Str("path", w.path).Msg("lower third templates reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.Warn().Err(err).Str("path", w.path).Msg("template watcher error")
		}
	}
}
