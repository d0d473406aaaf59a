package ingest

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"contacts-api/internal/storage"

	"github.com/fsnotify/fsnotify"
)

// Watcher feeds files appearing in a storage namespace to a Processor.
type Watcher struct {
	processor *Processor
	files     storage.Storage
	namespace string
	dir       string
}

// NewWatcher watches dir, the local directory backing namespace.
func NewWatcher(processor *Processor, files storage.Storage, namespace, dir string) *Watcher {
	return &Watcher{
		processor: processor,
		files:     files,
		namespace: namespace,
		dir:       dir,
	}
}

// ProcessPending imports every file already present in the namespace.
func (w *Watcher) ProcessPending(ctx context.Context) error {
	pending, err := w.files.List(ctx, w.namespace)
	if err != nil {
		return fmt.Errorf("list pending files: %w", err)
	}

	for _, f := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Failures are logged by the processor; keep going with the rest.
		_, _ = w.processor.ProcessFile(ctx, f.Path)
	}
	return nil
}

// Run processes pending files, then every file created in the directory,
// until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("create watch directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.processor.logger.Info().Str("dir", w.dir).Msg("started watching directory for new contact files")

	// Files written between startup and Add are picked up here.
	if err := w.ProcessPending(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			name := filepath.Base(event.Name)
			if strings.HasPrefix(name, ".") {
				continue
			}
			if info, err := os.Stat(event.Name); err != nil || info.IsDir() {
				continue
			}
			w.processor.logger.Info().Str("file", name).Msg("new file detected")
			_, _ = w.processor.ProcessFile(ctx, path.Join(w.namespace, name))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.processor.logger.Error().Err(err).Msg("watcher error")
		}
	}
}
