package catalog

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/opsboard/pkg/observability"
)

// Watch reloads the catalog at path whenever the file is written, created or
// renamed into place, and passes each valid catalog to onChange. Invalid
// files are logged and skipped so the previous catalog stays in effect.
// Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, logger logrus.FieldLogger, onChange func(*Catalog)) error {
	logger = observability.OrStandard(logger).WithField("catalog", path)
	target := filepath.Clean(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory; editors and config management replace the file
	// rather than writing it in place.
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}
	logger.Info("Watching catalog for changes")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			reload(target, logger, onChange)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("Catalog watcher error")
		}
	}
}

func reload(path string, logger logrus.FieldLogger, onChange func(*Catalog)) {
	defer observability.RecoverPanic(logger, "catalog reload")

	cat, err := Load(path)
	if err != nil {
		logger.WithError(err).Warn("Ignoring invalid catalog")
		return
	}
	onChange(cat)
}
