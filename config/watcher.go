package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/teamcode/robotcv/logging"
)

// watchSettle is how long writes to the file must stop before it is re-read. Editors often write
// a file in several steps.
const watchSettle = 100 * time.Millisecond

// Watch re-reads the config at filePath whenever it changes and hands every valid result to
// onChange. Invalid configs are logged and skipped. Watch blocks until ctx is done.
func Watch(ctx context.Context, filePath string, logger logging.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "cannot watch config")
	}
	//nolint:errcheck
	defer watcher.Close()

	// Watch the directory so replacing the file by rename is seen too.
	filePath = filepath.Clean(filePath)
	if err := watcher.Add(filepath.Dir(filePath)); err != nil {
		return errors.Wrapf(err, "cannot watch config %q", filePath)
	}

	settled := make(chan struct{}, 1)
	debounced := debounce.New(watchSettle)
	signalSettled := func() {
		select {
		case settled <- struct{}{}:
		default:
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filePath || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			debounced(signalSettled)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("config watcher error", "error", err)
		case <-settled:
			cfg, err := Read(ctx, filePath, logger)
			if err != nil {
				logger.Errorw("ignoring invalid config change", "path", filePath, "error", err)
				continue
			}
			logger.Infow("config changed", "path", filePath)
			onChange(cfg)
		}
	}
}
