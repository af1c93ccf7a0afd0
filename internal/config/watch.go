package config

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchLogLevel watches the persisted document at path for edits and
// invokes onChange with the new log_level whenever it changes, until ctx
// is cancelled. A port edit is NOT applied live — only log_level is;
// callers that want a new port must stop and start the ServerInstance.
func WatchLogLevel(ctx context.Context, path string, logger *zap.Logger, onChange func(level string)) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("config-watch")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		// The document may not exist yet, which is fine: there is
		// nothing to watch until it is created, so return cleanly
		// rather than erroring the whole lifecycle glue out.
		logger.Info("config: persisted document not present, skipping live log-level watch", zap.String("path", path))
		return nil
	}

	last := ""
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			doc, err := readDocument(path)
			if err != nil {
				logger.Warn("config: failed to re-read persisted document after change", zap.Error(err))
				continue
			}
			if doc.LogLevel != "" && doc.LogLevel != last {
				last = doc.LogLevel
				onChange(doc.LogLevel)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config: watcher error", zap.Error(err))
		}
	}
}
