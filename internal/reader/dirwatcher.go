package reader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/fsnotify/fsnotify"

	"github.com/GabrielNunesIT/analytics-transport/internal/config"
)

// DirWatcher reports files that appear in a directory once they stop changing.
type DirWatcher struct {
	cfg    config.WatchConfig
	logger logger.ILogger
}

// NewDirWatcher creates a watcher for cfg.Dir.
func NewDirWatcher(cfg config.WatchConfig, log logger.ILogger) *DirWatcher {
	if cfg.Pattern == "" {
		cfg.Pattern = "*"
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 200 * time.Millisecond
	}
	return &DirWatcher{
		cfg:    cfg,
		logger: log.SubLogger("DirWatcher"),
	}
}

// Start watches the directory and sends the path of every created or rewritten
// file matching the pattern, after it has been quiet for the debounce interval.
// It blocks until ctx is cancelled and closes out on return.
func (w *DirWatcher) Start(ctx context.Context, out chan<- string) error {
	defer close(out)

	if _, err := filepath.Match(w.cfg.Pattern, ""); err != nil {
		return fmt.Errorf("invalid pattern %q: %w", w.cfg.Pattern, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating directory watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watching directory %q: %w", w.cfg.Dir, err)
	}
	w.logger.Infof("watching directory: dir=%s, pattern=%s", w.cfg.Dir, w.cfg.Pattern)

	// pending maps a path to the time of its last change.
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(max(w.cfg.Debounce/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("directory watcher stopped")
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					delete(pending, event.Name)
				}
				continue
			}
			if !w.matches(event.Name) {
				continue
			}
			pending[event.Name] = time.Now()

		case now := <-ticker.C:
			for path, changed := range pending {
				if now.Sub(changed) < w.cfg.Debounce {
					continue
				}
				delete(pending, path)
				if !isRegular(path) {
					continue
				}
				w.logger.Debugf("file ready: %s", path)
				select {
				case out <- path:
				case <-ctx.Done():
					return ctx.Err()
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Errorf("fsnotify error: %v", err)
		}
	}
}

// matches checks the base name against the configured pattern.
func (w *DirWatcher) matches(path string) bool {
	matched, _ := filepath.Match(w.cfg.Pattern, filepath.Base(path))
	return matched
}

func isRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
