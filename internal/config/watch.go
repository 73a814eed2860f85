package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/neboloop/texbridge/internal/logging"
)

var log = logging.WithComponent("config")

// DebounceDelay is how long Watch waits after the last write before reloading.
// Editors often write a file several times per save.
const DebounceDelay = 100 * time.Millisecond

// Watch reloads path on every change and calls fn with the new config until
// ctx is done. Invalid files are logged and skipped; fn only ever sees
// validated configs. The parent directory is watched so atomic renames by
// editors are seen.
func Watch(ctx context.Context, path string, base Config, fn func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}
	name := filepath.Base(path)

	go func() {
		defer watcher.Close()

		var debounceTimer *time.Timer
		defer func() {
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != name {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(DebounceDelay, func() {
					if ctx.Err() != nil {
						return
					}
					c, err := Load(path, base)
					if err != nil {
						log.Warnf("%s changed but was not applied: %v", name, err)
						return
					}
					log.Infof("%s reloaded", name)
					fn(c)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("watcher error: %v", err)
			}
		}
	}()

	log.Infof("watching %s for changes", path)
	return nil
}
