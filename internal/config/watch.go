package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ramonzeraa/teste-crypto/internal/logger"
)

// Watch reloads the config whenever the file changes and hands the new
// snapshot to onReload. A reload that fails to parse or validate is logged
// and discarded; the previous snapshot stays in effect. Editors often write
// via rename, so the parent directory is watched rather than the file.
func Watch(ctx context.Context, path string, onReload func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		var debounce *time.Timer
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(250*time.Millisecond, func() {
					cfg, err := Load(abs)
					if err != nil {
						logger.Warnf("config reload rejected: %v", err)
						return
					}
					logger.Infof("config reloaded from %s", abs)
					onReload(cfg)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("config watcher error: %v", err)
			}
		}
	}()
	return nil
}
