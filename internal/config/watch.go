package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "castcal/internal/log"
)

const reloadDebounce = 200 * time.Millisecond

// Watch reloads the config at path whenever it changes on disk and hands
// every valid result to onChange. Invalid edits are logged and ignored, so
// the caller keeps its previous config. Watch blocks until ctx is canceled.
//
// The parent directory is watched rather than the file, since editors and
// atomic writers (including Save) replace the file by rename.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	appLog.Info("config watcher started", "path", abs)

	var debounce *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case <-fire:
			fire = nil
			// A rename away leaves nothing to load; wait for the new file.
			if _, err := os.Stat(abs); errors.Is(err, fs.ErrNotExist) {
				continue
			}
			cfg, err := Load(abs)
			if err != nil {
				appLog.Error("config reload rejected", err, "path", abs)
				continue
			}
			appLog.Info("config reloaded", "path", abs)
			onChange(cfg)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(reloadDebounce)
			} else {
				debounce.Reset(reloadDebounce)
			}
			fire = debounce.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			appLog.Error("config watcher error", err)
		}
	}
}
