// Copyright 2025 Joseph Cumines

package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDebounce coalesces the bursts of events editors produce on save.
var reloadDebounce = 250 * time.Millisecond

// Watch reloads the config file whenever it changes, calling onChange with
// each new configuration that validates. Invalid edits are logged and the
// previous configuration stays in effect. Watch blocks until ctx is done.
//
// The containing directory is watched, so files replaced by rename (as most
// editors do) keep being followed.
func (l *Loader) Watch(ctx context.Context, log *zap.Logger, onChange func(*Config)) error {
	path := l.ConfigFile()
	if path == "" {
		return errors.New("no config file to watch")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config file: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	log.Debug("watching config file", zap.String("file", abs))

	var (
		timer  *time.Timer
		reload <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs ||
				!(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			reload = timer.C

		case <-reload:
			reload = nil
			cfg, err := l.Load()
			if err != nil {
				log.Warn("ignoring config change", zap.String("file", abs), zap.Error(err))
				continue
			}
			log.Info("configuration reloaded", zap.String("file", abs))
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("config watcher error", zap.Error(err))
		}
	}
}
