// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// CONFIG WATCHER
// =============================================================================

// debounceWindow coalesces editor write bursts into one reload.
const debounceWindow = 250 * time.Millisecond

// Watcher reloads the configuration when a config file changes on disk.
type Watcher struct {
	dir      string
	notify   *fsnotify.Watcher
	onChange func(*Config)
	done     chan struct{}
}

// Watch starts watching dir for config file changes. onChange is called
// with the freshly loaded configuration after each successful reload;
// reloads that fail validation are skipped so a half-saved file cannot
// break a running session.
func Watch(dir string, onChange func(*Config)) (*Watcher, error) {
	notify, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := notify.Add(dir); err != nil {
		notify.Close()
		return nil, err
	}

	w := &Watcher{
		dir:      dir,
		notify:   notify,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.notify.Close()
}

// loop consumes filesystem events until closed.
func (w *Watcher) loop() {
	var pending *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.notify.Events:
			if !ok {
				return
			}
			if !isConfigFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(debounceWindow, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			cfg, err := LoadFrom(w.dir)
			if err != nil {
				continue
			}
			w.onChange(cfg)

		case _, ok := <-w.notify.Errors:
			if !ok {
				return
			}
		}
	}
}

// isConfigFile reports whether path names one of the config files.
func isConfigFile(path string) bool {
	base := filepath.Base(path)
	return base == "config.toml" || base == "config.json"
}
