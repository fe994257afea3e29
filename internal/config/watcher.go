package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher hot-reloads mutable config fields (timeouts, proxy settings,
// history sink DSNs) when the backing YAML file changes on disk. Fields
// that affect already-established state — HistoryPath, AuthDir — are never
// swapped into a live Config; a change to either is logged as a warning and
// otherwise ignored, since the history store and auth adapters have already
// opened file handles against the old paths.
type Watcher struct {
	path string
	mu   sync.Mutex
	cur  *Config
	fsw  *fsnotify.Watcher
	subs []func(*Config)
}

// NewWatcher starts watching path and seeds the watcher with an already
// loaded Config.
func NewWatcher(path string, initial *Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: failed to create watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config: failed to watch %s: %w", path, err)
	}
	w := &Watcher{path: path, cur: initial, fsw: fsw}
	go w.loop()
	return w, nil
}

// Subscribe registers fn to be called with the new Config whenever the file
// reloads successfully. fn is called synchronously from the watcher's
// goroutine; callers that need to update shared state should keep fn fast
// or hand off to their own goroutine.
func (w *Watcher) Subscribe(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs = append(w.subs, fn)
}

// Current returns the most recently loaded Config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cur
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.WithField("component", "config.watcher").Warnf("watch error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	next, err := Load(w.path)
	if err != nil {
		log.WithField("component", "config.watcher").Warnf("reload failed, keeping previous config: %v", err)
		return
	}

	w.mu.Lock()
	prev := w.cur
	if prev != nil {
		if prev.HistoryPath != next.HistoryPath {
			log.WithField("component", "config.watcher").Warnf(
				"history-path changed on disk (%s -> %s); restart required to take effect",
				prev.HistoryPath, next.HistoryPath)
			next.HistoryPath = prev.HistoryPath
		}
		if prev.AuthDir != next.AuthDir {
			log.WithField("component", "config.watcher").Warnf(
				"auth-dir changed on disk (%s -> %s); restart required to take effect",
				prev.AuthDir, next.AuthDir)
			next.AuthDir = prev.AuthDir
		}
	}
	w.cur = next
	subs := append([]func(*Config){}, w.subs...)
	w.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
}
