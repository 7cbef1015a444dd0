package config

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"

	"strata/internal/logging"
)

// Watcher reloads the config file on change and hands the parsed result to
// a callback. A file that fails to parse is ignored with a warning; the
// last good configuration stays in effect.
type Watcher struct {
	path     string
	onChange func(Config)
	log      *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates a Watcher for path. onChange runs on the watch
// goroutine; keep it quick.
func NewWatcher(path string, onChange func(Config), log *slog.Logger) *Watcher {
	return &Watcher{
		path:     path,
		onChange: onChange,
		log:      logging.Default(log).With("component", "config-watcher"),
	}
}

// Start begins watching. Editors often replace files instead of writing in
// place, so the watch also reacts to create events.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopLocked()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(w.path); err != nil {
		_ = fw.Close()
		return fmt.Errorf("watch %q: %w", w.path, err)
	}

	w.watcher = fw
	w.done = make(chan struct{})
	go w.loop(fw, w.done)
	return nil
}

func (w *Watcher) loop(fw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				w.log.Warn("config reload failed, keeping previous", "error", err)
				continue
			}
			w.log.Info("config reloaded", "path", w.path)
			w.onChange(cfg)
		case _, ok := <-fw.Errors:
			if !ok {
				return
			}
		}
	}
}

// Stop halts the watch goroutine.
func (w *Watcher) Stop() {
	w.mu.Lock()
	w.stopLocked()
	w.mu.Unlock()
}

func (w *Watcher) stopLocked() {
	if w.watcher != nil {
		_ = w.watcher.Close()
		<-w.done
		w.watcher = nil
		w.done = nil
	}
}
