package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadHandler is called with the changed file's path after a write
// settles. Returning an error keeps the previous state; the watcher logs
// and carries on.
type ReloadHandler func(path string) error

// RulesWatcher hot-reloads the planner rule file. Editors replace files
// with rename-write sequences, so the watcher observes the parent
// directory and debounces bursts of events into one reload.
type RulesWatcher struct {
	path     string
	handler  ReloadHandler
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	debounce time.Duration

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
}

// NewRulesWatcher builds a watcher for path; Start begins delivery.
func NewRulesWatcher(path string, handler ReloadHandler, logger *zap.Logger) (*RulesWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("rules file path cannot be empty")
	}
	if handler == nil {
		return nil, fmt.Errorf("reload handler cannot be nil")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RulesWatcher{
		path:     path,
		handler:  handler,
		watcher:  w,
		logger:   logger,
		debounce: 200 * time.Millisecond,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start loads the file once and then watches for changes until ctx is
// cancelled or Stop is called.
func (rw *RulesWatcher) Start(ctx context.Context) error {
	rw.mu.Lock()
	if rw.started {
		rw.mu.Unlock()
		return nil
	}
	rw.started = true
	rw.mu.Unlock()

	if err := rw.watcher.Add(filepath.Dir(rw.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(rw.path), err)
	}
	if err := rw.handler(rw.path); err != nil {
		return fmt.Errorf("initial rules load: %w", err)
	}

	go rw.loop(ctx)
	rw.logger.Info("Rules watcher started", zap.String("path", rw.path))
	return nil
}

// Stop ends the watch loop. Safe to call more than once.
func (rw *RulesWatcher) Stop() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if !rw.started {
		return nil
	}
	rw.started = false
	close(rw.stopCh)
	return rw.watcher.Close()
}

func (rw *RulesWatcher) loop(ctx context.Context) {
	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-rw.stopCh:
			return
		case event, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(rw.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(rw.debounce)
				timerCh = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(rw.debounce)
			}
		case <-timerCh:
			timer = nil
			timerCh = nil
			if err := rw.handler(rw.path); err != nil {
				rw.logger.Warn("Rules reload failed, keeping previous rules",
					zap.String("path", rw.path), zap.Error(err))
				continue
			}
			rw.logger.Info("Rules reloaded", zap.String("path", rw.path))
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			rw.logger.Warn("File watcher error", zap.Error(err))
		}
	}
}
