package schema

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the registry when files in the user schema directory
// change. Changes arriving in a burst (editor save, rsync) collapse into one
// reload.
type Watcher struct {
	registry *Registry
	watcher  *fsnotify.Watcher
	log      *zap.Logger

	// OnReload, when set, observes every reload attempt. Assign before Start.
	OnReload func(err error)

	mu         sync.Mutex
	lastReload time.Time
}

const reloadDebounce = 200 * time.Millisecond

// NewWatcher creates a watcher over the registry's user schema directory.
// Returns (nil, nil) when no user directory is configured.
func NewWatcher(registry *Registry, log *zap.Logger) (*Watcher, error) {
	dir := registry.loader.UserDir()
	if dir == "" {
		return nil, nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{registry: registry, watcher: fsw, log: log}, nil
}

// Start runs the event loop until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	go w.eventLoop(ctx)
}

func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !strings.HasSuffix(strings.ToLower(event.Name), ".json") {
				continue
			}

			w.mu.Lock()
			if time.Since(w.lastReload) < reloadDebounce {
				w.mu.Unlock()
				continue
			}
			w.lastReload = time.Now()
			w.mu.Unlock()

			err := w.registry.Reload()
			if w.OnReload != nil {
				w.OnReload(err)
			}
			if err != nil {
				w.log.Error("widget schema reload failed", zap.Error(err))
				continue
			}
			w.log.Info("widget schemas reloaded",
				zap.String("trigger", event.Name),
				zap.String("checksum", w.registry.Checksum()))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("schema watcher error", zap.Error(err))
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
