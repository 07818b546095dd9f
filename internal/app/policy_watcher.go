package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/stacklok/feed-registry-server/internal/access"
)

// policyWatcher reloads a Cedar policy when its file changes on disk. The
// file is only ever read; updates come from volume mounts or operators. An
// invalid update is logged and the previous policies stay active.
type policyWatcher struct {
	path    string
	policy  *access.CedarPolicy
	watcher *fsnotify.Watcher

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// startPolicyWatcher begins watching path. The file is watched before
// returning, so changes made after the call are never missed.
func startPolicyWatcher(path string, policy *access.CedarPolicy) (*policyWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	path = filepath.Clean(path)
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch policy file %s: %w", path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &policyWatcher{
		path:    path,
		policy:  policy,
		watcher: watcher,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go w.run(ctx)

	slog.Info("Started watching Cedar policy file", "file", path)
	return w, nil
}

// reload reads the file and applies it to the policy.
func (w *policyWatcher) reload() error {
	policyBytes, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("failed to read cedar policy file: %w", err)
	}
	if err := w.policy.Reload(policyBytes); err != nil {
		return err
	}
	slog.Info("Cedar access policy reloaded", "file", w.path)
	return nil
}

func (w *policyWatcher) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := w.reload(); err != nil {
					slog.Error("Failed to reload Cedar policy", "file", w.path, "error", err)
				}
			}
			// Atomic replacements (ConfigMap symlink swaps, editors) drop the watch.
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if err := w.watcher.Add(w.path); err == nil {
					if err := w.reload(); err != nil {
						slog.Error("Failed to reload Cedar policy", "file", w.path, "error", err)
					}
				} else {
					slog.Debug("Policy file gone, waiting for it to reappear", "file", w.path, "error", err)
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Policy file watcher error", "error", err)
		}
	}
}

// Close stops the watch loop and releases the watcher. Safe to call twice.
func (w *policyWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.cancel()
		err = w.watcher.Close()
		<-w.done
		slog.Info("Cedar policy watcher closed")
	})
	if err != nil {
		return fmt.Errorf("failed to close file watcher: %w", err)
	}
	return nil
}
