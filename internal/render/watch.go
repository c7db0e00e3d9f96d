package render

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gongo/emacs-realtime-markdown-viewer/internal/platform/retry"
)

// reloadPolicy covers the window in which an editor's atomic save has
// removed the file but not yet put the new one in place.
var reloadPolicy = retry.Policy{
	MaxAttempts:    5,
	InitialBackoff: 20 * time.Millisecond,
}

func classifyReload(err error) retry.Action {
	if errors.Is(err, fs.ErrNotExist) {
		return retry.Retry
	}
	return retry.Stop
}

// Watch monitors path and calls onChange with freshly loaded options each
// time the file is written or replaced. It runs until ctx is cancelled.
//
// A reload that fails is passed to onError (if set) and the previous
// options stay active.
func Watch(ctx context.Context, path string, onChange func(Options), onError func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	slog.Info("Watching render options", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}

			opts, err := retry.Do(ctx, reloadPolicy, classifyReload, func() (Options, error) {
				return LoadOptions(path)
			})
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				slog.Error("Render options reload failed, keeping previous options", "path", path, "error", err)
				if onError != nil {
					onError(err)
				}
			} else {
				slog.Info("Render options reloaded", "path", path)
				onChange(opts)
			}

			// A rename or remove drops the watch on the old inode.
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				err := retry.DoVoid(ctx, reloadPolicy, classifyReload, func() error {
					return watcher.Add(path)
				})
				if err != nil && ctx.Err() == nil {
					return fmt.Errorf("re-watch %s: %w", path, err)
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("Render options watcher error", "error", err)
		}
	}
}

// WatchRenderer wires Watch to r, recording reload outcomes on r's metrics.
func WatchRenderer(ctx context.Context, path string, r *Renderer) error {
	return Watch(ctx, path,
		func(opts Options) {
			r.Apply(opts)
			r.recordReload("ok")
		},
		func(error) { r.recordReload("error") },
	)
}

func (r *Renderer) recordReload(result string) {
	if r.metrics != nil {
		r.metrics.OptionReloads.WithLabelValues(result).Inc()
	}
}
