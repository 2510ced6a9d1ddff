package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/decomp"
	"github.com/aretw0/decomp/internal/presentation/tui"
)

// debounce is how long a burst of writes must settle before a rerun.
const debounce = 150 * time.Millisecond

// RunWatch solves the problem and solves it again every time the problem or config
// file changes, until interrupted. A change during a solve cancels it.
func RunWatch(opts RunOptions) error {
	logger, err := createLogger(opts.LogLevel)
	if err != nil {
		return err
	}
	tui.PrintBanner(opts.Stdout, decomp.Version)

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	paths := []string{opts.ProblemPath}
	if opts.ConfigPath != "" {
		paths = append(paths, opts.ConfigPath)
	}
	changes, err := WatchFiles(sigCtx, logger, paths...)
	if err != nil {
		return err
	}
	logger.Info("Starting watcher", "paths", paths)

	for runWatchIteration(sigCtx, opts, changes, logger) {
		logger.Info("Watcher restarting")
	}
	if sig := sigCtx.Signal(); sig != nil {
		printSystemMessage(opts.Stdout, "Interrupted by %s.", sig)
	}
	return nil
}

// runWatchIteration runs one solve. It reports whether the loop should go on.
func runWatchIteration(parent *SignalContext, opts RunOptions, changes <-chan string, logger *slog.Logger) bool {
	runCtx, cancel := context.WithCancel(parent)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runOnce(runCtx, opts) }()

	select {
	case <-parent.Done():
		<-done
		return false
	case path, ok := <-changes:
		cancel()
		<-done
		if ok {
			printSystemMessage(opts.Stdout, "Change detected in '%s'.", path)
		}
		return ok
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Run failed", "err", err)
			printSystemMessage(opts.Stdout, "Run failed: %v", err)
		}
	}

	printSystemMessage(opts.Stdout, "Waiting for changes...")
	select {
	case <-parent.Done():
		return false
	case path, ok := <-changes:
		if ok {
			printSystemMessage(opts.Stdout, "Change detected in '%s'.", path)
		}
		return ok
	}
}

// WatchFiles reports changes to the given files on the returned channel, one path per
// settled burst of events. The parent directories are watched so that editors that
// save by rename are seen. The channel closes when ctx is done.
func WatchFiles(ctx context.Context, logger *slog.Logger, paths ...string) (<-chan string, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	targets := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			_ = w.Close()
			return nil, err
		}
		if _, err := os.Stat(abs); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("watch %s: %w", p, err)
		}
		targets[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("watch %s: %w", d, err)
		}
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer w.Close()

		var (
			pending string
			timer   <-chan time.Time
		)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				name, err := filepath.Abs(ev.Name)
				if err != nil || !targets[name] {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				logger.Debug("File event", "path", name, "op", ev.Op.String())
				pending = name
				timer = time.After(debounce)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("Watcher error", "err", err)
			case <-timer:
				timer = nil
				select {
				case out <- pending:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
