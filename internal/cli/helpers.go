package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/term"

	"github.com/aretw0/decomp/internal/logging"
	"github.com/aretw0/decomp/internal/presentation/tui"
	"github.com/aretw0/decomp/pkg/domain"
)

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	start  sync.Once
	stop   sync.Once
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM.
// It acts as a drop-in replacement for signal.NotifyContext but allows retrieving the signal.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	sc.start.Do(func() {
		signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			select {
			case sig := <-sc.sigCh:
				sc.mu.Lock()
				sc.sigVal = sig
				sc.mu.Unlock()
				sc.Cancel()
			case <-sc.Context.Done():
			}
			sc.stop.Do(func() {
				signal.Stop(sc.sigCh)
			})
		}()
	})

	return sc
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// createLogger configures the application logger. It writes to Stderr so the result
// table on Stdout stays machine readable.
func createLogger(level string) (*slog.Logger, error) {
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return logging.New(lvl), nil
}

// printSystemMessage prints a standardized system message to w.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnIteration: func(ctx context.Context, e *domain.IterationEvent) {
			logger.Debug("Iteration", "node_id", e.NodeID, "iteration", e.Iteration,
				"bound", e.Bound, "objective", e.Objective, "active_cuts", e.ActiveCuts)
		},
		OnCutAdded: func(ctx context.Context, e *domain.CutEvent) {
			logger.Debug("Cut", "node_id", e.NodeID, "slot", e.Slot, "kind", e.Kind,
				"accepted", e.Accepted, "duplicate", e.Duplicate)
		},
		OnTerminate: func(ctx context.Context, e *domain.TerminateEvent) {
			logger.Debug("Terminate", "node_id", e.NodeID, "status", e.Status, "iterations", e.Iterations)
		},
	}
}

// printResult writes a summary of a run. Terminals get a rendered markdown table;
// pipes and files get plain ">>>" lines.
func printResult(w io.Writer, name string, res domain.Result) {
	if isTerminal(w) {
		out, err := tui.NewRenderer()(tui.ResultMarkdown(name, res))
		if err == nil {
			fmt.Fprint(w, out)
			return
		}
	}
	printSystemMessage(w, "Status:     %s", res.Status)
	printSystemMessage(w, "Iterations: %d", res.Iterations)
	printSystemMessage(w, "Bound:      %s", tui.FormatFloat(res.Bound))
	printSystemMessage(w, "Objective:  %s", tui.FormatFloat(res.Objective))
	if len(res.Solution) > 0 {
		parts := make([]string, len(res.Solution))
		for i, v := range res.Solution {
			parts[i] = tui.FormatFloat(v)
		}
		printSystemMessage(w, "Solution:   [%s]", strings.Join(parts, " "))
	}
	printSystemMessage(w, "Elapsed:    %s", res.Elapsed)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}

func handleExecutionError(err error) error {
	if err == nil || isInterrupted(err) {
		return nil
	}
	return err
}
