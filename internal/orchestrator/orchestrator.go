package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/decomp/internal/heuristic"
	"github.com/aretw0/decomp/internal/logging"
	"github.com/aretw0/decomp/internal/tree"
	"github.com/aretw0/decomp/pkg/domain"
	"github.com/aretw0/decomp/pkg/ports"
)

// Recoverer proposes coupling values per slot for the final hand-off.
type Recoverer interface {
	Recover(ctx context.Context, src heuristic.PayloadSource) (map[int][]float64, error)
}

var _ Recoverer = (*heuristic.Root)(nil)

// Option configures a driver.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	heuristic Recoverer
	recorder  ports.Recorder
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithHeuristic recovers the hand-off point from the root's cut payloads.
func WithHeuristic(h Recoverer) Option {
	return func(o *options) {
		o.heuristic = h
	}
}

// WithRecorder persists the iteration history of the root and of every inner node
// run by this process.
func WithRecorder(r ports.Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

func newOptions(opts []Option) options {
	o := options{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// exchange delivers the final messages to the children and collects their reports.
type exchange func(ctx context.Context, msgs map[int]domain.FinalDn) (map[int]domain.FinalUp, error)

// finalize runs the hand-off phase on the root and returns the realized objective.
func (o *options) finalize(ctx context.Context, root *tree.Parent, send exchange) (float64, error) {
	var override map[int][]float64
	if o.heuristic != nil {
		values, err := o.heuristic.Recover(ctx, root.Engine())
		if err != nil {
			o.logger.Warn("heuristic finalization incomplete, falling back to the final trial point", "err", err)
		}
		override = values
	}
	ups, err := send(ctx, root.FinalMessages(override))
	if err != nil {
		return 0, err
	}
	return root.Realized(ups)
}

// result summarizes the root's engine and persists the histories.
func (o *options) result(root *tree.Parent, inner []*tree.Inner, objective float64, start time.Time) domain.Result {
	e := root.Engine()
	res := domain.Result{
		Status:     e.Status(),
		Iterations: e.Iteration(),
		Bound:      e.Bound(),
		Objective:  objective,
		Solution:   e.Solution(),
		Elapsed:    time.Since(start),
	}
	o.record(root.Node().ID, e.History())
	o.recordInner(inner)
	o.logger.Info("run finished", "status", res.Status, "iterations", res.Iterations,
		"bound", res.Bound, "objective", res.Objective, "elapsed", res.Elapsed)
	return res
}

func (o *options) recordInner(inner []*tree.Inner) {
	for _, n := range inner {
		o.record(n.ID(), n.Engine().History())
	}
}

func (o *options) record(nodeID int, history []domain.IterationRecord) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.WriteHistory(nodeID, history); err != nil {
		o.logger.Warn("failed to write history", "node", nodeID, "err", err)
	}
}
