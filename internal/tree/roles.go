package tree

import (
	"context"
	"log/slog"

	"github.com/aretw0/decomp/pkg/domain"
)

// ChildRole is what a node exposes to its parent: the one-time handshake, one solve
// per parent iteration, and the final hand-off.
type ChildRole interface {
	ID() int
	Init(ctx context.Context, msg domain.InitDn) (domain.InitUp, error)
	// Solve evaluates the node at the parent's trial point and returns its cuts.
	Solve(ctx context.Context, trial []float64) (domain.CutList, error)
	Finalize(ctx context.Context, msg domain.FinalDn) (domain.FinalUp, error)
}

// ParentRole is what a node with children exposes to the driver running its loop.
type ParentRole interface {
	Node() domain.Node
	InitMessage(child int) domain.InitDn
	Build(ups map[int]domain.InitUp) error
	Run(ctx context.Context, solve SolveFunc) (domain.Status, error)
	FinalMessages(override map[int][]float64) map[int]domain.FinalDn
	Realized(ups map[int]domain.FinalUp) (float64, error)
}

// SolveFunc evaluates every child of a parent at the trial point of one iteration
// and returns the cuts keyed by child ID.
type SolveFunc func(ctx context.Context, iteration int, trial []float64) (map[int]domain.CutList, error)

// Option configures a node.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	dumpDir string
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithDumpDir makes leaves save their model into dir/<id> when a solve fails.
func WithDumpDir(dir string) Option {
	return func(o *options) {
		o.dumpDir = dir
	}
}
