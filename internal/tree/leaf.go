package tree

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/aretw0/decomp/internal/logging"
	"github.com/aretw0/decomp/pkg/domain"
	"github.com/aretw0/decomp/pkg/ports"
)

// Leaf wraps a subproblem solver. It has no master of its own.
type Leaf struct {
	options
	id  int
	sub ports.Subproblem
	gen CutGenerator

	link  domain.CouplingMatrix
	trial []float64
}

var _ ChildRole = (*Leaf)(nil)

// NewLeaf builds a leaf around a subproblem and the generator matching the decomposition.
func NewLeaf(id int, sub ports.Subproblem, gen CutGenerator, opts ...Option) *Leaf {
	l := &Leaf{id: id, sub: sub, gen: gen}
	l.logger = logging.NewNop()
	for _, opt := range opts {
		opt(&l.options)
	}
	return l
}

func (l *Leaf) ID() int { return l.id }

// Subproblem returns the wrapped solver adapter.
func (l *Leaf) Subproblem() ports.Subproblem { return l.sub }

func (l *Leaf) Init(ctx context.Context, msg domain.InitDn) (domain.InitUp, error) {
	bound, err := l.sub.Configure(ctx, msg)
	if err != nil {
		return domain.InitUp{}, fmt.Errorf("leaf %d: %w", l.id, err)
	}
	l.link = msg.Coupling
	l.logger.Debug("leaf configured", "node", l.id, "depth", msg.Depth, "bound", bound)
	return domain.InitUp{NodeID: l.id, Bound: bound}, nil
}

// Solve fixes or reweights the coupling inputs, solves, and generates the cuts.
func (l *Leaf) Solve(ctx context.Context, trial []float64) (domain.CutList, error) {
	l.trial = append(l.trial[:0], trial...)
	st, err := l.solve(ctx, trial)
	if err != nil {
		return nil, err
	}
	cuts, err := l.gen.Generate(st, l.sub, trial, l.link)
	if err != nil {
		l.dump()
		return nil, fmt.Errorf("leaf %d: %w", l.id, err)
	}
	if st != domain.SolveOptimal {
		l.logger.Debug("leaf returned feasibility cut", "node", l.id, "status", st)
	}
	return cuts, nil
}

// Finalize re-solves at the hand-off point, or at the last trial point when the message
// carries none, and reports the original objective.
func (l *Leaf) Finalize(ctx context.Context, msg domain.FinalDn) (domain.FinalUp, error) {
	point := msg.Solution
	if len(point) == 0 {
		point = l.trial
	}
	st, err := l.solve(ctx, point)
	if err != nil {
		return domain.FinalUp{}, err
	}
	if st != domain.SolveOptimal {
		l.dump()
		return domain.FinalUp{}, fmt.Errorf("leaf %d: %w: final status %s", l.id, domain.ErrSubproblemFailed, st)
	}
	return domain.FinalUp{NodeID: l.id, Objective: l.sub.OriginalObjectiveValue()}, nil
}

func (l *Leaf) solve(ctx context.Context, point []float64) (domain.SolveStatus, error) {
	if err := l.sub.Update(ctx, point); err != nil {
		return domain.SolveError, fmt.Errorf("leaf %d: update failed: %w", l.id, err)
	}
	st, err := l.sub.Solve(ctx)
	if err != nil {
		l.dump()
		return st, fmt.Errorf("leaf %d: %w: %w", l.id, domain.ErrSubproblemFailed, err)
	}
	return st, nil
}

func (l *Leaf) dump() {
	if l.dumpDir == "" {
		return
	}
	dir := filepath.Join(l.dumpDir, strconv.Itoa(l.id))
	if err := l.sub.Save(dir); err != nil {
		l.logger.Warn("failed to save subproblem", "node", l.id, "err", err)
	}
}
