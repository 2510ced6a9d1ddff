package tree

import (
	"context"
	"fmt"
	"math"

	"github.com/aretw0/decomp/internal/aggregate"
	"github.com/aretw0/decomp/internal/bundle"
	"github.com/aretw0/decomp/internal/logging"
	"github.com/aretw0/decomp/pkg/domain"
)

// Parent drives one master engine over the node's children. It is shared by the root
// and by inner nodes, and by every orchestration mode: only the SolveFunc differs.
type Parent struct {
	options
	node   domain.Node
	engine bundle.Engine
	agg    *aggregate.Aggregator
	links  map[int]domain.CouplingMatrix
}

var _ ParentRole = (*Parent)(nil)

// NewParent validates the node's grouping and wraps the engine. links holds the
// coupling matrix sent to each child in the handshake.
func NewParent(node domain.Node, engine bundle.Engine, links map[int]domain.CouplingMatrix, opts ...Option) (*Parent, error) {
	agg, err := aggregate.New(node.Children, node.Multipliers, node.Groups)
	if err != nil {
		return nil, fmt.Errorf("node %d: %w", node.ID, err)
	}
	p := &Parent{node: node, engine: engine, agg: agg, links: links}
	p.logger = logging.NewNop()
	for _, opt := range opts {
		opt(&p.options)
	}
	return p, nil
}

func (p *Parent) Node() domain.Node { return p.node }

// Engine returns the master engine.
func (p *Parent) Engine() bundle.Engine { return p.engine }

// Aggregator returns the cut aggregator.
func (p *Parent) Aggregator() *aggregate.Aggregator { return p.agg }

// InitMessage builds the handshake for a child.
func (p *Parent) InitMessage(child int) domain.InitDn {
	return domain.InitDn{
		NodeID:   child,
		Sense:    p.engine.Sense(),
		Depth:    p.node.Depth + 1,
		Coupling: p.links[child],
	}
}

// Build folds the children's bounds into one bound per slot and builds the engine.
// A slot's bound is explicit only when every member reported a finite bound.
func (p *Parent) Build(ups map[int]domain.InitUp) error {
	n := p.agg.NumSlots()
	bounds := make([]float64, n)
	explicit := make([]bool, n)
	for slot := 0; slot < n; slot++ {
		sum := 0.0
		for _, m := range p.agg.Group(slot) {
			up, ok := ups[m.Child]
			if !ok {
				return fmt.Errorf("node %d: no handshake from child %d", p.node.ID, m.Child)
			}
			sum += m.Weight * up.Bound
		}
		bounds[slot] = sum
		explicit[slot] = !math.IsInf(sum, 0) && !math.IsNaN(sum)
	}
	p.logger.Debug("building master", "node", p.node.ID, "slots", n, "bounds", bounds)
	return p.engine.Build(bounds, explicit)
}

// Step aggregates the children's cuts and advances the engine. Nil cuts perform the
// initial solve.
func (p *Parent) Step(ctx context.Context, childCuts map[int]domain.CutList) (domain.Status, error) {
	if childCuts == nil {
		return p.engine.Step(ctx, nil)
	}
	cuts, err := p.agg.Aggregate(childCuts)
	if err != nil {
		return p.engine.Status(), fmt.Errorf("node %d: %w", p.node.ID, err)
	}
	return p.engine.Step(ctx, cuts)
}

// Run iterates until the engine reaches a terminal status.
func (p *Parent) Run(ctx context.Context, solve SolveFunc) (domain.Status, error) {
	st, err := p.Step(ctx, nil)
	for err == nil && !st.Terminal() {
		var cuts map[int]domain.CutList
		cuts, err = solve(ctx, p.engine.Iteration(), p.engine.Trial())
		if err != nil {
			break
		}
		st, err = p.Step(ctx, cuts)
	}
	return st, err
}

// FinalMessages builds the hand-off for every child. override holds recovered coupling
// values per slot; slots without one are finalized at the engine's solution.
func (p *Parent) FinalMessages(override map[int][]float64) map[int]domain.FinalDn {
	solution := p.engine.Solution()
	out := make(map[int]domain.FinalDn, len(p.node.Children))
	for _, c := range p.node.Children {
		slot, _ := p.agg.SlotOf(c)
		msg := domain.FinalDn{NodeID: c, Solution: solution}
		if values, ok := override[slot]; ok {
			msg.Solution = values
			msg.HasSolution = true
		}
		out[c] = msg
	}
	return out
}

// Realized is the master's own cost at its solution plus the children's realized
// objectives weighted by their multipliers.
func (p *Parent) Realized(ups map[int]domain.FinalUp) (float64, error) {
	total := p.engine.SolutionCost()
	for _, c := range p.node.Children {
		up, ok := ups[c]
		if !ok {
			return 0, fmt.Errorf("node %d: no final report from child %d", p.node.ID, c)
		}
		total += p.node.Multiplier(c) * up.Objective
	}
	return total, nil
}
