package tree

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/aretw0/decomp/pkg/domain"
	"github.com/aretw0/decomp/pkg/ports"
)

// Inner is a node that is both a child and a parent. Its master holds input variables
// for the parent's coupling positions. Each parent iteration fixes the inputs, runs
// the node's own loop to termination, and returns one optimality cut built from the
// master's sensitivity to the fixed inputs.
type Inner struct {
	*Parent
	model    ports.MasterModel
	inputs   []int
	children map[int]ChildRole

	fixed []float64
}

var (
	_ ChildRole  = (*Inner)(nil)
	_ ParentRole = (*Inner)(nil)
)

// NewInner composes a parent with child behaviour. inputs are the model variables
// standing for the parent's coupling positions, in order.
func NewInner(parent *Parent, model ports.MasterModel, inputs []int, children []ChildRole) (*Inner, error) {
	for _, v := range inputs {
		if v < 0 || v >= model.NumVariables() {
			return nil, fmt.Errorf("%w: input variable %d", domain.ErrUnknownCouplingVariable, v)
		}
	}
	byID := make(map[int]ChildRole, len(children))
	for _, c := range children {
		byID[c.ID()] = c
	}
	for _, id := range parent.node.Children {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("%w: child %d of node %d", domain.ErrNodeNotFound, id, parent.node.ID)
		}
	}
	return &Inner{Parent: parent, model: model, inputs: append([]int(nil), inputs...), children: byID}, nil
}

func (n *Inner) ID() int { return n.node.ID }

// Init checks the handshake, performs its own children's handshakes and builds the master.
// The reported bound is the master's cost bound over its variable box plus the
// weighted child bounds, and is infinite when either part is.
func (n *Inner) Init(ctx context.Context, msg domain.InitDn) (domain.InitUp, error) {
	sense := n.engine.Sense()
	if msg.Sense != sense {
		return domain.InitUp{}, fmt.Errorf("%w: node %d is %s under a %s parent", domain.ErrInvalidTopology, n.node.ID, sense, msg.Sense)
	}
	if msg.Coupling.Cols > 0 && msg.Coupling.Cols != len(n.inputs) {
		return domain.InitUp{}, fmt.Errorf("%w: node %d has %d inputs for %d coupling positions",
			domain.ErrInvalidTopology, n.node.ID, len(n.inputs), msg.Coupling.Cols)
	}
	n.node.Depth = msg.Depth
	bound := n.costBound()

	ups := make(map[int]domain.InitUp, len(n.children))
	for _, id := range n.node.Children {
		up, err := n.children[id].Init(ctx, n.InitMessage(id))
		if err != nil {
			return domain.InitUp{}, err
		}
		ups[id] = up
		bound += n.node.Multiplier(id) * up.Bound
	}
	if err := n.Build(ups); err != nil {
		return domain.InitUp{}, err
	}
	if math.IsNaN(bound) {
		bound = math.Inf(-1)
		if sense == domain.Maximize {
			bound = math.Inf(1)
		}
	}
	return domain.InitUp{NodeID: n.node.ID, Bound: bound}, nil
}

// costBound is the best value the master's own objective can reach over its variable
// bounds. It runs before Build adds the slot variables.
func (n *Inner) costBound() float64 {
	minimize := n.engine.Sense() == domain.Minimize
	total := 0.0
	for v := 0; v < n.model.NumVariables(); v++ {
		c := n.model.ObjectiveCoeff(v)
		if c == 0 {
			continue
		}
		lower, upper := n.model.Bounds(v)
		if (c > 0) == minimize {
			total += c * lower
		} else {
			total += c * upper
		}
	}
	return total
}

// Solve fixes the inputs at the trial point and runs the node's loop to termination.
func (n *Inner) Solve(ctx context.Context, trial []float64) (domain.CutList, error) {
	if len(trial) != len(n.inputs) {
		return nil, fmt.Errorf("node %d: trial has %d values for %d inputs", n.node.ID, len(trial), len(n.inputs))
	}
	for j, v := range n.inputs {
		n.model.SetBounds(v, trial[j], trial[j])
	}
	n.fixed = append(n.fixed[:0], trial...)
	n.engine.Reset()

	st, err := n.Run(ctx, n.solveChildren)
	if err != nil {
		if errors.Is(err, domain.ErrMasterInfeasible) {
			return nil, fmt.Errorf("node %d: %w: %w", n.node.ID, domain.ErrSubproblemFailed, err)
		}
		return nil, err
	}
	n.logger.Debug("inner node converged", "node", n.node.ID, "status", st,
		"iterations", n.engine.Iteration(), "bound", n.engine.Bound())

	// Bound duals only exist for the plain cutting-plane master, so a stabilized
	// engine's last solve is repeated without its proximal term.
	n.model.SetProximal(nil, 0)
	solved, err := n.model.Solve(ctx)
	if err != nil {
		return nil, fmt.Errorf("node %d: %w: %w", n.node.ID, domain.ErrSubproblemFailed, err)
	}
	if solved != domain.SolveOptimal {
		return nil, fmt.Errorf("node %d: %w: master is %s at fixed inputs", n.node.ID, domain.ErrSubproblemFailed, solved)
	}

	g := make([]float64, len(n.inputs))
	for j, v := range n.inputs {
		g[j] = n.model.BoundDual(v)
	}
	obj := n.model.OriginalObjectiveValue()
	cut := domain.CutFromSubgradient(g, trial, obj)
	cut.Payload = &domain.CutPayload{Solution: append([]float64(nil), trial...), Cost: obj}
	return domain.CutList{cut}, nil
}

// Children returns the node's child roles in topology order.
func (n *Inner) Children() []ChildRole {
	out := make([]ChildRole, 0, len(n.node.Children))
	for _, id := range n.node.Children {
		out = append(out, n.children[id])
	}
	return out
}

// InnerNodes lists the inner nodes among roles and below them, depth first.
func InnerNodes(roles []ChildRole) []*Inner {
	var out []*Inner
	for _, r := range roles {
		if n, ok := r.(*Inner); ok {
			out = append(out, n)
			out = append(out, InnerNodes(n.Children())...)
		}
	}
	return out
}

func (n *Inner) solveChildren(ctx context.Context, _ int, trial []float64) (map[int]domain.CutList, error) {
	out := make(map[int]domain.CutList, len(n.children))
	for _, id := range n.node.Children {
		cuts, err := n.children[id].Solve(ctx, trial)
		if err != nil {
			return nil, err
		}
		out[id] = cuts
	}
	return out, nil
}

// Finalize re-converges at the hand-off point when it differs from the last fixed
// inputs, finalizes its own children and reports its realized objective.
func (n *Inner) Finalize(ctx context.Context, msg domain.FinalDn) (domain.FinalUp, error) {
	if len(msg.Solution) > 0 && !slices.Equal(msg.Solution, n.fixed) {
		if _, err := n.Solve(ctx, msg.Solution); err != nil {
			return domain.FinalUp{}, err
		}
	}
	ups := make(map[int]domain.FinalUp, len(n.children))
	for id, fm := range n.FinalMessages(nil) {
		up, err := n.children[id].Finalize(ctx, fm)
		if err != nil {
			return domain.FinalUp{}, err
		}
		ups[id] = up
	}
	total, err := n.Realized(ups)
	if err != nil {
		return domain.FinalUp{}, err
	}
	return domain.FinalUp{NodeID: n.node.ID, Objective: total}, nil
}
