package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/decomp/internal/tree"
	"github.com/aretw0/decomp/pkg/domain"
)

// Tree runs a whole decomposition tree in one process. Inner children recurse into
// their own loops from inside Solve, so nested decomposition needs no extra driver code.
type Tree struct {
	options
	root     *tree.Parent
	children map[int]tree.ChildRole
	inner    []*tree.Inner
}

// NewTree checks that every child of the root has a role.
func NewTree(root *tree.Parent, children []tree.ChildRole, opts ...Option) (*Tree, error) {
	byID := make(map[int]tree.ChildRole, len(children))
	for _, c := range children {
		byID[c.ID()] = c
	}
	node := root.Node()
	for _, id := range node.Children {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("%w: child %d of root %d", domain.ErrNodeNotFound, id, node.ID)
		}
	}
	if len(byID) != len(node.Children) {
		return nil, fmt.Errorf("%w: %d roles for %d children", domain.ErrInvalidTopology, len(byID), len(node.Children))
	}
	ordered := make([]tree.ChildRole, 0, len(node.Children))
	for _, id := range node.Children {
		ordered = append(ordered, byID[id])
	}
	return &Tree{options: newOptions(opts), root: root, children: byID, inner: tree.InnerNodes(ordered)}, nil
}

// Run performs the init, main and final phases.
func (t *Tree) Run(ctx context.Context) (domain.Result, error) {
	start := time.Now()
	node := t.root.Node()

	ups := make(map[int]domain.InitUp, len(node.Children))
	for _, id := range node.Children {
		up, err := t.children[id].Init(ctx, t.root.InitMessage(id))
		if err != nil {
			return domain.Result{}, err
		}
		ups[id] = up
	}
	if err := t.root.Build(ups); err != nil {
		return domain.Result{}, err
	}
	t.logger.Info("tree initialized", "root", node.ID, "children", len(node.Children))

	if _, err := t.root.Run(ctx, t.solve); err != nil {
		return t.result(t.root, t.inner, 0, start), err
	}

	objective, err := t.finalize(ctx, t.root, t.exchange)
	if err != nil {
		return t.result(t.root, t.inner, 0, start), err
	}
	return t.result(t.root, t.inner, objective, start), nil
}

func (t *Tree) solve(ctx context.Context, iteration int, trial []float64) (map[int]domain.CutList, error) {
	out := make(map[int]domain.CutList, len(t.children))
	for _, id := range t.root.Node().Children {
		cuts, err := t.children[id].Solve(ctx, trial)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", iteration, err)
		}
		out[id] = cuts
	}
	return out, nil
}

func (t *Tree) exchange(ctx context.Context, msgs map[int]domain.FinalDn) (map[int]domain.FinalUp, error) {
	out := make(map[int]domain.FinalUp, len(msgs))
	for _, id := range t.root.Node().Children {
		up, err := t.children[id].Finalize(ctx, msgs[id])
		if err != nil {
			return nil, err
		}
		out[id] = up
	}
	return out, nil
}

// HubAndSpoke is the single-level restriction of Tree: one root whose children are
// all leaves.
type HubAndSpoke struct {
	*Tree
}

// NewHubAndSpoke rejects inner children.
func NewHubAndSpoke(root *tree.Parent, children []tree.ChildRole, opts ...Option) (*HubAndSpoke, error) {
	for _, c := range children {
		if _, ok := c.(*tree.Leaf); !ok {
			return nil, fmt.Errorf("%w: hub-and-spoke child %d is not a leaf", domain.ErrInvalidTopology, c.ID())
		}
	}
	t, err := NewTree(root, children, opts...)
	if err != nil {
		return nil, err
	}
	return &HubAndSpoke{Tree: t}, nil
}
