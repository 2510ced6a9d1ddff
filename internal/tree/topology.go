package tree

import (
	"fmt"
	"slices"
	"sort"

	"github.com/aretw0/decomp/internal/aggregate"
	"github.com/aretw0/decomp/pkg/domain"
)

// Topology is the validated decomposition forest together with the coupling matrix
// linking each non-root node to its parent.
type Topology struct {
	nodes map[int]*domain.Node
	links map[int]domain.CouplingMatrix
	roots []int
}

// NewTopology validates the forest and assigns depths (roots at 0, children at
// parent+1). Each node has at most one parent, parent and child lists must agree,
// and every parent's groups must partition its children.
func NewTopology(nodes []domain.Node, links map[int]domain.CouplingMatrix) (*Topology, error) {
	t := &Topology{
		nodes: make(map[int]*domain.Node, len(nodes)),
		links: make(map[int]domain.CouplingMatrix, len(links)),
	}
	for i := range nodes {
		n := nodes[i]
		if _, dup := t.nodes[n.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate node %d", domain.ErrInvalidTopology, n.ID)
		}
		t.nodes[n.ID] = &n
	}
	for id, m := range links {
		t.links[id] = m
	}

	for id, n := range t.nodes {
		if len(n.Parents) > 1 {
			return nil, fmt.Errorf("%w: node %d has %d parents", domain.ErrInvalidTopology, id, len(n.Parents))
		}
		for _, p := range n.Parents {
			parent, ok := t.nodes[p]
			if !ok {
				return nil, fmt.Errorf("%w: parent %d of node %d", domain.ErrNodeNotFound, p, id)
			}
			if !slices.Contains(parent.Children, id) {
				return nil, fmt.Errorf("%w: node %d not listed as child of %d", domain.ErrInvalidTopology, id, p)
			}
		}
		for _, c := range n.Children {
			child, ok := t.nodes[c]
			if !ok {
				return nil, fmt.Errorf("%w: child %d of node %d", domain.ErrNodeNotFound, c, id)
			}
			if !slices.Contains(child.Parents, id) {
				return nil, fmt.Errorf("%w: node %d not listed as parent of %d", domain.ErrInvalidTopology, id, c)
			}
		}
		if len(n.Children) > 0 {
			if _, err := aggregate.New(n.Children, n.Multipliers, n.Groups); err != nil {
				return nil, fmt.Errorf("node %d: %w", id, err)
			}
		}
		if len(n.Parents) == 0 {
			t.roots = append(t.roots, id)
		}
	}
	if len(t.roots) == 0 && len(t.nodes) > 0 {
		return nil, fmt.Errorf("%w: no root", domain.ErrInvalidTopology)
	}
	sort.Ints(t.roots)

	seen := make(map[int]bool, len(t.nodes))
	var walk func(id, depth int) error
	walk = func(id, depth int) error {
		if seen[id] {
			return fmt.Errorf("%w: cycle through node %d", domain.ErrInvalidTopology, id)
		}
		seen[id] = true
		n := t.nodes[id]
		n.Depth = depth
		for _, c := range n.Children {
			if err := walk(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range t.roots {
		if err := walk(r, 0); err != nil {
			return nil, err
		}
	}
	if len(seen) != len(t.nodes) {
		return nil, fmt.Errorf("%w: %d nodes unreachable from any root", domain.ErrInvalidTopology, len(t.nodes)-len(seen))
	}
	return t, nil
}

// Node returns a copy of the node with the given ID.
func (t *Topology) Node(id int) (domain.Node, error) {
	n, ok := t.nodes[id]
	if !ok {
		return domain.Node{}, fmt.Errorf("%w: %d", domain.ErrNodeNotFound, id)
	}
	return *n, nil
}

// Roots returns the root IDs in ascending order.
func (t *Topology) Roots() []int { return append([]int(nil), t.roots...) }

// Link returns the coupling matrix between a node and its parent.
func (t *Topology) Link(id int) domain.CouplingMatrix { return t.links[id] }

// Links returns the coupling matrices of the given children keyed by ID.
func (t *Topology) Links(children []int) map[int]domain.CouplingMatrix {
	out := make(map[int]domain.CouplingMatrix, len(children))
	for _, c := range children {
		out[c] = t.links[c]
	}
	return out
}

// Len returns the number of nodes.
func (t *Topology) Len() int { return len(t.nodes) }

// IDs returns every node ID in ascending order.
func (t *Topology) IDs() []int {
	ids := make([]int, 0, len(t.nodes))
	for id := range t.nodes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Subtree returns id and all of its descendants in depth-first order.
func (t *Topology) Subtree(id int) []int {
	out := []int{id}
	if n, ok := t.nodes[id]; ok {
		for _, c := range n.Children {
			out = append(out, t.Subtree(c)...)
		}
	}
	return out
}

// SingleLevel reports whether the forest is one root whose children are all leaves.
func (t *Topology) SingleLevel() bool {
	if len(t.roots) != 1 {
		return false
	}
	for _, c := range t.nodes[t.roots[0]].Children {
		if t.nodes[c].Role() != domain.RoleLeaf {
			return false
		}
	}
	return true
}
