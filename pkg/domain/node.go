package domain

// Role describes a node's position in the decomposition forest.
type Role string

const (
	// RoleRoot owns a master problem and has no parent.
	RoleRoot Role = "root"
	// RoleInner owns a master problem and answers to a parent.
	RoleInner Role = "inner"
	// RoleLeaf solves a subproblem and has no children.
	RoleLeaf Role = "leaf"
)

// Node is a vertex of the decomposition forest. Topology is fixed at build time.
type Node struct {
	ID       int   `json:"id" yaml:"id"`
	Parents  []int `json:"parents,omitempty" yaml:"parents,omitempty"`
	Children []int `json:"children,omitempty" yaml:"children,omitempty"`

	// Multipliers weights each child's contribution (e.g. scenario probability).
	// Missing entries default to 1.
	Multipliers map[int]float64 `json:"multipliers,omitempty" yaml:"multipliers,omitempty"`

	// Groups optionally partitions Children; each group gets one master slot.
	// Empty means one group per child.
	Groups [][]int `json:"groups,omitempty" yaml:"groups,omitempty"`

	Depth int `json:"depth" yaml:"depth"`
}

// Role derives the node's role from its parent and child sets.
func (n Node) Role() Role {
	switch {
	case len(n.Parents) == 0:
		return RoleRoot
	case len(n.Children) == 0:
		return RoleLeaf
	default:
		return RoleInner
	}
}

// Multiplier returns the weight of a child, defaulting to 1.
func (n Node) Multiplier(child int) float64 {
	if w, ok := n.Multipliers[child]; ok {
		return w
	}
	return 1
}

// EffectiveGroups returns the explicit groups or one singleton group per child.
func (n Node) EffectiveGroups() [][]int {
	if len(n.Groups) > 0 {
		return n.Groups
	}
	groups := make([][]int, len(n.Children))
	for i, c := range n.Children {
		groups[i] = []int{c}
	}
	return groups
}

// Entry is one nonzero of a coupling matrix.
type Entry struct {
	Row   int     `json:"row" yaml:"row"`
	Col   int     `json:"col" yaml:"col"`
	Value float64 `json:"value" yaml:"value"`
}

// CouplingMatrix is the slice of the coupling constraints relevant to one child.
//
// Under Benders decomposition, rows are the child's constraints and columns the parent's
// coupling positions (the technology matrix T). Under dual decomposition, rows are the
// relaxed coupling constraints (multiplier positions) and columns the child's variables.
type CouplingMatrix struct {
	Rows    int     `json:"rows" yaml:"rows"`
	Cols    int     `json:"cols" yaml:"cols"`
	Entries []Entry `json:"entries" yaml:"entries"`
}

// MulVec returns M*v.
func (m CouplingMatrix) MulVec(v []float64) []float64 {
	out := make([]float64, m.Rows)
	for _, e := range m.Entries {
		if e.Col < len(v) {
			out[e.Row] += e.Value * v[e.Col]
		}
	}
	return out
}

// MulTransVec returns M'*v.
func (m CouplingMatrix) MulTransVec(v []float64) []float64 {
	out := make([]float64, m.Cols)
	for _, e := range m.Entries {
		if e.Row < len(v) {
			out[e.Col] += e.Value * v[e.Row]
		}
	}
	return out
}
