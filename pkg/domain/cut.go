package domain

import (
	"math"
	"sort"
)

// CutKind distinguishes the two families of Benders/Lagrangian cuts.
type CutKind string

const (
	// CutOptimality bounds a subproblem's value as a function of the coupling variables.
	CutOptimality CutKind = "optimality"
	// CutFeasibility excludes a trial point at which the subproblem was infeasible.
	CutFeasibility CutKind = "feasibility"
)

// Sense is the optimization direction of a model.
type Sense string

const (
	Minimize Sense = "minimize"
	Maximize Sense = "maximize"
)

// Cut is a linear inequality over coupling variable positions.
//
// For an Optimality cut under minimization the inequality reads
//
//	theta >= Rhs + sum(Coeffs[j] * x[j])
//
// and the direction is mirrored under maximization. A Feasibility cut reads
//
//	sum(Coeffs[j] * x[j]) >= Rhs
type Cut struct {
	Coeffs map[int]float64 `json:"coeffs"`
	Rhs    float64         `json:"rhs"`
	Kind   CutKind         `json:"kind"`

	// ObjectiveValue is the subproblem value at the trial point that generated the cut.
	// Only meaningful for Optimality cuts.
	ObjectiveValue float64 `json:"objective_value,omitempty"`

	// Payload carries optional data consumed by the heuristic root.
	Payload *CutPayload `json:"payload,omitempty"`
}

// CutPayload is the structured data a subproblem attaches to its optimality cut.
type CutPayload struct {
	// Solution holds the subproblem's values for the coupling positions it links to.
	Solution []float64 `json:"solution"`
	// Cost is the subproblem's original (pre-augmentation) objective at that solution.
	Cost float64 `json:"cost"`
}

// CutList is the ordered list of cuts returned by one child (or group) in one iteration.
type CutList []Cut

// NewOptimalityCut builds an optimality cut, dropping coefficients below CoeffEpsilon.
func NewOptimalityCut(coeffs map[int]float64, rhs, objective float64) Cut {
	return Cut{
		Coeffs:         sparsify(coeffs),
		Rhs:            rhs,
		Kind:           CutOptimality,
		ObjectiveValue: objective,
	}
}

// NewFeasibilityCut builds a feasibility cut, dropping coefficients below CoeffEpsilon.
func NewFeasibilityCut(coeffs map[int]float64, rhs float64) Cut {
	return Cut{
		Coeffs: sparsify(coeffs),
		Rhs:    rhs,
		Kind:   CutFeasibility,
	}
}

// CutFromSubgradient builds the optimality cut of a value function that takes value
// objective with subgradient g at the trial point.
func CutFromSubgradient(g []float64, trial []float64, objective float64) Cut {
	coeffs := make(map[int]float64, len(g))
	rhs := objective
	for j, v := range g {
		coeffs[j] = v
		if j < len(trial) {
			rhs -= v * trial[j]
		}
	}
	return NewOptimalityCut(coeffs, rhs, objective)
}

// IsOptimality reports whether the cut bounds the subproblem value.
func (c Cut) IsOptimality() bool { return c.Kind == CutOptimality }

// IsFeasibility reports whether the cut excludes infeasible trial points.
func (c Cut) IsFeasibility() bool { return c.Kind == CutFeasibility }

// Linear returns sum(Coeffs[j] * x[j]).
func (c Cut) Linear(x []float64) float64 {
	sum := 0.0
	for j, v := range c.Coeffs {
		if j >= 0 && j < len(x) {
			sum += v * x[j]
		}
	}
	return sum
}

// Eval returns Rhs + sum(Coeffs[j] * x[j]), the cut's estimate of the subproblem value.
func (c Cut) Eval(x []float64) float64 {
	return c.Rhs + c.Linear(x)
}

// Indices returns the coefficient keys in ascending order.
func (c Cut) Indices() []int {
	idx := make([]int, 0, len(c.Coeffs))
	for j := range c.Coeffs {
		idx = append(idx, j)
	}
	sort.Ints(idx)
	return idx
}

// Distance returns the squared Euclidean distance between two cuts' (Coeffs, Rhs).
func (c Cut) Distance(other Cut) float64 {
	d := (c.Rhs - other.Rhs) * (c.Rhs - other.Rhs)
	for j, v := range c.Coeffs {
		w := other.Coeffs[j]
		d += (v - w) * (v - w)
	}
	for j, w := range other.Coeffs {
		if _, ok := c.Coeffs[j]; !ok {
			d += w * w
		}
	}
	return d
}

// HasFeasibility reports whether the list contains at least one feasibility cut.
func (l CutList) HasFeasibility() bool {
	for _, c := range l {
		if c.IsFeasibility() {
			return true
		}
	}
	return false
}

// Feasibility returns only the feasibility cuts of the list, in order.
func (l CutList) Feasibility() CutList {
	var out CutList
	for _, c := range l {
		if c.IsFeasibility() {
			out = append(out, c)
		}
	}
	return out
}

func sparsify(coeffs map[int]float64) map[int]float64 {
	out := make(map[int]float64, len(coeffs))
	for j, v := range coeffs {
		if math.Abs(v) > CoeffEpsilon {
			out[j] = v
		}
	}
	return out
}
