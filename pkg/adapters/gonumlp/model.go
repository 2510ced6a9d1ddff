package gonumlp

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/aretw0/decomp/pkg/domain"
	"github.com/aretw0/decomp/pkg/ports"
)

const (
	// proxTolerance is the admissible gap between the tangent model of the proximal
	// term and its exact value.
	proxTolerance  = 1e-9
	maxProxRounds  = 500
	maxBranchNodes = 20000
	integrality    = 1e-6
)

type variable struct {
	lower, upper float64
	cost         float64
	integer      bool
}

type row struct {
	coeffs       map[int]float64
	lower, upper float64
	active       bool
}

// Model is a ports.MasterModel solved with gonum's simplex routine.
// The proximal term is handled by a separable tangent outer approximation refined
// until it is exact within tolerance; integer variables by depth-first branch-and-bound.
type Model struct {
	sense domain.Sense
	vars  []variable
	rows  []row

	center  map[int]float64
	penalty float64
	// tangents holds, per proximal variable, the points at which the quadratic was linearized.
	tangents map[int][]float64

	x         []float64
	objective float64
	original  float64
	boundDual map[int]float64
}

var _ ports.MasterModel = (*Model)(nil)

// NewModel creates an empty model with the given objective sense.
func NewModel(sense domain.Sense) *Model {
	return &Model{
		sense:    sense,
		tangents: map[int][]float64{},
	}
}

func (m *Model) Sense() domain.Sense { return m.sense }

func (m *Model) AddVariable(lower, upper float64) int {
	m.vars = append(m.vars, variable{lower: lower, upper: upper})
	return len(m.vars) - 1
}

func (m *Model) NumVariables() int { return len(m.vars) }

func (m *Model) SetBounds(v int, lower, upper float64) {
	m.vars[v].lower = lower
	m.vars[v].upper = upper
}

// Bounds returns a variable's bounds.
func (m *Model) Bounds(v int) (float64, float64) {
	return m.vars[v].lower, m.vars[v].upper
}

func (m *Model) SetInteger(v int, integer bool) { m.vars[v].integer = integer }

func (m *Model) SetObjectiveCoeff(v int, c float64) { m.vars[v].cost = c }

func (m *Model) ObjectiveCoeff(v int) float64 { return m.vars[v].cost }

func (m *Model) AddRow(coeffs map[int]float64, lower, upper float64) int {
	cp := make(map[int]float64, len(coeffs))
	for k, v := range coeffs {
		cp[k] = v
	}
	m.rows = append(m.rows, row{coeffs: cp, lower: lower, upper: upper, active: true})
	return len(m.rows) - 1
}

func (m *Model) NumRows() int { return len(m.rows) }

func (m *Model) SetRowActive(r int, active bool) { m.rows[r].active = active }

// RowActive reports whether a row takes part in solves.
func (m *Model) RowActive(r int) bool { return m.rows[r].active }

func (m *Model) RowBounds(r int) (float64, float64) {
	return m.rows[r].lower, m.rows[r].upper
}

func (m *Model) SetProximal(center map[int]float64, penalty float64) {
	if penalty <= 0 || len(center) == 0 {
		m.center = nil
		m.penalty = 0
		m.tangents = map[int][]float64{}
		return
	}
	moved := len(center) != len(m.center)
	for v, c := range center {
		if old, ok := m.center[v]; !ok || old != c {
			moved = true
		}
	}
	if moved || penalty != m.penalty {
		m.tangents = map[int][]float64{}
	}
	m.center = make(map[int]float64, len(center))
	for v, c := range center {
		m.center[v] = c
	}
	m.penalty = penalty
}

func (m *Model) Value(v int) float64 {
	if v < 0 || v >= len(m.x) {
		return 0
	}
	return m.x[v]
}

// Values returns a copy of the last solution.
func (m *Model) Values() []float64 {
	return append([]float64(nil), m.x...)
}

func (m *Model) RowActivity(r int) float64 {
	sum := 0.0
	for v, a := range m.rows[r].coeffs {
		sum += a * m.Value(v)
	}
	return sum
}

func (m *Model) ObjectiveValue() float64 { return m.objective }

func (m *Model) OriginalObjectiveValue() float64 { return m.original }

func (m *Model) BoundDual(v int) float64 { return m.boundDual[v] }

// Solve solves the model, branching when integer variables are declared.
func (m *Model) Solve(ctx context.Context) (domain.SolveStatus, error) {
	m.x = nil
	m.boundDual = nil

	lower := make([]float64, len(m.vars))
	upper := make([]float64, len(m.vars))
	hasInteger := false
	for i, v := range m.vars {
		lower[i], upper[i] = v.lower, v.upper
		if v.integer {
			hasInteger = true
		}
	}

	var (
		out  outcome
		x    []float64
		dual map[int]float64
		err  error
	)
	if hasInteger {
		out, x, err = m.branch(ctx, lower, upper)
	} else {
		out, x, dual, err = m.relaxation(ctx, lower, upper, true)
	}
	switch out {
	case outcomeInfeasible:
		return domain.SolveInfeasible, nil
	case outcomeUnbounded:
		return domain.SolveUnbounded, nil
	case outcomeError:
		return domain.SolveError, err
	}

	m.x = x
	m.boundDual = dual
	m.original = 0
	for i, v := range m.vars {
		m.original += v.cost * x[i]
	}
	prox := 0.0
	for v, c := range m.center {
		d := x[v] - c
		prox += 0.5 * m.penalty * d * d
	}
	if m.sense == domain.Maximize {
		m.objective = m.original - prox
	} else {
		m.objective = m.original + prox
	}
	return domain.SolveOptimal, nil
}

// relaxation solves the continuous relaxation under the given bounds. Variables
// beyond the model's own are the proximal epigraph variables, one per center entry.
func (m *Model) relaxation(ctx context.Context, lower, upper []float64, withDuals bool) (outcome, []float64, map[int]float64, error) {
	n := len(m.vars)
	proxVars := m.proximalOrder()
	total := n + len(proxVars)

	sign := 1.0
	if m.sense == domain.Maximize {
		sign = -1
	}

	for round := 0; round < maxProxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return outcomeError, nil, nil, err
		}

		p := &inequalityLP{c: make([]float64, total)}
		for i, v := range m.vars {
			p.c[i] = sign * v.cost
		}
		for k := range proxVars {
			p.c[n+k] = 1
		}

		type boundRow struct{ upper, lower int }
		bounds := make(map[int]boundRow)
		for i := 0; i < n; i++ {
			br := boundRow{upper: -1, lower: -1}
			if finite(upper[i]) {
				r := make([]float64, total)
				r[i] = 1
				br.upper = p.addRow(r, upper[i])
			}
			if finite(lower[i]) {
				r := make([]float64, total)
				r[i] = -1
				br.lower = p.addRow(r, -lower[i])
			}
			bounds[i] = br
		}
		for _, rw := range m.rows {
			if !rw.active {
				continue
			}
			if finite(rw.upper) {
				r := make([]float64, total)
				for v, a := range rw.coeffs {
					r[v] = a
				}
				p.addRow(r, rw.upper)
			}
			if finite(rw.lower) {
				r := make([]float64, total)
				for v, a := range rw.coeffs {
					r[v] = -a
				}
				p.addRow(r, -rw.lower)
			}
		}
		for k, v := range proxVars {
			for _, pt := range m.tangentPoints(v) {
				// t >= q(pt) + q'(pt)(x - pt)  <=>  q'(pt) x - t <= q'(pt) pt - q(pt)
				d := pt - m.center[v]
				slope := m.penalty * d
				r := make([]float64, total)
				r[v] = slope
				r[n+k] = -1
				p.addRow(r, slope*pt-0.5*m.penalty*d*d)
			}
		}

		out, z, duals, err := solveInequality(p, withDuals && len(proxVars) == 0)
		if out == outcomeUnbounded && len(proxVars) > 0 {
			m.widenTangents(proxVars)
			continue
		}
		if out != outcomeOptimal {
			return out, nil, nil, err
		}

		refined := false
		for k, v := range proxVars {
			d := z[v] - m.center[v]
			exact := 0.5 * m.penalty * d * d
			if exact-z[n+k] > proxTolerance*(1+exact) {
				m.tangents[v] = append(m.tangents[v], z[v])
				refined = true
			}
		}
		if refined {
			continue
		}

		var boundDual map[int]float64
		if duals != nil {
			boundDual = make(map[int]float64)
			for i, br := range bounds {
				val := 0.0
				if br.upper >= 0 {
					val += duals[br.upper]
				}
				if br.lower >= 0 {
					val -= duals[br.lower]
				}
				boundDual[i] = sign * val
			}
		}
		return outOptimal(z[:n], boundDual)
	}
	return outcomeError, nil, nil, fmt.Errorf("%w: proximal refinement did not converge", ErrSolver)
}

func outOptimal(x []float64, dual map[int]float64) (outcome, []float64, map[int]float64, error) {
	return outcomeOptimal, append([]float64(nil), x...), dual, nil
}

func (m *Model) proximalOrder() []int {
	vars := make([]int, 0, len(m.center))
	for v := range m.center {
		vars = append(vars, v)
	}
	sort.Ints(vars)
	return vars
}

func (m *Model) tangentPoints(v int) []float64 {
	pts, ok := m.tangents[v]
	if !ok {
		c := m.center[v]
		pts = []float64{c, c - 1, c + 1}
		m.tangents[v] = pts
	}
	return pts
}

func (m *Model) widenTangents(vars []int) {
	for _, v := range vars {
		pts := m.tangentPoints(v)
		c := m.center[v]
		far := 1.0
		for _, pt := range pts {
			far = math.Max(far, math.Abs(pt-c))
		}
		m.tangents[v] = append(pts, c-2*far, c+2*far)
	}
}

// branch runs depth-first branch-and-bound on the most fractional integer variable.
func (m *Model) branch(ctx context.Context, lower, upper []float64) (outcome, []float64, error) {
	type node struct{ lower, upper []float64 }

	sign := 1.0
	if m.sense == domain.Maximize {
		sign = -1
	}

	var (
		best      []float64
		bestValue = math.Inf(1)
		unbounded bool
	)
	stack := []node{{lower: lower, upper: upper}}
	for explored := 0; len(stack) > 0; explored++ {
		if explored >= maxBranchNodes {
			return outcomeError, nil, fmt.Errorf("%w: branch-and-bound node limit reached", ErrSolver)
		}
		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		out, x, _, err := m.relaxation(ctx, nd.lower, nd.upper, false)
		switch out {
		case outcomeInfeasible:
			continue
		case outcomeUnbounded:
			unbounded = true
			continue
		case outcomeError:
			return out, nil, err
		}

		value := 0.0
		for i, v := range m.vars {
			value += sign * v.cost * x[i]
		}
		for v, c := range m.center {
			d := x[v] - c
			value += 0.5 * m.penalty * d * d
		}
		if value >= bestValue-1e-9 {
			continue
		}

		pick, frac := -1, 0.0
		for i, v := range m.vars {
			if !v.integer {
				continue
			}
			f := math.Abs(x[i] - math.Round(x[i]))
			if f > integrality && f > frac {
				pick, frac = i, f
			}
		}
		if pick < 0 {
			for i, v := range m.vars {
				if v.integer {
					x[i] = math.Round(x[i])
				}
			}
			best, bestValue = x, value
			continue
		}

		down := node{lower: append([]float64(nil), nd.lower...), upper: append([]float64(nil), nd.upper...)}
		down.upper[pick] = math.Floor(x[pick])
		up := node{lower: append([]float64(nil), nd.lower...), upper: append([]float64(nil), nd.upper...)}
		up.lower[pick] = math.Ceil(x[pick])
		stack = append(stack, up, down)
	}

	if best == nil {
		if unbounded {
			return outcomeUnbounded, nil, nil
		}
		return outcomeInfeasible, nil, nil
	}
	return outcomeOptimal, best, nil
}
