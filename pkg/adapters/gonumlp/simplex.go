package gonumlp

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// Tolerance is passed to the simplex routine.
const Tolerance = 1e-10

// ErrSolver wraps simplex failures that are neither infeasibility nor unboundedness.
var ErrSolver = errors.New("simplex failure")

// outcome classifies a simplex call.
type outcome int

const (
	outcomeOptimal outcome = iota
	outcomeInfeasible
	outcomeUnbounded
	outcomeError
)

// inequalityLP is min c'z s.t. G z <= h with z free.
type inequalityLP struct {
	c    []float64
	rows [][]float64
	h    []float64
}

func (p *inequalityLP) addRow(row []float64, rhs float64) int {
	p.rows = append(p.rows, row)
	p.h = append(p.h, rhs)
	return len(p.rows) - 1
}

// solveInequality solves min c'z s.t. G z <= h, z free. It returns z and, on request,
// the row duals y <= 0 such that d(opt)/d(h) = y.
func solveInequality(p *inequalityLP, withDuals bool) (outcome, []float64, []float64, error) {
	n := len(p.c)
	m := len(p.rows)

	// Columns that appear in no row cannot be handed to the simplex routine.
	used := make([]bool, n)
	for _, row := range p.rows {
		for j, v := range row {
			if v != 0 {
				used[j] = true
			}
		}
	}
	cols := make([]int, 0, n)
	for j := 0; j < n; j++ {
		if used[j] {
			cols = append(cols, j)
			continue
		}
		if p.c[j] != 0 {
			return outcomeUnbounded, nil, nil, nil
		}
	}

	z := make([]float64, n)
	if m == 0 || len(cols) == 0 {
		for i := 0; i < m; i++ {
			if p.h[i] < -Tolerance {
				return outcomeInfeasible, nil, nil, nil
			}
		}
		return outcomeOptimal, z, make([]float64, m), nil
	}

	k := len(cols)
	c := make([]float64, k)
	g := mat.NewDense(m, k, nil)
	for jj, j := range cols {
		c[jj] = p.c[j]
		for i := 0; i < m; i++ {
			g.Set(i, jj, p.rows[i][j])
		}
	}

	cStd, aStd, bStd := lp.Convert(c, g, append([]float64(nil), p.h...), nil, nil)
	flip := normalize(aStd, bStd)

	_, xStd, err := lp.Simplex(cStd, aStd, bStd, Tolerance, nil)
	if out, err := classify(err); out != outcomeOptimal {
		return out, nil, nil, err
	}
	for jj, j := range cols {
		z[j] = xStd[jj] - xStd[k+jj]
	}
	if !withDuals {
		return outcomeOptimal, z, nil, nil
	}

	y, err := standardDuals(cStd, aStd, bStd)
	if err != nil {
		return outcomeError, z, nil, err
	}
	duals := make([]float64, m)
	for i := 0; i < m; i++ {
		duals[i] = y[i] * flip[i]
	}
	return outcomeOptimal, z, duals, nil
}

// standardDuals solves the dual of min c'w s.t. A w = b, w >= 0, i.e.
// max b'y s.t. A'y <= c, written in standard form with y = yp - yn.
func standardDuals(c []float64, a *mat.Dense, b []float64) ([]float64, error) {
	m, n := a.Dims()
	// Variables: yp (m), yn (m), s (n). Rows: n.
	dc := make([]float64, 2*m+n)
	for i := 0; i < m; i++ {
		dc[i] = -b[i]
		dc[m+i] = b[i]
	}
	da := mat.NewDense(n, 2*m+n, nil)
	db := make([]float64, n)
	for j := 0; j < n; j++ {
		for i := 0; i < m; i++ {
			v := a.At(i, j)
			da.Set(j, i, v)
			da.Set(j, m+i, -v)
		}
		da.Set(j, 2*m+j, 1)
		db[j] = c[j]
	}
	normalize(da, db)
	_, sol, err := lp.Simplex(dc, da, db, Tolerance, nil)
	if out, err := classify(err); out != outcomeOptimal {
		if err == nil {
			err = ErrSolver
		}
		return nil, err
	}
	y := make([]float64, m)
	for i := 0; i < m; i++ {
		y[i] = sol[i] - sol[m+i]
	}
	return y, nil
}

// solveStandard solves min c'w s.t. A w = b, w >= 0 with rows made non-negative first.
func solveStandard(c []float64, a *mat.Dense, b []float64) (outcome, []float64, error) {
	normalize(a, b)
	_, x, err := lp.Simplex(c, a, b, Tolerance, nil)
	out, err := classify(err)
	return out, x, err
}

// normalize multiplies rows with negative right-hand side by -1 and reports the signs.
func normalize(a *mat.Dense, b []float64) []float64 {
	m, n := a.Dims()
	sign := make([]float64, m)
	for i := 0; i < m; i++ {
		sign[i] = 1
		if b[i] < 0 {
			sign[i] = -1
			b[i] = -b[i]
			for j := 0; j < n; j++ {
				a.Set(i, j, -a.At(i, j))
			}
		}
	}
	return sign
}

func classify(err error) (outcome, error) {
	switch {
	case err == nil:
		return outcomeOptimal, nil
	case errors.Is(err, lp.ErrInfeasible):
		return outcomeInfeasible, nil
	case errors.Is(err, lp.ErrUnbounded):
		return outcomeUnbounded, nil
	default:
		return outcomeError, errors.Join(ErrSolver, err)
	}
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		if i < len(b) {
			s += a[i] * b[i]
		}
	}
	return s
}

func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
