package gonumlp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/aretw0/decomp/pkg/domain"
	"github.com/aretw0/decomp/pkg/ports"
)

// Recourse is the second-stage linear program of a two-stage stochastic program:
//
//	min q'y  s.t.  W y >= h - T x,  y >= 0
//
// The technology matrix T arrives with the InitDn handshake. The program is solved in
// dual form so that duals and Farkas rays come straight out of the simplex routine.
type Recourse struct {
	Q []float64   `json:"q"`
	W [][]float64 `json:"w"`
	H []float64   `json:"h"`

	bound    *float64
	coupling domain.CouplingMatrix
	rhs      []float64

	y        []float64
	pi       []float64
	ray      []float64
	rayConst float64
	value    float64
}

var _ ports.Subproblem = (*Recourse)(nil)

// RecourseOption configures a Recourse.
type RecourseOption func(*Recourse)

// WithBound declares a known lower bound on the recourse value.
func WithBound(b float64) RecourseOption {
	return func(r *Recourse) {
		r.bound = &b
	}
}

// NewRecourse validates dimensions and returns the subproblem.
func NewRecourse(q []float64, w [][]float64, h []float64, opts ...RecourseOption) (*Recourse, error) {
	if len(w) != len(h) {
		return nil, fmt.Errorf("recourse: W has %d rows, h has %d", len(w), len(h))
	}
	for i, r := range w {
		if len(r) != len(q) {
			return nil, fmt.Errorf("recourse: W row %d has %d columns, q has %d", i, len(r), len(q))
		}
	}
	rec := &Recourse{Q: q, W: w, H: h, rhs: append([]float64(nil), h...)}
	for _, opt := range opts {
		opt(rec)
	}
	return rec, nil
}

// Configure stores the technology matrix and reports the outer bound: the declared
// bound, zero when all recourse costs are non-negative, or -Inf when unknown.
func (r *Recourse) Configure(_ context.Context, msg domain.InitDn) (float64, error) {
	if msg.Coupling.Rows != len(r.H) {
		return 0, fmt.Errorf("recourse: coupling matrix has %d rows, expected %d", msg.Coupling.Rows, len(r.H))
	}
	r.coupling = msg.Coupling
	if r.bound != nil {
		return *r.bound, nil
	}
	for _, c := range r.Q {
		if c < 0 {
			return math.Inf(-1), nil
		}
	}
	return 0, nil
}

// Update sets the right-hand side to h - T x.
func (r *Recourse) Update(_ context.Context, trial []float64) error {
	tx := r.coupling.MulVec(trial)
	for i := range r.H {
		r.rhs[i] = r.H[i] - tx[i]
	}
	return nil
}

// Solve maximizes rhs'pi over W'pi <= q, pi >= 0.
func (r *Recourse) Solve(ctx context.Context) (domain.SolveStatus, error) {
	if err := ctx.Err(); err != nil {
		return domain.SolveError, err
	}
	r.y, r.pi, r.ray = nil, nil, nil

	m, ny := len(r.H), len(r.Q)
	if m == 0 {
		for _, c := range r.Q {
			if c < 0 {
				return domain.SolveUnbounded, nil
			}
		}
		r.y, r.pi, r.value = make([]float64, ny), nil, 0
		return domain.SolveOptimal, nil
	}

	// Dual: min -rhs'pi  s.t.  W'pi + s = q,  pi, s >= 0
	c := make([]float64, m+ny)
	for i := 0; i < m; i++ {
		c[i] = -r.rhs[i]
	}
	a := mat.NewDense(ny, m+ny, nil)
	b := make([]float64, ny)
	for j := 0; j < ny; j++ {
		for i := 0; i < m; i++ {
			a.Set(j, i, r.W[i][j])
		}
		a.Set(j, m+j, 1)
		b[j] = r.Q[j]
	}
	out, sol, err := solveStandard(c, a, b)
	switch out {
	case outcomeOptimal:
		r.pi = append([]float64(nil), sol[:m]...)
		r.value = dot(r.pi, r.rhs)
		r.y = r.primal()
		return domain.SolveOptimal, nil
	case outcomeUnbounded:
		return r.farkas()
	case outcomeInfeasible:
		return domain.SolveUnbounded, nil
	}
	return domain.SolveError, err
}

// farkas finds sigma >= 0 with W'sigma <= 0 and rhs'sigma > 0, normalized by sum(sigma) <= 1.
func (r *Recourse) farkas() (domain.SolveStatus, error) {
	m, ny := len(r.H), len(r.Q)
	// Variables: sigma (m), s (ny), t (1). Rows: ny + 1.
	c := make([]float64, m+ny+1)
	for i := 0; i < m; i++ {
		c[i] = -r.rhs[i]
	}
	a := mat.NewDense(ny+1, m+ny+1, nil)
	b := make([]float64, ny+1)
	for j := 0; j < ny; j++ {
		for i := 0; i < m; i++ {
			a.Set(j, i, r.W[i][j])
		}
		a.Set(j, m+j, 1)
	}
	for i := 0; i < m; i++ {
		a.Set(ny, i, 1)
	}
	a.Set(ny, m+ny, 1)
	b[ny] = 1

	out, sol, err := solveStandard(c, a, b)
	if out != outcomeOptimal {
		if err == nil {
			err = fmt.Errorf("%w: no farkas ray for infeasible recourse", ErrSolver)
		}
		return domain.SolveError, err
	}
	r.ray = append([]float64(nil), sol[:m]...)
	r.rayConst = dot(r.ray, r.H)
	return domain.SolveInfeasible, nil
}

// primal recovers y by solving min q'y s.t. -W y <= -rhs, -y <= 0.
func (r *Recourse) primal() []float64 {
	m, ny := len(r.H), len(r.Q)
	p := &inequalityLP{c: append([]float64(nil), r.Q...)}
	for i := 0; i < m; i++ {
		row := make([]float64, ny)
		for j := 0; j < ny; j++ {
			row[j] = -r.W[i][j]
		}
		p.addRow(row, -r.rhs[i])
	}
	for j := 0; j < ny; j++ {
		row := make([]float64, ny)
		row[j] = -1
		p.addRow(row, 0)
	}
	out, y, _, _ := solveInequality(p, false)
	if out != outcomeOptimal {
		return make([]float64, ny)
	}
	return y
}

func (r *Recourse) Solution() []float64 { return append([]float64(nil), r.y...) }

func (r *Recourse) ObjectiveValue() float64 { return r.value }

func (r *Recourse) OriginalObjectiveValue() float64 { return r.value }

func (r *Recourse) Duals() []float64 { return append([]float64(nil), r.pi...) }

func (r *Recourse) DualRay() ([]float64, float64) {
	return append([]float64(nil), r.ray...), r.rayConst
}

// UnboundedRay is not produced: an unbounded recourse is reported by status only.
func (r *Recourse) UnboundedRay() ([]float64, float64) { return nil, 0 }

// Save writes the recourse data and last solution as JSON into dir.
func (r *Recourse) Save(dir string) error {
	return saveJSON(dir, "recourse.json", struct {
		*Recourse
		Coupling domain.CouplingMatrix `json:"coupling"`
		RHS      []float64             `json:"rhs"`
		Y        []float64             `json:"y"`
		Pi       []float64             `json:"pi"`
		Value    float64               `json:"value"`
	}{r, r.coupling, r.rhs, r.y, r.pi, r.value})
}

func saveJSON(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create dump directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal dump: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}
