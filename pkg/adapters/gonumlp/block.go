package gonumlp

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/aretw0/decomp/pkg/domain"
	"github.com/aretw0/decomp/pkg/ports"
)

// Block is one block of a Lagrangian relaxation:
//
//	min (c + A'lambda)'y  s.t.  W y >= h,  lower <= y <= upper
//
// where A, the block's columns of the relaxed coupling constraints, arrives with InitDn.
type Block struct {
	C     []float64   `json:"c"`
	W     [][]float64 `json:"w"`
	H     []float64   `json:"h"`
	Lower []float64   `json:"-"`
	Upper []float64   `json:"-"`

	coupling domain.CouplingMatrix
	cost     []float64

	y        []float64
	value    float64
	original float64
	ray      []float64
	rayCost  float64
}

var _ ports.Subproblem = (*Block)(nil)

// NewBlock validates dimensions. Nil bounds default to [0, +Inf).
func NewBlock(c []float64, w [][]float64, h, lower, upper []float64) (*Block, error) {
	n := len(c)
	if len(w) != len(h) {
		return nil, fmt.Errorf("block: W has %d rows, h has %d", len(w), len(h))
	}
	for i, r := range w {
		if len(r) != n {
			return nil, fmt.Errorf("block: W row %d has %d columns, c has %d", i, len(r), n)
		}
	}
	if lower == nil {
		lower = make([]float64, n)
	}
	if upper == nil {
		upper = make([]float64, n)
		for j := range upper {
			upper[j] = math.Inf(1)
		}
	}
	if len(lower) != n || len(upper) != n {
		return nil, fmt.Errorf("block: bounds must have %d entries", n)
	}
	return &Block{C: c, W: w, H: h, Lower: lower, Upper: upper, cost: append([]float64(nil), c...)}, nil
}

// Configure stores the coupling columns. The Lagrangian value has no finite outer
// bound in general, so +Inf (maximization master) is reported.
func (b *Block) Configure(_ context.Context, msg domain.InitDn) (float64, error) {
	if msg.Coupling.Cols != len(b.C) {
		return 0, fmt.Errorf("block: coupling matrix has %d columns, expected %d", msg.Coupling.Cols, len(b.C))
	}
	b.coupling = msg.Coupling
	if msg.Sense == domain.Minimize {
		return math.Inf(-1), nil
	}
	return math.Inf(1), nil
}

// Update reweights the objective with the multipliers.
func (b *Block) Update(_ context.Context, lambda []float64) error {
	shift := b.coupling.MulTransVec(lambda)
	for j := range b.C {
		b.cost[j] = b.C[j] + shift[j]
	}
	return nil
}

func (b *Block) Solve(ctx context.Context) (domain.SolveStatus, error) {
	if err := ctx.Err(); err != nil {
		return domain.SolveError, err
	}
	b.y, b.ray = nil, nil

	out, y, _, err := solveInequality(b.program(b.cost, false), false)
	switch out {
	case outcomeOptimal:
		b.y = y
		b.value = dot(b.cost, y)
		b.original = dot(b.C, y)
		return domain.SolveOptimal, nil
	case outcomeInfeasible:
		return domain.SolveInfeasible, nil
	case outcomeUnbounded:
		return b.recession()
	}
	return domain.SolveError, err
}

// program builds the block LP; with ray set the bounds become the recession cone
// boxed into [-1, 1].
func (b *Block) program(cost []float64, ray bool) *inequalityLP {
	n := len(b.C)
	p := &inequalityLP{c: append([]float64(nil), cost...)}
	for i, wr := range b.W {
		row := make([]float64, n)
		for j := range wr {
			row[j] = -wr[j]
		}
		rhs := -b.H[i]
		if ray {
			rhs = 0
		}
		p.addRow(row, rhs)
	}
	for j := 0; j < n; j++ {
		lo, up := b.Lower[j], b.Upper[j]
		if ray {
			lo, up = -1, 1
			if finite(b.Lower[j]) {
				lo = 0
			}
			if finite(b.Upper[j]) {
				up = 0
			}
		}
		if finite(up) {
			row := make([]float64, n)
			row[j] = 1
			p.addRow(row, up)
		}
		if finite(lo) {
			row := make([]float64, n)
			row[j] = -1
			p.addRow(row, -lo)
		}
	}
	return p
}

// recession finds a direction of unbounded decrease.
func (b *Block) recession() (domain.SolveStatus, error) {
	out, d, _, err := solveInequality(b.program(b.cost, true), false)
	if out != outcomeOptimal || dot(b.cost, d) >= 0 {
		if err == nil {
			err = fmt.Errorf("%w: no recession direction for unbounded block", ErrSolver)
		}
		return domain.SolveError, err
	}
	b.ray = d
	b.rayCost = dot(b.C, d)
	return domain.SolveUnbounded, nil
}

func (b *Block) Solution() []float64 { return append([]float64(nil), b.y...) }

func (b *Block) ObjectiveValue() float64 { return b.value }

func (b *Block) OriginalObjectiveValue() float64 { return b.original }

// Duals are not produced by a Lagrangian block.
func (b *Block) Duals() []float64 { return nil }

// DualRay is not produced by a Lagrangian block.
func (b *Block) DualRay() ([]float64, float64) { return nil, 0 }

func (b *Block) UnboundedRay() ([]float64, float64) {
	return append([]float64(nil), b.ray...), b.rayCost
}

func (b *Block) Save(dir string) error {
	return saveJSON(dir, "block.json", struct {
		*Block
		Lower    []string              `json:"lower"`
		Upper    []string              `json:"upper"`
		Coupling domain.CouplingMatrix `json:"coupling"`
		Cost     []float64             `json:"cost"`
		Y        []float64             `json:"y"`
		Value    float64               `json:"value"`
	}{b, formatAll(b.Lower), formatAll(b.Upper), b.coupling, b.cost, b.y, b.value})
}

func formatAll(vs []float64) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return out
}
