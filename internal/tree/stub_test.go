package tree_test

import (
	"context"

	"github.com/aretw0/decomp/pkg/domain"
)

// stubSub is a scripted subproblem.
type stubSub struct {
	bound     float64
	status    domain.SolveStatus
	solveErr  error
	duals     []float64
	ray       []float64
	rayRhs    float64
	primalRay []float64
	rayCost   float64
	solution  []float64
	value     float64
	original  float64

	configured domain.InitDn
	updates    [][]float64
	saved      []string
}

func (s *stubSub) Configure(_ context.Context, msg domain.InitDn) (float64, error) {
	s.configured = msg
	return s.bound, nil
}

func (s *stubSub) Update(_ context.Context, trial []float64) error {
	s.updates = append(s.updates, append([]float64(nil), trial...))
	return nil
}

func (s *stubSub) Solve(context.Context) (domain.SolveStatus, error) {
	if s.solveErr != nil {
		return domain.SolveError, s.solveErr
	}
	return s.status, nil
}

func (s *stubSub) Solution() []float64                { return s.solution }
func (s *stubSub) ObjectiveValue() float64            { return s.value }
func (s *stubSub) OriginalObjectiveValue() float64    { return s.original }
func (s *stubSub) Duals() []float64                   { return s.duals }
func (s *stubSub) DualRay() ([]float64, float64)      { return s.ray, s.rayRhs }
func (s *stubSub) UnboundedRay() ([]float64, float64) { return s.primalRay, s.rayCost }

func (s *stubSub) Save(dir string) error {
	s.saved = append(s.saved, dir)
	return nil
}

func identity() domain.CouplingMatrix {
	return domain.CouplingMatrix{Rows: 1, Cols: 1, Entries: []domain.Entry{{Row: 0, Col: 0, Value: 1}}}
}
