package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aretw0/decomp/pkg/domain"
)

func TestCutFromSubgradient(t *testing.T) {
	// f(x) = 10 at x = (1, 2) with subgradient (3, -1): f >= 10 + 3(x1-1) - (x2-2)
	c := domain.CutFromSubgradient([]float64{3, -1}, []float64{1, 2}, 10)

	assert.True(t, c.IsOptimality())
	assert.InDelta(t, 9.0, c.Rhs, 1e-12)
	assert.Equal(t, map[int]float64{0: 3, 1: -1}, c.Coeffs)
	assert.InDelta(t, 10.0, c.Eval([]float64{1, 2}), 1e-12)
	assert.InDelta(t, 13.0, c.Eval([]float64{2, 2}), 1e-12)
	assert.InDelta(t, 10.0, c.ObjectiveValue, 1e-12)
}

func TestNewCuts_DropTinyCoefficients(t *testing.T) {
	opt := domain.NewOptimalityCut(map[int]float64{0: 1, 1: domain.CoeffEpsilon / 2, 2: -2}, 0, 0)
	assert.Equal(t, []int{0, 2}, opt.Indices())

	feas := domain.NewFeasibilityCut(map[int]float64{0: 1e-30, 3: 4}, 5)
	assert.True(t, feas.IsFeasibility())
	assert.Equal(t, []int{3}, feas.Indices())
	assert.InDelta(t, 8.0, feas.Linear([]float64{0, 0, 0, 2}), 1e-12)
}

func TestCut_LinearIgnoresOutOfRangePositions(t *testing.T) {
	c := domain.NewOptimalityCut(map[int]float64{0: 1, 5: 100}, 1, 0)
	assert.InDelta(t, 3.0, c.Eval([]float64{2}), 1e-12)
}

func TestCut_Distance(t *testing.T) {
	a := domain.NewOptimalityCut(map[int]float64{0: 1, 1: 2}, 3, 0)
	b := domain.NewOptimalityCut(map[int]float64{0: 1, 2: 2}, 4, 0)

	// rhs 1 + coeff 1 (2^2) + coeff 2 (2^2)
	assert.InDelta(t, 9.0, a.Distance(b), 1e-12)
	assert.InDelta(t, a.Distance(b), b.Distance(a), 1e-12)
	assert.Zero(t, a.Distance(a))
}

func TestCutList_Feasibility(t *testing.T) {
	opt := domain.NewOptimalityCut(map[int]float64{0: 1}, 0, 0)
	feas := domain.NewFeasibilityCut(map[int]float64{0: 1}, 2)

	assert.False(t, domain.CutList{opt}.HasFeasibility())

	list := domain.CutList{opt, feas, opt}
	assert.True(t, list.HasFeasibility())
	assert.Equal(t, domain.CutList{feas}, list.Feasibility())
}
