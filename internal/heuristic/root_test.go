package heuristic_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/decomp/internal/heuristic"
	"github.com/aretw0/decomp/pkg/adapters/gonumlp"
	"github.com/aretw0/decomp/pkg/domain"
	"github.com/aretw0/decomp/pkg/ports"
)

type payloads [][]domain.CutPayload

func (p payloads) NumSlots() int                         { return len(p) }
func (p payloads) Payloads(slot int) []domain.CutPayload { return p[slot] }

// capped is min 0.5x over x in [0, 10] with x <= 7.
func capped() (ports.MasterModel, []int, error) {
	m := gonumlp.NewModel(domain.Minimize)
	x := m.AddVariable(0, 10)
	m.SetObjectiveCoeff(x, 0.5)
	m.AddRow(map[int]float64{x: 1}, math.Inf(-1), 7)
	return m, []int{x}, nil
}

func TestRecover_ConvexCombination(t *testing.T) {
	src := payloads{{
		{Solution: []float64{0}, Cost: 6},
		{Solution: []float64{10}, Cost: 0},
	}}

	values, err := heuristic.New(capped).Recover(context.Background(), src)
	require.NoError(t, err)
	require.Contains(t, values, 0)
	assert.InDeltaSlice(t, []float64{7}, values[0], 1e-6)
}

func TestRecover_IntegerScale(t *testing.T) {
	src := payloads{{
		{Solution: []float64{0}, Cost: 6},
		{Solution: []float64{10}, Cost: 0},
	}}

	values, err := heuristic.New(capped, heuristic.WithScale(2)).Recover(context.Background(), src)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{5}, values[0], 1e-6)
}

func TestRecover_PicksCheapestPayload(t *testing.T) {
	src := payloads{{
		{Solution: []float64{0}, Cost: 6},
		{Solution: []float64{4}, Cost: 0},
		{Solution: []float64{1, 2}, Cost: -100},
	}}

	values, err := heuristic.New(capped).Recover(context.Background(), src)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{4}, values[0], 1e-6)
}

func TestRecover_MissingSlotsAreReported(t *testing.T) {
	src := payloads{
		{{Solution: []float64{4}, Cost: 0}},
		nil,
	}

	values, err := heuristic.New(capped).Recover(context.Background(), src)
	assert.ErrorIs(t, err, domain.ErrNoMinkowskiCombination)
	assert.Contains(t, values, 0)
	assert.NotContains(t, values, 1)
}

func TestRecover_NoCombinationWithinConstraints(t *testing.T) {
	src := payloads{{{Solution: []float64{9}, Cost: 0}}}

	_, err := heuristic.New(capped).Recover(context.Background(), src)
	assert.ErrorIs(t, err, domain.ErrNoMinkowskiCombination)
}

func TestRecover_FactoryError(t *testing.T) {
	broken := func() (ports.MasterModel, []int, error) { return nil, nil, errors.New("boom") }
	src := payloads{{{Solution: []float64{1}, Cost: 0}}}

	_, err := heuristic.New(broken).Recover(context.Background(), src)
	assert.ErrorContains(t, err, "boom")
}
