package aggregate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/decomp/internal/aggregate"
	"github.com/aretw0/decomp/pkg/domain"
)

func TestNew_DefaultsToOneGroupPerChild(t *testing.T) {
	a, err := aggregate.New([]int{4, 7}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, a.NumSlots())
	assert.Equal(t, []aggregate.Member{{Child: 7, Weight: 1}}, a.Group(1))
	slot, ok := a.SlotOf(7)
	assert.True(t, ok)
	assert.Equal(t, 1, slot)
	_, ok = a.SlotOf(9)
	assert.False(t, ok)
}

func TestNew_InvalidGroups(t *testing.T) {
	tests := []struct {
		name     string
		children []int
		groups   [][]int
	}{
		{"duplicate child", []int{1, 1}, nil},
		{"empty group", []int{1}, [][]int{{1}, {}}},
		{"stranger", []int{1}, [][]int{{1, 2}}},
		{"overlap", []int{1, 2}, [][]int{{1, 2}, {2}}},
		{"missing", []int{1, 2, 3}, [][]int{{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := aggregate.New(tt.children, nil, tt.groups)
			assert.ErrorIs(t, err, domain.ErrInvalidGroups)
		})
	}
}

func TestAggregate_WeightedSum(t *testing.T) {
	a, err := aggregate.New([]int{1, 2}, map[int]float64{1: 0.5, 2: 0.5}, [][]int{{1, 2}})
	require.NoError(t, err)

	first := domain.NewOptimalityCut(map[int]float64{0: 1}, 5, 5)
	first.Payload = &domain.CutPayload{Solution: []float64{1}, Cost: 5}
	second := domain.NewOptimalityCut(map[int]float64{1: 1}, 7, 7)
	second.Payload = &domain.CutPayload{Solution: []float64{2}, Cost: 7}

	out, err := a.Aggregate(map[int]domain.CutList{1: {first}, 2: {second}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0], 1)

	cut := out[0][0]
	assert.Equal(t, domain.CutOptimality, cut.Kind)
	assert.Equal(t, map[int]float64{0: 0.5, 1: 0.5}, cut.Coeffs)
	assert.InDelta(t, 6.0, cut.Rhs, 1e-12)
	assert.InDelta(t, 6.0, cut.ObjectiveValue, 1e-12)
	require.NotNil(t, cut.Payload)
	assert.Equal(t, 7.0, cut.Payload.Cost, "payload of the last member wins")
}

func TestAggregate_FeasibilityPreempts(t *testing.T) {
	a, err := aggregate.New([]int{1, 2, 3}, nil, [][]int{{1, 2}, {3}})
	require.NoError(t, err)

	feas := domain.NewFeasibilityCut(map[int]float64{0: 1}, 3)
	opt := domain.NewOptimalityCut(map[int]float64{0: -2}, 4, 1)

	out, err := a.Aggregate(map[int]domain.CutList{
		1: {opt},
		2: {feas},
		3: {opt},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, domain.CutList{feas}, out[0])
	require.Len(t, out[1], 1)
	assert.True(t, out[1][0].IsOptimality())
}

func TestAggregate_CancellingCoefficientsAreDropped(t *testing.T) {
	a, err := aggregate.New([]int{1, 2}, nil, [][]int{{1, 2}})
	require.NoError(t, err)

	out, err := a.Aggregate(map[int]domain.CutList{
		1: {domain.NewOptimalityCut(map[int]float64{0: 1}, 0, 0)},
		2: {domain.NewOptimalityCut(map[int]float64{0: -1}, 0, 0)},
	})
	require.NoError(t, err)
	assert.Empty(t, out[0][0].Coeffs)
}

func TestAggregate_MissingChild(t *testing.T) {
	a, err := aggregate.New([]int{1, 2}, nil, nil)
	require.NoError(t, err)

	_, err = a.Aggregate(map[int]domain.CutList{1: {}})
	assert.Error(t, err)
}
