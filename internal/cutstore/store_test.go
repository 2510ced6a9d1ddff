package cutstore_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/decomp/internal/cutstore"
	"github.com/aretw0/decomp/pkg/domain"
)

// rows is an in-memory RowModel whose activities are set by the test.
type rows struct {
	active   map[int]bool
	activity map[int]float64
	lower    map[int]float64
}

func newRows() *rows {
	return &rows{active: map[int]bool{}, activity: map[int]float64{}, lower: map[int]float64{}}
}

func (r *rows) add(row int, lower float64) {
	r.active[row] = true
	r.lower[row] = lower
}

func (r *rows) SetRowActive(row int, active bool) { r.active[row] = active }
func (r *rows) RowActivity(row int) float64       { return r.activity[row] }
func (r *rows) RowBounds(row int) (float64, float64) {
	return r.lower[row], math.Inf(1)
}

func cut(rhs float64, coeffs ...float64) domain.Cut {
	m := map[int]float64{}
	for j, v := range coeffs {
		m[j] = v
	}
	return domain.NewOptimalityCut(m, rhs, 0)
}

func TestStore_AppendDiscardsDuplicates(t *testing.T) {
	model := newRows()
	s := cutstore.New(2, model, 1e-8, 1e-6, 5)

	model.add(0, 0)
	require.True(t, s.Append(0, cut(1, 2), 0, 1, []float64{0}))

	model.add(1, 0)
	assert.False(t, s.Append(0, cut(1+1e-6, 2), 1, 2, []float64{0}))
	assert.False(t, model.active[1], "duplicate row must be deactivated")

	// the same cut in another slot is not a duplicate
	model.add(2, 0)
	assert.True(t, s.Append(1, cut(1, 2), 2, 2, []float64{0}))

	assert.Equal(t, 1, s.Len(0))
	assert.Equal(t, 2, s.Total())
	opt, feas := s.Counts(0)
	assert.Equal(t, 2, opt, "discarded cuts still advance the counter")
	assert.Zero(t, feas)
}

func TestStore_SameRowsOfDifferentKindAreKept(t *testing.T) {
	model := newRows()
	s := cutstore.New(1, model, 1e-8, 1e-6, 5)

	model.add(0, 0)
	require.True(t, s.Append(0, cut(1, 2), 0, 1, []float64{0}))

	model.add(1, 0)
	feas := domain.NewFeasibilityCut(map[int]float64{0: 2}, 1)
	assert.True(t, s.Append(0, feas, 1, 2, []float64{0}))
	assert.True(t, model.active[1])

	model.add(2, 0)
	assert.False(t, s.Append(0, domain.NewFeasibilityCut(map[int]float64{0: 2}, 1), 2, 3, []float64{0}))

	assert.Equal(t, 2, s.Len(0))
	opt, nfeas := s.Counts(0)
	assert.Equal(t, 1, opt)
	assert.Equal(t, 2, nfeas)
}

func TestStore_Names(t *testing.T) {
	model := newRows()
	s := cutstore.New(1, model, 1e-8, 1e-6, 5)

	model.add(0, 0)
	model.add(1, 0)
	model.add(2, 0)
	s.Append(0, cut(1, 1), 0, 1, nil)
	s.Append(0, domain.NewFeasibilityCut(map[int]float64{0: 1}, 3), 1, 1, nil)
	s.Append(0, cut(5, 1), 2, 2, nil)

	var names []string
	for _, info := range s.Active(0) {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{"opt_0_0", "feas_0_0", "opt_0_1"}, names)
}

func TestStore_AgingAndPurge(t *testing.T) {
	model := newRows()
	s := cutstore.New(1, model, 1e-8, 1e-6, 2)

	model.add(0, 1) // binding: activity == lower
	model.add(1, 1) // slack
	s.Append(0, cut(1, 1), 0, 1, nil)
	s.Append(0, cut(7, 3), 1, 1, nil)
	model.activity[0] = 1
	model.activity[1] = 4

	s.IncrementAge()
	assert.Zero(t, s.Purge())
	s.IncrementAge()

	infos := s.Active(0)
	require.Len(t, infos, 2)
	assert.Equal(t, 0, infos[0].Age)
	assert.Equal(t, 2, infos[1].Age)

	assert.Equal(t, 1, s.Purge())
	assert.False(t, model.active[1])
	assert.True(t, model.active[0])
	require.Len(t, s.Active(0), 1)
	assert.Equal(t, 0, s.Active(0)[0].Row)
}

func TestStore_BindingCutResetsAge(t *testing.T) {
	model := newRows()
	s := cutstore.New(1, model, 1e-8, 1e-6, 10)

	model.add(0, 0)
	s.Append(0, cut(0, 1), 0, 1, nil)
	model.activity[0] = 3

	s.IncrementAge()
	s.IncrementAge()
	assert.Equal(t, 2, s.Active(0)[0].Age)

	model.activity[0] = 0
	s.IncrementAge()
	assert.Equal(t, 0, s.Active(0)[0].Age)
}

func TestStore_KeepsTrialCopy(t *testing.T) {
	model := newRows()
	s := cutstore.New(1, model, 1e-8, 1e-6, 10)

	trial := []float64{1, 2}
	model.add(0, 0)
	s.Append(0, cut(0, 1), 0, 3, trial)
	trial[0] = 99

	info := s.Active(0)[0]
	assert.Equal(t, []float64{1, 2}, info.Trial)
	assert.Equal(t, 3, info.Iteration)
}
