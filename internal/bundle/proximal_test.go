package bundle_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/decomp/internal/bundle"
	"github.com/aretw0/decomp/pkg/adapters/gonumlp"
	"github.com/aretw0/decomp/pkg/config"
	"github.com/aretw0/decomp/pkg/domain"
)

func proximalParams() config.Params {
	params := kelleyParams()
	params.Proximal.Enabled = true
	return params
}

func TestProximal_Quadratic(t *testing.T) {
	p := bundle.NewProximal(quadraticMaster(t, proximalParams()))

	st := drive(t, p, quadratic)

	assert.Equal(t, domain.StatusOptimal, st)
	center, value := p.Center()
	require.Len(t, center, 1)
	assert.InDelta(t, 2.0, center[0], 5e-2)
	assert.InDelta(t, 1.0, value, 1e-3)
	assert.Equal(t, center, p.Solution())

	serious, _ := p.Steps()
	assert.Positive(t, serious)
	assert.GreaterOrEqual(t, p.Penalty(), 1e-6)
	assert.LessOrEqual(t, p.Penalty(), 1e6)
}

func TestProximal_RecordsCenter(t *testing.T) {
	p := bundle.NewProximal(quadraticMaster(t, proximalParams()))
	drive(t, p, quadratic)

	hist := p.History()
	require.NotEmpty(t, hist)
	assert.False(t, hist[0].HasCenter, "no center before the first evaluation")
	assert.True(t, hist[len(hist)-1].HasCenter)
}

func TestProximal_InfeasibleTrialIsNullStep(t *testing.T) {
	m, f := lowerBounds(t, proximalParams())
	p := bundle.NewProximal(m)

	st := drive(t, p, f)

	assert.Equal(t, domain.StatusOptimal, st)
	assert.InDeltaSlice(t, []float64{3, 4}, p.Solution(), 1e-6)
	assert.InDelta(t, 7.0, p.SolutionCost(), 1e-6)
	_, null := p.Steps()
	assert.Equal(t, 1, null)
}

func TestProximal_ResetForgetsCenter(t *testing.T) {
	p := bundle.NewProximal(quadraticMaster(t, proximalParams()))
	drive(t, p, quadratic)

	p.Reset()
	center, _ := p.Center()
	assert.Empty(t, center)
	assert.Equal(t, 1.0, p.Penalty())
	assert.Equal(t, domain.StatusNotFinished, p.Status())

	_, err := p.Step(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, p.History()[len(p.History())-1].HasCenter)
}

func TestProximal_NotBuilt(t *testing.T) {
	m, err := bundle.NewMethod(newModel(), nil, proximalParams())
	require.NoError(t, err)
	_, err = bundle.NewProximal(m).Step(context.Background(), nil)
	assert.ErrorIs(t, err, bundle.ErrNotBuilt)
}

// steering drives a one-slot proximal master over x in [0, 100] with scripted cuts, so
// each step realizes a chosen share of the predicted decrease.
type steering struct {
	t   *testing.T
	p   *bundle.Proximal
	dir float64
}

func newSteering(t *testing.T, params config.Params) *steering {
	t.Helper()
	model := gonumlp.NewModel(domain.Minimize)
	x := model.AddVariable(0, 100)
	m, err := bundle.NewMethod(model, []int{x}, params)
	require.NoError(t, err)
	require.NoError(t, m.Build([]float64{-1000}, []bool{true}))

	p := bundle.NewProximal(m)
	_, err = p.Step(context.Background(), nil)
	require.NoError(t, err)

	s := &steering{t: t, p: p, dir: 1}
	if p.Trial()[0] >= 50 {
		s.dir = -1
	}
	// the first evaluation only places the center
	s.step(0, -s.dir)
	require.Equal(t, params.Proximal.InitialPenalty, p.Penalty())
	return s
}

func (s *steering) step(value, slope float64) {
	s.t.Helper()
	cut := domain.CutFromSubgradient([]float64{slope}, s.p.Trial(), value)
	st, err := s.p.Step(context.Background(), []domain.CutList{{cut}})
	require.NoError(s.t, err)
	require.False(s.t, st.Terminal())
}

// realize reports a value that achieves fraction of the predicted decrease and keeps
// the function descending in the steering direction.
func (s *steering) realize(fraction float64) {
	s.t.Helper()
	_, center := s.p.Center()
	predicted := center - s.p.Bound()
	require.Positive(s.t, predicted)
	s.step(center-fraction*predicted, -s.dir)
}

// stall reports the center value again with a cut rising steeply away from the center.
func (s *steering) stall(steepness float64) {
	s.t.Helper()
	_, center := s.p.Center()
	s.step(center, s.dir*steepness)
}

func TestProximal_PenaltyHalvesOnLargeSeriousSteps(t *testing.T) {
	s := newSteering(t, proximalParams())

	s.realize(0.9)
	assert.Equal(t, 1.0, s.p.Penalty(), "the first serious step keeps the penalty")
	s.realize(0.9)
	assert.InDelta(t, 0.5, s.p.Penalty(), 1e-12)
	s.realize(0.9)
	assert.InDelta(t, 0.25, s.p.Penalty(), 1e-12)

	serious, null := s.p.Steps()
	assert.Equal(t, 3, serious)
	assert.Zero(t, null)
}

func TestProximal_PenaltyRisesOnSmallSeriousSteps(t *testing.T) {
	s := newSteering(t, proximalParams())

	// interpolation gives 2u(1 - 0.2) = 1.6u
	s.realize(0.2)
	assert.InDelta(t, 1.6, s.p.Penalty(), 1e-9)
	s.realize(0.2)
	assert.InDelta(t, 2.56, s.p.Penalty(), 1e-9)

	serious, null := s.p.Steps()
	assert.Equal(t, 2, serious)
	assert.Zero(t, null)
}

func TestProximal_PenaltyGrowsAfterNullSteps(t *testing.T) {
	params := proximalParams()
	params.Proximal.NullGrowthSteps = 2
	s := newSteering(t, params)

	s.stall(20)
	assert.Equal(t, 1.0, s.p.Penalty())
	// the linearization error already exceeds the threshold, but only one null step preceded it
	s.stall(1e3)
	assert.Equal(t, 1.0, s.p.Penalty())
	s.stall(1e4)
	assert.InDelta(t, 2.0, s.p.Penalty(), 1e-9)

	serious, null := s.p.Steps()
	assert.Zero(t, serious)
	assert.Equal(t, 3, null)
}

func TestProximal_PenaltyClamped(t *testing.T) {
	params := proximalParams()
	params.Proximal.MinPenalty = 0.75
	params.Proximal.MaxPenalty = 2

	t.Run("lower", func(t *testing.T) {
		s := newSteering(t, params)
		for range 3 {
			s.realize(0.9)
		}
		assert.Equal(t, 0.75, s.p.Penalty())
	})

	t.Run("upper", func(t *testing.T) {
		s := newSteering(t, params)
		s.realize(0.2)
		assert.InDelta(t, 1.6, s.p.Penalty(), 1e-9)
		s.realize(0.2)
		assert.Equal(t, 2.0, s.p.Penalty())
	})
}
