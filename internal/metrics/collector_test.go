package metrics_test

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/decomp/internal/metrics"
	"github.com/aretw0/decomp/pkg/domain"
)

func iteration(node, it int, bound, objective float64) *domain.IterationEvent {
	return &domain.IterationEvent{
		EventBase:  domain.EventBase{Timestamp: time.Now(), Type: domain.EventIteration, NodeID: node},
		Iteration:  it,
		Bound:      bound,
		Objective:  objective,
		ActiveCuts: it * 2,
	}
}

func TestCollector_Snapshot(t *testing.T) {
	c := metrics.NewCollector()
	h := c.Hooks()
	ctx := context.Background()

	h.OnIteration(ctx, iteration(3, 1, -10, math.Inf(1)))
	h.OnIteration(ctx, iteration(0, 1, 1, 4))
	h.OnIteration(ctx, iteration(0, 2, 2, 3))
	h.OnTerminate(ctx, &domain.TerminateEvent{
		EventBase:  domain.EventBase{NodeID: 0, Type: domain.EventTerminate},
		Status:     domain.StatusOptimal,
		Iterations: 2,
	})

	snap := c.Snapshot()
	require.Len(t, snap, 2)

	root := snap[0]
	assert.Equal(t, 0, root.NodeID)
	assert.Equal(t, domain.StatusOptimal, root.Status)
	assert.Equal(t, 2, root.Iteration)
	require.NotNil(t, root.Bound)
	assert.Equal(t, 2.0, *root.Bound)
	assert.Equal(t, 4, root.ActiveCuts)

	inner := snap[1]
	assert.Equal(t, 3, inner.NodeID)
	assert.Equal(t, domain.StatusNotFinished, inner.Status)
	assert.Nil(t, inner.Objective, "infinite objective is not reported")
}

func TestCollector_Metrics(t *testing.T) {
	c := metrics.NewCollector()
	h := c.Hooks()
	ctx := context.Background()

	h.OnIteration(ctx, iteration(0, 1, 1, 4))
	h.OnIteration(ctx, iteration(0, 2, 2, 3))
	for _, e := range []domain.CutEvent{
		{Kind: domain.CutOptimality, Accepted: true},
		{Kind: domain.CutOptimality, Accepted: true},
		{Kind: domain.CutOptimality, Duplicate: true},
		{Kind: domain.CutFeasibility},
	} {
		h.OnCutAdded(ctx, &e)
	}

	expected := `
# HELP decomp_iterations_total Total number of master iterations
# TYPE decomp_iterations_total counter
decomp_iterations_total{node_id="0"} 2
# HELP decomp_cuts_total Cuts offered to master slots by kind and outcome
# TYPE decomp_cuts_total counter
decomp_cuts_total{kind="feasibility",node_id="0",outcome="rejected"} 1
decomp_cuts_total{kind="optimality",node_id="0",outcome="accepted"} 2
decomp_cuts_total{kind="optimality",node_id="0",outcome="duplicate"} 1
# HELP decomp_bound Objective bound of the relaxed master
# TYPE decomp_bound gauge
decomp_bound{node_id="0"} 2
`
	err := testutil.GatherAndCompare(c.Gatherer(), strings.NewReader(expected),
		"decomp_iterations_total", "decomp_cuts_total", "decomp_bound")
	assert.NoError(t, err)
}

func TestChain(t *testing.T) {
	var order []string
	first := domain.LifecycleHooks{
		OnIteration: func(context.Context, *domain.IterationEvent) { order = append(order, "first") },
	}
	second := domain.LifecycleHooks{
		OnIteration: func(context.Context, *domain.IterationEvent) { order = append(order, "second") },
		OnTerminate: func(context.Context, *domain.TerminateEvent) { order = append(order, "terminate") },
	}

	h := metrics.Chain(first, second)
	h.OnIteration(context.Background(), iteration(0, 1, 0, 0))
	h.OnCutAdded(context.Background(), &domain.CutEvent{})
	h.OnTerminate(context.Background(), &domain.TerminateEvent{})

	assert.Equal(t, []string{"first", "second", "terminate"}, order)
}
