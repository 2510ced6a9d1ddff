package metrics

import (
	"context"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/decomp/pkg/domain"
)

// NodeStatus is the latest known state of one master.
type NodeStatus struct {
	NodeID     int           `json:"node_id"`
	Status     domain.Status `json:"status"`
	Iteration  int           `json:"iteration"`
	Bound      *float64      `json:"bound,omitempty"`
	Objective  *float64      `json:"objective,omitempty"`
	ActiveCuts int           `json:"active_cuts"`
	Penalty    float64       `json:"penalty,omitempty"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Collector turns engine lifecycle events into prometheus metrics and keeps the
// latest status per node.
type Collector struct {
	registry *prometheus.Registry

	iterations   *prometheus.CounterVec
	cuts         *prometheus.CounterVec
	terminations *prometheus.CounterVec
	bound        *prometheus.GaugeVec
	objective    *prometheus.GaugeVec
	activeCuts   *prometheus.GaugeVec
	penalty      *prometheus.GaugeVec

	mu     sync.RWMutex
	status map[int]NodeStatus
}

// NewCollector registers the metrics on a fresh registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "decomp_iterations_total",
			Help: "Total number of master iterations",
		}, []string{"node_id"}),
		cuts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "decomp_cuts_total",
			Help: "Cuts offered to master slots by kind and outcome",
		}, []string{"node_id", "kind", "outcome"}),
		terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "decomp_terminations_total",
			Help: "Master terminations by status",
		}, []string{"node_id", "status"}),
		bound: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "decomp_bound",
			Help: "Objective bound of the relaxed master",
		}, []string{"node_id"}),
		objective: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "decomp_best_objective",
			Help: "Best evaluated objective",
		}, []string{"node_id"}),
		activeCuts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "decomp_active_cuts",
			Help: "Active cuts in the cut store",
		}, []string{"node_id"}),
		penalty: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "decomp_proximal_penalty",
			Help: "Current proximal penalty",
		}, []string{"node_id"}),
		status: make(map[int]NodeStatus),
	}
	c.registry.MustRegister(c.iterations, c.cuts, c.terminations,
		c.bound, c.objective, c.activeCuts, c.penalty)
	return c
}

// Gatherer exposes the registry to a metrics handler.
func (c *Collector) Gatherer() prometheus.Gatherer { return c.registry }

// Hooks returns lifecycle callbacks feeding the collector.
func (c *Collector) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnIteration: c.onIteration,
		OnCutAdded:  c.onCut,
		OnTerminate: c.onTerminate,
	}
}

func (c *Collector) onIteration(_ context.Context, e *domain.IterationEvent) {
	id := strconv.Itoa(e.NodeID)
	c.iterations.WithLabelValues(id).Inc()
	c.bound.WithLabelValues(id).Set(e.Bound)
	c.objective.WithLabelValues(id).Set(e.Objective)
	c.activeCuts.WithLabelValues(id).Set(float64(e.ActiveCuts))
	if e.Penalty > 0 {
		c.penalty.WithLabelValues(id).Set(e.Penalty)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.status[e.NodeID]
	s.NodeID = e.NodeID
	s.Status = domain.StatusNotFinished
	s.Iteration = e.Iteration
	s.Bound = finite(e.Bound)
	s.Objective = finite(e.Objective)
	s.ActiveCuts = e.ActiveCuts
	s.Penalty = e.Penalty
	s.UpdatedAt = e.Timestamp
	c.status[e.NodeID] = s
}

func (c *Collector) onCut(_ context.Context, e *domain.CutEvent) {
	outcome := "rejected"
	switch {
	case e.Duplicate:
		outcome = "duplicate"
	case e.Accepted:
		outcome = "accepted"
	}
	c.cuts.WithLabelValues(strconv.Itoa(e.NodeID), string(e.Kind), outcome).Inc()
}

func (c *Collector) onTerminate(_ context.Context, e *domain.TerminateEvent) {
	c.terminations.WithLabelValues(strconv.Itoa(e.NodeID), string(e.Status)).Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.status[e.NodeID]
	s.NodeID = e.NodeID
	s.Status = e.Status
	s.Iteration = e.Iterations
	s.UpdatedAt = e.Timestamp
	c.status[e.NodeID] = s
}

// Snapshot returns the latest status of every node, ordered by node ID.
func (c *Collector) Snapshot() []NodeStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]NodeStatus, 0, len(c.status))
	for _, s := range c.status {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// finite returns nil for values JSON cannot carry.
func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

// Chain merges several hook sets into one that calls each in order.
func Chain(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnIteration: func(ctx context.Context, e *domain.IterationEvent) {
			for _, h := range sets {
				if h.OnIteration != nil {
					h.OnIteration(ctx, e)
				}
			}
		},
		OnCutAdded: func(ctx context.Context, e *domain.CutEvent) {
			for _, h := range sets {
				if h.OnCutAdded != nil {
					h.OnCutAdded(ctx, e)
				}
			}
		},
		OnTerminate: func(ctx context.Context, e *domain.TerminateEvent) {
			for _, h := range sets {
				if h.OnTerminate != nil {
					h.OnTerminate(ctx, e)
				}
			}
		},
	}
}
