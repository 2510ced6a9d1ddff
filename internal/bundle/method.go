package bundle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aretw0/decomp/internal/cutstore"
	"github.com/aretw0/decomp/internal/logging"
	"github.com/aretw0/decomp/pkg/config"
	"github.com/aretw0/decomp/pkg/domain"
	"github.com/aretw0/decomp/pkg/ports"
)

// ErrNotBuilt is returned when Step is called before Build.
var ErrNotBuilt = errors.New("bundle: engine not built")

// Method is the cutting-plane bundle method: one bounded auxiliary variable theta per
// slot outer-approximates the slot's value function through accumulated cuts.
type Method struct {
	options
	model    ports.MasterModel
	coupling []int
	sense    domain.Sense
	params   config.Params

	store    *cutstore.Store
	payloads [][]domain.CutPayload
	thetas   []int
	bounds   []float64
	explicit []bool

	status    domain.Status
	iteration int
	start     time.Time

	trial     []float64
	thetaVal  []float64
	base      float64
	bound     float64
	value     float64
	best      float64
	bestTrial []float64
	bestBase  float64
	history   []domain.IterationRecord
}

var _ Engine = (*Method)(nil)

// NewMethod wraps a master model whose coupling positions are the given model variables.
func NewMethod(model ports.MasterModel, coupling []int, params config.Params, opts ...Option) (*Method, error) {
	for _, v := range coupling {
		if v < 0 || v >= model.NumVariables() {
			return nil, fmt.Errorf("%w: variable %d", domain.ErrUnknownCouplingVariable, v)
		}
	}
	m := &Method{
		model:    model,
		coupling: append([]int(nil), coupling...),
		sense:    model.Sense(),
		params:   params,
		status:   domain.StatusNotFinished,
	}
	m.logger = logging.NewNop()
	for _, opt := range opts {
		opt(&m.options)
	}
	m.best = m.worst()
	m.value = m.worst()
	return m, nil
}

// Build adds one theta per slot bounded by bounds[i] (below when minimizing, above
// when maximizing) and adds sum(theta) to the objective. Non-finite bounds fall back
// to the configured dummy bound.
func (m *Method) Build(bounds []float64, explicit []bool) error {
	if m.store != nil {
		return errors.New("bundle: engine already built")
	}
	m.bounds = make([]float64, len(bounds))
	m.explicit = make([]bool, len(bounds))
	m.thetas = make([]int, len(bounds))
	for i, b := range bounds {
		if math.IsInf(b, 0) || math.IsNaN(b) {
			b = m.dummyBound()
		}
		m.bounds[i] = b
		if i < len(explicit) {
			m.explicit[i] = explicit[i]
		}
		if m.sense == domain.Maximize {
			m.thetas[i] = m.model.AddVariable(math.Inf(-1), b)
		} else {
			m.thetas[i] = m.model.AddVariable(b, math.Inf(1))
		}
		m.model.SetObjectiveCoeff(m.thetas[i], 1)
	}
	m.store = cutstore.New(len(bounds), m.model,
		m.params.SimilarityTolerance, m.params.SlackTolerance, m.params.MaxCutAge,
		cutstore.WithLogger(m.logger))
	m.thetaVal = make([]float64, len(bounds))
	m.payloads = make([][]domain.CutPayload, len(bounds))
	m.start = time.Now()
	return nil
}

func (m *Method) dummyBound() float64 {
	b := math.Abs(m.params.DummyBound)
	if m.sense == domain.Maximize {
		return b
	}
	return -b
}

// Reset restarts the counters for a new solve with different inputs.
func (m *Method) Reset() {
	m.status = domain.StatusNotFinished
	m.iteration = 0
	m.start = time.Now()
	m.best = m.worst()
	m.value = m.worst()
	m.bestTrial = nil
	m.bestBase = 0
}

// Step offers the children's cuts to the master (nil on the first call), re-solves and
// evaluates termination.
func (m *Method) Step(ctx context.Context, cuts []domain.CutList) (domain.Status, error) {
	if m.store == nil {
		return m.status, ErrNotBuilt
	}
	if m.status.Terminal() {
		return m.status, nil
	}

	if cuts != nil {
		accepted, _, err := m.offer(ctx, cuts)
		if err != nil {
			return m.status, err
		}
		if accepted == 0 {
			m.logger.Debug("no violated cut, relaxed master optimal", "node", m.nodeID, "iteration", m.iteration)
			m.finish(ctx, domain.StatusOptimal)
			return m.status, nil
		}
	}

	if err := m.solve(ctx); err != nil {
		return m.status, err
	}
	m.record(ctx, 0, false, 0)

	if st := m.limits(); st.Terminal() {
		m.finish(ctx, st)
	} else if m.gap() <= m.params.OptimalityGap {
		m.finish(ctx, domain.StatusOptimal)
	}
	return m.status, nil
}

// offer adds the cuts of every slot to the master. Feasibility cuts preempt the
// optimality cuts of their slot. When every slot returned an optimality cut, the true
// objective at the current trial point is known and reported.
func (m *Method) offer(ctx context.Context, cuts []domain.CutList) (int, []float64, error) {
	if len(cuts) != len(m.thetas) {
		return 0, nil, fmt.Errorf("bundle: got cuts for %d slots, master has %d", len(cuts), len(m.thetas))
	}
	accepted := 0
	slotValues := make([]float64, len(cuts))
	known := true
	for slot, list := range cuts {
		if list.HasFeasibility() {
			known = false
			for _, c := range list.Feasibility() {
				if m.addCut(ctx, slot, c) {
					accepted++
				}
			}
			continue
		}
		found := false
		for _, c := range list {
			if !found {
				slotValues[slot] = c.ObjectiveValue
				found = true
			}
			if !m.violated(slot, c) {
				m.emitCut(ctx, slot, c, false, false)
				continue
			}
			if m.addCut(ctx, slot, c) {
				accepted++
			}
		}
		if !found {
			known = false
		}
	}

	if known {
		value := m.base
		for _, v := range slotValues {
			value += v
		}
		m.value = value
		if m.better(value, m.best) {
			m.best = value
			m.bestTrial = append([]float64(nil), m.trial...)
			m.bestBase = m.base
		}
		return accepted, slotValues, nil
	}
	m.value = m.worst()
	return accepted, nil, nil
}

// violated reports whether theta underestimates (minimize) or overestimates (maximize)
// the cut's objective by more than the acceptance tolerance.
func (m *Method) violated(slot int, c domain.Cut) bool {
	theta := m.thetaVal[slot]
	if m.sense == domain.Maximize {
		return theta > c.ObjectiveValue+m.params.CutAcceptTolerance
	}
	return theta < c.ObjectiveValue-m.params.CutAcceptTolerance
}

// addCut writes the cut as a master row and hands it to the store for deduplication.
func (m *Method) addCut(ctx context.Context, slot int, c domain.Cut) bool {
	coeffs := make(map[int]float64, len(c.Coeffs)+1)
	for j, v := range c.Coeffs {
		if j < 0 || j >= len(m.coupling) {
			continue
		}
		coeffs[m.coupling[j]] = v
	}
	var row int
	switch {
	case c.IsFeasibility():
		row = m.model.AddRow(coeffs, c.Rhs, math.Inf(1))
	case m.sense == domain.Maximize:
		// theta <= rhs + g'x  <=>  theta - g'x <= rhs
		for v := range coeffs {
			coeffs[v] = -coeffs[v]
		}
		coeffs[m.thetas[slot]] = 1
		row = m.model.AddRow(coeffs, math.Inf(-1), c.Rhs)
	default:
		for v := range coeffs {
			coeffs[v] = -coeffs[v]
		}
		coeffs[m.thetas[slot]] = 1
		row = m.model.AddRow(coeffs, c.Rhs, math.Inf(1))
	}
	kept := m.store.Append(slot, c, row, m.iteration, m.trial)
	if kept && c.IsOptimality() && c.Payload != nil {
		m.payloads[slot] = append(m.payloads[slot], *c.Payload)
	}
	m.emitCut(ctx, slot, c, kept, !kept)
	return kept
}

// solve re-solves the master and records the new trial point.
func (m *Method) solve(ctx context.Context) error {
	st, err := m.model.Solve(ctx)
	if err != nil {
		return fmt.Errorf("master solve failed: %w", err)
	}
	switch st {
	case domain.SolveOptimal:
	case domain.SolveInfeasible:
		m.finish(ctx, domain.StatusInfeasible)
		return domain.ErrMasterInfeasible
	default:
		return fmt.Errorf("master solve ended with status %s", st)
	}

	m.iteration++
	m.trial = make([]float64, len(m.coupling))
	for j, v := range m.coupling {
		m.trial[j] = m.model.Value(v)
	}
	sumTheta := 0.0
	for i, v := range m.thetas {
		m.thetaVal[i] = m.model.Value(v)
		sumTheta += m.thetaVal[i]
	}
	m.bound = m.model.OriginalObjectiveValue()
	m.base = m.bound - sumTheta

	m.store.IncrementAge()
	if m.params.PurgeFrequency > 0 && m.iteration%m.params.PurgeFrequency == 0 {
		m.store.Purge()
	}
	return nil
}

func (m *Method) limits() domain.Status {
	if m.iteration >= m.params.MaxIterations {
		return domain.StatusMaxIteration
	}
	if time.Since(m.start) >= m.params.TimeLimit {
		return domain.StatusTimeLimit
	}
	return domain.StatusNotFinished
}

// gap is the relative distance between the bound and the best known objective.
func (m *Method) gap() float64 {
	if math.IsInf(m.best, 0) {
		return math.Inf(1)
	}
	return math.Abs(m.best-m.bound) / (1e-10 + math.Abs(m.best))
}

func (m *Method) record(ctx context.Context, center float64, hasCenter bool, penalty float64) {
	rec := domain.IterationRecord{
		Iteration: m.iteration,
		Bound:     m.bound,
		Objective: m.value,
		Center:    center,
		HasCenter: hasCenter,
		Elapsed:   time.Since(m.start),
	}
	m.history = append(m.history, rec)
	m.logger.Debug("master step", "node", m.nodeID, "iteration", m.iteration,
		"bound", m.bound, "best", m.best, "cuts", m.store.Total())
	if m.hooks.OnIteration != nil {
		m.hooks.OnIteration(ctx, &domain.IterationEvent{
			EventBase:  domain.EventBase{Timestamp: time.Now(), Type: domain.EventIteration, NodeID: m.nodeID},
			Iteration:  m.iteration,
			Bound:      m.bound,
			Objective:  m.best,
			ActiveCuts: m.store.Total(),
			Penalty:    penalty,
		})
	}
}

func (m *Method) finish(ctx context.Context, st domain.Status) {
	m.status = st
	m.logger.Info("master finished", "node", m.nodeID, "status", st,
		"iterations", m.iteration, "bound", m.bound, "best", m.best)
	if m.hooks.OnTerminate != nil {
		m.hooks.OnTerminate(ctx, &domain.TerminateEvent{
			EventBase:  domain.EventBase{Timestamp: time.Now(), Type: domain.EventTerminate, NodeID: m.nodeID},
			Status:     st,
			Iterations: m.iteration,
		})
	}
}

func (m *Method) emitCut(ctx context.Context, slot int, c domain.Cut, accepted, duplicate bool) {
	if m.hooks.OnCutAdded == nil {
		return
	}
	m.hooks.OnCutAdded(ctx, &domain.CutEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventCutAdded, NodeID: m.nodeID},
		Slot:      slot,
		Kind:      c.Kind,
		Accepted:  accepted,
		Duplicate: duplicate,
	})
}

func (m *Method) better(a, b float64) bool {
	if m.sense == domain.Maximize {
		return a > b
	}
	return a < b
}

func (m *Method) worst() float64 {
	if m.sense == domain.Maximize {
		return math.Inf(-1)
	}
	return math.Inf(1)
}

func (m *Method) Status() domain.Status { return m.status }

func (m *Method) Sense() domain.Sense { return m.sense }

func (m *Method) Iteration() int { return m.iteration }

func (m *Method) NumSlots() int { return len(m.thetas) }

func (m *Method) Trial() []float64 { return append([]float64(nil), m.trial...) }

// Solution returns the best evaluated trial point, or the last trial when none was evaluated.
func (m *Method) Solution() []float64 {
	if m.bestTrial != nil {
		return append([]float64(nil), m.bestTrial...)
	}
	return m.Trial()
}

// SolutionCost is the master's own objective, without thetas, at Solution.
func (m *Method) SolutionCost() float64 {
	if m.bestTrial != nil {
		return m.bestBase
	}
	return m.base
}

func (m *Method) Bound() float64 { return m.bound }

func (m *Method) BestObjective() float64 { return m.best }

func (m *Method) History() []domain.IterationRecord { return m.history }

// Store exposes the cut store.
func (m *Method) Store() *cutstore.Store { return m.store }

// Payloads returns the payloads of every optimality cut accepted into a slot,
// including cuts purged since.
func (m *Method) Payloads(slot int) []domain.CutPayload {
	return append([]domain.CutPayload(nil), m.payloads[slot]...)
}

// Thetas returns the theta values of the last master solution.
func (m *Method) Thetas() []float64 { return append([]float64(nil), m.thetaVal...) }

// Model returns the wrapped master model.
func (m *Method) Model() ports.MasterModel { return m.model }

// Coupling returns the master variables of the coupling positions.
func (m *Method) Coupling() []int { return append([]int(nil), m.coupling...) }
