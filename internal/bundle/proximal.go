package bundle

import (
	"context"
	"math"

	"github.com/aretw0/decomp/pkg/domain"
)

// Proximal is the proximal bundle method. It stabilizes the cutting-plane master with
// 0.5*u*||x - center||^2 around a stability center that only moves on serious steps.
type Proximal struct {
	*Method

	center      []float64
	centerValue float64
	centerSlots []float64
	centerBase  float64

	penalty   float64
	steps     int
	eps       float64
	predicted float64
	serious   int
	null      int
}

var _ Engine = (*Proximal)(nil)

// NewProximal wraps a Method.
func NewProximal(m *Method) *Proximal {
	return &Proximal{
		Method:  m,
		penalty: m.params.Proximal.InitialPenalty,
		eps:     math.Inf(1),
	}
}

// Reset restarts the counters and forgets the stability center.
func (p *Proximal) Reset() {
	p.Method.Reset()
	p.center = nil
	p.centerSlots = nil
	p.penalty = p.params.Proximal.InitialPenalty
	p.steps = 0
	p.eps = math.Inf(1)
	p.model.SetProximal(nil, 0)
}

// Step classifies the evaluated trial point as a serious or null step, adapts the
// penalty, and re-solves the regularized master.
func (p *Proximal) Step(ctx context.Context, cuts []domain.CutList) (domain.Status, error) {
	if p.store == nil {
		return p.status, ErrNotBuilt
	}
	if p.status.Terminal() {
		return p.status, nil
	}

	if cuts != nil {
		_, slotValues, err := p.offer(ctx, cuts)
		if err != nil {
			return p.status, err
		}
		if slotValues != nil {
			p.classify(cuts, slotValues)
		} else {
			p.null++
			p.logger.Debug("null step on infeasible trial", "node", p.nodeID, "iteration", p.iteration)
		}
	}

	if p.center != nil {
		centerMap := make(map[int]float64, len(p.center))
		for j, v := range p.coupling {
			centerMap[v] = p.center[j]
		}
		p.model.SetProximal(centerMap, p.penalty)
	}

	if err := p.solve(ctx); err != nil {
		return p.status, err
	}
	if p.center != nil {
		p.predicted = p.sign() * (p.centerValue - p.bound)
	}
	p.record(ctx, p.centerValue, p.center != nil, p.penalty)

	switch st := p.limits(); {
	case st.Terminal():
		p.finish(ctx, st)
	case p.converged():
		p.finish(ctx, domain.StatusOptimal)
	}
	return p.status, nil
}

// classify decides serious or null for the last trial point, whose true value is now known.
func (p *Proximal) classify(cuts []domain.CutList, slotValues []float64) {
	value := p.value
	if p.center == nil {
		p.moveCenter(value, slotValues)
		return
	}

	px := p.params.Proximal
	v := p.predicted
	delta := p.sign() * (p.centerValue - value)
	old := p.penalty

	interp := p.penalty
	if v > 0 {
		interp = 2 * p.penalty * (1 - delta/v)
	}

	if delta >= px.ML*v {
		p.serious++
		next := p.penalty
		switch {
		case delta >= px.MR*v && p.steps > 0:
			next = p.penalty / 2
		case delta < px.MR*v && interp > p.penalty:
			next = math.Min(interp, 10*p.penalty)
		}
		p.penalty = clamp(next, px.MinPenalty, px.MaxPenalty)
		if p.penalty != old {
			p.steps = 1
		} else {
			p.steps = max(p.steps+1, 1)
		}
		p.eps = math.Max(p.eps, 2*v)
		p.moveCenter(value, slotValues)
		p.logger.Debug("serious step", "node", p.nodeID, "iteration", p.iteration,
			"center", p.centerValue, "penalty", p.penalty)
		return
	}

	p.null++
	lin := p.linearizationError(cuts)
	norm := p.subgradientNorm(cuts)
	p.eps = math.Min(p.eps, norm+lin)
	next := p.penalty
	if lin > math.Max(p.eps, 10*v) && p.steps <= -px.NullGrowthSteps {
		next = math.Min(math.Max(interp, p.penalty), 10*p.penalty)
	}
	p.penalty = clamp(next, px.MinPenalty, px.MaxPenalty)
	if p.penalty != old {
		p.steps = -1
	} else {
		p.steps = min(p.steps-1, -1)
	}
	p.logger.Debug("null step", "node", p.nodeID, "iteration", p.iteration,
		"linearization_error", lin, "penalty", p.penalty)
}

func (p *Proximal) moveCenter(value float64, slotValues []float64) {
	p.center = append([]float64(nil), p.trial...)
	p.centerValue = value
	p.centerSlots = append([]float64(nil), slotValues...)
	p.centerBase = p.base
}

// linearizationError is how far the new cuts, evaluated at the center, fall short of
// the slot values recorded there.
func (p *Proximal) linearizationError(cuts []domain.CutList) float64 {
	total := 0.0
	for slot, list := range cuts {
		for _, c := range list {
			if !c.IsOptimality() {
				continue
			}
			total += p.sign() * (p.centerSlots[slot] - c.Eval(p.center))
			break
		}
	}
	return math.Max(total, 0)
}

func (p *Proximal) subgradientNorm(cuts []domain.CutList) float64 {
	g := make(map[int]float64)
	for _, list := range cuts {
		for _, c := range list {
			if !c.IsOptimality() {
				continue
			}
			for j, v := range c.Coeffs {
				g[j] += v
			}
			break
		}
	}
	sq := 0.0
	for _, v := range g {
		sq += v * v
	}
	return math.Sqrt(sq)
}

// converged checks the predicted decrease against the center value and, for slots with
// explicitly supplied bounds, each slot's gap between center value and theta.
func (p *Proximal) converged() bool {
	if p.center == nil {
		return false
	}
	tol := p.params.OptimalityGap
	if p.predicted > tol*(1+math.Abs(p.centerValue)) {
		return false
	}
	for i, explicit := range p.explicit {
		if !explicit || i >= len(p.centerSlots) {
			continue
		}
		gap := p.sign() * (p.centerSlots[i] - p.thetaVal[i])
		if gap > tol*(1+math.Abs(p.centerSlots[i])) {
			return false
		}
	}
	return true
}

func (p *Proximal) sign() float64 {
	if p.sense == domain.Maximize {
		return -1
	}
	return 1
}

// Solution returns the stability center.
func (p *Proximal) Solution() []float64 {
	if p.center != nil {
		return append([]float64(nil), p.center...)
	}
	return p.Method.Solution()
}

// SolutionCost is the master's own objective at the stability center.
func (p *Proximal) SolutionCost() float64 {
	if p.center != nil {
		return p.centerBase
	}
	return p.Method.SolutionCost()
}

// Center returns the stability center and its value.
func (p *Proximal) Center() ([]float64, float64) {
	return append([]float64(nil), p.center...), p.centerValue
}

// Penalty returns the current proximal penalty.
func (p *Proximal) Penalty() float64 { return p.penalty }

// Steps returns the number of serious and null steps taken.
func (p *Proximal) Steps() (serious, null int) { return p.serious, p.null }

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
