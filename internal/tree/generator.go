package tree

import (
	"fmt"

	"github.com/aretw0/decomp/pkg/domain"
	"github.com/aretw0/decomp/pkg/ports"
)

// CutGenerator turns a finished subproblem solve into the cuts returned to the parent.
type CutGenerator interface {
	Generate(st domain.SolveStatus, sub ports.Subproblem, trial []float64, link domain.CouplingMatrix) (domain.CutList, error)
}

// BendersGenerator builds cuts for a subproblem whose right-hand side is h - T x,
// T being the coupling matrix. An optimal solve gives the optimality cut
// theta >= pi'h - pi'T x, an infeasible one the feasibility cut sigma'T x >= sigma'h.
type BendersGenerator struct{}

func (BendersGenerator) Generate(st domain.SolveStatus, sub ports.Subproblem, trial []float64, link domain.CouplingMatrix) (domain.CutList, error) {
	switch st {
	case domain.SolveOptimal:
		pi := sub.Duals()
		if len(pi) != link.Rows {
			return nil, fmt.Errorf("%w: %d duals for %d coupling rows", domain.ErrSubproblemFailed, len(pi), link.Rows)
		}
		g := link.MulTransVec(pi)
		for j := range g {
			g[j] = -g[j]
		}
		obj := sub.ObjectiveValue()
		cut := domain.CutFromSubgradient(g, trial, obj)
		cut.Payload = &domain.CutPayload{Solution: append([]float64(nil), trial...), Cost: sub.OriginalObjectiveValue()}
		return domain.CutList{cut}, nil
	case domain.SolveInfeasible:
		sigma, rhs := sub.DualRay()
		if len(sigma) != link.Rows {
			return nil, fmt.Errorf("%w: no dual ray on infeasible subproblem", domain.ErrSubproblemFailed)
		}
		coeffs := make(map[int]float64, link.Cols)
		for j, v := range link.MulTransVec(sigma) {
			coeffs[j] = v
		}
		return domain.CutList{domain.NewFeasibilityCut(coeffs, rhs)}, nil
	}
	return nil, fmt.Errorf("%w: status %s", domain.ErrSubproblemFailed, st)
}

// LagrangianGenerator builds cuts for a block of a dual decomposition, where the trial
// point is the multiplier vector and the coupling matrix holds the block's columns A of
// the relaxed constraints. An optimal block gives the cut
// theta <= L(lambda^) + (A y)'(lambda - lambda^); an unbounded block with ray d gives
// the feasibility cut (A d)'lambda >= -c'd.
type LagrangianGenerator struct{}

func (LagrangianGenerator) Generate(st domain.SolveStatus, sub ports.Subproblem, trial []float64, link domain.CouplingMatrix) (domain.CutList, error) {
	switch st {
	case domain.SolveOptimal:
		activity := link.MulVec(sub.Solution())
		cut := domain.CutFromSubgradient(activity, trial, sub.ObjectiveValue())
		cut.Payload = &domain.CutPayload{Solution: activity, Cost: sub.OriginalObjectiveValue()}
		return domain.CutList{cut}, nil
	case domain.SolveUnbounded:
		ray, cost := sub.UnboundedRay()
		if len(ray) != link.Cols {
			return nil, fmt.Errorf("%w: no ray on unbounded block", domain.ErrSubproblemFailed)
		}
		coeffs := make(map[int]float64, link.Rows)
		for i, v := range link.MulVec(ray) {
			coeffs[i] = v
		}
		return domain.CutList{domain.NewFeasibilityCut(coeffs, -cost)}, nil
	}
	return nil, fmt.Errorf("%w: status %s", domain.ErrSubproblemFailed, st)
}
