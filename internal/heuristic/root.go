package heuristic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/decomp/internal/logging"
	"github.com/aretw0/decomp/pkg/domain"
	"github.com/aretw0/decomp/pkg/ports"
)

// ModelFactory returns a fresh copy of the root master's own model, without thetas or
// cuts, and the handles of its coupling variables in position order.
type ModelFactory func() (ports.MasterModel, []int, error)

// PayloadSource exposes the cut payloads accumulated by a master, per slot.
type PayloadSource interface {
	NumSlots() int
	Payloads(slot int) []domain.CutPayload
}

// Root recovers coupling values for the final hand-off from a restricted master over
// convex combinations of the payload solutions seen during the run.
type Root struct {
	factory ModelFactory
	scale   int
	logger  *slog.Logger
}

type Option func(*Root)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Root) {
		r.logger = logger
	}
}

// WithScale ties each weight to an integer multiple n = scale*w, restricting the
// weights to multiples of 1/scale. Zero disables the integer variables.
func WithScale(scale int) Option {
	return func(r *Root) {
		r.scale = scale
	}
}

// New builds a heuristic root over the factory.
func New(factory ModelFactory, opts ...Option) *Root {
	r := &Root{factory: factory, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recover solves one restricted master per slot and returns the recovered coupling
// values keyed by slot. Slots without a combination are left out of the map and
// reported in the returned error, which wraps ErrNoMinkowskiCombination.
func (r *Root) Recover(ctx context.Context, src PayloadSource) (map[int][]float64, error) {
	out := make(map[int][]float64, src.NumSlots())
	var errs []error
	for slot := 0; slot < src.NumSlots(); slot++ {
		values, err := r.recoverSlot(ctx, slot, src.Payloads(slot))
		if err != nil {
			r.logger.Warn("heuristic found no combination", "slot", slot, "err", err)
			errs = append(errs, fmt.Errorf("slot %d: %w", slot, err))
			continue
		}
		out[slot] = values
	}
	return out, errors.Join(errs...)
}

func (r *Root) recoverSlot(ctx context.Context, slot int, payloads []domain.CutPayload) ([]float64, error) {
	model, coupling, err := r.factory()
	if err != nil {
		return nil, fmt.Errorf("heuristic model: %w", err)
	}

	var usable []domain.CutPayload
	for _, p := range payloads {
		if len(p.Solution) == len(coupling) {
			usable = append(usable, p)
		}
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("%w: no payloads", domain.ErrNoMinkowskiCombination)
	}

	weights := make([]int, len(usable))
	convexity := make(map[int]float64, len(usable))
	for p, payload := range usable {
		w := model.AddVariable(0, 1)
		model.SetObjectiveCoeff(w, payload.Cost)
		weights[p] = w
		convexity[w] = 1

		if r.scale > 0 {
			n := model.AddVariable(0, float64(r.scale))
			model.SetInteger(n, true)
			model.AddRow(map[int]float64{n: 1, w: -float64(r.scale)}, 0, 0)
		}
	}
	model.AddRow(convexity, 1, 1)

	// x_j = sum_p w_p * solution_p[j]
	for j, v := range coupling {
		row := map[int]float64{v: 1}
		for p, payload := range usable {
			row[weights[p]] -= payload.Solution[j]
		}
		model.AddRow(row, 0, 0)
	}

	st, err := model.Solve(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrNoMinkowskiCombination, err)
	}
	if st != domain.SolveOptimal {
		return nil, fmt.Errorf("%w: restricted master %s", domain.ErrNoMinkowskiCombination, st)
	}
	values := make([]float64, len(coupling))
	for j, v := range coupling {
		values[j] = model.Value(v)
	}
	r.logger.Debug("heuristic recovered values", "slot", slot, "payloads", len(usable),
		"objective", model.ObjectiveValue())
	return values, nil
}
