package bundle

import (
	"context"
	"log/slog"

	"github.com/aretw0/decomp/pkg/domain"
)

// Engine is the step interface shared by every driver. A parent node calls Build
// once, Step with nil cuts to obtain the first trial point, then Step with the cuts
// returned by its children until Status is terminal.
type Engine interface {
	Build(bounds []float64, explicit []bool) error
	// Reset restarts iteration counters and the clock while keeping accumulated cuts.
	Reset()
	Step(ctx context.Context, cuts []domain.CutList) (domain.Status, error)

	Status() domain.Status
	Sense() domain.Sense
	Iteration() int
	NumSlots() int
	// Trial is the point the children must evaluate next.
	Trial() []float64
	// Solution is the point to finalize at.
	Solution() []float64
	// SolutionCost is the master's own objective contribution at Solution.
	SolutionCost() float64
	Bound() float64
	BestObjective() float64
	History() []domain.IterationRecord
	// Payloads returns the payloads of the optimality cuts accepted into a slot.
	Payloads(slot int) []domain.CutPayload
}

// Option configures an engine.
type Option func(*options)

type options struct {
	logger *slog.Logger
	hooks  domain.LifecycleHooks
	nodeID int
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithHooks registers lifecycle callbacks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(o *options) {
		o.hooks = hooks
	}
}

// WithNodeID tags logs and events with the owning node.
func WithNodeID(id int) Option {
	return func(o *options) {
		o.nodeID = id
	}
}
