package ports

import (
	"context"

	"github.com/aretw0/decomp/pkg/domain"
)

// Subproblem is the solver adapter behind a leaf node.
// Call order per solve: Update, Solve, branch on status, extract cut data.
type Subproblem interface {
	// Configure receives the one-time topology handshake and returns the outer bound
	// of the subproblem's value (the InitUp payload).
	Configure(ctx context.Context, msg domain.InitDn) (float64, error)

	// Update fixes (Benders) or reweights (dual decomposition) the coupling inputs.
	Update(ctx context.Context, trial []float64) error

	// Solve blocks until the solver returns a status.
	Solve(ctx context.Context) (domain.SolveStatus, error)

	// Solution returns values for the adapter's fixed, ordered variable list.
	Solution() []float64

	// ObjectiveValue is post-augmentation; OriginalObjectiveValue is pre-augmentation.
	ObjectiveValue() float64
	OriginalObjectiveValue() float64

	// Duals returns the duals of the coupling rows after an optimal solve.
	Duals() []float64
	// DualRay returns a Farkas ray on the coupling rows after an infeasible solve,
	// together with the ray's product with the full right-hand side.
	DualRay() ([]float64, float64)
	// UnboundedRay returns a primal ray after an unbounded solve, together with its cost.
	UnboundedRay() ([]float64, float64)

	// Save writes a diagnostic dump of the model into dir.
	Save(dir string) error
}
