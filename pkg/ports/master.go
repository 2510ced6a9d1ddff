package ports

import (
	"context"

	"github.com/aretw0/decomp/pkg/domain"
)

// MasterModel is the relaxed master problem a bundle engine drives.
// Variables and rows are addressed by the integer handles returned when adding them.
type MasterModel interface {
	// Sense is the optimization direction of the model's objective.
	Sense() domain.Sense

	// AddVariable appends a continuous variable and returns its handle.
	AddVariable(lower, upper float64) int
	// NumVariables returns the number of variables added so far.
	NumVariables() int
	SetBounds(v int, lower, upper float64)
	Bounds(v int) (lower, upper float64)
	SetInteger(v int, integer bool)
	SetObjectiveCoeff(v int, c float64)
	ObjectiveCoeff(v int) float64

	// AddRow appends lower <= sum(coeffs[v] * x[v]) <= upper and returns its handle.
	AddRow(coeffs map[int]float64, lower, upper float64) int
	// SetRowActive includes or excludes a row from subsequent solves.
	SetRowActive(row int, active bool)
	RowBounds(row int) (lower, upper float64)

	// SetProximal adds 0.5*penalty*||x - center||^2 over the variables keyed in center.
	// A zero penalty removes the term.
	SetProximal(center map[int]float64, penalty float64)

	// Solve blocks until the solver returns a status.
	Solve(ctx context.Context) (domain.SolveStatus, error)

	// Value returns the value of a variable in the last solution.
	Value(v int) float64
	// RowActivity returns sum(coeffs[v] * x[v]) of a row in the last solution.
	RowActivity(row int) float64
	// ObjectiveValue includes the proximal term; OriginalObjectiveValue does not.
	ObjectiveValue() float64
	OriginalObjectiveValue() float64
	// BoundDual returns the sensitivity of the optimal value to a variable fixed by equal bounds.
	BoundDual(v int) float64
}
