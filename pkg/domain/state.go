package domain

import "time"

// Status is the state of a cutting-plane engine.
type Status string

const (
	StatusNotFinished  Status = "not_finished"
	StatusOptimal      Status = "optimal"
	StatusMaxIteration Status = "max_iteration"
	StatusTimeLimit    Status = "time_limit"
	StatusInfeasible   Status = "infeasible"
)

// Terminal reports whether the engine must stop iterating.
func (s Status) Terminal() bool {
	return s != StatusNotFinished && s != ""
}

// SolveStatus is the outcome of a single solver call.
type SolveStatus string

const (
	SolveOptimal    SolveStatus = "optimal"
	SolveInfeasible SolveStatus = "infeasible"
	SolveUnbounded  SolveStatus = "unbounded"
	SolveError      SolveStatus = "error"
)

// IterationRecord is one row of a node's persisted history.
type IterationRecord struct {
	Iteration int     `json:"iteration"`
	Bound     float64 `json:"bound"`
	Objective float64 `json:"objective"`

	// Center is the stability center value; only set by proximal engines.
	Center    float64 `json:"center,omitempty"`
	HasCenter bool    `json:"has_center,omitempty"`

	Elapsed time.Duration `json:"elapsed"`
}

// Result summarizes a finished run.
type Result struct {
	Status     Status        `json:"status"`
	Iterations int           `json:"iterations"`
	Bound      float64       `json:"bound"`
	Objective  float64       `json:"objective"`
	Solution   []float64     `json:"solution"`
	Elapsed    time.Duration `json:"elapsed"`
}
