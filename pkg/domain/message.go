package domain

import (
	"encoding/json"
	"strconv"
)

// InitDn is the one-time topology handshake sent from a parent to a child.
type InitDn struct {
	NodeID   int            `json:"node_id"`
	Sense    Sense          `json:"sense"`
	Depth    int            `json:"depth"`
	Coupling CouplingMatrix `json:"coupling"`
}

// InitUp answers InitDn with the child's outer bound on its value.
type InitUp struct {
	NodeID int     `json:"node_id"`
	Bound  float64 `json:"bound"`
	Error  string  `json:"error,omitempty"`
}

type initUpAlias InitUp

type initUpWire struct {
	initUpAlias
	Bound string `json:"bound"`
}

// MarshalJSON encodes Bound as a string so infinite bounds survive the wire.
func (m InitUp) MarshalJSON() ([]byte, error) {
	return json.Marshal(initUpWire{initUpAlias(m), strconv.FormatFloat(m.Bound, 'g', -1, 64)})
}

func (m *InitUp) UnmarshalJSON(data []byte) error {
	var w initUpWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	b, err := strconv.ParseFloat(w.Bound, 64)
	if err != nil {
		return err
	}
	*m = InitUp(w.initUpAlias)
	m.Bound = b
	return nil
}

// Dn carries the trial point of one iteration. Iteration equal to TerminateSentinel
// ends the main phase instead and carries the parent's terminal status.
type Dn struct {
	Iteration int       `json:"iteration"`
	Trial     []float64 `json:"trial,omitempty"`
	Status    Status    `json:"status,omitempty"`
}

// Terminate reports whether the message is the end-of-main-phase sentinel.
func (m Dn) Terminate() bool { return m.Iteration == TerminateSentinel }

// Up carries the cuts returned by the children solved on one rank, keyed by child ID.
// Error reports a failed local solve; the rank's cuts are then absent.
type Up struct {
	Rank  int             `json:"rank"`
	Cuts  map[int]CutList `json:"cuts"`
	Error string          `json:"error,omitempty"`
}

// FinalDn closes the run for one child, optionally carrying a recovered solution.
type FinalDn struct {
	NodeID      int       `json:"node_id"`
	Solution    []float64 `json:"solution,omitempty"`
	HasSolution bool      `json:"has_solution"`
}

// FinalUp reports a child's realized objective contribution.
type FinalUp struct {
	NodeID    int     `json:"node_id"`
	Objective float64 `json:"objective"`
	Error     string  `json:"error,omitempty"`
}

type finalUpAlias FinalUp

type finalUpWire struct {
	finalUpAlias
	Objective string `json:"objective"`
}

// MarshalJSON encodes Objective as a string so an infeasible child's +Inf survives.
func (m FinalUp) MarshalJSON() ([]byte, error) {
	return json.Marshal(finalUpWire{finalUpAlias(m), strconv.FormatFloat(m.Objective, 'g', -1, 64)})
}

func (m *FinalUp) UnmarshalJSON(data []byte) error {
	var w finalUpWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	v, err := strconv.ParseFloat(w.Objective, 64)
	if err != nil {
		return err
	}
	*m = FinalUp(w.finalUpAlias)
	m.Objective = v
	return nil
}

type resultAlias Result

type resultWire struct {
	resultAlias
	Bound     string `json:"bound"`
	Objective string `json:"objective"`
}

// MarshalJSON encodes Bound and Objective as strings; either may be infinite.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultWire{
		resultAlias: resultAlias(r),
		Bound:       strconv.FormatFloat(r.Bound, 'g', -1, 64),
		Objective:   strconv.FormatFloat(r.Objective, 'g', -1, 64),
	})
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var w resultWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	bound, err := strconv.ParseFloat(w.Bound, 64)
	if err != nil {
		return err
	}
	objective, err := strconv.ParseFloat(w.Objective, 64)
	if err != nil {
		return err
	}
	*r = Result(w.resultAlias)
	r.Bound, r.Objective = bound, objective
	return nil
}
