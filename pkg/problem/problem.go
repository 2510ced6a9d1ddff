package problem

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/decomp/pkg/domain"
)

// Kind selects how the problem is decomposed.
type Kind string

const (
	// Benders keeps the coupling variables in the master and approximates each
	// scenario's recourse value with cuts.
	Benders Kind = "benders"
	// Lagrangian relaxes the coupling constraints into the block objectives and
	// maximizes the dual function over the multipliers.
	Lagrangian Kind = "lagrangian"
)

// ErrUnknownVariable is returned when a row or objective names a variable the master lacks.
var ErrUnknownVariable = errors.New("unknown variable")

// Problem is the YAML description of a decomposable linear program.
type Problem struct {
	Name          string `yaml:"name"`
	Decomposition Kind   `yaml:"decomposition"`

	Master    Master     `yaml:"master"`
	Scenarios []Scenario `yaml:"scenarios,omitempty"`

	Relaxed []RelaxedRow `yaml:"relaxed,omitempty"`
	// MultiplierBound boxes each multiplier into [-bound, bound]. Zero means 1e3.
	MultiplierBound float64 `yaml:"multiplier_bound,omitempty"`
	Blocks          []Block `yaml:"blocks,omitempty"`

	// Groups optionally partitions the child IDs into master slots.
	Groups [][]int `yaml:"groups,omitempty"`
}

// Variable is a master variable. Bounds default to [0, +Inf).
type Variable struct {
	Name    string   `yaml:"name"`
	Lower   *float64 `yaml:"lower,omitempty"`
	Upper   *float64 `yaml:"upper,omitempty"`
	Integer bool     `yaml:"integer,omitempty"`
}

// Constraint is lower <= sum(coeffs[name] * x[name]) <= upper; missing bounds are infinite.
type Constraint struct {
	Name   string             `yaml:"name,omitempty"`
	Coeffs map[string]float64 `yaml:"coeffs"`
	Lower  *float64           `yaml:"lower,omitempty"`
	Upper  *float64           `yaml:"upper,omitempty"`
}

// Master is the first-stage model of a Benders decomposition.
type Master struct {
	Sense       domain.Sense         `yaml:"sense,omitempty"`
	Variables   []Variable           `yaml:"variables"`
	Constraints []Constraint         `yaml:"constraints,omitempty"`
	Objectives  []map[string]float64 `yaml:"objectives"`
	// Coupling lists, in position order, the variables the scenarios depend on.
	Coupling []string `yaml:"coupling"`
}

// Scenario is a later stage: min q'y s.t. W y >= h - T x, y >= 0, where x are the
// coupling variables of the parent stage.
//
// A scenario with children is an intermediate stage. Its y are the coupling variables
// of its children, whose t has one column per entry of q and whose probabilities are
// conditional on it. Only top-level scenarios can be pinned to a rank, and the bound
// of an intermediate stage is derived from its children.
type Scenario struct {
	ID          int         `yaml:"id"`
	Probability *float64    `yaml:"probability,omitempty"`
	Bound       *float64    `yaml:"bound,omitempty"`
	Rank        *int        `yaml:"rank,omitempty"`
	Q           []float64   `yaml:"q"`
	W           [][]float64 `yaml:"w"`
	H           []float64   `yaml:"h"`
	T           [][]float64 `yaml:"t"`
	Children    []Scenario  `yaml:"children,omitempty"`
}

// RelaxedRow is one coupling constraint sum_k A_k y_k (type) rhs of a Lagrangian problem.
type RelaxedRow struct {
	Type string  `yaml:"type"` // "=", "<=" or ">="
	Rhs  float64 `yaml:"rhs"`
}

// Block is one block of a Lagrangian problem: min c'y s.t. W y >= h, lower <= y <= upper.
// A holds the block's columns of the relaxed rows.
type Block struct {
	ID    int         `yaml:"id"`
	Rank  *int        `yaml:"rank,omitempty"`
	C     []float64   `yaml:"c"`
	W     [][]float64 `yaml:"w,omitempty"`
	H     []float64   `yaml:"h,omitempty"`
	Lower []float64   `yaml:"lower,omitempty"`
	Upper []float64   `yaml:"upper,omitempty"`
	A     [][]float64 `yaml:"a"`
}

// Load reads and validates a problem file.
func Load(path string) (*Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read problem: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a problem document. Unknown fields are rejected.
func Parse(data []byte) (*Problem, error) {
	var p Problem
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to parse problem: %w", err)
	}
	if p.Decomposition == "" {
		p.Decomposition = Benders
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the problem eagerly so that a run never starts on a bad model.
func (p *Problem) Validate() error {
	var errs []error
	add := func(field, reason string, sentinel error) {
		errs = append(errs, &ValidationError{Field: field, Reason: reason, Err: sentinel})
	}

	switch p.Decomposition {
	case Benders:
		p.validateBenders(add)
	case Lagrangian:
		p.validateLagrangian(add)
	default:
		add("decomposition", fmt.Sprintf("unknown kind %q", p.Decomposition), nil)
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

func (p *Problem) validateBenders(add func(field, reason string, sentinel error)) {
	m := p.Master
	switch m.Sense {
	case "", domain.Minimize, domain.Maximize:
	default:
		add("master.sense", fmt.Sprintf("unknown sense %q", m.Sense), nil)
	}

	names := make(map[string]bool, len(m.Variables))
	for i, v := range m.Variables {
		if v.Name == "" {
			add(fmt.Sprintf("master.variables[%d]", i), "missing name", nil)
			continue
		}
		if names[v.Name] {
			add(fmt.Sprintf("master.variables[%d]", i), fmt.Sprintf("duplicate variable %q", v.Name), nil)
		}
		names[v.Name] = true
	}

	if len(m.Objectives) > 1 {
		add("master.objectives", fmt.Sprintf("%d objectives declared", len(m.Objectives)), domain.ErrMultipleObjectives)
	}
	for i, obj := range m.Objectives {
		for name := range obj {
			if !names[name] {
				add(fmt.Sprintf("master.objectives[%d]", i), fmt.Sprintf("variable %q", name), ErrUnknownVariable)
			}
		}
	}
	for i, c := range m.Constraints {
		for name := range c.Coeffs {
			if !names[name] {
				add(fmt.Sprintf("master.constraints[%d]", i), fmt.Sprintf("variable %q", name), ErrUnknownVariable)
			}
		}
	}
	for i, name := range m.Coupling {
		if !names[name] {
			add(fmt.Sprintf("master.coupling[%d]", i), fmt.Sprintf("variable %q", name), domain.ErrUnknownCouplingVariable)
		}
	}

	if len(p.Scenarios) == 0 {
		add("scenarios", "at least one scenario is required", nil)
	}
	validateScenarios(p.Scenarios, "scenarios", len(m.Coupling), false, map[int]bool{}, add)
	if m.Sense == domain.Maximize && p.Staged() {
		add("scenarios", "intermediate stages need a minimize master", nil)
	}
}

// validateScenarios checks one level of the scenario tree against cols coupling
// positions of its parent. IDs must be unique across all levels.
func validateScenarios(list []Scenario, prefix string, cols int, nested bool, ids map[int]bool, add func(field, reason string, sentinel error)) {
	for i, s := range list {
		field := fmt.Sprintf("%s[%d]", prefix, i)
		if s.ID <= 0 {
			add(field+".id", "must be positive", nil)
		}
		if ids[s.ID] {
			add(field+".id", fmt.Sprintf("duplicate id %d", s.ID), nil)
		}
		ids[s.ID] = true
		if s.Probability != nil && *s.Probability < 0 {
			add(field+".probability", "must be non-negative", nil)
		}
		if nested && s.Rank != nil {
			add(field+".rank", "only top-level scenarios can be pinned", nil)
		}
		if len(s.W) != len(s.H) || len(s.T) != len(s.H) {
			add(field, fmt.Sprintf("w has %d rows, t %d, h %d", len(s.W), len(s.T), len(s.H)), nil)
		}
		for r, row := range s.W {
			if len(row) != len(s.Q) {
				add(fmt.Sprintf("%s.w[%d]", field, r), fmt.Sprintf("%d columns for %d recourse costs", len(row), len(s.Q)), nil)
			}
		}
		for r, row := range s.T {
			if len(row) != cols {
				add(fmt.Sprintf("%s.t[%d]", field, r), fmt.Sprintf("%d columns for %d coupling variables", len(row), cols), nil)
			}
		}
		if len(s.Children) > 0 {
			if s.Bound != nil {
				add(field+".bound", "derived from the children of an intermediate stage", nil)
			}
			validateScenarios(s.Children, field+".children", len(s.Q), true, ids, add)
		}
	}
}

// Staged reports whether any scenario has children of its own.
func (p *Problem) Staged() bool {
	for _, s := range p.Scenarios {
		if len(s.Children) > 0 {
			return true
		}
	}
	return false
}

func (p *Problem) validateLagrangian(add func(field, reason string, sentinel error)) {
	if len(p.Relaxed) == 0 {
		add("relaxed", "at least one relaxed row is required", nil)
	}
	for i, r := range p.Relaxed {
		switch r.Type {
		case "=", "<=", ">=":
		default:
			add(fmt.Sprintf("relaxed[%d].type", i), fmt.Sprintf("unknown type %q", r.Type), nil)
		}
	}
	if len(p.Blocks) == 0 {
		add("blocks", "at least one block is required", nil)
	}
	ids := make(map[int]bool, len(p.Blocks))
	for i, b := range p.Blocks {
		field := fmt.Sprintf("blocks[%d]", i)
		if b.ID <= 0 {
			add(field+".id", "must be positive", nil)
		}
		if ids[b.ID] {
			add(field+".id", fmt.Sprintf("duplicate id %d", b.ID), nil)
		}
		ids[b.ID] = true
		n := len(b.C)
		if len(b.W) != len(b.H) {
			add(field, fmt.Sprintf("w has %d rows, h %d", len(b.W), len(b.H)), nil)
		}
		for r, row := range b.W {
			if len(row) != n {
				add(fmt.Sprintf("%s.w[%d]", field, r), fmt.Sprintf("%d columns for %d variables", len(row), n), nil)
			}
		}
		if (b.Lower != nil && len(b.Lower) != n) || (b.Upper != nil && len(b.Upper) != n) {
			add(field, fmt.Sprintf("bounds must have %d entries", n), nil)
		}
		if len(b.A) != len(p.Relaxed) {
			add(field+".a", fmt.Sprintf("%d rows for %d relaxed rows", len(b.A), len(p.Relaxed)), nil)
		}
		for r, row := range b.A {
			if len(row) != n {
				add(fmt.Sprintf("%s.a[%d]", field, r), fmt.Sprintf("%d columns for %d variables", len(row), n), nil)
			}
		}
	}
}

// ChildIDs returns the IDs of the master's children in file order: the blocks or the
// top-level scenarios.
func (p *Problem) ChildIDs() []int {
	if p.Decomposition == Lagrangian {
		ids := make([]int, len(p.Blocks))
		for i, b := range p.Blocks {
			ids[i] = b.ID
		}
		return ids
	}
	ids := make([]int, len(p.Scenarios))
	for i, s := range p.Scenarios {
		ids[i] = s.ID
	}
	return ids
}
