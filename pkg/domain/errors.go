package domain

import "errors"

// ErrMasterInfeasible is returned when the relaxed master problem has no feasible point.
var ErrMasterInfeasible = errors.New("master problem infeasible")

// ErrSubproblemFailed is returned when a subproblem solve ends in an unusable status.
var ErrSubproblemFailed = errors.New("subproblem solve failed")

// ErrInvalidGroups is returned when child groups do not exactly partition the children.
var ErrInvalidGroups = errors.New("groups do not partition the children")

// ErrUnknownCouplingVariable is returned when a declared coupling variable is absent from the model.
var ErrUnknownCouplingVariable = errors.New("unknown coupling variable")

// ErrMultipleObjectives is returned when a coupling-only model declares more than one objective.
var ErrMultipleObjectives = errors.New("multiple objectives on coupling-only model")

// ErrInvalidTopology is returned when the node forest is malformed.
var ErrInvalidTopology = errors.New("invalid topology")

// ErrNodeNotFound is returned when a node ID cannot be resolved.
var ErrNodeNotFound = errors.New("node not found")

// ErrRankAssignment is returned when ranks do not cover the children exactly once.
var ErrRankAssignment = errors.New("invalid rank assignment")

// ErrStatusDisagreement is returned when ranks finish with different terminal statuses.
var ErrStatusDisagreement = errors.New("ranks disagree on terminal status")

// ErrNoMinkowskiCombination is returned when the heuristic root finds no convex combination.
var ErrNoMinkowskiCombination = errors.New("no minkowski combination found")
