package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventIteration EventType = "iteration"
	EventCutAdded  EventType = "cut_added"
	EventTerminate EventType = "terminate"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	NodeID    int       `json:"node_id"`
}

// IterationEvent is emitted after every master step.
type IterationEvent struct {
	EventBase
	Iteration  int     `json:"iteration"`
	Bound      float64 `json:"bound"`
	Objective  float64 `json:"objective"`
	ActiveCuts int     `json:"active_cuts"`
	Penalty    float64 `json:"penalty,omitempty"`
}

// CutEvent is emitted when a cut is offered to a master slot.
type CutEvent struct {
	EventBase
	Slot      int     `json:"slot"`
	Kind      CutKind `json:"kind"`
	Accepted  bool    `json:"accepted"`
	Duplicate bool    `json:"duplicate,omitempty"`
}

// TerminateEvent is emitted once when an engine reaches a terminal status.
type TerminateEvent struct {
	EventBase
	Status     Status `json:"status"`
	Iterations int    `json:"iterations"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnIteration func(context.Context, *IterationEvent)
	OnCutAdded  func(context.Context, *CutEvent)
	OnTerminate func(context.Context, *TerminateEvent)
}
