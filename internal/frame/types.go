// Package frame implements the durable frame memory engine for Framestack.
//
// A frame is one unit of work on a stack-shaped context model. Frames form a
// tree per owning stack (parent links), carry an append-only event log and
// append-only prioritized anchors, and are exclusively owned by one stack at
// a time until a handoff transfers them.
//
// The package holds both the domain types and the SQLite-backed Store that
// persists them, following the same layout as a keyed record store: types,
// store, and handoff records in separate files within one package.
package frame

import (
	"fmt"
)

// --- Frame kind enum ---

// Kind categorizes what a frame represents.
type Kind string

const (
	KindTask      Kind = "task"
	KindSubtask   Kind = "subtask"
	KindToolScope Kind = "tool_scope"
	KindReview    Kind = "review"
	KindWrite     Kind = "write"
	KindDebug     Kind = "debug"
)

// validKinds is the set of allowed frame kinds.
var validKinds = map[Kind]bool{
	KindTask:      true,
	KindSubtask:   true,
	KindToolScope: true,
	KindReview:    true,
	KindWrite:     true,
	KindDebug:     true,
}

// ValidateKind returns an error if the kind is not recognized.
func ValidateKind(k Kind) error {
	if !validKinds[k] {
		return fmt.Errorf("invalid frame kind %q: must be one of: task, subtask, tool_scope, review, write, debug", k)
	}
	return nil
}

// --- Frame status enum ---

// Status tracks the lifecycle of a frame.
type Status string

const (
	StatusActive  Status = "active"
	StatusClosed  Status = "closed"
	StatusStalled Status = "stalled"
)

// --- Anchor kind enum ---

// AnchorKind categorizes an anchor annotation.
type AnchorKind string

const (
	AnchorFact       AnchorKind = "fact"
	AnchorDecision   AnchorKind = "decision"
	AnchorConstraint AnchorKind = "constraint"
	AnchorContract   AnchorKind = "interface_contract"
	AnchorTodo       AnchorKind = "todo"
	AnchorRisk       AnchorKind = "risk"
)

// validAnchorKinds is the set of allowed anchor kinds.
var validAnchorKinds = map[AnchorKind]bool{
	AnchorFact:       true,
	AnchorDecision:   true,
	AnchorConstraint: true,
	AnchorContract:   true,
	AnchorTodo:       true,
	AnchorRisk:       true,
}

// ValidateAnchorKind returns an error if the anchor kind is not recognized.
func ValidateAnchorKind(k AnchorKind) error {
	if !validAnchorKinds[k] {
		return fmt.Errorf("invalid anchor kind %q: must be one of: fact, decision, constraint, interface_contract, todo, risk", k)
	}
	return nil
}

// --- Event kind enum ---

// EventKind categorizes an event log entry.
type EventKind string

const (
	EventUserMessage      EventKind = "user_message"
	EventAssistantMessage EventKind = "assistant_message"
	EventDecision         EventKind = "decision"
	EventObservation      EventKind = "observation"
	EventToolCall         EventKind = "tool_call"
	EventStatusChange     EventKind = "status_change"
	EventHandoff          EventKind = "handoff"
)

// validEventKinds is the set of allowed event kinds.
var validEventKinds = map[EventKind]bool{
	EventUserMessage:      true,
	EventAssistantMessage: true,
	EventDecision:         true,
	EventObservation:      true,
	EventToolCall:         true,
	EventStatusChange:     true,
	EventHandoff:          true,
}

// ValidateEventKind returns an error if the event kind is not recognized.
func ValidateEventKind(k EventKind) error {
	if !validEventKinds[k] {
		return fmt.Errorf("invalid event kind %q: must be one of: user_message, assistant_message, decision, observation, tool_call, status_change, handoff", k)
	}
	return nil
}

// --- Core data structures ---

// Frame is a unit of work on a stack. Version starts at 1 and is bumped on
// every mutation; it is the comparison point for optimistic-concurrency
// conflict detection during handoffs.
type Frame struct {
	ID        string  `json:"id"`
	StackID   string  `json:"stack_id"`
	ParentID  *string `json:"parent_id,omitempty"`
	Kind      Kind    `json:"kind"`
	Name      string  `json:"name"`
	Status    Status  `json:"status"`
	Score     float64 `json:"score"`
	Input     string  `json:"input,omitempty"`
	Output    string  `json:"output,omitempty"`
	Digest    string  `json:"digest,omitempty"`
	Version   int64   `json:"version"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// Anchor is an immutable, prioritized annotation on a frame.
type Anchor struct {
	ID        int64      `json:"id"`
	FrameID   string     `json:"frame_id"`
	Kind      AnchorKind `json:"kind"`
	Text      string     `json:"text"`
	Priority  int        `json:"priority"`
	CreatedAt string     `json:"created_at"`
}

// Event is an append-only log entry on a frame. Ordered by created_at, then
// by insertion order.
type Event struct {
	ID        int64     `json:"id"`
	FrameID   string    `json:"frame_id"`
	Kind      EventKind `json:"kind"`
	Payload   string    `json:"payload"`
	CreatedAt string    `json:"created_at"`
}

// CreateFrameParams holds the input for creating a new frame.
type CreateFrameParams struct {
	StackID  string  `json:"stack_id"`
	ParentID *string `json:"parent_id,omitempty"`
	Kind     Kind    `json:"kind"`
	Name     string  `json:"name"`
	Score    float64 `json:"score,omitempty"`
	Input    string  `json:"input,omitempty"`
}

// Filter selects frames for direct lookups. Zero values mean "no filter".
// Ranked or semantic retrieval is delegated to the external search engine.
type Filter struct {
	StackID       string `json:"stack_id,omitempty"`
	ParentID      string `json:"parent_id,omitempty"`
	Kind          Kind   `json:"kind,omitempty"`
	Status        Status `json:"status,omitempty"`
	CreatedAfter  string `json:"created_after,omitempty"`
	CreatedBefore string `json:"created_before,omitempty"`
	Limit         int    `json:"limit,omitempty"`
}

// clampScore bounds an importance score to [0, 1].
func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// clampPriority bounds an anchor priority to [0, 10].
func clampPriority(p int) int {
	if p < 0 {
		return 0
	}
	if p > 10 {
		return 10
	}
	return p
}
