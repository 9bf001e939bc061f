// Package handoff orchestrates the end-to-end approval workflow that moves
// frame ownership between stacks: request creation, reviewer decisions,
// transfer execution, conflict bookkeeping, notification fan-out, reminder
// scheduling, bulk operations, and analytics.
package handoff

import (
	"github.com/framestack/framestack/internal/frame"
)

// --- State machine for the handoff approval workflow ---
//
// pending_review → approved → in_transfer → {completed, partially_completed, failed}
// pending_review → failed                    (rejection)
// pending_review → pending_review            (needs_changes loop)
// {pending_review, approved} → cancelled     (in_transfer is never cancellable)
//
// Transitions are applied with a store-level compare-and-set on the current
// status, so two callers racing the same transition serialize at the
// database; this table only answers "is the move ever legal".

// transitions maps each status to the set of statuses it may move to.
var transitions = map[frame.HandoffStatus]map[frame.HandoffStatus]bool{
	frame.HandoffPendingReview: {
		frame.HandoffApproved:      true,
		frame.HandoffFailed:        true,
		frame.HandoffPendingReview: true,
		frame.HandoffCancelled:     true,
	},
	frame.HandoffApproved: {
		frame.HandoffInTransfer: true,
		frame.HandoffCancelled:  true,
	},
	frame.HandoffInTransfer: {
		frame.HandoffCompleted:          true,
		frame.HandoffPartiallyCompleted: true,
		frame.HandoffFailed:             true,
	},
}

// CanTransition reports whether a handoff may move between two statuses.
func CanTransition(from, to frame.HandoffStatus) bool {
	return transitions[from][to]
}

// Cancellable reports whether a handoff in the given status may still be
// cancelled by a user.
func Cancellable(st frame.HandoffStatus) bool {
	return CanTransition(st, frame.HandoffCancelled)
}

// Workflow step names recorded in progress rows and the error log.
const (
	stepAwaitingReview = "awaiting review"
	stepChangesAsked   = "changes requested, awaiting resubmission"
	stepApproved       = "approved, starting transfer"
	stepTransferring   = "transferring frames"
	stepDone           = "transfer complete"
	stepPartial        = "transfer completed with conflicts"
	stepFailed         = "failed"
	stepCancelled      = "cancelled"

	// Error-log step labels.
	StepReview   = "review"
	StepTransfer = "transfer"
	StepCancel   = "cancel"
)
