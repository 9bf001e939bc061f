package handoff_test

import (
	"testing"

	"github.com/framestack/framestack/internal/frame"
	"github.com/framestack/framestack/internal/handoff"
)

// ─── CanTransition ──────────────────────────────────────────────────────────

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from frame.HandoffStatus
		to   frame.HandoffStatus
		want bool
	}{
		{"review to approved", frame.HandoffPendingReview, frame.HandoffApproved, true},
		{"review to failed (rejection)", frame.HandoffPendingReview, frame.HandoffFailed, true},
		{"review loops on needs_changes", frame.HandoffPendingReview, frame.HandoffPendingReview, true},
		{"review to cancelled", frame.HandoffPendingReview, frame.HandoffCancelled, true},
		{"review cannot skip to transfer", frame.HandoffPendingReview, frame.HandoffInTransfer, false},
		{"review cannot skip to completed", frame.HandoffPendingReview, frame.HandoffCompleted, false},
		{"approved to transfer", frame.HandoffApproved, frame.HandoffInTransfer, true},
		{"approved to cancelled", frame.HandoffApproved, frame.HandoffCancelled, true},
		{"approved cannot revert", frame.HandoffApproved, frame.HandoffPendingReview, false},
		{"transfer to completed", frame.HandoffInTransfer, frame.HandoffCompleted, true},
		{"transfer to partial", frame.HandoffInTransfer, frame.HandoffPartiallyCompleted, true},
		{"transfer to failed", frame.HandoffInTransfer, frame.HandoffFailed, true},
		{"transfer is not cancellable", frame.HandoffInTransfer, frame.HandoffCancelled, false},
		{"completed is terminal", frame.HandoffCompleted, frame.HandoffPendingReview, false},
		{"failed is terminal", frame.HandoffFailed, frame.HandoffApproved, false},
		{"cancelled is terminal", frame.HandoffCancelled, frame.HandoffApproved, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := handoff.CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

// ─── Cancellable ────────────────────────────────────────────────────────────

func TestCancellable(t *testing.T) {
	cancellable := map[frame.HandoffStatus]bool{
		frame.HandoffPendingReview:      true,
		frame.HandoffApproved:           true,
		frame.HandoffInTransfer:         false,
		frame.HandoffCompleted:          false,
		frame.HandoffPartiallyCompleted: false,
		frame.HandoffFailed:             false,
		frame.HandoffCancelled:          false,
	}
	for st, want := range cancellable {
		if got := handoff.Cancellable(st); got != want {
			t.Errorf("Cancellable(%s) = %v, want %v", st, got, want)
		}
	}
}

// ─── Status terminality ─────────────────────────────────────────────────────

func TestHandoffStatus_IsTerminal(t *testing.T) {
	terminal := map[frame.HandoffStatus]bool{
		frame.HandoffPendingReview:      false,
		frame.HandoffApproved:           false,
		frame.HandoffInTransfer:         false,
		frame.HandoffCompleted:          true,
		frame.HandoffPartiallyCompleted: true,
		frame.HandoffFailed:             true,
		frame.HandoffCancelled:          true,
	}
	for st, want := range terminal {
		if got := st.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", st, got, want)
		}
	}
}
