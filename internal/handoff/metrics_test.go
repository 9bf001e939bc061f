package handoff_test

import (
	"testing"

	"github.com/framestack/framestack/internal/frame"
	"github.com/framestack/framestack/internal/handoff"
)

// ─── Metrics ────────────────────────────────────────────────────────────────

func TestMetrics_EmptyHistory(t *testing.T) {
	fx := newFixture(t)

	m, err := fx.mgr.Metrics("", "")
	if err != nil {
		t.Fatalf("Metrics error: %v", err)
	}
	if m.TotalHandoffs != 0 || m.CompletedHandoffs != 0 {
		t.Errorf("counts = %d/%d, want zero on empty history", m.TotalHandoffs, m.CompletedHandoffs)
	}
	if m.AverageProcessingTime != 0 {
		t.Errorf("AverageProcessingTime = %v, want 0", m.AverageProcessingTime)
	}
	if m.TopFrameTypes == nil || m.CollaborationPatterns == nil {
		t.Error("slices must be empty, not nil")
	}
}

func TestMetrics_CountsOutcomes(t *testing.T) {
	fx := newFixture(t)

	// One completed handoff.
	done := fx.closedFrames(t, "shipped")
	doneReq := fx.initiate(t, done, handoff.InitiateParams{ReviewerID: "bob"})
	if err := fx.mgr.SubmitApproval("bob", doneReq, frame.DecisionApproved, "", nil); err != nil {
		t.Fatal(err)
	}

	// One rejected handoff.
	dropped := fx.closedFrames(t, "dropped")
	droppedReq := fx.initiate(t, dropped, handoff.InitiateParams{ReviewerID: "bob"})
	if err := fx.mgr.SubmitApproval("bob", droppedReq, frame.DecisionRejected, "no", nil); err != nil {
		t.Fatal(err)
	}

	// One still pending.
	pending := fx.closedFrames(t, "pending")
	fx.initiate(t, pending, handoff.InitiateParams{ReviewerID: "bob"})

	m, err := fx.mgr.Metrics("", "")
	if err != nil {
		t.Fatalf("Metrics error: %v", err)
	}
	if m.TotalHandoffs != 3 {
		t.Errorf("TotalHandoffs = %d, want 3", m.TotalHandoffs)
	}
	if m.CompletedHandoffs != 1 {
		t.Errorf("CompletedHandoffs = %d, want 1", m.CompletedHandoffs)
	}

	if len(m.CollaborationPatterns) != 1 {
		t.Fatalf("patterns = %+v, want one individual→team entry", m.CollaborationPatterns)
	}
	p := m.CollaborationPatterns[0]
	if p.SourceStack != "individual" || p.TargetStack != "team" || p.Count != 3 {
		t.Errorf("pattern = %+v, want individual→team ×3", p)
	}

	// All frames pushed as tasks.
	if len(m.TopFrameTypes) != 1 || m.TopFrameTypes[0].Kind != frame.KindTask || m.TopFrameTypes[0].Count != 3 {
		t.Errorf("TopFrameTypes = %+v, want task ×3", m.TopFrameTypes)
	}
}

func TestMetrics_PartialCountsAsCompleted(t *testing.T) {
	fx := newFixture(t)
	ids := fx.closedFrames(t, "clean", "dirty")
	reqID := fx.initiate(t, ids, handoff.InitiateParams{ReviewerID: "bob"})
	if _, err := fx.store.AddAnchor(ids[1], frame.AnchorFact, "late", 5); err != nil {
		t.Fatal(err)
	}
	if err := fx.mgr.SubmitApproval("bob", reqID, frame.DecisionApproved, "", nil); err != nil {
		t.Fatal(err)
	}

	m, err := fx.mgr.Metrics("", "")
	if err != nil {
		t.Fatal(err)
	}
	if m.CompletedHandoffs != 1 {
		t.Errorf("CompletedHandoffs = %d, want partial outcomes counted", m.CompletedHandoffs)
	}
}

func TestMetrics_WindowExcludes(t *testing.T) {
	fx := newFixture(t)
	ids := fx.closedFrames(t, "work")
	fx.initiate(t, ids, handoff.InitiateParams{ReviewerID: "bob"})

	m, err := fx.mgr.Metrics("2099-01-01T00:00:00Z", "")
	if err != nil {
		t.Fatal(err)
	}
	if m.TotalHandoffs != 0 {
		t.Errorf("TotalHandoffs = %d in a future window, want 0", m.TotalHandoffs)
	}
}
