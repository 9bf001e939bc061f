package stack_test

import (
	"strings"
	"testing"

	apperr "github.com/framestack/framestack/internal/errors"
	"github.com/framestack/framestack/internal/frame"
	"github.com/framestack/framestack/internal/stack"
)

// newTestStore creates a frame store in a temp directory.
func newTestStore(t *testing.T) *frame.Store {
	t.Helper()
	s, err := frame.New(frame.Config{
		DataDir:       t.TempDir(),
		MaxPathDepth:  64,
		MaxHotEvents:  20,
		MaxHotAnchors: 20,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// newTestManager creates a manager over a fresh store.
func newTestManager(t *testing.T) *stack.Manager {
	t.Helper()
	return stack.NewManager(newTestStore(t), "individual", nil)
}

// mustPush pushes a frame and fails the test on error.
func mustPush(t *testing.T, m *stack.Manager, kind frame.Kind, name string) string {
	t.Helper()
	id, err := m.Push(kind, name, stack.PushOptions{})
	if err != nil {
		t.Fatalf("Push(%q) error: %v", name, err)
	}
	return id
}

// ─── Push ───────────────────────────────────────────────────────────────────

func TestPush_EmptyName(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Push(frame.KindTask, "   ", stack.PushOptions{})
	if !apperr.Is(err, apperr.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestPush_InvalidKind(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Push(frame.Kind("meeting"), "standup", stack.PushOptions{})
	if !apperr.Is(err, apperr.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestPush_NestsUnderTopOfStack(t *testing.T) {
	m := newTestManager(t)
	root := mustPush(t, m, frame.KindTask, "build feature")
	child := mustPush(t, m, frame.KindSubtask, "write parser")

	path, err := m.ActivePath()
	if err != nil {
		t.Fatalf("ActivePath error: %v", err)
	}
	if len(path) != 2 {
		t.Fatalf("path length = %d, want 2", len(path))
	}
	if path[0].ID != root || path[1].ID != child {
		t.Errorf("path = [%s, %s], want [%s, %s]", path[0].ID, path[1].ID, root, child)
	}
	if path[1].ParentID == nil || *path[1].ParentID != root {
		t.Errorf("child parent = %v, want %q", path[1].ParentID, root)
	}
}

func TestPush_DefaultScore(t *testing.T) {
	m := newTestManager(t)
	mustPush(t, m, frame.KindTask, "work")

	path, err := m.ActivePath()
	if err != nil {
		t.Fatal(err)
	}
	if path[0].Score != 0.5 {
		t.Errorf("Score = %v, want default 0.5", path[0].Score)
	}
}

// ─── Pop ────────────────────────────────────────────────────────────────────

func TestPop_WithActiveChildren(t *testing.T) {
	m := newTestManager(t)
	root := mustPush(t, m, frame.KindTask, "parent")
	mustPush(t, m, frame.KindSubtask, "child")

	_, err := m.Pop(root, "trying to close early")
	if !apperr.Is(err, apperr.ErrInvalidState) {
		t.Errorf("pop with active children error = %v, want ErrInvalidState", err)
	}
}

func TestPop_ChildrenFirstThenParent(t *testing.T) {
	m := newTestManager(t)
	root := mustPush(t, m, frame.KindTask, "parent")
	child := mustPush(t, m, frame.KindSubtask, "child")

	if _, err := m.Pop(child, "child done"); err != nil {
		t.Fatalf("pop child: %v", err)
	}
	if _, err := m.Pop(root, "parent done"); err != nil {
		t.Fatalf("pop parent after child: %v", err)
	}

	path, err := m.ActivePath()
	if err != nil {
		t.Fatal(err)
	}
	if len(path) != 0 {
		t.Errorf("path length = %d after popping everything, want 0", len(path))
	}
}

func TestPop_AlreadyClosed(t *testing.T) {
	m := newTestManager(t)
	id := mustPush(t, m, frame.KindTask, "work")
	if _, err := m.Pop(id, "done"); err != nil {
		t.Fatal(err)
	}

	_, err := m.Pop(id, "again")
	if !apperr.Is(err, apperr.ErrInvalidState) {
		t.Errorf("double pop error = %v, want ErrInvalidState", err)
	}
}

func TestPop_DigestIncludesAnchorsAndOutput(t *testing.T) {
	m := newTestManager(t)
	id := mustPush(t, m, frame.KindDebug, "chase flaky test")
	if _, err := m.AddAnchor(id, frame.AnchorFact, "race in the setup hook", 8); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddEvent(id, frame.EventObservation, "reproduced locally"); err != nil {
		t.Fatal(err)
	}

	digest, err := m.Pop(id, "fixed by serializing setup")
	if err != nil {
		t.Fatalf("Pop error: %v", err)
	}
	for _, want := range []string{"chase flaky test", "race in the setup hook", "fixed by serializing setup"} {
		if !strings.Contains(digest, want) {
			t.Errorf("digest %q missing %q", digest, want)
		}
	}
}

// ─── Annotations ────────────────────────────────────────────────────────────

func TestAddAnchor_InvalidKind(t *testing.T) {
	m := newTestManager(t)
	id := mustPush(t, m, frame.KindTask, "work")

	_, err := m.AddAnchor(id, frame.AnchorKind("hunch"), "probably fine", 5)
	if !apperr.Is(err, apperr.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestAddAnchor_EmptyText(t *testing.T) {
	m := newTestManager(t)
	id := mustPush(t, m, frame.KindTask, "work")

	_, err := m.AddAnchor(id, frame.AnchorFact, "  ", 5)
	if !apperr.Is(err, apperr.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestAddEvent_InvalidKind(t *testing.T) {
	m := newTestManager(t)
	id := mustPush(t, m, frame.KindTask, "work")

	_, err := m.AddEvent(id, frame.EventKind("vibe"), "all good")
	if !apperr.Is(err, apperr.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

// ─── HotStack ───────────────────────────────────────────────────────────────

func TestHotStack_BundlesEventsAndAnchors(t *testing.T) {
	m := newTestManager(t)
	root := mustPush(t, m, frame.KindTask, "root")
	child := mustPush(t, m, frame.KindSubtask, "child")
	if _, err := m.AddAnchor(child, frame.AnchorConstraint, "no breaking changes", 7); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddEvent(child, frame.EventDecision, "use streaming parser"); err != nil {
		t.Fatal(err)
	}

	hot, err := m.HotStack(10)
	if err != nil {
		t.Fatalf("HotStack error: %v", err)
	}
	if len(hot) != 2 {
		t.Fatalf("hot stack length = %d, want 2", len(hot))
	}
	if hot[0].Frame.ID != root {
		t.Errorf("hot[0] = %q, want root", hot[0].Frame.ID)
	}
	leaf := hot[1]
	if len(leaf.Anchors) != 1 || leaf.Anchors[0].Text != "no breaking changes" {
		t.Errorf("leaf anchors = %+v, want the constraint", leaf.Anchors)
	}
	if len(leaf.Events) != 1 || leaf.Events[0].Payload != "use streaming parser" {
		t.Errorf("leaf events = %+v, want the decision", leaf.Events)
	}
}

func TestQuery_ScopedToOwnStack(t *testing.T) {
	store := newTestStore(t)
	mine := stack.NewManager(store, "individual", nil)
	theirs := stack.NewManager(store, "team", nil)

	if _, err := mine.Push(frame.KindTask, "mine", stack.PushOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := theirs.Push(frame.KindTask, "theirs", stack.PushOptions{}); err != nil {
		t.Fatal(err)
	}

	got, err := mine.Query(frame.Filter{})
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if len(got) != 1 || got[0].Name != "mine" {
		t.Errorf("query result = %+v, want only this stack's frame", got)
	}
}
