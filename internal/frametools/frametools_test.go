package frametools

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/framestack/framestack/internal/frame"
	"github.com/framestack/framestack/internal/handoff"
	"github.com/framestack/framestack/internal/permission"
	"github.com/framestack/framestack/internal/stack"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

// newTestEnv builds the dual-stack and handoff managers over a temp store.
func newTestEnv(t *testing.T) (*stack.DualManager, *handoff.Manager) {
	t.Helper()
	store, err := frame.New(frame.Config{
		DataDir:       t.TempDir(),
		MaxPathDepth:  64,
		MaxHotEvents:  20,
		MaxHotAnchors: 20,
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	individual := stack.NewManager(store, "individual", nil)
	team := stack.NewManager(store, "team", nil)
	dual := stack.NewDualManager(store, individual, team, permission.AllowAll())

	mgr := handoff.NewManager(dual, zerolog.Nop(), handoff.Options{
		ReminderDelay: time.Hour,
		PollInterval:  10 * time.Millisecond,
	})
	t.Cleanup(mgr.Close)
	return dual, mgr
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// mustNotError fails if the handler returned a Go error or an error result.
func mustNotError(t *testing.T, r *mcp.CallToolResult, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if r != nil && r.IsError {
		t.Fatalf("tool result is an error: %s", resultText(r))
	}
}

// startFrame pushes a frame through the tool surface and returns its ID.
func startFrame(t *testing.T, dual *stack.DualManager, name string) string {
	t.Helper()
	id, err := dual.Active().Push(frame.KindTask, name, stack.PushOptions{})
	if err != nil {
		t.Fatalf("push %q: %v", name, err)
	}
	return id
}

// ─── FrameStartTool ──────────────────────────────────────────────────────────

func TestFrameStartTool_Definition(t *testing.T) {
	dual, _ := newTestEnv(t)
	def := NewFrameStartTool(dual).Definition()

	if def.Name != "frame_start" {
		t.Errorf("tool name = %q, want %q", def.Name, "frame_start")
	}
	props := def.InputSchema.Properties
	for _, p := range []string{"name", "kind", "input", "score"} {
		if _, ok := props[p]; !ok {
			t.Errorf("missing %q parameter", p)
		}
	}
}

func TestFrameStartTool_PushesFrame(t *testing.T) {
	dual, _ := newTestEnv(t)
	tool := NewFrameStartTool(dual)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"name": "implement retry logic",
		"kind": "task",
	}))
	mustNotError(t, result, err)

	if !strings.Contains(resultText(result), "implement retry logic") {
		t.Errorf("result should echo the frame name, got: %s", resultText(result))
	}
	path, err := dual.Active().ActivePath()
	if err != nil {
		t.Fatal(err)
	}
	if len(path) != 1 {
		t.Errorf("active path length = %d, want 1", len(path))
	}
}

func TestFrameStartTool_MissingName(t *testing.T) {
	dual, _ := newTestEnv(t)
	tool := NewFrameStartTool(dual)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"kind": "task",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Error("expected an error result for a missing name")
	}
}

func TestFrameStartTool_BadKind(t *testing.T) {
	dual, _ := newTestEnv(t)
	tool := NewFrameStartTool(dual)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"name": "oops",
		"kind": "meeting",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Error("expected an error result for an invalid kind")
	}
}

// ─── FrameCloseTool ──────────────────────────────────────────────────────────

func TestFrameCloseTool_ReturnsDigest(t *testing.T) {
	dual, _ := newTestEnv(t)
	id := startFrame(t, dual, "quick fix")
	tool := NewFrameCloseTool(dual)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"frame_id": id,
		"output":   "patched and verified",
	}))
	mustNotError(t, result, err)

	text := resultText(result)
	if !strings.Contains(text, "Digest:") || !strings.Contains(text, "patched and verified") {
		t.Errorf("result should carry the digest, got: %s", text)
	}
}

func TestFrameCloseTool_ActiveChildBlocks(t *testing.T) {
	dual, _ := newTestEnv(t)
	parent := startFrame(t, dual, "parent")
	startFrame(t, dual, "child")
	tool := NewFrameCloseTool(dual)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"frame_id": parent,
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Error("expected an error result when active children remain")
	}
}

// ─── AnchorTool / EventTool ──────────────────────────────────────────────────

func TestAnchorTool_SavesAnchor(t *testing.T) {
	dual, _ := newTestEnv(t)
	id := startFrame(t, dual, "work")
	tool := NewAnchorTool(dual)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"frame_id": id,
		"kind":     "constraint",
		"text":     "no schema changes",
		"priority": float64(8),
	}))
	mustNotError(t, result, err)

	anchors, err := dual.Store().ListAnchors(id, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(anchors) != 1 || anchors[0].Priority != 8 {
		t.Errorf("anchors = %+v, want one with priority 8", anchors)
	}
}

func TestEventTool_LogsEvent(t *testing.T) {
	dual, _ := newTestEnv(t)
	id := startFrame(t, dual, "work")
	tool := NewEventTool(dual)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"frame_id": id,
		"kind":     "observation",
		"payload":  "cache hit rate at 40%",
	}))
	mustNotError(t, result, err)

	events, err := dual.Store().ListEvents(id, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Payload != "cache hit rate at 40%" {
		t.Errorf("events = %+v, want the logged observation", events)
	}
}

// ─── HotStackTool ────────────────────────────────────────────────────────────

func TestHotStackTool_EmptyStack(t *testing.T) {
	dual, _ := newTestEnv(t)
	tool := NewHotStackTool(dual)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	mustNotError(t, result, err)
	if !strings.Contains(resultText(result), "empty") {
		t.Errorf("expected an empty-stack message, got: %s", resultText(result))
	}
}

func TestHotStackTool_RendersNestedFrames(t *testing.T) {
	dual, _ := newTestEnv(t)
	startFrame(t, dual, "outer task")
	startFrame(t, dual, "inner subtask")
	tool := NewHotStackTool(dual)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	mustNotError(t, result, err)

	text := resultText(result)
	if !strings.Contains(text, "outer task") || !strings.Contains(text, "inner subtask") {
		t.Errorf("hot stack missing frames:\n%s", text)
	}
	if !strings.Contains(text, "2 frames") {
		t.Errorf("hot stack header should count frames:\n%s", text)
	}
}

// ─── Handoff tools ───────────────────────────────────────────────────────────

// runHandoff drives initiate through the tool surface, returning the request
// ID parsed from the tool output.
func runHandoff(t *testing.T, dual *stack.DualManager, mgr *handoff.Manager, frameIDs string) string {
	t.Helper()
	tool := NewHandoffInitiateTool(mgr, "alice", "individual")
	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"target_stack": "team",
		"frame_ids":    frameIDs,
		"reviewer_id":  "bob",
	}))
	mustNotError(t, result, err)

	text := resultText(result)
	start := strings.Index(text, "(ID: ")
	if start < 0 {
		t.Fatalf("no request ID in result: %s", text)
	}
	rest := text[start+len("(ID: "):]
	end := strings.Index(rest, ")")
	if end < 0 {
		t.Fatalf("unterminated request ID in result: %s", text)
	}
	return rest[:end]
}

func TestHandoffTools_FullCycle(t *testing.T) {
	dual, mgr := newTestEnv(t)
	id := startFrame(t, dual, "finished work")
	if _, err := dual.Active().Pop(id, "done"); err != nil {
		t.Fatal(err)
	}

	reqID := runHandoff(t, dual, mgr, id)

	approve := NewHandoffApproveTool(mgr, "bob")
	result, err := approve.Handle(context.Background(), makeReq(map[string]interface{}{
		"request_id": reqID,
		"decision":   "approved",
	}))
	mustNotError(t, result, err)
	if !strings.Contains(resultText(result), "completed") {
		t.Errorf("approval result should report completion, got: %s", resultText(result))
	}

	progress := NewHandoffProgressTool(mgr)
	result, err = progress.Handle(context.Background(), makeReq(map[string]interface{}{
		"request_id": reqID,
	}))
	mustNotError(t, result, err)
	text := resultText(result)
	if !strings.Contains(text, "completed") || !strings.Contains(text, "1/1") {
		t.Errorf("progress output = %s, want completed 1/1", text)
	}

	f, err := dual.Store().GetFrame(id)
	if err != nil {
		t.Fatal(err)
	}
	if f.StackID != "team" {
		t.Errorf("frame StackID = %q, want team", f.StackID)
	}
}

func TestHandoffCancelTool_RequiresReason(t *testing.T) {
	_, mgr := newTestEnv(t)
	tool := NewHandoffCancelTool(mgr, "alice")

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"request_id": "some-request",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Error("expected an error result for a missing reason")
	}
}

func TestInboxTool_DefaultsToActor(t *testing.T) {
	dual, mgr := newTestEnv(t)
	id := startFrame(t, dual, "work")
	if _, err := dual.Active().Pop(id, "done"); err != nil {
		t.Fatal(err)
	}
	runHandoff(t, dual, mgr, id)

	tool := NewInboxTool(mgr, "bob")
	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	mustNotError(t, result, err)
	if !strings.Contains(resultText(result), "request") {
		t.Errorf("reviewer inbox should show the pending request, got: %s", resultText(result))
	}
}

func TestMetricsTool_EmptyHistory(t *testing.T) {
	_, mgr := newTestEnv(t)
	tool := NewMetricsTool(mgr)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	mustNotError(t, result, err)
	if !strings.Contains(resultText(result), "Total handoffs**: 0") {
		t.Errorf("expected zeroed metrics, got: %s", resultText(result))
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func TestIDList(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"a,b,c", 3},
		{" a , b ", 2},
		{"", 0},
		{",,", 0},
	}
	for _, tt := range tests {
		if got := idList(tt.in); len(got) != tt.want {
			t.Errorf("idList(%q) = %v, want %d entries", tt.in, got, tt.want)
		}
	}
}
