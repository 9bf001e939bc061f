package frametools

import (
	"context"
	"fmt"
	"strings"

	"github.com/framestack/framestack/internal/frame"
	"github.com/framestack/framestack/internal/stack"
	"github.com/mark3labs/mcp-go/mcp"
)

// FrameStartTool handles the frame_start MCP tool.
type FrameStartTool struct {
	dual *stack.DualManager
}

// NewFrameStartTool creates a FrameStartTool.
func NewFrameStartTool(dual *stack.DualManager) *FrameStartTool {
	return &FrameStartTool{dual: dual}
}

// Definition returns the MCP tool definition for frame_start.
func (t *FrameStartTool) Definition() mcp.Tool {
	return mcp.NewTool("frame_start",
		mcp.WithDescription(
			"Push a new frame onto the active stack. The frame becomes the current "+
				"unit of work, nested under the previous top of the stack.",
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("What this frame is about (e.g. 'implement retry logic')"),
		),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description("Frame kind: task, subtask, tool_scope, review, write, or debug"),
		),
		mcp.WithString("input",
			mcp.Description("Constraints or input context for the work"),
		),
		mcp.WithNumber("score",
			mcp.Description("Importance score 0-1 (default 0.5)"),
		),
	)
}

// Handle processes the frame_start tool call.
func (t *FrameStartTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	kind := req.GetString("kind", "")

	if strings.TrimSpace(name) == "" {
		return mcp.NewToolResultError("'name' is required"), nil
	}
	if kind == "" {
		return mcp.NewToolResultError("'kind' is required"), nil
	}

	id, err := t.dual.Active().Push(frame.Kind(kind), name, stack.PushOptions{
		Score: floatArg(req, "score", 0),
		Input: req.GetString("input", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start frame: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Frame %q started (ID: %s)", name, id)), nil
}

// ─── FrameCloseTool ─────────────────────────────────────────────────────────

// FrameCloseTool handles the frame_close MCP tool.
type FrameCloseTool struct {
	dual *stack.DualManager
}

// NewFrameCloseTool creates a FrameCloseTool.
func NewFrameCloseTool(dual *stack.DualManager) *FrameCloseTool {
	return &FrameCloseTool{dual: dual}
}

// Definition returns the MCP tool definition for frame_close.
func (t *FrameCloseTool) Definition() mcp.Tool {
	return mcp.NewTool("frame_close",
		mcp.WithDescription(
			"Pop a frame off the active stack, producing its digest. Fails while "+
				"the frame still has active child frames.",
		),
		mcp.WithString("frame_id",
			mcp.Required(),
			mcp.Description("Frame to close"),
		),
		mcp.WithString("output",
			mcp.Description("Result or outcome of the work"),
		),
	)
}

// Handle processes the frame_close tool call.
func (t *FrameCloseTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	frameID := req.GetString("frame_id", "")
	if frameID == "" {
		return mcp.NewToolResultError("'frame_id' is required"), nil
	}

	digest, err := t.dual.Active().Pop(frameID, req.GetString("output", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to close frame: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Frame closed.\n\nDigest: %s", digest)), nil
}

// ─── AnchorTool ─────────────────────────────────────────────────────────────

// AnchorTool handles the frame_anchor MCP tool.
type AnchorTool struct {
	dual *stack.DualManager
}

// NewAnchorTool creates an AnchorTool.
func NewAnchorTool(dual *stack.DualManager) *AnchorTool {
	return &AnchorTool{dual: dual}
}

// Definition returns the MCP tool definition for frame_anchor.
func (t *AnchorTool) Definition() mcp.Tool {
	return mcp.NewTool("frame_anchor",
		mcp.WithDescription(
			"Pin an immutable, prioritized annotation to a frame — a fact, decision, "+
				"constraint, interface contract, todo, or risk that must survive summarization.",
		),
		mcp.WithString("frame_id",
			mcp.Required(),
			mcp.Description("Frame to annotate"),
		),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description("Anchor kind: fact, decision, constraint, interface_contract, todo, or risk"),
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The annotation text"),
		),
		mcp.WithNumber("priority",
			mcp.Description("Priority 0-10 (default 5)"),
		),
	)
}

// Handle processes the frame_anchor tool call.
func (t *AnchorTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	frameID := req.GetString("frame_id", "")
	kind := req.GetString("kind", "")
	text := req.GetString("text", "")

	if frameID == "" {
		return mcp.NewToolResultError("'frame_id' is required"), nil
	}
	if kind == "" {
		return mcp.NewToolResultError("'kind' is required"), nil
	}
	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("'text' is required"), nil
	}

	id, err := t.dual.Active().AddAnchor(frameID, frame.AnchorKind(kind), text, intArg(req, "priority", 5))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to add anchor: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Anchor saved (ID: %d)", id)), nil
}

// ─── EventTool ──────────────────────────────────────────────────────────────

// EventTool handles the frame_event MCP tool.
type EventTool struct {
	dual *stack.DualManager
}

// NewEventTool creates an EventTool.
func NewEventTool(dual *stack.DualManager) *EventTool {
	return &EventTool{dual: dual}
}

// Definition returns the MCP tool definition for frame_event.
func (t *EventTool) Definition() mcp.Tool {
	return mcp.NewTool("frame_event",
		mcp.WithDescription(
			"Append an entry to a frame's event log — a message, decision, "+
				"observation, or tool call.",
		),
		mcp.WithString("frame_id",
			mcp.Required(),
			mcp.Description("Frame to log against"),
		),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description("Event kind: user_message, assistant_message, decision, observation, tool_call, status_change, or handoff"),
		),
		mcp.WithString("payload",
			mcp.Required(),
			mcp.Description("Event content"),
		),
	)
}

// Handle processes the frame_event tool call.
func (t *EventTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	frameID := req.GetString("frame_id", "")
	kind := req.GetString("kind", "")
	payload := req.GetString("payload", "")

	if frameID == "" {
		return mcp.NewToolResultError("'frame_id' is required"), nil
	}
	if kind == "" {
		return mcp.NewToolResultError("'kind' is required"), nil
	}
	if payload == "" {
		return mcp.NewToolResultError("'payload' is required"), nil
	}

	id, err := t.dual.Active().AddEvent(frameID, frame.EventKind(kind), payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to add event: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Event logged (ID: %d)", id)), nil
}

// ─── HotStackTool ───────────────────────────────────────────────────────────

// HotStackTool handles the frame_hot_stack MCP tool.
type HotStackTool struct {
	dual *stack.DualManager
}

// NewHotStackTool creates a HotStackTool.
func NewHotStackTool(dual *stack.DualManager) *HotStackTool {
	return &HotStackTool{dual: dual}
}

// Definition returns the MCP tool definition for frame_hot_stack.
func (t *HotStackTool) Definition() mcp.Tool {
	return mcp.NewTool("frame_hot_stack",
		mcp.WithDescription(
			"Get the active frame path (root to leaf) with each frame's recent "+
				"events and anchors. Call at session start to recover working context.",
		),
		mcp.WithNumber("max_events",
			mcp.Description("Max events/anchors per frame (default 10)"),
		),
	)
}

// Handle processes the frame_hot_stack tool call.
func (t *HotStackTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hot, err := t.dual.Active().HotStack(intArg(req, "max_events", 10))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to build hot stack: %v", err)), nil
	}

	if len(hot) == 0 {
		return mcp.NewToolResultText("The active stack is empty — no open frames."), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Active Stack (%d frames)\n", len(hot)))
	for depth, hf := range hot {
		f := hf.Frame
		sb.WriteString(fmt.Sprintf("\n%s- **[%s] %s** (ID: %s, v%d)\n",
			strings.Repeat("  ", depth), f.Kind, f.Name, f.ID, f.Version))
		for _, a := range hf.Anchors {
			sb.WriteString(fmt.Sprintf("%s  - anchor [%s/p%d]: %s\n",
				strings.Repeat("  ", depth), a.Kind, a.Priority, a.Text))
		}
		for _, e := range hf.Events {
			sb.WriteString(fmt.Sprintf("%s  - event [%s]: %s\n",
				strings.Repeat("  ", depth), e.Kind, e.Payload))
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}
