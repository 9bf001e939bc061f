package frametools

import (
	"context"
	"fmt"
	"strings"

	"github.com/framestack/framestack/internal/frame"
	"github.com/framestack/framestack/internal/handoff"
	"github.com/mark3labs/mcp-go/mcp"
)

// HandoffInitiateTool handles the handoff_initiate MCP tool.
type HandoffInitiateTool struct {
	mgr     *handoff.Manager
	actorID string
	source  string
}

// NewHandoffInitiateTool creates a HandoffInitiateTool. The source stack is
// the stack frames are handed off from (typically the individual stack).
func NewHandoffInitiateTool(mgr *handoff.Manager, actorID, sourceStack string) *HandoffInitiateTool {
	return &HandoffInitiateTool{mgr: mgr, actorID: actorID, source: sourceStack}
}

// Definition returns the MCP tool definition for handoff_initiate.
func (t *HandoffInitiateTool) Definition() mcp.Tool {
	return mcp.NewTool("handoff_initiate",
		mcp.WithDescription(
			"Request transfer of frames to another stack. Creates an approval "+
				"workflow — ownership moves only after a reviewer approves.",
		),
		mcp.WithString("target_stack",
			mcp.Required(),
			mcp.Description("Stack to transfer the frames to (e.g. 'team')"),
		),
		mcp.WithString("frame_ids",
			mcp.Required(),
			mcp.Description("Comma-separated frame IDs to transfer"),
		),
		mcp.WithString("reviewer_id",
			mcp.Description("Reviewer to request approval from"),
		),
		mcp.WithString("message",
			mcp.Description("Context for the reviewer"),
		),
		mcp.WithString("priority",
			mcp.Description("Priority: low, normal, high, or critical (default normal). High and critical schedule a review reminder."),
		),
		mcp.WithString("deadline",
			mcp.Description("Optional RFC3339 deadline"),
		),
		mcp.WithString("stakeholders",
			mcp.Description("Comma-separated user IDs to notify"),
		),
	)
}

// Handle processes the handoff_initiate tool call.
func (t *HandoffInitiateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	targetStack := req.GetString("target_stack", "")
	if targetStack == "" {
		return mcp.NewToolResultError("'target_stack' is required"), nil
	}
	frameIDs := idList(req.GetString("frame_ids", ""))
	if len(frameIDs) == 0 {
		return mcp.NewToolResultError("'frame_ids' is required"), nil
	}

	requestID, err := t.mgr.Initiate(t.actorID, t.source, targetStack, frameIDs, handoff.InitiateParams{
		ReviewerID:   req.GetString("reviewer_id", ""),
		Message:      req.GetString("message", ""),
		Priority:     frame.Priority(req.GetString("priority", "normal")),
		Deadline:     req.GetString("deadline", ""),
		Stakeholders: idList(req.GetString("stakeholders", "")),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to initiate handoff: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Handoff requested (ID: %s). %d frame(s) will transfer to %q once approved.",
		requestID, len(frameIDs), targetStack)), nil
}

// ─── HandoffApproveTool ─────────────────────────────────────────────────────

// HandoffApproveTool handles the handoff_approve MCP tool.
type HandoffApproveTool struct {
	mgr     *handoff.Manager
	actorID string
}

// NewHandoffApproveTool creates a HandoffApproveTool.
func NewHandoffApproveTool(mgr *handoff.Manager, actorID string) *HandoffApproveTool {
	return &HandoffApproveTool{mgr: mgr, actorID: actorID}
}

// Definition returns the MCP tool definition for handoff_approve.
func (t *HandoffApproveTool) Definition() mcp.Tool {
	return mcp.NewTool("handoff_approve",
		mcp.WithDescription(
			"Submit a review decision on a handoff request. 'approved' executes the "+
				"transfer, 'rejected' terminates it, 'needs_changes' sends it back to "+
				"the initiator.",
		),
		mcp.WithString("request_id",
			mcp.Required(),
			mcp.Description("Handoff request to decide on"),
		),
		mcp.WithString("decision",
			mcp.Required(),
			mcp.Description("One of: approved, rejected, needs_changes"),
		),
		mcp.WithString("feedback",
			mcp.Description("Review feedback for the initiator"),
		),
	)
}

// Handle processes the handoff_approve tool call.
func (t *HandoffApproveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	requestID := req.GetString("request_id", "")
	decision := req.GetString("decision", "")

	if requestID == "" {
		return mcp.NewToolResultError("'request_id' is required"), nil
	}
	if decision == "" {
		return mcp.NewToolResultError("'decision' is required"), nil
	}

	err := t.mgr.SubmitApproval(t.actorID, requestID, frame.Decision(decision), req.GetString("feedback", ""), nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to submit decision: %v", err)), nil
	}

	progress, err := t.mgr.Progress(requestID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("decision recorded but progress lookup failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Decision %q recorded. Handoff status: %s (%d/%d frames transferred)",
		decision, progress.Status, progress.TransferredFrames, progress.TotalFrames)), nil
}

// ─── HandoffProgressTool ────────────────────────────────────────────────────

// HandoffProgressTool handles the handoff_progress MCP tool.
type HandoffProgressTool struct {
	mgr *handoff.Manager
}

// NewHandoffProgressTool creates a HandoffProgressTool.
func NewHandoffProgressTool(mgr *handoff.Manager) *HandoffProgressTool {
	return &HandoffProgressTool{mgr: mgr}
}

// Definition returns the MCP tool definition for handoff_progress.
func (t *HandoffProgressTool) Definition() mcp.Tool {
	return mcp.NewTool("handoff_progress",
		mcp.WithDescription(
			"Show the current state of a handoff request: status, transfer counts, "+
				"current step, and the error log.",
		),
		mcp.WithString("request_id",
			mcp.Required(),
			mcp.Description("Handoff request to inspect"),
		),
	)
}

// Handle processes the handoff_progress tool call.
func (t *HandoffProgressTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	requestID := req.GetString("request_id", "")
	if requestID == "" {
		return mcp.NewToolResultError("'request_id' is required"), nil
	}

	p, err := t.mgr.Progress(requestID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get progress: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Handoff %s\n\n", p.RequestID))
	sb.WriteString(fmt.Sprintf("- **Status**: %s\n", p.Status))
	sb.WriteString(fmt.Sprintf("- **Frames**: %d/%d transferred\n", p.TransferredFrames, p.TotalFrames))
	sb.WriteString(fmt.Sprintf("- **Step**: %s\n", p.CurrentStep))
	if p.EstimatedCompletion != "" {
		sb.WriteString(fmt.Sprintf("- **ETA**: %s\n", p.EstimatedCompletion))
	}
	if len(p.Errors) > 0 {
		sb.WriteString(fmt.Sprintf("\n**Errors** (%d):\n", len(p.Errors)))
		for _, e := range p.Errors {
			sb.WriteString(fmt.Sprintf("- [%s] %s (%s)\n", e.Step, e.Message, e.CreatedAt))
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// ─── HandoffCancelTool ──────────────────────────────────────────────────────

// HandoffCancelTool handles the handoff_cancel MCP tool.
type HandoffCancelTool struct {
	mgr     *handoff.Manager
	actorID string
}

// NewHandoffCancelTool creates a HandoffCancelTool.
func NewHandoffCancelTool(mgr *handoff.Manager, actorID string) *HandoffCancelTool {
	return &HandoffCancelTool{mgr: mgr, actorID: actorID}
}

// Definition returns the MCP tool definition for handoff_cancel.
func (t *HandoffCancelTool) Definition() mcp.Tool {
	return mcp.NewTool("handoff_cancel",
		mcp.WithDescription(
			"Cancel a handoff request that has not started transferring. "+
				"A handoff in transfer cannot be cancelled.",
		),
		mcp.WithString("request_id",
			mcp.Required(),
			mcp.Description("Handoff request to cancel"),
		),
		mcp.WithString("reason",
			mcp.Required(),
			mcp.Description("Why the handoff is being cancelled (kept as an audit entry)"),
		),
	)
}

// Handle processes the handoff_cancel tool call.
func (t *HandoffCancelTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	requestID := req.GetString("request_id", "")
	reason := req.GetString("reason", "")

	if requestID == "" {
		return mcp.NewToolResultError("'request_id' is required"), nil
	}
	if strings.TrimSpace(reason) == "" {
		return mcp.NewToolResultError("'reason' is required"), nil
	}

	if err := t.mgr.Cancel(t.actorID, requestID, reason); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to cancel handoff: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Handoff %s cancelled.", requestID)), nil
}

// ─── InboxTool ──────────────────────────────────────────────────────────────

// InboxTool handles the handoff_inbox MCP tool.
type InboxTool struct {
	mgr     *handoff.Manager
	actorID string
}

// NewInboxTool creates an InboxTool.
func NewInboxTool(mgr *handoff.Manager, actorID string) *InboxTool {
	return &InboxTool{mgr: mgr, actorID: actorID}
}

// Definition returns the MCP tool definition for handoff_inbox.
func (t *InboxTool) Definition() mcp.Tool {
	return mcp.NewTool("handoff_inbox",
		mcp.WithDescription(
			"List handoff notifications for a recipient — requests awaiting review, "+
				"decisions, completions, and reminders.",
		),
		mcp.WithString("recipient",
			mcp.Description("Recipient inbox to read (default: the local actor)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max entries (default 20)"),
		),
	)
}

// Handle processes the handoff_inbox tool call.
func (t *InboxTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recipient := req.GetString("recipient", t.actorID)

	notifications, err := t.mgr.Inbox(recipient, intArg(req, "limit", 20))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read inbox: %v", err)), nil
	}
	if len(notifications) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No notifications for %q.", recipient)), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Inbox: %s (%d)\n\n", recipient, len(notifications)))
	for _, n := range notifications {
		marker := ""
		if n.ActionRequired {
			marker = " (action required)"
		}
		sb.WriteString(fmt.Sprintf("- **[%s]%s %s** — %s (request %s, %s)\n",
			n.Kind, marker, n.Title, n.Message, n.RequestID, n.CreatedAt))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// ─── MetricsTool ────────────────────────────────────────────────────────────

// MetricsTool handles the handoff_metrics MCP tool.
type MetricsTool struct {
	mgr *handoff.Manager
}

// NewMetricsTool creates a MetricsTool.
func NewMetricsTool(mgr *handoff.Manager) *MetricsTool {
	return &MetricsTool{mgr: mgr}
}

// Definition returns the MCP tool definition for handoff_metrics.
func (t *MetricsTool) Definition() mcp.Tool {
	return mcp.NewTool("handoff_metrics",
		mcp.WithDescription(
			"Show handoff analytics — totals, completion counts, average processing "+
				"time, frame-kind histogram, and collaboration patterns.",
		),
		mcp.WithString("since",
			mcp.Description("Only include requests created at or after this RFC3339 time"),
		),
		mcp.WithString("until",
			mcp.Description("Only include requests created at or before this RFC3339 time"),
		),
	)
}

// Handle processes the handoff_metrics tool call.
func (t *MetricsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metrics, err := t.mgr.Metrics(req.GetString("since", ""), req.GetString("until", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to compute metrics: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString("## Handoff Metrics\n\n")
	sb.WriteString(fmt.Sprintf("- **Total handoffs**: %d\n", metrics.TotalHandoffs))
	sb.WriteString(fmt.Sprintf("- **Completed**: %d\n", metrics.CompletedHandoffs))
	sb.WriteString(fmt.Sprintf("- **Avg processing time**: %s\n", metrics.AverageProcessingTime))

	if len(metrics.TopFrameTypes) > 0 {
		sb.WriteString("\n**Frame kinds**:\n")
		for _, kc := range metrics.TopFrameTypes {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", kc.Kind, kc.Count))
		}
	}
	if len(metrics.CollaborationPatterns) > 0 {
		sb.WriteString("\n**Collaboration**:\n")
		for _, cp := range metrics.CollaborationPatterns {
			sb.WriteString(fmt.Sprintf("- %s → %s: %d\n", cp.SourceStack, cp.TargetStack, cp.Count))
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}
