// Package prompts provides the MCP prompts that guide an AI assistant
// through recovering and reporting frame context.
package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// ResumePrompt handles the frame-resume MCP prompt.
// It instructs the AI to recover working context from the active stack.
type ResumePrompt struct{}

// NewResumePrompt creates a ResumePrompt.
func NewResumePrompt() *ResumePrompt {
	return &ResumePrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *ResumePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("frame-resume",
		mcp.WithPromptDescription(
			"Resume work from the persistent frame stack. "+
				"Recovers the active path, recent events, and pinned anchors "+
				"so work continues exactly where it left off.",
		),
	)
}

// Handle processes the frame-resume prompt request.
func (p *ResumePrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Resume from frame stack",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Please run `frame_hot_stack` to recover my working context.\n\n" +
						"Then:\n" +
						"1. Summarize the open frames from root to leaf\n" +
						"2. Call out high-priority anchors (constraints, risks, contracts) I must not violate\n" +
						"3. Tell me exactly where work stopped and what the next step is\n" +
						"4. Run `handoff_inbox` and flag anything awaiting my review",
				),
			},
		},
	}, nil
}

// ─── HandoffStatusPrompt ────────────────────────────────────────────────────

// HandoffStatusPrompt handles the handoff-status MCP prompt.
// It instructs the AI to report on outstanding handoffs.
type HandoffStatusPrompt struct{}

// NewHandoffStatusPrompt creates a HandoffStatusPrompt.
func NewHandoffStatusPrompt() *HandoffStatusPrompt {
	return &HandoffStatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *HandoffStatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("handoff-status",
		mcp.WithPromptDescription(
			"Review outstanding handoffs: requests awaiting review, "+
				"in-flight transfers, and recent outcomes.",
		),
	)
}

// Handle processes the handoff-status prompt request.
func (p *HandoffStatusPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Handoff status",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Please run `handoff_inbox` and `handoff_metrics`.\n\n" +
						"Then:\n" +
						"1. List requests that need my decision, oldest first\n" +
						"2. For anything partially completed or failed, run `handoff_progress` and explain what conflicted\n" +
						"3. Recommend what to approve, reject, or retry",
				),
			},
		},
	}, nil
}
