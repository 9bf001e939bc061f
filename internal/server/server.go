// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools that depend on abstractions. No business
// logic lives here — only wiring.
package server

import (
	"fmt"
	"os"

	"github.com/framestack/framestack/internal/config"
	"github.com/framestack/framestack/internal/frame"
	"github.com/framestack/framestack/internal/frametools"
	"github.com/framestack/framestack/internal/handoff"
	"github.com/framestack/framestack/internal/permission"
	"github.com/framestack/framestack/internal/prompts"
	"github.com/framestack/framestack/internal/stack"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all tools and prompts
// registered. This is the single place where all dependencies are resolved.
//
// The returned cleanup function stops reminder timers and closes the frame
// store's database connection; it must be called on shutdown (typically via
// defer) and is always non-nil.
func New(cfg config.Config) (*server.MCPServer, func(), error) {
	log := newLogger(cfg.LogLevel)

	store, err := frame.New(frame.Config{
		DataDir:       cfg.DataDir,
		MaxPathDepth:  64,
		MaxHotEvents:  20,
		MaxHotAnchors: 20,
	})
	if err != nil {
		return nil, noop, fmt.Errorf("opening frame store: %w", err)
	}

	individual := stack.NewManager(store, cfg.IndividualStack, nil)
	team := stack.NewManager(store, cfg.TeamStack, nil)
	dual := stack.NewDualManager(store, individual, team, permission.AllowAll())

	handoffMgr := handoff.NewManager(dual, log, handoff.Options{
		ReminderDelay:   cfg.ReminderDelay,
		PollInterval:    cfg.PollInterval,
		NotificationTTL: cfg.NotificationTTL,
	})

	cleanup := func() {
		handoffMgr.Close()
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("frame store close")
		}
	}

	s := server.NewMCPServer(
		"framestack",
		Version,
		server.WithToolCapabilities(true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Frame tools ---

	startTool := frametools.NewFrameStartTool(dual)
	s.AddTool(startTool.Definition(), startTool.Handle)

	closeTool := frametools.NewFrameCloseTool(dual)
	s.AddTool(closeTool.Definition(), closeTool.Handle)

	anchorTool := frametools.NewAnchorTool(dual)
	s.AddTool(anchorTool.Definition(), anchorTool.Handle)

	eventTool := frametools.NewEventTool(dual)
	s.AddTool(eventTool.Definition(), eventTool.Handle)

	hotStackTool := frametools.NewHotStackTool(dual)
	s.AddTool(hotStackTool.Definition(), hotStackTool.Handle)

	// --- Handoff tools ---
	//
	// Handoffs move frames off the individual stack; the target stack is
	// a tool argument so the same surface works if more stacks are ever
	// configured.

	initiateTool := frametools.NewHandoffInitiateTool(handoffMgr, cfg.ActorID, cfg.IndividualStack)
	s.AddTool(initiateTool.Definition(), initiateTool.Handle)

	approveTool := frametools.NewHandoffApproveTool(handoffMgr, cfg.ActorID)
	s.AddTool(approveTool.Definition(), approveTool.Handle)

	progressTool := frametools.NewHandoffProgressTool(handoffMgr)
	s.AddTool(progressTool.Definition(), progressTool.Handle)

	cancelTool := frametools.NewHandoffCancelTool(handoffMgr, cfg.ActorID)
	s.AddTool(cancelTool.Definition(), cancelTool.Handle)

	inboxTool := frametools.NewInboxTool(handoffMgr, cfg.ActorID)
	s.AddTool(inboxTool.Definition(), inboxTool.Handle)

	metricsTool := frametools.NewMetricsTool(handoffMgr)
	s.AddTool(metricsTool.Definition(), metricsTool.Handle)

	// --- Prompts ---

	resumePrompt := prompts.NewResumePrompt()
	s.AddPrompt(resumePrompt.Definition(), resumePrompt.Handle)

	statusPrompt := prompts.NewHandoffStatusPrompt()
	s.AddPrompt(statusPrompt.Definition(), statusPrompt.Handle)

	return s, cleanup, nil
}

// noop is the default cleanup when initialization fails early.
func noop() {}

// newLogger builds the process logger. Output goes to stderr so the MCP
// stdio transport on stdout stays clean.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Str("service", "framestack").Logger()
}

// serverInstructions returns the system instructions that tell the AI how
// to use Framestack effectively.
func serverInstructions() string {
	return `You have access to Framestack, a persistent stack-based memory for coding work.

## THE MODEL

Work is organized as nested frames on a call-stack, not a flat chat log.
Each unit of work is a frame; starting a sub-task pushes a child frame,
finishing it pops the frame and produces a digest. Decisions, constraints,
and progress live on frames and survive session boundaries.

There are two stacks: your individual stack (where you work) and the team
stack (shared context). Moving frames to the team stack goes through a
reviewed handoff.

## FRAME LIFECYCLE

1. frame_start when you begin a distinct unit of work (kind: task, subtask,
   tool_scope, review, write, or debug). Nested work nests frames.
2. While working, record what matters:
   - frame_anchor for facts, decisions, constraints, interface contracts,
     todos, and risks that must survive summarization. Higher priority
     anchors surface first.
   - frame_event for the running log: messages, observations, tool calls.
3. frame_close when the work is done. Pop children before parents — a frame
   with active children will not close.
4. frame_hot_stack at session start to recover exactly where you were.

## HANDOFFS

To move finished work to the team stack:
1. Close the frames first when you can — active frames can be handed off,
   but work continuing on them will conflict at transfer time.
2. handoff_initiate with the frame IDs, a reviewer, and context. High or
   critical priority schedules a review reminder.
3. The reviewer uses handoff_approve (approved / rejected / needs_changes).
   needs_changes sends the request back to you with feedback.
4. handoff_progress shows where a request stands; handoff_cancel withdraws
   one that has not started transferring.
5. Frames changed after the request was created are excluded from the
   transfer as conflicts; the rest still move. Check handoff_progress for
   the conflict list and re-initiate for the stragglers.

## INBOX

handoff_inbox lists requests awaiting your review, decisions on your
requests, and reminders. Check it at session start.`
}
