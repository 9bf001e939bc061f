// Package stack implements the per-stack Frame Manager and the Dual-Stack
// Manager that coordinates handoffs between an individual stack and a team
// stack.
//
// A stack is a named, independently owned collection of frames. Ordinary
// work happens on one stack through a Manager: push opens a frame under the
// current top of the active path, pop closes it with a digest, anchors and
// events accumulate while it is open. Moving frames between stacks goes
// through the DualManager's handoff request/merge protocol instead.
package stack

import (
	"fmt"
	"strings"

	apperr "github.com/framestack/framestack/internal/errors"
	"github.com/framestack/framestack/internal/frame"
)

// Summarizer produces a frame's closing digest from its accumulated state.
// The default implementation builds a compact text digest; an LLM-backed
// summarizer plugs in through the same interface.
type Summarizer interface {
	Digest(f *frame.Frame, events []frame.Event, anchors []frame.Anchor, output string) string
}

// Manager exposes push/pop/query operations for a single stack.
type Manager struct {
	store      *frame.Store
	stackID    string
	summarizer Summarizer
}

// NewManager creates a Manager for one stack. A nil summarizer falls back
// to the built-in text digest.
func NewManager(store *frame.Store, stackID string, summarizer Summarizer) *Manager {
	if summarizer == nil {
		summarizer = textSummarizer{}
	}
	return &Manager{store: store, stackID: stackID, summarizer: summarizer}
}

// StackID returns the identifier of the stack this manager owns.
func (m *Manager) StackID() string { return m.stackID }

// PushOptions carries the optional fields of a push.
type PushOptions struct {
	Score float64
	Input string
}

// Push creates a new active frame whose parent is the current top of the
// active path (or none when the stack is empty).
func (m *Manager) Push(kind frame.Kind, name string, opts PushOptions) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", apperr.Validationf("frame name must not be empty")
	}
	if err := frame.ValidateKind(kind); err != nil {
		return "", fmt.Errorf("%w: %s", apperr.ErrValidation, err)
	}

	path, err := m.store.ActivePath(m.stackID)
	if err != nil {
		return "", err
	}
	var parentID *string
	if len(path) > 0 {
		top := path[len(path)-1].ID
		parentID = &top
	}

	score := opts.Score
	if score == 0 {
		score = 0.5
	}

	return m.store.CreateFrame(frame.CreateFrameParams{
		StackID:  m.stackID,
		ParentID: parentID,
		Kind:     kind,
		Name:     name,
		Score:    score,
		Input:    opts.Input,
	})
}

// Pop closes an active frame, producing its digest. A frame with active
// children cannot close: children must be popped first.
func (m *Manager) Pop(frameID, output string) (string, error) {
	f, err := m.store.GetFrame(frameID)
	if err != nil {
		return "", err
	}
	if f.Status != frame.StatusActive {
		return "", apperr.InvalidStatef("frame %q is %s, not active", frameID, f.Status)
	}

	children, err := m.store.ActiveChildren(frameID)
	if err != nil {
		return "", err
	}
	if children > 0 {
		return "", apperr.InvalidStatef("frame %q has %d active children", frameID, children)
	}

	events, err := m.store.ListEvents(frameID, 0)
	if err != nil {
		return "", err
	}
	anchors, err := m.store.ListAnchors(frameID, 0)
	if err != nil {
		return "", err
	}

	digest := m.summarizer.Digest(f, events, anchors, output)
	if err := m.store.CloseFrame(frameID, output, digest); err != nil {
		return "", err
	}
	return digest, nil
}

// AddAnchor appends a prioritized annotation to a frame.
func (m *Manager) AddAnchor(frameID string, kind frame.AnchorKind, text string, priority int) (int64, error) {
	if strings.TrimSpace(text) == "" {
		return 0, apperr.Validationf("anchor text must not be empty")
	}
	if err := frame.ValidateAnchorKind(kind); err != nil {
		return 0, fmt.Errorf("%w: %s", apperr.ErrValidation, err)
	}
	return m.store.AddAnchor(frameID, kind, text, priority)
}

// AddEvent appends an entry to a frame's event log.
func (m *Manager) AddEvent(frameID string, kind frame.EventKind, payload string) (int64, error) {
	if err := frame.ValidateEventKind(kind); err != nil {
		return 0, fmt.Errorf("%w: %s", apperr.ErrValidation, err)
	}
	return m.store.AddEvent(frameID, kind, payload)
}

// ActivePath returns the root-to-leaf chain of currently open frames.
func (m *Manager) ActivePath() ([]frame.Frame, error) {
	return m.store.ActivePath(m.stackID)
}

// HotFrame is one active-path entry with its recent events and anchors.
type HotFrame struct {
	Frame   frame.Frame    `json:"frame"`
	Events  []frame.Event  `json:"events,omitempty"`
	Anchors []frame.Anchor `json:"anchors,omitempty"`
}

// HotStack assembles the active path with each frame's recent events and
// anchors — the working context handed to a caller resuming a session.
func (m *Manager) HotStack(maxEvents int) ([]HotFrame, error) {
	path, err := m.store.ActivePath(m.stackID)
	if err != nil {
		return nil, err
	}

	hot := make([]HotFrame, 0, len(path))
	for _, f := range path {
		events, err := m.store.ListEvents(f.ID, maxEvents)
		if err != nil {
			return nil, err
		}
		anchors, err := m.store.ListAnchors(f.ID, maxEvents)
		if err != nil {
			return nil, err
		}
		hot = append(hot, HotFrame{Frame: f, Events: events, Anchors: anchors})
	}
	return hot, nil
}

// Query runs a direct lookup over this stack's frames. Ranked and semantic
// retrieval belong to the external search engine, not here.
func (m *Manager) Query(f frame.Filter) ([]frame.Frame, error) {
	f.StackID = m.stackID
	return m.store.ListFrames(f)
}

// --- Default summarizer ---

// textSummarizer builds a compact digest without calling out to a model:
// the frame name, its top anchors by priority, its event count, and the
// closing output.
type textSummarizer struct{}

func (textSummarizer) Digest(f *frame.Frame, events []frame.Event, anchors []frame.Anchor, output string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %q closed after %d events.", f.Kind, f.Name, len(events)))

	shown := 0
	for _, a := range anchors {
		if shown >= 3 {
			break
		}
		sb.WriteString(fmt.Sprintf(" [%s] %s.", a.Kind, strings.TrimSuffix(a.Text, ".")))
		shown++
	}
	if output != "" {
		sb.WriteString(" Output: " + output)
	}
	return sb.String()
}
