package stack

import (
	"fmt"

	apperr "github.com/framestack/framestack/internal/errors"
	"github.com/framestack/framestack/internal/frame"
	"github.com/framestack/framestack/internal/permission"
)

// DualManager owns the two frame managers of a deployment — the caller's
// individual stack and the shared team stack — plus the permission manager
// that authorizes handoff actions between them.
//
// It implements the two halves of the ownership-transfer primitive:
// InitiateHandoff snapshots frame versions into a durable request without
// touching ownership, and AcceptHandoff replays that snapshot against the
// live frames, moving only the ones whose version is unchanged. Approval
// orchestration lives a layer up, in the handoff package.
type DualManager struct {
	store      *frame.Store
	individual *Manager
	team       *Manager
	perms      permission.Manager
	activeID   string
}

// NewDualManager creates a DualManager over one shared store. The active
// stack starts as the individual stack.
func NewDualManager(store *frame.Store, individual, team *Manager, perms permission.Manager) *DualManager {
	if perms == nil {
		perms = permission.AllowAll()
	}
	return &DualManager{
		store:      store,
		individual: individual,
		team:       team,
		perms:      perms,
		activeID:   individual.StackID(),
	}
}

// Store exposes the shared frame store for layers that persist their own
// records alongside the frames (handoff progress, notifications).
func (d *DualManager) Store() *frame.Store { return d.store }

// Active returns the manager of the currently selected stack.
func (d *DualManager) Active() *Manager {
	if d.activeID == d.team.StackID() {
		return d.team
	}
	return d.individual
}

// SelectStack switches the active stack for the calling context.
func (d *DualManager) SelectStack(stackID string) error {
	switch stackID {
	case d.individual.StackID(), d.team.StackID():
		d.activeID = stackID
		return nil
	}
	return apperr.NotFoundf("stack %q", stackID)
}

// Stack returns the manager for a stack ID.
func (d *DualManager) Stack(stackID string) (*Manager, error) {
	switch stackID {
	case d.individual.StackID():
		return d.individual, nil
	case d.team.StackID():
		return d.team, nil
	}
	return nil, apperr.NotFoundf("stack %q", stackID)
}

// EnforcePermission delegates an authorization check to the permission
// manager.
func (d *DualManager) EnforcePermission(ctx permission.Context) error {
	return d.perms.Enforce(ctx)
}

// InitiateParams carries the business metadata of a handoff request.
type InitiateParams struct {
	InitiatorID  string
	ReviewerID   string
	Message      string
	Priority     frame.Priority
	Deadline     string
	Stakeholders []string
}

// InitiateHandoff validates that every named frame exists on the source
// stack, snapshots each frame's current version, and persists a handoff
// request. Ownership is not mutated: the frames keep working on the source
// stack until the request is approved and transferred.
func (d *DualManager) InitiateHandoff(sourceStack, targetStack string, frameIDs []string, p InitiateParams) (string, error) {
	if sourceStack == targetStack {
		return "", apperr.Validationf("source and target stack are both %q", sourceStack)
	}
	if _, err := d.Stack(targetStack); err != nil {
		return "", err
	}
	if len(frameIDs) == 0 {
		return "", apperr.Validationf("handoff needs at least one frame")
	}
	if p.Priority == "" {
		p.Priority = frame.PriorityNormal
	}
	if err := frame.ValidatePriority(p.Priority); err != nil {
		return "", fmt.Errorf("%w: %s", apperr.ErrValidation, err)
	}

	versions := make(map[string]int64, len(frameIDs))
	for _, id := range frameIDs {
		f, err := d.store.GetFrame(id)
		if err != nil {
			return "", err
		}
		if f.StackID != sourceStack {
			return "", apperr.Validationf("frame %q is owned by stack %q, not %q", id, f.StackID, sourceStack)
		}
		versions[id] = f.Version
	}

	return d.store.CreateHandoffRequest(frame.CreateHandoffRequestParams{
		SourceStack:   sourceStack,
		TargetStack:   targetStack,
		FrameIDs:      frameIDs,
		FrameVersions: versions,
		InitiatorID:   p.InitiatorID,
		ReviewerID:    p.ReviewerID,
		Message:       p.Message,
		Priority:      p.Priority,
		Deadline:      p.Deadline,
		Stakeholders:  p.Stakeholders,
	})
}

// FrameError pairs a frame ID with the error that kept it from merging.
type FrameError struct {
	FrameID string `json:"frame_id"`
	Error   string `json:"error"`
}

// MergeResult is the frame-granular outcome of AcceptHandoff.
type MergeResult struct {
	Merged    []string     `json:"merged"`
	Conflicts []string     `json:"conflicts"`
	Errors    []FrameError `json:"errors,omitempty"`
	Success   bool         `json:"success"`
}

// AcceptHandoff performs the ownership transfer for a request. Each frame
// is compared against the version captured at request creation: unchanged
// frames move to the target stack with a version bump, changed frames are
// reported as conflicts and keep their current owner. The merge is
// frame-granular — cleanly merging frames stay merged even when siblings in
// the same request conflict. Success is true only when there are no
// conflicts and no per-frame errors.
func (d *DualManager) AcceptHandoff(requestID string) (*MergeResult, error) {
	req, err := d.store.GetHandoffRequest(requestID)
	if err != nil {
		return nil, err
	}

	result := &MergeResult{Merged: []string{}, Conflicts: []string{}}
	for _, id := range req.FrameIDs {
		expected, ok := req.FrameVersions[id]
		if !ok {
			result.Errors = append(result.Errors, FrameError{FrameID: id, Error: "no version captured at request creation"})
			continue
		}

		err := d.store.TransferFrame(id, req.TargetStack, expected)
		switch {
		case err == nil:
			result.Merged = append(result.Merged, id)
			// Best-effort audit event on the moved frame.
			payload := fmt.Sprintf(`{"request_id":%q,"from":%q,"to":%q}`, requestID, req.SourceStack, req.TargetStack)
			_, _ = d.store.AddEvent(id, frame.EventHandoff, payload)
		case apperr.Is(err, apperr.ErrVersionConflict):
			result.Conflicts = append(result.Conflicts, id)
		default:
			result.Errors = append(result.Errors, FrameError{FrameID: id, Error: err.Error()})
		}
	}

	result.Success = len(result.Conflicts) == 0 && len(result.Errors) == 0
	return result, nil
}
