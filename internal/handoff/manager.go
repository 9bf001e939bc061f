package handoff

import (
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	apperr "github.com/framestack/framestack/internal/errors"
	"github.com/framestack/framestack/internal/frame"
	"github.com/framestack/framestack/internal/permission"
	"github.com/framestack/framestack/internal/stack"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Options tunes the manager's background behavior.
type Options struct {
	// ReminderDelay is how long a high/critical request may sit in
	// pending_review before a reminder notification fires.
	ReminderDelay time.Duration
	// PollInterval is the status stream's polling cadence.
	PollInterval time.Duration
	// NotificationTTL is how long inbox entries live before pruning.
	NotificationTTL time.Duration
	// MaxTransferRetry bounds the retry window for transient store
	// failures during transfer execution.
	MaxTransferRetry time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		ReminderDelay:    4 * time.Hour,
		PollInterval:     2 * time.Second,
		NotificationTTL:  7 * 24 * time.Hour,
		MaxTransferRetry: 10 * time.Second,
	}
}

// Manager drives the handoff approval workflow on top of the dual-stack
// manager. Each request is an independent workflow; the only shared mutable
// state is the reminder timer table.
type Manager struct {
	dual  *stack.DualManager
	store *frame.Store
	log   zerolog.Logger
	opts  Options

	mu        sync.Mutex
	reminders map[string]*time.Timer
	closed    bool
}

// NewManager creates a handoff manager.
func NewManager(dual *stack.DualManager, log zerolog.Logger, opts Options) *Manager {
	if opts.ReminderDelay <= 0 {
		opts.ReminderDelay = DefaultOptions().ReminderDelay
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	if opts.NotificationTTL <= 0 {
		opts.NotificationTTL = DefaultOptions().NotificationTTL
	}
	if opts.MaxTransferRetry <= 0 {
		opts.MaxTransferRetry = DefaultOptions().MaxTransferRetry
	}
	return &Manager{
		dual:      dual,
		store:     dual.Store(),
		log:       log,
		opts:      opts,
		reminders: make(map[string]*time.Timer),
	}
}

// Close stops every outstanding reminder timer. Pending reminders are
// dropped, not fired.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for id, t := range m.reminders {
		t.Stop()
		delete(m.reminders, id)
	}
}

// InitiateParams is re-exported so callers don't import stack directly.
type InitiateParams = stack.InitiateParams

// Initiate starts a handoff: permission check, frame validation, durable
// request + progress records, notification fan-out, and a reminder timer
// for high/critical priority. Returns the new request ID.
func (m *Manager) Initiate(actorID, sourceStack, targetStack string, frameIDs []string, p InitiateParams) (string, error) {
	ctx := permission.NewContext(actorID, permission.ActionInitiate, "handoff", targetStack)
	if err := m.dual.EnforcePermission(ctx); err != nil {
		return "", err
	}
	if p.InitiatorID == "" {
		p.InitiatorID = actorID
	}

	// Closed frames transfer cleanly; an active frame is allowed through
	// but flagged, because ongoing work on it is the likeliest source of a
	// version conflict at transfer time.
	for _, id := range frameIDs {
		f, err := m.store.GetFrame(id)
		if err != nil {
			return "", err
		}
		if f.Status == frame.StatusActive {
			m.log.Warn().Str("frame", id).Str("name", f.Name).
				Msg("handing off an active frame; it may conflict if work continues")
		}
	}

	requestID, err := m.dual.InitiateHandoff(sourceStack, targetStack, frameIDs, p)
	if err != nil {
		return "", err
	}

	if err := m.store.CreateProgress(requestID, len(frameIDs), stepAwaitingReview); err != nil {
		return "", err
	}

	req, err := m.store.GetHandoffRequest(requestID)
	if err != nil {
		return "", err
	}

	recipients := append([]string{m.reviewTarget(req)}, req.Stakeholders...)
	m.notify(req, frame.NotifyRequest, recipients,
		fmt.Sprintf("Handoff requested: %d frame(s) to %s", len(frameIDs), targetStack),
		p.Message, true)

	if req.Priority == frame.PriorityHigh || req.Priority == frame.PriorityCritical {
		m.scheduleReminder(requestID)
	}

	m.log.Info().Str("request", requestID).Str("source", sourceStack).
		Str("target", targetStack).Int("frames", len(frameIDs)).
		Str("priority", string(req.Priority)).Msg("handoff initiated")
	return requestID, nil
}

// SubmitApproval records a reviewer decision and advances the workflow:
// approved drives the transfer, rejected terminates the request, and
// needs_changes loops it back to the initiator.
func (m *Manager) SubmitApproval(actorID, requestID string, decision frame.Decision, feedback string, suggested map[string]string) error {
	if err := frame.ValidateDecision(decision); err != nil {
		return fmt.Errorf("%w: %s", apperr.ErrValidation, err)
	}
	ctx := permission.NewContext(actorID, permission.ActionApprove, "handoff", requestID)
	if err := m.dual.EnforcePermission(ctx); err != nil {
		return err
	}

	progress, err := m.store.GetProgress(requestID)
	if err != nil {
		return err
	}
	if progress.Status != frame.HandoffPendingReview {
		return apperr.InvalidStatef("handoff %q is %s, not awaiting review", requestID, progress.Status)
	}

	// The store rejects a second terminal decision inside a transaction,
	// so the status checks below can't be raced into a double-settle.
	if _, err := m.store.AddApproval(requestID, actorID, decision, feedback, suggested); err != nil {
		return err
	}

	req, err := m.store.GetHandoffRequest(requestID)
	if err != nil {
		return err
	}

	switch decision {
	case frame.DecisionApproved:
		if err := m.store.SetProgressStatus(requestID, frame.HandoffPendingReview, frame.HandoffApproved, stepApproved); err != nil {
			return err
		}
		m.cancelReminder(requestID)
		m.log.Info().Str("request", requestID).Str("reviewer", actorID).Msg("handoff approved")
		return m.ExecuteTransfer(requestID)

	case frame.DecisionRejected:
		if err := m.store.SetProgressStatus(requestID, frame.HandoffPendingReview, frame.HandoffFailed, stepFailed); err != nil {
			return err
		}
		m.cancelReminder(requestID)
		if err := m.store.AppendProgressError(requestID, StepReview, "rejected: "+feedback); err != nil {
			return err
		}
		m.notify(req, frame.NotifyRejection, []string{req.InitiatorID},
			"Handoff rejected", feedback, false)
		m.log.Info().Str("request", requestID).Str("reviewer", actorID).Msg("handoff rejected")
		return nil

	default: // needs_changes
		if err := m.store.SetProgressStatus(requestID, frame.HandoffPendingReview, frame.HandoffPendingReview, stepChangesAsked); err != nil {
			return err
		}
		m.notify(req, frame.NotifyChangesRequested, []string{req.InitiatorID},
			"Changes requested on handoff", feedback, true)
		m.log.Info().Str("request", requestID).Str("reviewer", actorID).Msg("handoff changes requested")
		return nil
	}
}

// ExecuteTransfer runs the merge for an approved request and settles the
// workflow: completed when every frame moved, partially_completed when some
// moved and the rest conflicted, failed on per-frame errors or when nothing
// moved. Every failure is recorded in the durable error log before being
// returned, so the persisted state reflects the outcome even if the caller
// drops the error.
func (m *Manager) ExecuteTransfer(requestID string) error {
	if err := m.store.SetProgressStatus(requestID, frame.HandoffApproved, frame.HandoffInTransfer, stepTransferring); err != nil {
		return err
	}

	result, err := m.mergeWithRetry(requestID)
	if err != nil {
		m.failTransfer(requestID, err.Error())
		return apperr.Operationf(err, "transfer of handoff %q", requestID)
	}

	if err := m.store.SetTransferred(requestID, len(result.Merged)); err != nil {
		m.failTransfer(requestID, err.Error())
		return err
	}
	for _, fe := range result.Errors {
		m.appendError(requestID, StepTransfer, fmt.Sprintf("frame %s: %s", fe.FrameID, fe.Error))
	}
	for _, id := range result.Conflicts {
		m.appendError(requestID, StepTransfer, fmt.Sprintf("frame %s: changed since request creation, not transferred", id))
	}

	req, err := m.store.GetHandoffRequest(requestID)
	if err != nil {
		return err
	}
	recipients := append([]string{req.InitiatorID, m.reviewTarget(req)}, req.Stakeholders...)

	switch {
	case result.Success:
		if err := m.store.SetProgressStatus(requestID, frame.HandoffInTransfer, frame.HandoffCompleted, stepDone); err != nil {
			return err
		}
		m.notify(req, frame.NotifyCompletion, recipients,
			"Handoff completed",
			fmt.Sprintf("%d frame(s) transferred to %s", len(result.Merged), req.TargetStack), false)
		m.log.Info().Str("request", requestID).Int("merged", len(result.Merged)).Msg("handoff completed")
		return nil

	case len(result.Errors) == 0 && len(result.Merged) > 0:
		// Conflicted frames stay with the source; the moved ones stay
		// moved. The conflict list is in the error log for retry.
		if err := m.store.SetProgressStatus(requestID, frame.HandoffInTransfer, frame.HandoffPartiallyCompleted, stepPartial); err != nil {
			return err
		}
		m.notify(req, frame.NotifyCompletion, recipients,
			"Handoff partially completed",
			fmt.Sprintf("%d of %d frame(s) transferred to %s; %d conflicted",
				len(result.Merged), len(req.FrameIDs), req.TargetStack, len(result.Conflicts)), false)
		m.log.Warn().Str("request", requestID).Int("merged", len(result.Merged)).
			Int("conflicts", len(result.Conflicts)).Msg("handoff partially completed")
		return nil

	default:
		if err := m.store.SetProgressStatus(requestID, frame.HandoffInTransfer, frame.HandoffFailed, stepFailed); err != nil {
			return err
		}
		m.log.Error().Str("request", requestID).Int("conflicts", len(result.Conflicts)).
			Int("errors", len(result.Errors)).Msg("handoff failed")
		return apperr.InvalidStatef("handoff %q failed: %d conflict(s), %d error(s)",
			requestID, len(result.Conflicts), len(result.Errors))
	}
}

// mergeWithRetry runs the dual-stack merge, retrying only transient store
// contention; anything else aborts immediately.
func (m *Manager) mergeWithRetry(requestID string) (*stack.MergeResult, error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = m.opts.MaxTransferRetry

	var result *stack.MergeResult
	err := backoff.Retry(func() error {
		r, err := m.dual.AcceptHandoff(requestID)
		if err != nil {
			if apperr.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = r
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// appendError records a message in the durable error log, logging (but not
// propagating) any store failure.
func (m *Manager) appendError(requestID, step, message string) {
	if err := m.store.AppendProgressError(requestID, step, message); err != nil {
		m.log.Error().Err(err).Str("request", requestID).Msg("could not append progress error")
	}
}

// failTransfer settles a request as failed after an unexpected merge error.
func (m *Manager) failTransfer(requestID, msg string) {
	m.appendError(requestID, StepTransfer, msg)
	if err := m.store.SetProgressStatus(requestID, frame.HandoffInTransfer, frame.HandoffFailed, stepFailed); err != nil {
		m.log.Error().Err(err).Str("request", requestID).Msg("could not mark handoff failed")
	}
}

// Cancel aborts a handoff that has not started transferring. The reason is
// recorded as an audit entry in the error log.
func (m *Manager) Cancel(actorID, requestID, reason string) error {
	ctx := permission.NewContext(actorID, permission.ActionCancel, "handoff", requestID)
	if err := m.dual.EnforcePermission(ctx); err != nil {
		return err
	}

	progress, err := m.store.GetProgress(requestID)
	if err != nil {
		return err
	}
	if !Cancellable(progress.Status) {
		return apperr.InvalidStatef("handoff %q cannot be cancelled while %s", requestID, progress.Status)
	}

	if err := m.store.SetProgressStatus(requestID, progress.Status, frame.HandoffCancelled, stepCancelled); err != nil {
		return err
	}
	m.cancelReminder(requestID)
	if err := m.store.AppendProgressError(requestID, StepCancel, "cancelled by "+actorID+": "+reason); err != nil {
		return err
	}
	m.log.Info().Str("request", requestID).Str("actor", actorID).Str("reason", reason).Msg("handoff cancelled")
	return nil
}

// Progress returns the current durable state of a request.
func (m *Manager) Progress(requestID string) (*frame.HandoffProgress, error) {
	return m.store.GetProgress(requestID)
}

// Inbox returns a recipient's notifications, newest first.
func (m *Manager) Inbox(recipientID string, limit int) ([]frame.Notification, error) {
	return m.store.Notifications(recipientID, limit)
}

// --- Bulk operations ---

// Bulk actions.
const (
	BulkApprove = "approve"
	BulkReject  = "reject"
	BulkCancel  = "cancel"
)

// BulkFailure pairs a request ID with the error that excluded it.
type BulkFailure struct {
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
}

// BulkResult reports the per-item outcome of a bulk operation.
type BulkResult struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

// Bulk applies one action across many requests independently: a failing
// item never aborts the batch, it just lands in Failed.
func (m *Manager) Bulk(actorID, action string, requestIDs []string, feedback string) (*BulkResult, error) {
	if action != BulkApprove && action != BulkReject && action != BulkCancel {
		return nil, apperr.Validationf("unknown bulk action %q: must be one of: approve, reject, cancel", action)
	}

	result := &BulkResult{Succeeded: []string{}, Failed: []BulkFailure{}}
	for _, id := range requestIDs {
		var err error
		switch action {
		case BulkApprove:
			err = m.SubmitApproval(actorID, id, frame.DecisionApproved, feedback, nil)
		case BulkReject:
			err = m.SubmitApproval(actorID, id, frame.DecisionRejected, feedback, nil)
		case BulkCancel:
			err = m.Cancel(actorID, id, feedback)
		}
		if err != nil {
			result.Failed = append(result.Failed, BulkFailure{RequestID: id, Error: err.Error()})
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result, nil
}

// --- Notifications & reminders ---

// reviewTarget is who a request notification is addressed to: the named
// reviewer when there is one, otherwise the target stack's shared inbox.
func (m *Manager) reviewTarget(req *frame.HandoffRequest) string {
	if req.ReviewerID != "" {
		return req.ReviewerID
	}
	return req.TargetStack
}

// notify fans a notification out to every recipient. Fan-out is synchronous
// with the triggering workflow step; per-recipient failures are logged and
// do not fail the step.
func (m *Manager) notify(req *frame.HandoffRequest, kind frame.NotificationKind, recipients []string, title, message string, actionRequired bool) {
	expires := timeNow().Add(m.opts.NotificationTTL).UTC().Format(time.RFC3339)

	var g errgroup.Group
	for _, r := range dedupe(recipients) {
		g.Go(func() error {
			_, err := m.store.AddNotification(frame.Notification{
				Kind:           kind,
				RequestID:      req.ID,
				RecipientID:    r,
				Title:          title,
				Message:        message,
				ActionRequired: actionRequired,
				ExpiresAt:      expires,
			})
			if err != nil {
				m.log.Error().Err(err).Str("recipient", r).Str("request", req.ID).Msg("notification delivery failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// scheduleReminder arms a one-shot timer that re-checks the request when it
// fires and nudges the reviewer only if the request is still awaiting
// review. The handle is kept so any status change can disarm it early.
func (m *Manager) scheduleReminder(requestID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.reminders[requestID] != nil {
		return
	}
	m.reminders[requestID] = time.AfterFunc(m.opts.ReminderDelay, func() {
		m.fireReminder(requestID)
	})
}

// cancelReminder disarms a request's reminder timer, if any.
func (m *Manager) cancelReminder(requestID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.reminders[requestID]; ok {
		t.Stop()
		delete(m.reminders, requestID)
	}
}

// fireReminder runs when a reminder timer elapses. The status re-check is
// defense in depth: cancelReminder already disarms the timer on every
// transition away from pending_review.
func (m *Manager) fireReminder(requestID string) {
	m.mu.Lock()
	delete(m.reminders, requestID)
	m.mu.Unlock()

	progress, err := m.store.GetProgress(requestID)
	if err != nil {
		m.log.Error().Err(err).Str("request", requestID).Msg("reminder status check failed")
		return
	}
	if progress.Status != frame.HandoffPendingReview {
		return
	}

	req, err := m.store.GetHandoffRequest(requestID)
	if err != nil {
		m.log.Error().Err(err).Str("request", requestID).Msg("reminder request lookup failed")
		return
	}
	m.notify(req, frame.NotifyReminder, []string{m.reviewTarget(req)},
		"Handoff still awaiting review",
		fmt.Sprintf("Request from %s has been pending since %s", req.InitiatorID, req.CreatedAt), true)
	m.log.Info().Str("request", requestID).Msg("reminder sent")
}

// dedupe removes duplicate and empty recipients, preserving order.
func dedupe(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
