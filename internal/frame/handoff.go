package frame

import (
	"database/sql"
	"encoding/json"
	"fmt"

	apperr "github.com/framestack/framestack/internal/errors"
	"github.com/google/uuid"
)

// Handoff records share the frame store so a transfer and its bookkeeping
// live in one database: requests, approvals, progress, error log, and
// notification inboxes.

// --- Handoff status enum ---

// HandoffStatus is the state of a handoff workflow.
type HandoffStatus string

const (
	HandoffPendingReview      HandoffStatus = "pending_review"
	HandoffApproved           HandoffStatus = "approved"
	HandoffInTransfer         HandoffStatus = "in_transfer"
	HandoffCompleted          HandoffStatus = "completed"
	HandoffPartiallyCompleted HandoffStatus = "partially_completed"
	HandoffFailed             HandoffStatus = "failed"
	HandoffCancelled          HandoffStatus = "cancelled"
)

// IsTerminal reports whether a handoff status admits no further transitions.
func (st HandoffStatus) IsTerminal() bool {
	switch st {
	case HandoffCompleted, HandoffPartiallyCompleted, HandoffFailed, HandoffCancelled:
		return true
	}
	return false
}

// --- Decision enum ---

// Decision is a reviewer's verdict on a handoff request.
type Decision string

const (
	DecisionApproved     Decision = "approved"
	DecisionRejected     Decision = "rejected"
	DecisionNeedsChanges Decision = "needs_changes"
)

// validDecisions is the set of allowed approval decisions.
var validDecisions = map[Decision]bool{
	DecisionApproved:     true,
	DecisionRejected:     true,
	DecisionNeedsChanges: true,
}

// ValidateDecision returns an error if the decision is not recognized.
func ValidateDecision(d Decision) error {
	if !validDecisions[d] {
		return fmt.Errorf("invalid decision %q: must be one of: approved, rejected, needs_changes", d)
	}
	return nil
}

// IsTerminal reports whether the decision settles the review. needs_changes
// loops the request back to the initiator instead.
func (d Decision) IsTerminal() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// --- Priority enum ---

// Priority is the declared business priority of a handoff request.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// validPriorities is the set of allowed priorities.
var validPriorities = map[Priority]bool{
	PriorityLow:      true,
	PriorityNormal:   true,
	PriorityHigh:     true,
	PriorityCritical: true,
}

// ValidatePriority returns an error if the priority is not recognized.
func ValidatePriority(p Priority) error {
	if !validPriorities[p] {
		return fmt.Errorf("invalid priority %q: must be one of: low, normal, high, critical", p)
	}
	return nil
}

// --- Notification kind enum ---

// NotificationKind categorizes an inbox notification.
type NotificationKind string

const (
	NotifyRequest          NotificationKind = "request"
	NotifyApproval         NotificationKind = "approval"
	NotifyRejection        NotificationKind = "rejection"
	NotifyChangesRequested NotificationKind = "changes_requested"
	NotifyCompletion       NotificationKind = "completion"
	NotifyReminder         NotificationKind = "reminder"
)

// --- Core data structures ---

// HandoffRequest captures one handoff attempt: which frames, from which
// stack to which, who asked, and the frame versions at creation time. The
// version snapshot is the baseline for conflict detection at transfer time.
type HandoffRequest struct {
	ID            string           `json:"id"`
	SourceStack   string           `json:"source_stack"`
	TargetStack   string           `json:"target_stack"`
	FrameIDs      []string         `json:"frame_ids"`
	FrameVersions map[string]int64 `json:"frame_versions"`
	InitiatorID   string           `json:"initiator_id"`
	ReviewerID    string           `json:"reviewer_id,omitempty"`
	Message       string           `json:"message,omitempty"`
	Priority      Priority         `json:"priority"`
	Deadline      string           `json:"deadline,omitempty"`
	Stakeholders  []string         `json:"stakeholders,omitempty"`
	CreatedAt     string           `json:"created_at"`
}

// HandoffApproval records one reviewer verdict. Approvals accumulate while
// the review iterates on needs_changes; at most one terminal decision may
// ever land.
type HandoffApproval struct {
	ID               int64             `json:"id"`
	RequestID        string            `json:"request_id"`
	ReviewerID       string            `json:"reviewer_id"`
	Decision         Decision          `json:"decision"`
	Feedback         string            `json:"feedback,omitempty"`
	SuggestedChanges map[string]string `json:"suggested_changes,omitempty"`
	CreatedAt        string            `json:"created_at"`
}

// HandoffProgress is the authoritative state machine record for a request.
type HandoffProgress struct {
	RequestID           string          `json:"request_id"`
	Status              HandoffStatus   `json:"status"`
	TransferredFrames   int             `json:"transferred_frames"`
	TotalFrames         int             `json:"total_frames"`
	CurrentStep         string          `json:"current_step"`
	Errors              []ProgressError `json:"errors,omitempty"`
	EstimatedCompletion string          `json:"estimated_completion,omitempty"`
	UpdatedAt           string          `json:"updated_at"`
}

// ProgressError is one append-only entry in a handoff's error log.
type ProgressError struct {
	Step      string `json:"step"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// Notification is one entry in a recipient's inbox.
type Notification struct {
	ID             string           `json:"id"`
	Kind           NotificationKind `json:"kind"`
	RequestID      string           `json:"request_id"`
	RecipientID    string           `json:"recipient_id"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	ActionRequired bool             `json:"action_required"`
	ExpiresAt      string           `json:"expires_at,omitempty"`
	CreatedAt      string           `json:"created_at"`
}

// CreateHandoffRequestParams holds the input for persisting a new request.
type CreateHandoffRequestParams struct {
	SourceStack   string
	TargetStack   string
	FrameIDs      []string
	FrameVersions map[string]int64
	InitiatorID   string
	ReviewerID    string
	Message       string
	Priority      Priority
	Deadline      string
	Stakeholders  []string
}

// --- Migrations ---

func (s *Store) migrateHandoff() error {
	schema := `
		CREATE TABLE IF NOT EXISTS handoff_requests (
			id             TEXT PRIMARY KEY,
			source_stack   TEXT NOT NULL,
			target_stack   TEXT NOT NULL,
			frame_ids      TEXT NOT NULL,
			frame_versions TEXT NOT NULL,
			initiator_id   TEXT NOT NULL,
			reviewer_id    TEXT NOT NULL DEFAULT '',
			message        TEXT NOT NULL DEFAULT '',
			priority       TEXT NOT NULL DEFAULT 'normal',
			deadline       TEXT NOT NULL DEFAULT '',
			stakeholders   TEXT NOT NULL DEFAULT '[]',
			created_at     TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_horeq_stacks ON handoff_requests(source_stack, target_stack);

		CREATE TABLE IF NOT EXISTS handoff_approvals (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id        TEXT NOT NULL,
			reviewer_id       TEXT NOT NULL,
			decision          TEXT NOT NULL,
			feedback          TEXT NOT NULL DEFAULT '',
			suggested_changes TEXT NOT NULL DEFAULT '{}',
			created_at        TEXT NOT NULL,
			FOREIGN KEY (request_id) REFERENCES handoff_requests(id)
		);

		CREATE INDEX IF NOT EXISTS idx_hoapp_request ON handoff_approvals(request_id);

		CREATE TABLE IF NOT EXISTS handoff_progress (
			request_id           TEXT PRIMARY KEY,
			status               TEXT NOT NULL,
			transferred_frames   INTEGER NOT NULL DEFAULT 0,
			total_frames         INTEGER NOT NULL,
			current_step         TEXT NOT NULL DEFAULT '',
			estimated_completion TEXT NOT NULL DEFAULT '',
			updated_at           TEXT NOT NULL,
			FOREIGN KEY (request_id) REFERENCES handoff_requests(id)
		);

		CREATE INDEX IF NOT EXISTS idx_hoprog_status ON handoff_progress(status, updated_at);

		CREATE TABLE IF NOT EXISTS handoff_errors (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id TEXT NOT NULL,
			step       TEXT NOT NULL,
			message    TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (request_id) REFERENCES handoff_requests(id)
		);

		CREATE INDEX IF NOT EXISTS idx_hoerr_request ON handoff_errors(request_id, id);

		CREATE TABLE IF NOT EXISTS notifications (
			id              TEXT PRIMARY KEY,
			kind            TEXT NOT NULL,
			request_id      TEXT NOT NULL,
			recipient_id    TEXT NOT NULL,
			title           TEXT NOT NULL,
			message         TEXT NOT NULL DEFAULT '',
			action_required INTEGER NOT NULL DEFAULT 0,
			expires_at      TEXT NOT NULL DEFAULT '',
			created_at      TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_notif_recipient ON notifications(recipient_id, created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- Requests ---

// CreateHandoffRequest persists a new handoff request and returns its ID.
func (s *Store) CreateHandoffRequest(p CreateHandoffRequestParams) (string, error) {
	frameIDs, err := json.Marshal(p.FrameIDs)
	if err != nil {
		return "", apperr.Operationf(err, "encode frame ids")
	}
	versions, err := json.Marshal(p.FrameVersions)
	if err != nil {
		return "", apperr.Operationf(err, "encode frame versions")
	}
	stakeholders, err := json.Marshal(emptyIfNil(p.Stakeholders))
	if err != nil {
		return "", apperr.Operationf(err, "encode stakeholders")
	}

	id := uuid.NewString()
	_, err = s.db.Exec(
		`INSERT INTO handoff_requests
		 (id, source_stack, target_stack, frame_ids, frame_versions, initiator_id, reviewer_id, message, priority, deadline, stakeholders, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.SourceStack, p.TargetStack, string(frameIDs), string(versions),
		p.InitiatorID, p.ReviewerID, p.Message, string(p.Priority), p.Deadline,
		string(stakeholders), nowStamp(),
	)
	if err != nil {
		return "", apperr.Operationf(err, "create handoff request")
	}
	return id, nil
}

// GetHandoffRequest retrieves a handoff request by ID.
func (s *Store) GetHandoffRequest(id string) (*HandoffRequest, error) {
	row := s.db.QueryRow(
		`SELECT id, source_stack, target_stack, frame_ids, frame_versions, initiator_id, reviewer_id, message, priority, deadline, stakeholders, created_at
		 FROM handoff_requests WHERE id = ?`, id,
	)
	var r HandoffRequest
	var frameIDs, versions, stakeholders string
	err := row.Scan(&r.ID, &r.SourceStack, &r.TargetStack, &frameIDs, &versions,
		&r.InitiatorID, &r.ReviewerID, &r.Message, &r.Priority, &r.Deadline,
		&stakeholders, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("handoff request %q", id)
	}
	if err != nil {
		return nil, apperr.Operationf(err, "get handoff request %q", id)
	}
	if err := json.Unmarshal([]byte(frameIDs), &r.FrameIDs); err != nil {
		return nil, apperr.Operationf(err, "decode frame ids for request %q", id)
	}
	if err := json.Unmarshal([]byte(versions), &r.FrameVersions); err != nil {
		return nil, apperr.Operationf(err, "decode frame versions for request %q", id)
	}
	if err := json.Unmarshal([]byte(stakeholders), &r.Stakeholders); err != nil {
		return nil, apperr.Operationf(err, "decode stakeholders for request %q", id)
	}
	return &r, nil
}

// --- Approvals ---

// AddApproval records a reviewer decision. A second terminal decision on the
// same request is rejected inside one transaction, so two reviewers racing
// to settle a request cannot both win.
func (s *Store) AddApproval(requestID, reviewerID string, decision Decision, feedback string, suggested map[string]string) (int64, error) {
	changes, err := json.Marshal(suggested)
	if err != nil {
		return 0, apperr.Operationf(err, "encode suggested changes")
	}
	if suggested == nil {
		changes = []byte("{}")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, apperr.Operationf(err, "begin approval tx")
	}
	defer func() { _ = tx.Rollback() }()

	if decision.IsTerminal() {
		var n int
		err := tx.QueryRow(
			`SELECT COUNT(*) FROM handoff_approvals WHERE request_id = ? AND decision IN ('approved', 'rejected')`,
			requestID,
		).Scan(&n)
		if err != nil {
			return 0, apperr.Operationf(err, "check terminal decisions for %q", requestID)
		}
		if n > 0 {
			return 0, apperr.InvalidStatef("handoff request %q already has a terminal decision", requestID)
		}
	}

	res, err := tx.Exec(
		`INSERT INTO handoff_approvals (request_id, reviewer_id, decision, feedback, suggested_changes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		requestID, reviewerID, string(decision), feedback, string(changes), nowStamp(),
	)
	if err != nil {
		return 0, apperr.Operationf(err, "record approval for %q", requestID)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Operationf(err, "record approval for %q", requestID)
	}
	if err := tx.Commit(); err != nil {
		return 0, apperr.Operationf(err, "commit approval for %q", requestID)
	}
	return id, nil
}

// ListApprovals returns every recorded verdict for a request, oldest first.
func (s *Store) ListApprovals(requestID string) ([]HandoffApproval, error) {
	rows, err := s.db.Query(
		`SELECT id, request_id, reviewer_id, decision, feedback, suggested_changes, created_at
		 FROM handoff_approvals WHERE request_id = ? ORDER BY id`, requestID,
	)
	if err != nil {
		return nil, apperr.Operationf(err, "list approvals for %q", requestID)
	}
	defer func() { _ = rows.Close() }()

	var results []HandoffApproval
	for rows.Next() {
		var a HandoffApproval
		var changes string
		if err := rows.Scan(&a.ID, &a.RequestID, &a.ReviewerID, &a.Decision, &a.Feedback, &changes, &a.CreatedAt); err != nil {
			return nil, apperr.Operationf(err, "scan approval")
		}
		if err := json.Unmarshal([]byte(changes), &a.SuggestedChanges); err != nil {
			return nil, apperr.Operationf(err, "decode suggested changes")
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// --- Progress ---

// CreateProgress initializes the state machine record for a request.
func (s *Store) CreateProgress(requestID string, totalFrames int, step string) error {
	_, err := s.db.Exec(
		`INSERT INTO handoff_progress (request_id, status, transferred_frames, total_frames, current_step, updated_at)
		 VALUES (?, ?, 0, ?, ?, ?)`,
		requestID, string(HandoffPendingReview), totalFrames, step, nowStamp(),
	)
	if err != nil {
		return apperr.Operationf(err, "create progress for %q", requestID)
	}
	return nil
}

// GetProgress retrieves a request's progress including its error log.
func (s *Store) GetProgress(requestID string) (*HandoffProgress, error) {
	row := s.db.QueryRow(
		`SELECT request_id, status, transferred_frames, total_frames, current_step, estimated_completion, updated_at
		 FROM handoff_progress WHERE request_id = ?`, requestID,
	)
	var p HandoffProgress
	err := row.Scan(&p.RequestID, &p.Status, &p.TransferredFrames, &p.TotalFrames,
		&p.CurrentStep, &p.EstimatedCompletion, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("handoff progress %q", requestID)
	}
	if err != nil {
		return nil, apperr.Operationf(err, "get progress %q", requestID)
	}

	rows, err := s.db.Query(
		`SELECT step, message, created_at FROM handoff_errors WHERE request_id = ? ORDER BY id`, requestID,
	)
	if err != nil {
		return nil, apperr.Operationf(err, "list errors for %q", requestID)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var e ProgressError
		if err := rows.Scan(&e.Step, &e.Message, &e.CreatedAt); err != nil {
			return nil, apperr.Operationf(err, "scan progress error")
		}
		p.Errors = append(p.Errors, e)
	}
	return &p, rows.Err()
}

// SetProgressStatus moves a request's status from one state to another with
// a compare-and-set on the current status. InvalidState is returned when
// the request is in any other state, which serializes concurrent terminal
// transitions at the store.
func (s *Store) SetProgressStatus(requestID string, from, to HandoffStatus, step string) error {
	res, err := s.db.Exec(
		`UPDATE handoff_progress SET status = ?, current_step = ?, updated_at = ?
		 WHERE request_id = ? AND status = ?`,
		string(to), step, nowStamp(), requestID, string(from),
	)
	if err != nil {
		return apperr.Operationf(err, "set status of %q", requestID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Operationf(err, "set status of %q", requestID)
	}
	if n == 0 {
		p, err := s.GetProgress(requestID)
		if err != nil {
			return err
		}
		return apperr.InvalidStatef("handoff %q is %s, not %s", requestID, p.Status, from)
	}
	return nil
}

// SetTransferred records the number of frames moved by the merge.
func (s *Store) SetTransferred(requestID string, transferred int) error {
	_, err := s.db.Exec(
		`UPDATE handoff_progress SET transferred_frames = ?, updated_at = ? WHERE request_id = ?`,
		transferred, nowStamp(), requestID,
	)
	if err != nil {
		return apperr.Operationf(err, "set transferred count of %q", requestID)
	}
	return nil
}

// AppendProgressError adds one entry to a request's append-only error log.
func (s *Store) AppendProgressError(requestID, step, message string) error {
	_, err := s.db.Exec(
		`INSERT INTO handoff_errors (request_id, step, message, created_at) VALUES (?, ?, ?, ?)`,
		requestID, step, message, nowStamp(),
	)
	if err != nil {
		return apperr.Operationf(err, "append error to %q", requestID)
	}
	return nil
}

// ProgressRecord pairs a progress row with its request for aggregation.
type ProgressRecord struct {
	Progress HandoffProgress
	Request  HandoffRequest
}

// ListProgress returns progress records created within the given window
// (either bound may be empty), oldest first. Used by metrics; read-only.
func (s *Store) ListProgress(since, until string) ([]ProgressRecord, error) {
	query := `
		SELECT p.request_id, p.status, p.transferred_frames, p.total_frames, p.current_step, p.estimated_completion, p.updated_at,
		       r.id, r.source_stack, r.target_stack, r.frame_ids, r.frame_versions, r.initiator_id, r.reviewer_id, r.message, r.priority, r.deadline, r.stakeholders, r.created_at
		FROM handoff_progress p
		JOIN handoff_requests r ON r.id = p.request_id
		WHERE 1=1`
	args := []any{}
	if since != "" {
		query += " AND r.created_at >= ?"
		args = append(args, since)
	}
	if until != "" {
		query += " AND r.created_at <= ?"
		args = append(args, until)
	}
	query += " ORDER BY r.created_at, r.id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperr.Operationf(err, "list progress")
	}
	defer func() { _ = rows.Close() }()

	var results []ProgressRecord
	for rows.Next() {
		var rec ProgressRecord
		var frameIDs, versions, stakeholders string
		err := rows.Scan(
			&rec.Progress.RequestID, &rec.Progress.Status, &rec.Progress.TransferredFrames,
			&rec.Progress.TotalFrames, &rec.Progress.CurrentStep, &rec.Progress.EstimatedCompletion,
			&rec.Progress.UpdatedAt,
			&rec.Request.ID, &rec.Request.SourceStack, &rec.Request.TargetStack,
			&frameIDs, &versions, &rec.Request.InitiatorID, &rec.Request.ReviewerID,
			&rec.Request.Message, &rec.Request.Priority, &rec.Request.Deadline,
			&stakeholders, &rec.Request.CreatedAt,
		)
		if err != nil {
			return nil, apperr.Operationf(err, "scan progress record")
		}
		if err := json.Unmarshal([]byte(frameIDs), &rec.Request.FrameIDs); err != nil {
			return nil, apperr.Operationf(err, "decode frame ids")
		}
		if err := json.Unmarshal([]byte(versions), &rec.Request.FrameVersions); err != nil {
			return nil, apperr.Operationf(err, "decode frame versions")
		}
		if err := json.Unmarshal([]byte(stakeholders), &rec.Request.Stakeholders); err != nil {
			return nil, apperr.Operationf(err, "decode stakeholders")
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// --- Notifications ---

// AddNotification appends a notification to a recipient's inbox.
func (s *Store) AddNotification(n Notification) (string, error) {
	id := uuid.NewString()
	var actionRequired int
	if n.ActionRequired {
		actionRequired = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO notifications (id, kind, request_id, recipient_id, title, message, action_required, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(n.Kind), n.RequestID, n.RecipientID, n.Title, n.Message,
		actionRequired, n.ExpiresAt, nowStamp(),
	)
	if err != nil {
		return "", apperr.Operationf(err, "add notification for %q", n.RecipientID)
	}
	return id, nil
}

// Notifications returns a recipient's inbox, newest first. Expired entries
// are pruned on the way.
func (s *Store) Notifications(recipientID string, limit int) ([]Notification, error) {
	_, err := s.db.Exec(
		`DELETE FROM notifications WHERE expires_at != '' AND expires_at < ?`, nowStamp(),
	)
	if err != nil {
		return nil, apperr.Operationf(err, "prune expired notifications")
	}

	query := `SELECT id, kind, request_id, recipient_id, title, message, action_required, expires_at, created_at
	          FROM notifications WHERE recipient_id = ? ORDER BY created_at DESC, id`
	args := []any{recipientID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperr.Operationf(err, "list notifications for %q", recipientID)
	}
	defer func() { _ = rows.Close() }()

	var results []Notification
	for rows.Next() {
		var n Notification
		var actionRequired int
		if err := rows.Scan(&n.ID, &n.Kind, &n.RequestID, &n.RecipientID, &n.Title,
			&n.Message, &actionRequired, &n.ExpiresAt, &n.CreatedAt); err != nil {
			return nil, apperr.Operationf(err, "scan notification")
		}
		n.ActionRequired = actionRequired != 0
		results = append(results, n)
	}
	return results, rows.Err()
}

// emptyIfNil keeps JSON columns as [] instead of null.
func emptyIfNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
