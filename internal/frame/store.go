package frame

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	apperr "github.com/framestack/framestack/internal/errors"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// --- Config ---

// Config holds frame store configuration.
type Config struct {
	DataDir       string
	MaxPathDepth  int
	MaxHotEvents  int
	MaxHotAnchors int
}

// DefaultConfig returns the default configuration for the frame store.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:       filepath.Join(home, ".framestack"),
		MaxPathDepth:  64,
		MaxHotEvents:  20,
		MaxHotAnchors: 20,
	}
}

// --- Store ---

// Store is the durable frame engine backed by SQLite. One Store serves
// every stack: frames carry their owning stack in stack_id, so a handoff
// transfer is a single-row ownership rewrite rather than a copy between
// databases.
type Store struct {
	db  *sql.DB
	cfg Config
}

// New creates a new Store with the given configuration. It creates the data
// directory if needed, opens SQLite with WAL mode, and runs migrations.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("frame: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "framestack.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("frame: open database: %w", err)
	}

	// SQLite performance pragmas
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("frame: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("frame: migration: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Migrations ---

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS frames (
			id         TEXT PRIMARY KEY,
			stack_id   TEXT NOT NULL,
			parent_id  TEXT REFERENCES frames(id),
			kind       TEXT NOT NULL,
			name       TEXT NOT NULL,
			status     TEXT NOT NULL DEFAULT 'active',
			score      REAL NOT NULL DEFAULT 0.5,
			input      TEXT NOT NULL DEFAULT '',
			output     TEXT NOT NULL DEFAULT '',
			digest     TEXT NOT NULL DEFAULT '',
			version    INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_frames_stack   ON frames(stack_id, status);
		CREATE INDEX IF NOT EXISTS idx_frames_parent  ON frames(parent_id);
		CREATE INDEX IF NOT EXISTS idx_frames_created ON frames(created_at DESC);

		CREATE TABLE IF NOT EXISTS anchors (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			frame_id   TEXT    NOT NULL,
			kind       TEXT    NOT NULL,
			text       TEXT    NOT NULL,
			priority   INTEGER NOT NULL DEFAULT 5,
			created_at TEXT    NOT NULL,
			FOREIGN KEY (frame_id) REFERENCES frames(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_anchors_frame ON anchors(frame_id, priority DESC);

		CREATE TABLE IF NOT EXISTS events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			frame_id   TEXT NOT NULL,
			kind       TEXT NOT NULL,
			payload    TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			FOREIGN KEY (frame_id) REFERENCES frames(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_events_frame ON events(frame_id, created_at, id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return s.migrateHandoff()
}

// --- Frames ---

// CreateFrame persists a new active frame and returns its generated ID.
func (s *Store) CreateFrame(p CreateFrameParams) (string, error) {
	id := uuid.NewString()
	now := nowStamp()
	_, err := s.db.Exec(
		`INSERT INTO frames (id, stack_id, parent_id, kind, name, status, score, input, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		id, p.StackID, p.ParentID, string(p.Kind), p.Name, string(StatusActive),
		clampScore(p.Score), p.Input, now, now,
	)
	if err != nil {
		return "", apperr.Operationf(err, "create frame")
	}
	return id, nil
}

// GetFrame retrieves a frame by ID.
func (s *Store) GetFrame(id string) (*Frame, error) {
	row := s.db.QueryRow(
		`SELECT id, stack_id, parent_id, kind, name, status, score, input, output, digest, version, created_at, updated_at
		 FROM frames WHERE id = ?`, id,
	)
	f, err := scanFrame(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("frame %q", id)
	}
	if err != nil {
		return nil, apperr.Operationf(err, "get frame %q", id)
	}
	return f, nil
}

type rowLike interface {
	Scan(dest ...any) error
}

func scanFrame(row rowLike) (*Frame, error) {
	var f Frame
	err := row.Scan(&f.ID, &f.StackID, &f.ParentID, &f.Kind, &f.Name, &f.Status,
		&f.Score, &f.Input, &f.Output, &f.Digest, &f.Version, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFrames returns frames matching the filter, newest first.
func (s *Store) ListFrames(f Filter) ([]Frame, error) {
	query := `SELECT id, stack_id, parent_id, kind, name, status, score, input, output, digest, version, created_at, updated_at
	          FROM frames WHERE 1=1`
	args := []any{}

	if f.StackID != "" {
		query += " AND stack_id = ?"
		args = append(args, f.StackID)
	}
	if f.ParentID != "" {
		query += " AND parent_id = ?"
		args = append(args, f.ParentID)
	}
	if f.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(f.Kind))
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	if f.CreatedAfter != "" {
		query += " AND created_at >= ?"
		args = append(args, f.CreatedAfter)
	}
	if f.CreatedBefore != "" {
		query += " AND created_at <= ?"
		args = append(args, f.CreatedBefore)
	}

	query += " ORDER BY created_at DESC, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperr.Operationf(err, "list frames")
	}
	defer func() { _ = rows.Close() }()

	var results []Frame
	for rows.Next() {
		fr, err := scanFrame(rows)
		if err != nil {
			return nil, apperr.Operationf(err, "scan frame")
		}
		results = append(results, *fr)
	}
	return results, rows.Err()
}

// ActiveChildren counts a frame's children that are still active.
func (s *Store) ActiveChildren(id string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM frames WHERE parent_id = ? AND status = ?`,
		id, string(StatusActive),
	).Scan(&n)
	if err != nil {
		return 0, apperr.Operationf(err, "count active children of %q", id)
	}
	return n, nil
}

// ActivePath returns the root-to-leaf chain of active frames for a stack:
// the root is the oldest active frame without an active parent, and each
// following entry is the most recently created active child of the previous
// one. This is the "hot" context assembled for a caller.
func (s *Store) ActivePath(stackID string) ([]Frame, error) {
	row := s.db.QueryRow(
		`SELECT f.id, f.stack_id, f.parent_id, f.kind, f.name, f.status, f.score, f.input, f.output, f.digest, f.version, f.created_at, f.updated_at
		 FROM frames f
		 LEFT JOIN frames p ON p.id = f.parent_id AND p.status = 'active'
		 WHERE f.stack_id = ? AND f.status = 'active' AND p.id IS NULL
		 ORDER BY f.created_at, f.id LIMIT 1`, stackID,
	)
	root, err := scanFrame(row)
	if err == sql.ErrNoRows {
		return []Frame{}, nil
	}
	if err != nil {
		return nil, apperr.Operationf(err, "active path root for stack %q", stackID)
	}

	path := []Frame{*root}
	current := root.ID
	for depth := 1; depth < s.cfg.MaxPathDepth; depth++ {
		row := s.db.QueryRow(
			`SELECT id, stack_id, parent_id, kind, name, status, score, input, output, digest, version, created_at, updated_at
			 FROM frames WHERE parent_id = ? AND status = 'active'
			 ORDER BY created_at DESC, id DESC LIMIT 1`, current,
		)
		child, err := scanFrame(row)
		if err == sql.ErrNoRows {
			break
		}
		if err != nil {
			return nil, apperr.Operationf(err, "active path walk at %q", current)
		}
		path = append(path, *child)
		current = child.ID
	}
	return path, nil
}

// CloseFrame marks a frame closed, recording its output and digest. The
// update is guarded on status = active so closing an already-closed frame
// reports InvalidState rather than silently rewriting it.
func (s *Store) CloseFrame(id, output, digest string) error {
	res, err := s.db.Exec(
		`UPDATE frames
		 SET status = ?, output = ?, digest = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(StatusClosed), output, digest, nowStamp(), id, string(StatusActive),
	)
	if err != nil {
		return apperr.Operationf(err, "close frame %q", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Operationf(err, "close frame %q", id)
	}
	if n == 0 {
		if _, err := s.GetFrame(id); err != nil {
			return err
		}
		return apperr.InvalidStatef("frame %q is not active", id)
	}
	return nil
}

// SetStalled flags an active frame as stalled, or moves a stalled frame
// back to active.
func (s *Store) SetStalled(id string, stalled bool) error {
	from, to := StatusActive, StatusStalled
	if !stalled {
		from, to = StatusStalled, StatusActive
	}
	res, err := s.db.Exec(
		`UPDATE frames SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), nowStamp(), id, string(from),
	)
	if err != nil {
		return apperr.Operationf(err, "set stalled on frame %q", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Operationf(err, "set stalled on frame %q", id)
	}
	if n == 0 {
		if _, err := s.GetFrame(id); err != nil {
			return err
		}
		return apperr.InvalidStatef("frame %q is not %s", id, from)
	}
	return nil
}

// TransferFrame rewrites a frame's owning stack, guarded by the version
// captured when the handoff request was created. A zero-row update with the
// frame still present means the frame changed in the meantime: the caller
// records it as a handoff conflict instead of moving it.
func (s *Store) TransferFrame(id, targetStack string, expectedVersion int64) error {
	res, err := s.db.Exec(
		`UPDATE frames SET stack_id = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		targetStack, nowStamp(), id, expectedVersion,
	)
	if err != nil {
		return apperr.Operationf(err, "transfer frame %q", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Operationf(err, "transfer frame %q", id)
	}
	if n == 0 {
		if _, err := s.GetFrame(id); err != nil {
			return err
		}
		return fmt.Errorf("%w: frame %q changed since version %d", apperr.ErrVersionConflict, id, expectedVersion)
	}
	return nil
}

// --- Anchors ---

// AddAnchor appends an immutable anchor to a frame and bumps the frame
// version. Priority is clamped to [0, 10].
func (s *Store) AddAnchor(frameID string, kind AnchorKind, text string, priority int) (int64, error) {
	if _, err := s.GetFrame(frameID); err != nil {
		return 0, err
	}
	res, err := s.db.Exec(
		`INSERT INTO anchors (frame_id, kind, text, priority, created_at) VALUES (?, ?, ?, ?, ?)`,
		frameID, string(kind), text, clampPriority(priority), nowStamp(),
	)
	if err != nil {
		return 0, apperr.Operationf(err, "add anchor to frame %q", frameID)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Operationf(err, "add anchor to frame %q", frameID)
	}
	if err := s.touch(frameID); err != nil {
		return 0, err
	}
	return id, nil
}

// ListAnchors returns a frame's anchors, highest priority first.
func (s *Store) ListAnchors(frameID string, limit int) ([]Anchor, error) {
	query := `SELECT id, frame_id, kind, text, priority, created_at
	          FROM anchors WHERE frame_id = ? ORDER BY priority DESC, id`
	args := []any{frameID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperr.Operationf(err, "list anchors for frame %q", frameID)
	}
	defer func() { _ = rows.Close() }()

	var results []Anchor
	for rows.Next() {
		var a Anchor
		if err := rows.Scan(&a.ID, &a.FrameID, &a.Kind, &a.Text, &a.Priority, &a.CreatedAt); err != nil {
			return nil, apperr.Operationf(err, "scan anchor")
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// --- Events ---

// AddEvent appends an event to a frame's log and bumps the frame version.
func (s *Store) AddEvent(frameID string, kind EventKind, payload string) (int64, error) {
	if _, err := s.GetFrame(frameID); err != nil {
		return 0, err
	}
	res, err := s.db.Exec(
		`INSERT INTO events (frame_id, kind, payload, created_at) VALUES (?, ?, ?, ?)`,
		frameID, string(kind), payload, nowStamp(),
	)
	if err != nil {
		return 0, apperr.Operationf(err, "add event to frame %q", frameID)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Operationf(err, "add event to frame %q", frameID)
	}
	if err := s.touch(frameID); err != nil {
		return 0, err
	}
	return id, nil
}

// ListEvents returns a frame's most recent events in chronological order.
func (s *Store) ListEvents(frameID string, limit int) ([]Event, error) {
	query := `SELECT id, frame_id, kind, payload, created_at
	          FROM events WHERE frame_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{frameID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperr.Operationf(err, "list events for frame %q", frameID)
	}
	defer func() { _ = rows.Close() }()

	var results []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.FrameID, &e.Kind, &e.Payload, &e.CreatedAt); err != nil {
			return nil, apperr.Operationf(err, "scan event")
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}

// touch bumps a frame's version and updated_at after an append-only
// mutation. Version bumps are what make intervening anchors/events visible
// to handoff conflict detection.
func (s *Store) touch(frameID string) error {
	_, err := s.db.Exec(
		`UPDATE frames SET version = version + 1, updated_at = ? WHERE id = ?`,
		nowStamp(), frameID,
	)
	if err != nil {
		return apperr.Operationf(err, "touch frame %q", frameID)
	}
	return nil
}
