package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_note_store.go -package=mocks fieldnotes/internal/storage NoteStore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateID is returned when an insert collides with an existing id.
	ErrDuplicateID = errors.New("duplicate note id")
	// ErrIDConflict is returned when an id rename lands on an existing id.
	ErrIDConflict = errors.New("note id conflict")
)

// NoteStore defines the interface for note storage operations. It is the
// sole owner of durable note state and the sync-state transition rules.
type NoteStore interface {
	// List returns non-deleted notes matching the filter, newest first.
	List(ctx context.Context, filter NoteFilter) ([]*Note, error)
	// Get returns a non-deleted note by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Note, error)
	// GetRow returns the raw row for id including sync metadata, or ErrNotFound.
	GetRow(ctx context.Context, id string) (*NoteRow, error)
	// Create inserts a new local note as pending/create.
	// Returns ErrDuplicateID if the id is already present.
	Create(ctx context.Context, note *Note) error
	// Update overwrites title, body, tags and updatedAt and marks the note
	// pending. A note that has never reached the remote keeps its create
	// action; anything else becomes an update.
	Update(ctx context.Context, note *Note) error
	// Delete removes a note. A never-synced note is purged outright; a synced
	// one becomes a tombstone awaiting a remote delete.
	Delete(ctx context.Context, id string) error
	// ListSyncable returns all rows with pending or failed sync status,
	// soft-deletes first, then creates, then updates.
	ListSyncable(ctx context.Context) ([]*NoteRow, error)
	// ReconcileID atomically renames a note's primary key.
	// Returns ErrIDConflict if newID already exists.
	ReconcileID(ctx context.Context, oldID, newID string) error
	// MarkSynced settles a record: tombstones are purged, everything else
	// becomes synced/none. Missing records are a no-op.
	MarkSynced(ctx context.Context, id string) error
	// MarkFailed flags a record failed, preserving its sync action for retry.
	MarkFailed(ctx context.Context, id string) error
	// SetSyncState force-sets both sync fields on a record.
	SetSyncState(ctx context.Context, id string, status SyncStatus, action SyncAction) error
	// InsertSynced imports a note already reconciled with the remote.
	InsertSynced(ctx context.Context, note *Note) error
}

// NoteRepo provides methods for note operations backed by SQLite.
// It implements the NoteStore interface.
type NoteRepo struct {
	db *sql.DB
}

// NewNoteRepo creates a new NoteRepo.
func NewNoteRepo(db *sql.DB) *NoteRepo {
	return &NoteRepo{db: db}
}

const noteColumns = "id, title, body, tags, created_at, updated_at, sync_status, sync_action, is_deleted"

// List returns non-deleted notes, optionally filtered by a text search over
// title/body/tags and by an exact tag match, ordered by updated_at descending.
func (r *NoteRepo) List(ctx context.Context, filter NoteFilter) ([]*Note, error) {
	query := "SELECT " + noteColumns + " FROM notes WHERE is_deleted = 0"
	args := []any{}

	if filter.Search != "" {
		query += ` AND (title LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\' OR tags LIKE ? ESCAPE '\')`
		pattern := "%" + escapeLike(filter.Search) + "%"
		args = append(args, pattern, pattern, pattern)
	}

	query += " ORDER BY updated_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var notes []*Note
	for rows.Next() {
		row, err := scanNoteRow(rows)
		if err != nil {
			return nil, err
		}
		// The tags column is a JSON blob, so LIKE over it is only a coarse
		// pre-filter. Exact tag matching happens here.
		if filter.Tag != "" && !containsTag(row.Tags, filter.Tag) {
			continue
		}
		notes = append(notes, row.Note())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return notes, nil
}

// Get returns a non-deleted note by id.
// Returns ErrNotFound if absent or tombstoned.
func (r *NoteRepo) Get(ctx context.Context, id string) (*Note, error) {
	row, err := getRow(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	if row.IsDeleted {
		return nil, ErrNotFound
	}
	return row.Note(), nil
}

// GetRow returns the raw row for id, including sync metadata and tombstones.
func (r *NoteRepo) GetRow(ctx context.Context, id string) (*NoteRow, error) {
	return getRow(ctx, r.db, id)
}

// Create inserts a new local note as pending/create.
func (r *NoteRepo) Create(ctx context.Context, note *Note) error {
	return r.insert(ctx, note, StatusPending, ActionCreate)
}

// InsertSynced imports a note that already exists remotely as synced/none.
func (r *NoteRepo) InsertSynced(ctx context.Context, note *Note) error {
	return r.insert(ctx, note, StatusSynced, ActionNone)
}

func (r *NoteRepo) insert(ctx context.Context, note *Note, status SyncStatus, action SyncAction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := getRow(ctx, tx, note.ID); err == nil {
		return ErrDuplicateID
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	tags, err := encodeTags(note.Tags)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO notes (id, title, body, tags, created_at, updated_at, sync_status, sync_action, is_deleted)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		note.ID, note.Title, note.Body, tags,
		formatTime(note.CreatedAt), formatTime(note.UpdatedAt),
		string(status), string(action),
	)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}

	return tx.Commit()
}

// Update overwrites title, body, tags and updated_at and resets the note to
// pending. A record whose action is still create has never reached the
// remote, so the create action is preserved.
func (r *NoteRepo) Update(ctx context.Context, note *Note) error {
	tags, err := encodeTags(note.Tags)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE notes
		 SET title = ?, body = ?, tags = ?, updated_at = ?, sync_status = ?,
		     sync_action = CASE WHEN sync_action = ? THEN ? ELSE ? END
		 WHERE id = ? AND is_deleted = 0`,
		note.Title, note.Body, tags, formatTime(note.UpdatedAt),
		string(StatusPending),
		string(ActionCreate), string(ActionCreate), string(ActionUpdate),
		note.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a note by id. Absent ids are a no-op. A never-synced note
// (action=create) is purged with no tombstone; anything else is soft-deleted
// and queued for a remote delete.
func (r *NoteRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row, err := getRow(ctx, tx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if row.SyncAction == ActionCreate {
		// Never reached the remote, nothing to reconcile.
		if _, err := tx.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete note: %w", err)
		}
	} else {
		_, err := tx.ExecContext(ctx,
			`UPDATE notes SET is_deleted = 1, sync_status = ?, sync_action = ?, updated_at = ? WHERE id = ?`,
			string(StatusPending), string(ActionDelete), formatTime(time.Now().UTC()), id,
		)
		if err != nil {
			return fmt.Errorf("failed to soft-delete note: %w", err)
		}
	}

	return tx.Commit()
}

// ListSyncable returns all rows awaiting reconciliation: sync_status pending
// or failed, including tombstones. Soft-deletes come first, then creates,
// then updates.
func (r *NoteRepo) ListSyncable(ctx context.Context) ([]*NoteRow, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+noteColumns+` FROM notes
		 WHERE sync_status IN (?, ?)
		 ORDER BY is_deleted DESC,
		          CASE sync_action WHEN ? THEN 0 WHEN ? THEN 1 ELSE 2 END`,
		string(StatusPending), string(StatusFailed),
		string(ActionCreate), string(ActionUpdate),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query syncable notes: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*NoteRow
	for rows.Next() {
		row, err := scanNoteRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// ReconcileID atomically rewrites a note's primary key, used when the remote
// assigns the canonical id for a locally created note.
func (r *NoteRepo) ReconcileID(ctx context.Context, oldID, newID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := getRow(ctx, tx, newID); err == nil {
		return ErrIDConflict
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	res, err := tx.ExecContext(ctx, "UPDATE notes SET id = ? WHERE id = ?", newID, oldID)
	if err != nil {
		return fmt.Errorf("failed to reconcile note id: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// MarkSynced settles a record after a successful remote call. A confirmed
// delete retires its tombstone; everything else becomes synced/none.
// Missing records are a no-op.
func (r *NoteRepo) MarkSynced(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row, err := getRow(ctx, tx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if row.SyncAction == ActionDelete {
		if _, err := tx.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to retire tombstone: %w", err)
		}
	} else {
		_, err := tx.ExecContext(ctx,
			"UPDATE notes SET sync_status = ?, sync_action = ? WHERE id = ?",
			string(StatusSynced), string(ActionNone), id,
		)
		if err != nil {
			return fmt.Errorf("failed to mark note synced: %w", err)
		}
	}

	return tx.Commit()
}

// MarkFailed flags a record failed while preserving its sync action so the
// next pass retries the same operation.
func (r *NoteRepo) MarkFailed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE notes SET sync_status = ? WHERE id = ?", string(StatusFailed), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark note failed: %w", err)
	}
	return nil
}

// SetSyncState force-sets both sync fields, used when the engine must commit
// an intermediate outcome (created remotely but edited locally since).
func (r *NoteRepo) SetSyncState(ctx context.Context, id string, status SyncStatus, action SyncAction) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE notes SET sync_status = ?, sync_action = ? WHERE id = ?",
		string(status), string(action), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set sync state: %w", err)
	}
	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRow(ctx context.Context, q queryer, id string) (*NoteRow, error) {
	row := q.QueryRowContext(ctx, "SELECT "+noteColumns+" FROM notes WHERE id = ?", id)
	result, err := scanNoteRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanNoteRow(s scanner) (*NoteRow, error) {
	var row NoteRow
	var tags, createdAt, updatedAt, status, action string
	var isDeleted int

	if err := s.Scan(&row.ID, &row.Title, &row.Body, &tags, &createdAt, &updatedAt, &status, &action, &isDeleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan note row: %w", err)
	}

	decoded, err := decodeTags(tags)
	if err != nil {
		return nil, err
	}
	row.Tags = decoded

	row.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at timestamp: %w", err)
	}
	row.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at timestamp: %w", err)
	}

	row.SyncStatus = SyncStatus(status)
	row.SyncAction = SyncAction(action)
	row.IsDeleted = isDeleted != 0

	return &row, nil
}

// encodeTags serializes tags as a JSON array, preserving order.
func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(data), nil
}

func decodeTags(raw string) ([]string, error) {
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// timeLayout is fixed-width: RFC3339Nano trims trailing zeros in the
// fractional seconds, which breaks lexicographic ordering of the TEXT
// timestamp columns ("...01.2Z" sorts after "...01.25Z").
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, raw)
}
