package storage

import "time"

// SyncStatus describes whether a note's local state is confirmed by the remote.
type SyncStatus string

const (
	StatusSynced  SyncStatus = "synced"
	StatusPending SyncStatus = "pending"
	StatusFailed  SyncStatus = "failed"
)

// SyncAction is the remote operation still required to reconcile a note.
type SyncAction string

const (
	ActionNone   SyncAction = "none"
	ActionCreate SyncAction = "create"
	ActionUpdate SyncAction = "update"
	ActionDelete SyncAction = "delete"
)

// Note is the user-visible view of a note. Sync bookkeeping beyond the
// coarse SyncStatus (pending action, tombstone flag) is not exposed here.
type Note struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	Tags       []string   `json:"tags"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	SyncStatus SyncStatus `json:"syncStatus"`
}

// NoteRow is the raw persisted row including the sync metadata hidden from
// the Note view. The sync engine branches on SyncAction and IsDeleted.
type NoteRow struct {
	ID         string
	Title      string
	Body       string
	Tags       []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	SyncStatus SyncStatus
	SyncAction SyncAction
	IsDeleted  bool
}

// Note returns the public view of the row.
func (r *NoteRow) Note() *Note {
	return &Note{
		ID:         r.ID,
		Title:      r.Title,
		Body:       r.Body,
		Tags:       r.Tags,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		SyncStatus: r.SyncStatus,
	}
}

// NoteFilter constrains List results. Search matches title, body and tag
// content; Tag requires an exact tag match and is applied after Search.
type NoteFilter struct {
	Search string
	Tag    string
}
