package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_notes_service.go -package=mocks -mock_names=NotesService=MockNotesService fieldnotes/internal/service NotesService

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fieldnotes/internal/contextutil"
	"fieldnotes/internal/storage"
)

// NoteInput carries the user-editable fields of a note.
type NoteInput struct {
	Title string
	Body  string
	Tags  []string
}

// NotesService owns the local mutation rules: client-side id generation,
// timestamp stamping and validation. All durable state goes through the
// store, which takes care of marking mutated records pending.
type NotesService interface {
	// List returns non-deleted notes, newest first, optionally filtered by a
	// text search and an exact tag.
	List(ctx context.Context, search, tag string) ([]*storage.Note, error)
	// Get returns a single note by id.
	Get(ctx context.Context, id string) (*storage.Note, error)
	// Create makes a new local note with a client-generated id.
	Create(ctx context.Context, input NoteInput) (*storage.Note, error)
	// Update edits a note's user-editable fields.
	Update(ctx context.Context, id string, input NoteInput) (*storage.Note, error)
	// Delete removes a note; never-synced notes are purged, everything else
	// is tombstoned until the remote confirms the delete.
	Delete(ctx context.Context, id string) error
}

// notesService implements NotesService.
type notesService struct {
	store  storage.NoteStore
	logger *slog.Logger
	now    func() time.Time
}

// NewNotesService creates a new NotesService over the given store.
func NewNotesService(store storage.NoteStore) NotesService {
	return &notesService{
		store:  store,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// List returns non-deleted notes matching the filter.
func (s *notesService) List(ctx context.Context, search, tag string) ([]*storage.Note, error) {
	notes, err := s.store.List(ctx, storage.NoteFilter{Search: search, Tag: tag})
	if err != nil {
		return nil, WrapError(err, "failed to list notes")
	}
	return notes, nil
}

// Get returns a single note by id.
func (s *notesService) Get(ctx context.Context, id string) (*storage.Note, error) {
	note, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return note, nil
}

// Create makes a new local note. The id is a client-side UUID that holds
// until the remote assigns the canonical one during sync.
func (s *notesService) Create(ctx context.Context, input NoteInput) (*storage.Note, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if err := validateInput(input); err != nil {
		logger.WarnContext(ctx, "invalid note input", "error", err)
		return nil, err
	}

	now := s.now()
	note := &storage.Note{
		ID:        uuid.NewString(),
		Title:     input.Title,
		Body:      input.Body,
		Tags:      normalizeTags(input.Tags),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.Create(ctx, note); err != nil {
		logger.ErrorContext(ctx, "failed to create note", "error", err)
		return nil, err
	}
	note.SyncStatus = storage.StatusPending

	logger.InfoContext(ctx, "note created", "id", note.ID)
	return note, nil
}

// Update edits an existing note and refreshes its updated-at stamp, which
// re-queues it for sync.
func (s *notesService) Update(ctx context.Context, id string, input NoteInput) (*storage.Note, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if err := validateInput(input); err != nil {
		logger.WarnContext(ctx, "invalid note input", "id", id, "error", err)
		return nil, err
	}

	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	note := &storage.Note{
		ID:        id,
		Title:     input.Title,
		Body:      input.Body,
		Tags:      normalizeTags(input.Tags),
		CreatedAt: existing.CreatedAt,
		UpdatedAt: s.now(),
	}

	if err := s.store.Update(ctx, note); err != nil {
		logger.ErrorContext(ctx, "failed to update note", "id", id, "error", err)
		return nil, err
	}
	note.SyncStatus = storage.StatusPending

	logger.InfoContext(ctx, "note updated", "id", id)
	return note, nil
}

// Delete removes a note. Absent ids are a no-op, matching the store.
func (s *notesService) Delete(ctx context.Context, id string) error {
	logger := contextutil.LoggerFromContext(ctx)

	if err := s.store.Delete(ctx, id); err != nil {
		logger.ErrorContext(ctx, "failed to delete note", "id", id, "error", err)
		return WrapError(err, "failed to delete note")
	}

	logger.InfoContext(ctx, "note deleted", "id", id)
	return nil
}

func validateInput(input NoteInput) error {
	if input.Title == "" {
		return &ValidationError{Field: "title", Message: "cannot be empty"}
	}
	return nil
}

func normalizeTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
