package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fieldnotes/internal/contextutil"
	"fieldnotes/internal/service"
	"fieldnotes/internal/storage"
)

// NotesHandler handles HTTP requests for note CRUD.
type NotesHandler struct {
	notes service.NotesService
}

// NewNotesHandler creates a new NotesHandler.
func NewNotesHandler(notes service.NotesService) *NotesHandler {
	return &NotesHandler{notes: notes}
}

// NoteRequest represents the HTTP request payload for creating or updating a note.
type NoteRequest struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// List returns non-deleted notes, filtered by the q and tag query params.
func (h *NotesHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	notes, err := h.notes.List(ctx, r.URL.Query().Get("q"), r.URL.Query().Get("tag"))
	if err != nil {
		logger.ErrorContext(ctx, "failed to list notes", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list notes")
		return
	}
	if notes == nil {
		notes = []*storage.Note{}
	}

	writeJSON(w, http.StatusOK, notes)
}

// Get returns a single note by id.
func (h *NotesHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	note, err := h.notes.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err, "failed to get note")
		return
	}

	writeJSON(w, http.StatusOK, note)
}

// Create makes a new local note.
func (h *NotesHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req NoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	note, err := h.notes.Create(ctx, service.NoteInput{Title: req.Title, Body: req.Body, Tags: req.Tags})
	if err != nil {
		h.writeServiceError(w, r, err, "failed to create note")
		return
	}

	writeJSON(w, http.StatusCreated, note)
}

// Update edits an existing note.
func (h *NotesHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req NoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	note, err := h.notes.Update(ctx, chi.URLParam(r, "id"), service.NoteInput{Title: req.Title, Body: req.Body, Tags: req.Tags})
	if err != nil {
		h.writeServiceError(w, r, err, "failed to update note")
		return
	}

	writeJSON(w, http.StatusOK, note)
}

// Delete removes a note.
func (h *NotesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if err := h.notes.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		logger.ErrorContext(ctx, "failed to delete note", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete note")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *NotesHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "note not found")
	case errors.Is(err, storage.ErrDuplicateID):
		writeError(w, http.StatusConflict, "note id already exists")
	default:
		logger.ErrorContext(ctx, msg, "error", err)
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
