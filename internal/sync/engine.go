// Package sync drives reconciliation between the local note store and the
// remote notes API.
package sync

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_remote.go -package=mocks fieldnotes/internal/sync API,ConnectivityProbe

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"fieldnotes/internal/remote"
	"fieldnotes/internal/storage"
)

// API is the remote contract the engine pushes against.
// This interface is defined from the engine's perspective (consumer-first).
type API interface {
	// FetchAll retrieves every remote note; used for initial population only.
	FetchAll(ctx context.Context) ([]remote.Note, error)
	// Create posts a new note and returns the server's canonical version.
	Create(ctx context.Context, payload remote.CreatePayload) (*remote.Note, error)
	// Update patches a note; returns (nil, nil) when accepted and the
	// server's current note on a conflict.
	Update(ctx context.Context, id string, payload remote.UpdatePayload) (*remote.Note, error)
	// Delete removes a note.
	Delete(ctx context.Context, id string) error
}

// ConnectivityProbe reports whether network connectivity is present.
type ConnectivityProbe interface {
	Online(ctx context.Context) bool
}

// Status classifies the outcome of a sync pass.
type Status string

const (
	// StatusSuccess means every processed record succeeded.
	StatusSuccess Status = "success"
	// StatusPartial means at least one record failed.
	StatusPartial Status = "partial"
	// StatusOffline means the connectivity probe reported no network.
	StatusOffline Status = "offline"
	// StatusNoData means no records needed processing, or a pass was
	// already in flight.
	StatusNoData Status = "no-data"
)

// Result summarizes one sync pass. Per-record error detail is not exposed;
// failed records can be found afterwards by their failed sync status.
type Result struct {
	Status    Status `json:"status"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
}

// Engine pushes locally pending mutations to the remote authority and writes
// the outcomes back to the store. It is safe for concurrent use; overlapping
// Sync calls are rejected by a non-reentrant guard rather than queued.
type Engine struct {
	store  storage.NoteStore
	remote API
	probe  ConnectivityProbe
	logger *slog.Logger

	syncing atomic.Bool
}

// NewEngine creates a sync engine over the given store, remote API and
// connectivity probe.
func NewEngine(store storage.NoteStore, api API, probe ConnectivityProbe) *Engine {
	return &Engine{
		store:  store,
		remote: api,
		probe:  probe,
		logger: slog.Default(),
	}
}

// Sync runs one reconciliation pass. A second call while one is in flight
// returns no-data immediately; the caller must re-invoke. When the pass
// itself fails mid-way the counts accumulated so far are still returned,
// classified as partial.
func (e *Engine) Sync(ctx context.Context) (Result, error) {
	if !e.syncing.CompareAndSwap(false, true) {
		return Result{Status: StatusNoData}, nil
	}
	defer e.syncing.Store(false)

	if !e.probe.Online(ctx) {
		return Result{Status: StatusOffline}, nil
	}

	processed, failed, err := e.pushChanges(ctx)
	if err != nil {
		e.logger.ErrorContext(ctx, "sync pass aborted", "processed", processed, "failed", failed, "error", err)
		return Result{Status: StatusPartial, Processed: processed, Failed: failed}, err
	}

	result := Result{Processed: processed, Failed: failed}
	switch {
	case processed == 0 && failed == 0:
		result.Status = StatusNoData
	case failed > 0:
		result.Status = StatusPartial
	default:
		result.Status = StatusSuccess
	}

	e.logger.InfoContext(ctx, "sync pass finished", "status", string(result.Status), "processed", processed, "failed", failed)
	return result, nil
}

// pushChanges processes every syncable record independently. Records do not
// depend on each other's outcome, so a per-record failure never aborts the
// rest of the pass; only store integrity errors with no fallback propagate.
func (e *Engine) pushChanges(ctx context.Context) (processed, failed int, err error) {
	rows, err := e.store.ListSyncable(ctx)
	if err != nil {
		return 0, 0, err
	}

	for _, row := range rows {
		var ok bool
		var recordErr error

		switch {
		case row.IsDeleted:
			ok = e.pushDelete(ctx, row)
		case row.SyncAction == storage.ActionCreate:
			ok, recordErr = e.pushCreate(ctx, row)
		case row.SyncAction == storage.ActionUpdate:
			ok = e.pushUpdate(ctx, row)
		default:
			// Inconsistent row: pending without an action. Nothing can be
			// pushed, so surface it as failed instead of carrying it
			// invisibly through every pass.
			e.logger.WarnContext(ctx, "syncable row with no action", "id", row.ID)
			e.markFailed(ctx, row.ID)
			ok = false
		}

		if recordErr != nil {
			return processed, failed, recordErr
		}
		if ok {
			processed++
		} else {
			failed++
		}
	}

	return processed, failed, nil
}

// pushCreate posts a locally created note. On success the remote assigns the
// canonical id, which replaces the client-generated one atomically. The local
// record is re-read after the round-trip: an edit that landed while the
// request was in flight must survive as a pending update under the new id.
func (e *Engine) pushCreate(ctx context.Context, row *storage.NoteRow) (bool, error) {
	created, err := e.remote.Create(ctx, remote.CreatePayload{
		Title: row.Title,
		Body:  row.Body,
		Tags:  row.Tags,
	})
	if err != nil {
		e.logger.WarnContext(ctx, "remote create failed", "id", row.ID, "error", err)
		e.markFailed(ctx, row.ID)
		return false, nil
	}

	fresh, err := e.store.GetRow(ctx, row.ID)
	if errors.Is(err, storage.ErrNotFound) {
		// Purged locally while the create was in flight.
		return true, nil
	}
	if err != nil {
		e.markFailed(ctx, row.ID)
		return false, nil
	}

	if err := e.store.ReconcileID(ctx, row.ID, created.ID); err != nil {
		// An id collision here has no sane fallback.
		return false, err
	}

	if !fresh.UpdatedAt.Equal(row.UpdatedAt) {
		// Edited during the round-trip. The note now exists remotely, so its
		// next sync must be an update, not a duplicate create.
		if err := e.store.SetSyncState(ctx, created.ID, storage.StatusPending, storage.ActionUpdate); err != nil {
			e.logger.ErrorContext(ctx, "failed to re-arm note as update", "id", created.ID, "error", err)
			return false, nil
		}
		return true, nil
	}

	if err := e.store.MarkSynced(ctx, created.ID); err != nil {
		e.logger.ErrorContext(ctx, "failed to mark note synced", "id", created.ID, "error", err)
		return false, nil
	}
	return true, nil
}

// pushUpdate patches a remotely known note, sending the local updated-at as
// the optimistic-concurrency token. Conflicts resolve remote-wins. A remote
// 404 means the note was deleted server-side; the record is re-armed as a
// create so the next pass restores it rather than retrying forever.
func (e *Engine) pushUpdate(ctx context.Context, row *storage.NoteRow) bool {
	serverNote, err := e.remote.Update(ctx, row.ID, remote.UpdatePayload{
		Title:     row.Title,
		Body:      row.Body,
		Tags:      row.Tags,
		UpdatedAt: row.UpdatedAt,
	})
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			e.logger.WarnContext(ctx, "note gone from remote, re-arming as create", "id", row.ID)
			if stateErr := e.store.SetSyncState(ctx, row.ID, storage.StatusPending, storage.ActionCreate); stateErr != nil {
				e.logger.ErrorContext(ctx, "failed to re-arm note as create", "id", row.ID, "error", stateErr)
				return false
			}
			return true
		}
		e.logger.WarnContext(ctx, "remote update failed", "id", row.ID, "error", err)
		e.markFailed(ctx, row.ID)
		return false
	}

	if serverNote != nil {
		// Conflict: the remote copy is newer. Remote wins.
		overwrite := &storage.Note{
			ID:        row.ID,
			Title:     serverNote.Title,
			Body:      serverNote.Body,
			Tags:      serverNote.Tags,
			UpdatedAt: serverNote.UpdatedAt,
		}
		if err := e.store.Update(ctx, overwrite); err != nil {
			e.logger.ErrorContext(ctx, "failed to apply remote note", "id", row.ID, "error", err)
			e.markFailed(ctx, row.ID)
			return false
		}
		if err := e.store.MarkSynced(ctx, row.ID); err != nil {
			e.logger.ErrorContext(ctx, "failed to mark note synced", "id", row.ID, "error", err)
			return false
		}
		return true
	}

	fresh, err := e.store.GetRow(ctx, row.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return true
	}
	if err != nil {
		e.markFailed(ctx, row.ID)
		return false
	}

	if !fresh.UpdatedAt.Equal(row.UpdatedAt) {
		// Edited during the round-trip; stays pending so the next pass
		// pushes the newer content.
		return true
	}

	if err := e.store.MarkSynced(ctx, row.ID); err != nil {
		e.logger.ErrorContext(ctx, "failed to mark note synced", "id", row.ID, "error", err)
		return false
	}
	return true
}

// pushDelete confirms a tombstone with the remote. A remote 404 counts as
// success: the remote already agrees the note is gone.
func (e *Engine) pushDelete(ctx context.Context, row *storage.NoteRow) bool {
	err := e.remote.Delete(ctx, row.ID)
	if err != nil && !errors.Is(err, remote.ErrNotFound) {
		e.logger.WarnContext(ctx, "remote delete failed", "id", row.ID, "error", err)
		e.markFailed(ctx, row.ID)
		return false
	}

	if err := e.store.MarkSynced(ctx, row.ID); err != nil {
		e.logger.ErrorContext(ctx, "failed to retire tombstone", "id", row.ID, "error", err)
		return false
	}
	return true
}

func (e *Engine) markFailed(ctx context.Context, id string) {
	if err := e.store.MarkFailed(ctx, id); err != nil {
		e.logger.ErrorContext(ctx, "failed to mark note failed", "id", id, "error", err)
	}
}

// Bootstrap populates the local store from the remote, importing every note
// whose id is not already present locally as synced. Existing local rows are
// never overwritten. It shares the in-flight guard with Sync; if a pass is
// running the bootstrap is skipped.
func (e *Engine) Bootstrap(ctx context.Context) (int, error) {
	if !e.syncing.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer e.syncing.Store(false)

	notes, err := e.remote.FetchAll(ctx)
	if err != nil {
		return 0, err
	}

	imported := 0
	for _, n := range notes {
		_, err := e.store.GetRow(ctx, n.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return imported, err
		}

		note := &storage.Note{
			ID:        n.ID,
			Title:     n.Title,
			Body:      n.Body,
			Tags:      n.Tags,
			CreatedAt: n.CreatedAt,
			UpdatedAt: n.UpdatedAt,
		}
		if err := e.store.InsertSynced(ctx, note); err != nil {
			if errors.Is(err, storage.ErrDuplicateID) {
				continue
			}
			return imported, err
		}
		imported++
	}

	e.logger.InfoContext(ctx, "bootstrap finished", "imported", imported, "remote_total", len(notes))
	return imported, nil
}
