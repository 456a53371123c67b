package handlers

import (
	"context"
	"net/http"

	"fieldnotes/internal/contextutil"
	"fieldnotes/internal/sync"
)

// Syncer triggers one reconciliation pass.
// This interface is defined from the handler's perspective (consumer-first).
type Syncer interface {
	Sync(ctx context.Context) (sync.Result, error)
}

// SyncHandler handles HTTP requests to trigger a sync pass.
type SyncHandler struct {
	engine Syncer
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(engine Syncer) *SyncHandler {
	return &SyncHandler{engine: engine}
}

// syncErrorResponse carries the partial accounting alongside the error.
type syncErrorResponse struct {
	Error     string      `json:"error"`
	Status    sync.Status `json:"status"`
	Processed int         `json:"processed"`
	Failed    int         `json:"failed"`
}

// ServeHTTP runs one sync pass and reports its outcome.
func (h *SyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	result, err := h.engine.Sync(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "sync failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, syncErrorResponse{
			Error:     "sync failed",
			Status:    result.Status,
			Processed: result.Processed,
			Failed:    result.Failed,
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}
