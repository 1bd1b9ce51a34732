// Package http provides HTTP handlers for batch mutation reconciliation.
package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/paperkeep/paperkeep/internal/middleware"
	"github.com/paperkeep/paperkeep/internal/models"
)

// SyncService defines the reconciliation operations required by SyncHandler.
type SyncService interface {
	// ProcessBatch applies each item independently and reports per-item
	// success and failure counts.
	ProcessBatch(ctx context.Context, ownerID string, items []models.BatchItem) models.BatchResponse
	// ListRecords returns all active records of one entity type.
	ListRecords(ctx context.Context, ownerID string, t models.EntityType) ([]json.RawMessage, error)
}

// SyncHandler handles the batch sync and record listing endpoints.
type SyncHandler struct {
	SyncService SyncService
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the {success:false, error} envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// Batch handles POST /sync/batch. It decodes the mutation descriptors,
// applies them for the authenticated owner, and reports per-item outcomes.
// One malformed item never fails the batch; a malformed body does.
func (h *SyncHandler) Batch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.GetUserIDFromContext(ctx)
	if ownerID == "" {
		writeError(w, http.StatusUnauthorized, "no authenticated owner")
		return
	}

	var req models.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "empty batch")
		return
	}

	result := h.SyncService.ProcessBatch(ctx, ownerID, req.Items)
	writeJSON(w, http.StatusOK, result)
}

// Records handles GET /records/{entityType}, returning the owner's active
// records of that type. Used by clients to hydrate a fresh local store.
func (h *SyncHandler) Records(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.GetUserIDFromContext(ctx)
	if ownerID == "" {
		writeError(w, http.StatusUnauthorized, "no authenticated owner")
		return
	}

	entityType := models.EntityType(chi.URLParam(r, "entityType"))
	if !entityType.Valid() {
		writeError(w, http.StatusBadRequest, "Unsupported entity type: "+string(entityType))
		return
	}
	records, err := h.SyncService.ListRecords(ctx, ownerID, entityType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if records == nil {
		records = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}
