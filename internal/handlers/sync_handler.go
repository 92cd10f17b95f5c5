package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ordersync/node/internal/models"
	"github.com/ordersync/node/internal/services"
)

// SyncHandler handles replication endpoints
type SyncHandler struct {
	syncService *services.SyncService
	scheduler   *services.SyncScheduler
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(syncService *services.SyncService, scheduler *services.SyncScheduler) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
		scheduler:   scheduler,
	}
}

// RunTable triggers a sync round for one table
// @Summary Run table sync
// @Description Runs one push/pull round for a single table. Responds 202 when a round is already in flight.
// @Tags sync
// @Produce json
// @Param table path string true "Table name"
// @Success 200 {object} models.SyncRunResponse
// @Success 202 {object} models.SyncRunResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/sync/{table}/run [post]
func (h *SyncHandler) RunTable(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	result, err := h.syncService.SyncTable(r.Context(), table)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSyncDisabled):
			writeError(w, http.StatusConflict, "Sync is disabled for this table.")
		case services.IsTransportError(err):
			log.Printf("Sync transport failure for %s: %v", table, err)
			writeError(w, http.StatusBadGateway, "Remote authority unreachable.")
		default:
			log.Printf("Sync round failed for %s: %v", table, err)
			writeError(w, http.StatusInternalServerError, "Sync round failed.")
		}
		return
	}

	status := http.StatusOK
	if result.Coalesced {
		status = http.StatusAccepted
	}
	writeJSON(w, status, roundResponse(result))
}

// RunAll triggers a sync round for every configured table
// @Summary Run full sync
// @Description Runs one push/pull round for every replicated table. Failed tables are skipped, not fatal.
// @Tags sync
// @Produce json
// @Success 200 {object} map[string]models.SyncRunResponse
// @Security ApiKeyAuth
// @Router /api/sync/run [post]
func (h *SyncHandler) RunAll(w http.ResponseWriter, r *http.Request) {
	results := h.syncService.SyncAll(r.Context())

	response := make(map[string]*models.SyncRunResponse, len(results))
	for table, result := range results {
		if result == nil {
			continue
		}
		response[table] = roundResponse(result)
	}

	writeJSON(w, http.StatusOK, response)
}

// GetStatus returns the per-table sync metadata snapshot
// @Summary Get sync status
// @Description Returns watermark, last sync time and conflict backlog size per table
// @Tags sync
// @Produce json
// @Success 200 {object} models.SyncStatusResponse
// @Security ApiKeyAuth
// @Router /api/sync/status [get]
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.syncService.Status(r.Context())
	if err != nil {
		log.Printf("Error reading sync status: %v", err)
		writeError(w, http.StatusInternalServerError, "Database error.")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// GetScheduler returns the background scheduler status
// @Summary Get scheduler status
// @Tags sync
// @Produce json
// @Success 200 {object} services.SchedulerStatus
// @Security ApiKeyAuth
// @Router /api/sync/scheduler [get]
func (h *SyncHandler) GetScheduler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.Status())
}

// RunSchedulerPass triggers one scheduled pass outside the interval
// @Summary Run scheduler pass
// @Description Runs one full scheduled pass over every table immediately and returns the updated scheduler status.
// @Tags sync
// @Produce json
// @Success 200 {object} services.SchedulerStatus
// @Security ApiKeyAuth
// @Router /api/sync/scheduler/run [post]
func (h *SyncHandler) RunSchedulerPass(w http.ResponseWriter, r *http.Request) {
	h.scheduler.RunNow(r.Context())
	writeJSON(w, http.StatusOK, h.scheduler.Status())
}

func roundResponse(result *services.RoundResult) *models.SyncRunResponse {
	return &models.SyncRunResponse{
		Table:     result.Table,
		Coalesced: result.Coalesced,
		Pushed:    result.Pushed,
		Pulled:    result.Pulled,
		Conflicts: result.Conflicts,
		Resolved:  result.Resolved,
		Committed: result.Committed,
	}
}
