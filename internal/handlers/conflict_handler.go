package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ordersync/node/internal/models"
	"github.com/ordersync/node/internal/repository"
	"github.com/ordersync/node/internal/services"
)

// ConflictHandler handles the sync conflict backlog endpoints
type ConflictHandler struct {
	conflictRepo repository.SyncConflictRepo
	resolver     *services.ConflictResolver
}

// NewConflictHandler creates a new ConflictHandler
func NewConflictHandler(conflictRepo repository.SyncConflictRepo, resolver *services.ConflictResolver) *ConflictHandler {
	return &ConflictHandler{
		conflictRepo: conflictRepo,
		resolver:     resolver,
	}
}

// ListConflicts returns a page of the conflict log
// @Summary List sync conflicts
// @Description Lists recorded sync conflicts, optionally filtered by resolution state
// @Tags conflicts
// @Produce json
// @Param resolved query bool false "Filter by resolved state"
// @Param skip query int false "Pagination offset"
// @Param take query int false "Page size (default 50)"
// @Success 200 {object} models.ConflictListResponse
// @Security ApiKeyAuth
// @Router /api/sync/conflicts [get]
func (h *ConflictHandler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	var resolved *bool
	if raw := r.URL.Query().Get("resolved"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid resolved filter.")
			return
		}
		resolved = &value
	}

	skip := parseIntParam(r, "skip", 0)
	take := parseIntParam(r, "take", 50)
	if take < 1 || take > 500 {
		take = 50
	}

	conflicts, total, err := h.conflictRepo.List(r.Context(), resolved, skip, take)
	if err != nil {
		log.Printf("Error listing conflicts: %v", err)
		writeError(w, http.StatusInternalServerError, "Database error.")
		return
	}

	if conflicts == nil {
		conflicts = []*models.SyncConflict{}
	}

	writeJSON(w, http.StatusOK, models.ConflictListResponse{
		Conflicts:  conflicts,
		TotalCount: total,
		Skip:       skip,
		Take:       take,
	})
}

// ResolveConflict applies an operator decision to one conflict
// @Summary Resolve a sync conflict
// @Description Marks a conflict resolved with the chosen winner, or an operator-supplied payload
// @Tags conflicts
// @Accept json
// @Produce json
// @Param id path string true "Conflict ID"
// @Param request body models.ResolveConflictRequest true "Resolution"
// @Success 200 {object} models.SyncConflict
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/sync/conflicts/{id}/resolve [post]
func (h *ConflictHandler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	conflictID := chi.URLParam(r, "id")

	var req models.ResolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	if req.Payload == nil && req.Winner != models.WinnerLocal && req.Winner != models.WinnerRemote {
		writeError(w, http.StatusBadRequest, "Winner must be 'local' or 'remote', or a payload must be supplied.")
		return
	}

	conflict, err := h.resolver.ResolveManually(r.Context(), conflictID, req.Winner, req.Payload)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrConflictNotFound):
			writeError(w, http.StatusNotFound, "Conflict not found.")
		case errors.Is(err, repository.ErrConflictResolved):
			writeError(w, http.StatusConflict, "Conflict is already resolved.")
		default:
			log.Printf("Error resolving conflict %s: %v", conflictID, err)
			writeError(w, http.StatusInternalServerError, "Failed to resolve conflict.")
		}
		return
	}

	writeJSON(w, http.StatusOK, conflict)
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
