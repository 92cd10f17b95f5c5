package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ordersync/node/internal/models"
	"github.com/ordersync/node/internal/observability"
	"github.com/ordersync/node/internal/repository"
)

// ConflictResolver applies a per-table strategy to detected conflicts.
// The default, last-write-wins, picks the version with the later
// UpdatedAt; manual leaves the entry unresolved until an operator
// supplies a resolution through the API.
type ConflictResolver struct {
	store     repository.DocumentStore
	conflicts repository.SyncConflictRepo
	log       *observability.Logger
}

// NewConflictResolver creates a new ConflictResolver
func NewConflictResolver(store repository.DocumentStore, conflicts repository.SyncConflictRepo) *ConflictResolver {
	return &ConflictResolver{
		store:     store,
		conflicts: conflicts,
		log:       observability.GetLogger().WithField("component", "conflict_resolver"),
	}
}

// Resolution is the outcome of applying a strategy to one conflict
type Resolution struct {
	Resolved bool
	Winner   string
	// Document is the canonical version to write locally; BaseRevision
	// carries the remote revision it supersedes. Nil while unresolved.
	Document *models.Document
}

// Resolve applies the table's strategy to a freshly detected conflict.
// Manual strategy resolves nothing; the conflict stays in the backlog.
func (r *ConflictResolver) Resolve(ctx context.Context, strategy string, conflict *models.SyncConflict, local *models.Document, remote *models.RemoteVersion) (*Resolution, error) {
	switch strategy {
	case models.StrategyLastWriteWins, "":
		return r.resolveLastWriteWins(ctx, conflict, local, remote)
	case models.StrategyManual:
		return &Resolution{}, nil
	default:
		return nil, fmt.Errorf("unknown conflict strategy %q", strategy)
	}
}

// resolveLastWriteWins picks the later UpdatedAt. An exact tie is broken
// by lexicographic id comparison so both sides decide identically; the
// remote authority wins the comparison for a shared id.
func (r *ConflictResolver) resolveLastWriteWins(ctx context.Context, conflict *models.SyncConflict, local *models.Document, remote *models.RemoteVersion) (*Resolution, error) {
	winner := models.WinnerRemote
	switch {
	case local.UpdatedAt.After(remote.UpdatedAt):
		winner = models.WinnerLocal
	case remote.UpdatedAt.After(local.UpdatedAt):
		winner = models.WinnerRemote
	default:
		if strings.Compare(remoteVersionID(remote, local.ID), local.ID) >= 0 {
			winner = models.WinnerRemote
		} else {
			winner = models.WinnerLocal
		}
	}

	doc := local
	if winner == models.WinnerRemote {
		merged, err := models.DocumentFromPayload(local.Table, local.ID, remote.Payload, remote.Revision)
		if err != nil {
			return nil, err
		}
		doc = merged
	} else {
		// Local payload stays canonical but the base moves to the
		// remote's current revision so the re-push is accepted.
		doc = &models.Document{
			Table:        local.Table,
			ID:           local.ID,
			SortKey:      local.SortKey,
			Payload:      local.Payload,
			BaseRevision: remote.Revision,
			UpdatedAt:    local.UpdatedAt,
			Deleted:      local.Deleted,
		}
	}

	if err := r.conflicts.Resolve(ctx, conflict.ID, models.StrategyLastWriteWins, winner, time.Now().UTC()); err != nil {
		return nil, err
	}
	conflict.MarkResolved(models.StrategyLastWriteWins, winner)

	r.log.WithContext(ctx).WithFields(map[string]interface{}{
		"table":     conflict.TableName,
		"record_id": conflict.RecordID,
		"conflict":  conflict.ID,
		"winner":    winner,
	}).Info("conflict resolved by last-write-wins")

	return &Resolution{Resolved: true, Winner: winner, Document: doc}, nil
}

// ResolveManually records an operator-supplied resolution for a backlog
// entry and writes the chosen payload to the local replica as pending,
// so the next round pushes it to the remote authority.
func (r *ConflictResolver) ResolveManually(ctx context.Context, conflictID, winner string, payload json.RawMessage) (*models.SyncConflict, error) {
	conflict, err := r.conflicts.GetByID(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if conflict == nil {
		return nil, repository.ErrConflictNotFound
	}

	var chosen json.RawMessage
	switch {
	case len(payload) > 0:
		winner = models.WinnerManual
		chosen = payload
	case winner == models.WinnerLocal:
		chosen = conflict.LocalPayload
	case winner == models.WinnerRemote:
		chosen = conflict.RemotePayload
	default:
		return nil, fmt.Errorf("winner must be %q or %q, or a payload must be supplied", models.WinnerLocal, models.WinnerRemote)
	}

	doc, err := models.DocumentFromPayload(conflict.TableName, conflict.RecordID, chosen, 0)
	if err != nil {
		return nil, err
	}
	// The resolution is a fresh local write: it must replicate.
	doc.UpdatedAt = time.Now().UTC()
	doc.SyncedAt = nil

	if err := r.conflicts.Resolve(ctx, conflict.ID, models.StrategyManual, winner, time.Now().UTC()); err != nil {
		return nil, err
	}
	if _, err := r.store.BulkUpsert(ctx, conflict.TableName, []*models.Document{doc}); err != nil {
		return nil, err
	}

	conflict.MarkResolved(models.StrategyManual, winner)
	return conflict, nil
}

// remoteVersionID extracts the record id carried by the remote payload,
// falling back to the local id when absent
func remoteVersionID(remote *models.RemoteVersion, fallback string) string {
	var fields struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(remote.Payload, &fields); err != nil || fields.ID == "" {
		return fallback
	}
	return fields.ID
}
