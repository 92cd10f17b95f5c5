package services

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/ordersync/node/internal/models"
	"github.com/ordersync/node/internal/observability"
	"github.com/ordersync/node/internal/repository"
)

// ConflictDetector decides whether a push flagged by the remote is a
// real divergence. The remote flags a conflict when the pushed base
// revision is stale; the detector then compares payloads structurally.
// Two clients writing the same content is not a conflict, but two
// clients updating disjoint fields is: there is no field-level merge.
type ConflictDetector struct {
	conflicts repository.SyncConflictRepo
	log       *observability.Logger
}

// NewConflictDetector creates a new ConflictDetector
func NewConflictDetector(conflicts repository.SyncConflictRepo) *ConflictDetector {
	return &ConflictDetector{
		conflicts: conflicts,
		log:       observability.GetLogger().WithField("component", "conflict_detector"),
	}
}

// Detect compares the staged local change against the remote's current
// version. On real divergence it appends an unresolved conflict log
// entry and returns it; structurally equal payloads return nil.
func (d *ConflictDetector) Detect(ctx context.Context, table string, local *models.Document, remote *models.RemoteVersion) (*models.SyncConflict, error) {
	if payloadsEqual(local.Payload, remote.Payload) {
		return nil, nil
	}

	conflict := models.NewSyncConflict(
		table, local.ID,
		local.Payload, remote.Payload,
		local.UpdatedAt, remote.UpdatedAt,
	)
	if err := d.conflicts.Add(ctx, conflict); err != nil {
		return nil, err
	}

	d.log.WithContext(ctx).WithFields(map[string]interface{}{
		"table":     table,
		"record_id": local.ID,
		"conflict":  conflict.ID,
	}).Warn("sync conflict detected")

	return conflict, nil
}

// payloadsEqual is structural equality: the JSON values are compared,
// not the bytes, so key order and whitespace do not matter. The sync
// bookkeeping timestamps are ignored; only the domain content decides
// whether two versions diverge.
func payloadsEqual(a, b json.RawMessage) bool {
	av, aok := normalizePayload(a)
	bv, bok := normalizePayload(b)
	if !aok || !bok {
		return false
	}
	return reflect.DeepEqual(av, bv)
}

func normalizePayload(raw json.RawMessage) (map[string]interface{}, bool) {
	var v map[string]interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	delete(v, "updatedAt")
	delete(v, "syncedAt")
	return v, true
}
