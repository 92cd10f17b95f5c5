package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Conflict winners
const (
	WinnerLocal  = "local"
	WinnerRemote = "remote"
	WinnerManual = "manual"
)

// SyncConflict is one entry of the append-only conflict log. Entries
// are created unresolved by the detector and mutated exactly once by
// the resolver; they are never physically deleted.
type SyncConflict struct {
	ID                 string          `json:"id"`
	TableName          string          `json:"tableName"`
	RecordID           string          `json:"recordId"`
	LocalPayload       json.RawMessage `json:"localPayload"`
	RemotePayload      json.RawMessage `json:"remotePayload"`
	LocalUpdatedAt     time.Time       `json:"localUpdatedAt"`
	RemoteUpdatedAt    time.Time       `json:"remoteUpdatedAt"`
	ResolutionStrategy string          `json:"resolutionStrategy,omitempty"`
	Winner             string          `json:"winner,omitempty"`
	DetectedAt         time.Time       `json:"detectedAt"`
	ResolvedAt         *time.Time      `json:"resolvedAt,omitempty"`
	Resolved           bool            `json:"isResolved"`
}

// NewSyncConflict creates an unresolved conflict log entry
func NewSyncConflict(tableName, recordID string, local, remote json.RawMessage, localUpdated, remoteUpdated time.Time) *SyncConflict {
	return &SyncConflict{
		ID:              uuid.New().String(),
		TableName:       tableName,
		RecordID:        recordID,
		LocalPayload:    local,
		RemotePayload:   remote,
		LocalUpdatedAt:  localUpdated,
		RemoteUpdatedAt: remoteUpdated,
		DetectedAt:      time.Now().UTC(),
	}
}

// MarkResolved records the resolution. Resolved entries always carry a
// resolution timestamp and strategy.
func (c *SyncConflict) MarkResolved(strategy, winner string) {
	now := time.Now().UTC()
	c.ResolutionStrategy = strategy
	c.Winner = winner
	c.ResolvedAt = &now
	c.Resolved = true
}
