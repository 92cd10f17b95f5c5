package models

import "time"

// Sync directions
const (
	DirectionPush          = "push"
	DirectionPull          = "pull"
	DirectionBidirectional = "bidirectional"
)

// Conflict resolution strategies
const (
	StrategyLastWriteWins = "last_write_wins"
	StrategyManual        = "manual"
)

// SyncConfig is the per-table sync configuration blob
type SyncConfig struct {
	Enabled          bool   `json:"enabled"`
	Direction        string `json:"direction"`
	ConflictStrategy string `json:"conflictStrategy"`
}

// SyncMetadata tracks sync state for one table. LastSyncRevision is the
// watermark: the highest remote revision fully incorporated locally. It
// only moves forward, and only when a round commits.
type SyncMetadata struct {
	TableName        string     `json:"tableName"`
	LastSync         *time.Time `json:"lastSync,omitempty"`
	LastSyncRevision int64      `json:"lastSyncRevision"`
	Config           SyncConfig `json:"syncConfig"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// NewSyncMetadata creates metadata for a table's first sync attempt
func NewSyncMetadata(tableName string) *SyncMetadata {
	now := time.Now().UTC()
	return &SyncMetadata{
		TableName: tableName,
		Config: SyncConfig{
			Enabled:          true,
			Direction:        DirectionBidirectional,
			ConflictStrategy: StrategyLastWriteWins,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// PushEnabled reports whether local changes are sent to the remote
func (m *SyncMetadata) PushEnabled() bool {
	return m.Config.Direction == DirectionPush || m.Config.Direction == DirectionBidirectional
}

// PullEnabled reports whether remote changes are merged locally
func (m *SyncMetadata) PullEnabled() bool {
	return m.Config.Direction == DirectionPull || m.Config.Direction == DirectionBidirectional
}

// LastSyncTime returns the last successful sync time, zero if never synced
func (m *SyncMetadata) LastSyncTime() time.Time {
	if m.LastSync == nil {
		return time.Time{}
	}
	return *m.LastSync
}
