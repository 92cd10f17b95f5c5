package models

import (
	"encoding/json"
	"time"
)

// Table names for all replicated entities
const (
	TableOrders          = "orders"
	TableMenuItems       = "menu_items"
	TableUsers           = "users"
	TableDeliveryPersons = "delivery_persons"
	TableCustomers       = "customers"
)

// SyncTables lists every table included in replication by default
var SyncTables = []string{
	TableOrders,
	TableMenuItems,
	TableUsers,
	TableDeliveryPersons,
	TableCustomers,
}

// SyncableRecord is implemented by every entity replicated between nodes
type SyncableRecord interface {
	RecordID() string
	RecordCreatedAt() time.Time
	RecordUpdatedAt() time.Time
	RecordSyncedAt() *time.Time
	RecordDeleted() bool
}

// SyncFields carries the replication bookkeeping shared by all entities.
// Deletions are soft: a deleted record stays as a tombstone so the
// deletion itself can replicate.
type SyncFields struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	SyncedAt  *time.Time `json:"syncedAt,omitempty"`
	Deleted   bool       `json:"isDeleted"`
}

// RecordID returns the record identifier
func (f *SyncFields) RecordID() string { return f.ID }

// RecordCreatedAt returns the creation timestamp
func (f *SyncFields) RecordCreatedAt() time.Time { return f.CreatedAt }

// RecordUpdatedAt returns the last modification timestamp
func (f *SyncFields) RecordUpdatedAt() time.Time { return f.UpdatedAt }

// RecordSyncedAt returns the last remote acknowledgement, nil while pending
func (f *SyncFields) RecordSyncedAt() *time.Time { return f.SyncedAt }

// RecordDeleted reports whether the record is a tombstone
func (f *SyncFields) RecordDeleted() bool { return f.Deleted }

// Touch advances UpdatedAt and marks the record pending again.
// UpdatedAt never moves backwards even under clock skew.
func (f *SyncFields) Touch() {
	now := time.Now().UTC()
	if now.After(f.UpdatedAt) {
		f.UpdatedAt = now
	}
	f.SyncedAt = nil
}

// Document is the storage envelope for one replicated record. The
// payload is the JSON form of the entity; Revision is the local store's
// write counter, BaseRevision the last remote revision acknowledged for
// this record (0 when the record has never been pulled or accepted).
type Document struct {
	Table        string          `json:"table"`
	ID           string          `json:"id"`
	SortKey      string          `json:"sortKey"`
	Payload      json.RawMessage `json:"payload"`
	Revision     int64           `json:"revision"`
	BaseRevision int64           `json:"baseRevision"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	SyncedAt     *time.Time      `json:"syncedAt,omitempty"`
	Deleted      bool            `json:"isDeleted"`
}

// sortKeyTimeFormat is fixed-width and zero-padded so that
// lexicographic key order matches chronological order.
const sortKeyTimeFormat = "20060102T150405.000000000"

// SortKey composes the range-scan key for a record. Orders key on
// creation time so one ordered scan enumerates a calendar day; all
// other tables key on the identifier.
func SortKey(table, id string, createdAt time.Time) string {
	if table == TableOrders {
		return createdAt.UTC().Format(sortKeyTimeFormat) + ":" + id
	}
	return id
}

// DaySortKeyRange returns the [start, end) sort-key window covering one
// calendar day of orders.
func DaySortKeyRange(day time.Time) (string, string) {
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return d.Format("20060102"), d.AddDate(0, 0, 1).Format("20060102")
}

// NewDocument wraps a syncable record into its storage envelope
func NewDocument(table string, rec SyncableRecord) (*Document, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return &Document{
		Table:     table,
		ID:        rec.RecordID(),
		SortKey:   SortKey(table, rec.RecordID(), rec.RecordCreatedAt()),
		Payload:   payload,
		UpdatedAt: rec.RecordUpdatedAt(),
		SyncedAt:  rec.RecordSyncedAt(),
		Deleted:   rec.RecordDeleted(),
	}, nil
}

// DocumentFromPayload rebuilds a storage envelope from a remote payload.
// Every replicated entity embeds SyncFields, so the envelope metadata
// can be recovered from the payload alone.
func DocumentFromPayload(table, id string, payload json.RawMessage, revision int64) (*Document, error) {
	var fields SyncFields
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	if fields.ID != "" {
		id = fields.ID
	}
	return &Document{
		Table:        table,
		ID:           id,
		SortKey:      SortKey(table, id, fields.CreatedAt),
		Payload:      payload,
		BaseRevision: revision,
		UpdatedAt:    fields.UpdatedAt,
		Deleted:      fields.Deleted,
	}, nil
}
