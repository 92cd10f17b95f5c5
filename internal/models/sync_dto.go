package models

import (
	"encoding/json"
	"time"
)

// Push outcomes returned by the remote authority
const (
	OutcomeAccepted = "accepted"
	OutcomeConflict = "conflict"
)

// PushItem is one staged local change sent to the remote authority.
// BaseRevision is the remote revision the node believed it was editing.
type PushItem struct {
	ID           string          `json:"id"`
	Payload      json.RawMessage `json:"payload"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	BaseRevision int64           `json:"baseRevision"`
}

// PushRequest is the body of POST /sync/{table}/push
type PushRequest struct {
	NodeID  string     `json:"nodeId"`
	Records []PushItem `json:"records"`
}

// RemoteVersion is the remote authority's current version of a record,
// attached to conflict outcomes
type RemoteVersion struct {
	Payload   json.RawMessage `json:"payload"`
	Revision  int64           `json:"revision"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// PushResult is the remote's verdict for one pushed record
type PushResult struct {
	ID            string         `json:"id"`
	Outcome       string         `json:"outcome"`
	Revision      int64          `json:"revision,omitempty"`
	RemoteVersion *RemoteVersion `json:"remoteVersion,omitempty"`
}

// PushResponse is the response of POST /sync/{table}/push
type PushResponse struct {
	Results []PushResult `json:"results"`
}

// PullItem is one remote record newer than the pull watermark
type PullItem struct {
	ID       string          `json:"id"`
	Payload  json.RawMessage `json:"payload"`
	Revision int64           `json:"revision"`
}

// PullResponse is the response of GET /sync/{table}/pull
type PullResponse struct {
	Records    []PullItem `json:"records"`
	ServerTime time.Time  `json:"serverTime,omitempty"`
}

// ErrorResponse is the generic HTTP error body
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the health endpoint body
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncRunResponse reports the outcome of a triggered sync round
type SyncRunResponse struct {
	Table     string `json:"table"`
	Coalesced bool   `json:"coalesced"`
	Pushed    int    `json:"pushed"`
	Pulled    int    `json:"pulled"`
	Conflicts int    `json:"conflicts"`
	Resolved  int    `json:"resolved"`
	Committed bool   `json:"committed"`
}

// SyncStatusResponse is the per-table metadata snapshot
type SyncStatusResponse struct {
	Tables              []*SyncMetadata `json:"tables"`
	UnresolvedConflicts int             `json:"unresolvedConflicts"`
}

// ConflictListResponse is the conflict backlog page
type ConflictListResponse struct {
	Conflicts  []*SyncConflict `json:"conflicts"`
	TotalCount int             `json:"totalCount"`
	Skip       int             `json:"skip"`
	Take       int             `json:"take"`
}

// ResolveConflictRequest is the manual resolution request. Winner picks
// which recorded payload becomes canonical; a non-nil Payload supplies
// an operator-written resolution instead.
type ResolveConflictRequest struct {
	Winner  string          `json:"winner"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SequenceRepairResponse reports a day-sequence repair
type SequenceRepairResponse struct {
	Day        string `json:"day"`
	Renumbered int    `json:"renumbered"`
}
