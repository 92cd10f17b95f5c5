package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ordersync/node/internal/models"
	"github.com/ordersync/node/internal/observability"
	"github.com/ordersync/node/internal/repository"
)

// AuthFunc is the opaque authentication precondition checked before any
// sync round runs
type AuthFunc func(ctx context.Context) error

// RoundResult summarizes one per-table sync round
type RoundResult struct {
	Table     string
	Coalesced bool
	Pushed    int
	Pulled    int
	Conflicts int
	Resolved  int
	// Committed is true when the watermark advanced: the round finished
	// push and pull with zero outstanding conflicts
	Committed bool
}

// SyncService runs the per-table replication round: push local changes,
// detect and resolve conflicts, pull remote changes, and advance the
// watermark all-or-nothing. Rounds for different tables run
// concurrently; rounds for the same table are coalesced.
type SyncService struct {
	store     repository.DocumentStore
	metadata  repository.SyncMetadataRepo
	conflicts repository.SyncConflictRepo
	tracker   *ChangeTracker
	transport SyncTransport
	detector  *ConflictDetector
	resolver  *ConflictResolver
	sequencer *DaySequencer
	locks     *KeyedLocks
	auth      AuthFunc
	hub       *EventHub
	metrics   *observability.SyncMetrics
	log       *observability.Logger
	tables    []string
	batchSize int
}

// SyncServiceOptions configures a SyncService
type SyncServiceOptions struct {
	Tables    []string
	BatchSize int
	Auth      AuthFunc
}

// NewSyncService creates a new SyncService
func NewSyncService(
	store repository.DocumentStore,
	metadata repository.SyncMetadataRepo,
	conflicts repository.SyncConflictRepo,
	transport SyncTransport,
	sequencer *DaySequencer,
	locks *KeyedLocks,
	opts SyncServiceOptions,
) *SyncService {
	tables := opts.Tables
	if len(tables) == 0 {
		tables = models.SyncTables
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	return &SyncService{
		store:     store,
		metadata:  metadata,
		conflicts: conflicts,
		tracker:   NewChangeTracker(store),
		transport: transport,
		detector:  NewConflictDetector(conflicts),
		resolver:  NewConflictResolver(store, conflicts),
		sequencer: sequencer,
		locks:     locks,
		auth:      opts.Auth,
		log:       observability.GetLogger().WithField("component", "sync_service"),
		tables:    tables,
		batchSize: batchSize,
	}
}

// SetEventHub sets the hub for sync notifications
func (s *SyncService) SetEventHub(hub *EventHub) {
	s.hub = hub
}

// SetMetrics sets the metric instruments
func (s *SyncService) SetMetrics(metrics *observability.SyncMetrics) {
	s.metrics = metrics
}

// Resolver exposes the conflict resolver for manual resolution handlers
func (s *SyncService) Resolver() *ConflictResolver {
	return s.resolver
}

// Tables returns the tables included in replication
func (s *SyncService) Tables() []string {
	return s.tables
}

// SyncTable runs one replication round for a table. A round already
// in-flight for the same table coalesces the request: the result
// reports Coalesced and nothing else happens, since the running round
// will observe the latest state.
func (s *SyncService) SyncTable(ctx context.Context, table string) (*RoundResult, error) {
	if s.auth != nil {
		if err := s.auth(ctx); err != nil {
			return nil, err
		}
	}

	release, ok := s.locks.TryAcquire("sync:" + table)
	if !ok {
		return &RoundResult{Table: table, Coalesced: true}, nil
	}
	defer release()

	result, err := s.runRound(ctx, table)
	if err != nil {
		s.log.WithContext(ctx).WithFields(map[string]interface{}{
			"table": table,
			"error": err.Error(),
		}).Warn("sync round aborted")
		if s.metrics != nil {
			s.metrics.RoundFailed(ctx, table)
		}
		if s.hub != nil {
			s.hub.BroadcastToTopic(TopicSync, Event{
				Type:    EventTypeSyncFailed,
				Payload: SyncRoundPayload{Table: table},
			})
		}
		return nil, err
	}
	return result, nil
}

// SyncAll runs a round for every replicated table. Failures are
// isolated: one table's transport or storage error never touches the
// other tables' rounds.
func (s *SyncService) SyncAll(ctx context.Context) map[string]*RoundResult {
	results := make(map[string]*RoundResult, len(s.tables))
	for _, table := range s.tables {
		result, err := s.SyncTable(ctx, table)
		if err != nil {
			results[table] = nil
			continue
		}
		results[table] = result
	}
	return results
}

// Status returns the metadata snapshot plus the unresolved backlog size
func (s *SyncService) Status(ctx context.Context) (*models.SyncStatusResponse, error) {
	metas, err := s.metadata.List(ctx)
	if err != nil {
		return nil, err
	}
	unresolved, err := s.conflicts.CountUnresolved(ctx)
	if err != nil {
		return nil, err
	}
	return &models.SyncStatusResponse{Tables: metas, UnresolvedConflicts: unresolved}, nil
}

// roundState accumulates the effects of one round until commit
type roundState struct {
	meta       *models.SyncMetadata
	watermark  int64
	merge      []*models.Document // staged writes, committed in one bulk upsert
	withheld   map[string]bool    // record ids suspended by unresolved conflicts
	orderDays  map[string]bool    // days whose sequence needs repair after commit
	pushed     int
	pulled     int
	conflicts  int
	resolved   int
	unresolved int
}

func (s *SyncService) runRound(ctx context.Context, table string) (*RoundResult, error) {
	meta, err := s.loadMetadata(ctx, table)
	if err != nil {
		return nil, err
	}
	if !meta.Config.Enabled {
		return nil, ErrSyncDisabled
	}

	roundStart := time.Now().UTC()
	st := &roundState{
		meta:      meta,
		watermark: meta.LastSyncRevision,
		withheld:  make(map[string]bool),
		orderDays: make(map[string]bool),
	}

	// Push is fully applied before pull begins, so the node never pulls
	// back a divergence it has not yet registered as a conflict.
	if meta.PushEnabled() {
		if err := s.pushChanges(ctx, table, st); err != nil {
			return nil, err
		}
	}
	if meta.PullEnabled() {
		if err := s.pullChanges(ctx, table, st); err != nil {
			return nil, err
		}
	}

	// The bulk upsert is the sole local commit point of the round.
	if _, err := s.store.BulkUpsert(ctx, table, st.merge); err != nil {
		return nil, err
	}

	// The watermark advances only when the round ends with zero
	// outstanding conflicts; otherwise the next round replays.
	committed := st.unresolved == 0
	if committed {
		meta.LastSync = &roundStart
		meta.LastSyncRevision = st.watermark
		if err := s.metadata.Advance(ctx, table, roundStart, st.watermark); err != nil {
			return nil, err
		}
	}

	if table == models.TableOrders {
		s.repairAffectedDays(ctx, st)
	}

	result := &RoundResult{
		Table:     table,
		Pushed:    st.pushed,
		Pulled:    st.pulled,
		Conflicts: st.conflicts,
		Resolved:  st.resolved,
		Committed: committed,
	}

	s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"table":     table,
		"pushed":    st.pushed,
		"pulled":    st.pulled,
		"conflicts": st.conflicts,
		"resolved":  st.resolved,
		"committed": committed,
	}).Info("sync round finished")

	if s.metrics != nil && committed {
		s.metrics.RoundCompleted(ctx, table, st.pushed, st.pulled)
	}
	if s.hub != nil {
		s.hub.BroadcastToTopic(TopicSync, Event{
			Type: EventTypeSyncCompleted,
			Payload: SyncRoundPayload{
				Table:     table,
				Pushed:    st.pushed,
				Pulled:    st.pulled,
				Conflicts: st.conflicts,
				Resolved:  st.resolved,
				Committed: committed,
			},
		})
	}

	return result, nil
}

// loadMetadata reads the table's sync state, creating it on the first attempt
func (s *SyncService) loadMetadata(ctx context.Context, table string) (*models.SyncMetadata, error) {
	meta, err := s.metadata.Get(ctx, table)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		meta = models.NewSyncMetadata(table)
		if err := s.metadata.Upsert(ctx, meta); err != nil {
			return nil, err
		}
	}
	return meta, nil
}

// pushChanges sends pending local changes in batches and folds the
// remote's verdicts into the round state
func (s *SyncService) pushChanges(ctx context.Context, table string, st *roundState) error {
	pending, err := s.tracker.CollectPending(ctx, table, st.meta.LastSyncTime())
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	byID := make(map[string]*models.Document, len(pending))
	for _, doc := range pending {
		byID[doc.ID] = doc
	}

	for start := 0; start < len(pending); start += s.batchSize {
		end := start + s.batchSize
		if end > len(pending) {
			end = len(pending)
		}

		items := make([]models.PushItem, 0, end-start)
		for _, doc := range pending[start:end] {
			items = append(items, models.PushItem{
				ID:           doc.ID,
				Payload:      doc.Payload,
				UpdatedAt:    doc.UpdatedAt,
				BaseRevision: doc.BaseRevision,
			})
		}

		results, err := s.transport.Push(ctx, table, items)
		if err != nil {
			return err
		}

		for _, res := range results {
			doc, ok := byID[res.ID]
			if !ok {
				continue
			}
			switch res.Outcome {
			case models.OutcomeAccepted:
				s.stageAccepted(st, doc, res.Revision)
			case models.OutcomeConflict:
				if err := s.handleConflict(ctx, table, st, doc, res.RemoteVersion); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// stageAccepted marks a pushed document acknowledged at the given
// remote revision
func (s *SyncService) stageAccepted(st *roundState, doc *models.Document, revision int64) {
	now := time.Now().UTC()
	doc.BaseRevision = revision
	doc.SyncedAt = &now
	st.merge = append(st.merge, doc)
	st.pushed++
	if revision > st.watermark {
		st.watermark = revision
	}
}

// handleConflict runs detection and the table's resolution strategy for
// one conflicted push
func (s *SyncService) handleConflict(ctx context.Context, table string, st *roundState, doc *models.Document, remote *models.RemoteVersion) error {
	if remote == nil {
		// Conflict outcome without a remote version is a protocol
		// violation; withhold the record and surface it next round.
		st.unresolved++
		st.withheld[doc.ID] = true
		return nil
	}

	conflict, err := s.detector.Detect(ctx, table, doc, remote)
	if err != nil {
		return err
	}
	if conflict == nil {
		// Structurally identical content: duplicate delivery, not a
		// divergence. Fold it in as accepted.
		s.stageAccepted(st, doc, remote.Revision)
		return nil
	}

	st.conflicts++
	if s.metrics != nil {
		s.metrics.ConflictDetected(ctx, table)
	}
	if s.hub != nil {
		s.hub.BroadcastToTopic(TopicConflicts, Event{
			Type: EventTypeConflictDetected,
			Payload: ConflictPayload{
				ConflictID: conflict.ID,
				Table:      table,
				RecordID:   doc.ID,
			},
		})
	}

	resolution, err := s.resolver.Resolve(ctx, st.meta.Config.ConflictStrategy, conflict, doc, remote)
	if err != nil {
		return err
	}
	if !resolution.Resolved {
		st.unresolved++
		st.withheld[doc.ID] = true
		return nil
	}

	st.resolved++
	if s.metrics != nil {
		s.metrics.ConflictResolved(ctx, table, conflict.ResolutionStrategy)
	}

	switch resolution.Winner {
	case models.WinnerRemote:
		// The remote payload is canonical: merge it locally as synced.
		now := time.Now().UTC()
		resolution.Document.SyncedAt = &now
		st.merge = append(st.merge, resolution.Document)
		s.noteOrderDay(table, st, resolution.Document)
		if remote.Revision > st.watermark {
			st.watermark = remote.Revision
		}
	case models.WinnerLocal:
		// The local payload is canonical: push it back on the remote's
		// current revision so the remote accepts it.
		if err := s.repushWinner(ctx, table, st, resolution.Document); err != nil {
			return err
		}
	}
	st.withheld[doc.ID] = true // either way, the pull must not overwrite it
	return nil
}

// repushWinner re-sends a locally-won conflict as the accepted remote version
func (s *SyncService) repushWinner(ctx context.Context, table string, st *roundState, doc *models.Document) error {
	results, err := s.transport.Push(ctx, table, []models.PushItem{{
		ID:           doc.ID,
		Payload:      doc.Payload,
		UpdatedAt:    doc.UpdatedAt,
		BaseRevision: doc.BaseRevision,
	}})
	if err != nil {
		return err
	}

	for _, res := range results {
		if res.ID != doc.ID {
			continue
		}
		if res.Outcome == models.OutcomeAccepted {
			s.stageAccepted(st, doc, res.Revision)
			return nil
		}
	}

	// The remote moved again underneath the resolution; leave the
	// record pending and let the next round detect afresh.
	st.unresolved++
	return nil
}

// pullChanges merges remote records above the watermark, skipping ids
// withheld by this round's conflicts
func (s *SyncService) pullChanges(ctx context.Context, table string, st *roundState) error {
	items, err := s.transport.Pull(ctx, table, st.meta.LastSyncRevision)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, item := range items {
		if item.Revision > st.watermark {
			st.watermark = item.Revision
		}
		if st.withheld[item.ID] {
			continue
		}

		doc, err := models.DocumentFromPayload(table, item.ID, item.Payload, item.Revision)
		if err != nil {
			return err
		}
		doc.SyncedAt = &now
		st.merge = append(st.merge, doc)
		st.pulled++
		s.noteOrderDay(table, st, doc)
	}
	return nil
}

// noteOrderDay remembers the calendar day of a merged order so its
// sequence can be repaired after commit
func (s *SyncService) noteOrderDay(table string, st *roundState, doc *models.Document) {
	if table != models.TableOrders {
		return
	}
	var fields struct {
		CreatedAt time.Time `json:"createdAt"`
	}
	if err := json.Unmarshal(doc.Payload, &fields); err != nil {
		return
	}
	st.orderDays[fields.CreatedAt.UTC().Format("2006-01-02")] = true
}

// repairAffectedDays triggers the day sequencer for every day touched
// by merged orders
func (s *SyncService) repairAffectedDays(ctx context.Context, st *roundState) {
	if s.sequencer == nil {
		return
	}
	for day := range st.orderDays {
		if _, err := s.sequencer.RepairDay(ctx, day); err != nil {
			s.log.WithContext(ctx).WithFields(map[string]interface{}{
				"day":   day,
				"error": err.Error(),
			}).Warn("post-merge sequence repair failed")
		}
	}
}
