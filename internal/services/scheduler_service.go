package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ordersync/node/internal/observability"
)

// SchedulerStatus represents the current state of the sync scheduler
type SchedulerStatus struct {
	Running         bool      `json:"running"`
	Enabled         bool      `json:"enabled"`
	LastRun         time.Time `json:"lastRun,omitempty"`
	LastRunDuration string    `json:"lastRunDuration,omitempty"`
	TablesSynced    int       `json:"tablesSynced"`
	TablesFailed    int       `json:"tablesFailed"`
	NextRun         time.Time `json:"nextRun,omitempty"`
}

// SyncScheduler runs replication rounds for every table on a fixed
// interval. A failed table is retried on the next tick; failures never
// stop the loop.
type SyncScheduler struct {
	sync     *SyncService
	interval time.Duration
	log      *observability.Logger

	mu       sync.RWMutex
	enabled  bool
	running  bool
	stopChan chan struct{}
	status   SchedulerStatus
}

// NewSyncScheduler creates a new SyncScheduler
func NewSyncScheduler(syncService *SyncService, interval time.Duration) *SyncScheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SyncScheduler{
		sync:     syncService,
		interval: interval,
		log:      observability.GetLogger().WithField("component", "sync_scheduler"),
		enabled:  true,
		stopChan: make(chan struct{}),
		status:   SchedulerStatus{Enabled: true},
	}
}

// Start launches the background loop. It returns immediately.
func (s *SyncScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.status.Running = true
	s.status.NextRun = time.Now().Add(s.interval)
	s.stopChan = make(chan struct{})
	stop := s.stopChan
	s.mu.Unlock()

	go s.loop(ctx, stop)
	s.log.Infof("sync scheduler started, interval %s", s.interval)
}

// Stop terminates the background loop
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.status.Running = false
	close(s.stopChan)
}

// Status returns a snapshot of the scheduler state
func (s *SyncScheduler) Status() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// RunNow triggers one full pass outside the schedule
func (s *SyncScheduler) RunNow(ctx context.Context) {
	s.runOnce(ctx)
}

func (s *SyncScheduler) loop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
			s.mu.Lock()
			s.status.NextRun = time.Now().Add(s.interval)
			s.mu.Unlock()
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *SyncScheduler) runOnce(ctx context.Context) {
	start := time.Now()

	synced, failed := 0, 0
	for _, table := range s.sync.Tables() {
		_, err := s.sync.SyncTable(ctx, table)
		switch {
		case err == nil:
			synced++
		case errors.Is(err, ErrSyncDisabled):
			// not a failure, the table opted out
		default:
			failed++
			s.log.WithField("table", table).Warnf("scheduled sync failed, will retry next tick: %v", err)
		}
	}

	s.mu.Lock()
	s.status.LastRun = start
	s.status.LastRunDuration = time.Since(start).String()
	s.status.TablesSynced = synced
	s.status.TablesFailed = failed
	s.mu.Unlock()
}
