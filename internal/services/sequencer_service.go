package services

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/ordersync/node/internal/models"
	"github.com/ordersync/node/internal/observability"
	"github.com/ordersync/node/internal/repository"
)

// DaySequencer repairs the dense 1..N order-number invariant for a
// calendar day. Orders are created and merged out of order, so after
// any insert, update or sync merge touching a day the sequencer
// re-derives the numbering: non-deleted orders of that day, sorted by
// (CreatedAt, ID), must carry the numbers 1..N with no gaps.
//
// A repair pass is read-then-write without re-validation at commit, so
// passes for the same day are fully serialized by a per-day lock.
// Re-running a pass on an already-correct day produces an empty batch.
type DaySequencer struct {
	store   repository.DocumentStore
	locks   *KeyedLocks
	hub     *EventHub
	metrics *observability.SyncMetrics
	log     *observability.Logger
}

// NewDaySequencer creates a new DaySequencer
func NewDaySequencer(store repository.DocumentStore, locks *KeyedLocks) *DaySequencer {
	return &DaySequencer{
		store: store,
		locks: locks,
		log:   observability.GetLogger().WithField("component", "day_sequencer"),
	}
}

// SetEventHub sets the hub for renumber notifications
func (s *DaySequencer) SetEventHub(hub *EventHub) {
	s.hub = hub
}

// SetMetrics sets the metric instruments
func (s *DaySequencer) SetMetrics(metrics *observability.SyncMetrics) {
	s.metrics = metrics
}

// parseDay parses a "2006-01-02" calendar day in UTC
func parseDay(day string) (time.Time, error) {
	date, err := time.ParseInLocation("2006-01-02", day, time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalidDay
	}
	return date, nil
}

// sequencedOrder pairs an order document with its decoded payload
type sequencedOrder struct {
	doc   *models.Document
	order *models.Order
}

// RepairDay renumbers the orders of one calendar day ("2006-01-02") and
// returns how many order numbers changed. A day with no orders is a
// no-op, not an error.
func (s *DaySequencer) RepairDay(ctx context.Context, day string) (int, error) {
	date, err := parseDay(day)
	if err != nil {
		return 0, err
	}

	release := s.locks.Acquire("renumber:" + day)
	defer release()

	orders, err := s.collectDay(ctx, date)
	if err != nil {
		return 0, err
	}
	if len(orders) == 0 {
		return 0, nil
	}

	sort.Slice(orders, func(i, j int) bool {
		a, b := orders[i].order, orders[j].order
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	s.checkInvariants(ctx, day, orders)

	batch, err := s.buildBatch(orders)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	if _, err := s.store.BulkUpsert(ctx, models.TableOrders, batch); err != nil {
		return 0, err
	}

	s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"day":        day,
		"renumbered": len(batch),
		"total":      len(orders),
	}).Info("repaired day sequence")

	if s.metrics != nil {
		s.metrics.OrdersRenumbered(ctx, day, len(batch))
	}
	if s.hub != nil {
		s.hub.BroadcastToTopic(TopicOrders, Event{
			Type:    EventTypeOrdersRenumbered,
			Payload: RenumberPayload{Day: day, Renumbered: len(batch)},
		})
	}

	return len(batch), nil
}

// collectDay range-scans the day's window and decodes non-deleted orders
func (s *DaySequencer) collectDay(ctx context.Context, date time.Time) ([]*sequencedOrder, error) {
	startKey, endKey := models.DaySortKeyRange(date)

	it, err := s.store.RangeScan(ctx, models.TableOrders, startKey, endKey)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var orders []*sequencedOrder
	for it.Next() {
		doc := it.Document()
		if doc.Deleted {
			continue
		}
		var order models.Order
		if err := json.Unmarshal(doc.Payload, &order); err != nil {
			return nil, err
		}
		orders = append(orders, &sequencedOrder{doc: doc, order: &order})
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// buildBatch walks the sorted sequence and stages every order whose
// number differs from its position. Renumbered orders become pending so
// the corrected numbers replicate.
func (s *DaySequencer) buildBatch(orders []*sequencedOrder) ([]*models.Document, error) {
	now := time.Now().UTC()

	var batch []*models.Document
	for k, so := range orders {
		want := k + 1
		if so.order.OrderNumber == want {
			continue
		}
		so.order.OrderNumber = want
		if now.After(so.order.UpdatedAt) {
			so.order.UpdatedAt = now
		}
		so.order.SyncedAt = nil

		payload, err := json.Marshal(so.order)
		if err != nil {
			return nil, err
		}
		doc := so.doc
		doc.Payload = payload
		doc.UpdatedAt = so.order.UpdatedAt
		doc.SyncedAt = nil
		batch = append(batch, doc)
	}
	return batch, nil
}

// checkInvariants logs anomalies that should not survive a correct
// merge: colliding ids or corrupt order numbers. The repair batch is
// still applied; renumbering is the recovery path.
func (s *DaySequencer) checkInvariants(ctx context.Context, day string, orders []*sequencedOrder) {
	seen := make(map[string]bool, len(orders))
	numbers := make(map[int]int)
	for _, so := range orders {
		if seen[so.order.ID] {
			s.log.WithContext(ctx).WithFields(map[string]interface{}{
				"day":       day,
				"record_id": so.order.ID,
			}).Error("day sequence invariant violation: duplicate order id")
		}
		seen[so.order.ID] = true
		numbers[so.order.OrderNumber]++
	}
	for n, count := range numbers {
		if n < 0 {
			s.log.WithContext(ctx).WithFields(map[string]interface{}{
				"day":    day,
				"number": n,
			}).Error("day sequence invariant violation: negative order number")
		}
		if count > 1 && n != 0 {
			s.log.WithContext(ctx).WithFields(map[string]interface{}{
				"day":    day,
				"number": n,
				"count":  count,
			}).Error("day sequence invariant violation: duplicate order number")
		}
	}
}
