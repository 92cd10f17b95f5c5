package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ordersync/node/internal/models"
	"github.com/ordersync/node/internal/observability"
	"github.com/ordersync/node/internal/repository"
)

// ErrOrderNotFound is returned when an order id is unknown or deleted
var ErrOrderNotFound = errors.New("order not found")

// OrderService is the order intake surface. Every write goes through
// the document store and triggers a sequence repair for the order's
// day, so the day-scoped numbering holds after local writes exactly as
// it does after sync merges.
type OrderService struct {
	store     repository.DocumentStore
	sequencer *DaySequencer
	hub       *EventHub
	log       *observability.Logger
}

// NewOrderService creates a new OrderService
func NewOrderService(store repository.DocumentStore, sequencer *DaySequencer) *OrderService {
	return &OrderService{
		store:     store,
		sequencer: sequencer,
		log:       observability.GetLogger().WithField("component", "order_service"),
	}
}

// SetEventHub sets the hub for order notifications
func (s *OrderService) SetEventHub(hub *EventHub) {
	s.hub = hub
}

// Create persists a new order and returns it with its assigned day
// sequence number
func (s *OrderService) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := s.write(ctx, order); err != nil {
		return nil, err
	}
	if _, err := s.sequencer.RepairDay(ctx, order.Day()); err != nil {
		return nil, err
	}
	return s.Get(ctx, order.ID)
}

// Update persists changes to an existing order. The stored creation
// time and number are authoritative; callers cannot move an order to
// another day.
func (s *OrderService) Update(ctx context.Context, order *models.Order) (*models.Order, error) {
	existing, err := s.Get(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	order.CreatedAt = existing.CreatedAt
	order.OrderNumber = existing.OrderNumber
	order.Touch()

	if err := s.write(ctx, order); err != nil {
		return nil, err
	}
	if _, err := s.sequencer.RepairDay(ctx, order.Day()); err != nil {
		return nil, err
	}
	return s.Get(ctx, order.ID)
}

// Delete tombstones an order. The freed number is reassigned by the
// repair pass that follows.
func (s *OrderService) Delete(ctx context.Context, id string) error {
	order, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	order.Deleted = true
	order.Touch()

	if err := s.write(ctx, order); err != nil {
		return err
	}
	if _, err := s.sequencer.RepairDay(ctx, order.Day()); err != nil {
		return err
	}
	return nil
}

// Get retrieves a non-deleted order by id
func (s *OrderService) Get(ctx context.Context, id string) (*models.Order, error) {
	doc, err := s.store.Get(ctx, models.TableOrders, id)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.Deleted {
		return nil, ErrOrderNotFound
	}

	var order models.Order
	if err := json.Unmarshal(doc.Payload, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// ListDay returns the non-deleted orders of a calendar day in sequence order
func (s *OrderService) ListDay(ctx context.Context, day string) ([]*models.Order, error) {
	date, err := parseDay(day)
	if err != nil {
		return nil, err
	}

	startKey, endKey := models.DaySortKeyRange(date)
	it, err := s.store.RangeScan(ctx, models.TableOrders, startKey, endKey)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var orders []*models.Order
	for it.Next() {
		doc := it.Document()
		if doc.Deleted {
			continue
		}
		var order models.Order
		if err := json.Unmarshal(doc.Payload, &order); err != nil {
			return nil, err
		}
		orders = append(orders, &order)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *OrderService) write(ctx context.Context, order *models.Order) error {
	doc, err := models.NewDocument(models.TableOrders, order)
	if err != nil {
		return err
	}
	if _, err := s.store.BulkUpsert(ctx, models.TableOrders, []*models.Document{doc}); err != nil {
		return err
	}

	if s.hub != nil {
		s.hub.BroadcastToTopic(TopicOrders, Event{
			Type:    EventTypeOrderChanged,
			Payload: order,
		})
	}
	return nil
}
