package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusPreparing = "preparing"
	OrderStatusReady     = "ready"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// Order is a customer order. OrderNumber is the human-facing day-scoped
// sequence number: within one calendar day the non-deleted orders,
// sorted by (CreatedAt, ID), carry the numbers 1..N with no gaps.
type Order struct {
	SyncFields
	OrderNumber      int         `json:"orderId"`
	CustomerID       string      `json:"customerId,omitempty"`
	CustomerName     string      `json:"customerName,omitempty"`
	Items            []OrderItem `json:"items,omitempty"`
	Status           string      `json:"status"`
	Total            float64     `json:"total"`
	DeliveryPersonID string      `json:"deliveryPersonId,omitempty"`
	Notes            string      `json:"notes,omitempty"`
}

// OrderItem is one line of an order
type OrderItem struct {
	MenuItemID string  `json:"menuItemId"`
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unitPrice"`
}

// NewOrder creates an order with validation. The order number starts at
// zero and is assigned by the day sequencer.
func NewOrder(customerName string, items []OrderItem) (*Order, error) {
	if strings.TrimSpace(customerName) == "" {
		return nil, ErrEmptyCustomerName
	}
	if len(items) == 0 {
		return nil, ErrNoOrderItems
	}

	var total float64
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if item.UnitPrice < 0 {
			return nil, ErrInvalidPrice
		}
		total += float64(item.Quantity) * item.UnitPrice
	}

	now := time.Now().UTC()
	return &Order{
		SyncFields: SyncFields{
			ID:        uuid.New().String(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		CustomerName: customerName,
		Items:        items,
		Status:       OrderStatusPending,
		Total:        total,
	}, nil
}

// Day returns the calendar day the order belongs to, as "2006-01-02"
func (o *Order) Day() string {
	return o.CreatedAt.UTC().Format("2006-01-02")
}

// Errors
type OrderError struct {
	Message string
}

func (e OrderError) Error() string {
	return e.Message
}

var (
	ErrEmptyCustomerName = OrderError{"customer name cannot be empty"}
	ErrNoOrderItems      = OrderError{"order must contain at least one item"}
	ErrInvalidQuantity   = OrderError{"item quantity must be positive"}
	ErrInvalidPrice      = OrderError{"item price cannot be negative"}
)
