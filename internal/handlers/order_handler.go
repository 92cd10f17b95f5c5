package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ordersync/node/internal/models"
	"github.com/ordersync/node/internal/services"
)

// OrderHandler handles order CRUD and day sequencing endpoints
type OrderHandler struct {
	orderService *services.OrderService
	sequencer    *services.DaySequencer
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orderService *services.OrderService, sequencer *services.DaySequencer) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		sequencer:    sequencer,
	}
}

// CreateOrderRequest is the order creation body
type CreateOrderRequest struct {
	CustomerID       string             `json:"customerId,omitempty"`
	CustomerName     string             `json:"customerName"`
	Items            []models.OrderItem `json:"items"`
	DeliveryPersonID string             `json:"deliveryPersonId,omitempty"`
	Notes            string             `json:"notes,omitempty"`
}

// CreateOrder creates an order and assigns its day sequence number
// @Summary Create order
// @Description Creates an order. The returned order carries its assigned day-scoped number.
// @Tags orders
// @Accept json
// @Produce json
// @Param request body CreateOrderRequest true "Order"
// @Success 201 {object} models.Order
// @Failure 400 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/orders [post]
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	order, err := models.NewOrder(req.CustomerName, req.Items)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	order.CustomerID = req.CustomerID
	order.DeliveryPersonID = req.DeliveryPersonID
	order.Notes = req.Notes

	created, err := h.orderService.Create(r.Context(), order)
	if err != nil {
		log.Printf("Error creating order: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create order.")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// UpdateOrder updates an existing order
// @Summary Update order
// @Description Updates an order. Creation time and sequence number are preserved.
// @Tags orders
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param request body models.Order true "Order"
// @Success 200 {object} models.Order
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/orders/{id} [put]
func (h *OrderHandler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var order models.Order
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	order.ID = id

	updated, err := h.orderService.Update(r.Context(), &order)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "Order not found.")
			return
		}
		log.Printf("Error updating order %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to update order.")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// DeleteOrder tombstones an order and compacts the day's numbering
// @Summary Delete order
// @Tags orders
// @Produce json
// @Param id path string true "Order ID"
// @Success 204 "Deleted"
// @Failure 404 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/orders/{id} [delete]
func (h *OrderHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.orderService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "Order not found.")
			return
		}
		log.Printf("Error deleting order %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to delete order.")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetOrder returns one order by id
// @Summary Get order
// @Tags orders
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} models.Order
// @Failure 404 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/orders/{id} [get]
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	order, err := h.orderService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "Order not found.")
			return
		}
		log.Printf("Error reading order %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Database error.")
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// ListDayOrders returns a day's orders in sequence order
// @Summary List orders for a day
// @Tags orders
// @Produce json
// @Param day path string true "Day (YYYY-MM-DD)"
// @Success 200 {array} models.Order
// @Failure 400 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/orders/day/{day} [get]
func (h *OrderHandler) ListDayOrders(w http.ResponseWriter, r *http.Request) {
	day := chi.URLParam(r, "day")

	orders, err := h.orderService.ListDay(r.Context(), day)
	if err != nil {
		if errors.Is(err, services.ErrInvalidDay) {
			writeError(w, http.StatusBadRequest, "Day must be formatted as YYYY-MM-DD.")
			return
		}
		log.Printf("Error listing orders for %s: %v", day, err)
		writeError(w, http.StatusInternalServerError, "Database error.")
		return
	}

	if orders == nil {
		orders = []*models.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// RepairSequence renumbers a day's orders to a dense 1..N sequence
// @Summary Repair day sequence
// @Description Recomputes the day's order numbers. Safe to call repeatedly.
// @Tags orders
// @Produce json
// @Param day path string true "Day (YYYY-MM-DD)"
// @Success 200 {object} models.SequenceRepairResponse
// @Failure 400 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/orders/sequence/{day} [post]
func (h *OrderHandler) RepairSequence(w http.ResponseWriter, r *http.Request) {
	day := chi.URLParam(r, "day")

	renumbered, err := h.sequencer.RepairDay(r.Context(), day)
	if err != nil {
		if errors.Is(err, services.ErrInvalidDay) {
			writeError(w, http.StatusBadRequest, "Day must be formatted as YYYY-MM-DD.")
			return
		}
		log.Printf("Error repairing sequence for %s: %v", day, err)
		writeError(w, http.StatusInternalServerError, "Sequence repair failed.")
		return
	}

	writeJSON(w, http.StatusOK, models.SequenceRepairResponse{
		Day:        day,
		Renumbered: renumbered,
	})
}
