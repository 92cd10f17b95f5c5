package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ordersync/node/internal/models"
	"github.com/ordersync/node/internal/services"
)

// RecordHandler handles the catalog tables (menu items, users,
// delivery persons, customers) through one generic endpoint set
type RecordHandler struct {
	recordService *services.RecordService
}

// NewRecordHandler creates a new RecordHandler
func NewRecordHandler(recordService *services.RecordService) *RecordHandler {
	return &RecordHandler{recordService: recordService}
}

// UpsertRecord writes a catalog record as a pending local change
// @Summary Upsert catalog record
// @Description Creates or replaces a record of a catalog table. Missing id and timestamps are filled in.
// @Tags records
// @Accept json
// @Produce json
// @Param table path string true "Table name"
// @Success 200 {object} models.Document
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/records/{table} [post]
func (h *RecordHandler) UpsertRecord(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	rec, err := decodeRecord(table, body)
	if err != nil {
		if errors.Is(err, services.ErrUnknownTable) {
			writeError(w, http.StatusNotFound, "Unknown table.")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.recordService.Upsert(r.Context(), table, rec); err != nil {
		log.Printf("Error upserting %s record: %v", table, err)
		writeError(w, http.StatusInternalServerError, "Failed to write record.")
		return
	}

	doc, err := h.recordService.Get(r.Context(), table, rec.RecordID())
	if err != nil {
		log.Printf("Error reading back %s record: %v", table, err)
		writeError(w, http.StatusInternalServerError, "Database error.")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// GetRecord returns one catalog record by id
// @Summary Get catalog record
// @Tags records
// @Produce json
// @Param table path string true "Table name"
// @Param id path string true "Record ID"
// @Success 200 {object} models.Document
// @Failure 404 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/records/{table}/{id} [get]
func (h *RecordHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	id := chi.URLParam(r, "id")

	doc, err := h.recordService.Get(r.Context(), table, id)
	if err != nil {
		writeRecordError(w, table, id, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ListRecords returns all non-deleted records of a catalog table
// @Summary List catalog records
// @Tags records
// @Produce json
// @Param table path string true "Table name"
// @Success 200 {array} models.Document
// @Failure 404 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/records/{table} [get]
func (h *RecordHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	docs, err := h.recordService.List(r.Context(), table)
	if err != nil {
		if errors.Is(err, services.ErrUnknownTable) {
			writeError(w, http.StatusNotFound, "Unknown table.")
			return
		}
		log.Printf("Error listing %s records: %v", table, err)
		writeError(w, http.StatusInternalServerError, "Database error.")
		return
	}

	if docs == nil {
		docs = []*models.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

// DeleteRecord tombstones a catalog record
// @Summary Delete catalog record
// @Tags records
// @Param table path string true "Table name"
// @Param id path string true "Record ID"
// @Success 204 "Deleted"
// @Failure 404 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/records/{table}/{id} [delete]
func (h *RecordHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	id := chi.URLParam(r, "id")

	if err := h.recordService.SoftDelete(r.Context(), table, id); err != nil {
		writeRecordError(w, table, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeRecordError(w http.ResponseWriter, table, id string, err error) {
	switch {
	case errors.Is(err, services.ErrUnknownTable):
		writeError(w, http.StatusNotFound, "Unknown table.")
	case errors.Is(err, services.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "Record not found.")
	default:
		log.Printf("Error accessing %s record %s: %v", table, id, err)
		writeError(w, http.StatusInternalServerError, "Database error.")
	}
}

// decodeRecord builds the table's entity from a request body through
// the validating constructor, then carries over the identity and flags
// a client supplied for an existing record
func decodeRecord(table string, body []byte) (models.SyncableRecord, error) {
	var rec models.SyncableRecord
	var fields *models.SyncFields
	var supplied models.SyncFields

	switch table {
	case models.TableMenuItems:
		var in struct {
			models.MenuItem
			Available *bool `json:"available"`
		}
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, err
		}
		item, err := models.NewMenuItem(in.Name, in.Category, in.Price)
		if err != nil {
			return nil, err
		}
		item.ImagePath = in.ImagePath
		if in.Available != nil {
			item.Available = *in.Available
		}
		rec, fields, supplied = item, &item.SyncFields, in.SyncFields
	case models.TableUsers:
		var in struct {
			models.User
			Active *bool `json:"active"`
		}
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, err
		}
		user, err := models.NewUser(in.Username, in.DisplayName, in.Role)
		if err != nil {
			return nil, err
		}
		if in.Active != nil {
			user.Active = *in.Active
		}
		rec, fields, supplied = user, &user.SyncFields, in.SyncFields
	case models.TableDeliveryPersons:
		var in struct {
			models.DeliveryPerson
			Active *bool `json:"active"`
		}
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, err
		}
		person, err := models.NewDeliveryPerson(in.Name, in.Phone)
		if err != nil {
			return nil, err
		}
		if in.Active != nil {
			person.Active = *in.Active
		}
		rec, fields, supplied = person, &person.SyncFields, in.SyncFields
	case models.TableCustomers:
		var in models.Customer
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, err
		}
		customer, err := models.NewCustomer(in.Name, in.Phone, in.Address)
		if err != nil {
			return nil, err
		}
		rec, fields, supplied = customer, &customer.SyncFields, in.SyncFields
	default:
		return nil, services.ErrUnknownTable
	}

	if supplied.ID != "" {
		fields.ID = supplied.ID
	}
	if !supplied.CreatedAt.IsZero() {
		fields.CreatedAt = supplied.CreatedAt
	}
	fields.Touch()
	return rec, nil
}
