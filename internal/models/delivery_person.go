package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DeliveryPerson is a courier assignable to orders
type DeliveryPerson struct {
	SyncFields
	Name   string `json:"name"`
	Phone  string `json:"phone,omitempty"`
	Active bool   `json:"active"`
}

// NewDeliveryPerson creates a delivery person with validation
func NewDeliveryPerson(name, phone string) (*DeliveryPerson, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyPersonName
	}

	now := time.Now().UTC()
	return &DeliveryPerson{
		SyncFields: SyncFields{
			ID:        uuid.New().String(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Name:   name,
		Phone:  phone,
		Active: true,
	}, nil
}

var ErrEmptyPersonName = OrderError{"name cannot be empty"}
