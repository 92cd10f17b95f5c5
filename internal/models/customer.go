package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Customer is a known customer with delivery details
type Customer struct {
	SyncFields
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// NewCustomer creates a customer with validation
func NewCustomer(name, phone, address string) (*Customer, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyPersonName
	}

	now := time.Now().UTC()
	return &Customer{
		SyncFields: SyncFields{
			ID:        uuid.New().String(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Name:    name,
		Phone:   phone,
		Address: address,
	}, nil
}
