package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MenuItem is a dish or drink offered by the restaurant
type MenuItem struct {
	SyncFields
	Name      string  `json:"name"`
	Category  string  `json:"category,omitempty"`
	Price     float64 `json:"price"`
	Available bool    `json:"available"`
	ImagePath string  `json:"imagePath,omitempty"`
}

// NewMenuItem creates a menu item with validation
func NewMenuItem(name, category string, price float64) (*MenuItem, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyItemName
	}
	if price < 0 {
		return nil, ErrInvalidPrice
	}

	now := time.Now().UTC()
	return &MenuItem{
		SyncFields: SyncFields{
			ID:        uuid.New().String(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Name:      name,
		Category:  category,
		Price:     price,
		Available: true,
	}, nil
}

var ErrEmptyItemName = OrderError{"menu item name cannot be empty"}
