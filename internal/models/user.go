package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User roles
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleStaff   = "staff"
)

// User is a staff account replicated across nodes
type User struct {
	SyncFields
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	Active      bool   `json:"active"`
}

// NewUser creates a user with validation
func NewUser(username, displayName, role string) (*User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, ErrEmptyUsername
	}
	switch role {
	case RoleAdmin, RoleManager, RoleStaff:
	default:
		return nil, ErrInvalidRole
	}

	now := time.Now().UTC()
	return &User{
		SyncFields: SyncFields{
			ID:        uuid.New().String(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Username:    username,
		DisplayName: displayName,
		Role:        role,
		Active:      true,
	}, nil
}

var (
	ErrEmptyUsername = OrderError{"username cannot be empty"}
	ErrInvalidRole   = OrderError{"role must be admin, manager or staff"}
)
