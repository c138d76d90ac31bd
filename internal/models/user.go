package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an operator allowed to use the API
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	Email    string `json:"email" db:"email"`
	Username string `json:"username" db:"username"`

	PasswordHash string `json:"-" db:"password_hash"`

	IsAdmin  bool `json:"is_admin" db:"is_admin"`
	IsActive bool `json:"is_active" db:"is_active"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
}
