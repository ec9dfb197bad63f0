package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	FullName  string    `json:"full_name,omitempty" db:"full_name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// UserProviderKey is a per-user API key for one LLM provider. When present
// it replaces the process-wide key for that user's calls.
type UserProviderKey struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Provider  string    `json:"provider" db:"provider"`
	APIKey    string    `json:"-" db:"api_key"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
