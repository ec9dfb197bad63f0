package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Session is one generator invocation: research-gap analysis, innovation
// generation, experiment design, or free chat.
type Session struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	OwnerID       uuid.UUID       `json:"owner_id" db:"owner_id"`
	Title         string          `json:"title" db:"title"`
	SessionType   string          `json:"session_type" db:"session_type"`
	Context       json.RawMessage `json:"context,omitempty" db:"context"`
	PaperID       *uuid.UUID      `json:"paper_id,omitempty" db:"paper_id"`
	IsActive      bool            `json:"is_active" db:"is_active"`
	Result        json.RawMessage `json:"result,omitempty" db:"result"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
	LastMessageAt time.Time       `json:"last_message_at" db:"last_message_at"`
	Messages      []Message       `json:"messages,omitempty" db:"-"`
}

const (
	SessionResearchGap      = "research_gap"
	SessionInnovation       = "innovation"
	SessionExperimentDesign = "experiment_design"
	SessionChat             = "chat"
)

// Message is one ordered, role-tagged turn inside a session. Sequence is
// dense and strictly increasing within the session.
type Message struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	SessionID uuid.UUID       `json:"session_id" db:"session_id"`
	Role      string          `json:"role" db:"role"`
	Content   string          `json:"content" db:"content"`
	Metadata  json.RawMessage `json:"message_metadata,omitempty" db:"message_metadata"`
	Sequence  int             `json:"sequence" db:"sequence"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
