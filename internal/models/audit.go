package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// LLMUsageLog records one completed provider call for audit and cost review.
type LLMUsageLog struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	UserID      *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	Provider    string          `json:"provider" db:"provider"`
	Model       string          `json:"model" db:"model"`
	PromptChars int             `json:"prompt_chars" db:"prompt_chars"`
	OutputChars int             `json:"output_chars" db:"output_chars"`
	LatencyMs   int             `json:"latency_ms" db:"latency_ms"`
	Attempts    int             `json:"attempts" db:"attempts"`
	Endpoint    string          `json:"endpoint" db:"endpoint"`
	Metadata    json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
