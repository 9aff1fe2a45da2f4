package models

import (
	"time"

	"github.com/google/uuid"
)

// History is one prompt/response pair kept for the owning user
type History struct {
	ID        uuid.UUID `json:"_id" db:"id"`
	UserID    uuid.UUID `json:"userId" db:"user_id"`
	Prompt    string    `json:"prompt" db:"prompt"`
	Response  string    `json:"response" db:"response"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}
