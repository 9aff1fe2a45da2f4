package models

import (
	"time"

	"github.com/google/uuid"
)

// Share is publicly readable content addressed by its id
type Share struct {
	ID        uuid.UUID `json:"_id" db:"id"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
