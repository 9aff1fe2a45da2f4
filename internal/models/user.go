package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered account. Field names follow the JSON contract
// the web client already consumes.
type User struct {
	ID              uuid.UUID  `json:"_id" db:"id"`
	Email           string     `json:"email" db:"email"`
	PasswordHash    string     `json:"-" db:"password_hash"`
	IsPro           bool       `json:"isPro" db:"is_pro"`
	DailyUsageCount int        `json:"dailyUsageCount" db:"daily_usage_count"`
	LastUsedDate    *time.Time `json:"lastUsedDate" db:"last_used_date"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time  `json:"updatedAt" db:"updated_at"`
}

// UserQuota is the slice of a user record the usage gate reads and writes.
// LastUsedDate is nil until the first admitted request.
type UserQuota struct {
	UserID          uuid.UUID  `json:"userId"`
	IsPro           bool       `json:"isPro"`
	DailyUsageCount int        `json:"dailyUsageCount"`
	LastUsedDate    *time.Time `json:"lastUsedDate"`
}

// Clone returns a deep copy so callers can keep the pre-mutation snapshot
func (q *UserQuota) Clone() *UserQuota {
	c := *q
	if q.LastUsedDate != nil {
		t := *q.LastUsedDate
		c.LastUsedDate = &t
	}
	return &c
}
