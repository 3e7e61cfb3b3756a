package models

import (
	"time"

	"github.com/google/uuid"
)

// Feedback is a user-submitted feedback entry from any page.
type Feedback struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Email     string    `json:"email"`
	Page      string    `json:"page"`
	UserAgent string    `json:"user_agent"`
	Notified  bool      `json:"notified"`
	CreatedAt time.Time `json:"created_at"`
}
