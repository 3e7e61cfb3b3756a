package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is a host-created Q&A/poll room identified by a 6-digit code.
type Session struct {
	ID           uuid.UUID `json:"id"`
	Code         string    `json:"code"`
	Title        string    `json:"title"`
	Active       bool      `json:"active"`
	QAEnabled    bool      `json:"qa_enabled"`
	Announcement string    `json:"announcement"`
	AuthRequired bool      `json:"auth_required"`
	HostKeyHash  string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
