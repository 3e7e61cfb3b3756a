package models

import (
	"time"

	"github.com/google/uuid"
)

// Question is an audience question on a session's board.
// Deleted questions stay in the store (soft delete) but are excluded from reads.
type Question struct {
	ID         uuid.UUID `json:"id"`
	SessionID  uuid.UUID `json:"session_id"`
	Content    string    `json:"content"`
	AuthorName string    `json:"author_name"`
	Upvotes    int       `json:"upvotes"`
	Answered   bool      `json:"answered"`
	Starred    bool      `json:"starred"`
	Deleted    bool      `json:"deleted"`
	CreatedAt  time.Time `json:"created_at"`
}
