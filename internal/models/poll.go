package models

import (
	"time"

	"github.com/google/uuid"
)

// Poll is a host-defined question with selectable options.
type Poll struct {
	ID                    uuid.UUID  `json:"id"`
	SessionID             uuid.UUID  `json:"session_id"`
	Question              string     `json:"question"`
	AllowMultipleVotes    bool       `json:"allow_multiple_votes"`
	MaxVotes              int        `json:"max_votes"`
	Active                bool       `json:"active"`
	ShowResultsToStudents bool       `json:"show_results_to_students"`
	CorrectOptionID       *uuid.UUID `json:"correct_option_id"`
	Deleted               bool       `json:"deleted"`
	CreatedAt             time.Time  `json:"created_at"`
}

// PollOption is one selectable answer within a poll, with its own vote counter.
type PollOption struct {
	ID         uuid.UUID `json:"id"`
	PollID     uuid.UUID `json:"poll_id"`
	OptionText string    `json:"option_text"`
	Position   int       `json:"position"`
	VoteCount  int       `json:"vote_count"`
	CreatedAt  time.Time `json:"created_at"`
}
