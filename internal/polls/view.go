package polls

import (
	"github.com/google/uuid"

	"github.com/poplygo/backend/internal/models"
)

// OptionView is an option as rendered to a caller. Vote counts and
// percentages are omitted when results are hidden from the caller.
type OptionView struct {
	ID         uuid.UUID `json:"id"`
	OptionText string    `json:"option_text"`
	Position   int       `json:"position"`
	VoteCount  *int      `json:"vote_count,omitempty"`
	Percentage *int      `json:"percentage,omitempty"`
}

// View is a poll with its options shaped for one caller.
type View struct {
	models.Poll
	Options    []OptionView `json:"options"`
	TotalVotes *int         `json:"total_votes,omitempty"`
	Selections []uuid.UUID  `json:"selections,omitempty"` // caller's own selected options
}

// NewView renders a poll. Hosts always see results; students only when the
// poll exposes them.
func NewView(p *models.Poll, options []models.PollOption, includeResults bool) View {
	v := View{Poll: *p, Options: make([]OptionView, 0, len(options))}
	if !includeResults {
		// Hide the answer key along with the counts.
		v.CorrectOptionID = nil
	}

	counts := make([]int, len(options))
	total := 0
	for i, o := range options {
		counts[i] = o.VoteCount
		total += o.VoteCount
	}
	pcts := Percentages(counts)

	for i, o := range options {
		ov := OptionView{ID: o.ID, OptionText: o.OptionText, Position: o.Position}
		if includeResults {
			count := counts[i]
			pct := pcts[i]
			ov.VoteCount = &count
			ov.Percentage = &pct
		}
		v.Options = append(v.Options, ov)
	}
	if includeResults {
		v.TotalVotes = &total
	}
	return v
}
