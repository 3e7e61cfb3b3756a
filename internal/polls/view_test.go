package polls

import (
	"testing"

	"github.com/google/uuid"

	"github.com/poplygo/backend/internal/models"
)

func TestNewViewWithResults(t *testing.T) {
	correct := uuid.New()
	p := &models.Poll{ID: uuid.New(), Question: "q", Active: true, CorrectOptionID: &correct}
	options := []models.PollOption{
		{ID: correct, OptionText: "a", Position: 0, VoteCount: 1},
		{ID: uuid.New(), OptionText: "b", Position: 1, VoteCount: 3},
	}

	v := NewView(p, options, true)
	if v.TotalVotes == nil || *v.TotalVotes != 4 {
		t.Fatalf("TotalVotes = %v, want 4", v.TotalVotes)
	}
	if *v.Options[0].VoteCount != 1 || *v.Options[1].VoteCount != 3 {
		t.Errorf("counts = %v, %v", *v.Options[0].VoteCount, *v.Options[1].VoteCount)
	}
	if *v.Options[0].Percentage != 25 || *v.Options[1].Percentage != 75 {
		t.Errorf("percentages = %v, %v, want 25, 75", *v.Options[0].Percentage, *v.Options[1].Percentage)
	}
	if v.CorrectOptionID == nil || *v.CorrectOptionID != correct {
		t.Error("correct option hidden from results view")
	}
}

func TestNewViewHidesResults(t *testing.T) {
	correct := uuid.New()
	p := &models.Poll{ID: uuid.New(), Question: "q", Active: true, CorrectOptionID: &correct}
	options := []models.PollOption{
		{ID: correct, OptionText: "a", VoteCount: 7},
		{ID: uuid.New(), OptionText: "b", VoteCount: 2},
	}

	v := NewView(p, options, false)
	if v.TotalVotes != nil {
		t.Error("TotalVotes exposed on hidden view")
	}
	for _, o := range v.Options {
		if o.VoteCount != nil || o.Percentage != nil {
			t.Errorf("option %q exposes results on hidden view", o.OptionText)
		}
	}
	if v.CorrectOptionID != nil {
		t.Error("answer key exposed on hidden view")
	}
	if len(v.Options) != 2 {
		t.Errorf("options = %d, want 2 (texts always visible)", len(v.Options))
	}
}
