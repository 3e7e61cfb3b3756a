package polls

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/poplygo/backend/internal/auth"
	"github.com/poplygo/backend/internal/middleware"
	"github.com/poplygo/backend/internal/models"
	"github.com/poplygo/backend/internal/realtime"
	"github.com/poplygo/backend/pkg/response"
)

const (
	// MaxQuestionLen caps the poll question.
	MaxQuestionLen = 200
	// MinOptions and MaxOptions bound the option list.
	MinOptions = 2
	MaxOptions = 10
)

// Store is the poll persistence contract used by the handler.
type Store interface {
	Create(ctx context.Context, p *models.Poll, optionTexts []string) ([]models.PollOption, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Poll, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Poll, error)
	OptionsByPoll(ctx context.Context, pollID uuid.UUID) ([]models.PollOption, error)
	Vote(ctx context.Context, pollID, optionID, voterID uuid.UUID) (int, error)
	RemoveVote(ctx context.Context, pollID, optionID, voterID uuid.UUID) (int, error)
	SelectionsByVoter(ctx context.Context, pollID, voterID uuid.UUID) ([]uuid.UUID, error)
	Close(ctx context.Context, id uuid.UUID) error
	ToggleResults(ctx context.Context, id uuid.UUID) (bool, error)
	SetCorrectOption(ctx context.Context, pollID, optionID uuid.UUID) (*uuid.UUID, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// SessionStore resolves the :code route parameter.
type SessionStore interface {
	GetByCode(ctx context.Context, code string) (*models.Session, error)
}

// CreateRequest is the body for POST /api/sessions/:code/polls.
type CreateRequest struct {
	Question           string   `json:"question" binding:"required"`
	Options            []string `json:"options" binding:"required"`
	AllowMultipleVotes bool     `json:"allow_multiple_votes"`
	MaxVotes           int      `json:"max_votes"`
}

// VoteRequest is the body for POST /api/polls/:id/votes.
type VoteRequest struct {
	OptionID uuid.UUID `json:"option_id" binding:"required"`
}

// CorrectOptionRequest is the body for PATCH /api/polls/:id/correct-option.
type CorrectOptionRequest struct {
	OptionID uuid.UUID `json:"option_id" binding:"required"`
}

// Handler handles poll HTTP endpoints.
type Handler struct {
	store    Store
	sessions SessionStore
	hub      *realtime.Hub
}

// NewHandler creates a polls handler.
func NewHandler(store Store, sessionStore SessionStore, hub *realtime.Hub) *Handler {
	return &Handler{store: store, sessions: sessionStore, hub: hub}
}

// ValidateCreate checks poll creation input and returns the normalized
// option texts and max_votes. Single-choice polls always get max_votes=1.
func ValidateCreate(req *CreateRequest) ([]string, int, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, 0, errors.New("poll question is required")
	}
	if len(question) > MaxQuestionLen {
		return nil, 0, errors.New("poll question exceeds 200 characters")
	}
	req.Question = question

	options := make([]string, 0, len(req.Options))
	for _, o := range req.Options {
		if t := strings.TrimSpace(o); t != "" {
			options = append(options, t)
		}
	}
	if len(options) < MinOptions {
		return nil, 0, errors.New("at least 2 non-empty options are required")
	}
	if len(options) > MaxOptions {
		return nil, 0, errors.New("at most 10 options are allowed")
	}

	maxVotes := req.MaxVotes
	if !req.AllowMultipleVotes {
		maxVotes = 1
	} else if maxVotes < 1 || maxVotes > len(options) {
		return nil, 0, errors.New("max_votes must be between 1 and the number of options")
	}
	return options, maxVotes, nil
}

// Create handles POST /api/sessions/:code/polls (host).
func (h *Handler) Create(c *gin.Context) {
	s, err := h.sessions.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.NotFound(c, "session not found")
		return
	}
	claims := middleware.GetClaims(c)
	if claims == nil || claims.Role != auth.RoleHost || claims.SessionID != s.ID {
		response.Forbidden(c, "host token for this session required")
		return
	}
	if !s.Active {
		response.Conflict(c, "session has ended")
		return
	}

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	options, maxVotes, err := ValidateCreate(&req)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	p := &models.Poll{
		SessionID:          s.ID,
		Question:           req.Question,
		AllowMultipleVotes: req.AllowMultipleVotes,
		MaxVotes:           maxVotes,
	}
	created, err := h.store.Create(c.Request.Context(), p, options)
	if err != nil {
		response.Internal(c, "failed to create poll")
		return
	}

	view := NewView(p, created, false)
	h.hub.Broadcast(s.ID, "poll_created", view)
	response.Created(c, NewView(p, created, true))
}

// List handles GET /api/sessions/:code/polls. Hosts see results on every
// poll; participants only where the host revealed them.
func (h *Handler) List(c *gin.Context) {
	s, err := h.sessions.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.NotFound(c, "session not found")
		return
	}
	claims := middleware.GetClaims(c)
	if claims == nil || claims.SessionID != s.ID {
		response.Forbidden(c, "token for this session required")
		return
	}
	isHost := claims.Role == auth.RoleHost

	list, err := h.store.ListBySession(c.Request.Context(), s.ID)
	if err != nil {
		response.Internal(c, "failed to list polls")
		return
	}

	views := make([]View, 0, len(list))
	for i := range list {
		p := &list[i]
		options, err := h.store.OptionsByPoll(c.Request.Context(), p.ID)
		if err != nil {
			response.Internal(c, "failed to list polls")
			return
		}
		view := NewView(p, options, isHost || p.ShowResultsToStudents)
		if !isHost && claims.VoterID != uuid.Nil {
			if sel, err := h.store.SelectionsByVoter(c.Request.Context(), p.ID, claims.VoterID); err == nil {
				view.Selections = sel
			}
		}
		views = append(views, view)
	}
	response.OK(c, gin.H{"polls": views})
}

// Vote handles POST /api/polls/:id/votes (participant).
func (h *Handler) Vote(c *gin.Context) {
	p, claims, ok := h.requireParticipantPoll(c)
	if !ok {
		return
	}
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	count, err := h.store.Vote(c.Request.Context(), p.ID, req.OptionID, claims.VoterID)
	switch {
	case errors.Is(err, ErrPollClosed):
		response.Conflict(c, "poll is not open for votes")
		return
	case errors.Is(err, ErrAlreadyVoted):
		response.Conflict(c, "already voted")
		return
	case errors.Is(err, ErrVoteLimit):
		response.Conflict(c, "vote limit reached")
		return
	case errors.Is(err, ErrOptionNotFound):
		response.BadRequest(c, "option does not belong to this poll")
		return
	case err != nil:
		response.Internal(c, "failed to record vote")
		return
	}

	h.hub.Broadcast(p.SessionID, "poll_votes", gin.H{"poll_id": p.ID})
	response.OK(c, gin.H{"poll_id": p.ID, "option_id": req.OptionID, "vote_count": count})
}

// RemoveVote handles DELETE /api/polls/:id/votes/:optionID (participant).
// Only multi-choice polls allow toggling a selection off.
func (h *Handler) RemoveVote(c *gin.Context) {
	p, claims, ok := h.requireParticipantPoll(c)
	if !ok {
		return
	}
	optionID, err := uuid.Parse(c.Param("optionID"))
	if err != nil {
		response.BadRequest(c, "invalid option id")
		return
	}
	if !p.AllowMultipleVotes {
		response.Conflict(c, "single-choice votes cannot be retracted")
		return
	}

	count, err := h.store.RemoveVote(c.Request.Context(), p.ID, optionID, claims.VoterID)
	switch {
	case errors.Is(err, ErrNotVoted):
		response.Conflict(c, "option not selected")
		return
	case errors.Is(err, ErrOptionNotFound):
		response.BadRequest(c, "option does not belong to this poll")
		return
	case err != nil:
		response.Internal(c, "failed to retract vote")
		return
	}

	h.hub.Broadcast(p.SessionID, "poll_votes", gin.H{"poll_id": p.ID})
	response.OK(c, gin.H{"poll_id": p.ID, "option_id": optionID, "vote_count": count})
}

// Close handles POST /api/polls/:id/close (host).
func (h *Handler) Close(c *gin.Context) {
	p, ok := h.requireHostPoll(c)
	if !ok {
		return
	}
	if err := h.store.Close(c.Request.Context(), p.ID); err != nil {
		response.Internal(c, "failed to close poll")
		return
	}

	h.hub.Broadcast(p.SessionID, "poll_closed", gin.H{"id": p.ID})
	response.OK(c, gin.H{"id": p.ID, "active": false})
}

// ToggleResults handles PATCH /api/polls/:id/results-visibility (host).
func (h *Handler) ToggleResults(c *gin.Context) {
	p, ok := h.requireHostPoll(c)
	if !ok {
		return
	}
	visible, err := h.store.ToggleResults(c.Request.Context(), p.ID)
	if err != nil {
		response.Internal(c, "failed to update poll")
		return
	}

	h.hub.Broadcast(p.SessionID, "poll_results_visibility", gin.H{"id": p.ID, "show_results_to_students": visible})
	response.OK(c, gin.H{"id": p.ID, "show_results_to_students": visible})
}

// SetCorrectOption handles PATCH /api/polls/:id/correct-option (host).
// Marking the already-marked option clears it.
func (h *Handler) SetCorrectOption(c *gin.Context) {
	p, ok := h.requireHostPoll(c)
	if !ok {
		return
	}
	var req CorrectOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	correct, err := h.store.SetCorrectOption(c.Request.Context(), p.ID, req.OptionID)
	if errors.Is(err, ErrOptionNotFound) {
		response.BadRequest(c, "option does not belong to this poll")
		return
	}
	if err != nil {
		response.Internal(c, "failed to update poll")
		return
	}

	h.hub.Broadcast(p.SessionID, "poll_correct_option", gin.H{"id": p.ID, "correct_option_id": correct})
	response.OK(c, gin.H{"id": p.ID, "correct_option_id": correct})
}

// Delete handles DELETE /api/polls/:id (host, soft delete).
func (h *Handler) Delete(c *gin.Context) {
	p, ok := h.requireHostPoll(c)
	if !ok {
		return
	}
	if err := h.store.SoftDelete(c.Request.Context(), p.ID); err != nil {
		response.Internal(c, "failed to delete poll")
		return
	}

	h.hub.Broadcast(p.SessionID, "poll_deleted", gin.H{"id": p.ID})
	response.OK(c, gin.H{"id": p.ID, "deleted": true})
}

func (h *Handler) requireParticipantPoll(c *gin.Context) (*models.Poll, *auth.Claims, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid poll id")
		return nil, nil, false
	}
	p, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil || p.Deleted {
		response.NotFound(c, "poll not found")
		return nil, nil, false
	}
	claims := middleware.GetClaims(c)
	if claims == nil || claims.SessionID != p.SessionID || claims.VoterID == uuid.Nil {
		response.Forbidden(c, "participant token for this session required")
		return nil, nil, false
	}
	return p, claims, true
}

func (h *Handler) requireHostPoll(c *gin.Context) (*models.Poll, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid poll id")
		return nil, false
	}
	p, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "poll not found")
		return nil, false
	}
	claims := middleware.GetClaims(c)
	if claims == nil || claims.Role != auth.RoleHost || claims.SessionID != p.SessionID {
		response.Forbidden(c, "host token for this session required")
		return nil, false
	}
	return p, true
}
