package questions

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

// MaxContentLen caps question content.
const MaxContentLen = 500

// Store is the question persistence contract used by the handler.
type Store interface {
	Create(ctx context.Context, q *models.Question) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Question, error)
	Upvote(ctx context.Context, questionID, voterID uuid.UUID) (int, error)
	RemoveUpvote(ctx context.Context, questionID, voterID uuid.UUID) (int, error)
	ToggleAnswered(ctx context.Context, id uuid.UUID) (bool, error)
	ToggleStarred(ctx context.Context, id uuid.UUID) (bool, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	ClearBySession(ctx context.Context, sessionID uuid.UUID) error
}

// SessionStore resolves the :code route parameter.
type SessionStore interface {
	GetByCode(ctx context.Context, code string) (*models.Session, error)
}

// SubmitRequest is the body for POST /api/sessions/:code/questions.
type SubmitRequest struct {
	Content    string `json:"content" binding:"required"`
	AuthorName string `json:"author_name"`
}

// Handler handles question HTTP endpoints.
type Handler struct {
	store    Store
	sessions SessionStore
	hub      *realtime.Hub
}

// NewHandler creates a questions handler.
func NewHandler(store Store, sessionStore SessionStore, hub *realtime.Hub) *Handler {
	return &Handler{store: store, sessions: sessionStore, hub: hub}
}

// List handles GET /api/sessions/:code/questions. Non-deleted questions,
// highest upvotes first.
func (h *Handler) List(c *gin.Context) {
	s, err := h.sessions.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.NotFound(c, "session not found")
		return
	}
	list, err := h.store.ListBySession(c.Request.Context(), s.ID)
	if err != nil {
		response.Internal(c, "failed to list questions")
		return
	}
	response.OK(c, gin.H{"questions": list})
}

// Submit handles POST /api/sessions/:code/questions (participant).
// Q&A intake is enforced here, not in the client.
func (h *Handler) Submit(c *gin.Context) {
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
	if !s.Active {
		response.Conflict(c, "session has ended")
		return
	}
	if !s.QAEnabled {
		response.Forbidden(c, "question submission is disabled for this session")
		return
	}

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		response.BadRequest(c, "question content is required")
		return
	}
	if len(content) > MaxContentLen {
		response.BadRequest(c, "question exceeds 500 characters")
		return
	}
	author := strings.TrimSpace(req.AuthorName)
	if author == "" {
		author = claims.Name
	}
	if author == "" {
		author = "Anonymous"
	}

	q := &models.Question{SessionID: s.ID, Content: content, AuthorName: author}
	if err := h.store.Create(c.Request.Context(), q); err != nil {
		response.Internal(c, "failed to submit question")
		return
	}

	h.hub.Broadcast(s.ID, "question_created", q)
	response.Created(c, q)
}

// Upvote handles POST /api/questions/:id/upvote (participant, one per voter).
func (h *Handler) Upvote(c *gin.Context) {
	q, claims, ok := h.requireParticipantQuestion(c)
	if !ok {
		return
	}
	upvotes, err := h.store.Upvote(c.Request.Context(), q.ID, claims.VoterID)
	if errors.Is(err, ErrAlreadyUpvoted) {
		response.Conflict(c, "question already upvoted")
		return
	}
	if err != nil {
		response.Internal(c, "failed to upvote question")
		return
	}

	h.hub.Broadcast(q.SessionID, "question_votes", gin.H{"id": q.ID, "upvotes": upvotes})
	response.OK(c, gin.H{"id": q.ID, "upvotes": upvotes})
}

// RemoveUpvote handles DELETE /api/questions/:id/upvote (participant).
func (h *Handler) RemoveUpvote(c *gin.Context) {
	q, claims, ok := h.requireParticipantQuestion(c)
	if !ok {
		return
	}
	upvotes, err := h.store.RemoveUpvote(c.Request.Context(), q.ID, claims.VoterID)
	if errors.Is(err, ErrNotUpvoted) {
		response.Conflict(c, "question not upvoted")
		return
	}
	if err != nil {
		response.Internal(c, "failed to remove upvote")
		return
	}

	h.hub.Broadcast(q.SessionID, "question_votes", gin.H{"id": q.ID, "upvotes": upvotes})
	response.OK(c, gin.H{"id": q.ID, "upvotes": upvotes})
}

// ToggleAnswered handles PATCH /api/questions/:id/answered (host).
func (h *Handler) ToggleAnswered(c *gin.Context) {
	q, ok := h.requireHostQuestion(c)
	if !ok {
		return
	}
	answered, err := h.store.ToggleAnswered(c.Request.Context(), q.ID)
	if err != nil {
		response.Internal(c, "failed to update question")
		return
	}

	h.hub.Broadcast(q.SessionID, "question_answered", gin.H{"id": q.ID, "answered": answered})
	response.OK(c, gin.H{"id": q.ID, "answered": answered})
}

// ToggleStarred handles PATCH /api/questions/:id/starred (host).
func (h *Handler) ToggleStarred(c *gin.Context) {
	q, ok := h.requireHostQuestion(c)
	if !ok {
		return
	}
	starred, err := h.store.ToggleStarred(c.Request.Context(), q.ID)
	if err != nil {
		response.Internal(c, "failed to update question")
		return
	}

	h.hub.Broadcast(q.SessionID, "question_starred", gin.H{"id": q.ID, "starred": starred})
	response.OK(c, gin.H{"id": q.ID, "starred": starred})
}

// Delete handles DELETE /api/questions/:id (host, soft delete).
func (h *Handler) Delete(c *gin.Context) {
	q, ok := h.requireHostQuestion(c)
	if !ok {
		return
	}
	if err := h.store.SoftDelete(c.Request.Context(), q.ID); err != nil {
		response.Internal(c, "failed to delete question")
		return
	}

	h.hub.Broadcast(q.SessionID, "question_deleted", gin.H{"id": q.ID})
	response.OK(c, gin.H{"id": q.ID, "deleted": true})
}

// Clear handles POST /api/sessions/:code/questions/clear (host, bulk soft delete).
func (h *Handler) Clear(c *gin.Context) {
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
	if err := h.store.ClearBySession(c.Request.Context(), s.ID); err != nil {
		response.Internal(c, "failed to clear questions")
		return
	}

	h.hub.Broadcast(s.ID, "questions_cleared", gin.H{"session_id": s.ID})
	response.OK(c, gin.H{"session_id": s.ID, "cleared": true})
}

func (h *Handler) requireParticipantQuestion(c *gin.Context) (*models.Question, *auth.Claims, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid question id")
		return nil, nil, false
	}
	q, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil || q.Deleted {
		response.NotFound(c, "question not found")
		return nil, nil, false
	}
	claims := middleware.GetClaims(c)
	if claims == nil || claims.SessionID != q.SessionID || claims.VoterID == uuid.Nil {
		response.Forbidden(c, "participant token for this session required")
		return nil, nil, false
	}
	return q, claims, true
}

func (h *Handler) requireHostQuestion(c *gin.Context) (*models.Question, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid question id")
		return nil, false
	}
	q, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "question not found")
		return nil, false
	}
	claims := middleware.GetClaims(c)
	if claims == nil || claims.Role != auth.RoleHost || claims.SessionID != q.SessionID {
		response.Forbidden(c, "host token for this session required")
		return nil, false
	}
	return q, true
}
