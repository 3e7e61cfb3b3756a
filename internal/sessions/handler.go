package sessions

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/poplygo/backend/internal/auth"
	"github.com/poplygo/backend/internal/middleware"
	"github.com/poplygo/backend/internal/models"
	"github.com/poplygo/backend/internal/realtime"
	"github.com/poplygo/backend/pkg/response"
	"github.com/poplygo/backend/pkg/utils"
)

const (
	// MaxAnnouncementLen caps the freeform announcement text.
	MaxAnnouncementLen = 1000
	// createAttempts bounds code regeneration on unique-constraint conflicts.
	createAttempts = 5
)

// Store is the session persistence contract used by the handler.
type Store interface {
	Create(ctx context.Context, s *models.Session) error
	GetByCode(ctx context.Context, code string) (*models.Session, error)
	End(ctx context.Context, id uuid.UUID) error
	SetQAEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	SetAnnouncement(ctx context.Context, id uuid.UUID, text string) error
}

// CreateRequest is the body for POST /api/sessions.
type CreateRequest struct {
	Title        string `json:"title" binding:"required"`
	AuthRequired bool   `json:"auth_required"`
}

// JoinRequest is the body for POST /api/sessions/join.
type JoinRequest struct {
	Code string `json:"code" binding:"required"`
	Name string `json:"name"`
}

// HostTokenRequest is the body for POST /api/sessions/:code/host-token.
type HostTokenRequest struct {
	HostKey string `json:"host_key" binding:"required"`
}

// QARequest is the body for PATCH /api/sessions/:code/qa.
type QARequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// AnnouncementRequest is the body for PUT /api/sessions/:code/announcement.
type AnnouncementRequest struct {
	Text string `json:"text"`
}

// Handler handles session HTTP endpoints.
type Handler struct {
	store  Store
	jwt    *auth.JWTService
	hub    *realtime.Hub
	logger *zap.Logger
}

// NewHandler creates a sessions handler.
func NewHandler(store Store, jwtService *auth.JWTService, hub *realtime.Hub, logger *zap.Logger) *Handler {
	return &Handler{store: store, jwt: jwtService, hub: hub, logger: logger}
}

// Create handles POST /api/sessions. Returns the session, the plain host key
// (shown once) and a host token.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		response.BadRequest(c, "title is required")
		return
	}

	hostKey, err := GenerateHostKey()
	if err != nil {
		response.Internal(c, "failed to create session")
		return
	}
	hash, err := utils.HashKey(hostKey)
	if err != nil {
		response.Internal(c, "failed to create session")
		return
	}

	s := &models.Session{Title: title, AuthRequired: req.AuthRequired, HostKeyHash: hash}
	for attempt := 0; ; attempt++ {
		code, err := GenerateCode()
		if err != nil {
			response.Internal(c, "failed to create session")
			return
		}
		s.Code = code
		err = h.store.Create(c.Request.Context(), s)
		if err == nil {
			break
		}
		if errors.Is(err, ErrCodeTaken) && attempt < createAttempts-1 {
			continue
		}
		h.logger.Error("create session", zap.Error(err))
		response.Internal(c, "failed to create session")
		return
	}

	token, err := h.jwt.GenerateHost(s.ID)
	if err != nil {
		response.Internal(c, "failed to create session")
		return
	}
	response.Created(c, gin.H{"session": s, "host_key": hostKey, "host_token": token})
}

// Join handles POST /api/sessions/join. Not-found and ended sessions return
// the same message on purpose: joiners get no probe for which codes exist.
func (h *Handler) Join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	s, err := h.store.GetByCode(c.Request.Context(), req.Code)
	if err != nil || !s.Active {
		if err != nil && !errors.Is(err, ErrNotFound) {
			h.logger.Error("join session", zap.Error(err))
			response.Internal(c, "failed to join session")
			return
		}
		response.NotFound(c, "Invalid or inactive session code")
		return
	}

	name := strings.TrimSpace(req.Name)
	if s.AuthRequired && name == "" {
		response.BadRequest(c, "name is required for this session")
		return
	}
	if name == "" {
		name = "Anonymous"
	}

	voterID := uuid.New()
	token, err := h.jwt.GenerateParticipant(s.ID, voterID, name)
	if err != nil {
		response.Internal(c, "failed to join session")
		return
	}
	response.OK(c, gin.H{"session": s, "token": token, "voter_id": voterID})
}

// HostToken handles POST /api/sessions/:code/host-token. Exchanges the host
// key issued at creation for a fresh host token.
func (h *Handler) HostToken(c *gin.Context) {
	var req HostTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	s, err := h.store.GetByCode(c.Request.Context(), c.Param("code"))
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "Invalid or inactive session code")
		return
	}
	if err != nil {
		h.logger.Error("host token lookup", zap.Error(err))
		response.Internal(c, "failed to issue host token")
		return
	}
	if !utils.CheckKey(req.HostKey, s.HostKeyHash) {
		response.Unauthorized(c, "invalid host key")
		return
	}
	token, err := h.jwt.GenerateHost(s.ID)
	if err != nil {
		response.Internal(c, "failed to issue host token")
		return
	}
	response.OK(c, gin.H{"host_token": token})
}

// Get handles GET /api/sessions/:code (public metadata snapshot).
func (h *Handler) Get(c *gin.Context) {
	s, err := h.store.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.NotFound(c, "session not found")
		return
	}
	response.OK(c, s)
}

// End handles POST /api/sessions/:code/end (host). Terminal.
func (h *Handler) End(c *gin.Context) {
	s, ok := h.requireHost(c)
	if !ok {
		return
	}
	if err := h.store.End(c.Request.Context(), s.ID); err != nil {
		response.Internal(c, "failed to end session")
		return
	}
	h.hub.Broadcast(s.ID, "session_ended", gin.H{"code": s.Code})
	response.OK(c, gin.H{"code": s.Code, "active": false})
}

// SetQA handles PATCH /api/sessions/:code/qa (host).
func (h *Handler) SetQA(c *gin.Context) {
	s, ok := h.requireHost(c)
	if !ok {
		return
	}
	var req QARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.store.SetQAEnabled(c.Request.Context(), s.ID, *req.Enabled); err != nil {
		response.Internal(c, "failed to update session")
		return
	}
	h.hub.Broadcast(s.ID, "qa_toggled", gin.H{"qa_enabled": *req.Enabled})
	response.OK(c, gin.H{"code": s.Code, "qa_enabled": *req.Enabled})
}

// SetAnnouncement handles PUT /api/sessions/:code/announcement (host).
// Overwrite, last write wins.
func (h *Handler) SetAnnouncement(c *gin.Context) {
	s, ok := h.requireHost(c)
	if !ok {
		return
	}
	var req AnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if len(req.Text) > MaxAnnouncementLen {
		response.BadRequest(c, "announcement exceeds 1000 characters")
		return
	}
	if err := h.store.SetAnnouncement(c.Request.Context(), s.ID, req.Text); err != nil {
		response.Internal(c, "failed to update announcement")
		return
	}
	h.hub.Broadcast(s.ID, "announcement", gin.H{"text": req.Text})
	response.OK(c, gin.H{"code": s.Code, "announcement": req.Text})
}

// requireHost loads the session for :code and checks the token is a host
// token scoped to that session.
func (h *Handler) requireHost(c *gin.Context) (*models.Session, bool) {
	s, err := h.store.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.NotFound(c, "session not found")
		return nil, false
	}
	claims := middleware.GetClaims(c)
	if claims == nil || claims.Role != auth.RoleHost || claims.SessionID != s.ID {
		response.Forbidden(c, "host token for this session required")
		return nil, false
	}
	return s, true
}
