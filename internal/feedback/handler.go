package feedback

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/poplygo/backend/internal/models"
	"github.com/poplygo/backend/pkg/queue"
	"github.com/poplygo/backend/pkg/response"
)

// MaxMessageLen caps feedback messages.
const MaxMessageLen = 2000

// Store is the feedback persistence contract used by the handler.
type Store interface {
	Create(ctx context.Context, f *models.Feedback) error
}

// Enqueuer pushes feedback notification jobs for the worker process.
type Enqueuer interface {
	EnqueueFeedbackNotify(ctx context.Context, payload queue.FeedbackNotifyPayload) error
}

// SubmitRequest is the body for POST /api/feedback.
type SubmitRequest struct {
	Type    string `json:"type" binding:"required"`
	Message string `json:"message" binding:"required"`
	Email   string `json:"email"`
	Page    string `json:"page"`
}

// Handler handles feedback HTTP endpoints.
type Handler struct {
	store  Store
	queue  Enqueuer
	logger *zap.Logger
}

// NewHandler creates a feedback handler. The queue may be nil; submissions
// are then stored without notification.
func NewHandler(store Store, q Enqueuer, logger *zap.Logger) *Handler {
	return &Handler{store: store, queue: q, logger: logger}
}

// Submit handles POST /api/feedback (public).
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		response.BadRequest(c, "message is required")
		return
	}
	if len(message) > MaxMessageLen {
		response.BadRequest(c, "message exceeds 2000 characters")
		return
	}

	f := &models.Feedback{
		Type:      req.Type,
		Message:   message,
		Email:     strings.TrimSpace(req.Email),
		Page:      strings.TrimSpace(req.Page),
		UserAgent: c.Request.UserAgent(),
	}
	if err := h.store.Create(c.Request.Context(), f); err != nil {
		response.Internal(c, "failed to submit feedback")
		return
	}

	if h.queue != nil {
		if err := h.queue.EnqueueFeedbackNotify(c.Request.Context(), queue.FeedbackNotifyPayload{FeedbackID: f.ID}); err != nil {
			// Delivery is best effort; the entry is already stored.
			h.logger.Warn("enqueue feedback notify", zap.Error(err))
		}
	}
	response.Created(c, f)
}
