package feedback

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/poplygo/backend/internal/models"
)

// ErrNotFound is returned when no feedback entry matches the given ID.
var ErrNotFound = errors.New("feedback not found")

// Repository handles feedback persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a feedback repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a feedback entry.
func (r *Repository) Create(ctx context.Context, f *models.Feedback) error {
	const query = `INSERT INTO feedback (id, type, message, email, page, user_agent)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, f.Type, f.Message, f.Email, f.Page, f.UserAgent).
		Scan(&f.ID, &f.CreatedAt)
}

// GetByID returns a feedback entry by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Feedback, error) {
	const query = `SELECT id, type, message, email, page, user_agent, notified, created_at
		FROM feedback WHERE id = $1`
	var f models.Feedback
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&f.ID, &f.Type, &f.Message, &f.Email, &f.Page, &f.UserAgent, &f.Notified, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// MarkNotified records that the entry was delivered to the notification webhook.
func (r *Repository) MarkNotified(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE feedback SET notified = TRUE WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}
