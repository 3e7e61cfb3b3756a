package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/poplygo/backend/internal/models"
)

var (
	// ErrCodeTaken is returned when the generated 6-digit code already exists.
	ErrCodeTaken = errors.New("session code already taken")
	// ErrNotFound is returned when no session matches the given code.
	ErrNotFound = errors.New("session not found")
)

const pgUniqueViolation = "23505"

// Repository handles session persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a sessions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new session. The code column is UNIQUE; a collision
// surfaces as ErrCodeTaken so the caller can regenerate and retry.
func (r *Repository) Create(ctx context.Context, s *models.Session) error {
	const query = `INSERT INTO sessions (id, code, title, active, qa_enabled, announcement, auth_required, host_key_hash)
		VALUES (gen_random_uuid(), $1, $2, TRUE, TRUE, '', $3, $4)
		RETURNING id, active, qa_enabled, announcement, created_at`
	err := r.pool.QueryRow(ctx, query, s.Code, s.Title, s.AuthRequired, s.HostKeyHash).
		Scan(&s.ID, &s.Active, &s.QAEnabled, &s.Announcement, &s.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrCodeTaken
	}
	return err
}

// GetByCode returns a session by its 6-digit code.
func (r *Repository) GetByCode(ctx context.Context, code string) (*models.Session, error) {
	const query = `SELECT id, code, title, active, qa_enabled, announcement, auth_required, host_key_hash, created_at
		FROM sessions WHERE code = $1`
	var s models.Session
	err := r.pool.QueryRow(ctx, query, code).
		Scan(&s.ID, &s.Code, &s.Title, &s.Active, &s.QAEnabled, &s.Announcement, &s.AuthRequired, &s.HostKeyHash, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// End sets the session inactive. Terminal: no transition back exists.
func (r *Repository) End(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE sessions SET active = FALSE WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

// SetQAEnabled flips question intake for the session.
func (r *Repository) SetQAEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	const query = `UPDATE sessions SET qa_enabled = $2 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, enabled)
	return err
}

// PurgeInactiveBefore hard-deletes ended sessions created before the cutoff.
// Questions, polls and votes cascade. Returns the number of sessions removed.
func (r *Repository) PurgeInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM sessions WHERE NOT active AND created_at < $1`
	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SetAnnouncement overwrites the announcement text. Last write wins.
func (r *Repository) SetAnnouncement(ctx context.Context, id uuid.UUID, text string) error {
	const query = `UPDATE sessions SET announcement = $2 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, text)
	return err
}
