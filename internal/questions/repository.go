package questions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/poplygo/backend/internal/models"
)

var (
	// ErrNotFound is returned when no question matches the given ID.
	ErrNotFound = errors.New("question not found")
	// ErrAlreadyUpvoted is returned when the voter already upvoted the question.
	ErrAlreadyUpvoted = errors.New("question already upvoted")
	// ErrNotUpvoted is returned when retracting an upvote that was never cast.
	ErrNotUpvoted = errors.New("question not upvoted")
)

// Repository handles question persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a questions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new question with zero upvotes.
func (r *Repository) Create(ctx context.Context, q *models.Question) error {
	const query = `INSERT INTO questions (id, session_id, content, author_name, upvotes)
		VALUES (gen_random_uuid(), $1, $2, $3, 0)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, q.SessionID, q.Content, q.AuthorName).
		Scan(&q.ID, &q.CreatedAt)
}

// GetByID returns a question by ID, including soft-deleted ones.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	const query = `SELECT id, session_id, content, author_name, upvotes, answered, starred, deleted, created_at
		FROM questions WHERE id = $1`
	var q models.Question
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&q.ID, &q.SessionID, &q.Content, &q.AuthorName, &q.Upvotes, &q.Answered, &q.Starred, &q.Deleted, &q.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// ListBySession returns non-deleted questions ordered by upvotes, newest last
// among ties.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Question, error) {
	const query = `SELECT id, session_id, content, author_name, upvotes, answered, starred, deleted, created_at
		FROM questions WHERE session_id = $1 AND NOT deleted
		ORDER BY upvotes DESC, created_at ASC`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]models.Question, 0)
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.SessionID, &q.Content, &q.AuthorName, &q.Upvotes, &q.Answered, &q.Starred, &q.Deleted, &q.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, q)
	}
	return list, rows.Err()
}

// Upvote records the voter's upvote and bumps the counter atomically in one
// transaction. A second upvote from the same voter returns ErrAlreadyUpvoted
// without touching the counter.
func (r *Repository) Upvote(ctx context.Context, questionID, voterID uuid.UUID) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO question_upvotes (question_id, voter_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`, questionID, voterID)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrAlreadyUpvoted
	}

	var upvotes int
	err = tx.QueryRow(ctx,
		`UPDATE questions SET upvotes = upvotes + 1 WHERE id = $1 RETURNING upvotes`,
		questionID).Scan(&upvotes)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return upvotes, tx.Commit(ctx)
}

// RemoveUpvote retracts the voter's upvote; the decrement floors at zero.
func (r *Repository) RemoveUpvote(ctx context.Context, questionID, voterID uuid.UUID) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`DELETE FROM question_upvotes WHERE question_id = $1 AND voter_id = $2`,
		questionID, voterID)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrNotUpvoted
	}

	var upvotes int
	err = tx.QueryRow(ctx,
		`UPDATE questions SET upvotes = GREATEST(upvotes - 1, 0) WHERE id = $1 RETURNING upvotes`,
		questionID).Scan(&upvotes)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return upvotes, tx.Commit(ctx)
}

// ToggleAnswered flips the answered flag and returns the new value.
func (r *Repository) ToggleAnswered(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.toggleFlag(ctx, id, "answered")
}

// ToggleStarred flips the starred flag and returns the new value.
func (r *Repository) ToggleStarred(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.toggleFlag(ctx, id, "starred")
}

func (r *Repository) toggleFlag(ctx context.Context, id uuid.UUID, column string) (bool, error) {
	// column is one of the fixed flag names above, never user input.
	query := `UPDATE questions SET ` + column + ` = NOT ` + column + ` WHERE id = $1 RETURNING ` + column
	var v bool
	err := r.pool.QueryRow(ctx, query, id).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	return v, err
}

// SoftDelete marks the question deleted; it stays in the store but is
// excluded from reads.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE questions SET deleted = TRUE WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

// ClearBySession bulk soft-deletes every question in the session.
func (r *Repository) ClearBySession(ctx context.Context, sessionID uuid.UUID) error {
	const query = `UPDATE questions SET deleted = TRUE WHERE session_id = $1 AND NOT deleted`
	_, err := r.pool.Exec(ctx, query, sessionID)
	return err
}
