package polls

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/poplygo/backend/internal/models"
)

var (
	// ErrNotFound is returned when no poll matches the given ID.
	ErrNotFound = errors.New("poll not found")
	// ErrOptionNotFound is returned when the option does not belong to the poll.
	ErrOptionNotFound = errors.New("poll option not found")
	// ErrPollClosed is returned when voting on a closed or deleted poll.
	ErrPollClosed = errors.New("poll is not open for votes")
	// ErrAlreadyVoted is returned when the voter already selected this option,
	// or any option on a single-choice poll.
	ErrAlreadyVoted = errors.New("already voted")
	// ErrVoteLimit is returned when the voter's selections reached max_votes.
	ErrVoteLimit = errors.New("vote limit reached")
	// ErrNotVoted is returned when retracting a selection that does not exist.
	ErrNotVoted = errors.New("option not selected")
)

// Repository handles poll persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a polls repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a poll and its options in one transaction. Options start at
// zero votes and keep their given order.
func (r *Repository) Create(ctx context.Context, p *models.Poll, optionTexts []string) ([]models.PollOption, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO polls (id, session_id, question, allow_multiple_votes, max_votes, active, show_results_to_students)
		 VALUES (gen_random_uuid(), $1, $2, $3, $4, TRUE, FALSE)
		 RETURNING id, active, show_results_to_students, created_at`,
		p.SessionID, p.Question, p.AllowMultipleVotes, p.MaxVotes).
		Scan(&p.ID, &p.Active, &p.ShowResultsToStudents, &p.CreatedAt)
	if err != nil {
		return nil, err
	}

	options := make([]models.PollOption, 0, len(optionTexts))
	for i, text := range optionTexts {
		opt := models.PollOption{PollID: p.ID, OptionText: text, Position: i}
		err = tx.QueryRow(ctx,
			`INSERT INTO poll_options (id, poll_id, option_text, position, vote_count)
			 VALUES (gen_random_uuid(), $1, $2, $3, 0)
			 RETURNING id, created_at`,
			p.ID, text, i).Scan(&opt.ID, &opt.CreatedAt)
		if err != nil {
			return nil, err
		}
		options = append(options, opt)
	}
	return options, tx.Commit(ctx)
}

// GetByID returns a poll by ID, including soft-deleted ones.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Poll, error) {
	const query = `SELECT id, session_id, question, allow_multiple_votes, max_votes, active, show_results_to_students, correct_option_id, deleted, created_at
		FROM polls WHERE id = $1`
	var p models.Poll
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&p.ID, &p.SessionID, &p.Question, &p.AllowMultipleVotes, &p.MaxVotes, &p.Active, &p.ShowResultsToStudents, &p.CorrectOptionID, &p.Deleted, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListBySession returns non-deleted polls for a session, newest first.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Poll, error) {
	const query = `SELECT id, session_id, question, allow_multiple_votes, max_votes, active, show_results_to_students, correct_option_id, deleted, created_at
		FROM polls WHERE session_id = $1 AND NOT deleted
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]models.Poll, 0)
	for rows.Next() {
		var p models.Poll
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Question, &p.AllowMultipleVotes, &p.MaxVotes, &p.Active, &p.ShowResultsToStudents, &p.CorrectOptionID, &p.Deleted, &p.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// OptionsByPoll returns a poll's options in position order.
func (r *Repository) OptionsByPoll(ctx context.Context, pollID uuid.UUID) ([]models.PollOption, error) {
	const query = `SELECT id, poll_id, option_text, position, vote_count, created_at
		FROM poll_options WHERE poll_id = $1 ORDER BY position ASC`
	rows, err := r.pool.Query(ctx, query, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	options := make([]models.PollOption, 0)
	for rows.Next() {
		var o models.PollOption
		if err := rows.Scan(&o.ID, &o.PollID, &o.OptionText, &o.Position, &o.VoteCount, &o.CreatedAt); err != nil {
			return nil, err
		}
		options = append(options, o)
	}
	return options, rows.Err()
}

// Vote records a voter's selection and bumps the option counter atomically.
// The poll row is locked so the max-votes check and the insert are serialized
// per poll.
func (r *Repository) Vote(ctx context.Context, pollID, optionID, voterID uuid.UUID) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var allowMultiple, active, deleted bool
	var maxVotes int
	err = tx.QueryRow(ctx,
		`SELECT allow_multiple_votes, max_votes, active, deleted FROM polls WHERE id = $1 FOR UPDATE`,
		pollID).Scan(&allowMultiple, &maxVotes, &active, &deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if !active || deleted {
		return 0, ErrPollClosed
	}

	var selected int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM poll_votes WHERE poll_id = $1 AND voter_id = $2`,
		pollID, voterID).Scan(&selected)
	if err != nil {
		return 0, err
	}
	if !allowMultiple && selected >= 1 {
		return 0, ErrAlreadyVoted
	}
	if allowMultiple && selected >= maxVotes {
		return 0, ErrVoteLimit
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO poll_votes (poll_id, option_id, voter_id) VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`, pollID, optionID, voterID)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrAlreadyVoted
	}

	var count int
	err = tx.QueryRow(ctx,
		`UPDATE poll_options SET vote_count = vote_count + 1 WHERE id = $1 AND poll_id = $2 RETURNING vote_count`,
		optionID, pollID).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrOptionNotFound
	}
	if err != nil {
		return 0, err
	}
	return count, tx.Commit(ctx)
}

// RemoveVote retracts a selection; the decrement floors at zero.
func (r *Repository) RemoveVote(ctx context.Context, pollID, optionID, voterID uuid.UUID) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`DELETE FROM poll_votes WHERE poll_id = $1 AND option_id = $2 AND voter_id = $3`,
		pollID, optionID, voterID)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrNotVoted
	}

	var count int
	err = tx.QueryRow(ctx,
		`UPDATE poll_options SET vote_count = GREATEST(vote_count - 1, 0) WHERE id = $1 AND poll_id = $2 RETURNING vote_count`,
		optionID, pollID).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrOptionNotFound
	}
	if err != nil {
		return 0, err
	}
	return count, tx.Commit(ctx)
}

// SelectionsByVoter returns the option IDs the voter selected on a poll.
func (r *Repository) SelectionsByVoter(ctx context.Context, pollID, voterID uuid.UUID) ([]uuid.UUID, error) {
	const query = `SELECT option_id FROM poll_votes WHERE poll_id = $1 AND voter_id = $2`
	rows, err := r.pool.Query(ctx, query, pollID, voterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close sets the poll inactive.
func (r *Repository) Close(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE polls SET active = FALSE WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

// ToggleResults flips result visibility for students and returns the new value.
func (r *Repository) ToggleResults(ctx context.Context, id uuid.UUID) (bool, error) {
	const query = `UPDATE polls SET show_results_to_students = NOT show_results_to_students
		WHERE id = $1 RETURNING show_results_to_students`
	var v bool
	err := r.pool.QueryRow(ctx, query, id).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	return v, err
}

// SetCorrectOption toggles the correct answer: marking the already-marked
// option clears it back to null.
func (r *Repository) SetCorrectOption(ctx context.Context, pollID, optionID uuid.UUID) (*uuid.UUID, error) {
	const query = `UPDATE polls
		SET correct_option_id = CASE WHEN correct_option_id = $2 THEN NULL ELSE $2 END
		WHERE id = $1 AND EXISTS (SELECT 1 FROM poll_options WHERE id = $2 AND poll_id = $1)
		RETURNING correct_option_id`
	var v *uuid.UUID
	err := r.pool.QueryRow(ctx, query, pollID, optionID).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOptionNotFound
	}
	return v, err
}

// SoftDelete marks the poll deleted; rows stay for audit but drop out of reads.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE polls SET deleted = TRUE WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}
