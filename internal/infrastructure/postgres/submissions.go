package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/blox-verify/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SubmissionStore struct {
	pool *pgxpool.Pool
}

func NewSubmissionStore(pool *pgxpool.Pool) *SubmissionStore {
	return &SubmissionStore{pool: pool}
}

const submissionColumns = `id, guild_id, owner_id, username, external_handle, ad_text, status,
	submitted_at, processed_by, decision, comments, processed_at`

func scanSubmission(row pgx.Row) (*domain.Submission, error) {
	var s domain.Submission
	err := row.Scan(&s.ID, &s.GuildID, &s.OwnerID, &s.Username, &s.ExternalHandle, &s.Text, &s.Status,
		&s.SubmittedAt, &s.ProcessedBy, &s.Decision, &s.Comments, &s.ProcessedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *SubmissionStore) Append(ctx context.Context, sub *domain.Submission) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ad_submissions (id, guild_id, owner_id, username, external_handle, ad_text, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sub.ID, sub.GuildID, sub.OwnerID, sub.Username, sub.ExternalHandle, sub.Text, sub.Status, sub.SubmittedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("submission %s: %w", sub.ID, domain.ErrConflict)
		}
		return err
	}
	return nil
}

func (s *SubmissionStore) Get(ctx context.Context, id string) (*domain.Submission, error) {
	sub, err := scanSubmission(s.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM ad_submissions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("submission %s: %w", id, domain.ErrNotFound)
	}
	return sub, err
}

func (s *SubmissionStore) ListPending(ctx context.Context, guildID string) ([]domain.Submission, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+submissionColumns+` FROM ad_submissions
		WHERE guild_id = $1 AND status = $2
		ORDER BY submitted_at, id`, guildID, domain.SubmissionPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

func (s *SubmissionStore) Decide(ctx context.Context, id string, d domain.Decision) (*domain.Submission, error) {
	sub, err := scanSubmission(s.pool.QueryRow(ctx, `
		UPDATE ad_submissions
		SET status = $2, processed_by = $3, decision = $4, comments = $5, processed_at = $6
		WHERE id = $1 AND status = 'pending'
		RETURNING `+submissionColumns,
		id, d.Status, d.ProcessedBy, domain.DecisionWord(d.Status), d.Comments, d.ProcessedAt.UTC()))
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if _, gerr := s.Get(ctx, id); gerr != nil {
		return nil, gerr
	}
	return nil, fmt.Errorf("submission %s: %w", id, domain.ErrNotPending)
}
