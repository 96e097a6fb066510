package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blox-verify/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VerificationStore implements domain.VerificationStore on PostgreSQL. Multi-row changes
// run in one transaction; single-row credit changes are one conditional statement.
type VerificationStore struct {
	pool *pgxpool.Pool
}

func NewVerificationStore(pool *pgxpool.Pool) *VerificationStore {
	return &VerificationStore{pool: pool}
}

const verificationColumns = `owner_id, external_handle, verified_at, credits`

func scanRecord(row pgx.Row) (*domain.VerificationRecord, error) {
	var r domain.VerificationRecord
	if err := row.Scan(&r.OwnerID, &r.ExternalHandle, &r.VerifiedAt, &r.Credits); err != nil {
		return nil, err
	}
	r.HandleKey = strings.ToLower(r.ExternalHandle)
	return &r, nil
}

func (s *VerificationStore) Commit(ctx context.Context, req domain.CommitRequest) (*domain.CommitResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, `
		SELECT `+verificationColumns+`
		FROM verifications
		WHERE owner_id = $1 OR LOWER(external_handle) = LOWER($2)
		FOR UPDATE`, req.OwnerID, req.ExternalHandle)
	if err != nil {
		return nil, fmt.Errorf("lock verifications: %w", err)
	}
	var own, holder *domain.VerificationRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		if r.OwnerID == req.OwnerID {
			own = r
		} else {
			holder = r
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lock verifications: %w", err)
	}

	res := &domain.CommitResult{}
	credits := req.InitialCredits
	switch {
	case holder != nil:
		credits = holder.Credits
		res.DisplacedOwnerID = holder.OwnerID
		if _, err := tx.Exec(ctx, `DELETE FROM verifications WHERE owner_id = $1`, holder.OwnerID); err != nil {
			return nil, fmt.Errorf("release handle: %w", err)
		}
	case own != nil:
		credits = own.Credits
	default:
		res.Granted = true
	}

	rec, err := scanRecord(tx.QueryRow(ctx, `
		INSERT INTO verifications (owner_id, external_handle, verified_at, credits)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_id) DO UPDATE
		SET external_handle = EXCLUDED.external_handle,
		    verified_at     = EXCLUDED.verified_at,
		    credits         = EXCLUDED.credits
		RETURNING `+verificationColumns,
		req.OwnerID, req.ExternalHandle, req.VerifiedAt.UTC(), credits))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("handle %s committed concurrently: %w", req.ExternalHandle, domain.ErrConflict)
		}
		return nil, fmt.Errorf("upsert verification: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	res.Record = *rec
	return res, nil
}

func (s *VerificationStore) GetByOwner(ctx context.Context, ownerID string) (*domain.VerificationRecord, error) {
	r, err := scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+verificationColumns+` FROM verifications WHERE owner_id = $1`, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("verification for owner %s: %w", ownerID, domain.ErrNotFound)
		}
		return nil, err
	}
	return r, nil
}

func (s *VerificationStore) GetByHandle(ctx context.Context, handle string) (*domain.VerificationRecord, error) {
	r, err := scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+verificationColumns+` FROM verifications WHERE LOWER(external_handle) = LOWER($1)`, handle))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("verification for handle %s: %w", handle, domain.ErrNotFound)
		}
		return nil, err
	}
	return r, nil
}

func (s *VerificationStore) Delete(ctx context.Context, ownerID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM verifications WHERE owner_id = $1`, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("verification for owner %s: %w", ownerID, domain.ErrNotFound)
	}
	return nil
}

func (s *VerificationStore) GrantInitial(ctx context.Context, ownerID, handle string, amount int, at time.Time) (*domain.VerificationRecord, bool, error) {
	r, err := scanRecord(s.pool.QueryRow(ctx, `
		INSERT INTO verifications (owner_id, external_handle, verified_at, credits)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
		RETURNING `+verificationColumns, ownerID, handle, at.UTC(), amount))
	if err == nil {
		return r, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("grant initial: %w", err)
	}

	r, err = scanRecord(s.pool.QueryRow(ctx, `
		SELECT `+verificationColumns+` FROM verifications
		WHERE owner_id = $1 OR LOWER(external_handle) = LOWER($2)
		ORDER BY (owner_id = $1) DESC
		LIMIT 1`, ownerID, handle))
	if err != nil {
		return nil, false, fmt.Errorf("read existing grant: %w", err)
	}
	return r, false, nil
}

func (s *VerificationStore) Debit(ctx context.Context, handle string, amount int) (int, error) {
	var remaining int
	err := s.pool.QueryRow(ctx, `
		UPDATE verifications SET credits = credits - $2
		WHERE LOWER(external_handle) = LOWER($1) AND credits >= $2
		RETURNING credits`, handle, amount).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("debit: %w", err)
	}

	var current int
	err = s.pool.QueryRow(ctx,
		`SELECT credits FROM verifications WHERE LOWER(external_handle) = LOWER($1)`, handle).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("credits for handle %s: %w", handle, domain.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("debit: %w", err)
	}
	return 0, fmt.Errorf("%s has %d: %w", handle, current, domain.ErrInsufficientCredits)
}

func (s *VerificationStore) AdjustCredits(ctx context.Context, ownerID string, delta int) (int, error) {
	var balance int
	err := s.pool.QueryRow(ctx, `
		UPDATE verifications SET credits = GREATEST(credits + $2, 0)
		WHERE owner_id = $1
		RETURNING credits`, ownerID, delta).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("credits for owner %s: %w", ownerID, domain.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("adjust credits: %w", err)
	}
	return balance, nil
}
