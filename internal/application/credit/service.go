package credit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blox-verify/internal/domain"
	"github.com/blox-verify/internal/infrastructure/metrics"
)

// Service is the credit ledger. Balances live on the verification record and follow the
// verified handle.
type Service interface {
	// Balance returns 0 for owners or handles without a record.
	Balance(ctx context.Context, target string) (int, error)
	Debit(ctx context.Context, handle string, amount int) (int, error)
	GrantInitial(ctx context.Context, ownerID, handle string) (*domain.VerificationRecord, bool, error)
	Adjust(ctx context.Context, ownerID string, delta int) (int, error)
}

type service struct {
	store          domain.VerificationStore
	initialCredits int
	metrics        *metrics.Metrics
	now            func() time.Time
}

func NewService(store domain.VerificationStore, initialCredits int, m *metrics.Metrics) Service {
	return &service{store: store, initialCredits: initialCredits, metrics: m, now: time.Now}
}

func (s *service) Balance(ctx context.Context, target string) (int, error) {
	rec, err := s.store.GetByOwner(ctx, target)
	if errors.Is(err, domain.ErrNotFound) {
		rec, err = s.store.GetByHandle(ctx, target)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	return rec.Credits, nil
}

func (s *service) Debit(ctx context.Context, handle string, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive: %w", domain.ErrBadRequest)
	}
	remaining, err := s.store.Debit(ctx, handle, amount)
	switch {
	case err == nil:
		s.record("ok")
		return remaining, nil
	case errors.Is(err, domain.ErrInsufficientCredits):
		s.record("insufficient")
		return 0, err
	case errors.Is(err, domain.ErrNotFound):
		s.record("unknown")
		return 0, fmt.Errorf("%s: %w", handle, domain.ErrNotVerified)
	default:
		s.record("error")
		slog.Error("debit failed", "handle", handle, "amount", amount, "err", err)
		return 0, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
}

func (s *service) GrantInitial(ctx context.Context, ownerID, handle string) (*domain.VerificationRecord, bool, error) {
	rec, created, err := s.store.GrantInitial(ctx, ownerID, handle, s.initialCredits, s.now())
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	return rec, created, nil
}

func (s *service) Adjust(ctx context.Context, ownerID string, delta int) (int, error) {
	if delta == 0 {
		return 0, fmt.Errorf("delta must be non-zero: %w", domain.ErrBadRequest)
	}
	bal, err := s.store.AdjustCredits(ctx, ownerID, delta)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	slog.Info("credits adjusted", "owner_id", ownerID, "delta", delta, "balance", bal)
	return bal, nil
}

func (s *service) record(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordDebit(outcome)
	}
}
