package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/blox-verify/internal/application/credit"
	"github.com/blox-verify/internal/domain"
	"github.com/blox-verify/internal/infrastructure/metrics"
	"github.com/blox-verify/internal/pkg/id"
)

// AdCost is the number of credits one advertisement request costs.
const AdCost = 1

// Alerter publishes short staff notifications outside the chat platform.
type Alerter interface {
	Publish(ctx context.Context, subject, message string) error
}

type SubmitRequest struct {
	GuildID  string
	OwnerID  string
	Username string
	Text     string
}

// SubmitResult carries the stored submission and the balance left after the debit.
type SubmitResult struct {
	Submission       *domain.Submission
	RemainingCredits int
}

type DecideRequest struct {
	Approve   bool   `json:"-"`
	Decision  string `json:"decision" validate:"omitempty,oneof=approve deny"`
	StaffName string `json:"-"`
	Comments  string `json:"comments"`
}

type Service interface {
	// Eligible checks that ownerID is verified and can pay for one request.
	Eligible(ctx context.Context, ownerID string) (*domain.VerificationRecord, error)
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
	ListPending(ctx context.Context, guildID string) ([]domain.Submission, error)
	Get(ctx context.Context, id string) (*domain.Submission, error)
	Decide(ctx context.Context, id string, req DecideRequest) (*domain.Submission, error)
}

type ServiceDeps struct {
	Submissions   domain.SubmissionStore
	Verifications domain.VerificationStore
	Credits       credit.Service
	Alerter       Alerter
	Metrics       *metrics.Metrics
}

type service struct {
	submissions   domain.SubmissionStore
	verifications domain.VerificationStore
	credits       credit.Service
	alerter       Alerter
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewService(d ServiceDeps) Service {
	return &service{
		submissions:   d.Submissions,
		verifications: d.Verifications,
		credits:       d.Credits,
		alerter:       d.Alerter,
		metrics:       d.Metrics,
		now:           time.Now,
	}
}

func (s *service) Eligible(ctx context.Context, ownerID string) (*domain.VerificationRecord, error) {
	rec, err := s.verifications.GetByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("owner %s: %w", ownerID, domain.ErrNotVerified)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	if rec.Credits < AdCost {
		return rec, fmt.Errorf("%s has %d credits: %w", rec.ExternalHandle, rec.Credits, domain.ErrInsufficientCredits)
	}
	return rec, nil
}

func (s *service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("advertisement text is empty: %w", domain.ErrBadRequest)
	}
	rec, err := s.verifications.GetByOwner(ctx, req.OwnerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("owner %s: %w", req.OwnerID, domain.ErrNotVerified)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}

	remaining, err := s.credits.Debit(ctx, rec.ExternalHandle, AdCost)
	if err != nil {
		return nil, err
	}

	sub := &domain.Submission{
		ID:             id.New(),
		GuildID:        req.GuildID,
		OwnerID:        req.OwnerID,
		Username:       req.Username,
		ExternalHandle: rec.ExternalHandle,
		Text:           text,
		Status:         domain.SubmissionPending,
		SubmittedAt:    s.now().UTC(),
	}
	if err := s.submissions.Append(ctx, sub); err != nil {
		if _, rerr := s.credits.Adjust(ctx, req.OwnerID, AdCost); rerr != nil {
			slog.Error("refund after failed submission", "owner_id", req.OwnerID, "err", rerr)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	s.record(domain.SubmissionPending)

	s.alert(ctx, "New advertisement request",
		fmt.Sprintf("%s (%s) submitted request %s:\n%s", req.Username, rec.ExternalHandle, sub.ID, text))
	return &SubmitResult{Submission: sub, RemainingCredits: remaining}, nil
}

func (s *service) ListPending(ctx context.Context, guildID string) ([]domain.Submission, error) {
	subs, err := s.submissions.ListPending(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	return subs, nil
}

func (s *service) Get(ctx context.Context, id string) (*domain.Submission, error) {
	sub, err := s.submissions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	return sub, nil
}

func (s *service) Decide(ctx context.Context, id string, req DecideRequest) (*domain.Submission, error) {
	approve := req.Approve
	switch req.Decision {
	case "approve":
		approve = true
	case "deny":
		approve = false
	}
	status := domain.SubmissionDenied
	if approve {
		status = domain.SubmissionApproved
	}

	sub, err := s.submissions.Decide(ctx, id, domain.Decision{
		Status:      status,
		ProcessedBy: req.StaffName,
		Comments:    strings.TrimSpace(req.Comments),
		ProcessedAt: s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrNotPending) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	s.record(status)
	s.alert(ctx, "Advertisement request "+status,
		fmt.Sprintf("Request %s by %s was %s by %s.", sub.ID, sub.Username, status, req.StaffName))
	return sub, nil
}

func (s *service) alert(ctx context.Context, subject, message string) {
	if s.alerter == nil {
		return
	}
	if err := s.alerter.Publish(ctx, subject, message); err != nil {
		slog.Warn("staff alert failed", "subject", subject, "err", err)
	}
}

func (s *service) record(status string) {
	if s.metrics != nil {
		s.metrics.RecordSubmission(status)
	}
}
