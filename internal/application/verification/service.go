package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/blox-verify/internal/application/challenge"
	"github.com/blox-verify/internal/domain"
	"github.com/blox-verify/internal/infrastructure/metrics"
	"github.com/blox-verify/internal/pkg/validate"
)

// ProfileLookup resolves handles and reads profile bios on the external platform.
type ProfileLookup interface {
	ResolveHandle(ctx context.Context, handle string) (*domain.Identity, error)
	FetchBio(ctx context.Context, id int64) (string, error)
}

// Notifier delivers a private message to an owner.
type Notifier interface {
	SendDirect(ctx context.Context, ownerID, message string) error
}

// RoleManager strips the verified role from an owner on the chat platform.
type RoleManager interface {
	RevokeVerified(ctx context.Context, ownerID string) error
}

// IssueLimiter throttles how often one owner may request a new code.
type IssueLimiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

type BeginRequest struct {
	OwnerID     string `validate:"required"`
	DisplayName string
	Handle      string `validate:"required,handle"`
}

// BeginResult reports issuance and delivery independently: a challenge can be registered
// even when the code could not be delivered.
type BeginResult struct {
	Challenge domain.Challenge
	Delivered bool
	Err       error // wraps domain.ErrDeliveryFailed when Delivered is false
}

type Service interface {
	Begin(ctx context.Context, req BeginRequest) (*BeginResult, error)
	Confirm(ctx context.Context, ownerID string) (*domain.Confirmation, error)
	Revoke(ctx context.Context, target string) (*domain.Revocation, error)
	Lookup(ctx context.Context, target string) (*domain.VerificationRecord, error)
}

// ServiceDeps lists the collaborators of the verification service. Limiter and Metrics
// are optional.
type ServiceDeps struct {
	Registry       *challenge.Registry
	Profiles       ProfileLookup
	Store          domain.VerificationStore
	Notifier       Notifier
	Roles          RoleManager
	Limiter        IssueLimiter
	Metrics        *metrics.Metrics
	InitialCredits int
	Now            func() time.Time
}

type service struct {
	registry       *challenge.Registry
	profiles       ProfileLookup
	store          domain.VerificationStore
	notifier       Notifier
	roles          RoleManager
	limiter        IssueLimiter
	metrics        *metrics.Metrics
	initialCredits int
	now            func() time.Time
	locks          *ownerLocks
}

func NewService(d ServiceDeps) Service {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		registry:       d.Registry,
		profiles:       d.Profiles,
		store:          d.Store,
		notifier:       d.Notifier,
		roles:          d.Roles,
		limiter:        d.Limiter,
		metrics:        d.Metrics,
		initialCredits: d.InitialCredits,
		now:            now,
		locks:          newOwnerLocks(),
	}
}

func (s *service) Begin(ctx context.Context, req BeginRequest) (*BeginResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}

	if s.limiter != nil {
		ok, retryAfter, err := s.limiter.Allow(ctx, req.OwnerID)
		switch {
		case err != nil:
			slog.Warn("issue limiter unavailable, allowing request", "owner_id", req.OwnerID, "err", err)
		case !ok:
			return nil, fmt.Errorf("retry in %s: %w", retryAfter.Round(time.Second), domain.ErrRateLimited)
		}
	}

	ch, err := s.registry.Issue(req.OwnerID, req.Handle)
	if err != nil {
		return nil, fmt.Errorf("issue challenge: %w", err)
	}
	if s.metrics != nil {
		s.metrics.IncrementChallengesIssued()
	}

	res := &BeginResult{Challenge: ch, Delivered: true}
	if s.notifier == nil {
		slog.Warn("no notifier configured, verification code not delivered", "owner_id", req.OwnerID)
		res.Delivered = false
		res.Err = fmt.Errorf("no notifier configured: %w", domain.ErrDeliveryFailed)
		return res, nil
	}
	if err := s.notifier.SendDirect(ctx, req.OwnerID, s.instructions(req, ch)); err != nil {
		slog.Warn("verification code delivery failed", "owner_id", req.OwnerID, "err", err)
		res.Delivered = false
		res.Err = fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, err)
	}
	return res, nil
}

func (s *service) instructions(req BeginRequest, ch domain.Challenge) string {
	name := req.DisplayName
	if name == "" {
		name = req.OwnerID
	}
	minutes := int(s.registry.TTL().Minutes())
	return fmt.Sprintf(
		"**Blox Entertainment Verification**\n\n"+
			"Hello **%s**!\n\n"+
			"We are verifying a Roblox user named **%s**.\n\n"+
			"**Step 1:** Go to your Roblox profile and place this code in your *About* section:\n`%s`\n\n"+
			"**Step 2:** Once you've saved the bio, return here and type:\n`!check`\n\n"+
			"This code will expire in %d minutes.",
		name, req.Handle, ch.Code, minutes)
}

func (s *service) Confirm(ctx context.Context, ownerID string) (*domain.Confirmation, error) {
	unlock := s.locks.lock(ownerID)
	defer unlock()

	conf, outcome, err := s.confirm(ctx, ownerID)
	if s.metrics != nil {
		s.metrics.RecordConfirmation(outcome)
	}
	return conf, err
}

func (s *service) confirm(ctx context.Context, ownerID string) (*domain.Confirmation, string, error) {
	ch, ok := s.registry.Peek(ownerID)
	if !ok {
		return nil, "no_challenge", fmt.Errorf("owner %s: %w", ownerID, domain.ErrNoPendingChallenge)
	}
	now := s.now()
	if !ch.Live(now) {
		s.registry.ClearIssued(ownerID, ch.Generation)
		return nil, "expired", fmt.Errorf("owner %s: %w", ownerID, domain.ErrChallengeExpired)
	}

	ident, err := s.profiles.ResolveHandle(ctx, ch.IssuedFor)
	if err != nil {
		slog.Warn("resolve handle failed", "owner_id", ownerID, "handle", ch.IssuedFor, "err", err)
		return nil, "identity_not_found", fmt.Errorf("%s: %w", ch.IssuedFor, domain.ErrIdentityNotFound)
	}

	bio, err := s.profiles.FetchBio(ctx, ident.ID)
	if err != nil {
		slog.Warn("fetch bio failed", "owner_id", ownerID, "external_id", ident.ID, "err", err)
		return nil, "profile_unavailable", fmt.Errorf("%s: %w", ch.IssuedFor, domain.ErrProfileUnavailable)
	}

	if !strings.Contains(bio, ch.Code) {
		return nil, "code_mismatch", fmt.Errorf("%s: %w", ch.IssuedFor, domain.ErrCodeMismatch)
	}

	res, err := s.store.Commit(ctx, domain.CommitRequest{
		OwnerID:        ownerID,
		ExternalHandle: ch.IssuedFor,
		VerifiedAt:     now,
		InitialCredits: s.initialCredits,
	})
	if err != nil {
		slog.Error("commit verification failed", "owner_id", ownerID, "handle", ch.IssuedFor, "err", err)
		return nil, "storage_error", fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	s.registry.ClearIssued(ownerID, ch.Generation)

	conf := &domain.Confirmation{
		OwnerID:          ownerID,
		ExternalHandle:   res.Record.ExternalHandle,
		ExternalID:       ident.ID,
		Credits:          res.Record.Credits,
		Granted:          res.Granted,
		DisplacedOwnerID: res.DisplacedOwnerID,
		VerifiedAt:       res.Record.VerifiedAt,
	}
	if res.DisplacedOwnerID != "" {
		slog.Info("handle moved to new owner", "handle", ch.IssuedFor,
			"owner_id", ownerID, "displaced_owner_id", res.DisplacedOwnerID)
		conf.DisplacedRoleRemoved = s.revokeRole(ctx, res.DisplacedOwnerID)
	}
	return conf, "verified", nil
}

// revokeRole strips the verified role from an owner whose record is gone. Failures are
// logged and reported, never returned.
func (s *service) revokeRole(ctx context.Context, ownerID string) bool {
	if s.roles == nil {
		return false
	}
	if err := s.roles.RevokeVerified(ctx, ownerID); err != nil {
		slog.Warn("remove verified role failed", "owner_id", ownerID, "err", err)
		return false
	}
	return true
}

func (s *service) Revoke(ctx context.Context, target string) (*domain.Revocation, error) {
	rec, err := s.Lookup(ctx, target)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(rec.OwnerID)
	defer unlock()

	if err := s.store.Delete(ctx, rec.OwnerID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", target, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	if s.metrics != nil {
		s.metrics.IncrementRevocations()
	}

	return &domain.Revocation{
		OwnerID:        rec.OwnerID,
		ExternalHandle: rec.ExternalHandle,
		RoleRemoved:    s.roles == nil || s.revokeRole(ctx, rec.OwnerID),
	}, nil
}

// Lookup resolves target as a mention, a raw owner id or a handle, in that order.
func (s *service) Lookup(ctx context.Context, target string) (*domain.VerificationRecord, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, fmt.Errorf("empty target: %w", domain.ErrBadRequest)
	}

	if id, ok := ParseMention(target); ok {
		return s.lookupOwner(ctx, id, target)
	}

	if isNumeric(target) {
		rec, err := s.store.GetByOwner(ctx, target)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
		}
	}

	rec, err := s.store.GetByHandle(ctx, target)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", target, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	return rec, nil
}

func (s *service) lookupOwner(ctx context.Context, ownerID, target string) (*domain.VerificationRecord, error) {
	rec, err := s.store.GetByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", target, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	return rec, nil
}

// ParseMention extracts the owner id from "<@id>" or "<@!id>".
func ParseMention(s string) (string, bool) {
	if !strings.HasPrefix(s, "<@") || !strings.HasSuffix(s, ">") {
		return "", false
	}
	id := strings.TrimPrefix(strings.TrimSuffix(strings.TrimPrefix(s, "<@"), ">"), "!")
	if !isNumeric(id) {
		return "", false
	}
	return id, true
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}
