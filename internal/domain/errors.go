package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map them to replies and HTTP status codes without
// leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	// Verification flow.
	ErrNoPendingChallenge = errors.New("no pending verification challenge")
	ErrChallengeExpired   = errors.New("verification challenge expired")
	ErrIdentityNotFound   = errors.New("external identity not found")
	ErrProfileUnavailable = errors.New("external profile unavailable")
	ErrCodeMismatch       = errors.New("verification code not found in profile")
	ErrRateLimited        = errors.New("too many verification requests")

	// ErrDeliveryFailed is informational: the challenge stays registered.
	ErrDeliveryFailed = errors.New("out-of-band delivery failed")

	// ErrStorageUnavailable is fatal to the operation and never retried automatically.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Credits and moderation.
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrNotVerified         = errors.New("account not verified")
	ErrNotPending          = errors.New("submission is no longer pending")
)
