package domain

import (
	"context"
	"time"
)

// Identity is a resolved account on the external platform.
type Identity struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// Challenge is a pending, in-memory verification code for one owner.
// Generation identifies the issuance so cleanup of a superseded challenge can never
// remove a newer one.
type Challenge struct {
	OwnerID    string
	Code       string
	IssuedFor  string
	Deadline   time.Time
	Generation uint64
}

// Live reports whether the challenge can still be confirmed at now.
func (c Challenge) Live(now time.Time) bool {
	return now.Before(c.Deadline)
}

// VerificationRecord binds one owner to one external handle.
type VerificationRecord struct {
	OwnerID        string    `json:"owner_id" dynamodbav:"owner_id"`
	ExternalHandle string    `json:"external_handle" dynamodbav:"external_handle"`
	HandleKey      string    `json:"-" dynamodbav:"handle_key"` // lower-cased handle for case-insensitive lookups
	VerifiedAt     time.Time `json:"verified_at" dynamodbav:"verified_at"`
	Credits        int       `json:"credits" dynamodbav:"credits"`
}

// CommitRequest is the input of VerificationStore.Commit.
type CommitRequest struct {
	OwnerID        string
	ExternalHandle string
	VerifiedAt     time.Time
	InitialCredits int
}

// CommitResult reports what a commit did to the table.
type CommitResult struct {
	Record  VerificationRecord
	Granted bool // initial credits were issued
	// DisplacedOwnerID is set when the handle was previously bound to another owner.
	DisplacedOwnerID string
}

// Confirmation is returned by a successful confirm-verification.
type Confirmation struct {
	OwnerID          string
	ExternalHandle   string
	ExternalID       int64
	Credits          int
	Granted          bool
	DisplacedOwnerID string
	// DisplacedRoleRemoved is false when the displaced owner's role could not be stripped.
	DisplacedRoleRemoved bool
	VerifiedAt           time.Time
}

// Revocation is returned by a successful revoke.
type Revocation struct {
	OwnerID        string
	ExternalHandle string
	RoleRemoved    bool
}

// VerificationStore persists committed verifications together with the credit balance.
// Every mutating method is atomic at the storage layer.
type VerificationStore interface {
	// Commit upserts the binding. Credits follow the handle: a handle already bound to
	// another owner moves with its balance, an owner re-verifying keeps its balance,
	// otherwise InitialCredits are granted.
	Commit(ctx context.Context, req CommitRequest) (*CommitResult, error)
	GetByOwner(ctx context.Context, ownerID string) (*VerificationRecord, error)
	// GetByHandle matches case-insensitively.
	GetByHandle(ctx context.Context, handle string) (*VerificationRecord, error)
	Delete(ctx context.Context, ownerID string) error
	// GrantInitial inserts a record with amount credits iff neither the owner nor the
	// handle has one. The bool reports whether a record was created.
	GrantInitial(ctx context.Context, ownerID, handle string, amount int, at time.Time) (*VerificationRecord, bool, error)
	// Debit subtracts amount from the balance bound to handle and returns the new balance.
	Debit(ctx context.Context, handle string, amount int) (int, error)
	// AdjustCredits adds delta (may be negative) clamping the balance at zero.
	AdjustCredits(ctx context.Context, ownerID string, delta int) (int, error)
}
