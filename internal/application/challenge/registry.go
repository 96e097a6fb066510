package challenge

import (
	"log/slog"
	"sync"
	"time"

	"github.com/blox-verify/internal/domain"
	"github.com/blox-verify/internal/pkg/code"
)

// Registry holds at most one pending challenge per owner.
//
// Every issuance gets a new generation. The expiry timer of an issuance only removes the
// entry if it still carries that generation, so a superseded timer can never expire a
// re-issued challenge. Deadlines are also carried on the challenge itself because the
// timer and a racing confirmation can interleave; callers must check Challenge.Live.
type Registry struct {
	mu         sync.Mutex
	pending    map[string]*entry
	generation uint64
	closed     bool

	codeLength int
	ttl        time.Duration
	now        func() time.Time
	newCode    func(length int) (string, error)
}

type entry struct {
	challenge domain.Challenge
	timer     *time.Timer // nil once the registry is closed
}

func (e *entry) stop() {
	if e.timer != nil {
		e.timer.Stop()
	}
}

// Option customises a Registry.
type Option func(*Registry)

// WithClock overrides the time source used for deadlines.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithCodeGenerator overrides code generation (tests use fixed codes).
func WithCodeGenerator(fn func(length int) (string, error)) Option {
	return func(r *Registry) { r.newCode = fn }
}

// NewRegistry creates a registry issuing codes of codeLength digits valid for ttl.
func NewRegistry(codeLength int, ttl time.Duration, opts ...Option) *Registry {
	r := &Registry{
		pending:    make(map[string]*entry),
		codeLength: codeLength,
		ttl:        ttl,
		now:        time.Now,
		newCode:    code.NewNumeric,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TTL returns how long an issued challenge stays valid.
func (r *Registry) TTL() time.Duration { return r.ttl }

// Issue generates a code for ownerID bound to handle, replacing any pending challenge.
func (r *Registry) Issue(ownerID, handle string) (domain.Challenge, error) {
	c, err := r.newCode(r.codeLength)
	if err != nil {
		return domain.Challenge{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.pending[ownerID]; ok {
		prev.stop()
	}
	r.generation++
	ch := domain.Challenge{
		OwnerID:    ownerID,
		Code:       c,
		IssuedFor:  handle,
		Deadline:   r.now().Add(r.ttl),
		Generation: r.generation,
	}
	gen := r.generation
	e := &entry{challenge: ch}
	if !r.closed {
		e.timer = time.AfterFunc(r.ttl, func() { r.expire(ownerID, gen) })
	}
	r.pending[ownerID] = e
	return ch, nil
}

func (r *Registry) expire(ownerID string, generation uint64) {
	if r.ClearIssued(ownerID, generation) {
		slog.Info("verification challenge expired", "owner_id", ownerID, "generation", generation)
	}
}

// Peek returns the pending challenge without checking its deadline.
func (r *Registry) Peek(ownerID string) (domain.Challenge, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.pending[ownerID]
	if !ok {
		return domain.Challenge{}, false
	}
	return e.challenge, true
}

// Clear removes any pending challenge for ownerID. Idempotent.
func (r *Registry) Clear(ownerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.pending[ownerID]; ok {
		e.stop()
		delete(r.pending, ownerID)
	}
}

// ClearIssued removes the challenge for ownerID only if it is the given issuance.
func (r *Registry) ClearIssued(ownerID string, generation uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.pending[ownerID]
	if !ok || e.challenge.Generation != generation {
		return false
	}
	e.stop()
	delete(r.pending, ownerID)
	return true
}

// Len returns the number of challenges currently held, expired or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Close stops every expiry timer. Pending challenges stay readable.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for _, e := range r.pending {
		e.stop()
	}
}
