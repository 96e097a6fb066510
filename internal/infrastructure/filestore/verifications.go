package filestore

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/blox-verify/internal/domain"
)

// VerificationStore implements domain.VerificationStore over a single JSON file.
// Every mutation is applied to a copy, persisted, and only then made visible.
type VerificationStore struct {
	mu      sync.RWMutex
	file    *jsonFile
	records map[string]domain.VerificationRecord // owner id -> record
}

// NewVerificationStore opens (or creates) dir/verification_records.json.
func NewVerificationStore(dir string) (*VerificationStore, error) {
	f, err := newJSONFile(dir, "verification_records.json")
	if err != nil {
		return nil, err
	}
	s := &VerificationStore{file: f, records: make(map[string]domain.VerificationRecord)}
	if err := f.load(&s.records); err != nil {
		return nil, err
	}
	return s, nil
}

// mutate runs fn on a copy of the records and swaps it in once persisted.
func (s *VerificationStore) mutate(fn func(recs map[string]domain.VerificationRecord) error) error {
	next := maps.Clone(s.records)
	if err := fn(next); err != nil {
		return err
	}
	if err := s.file.save(next); err != nil {
		return fmt.Errorf("persist verifications: %w", err)
	}
	s.records = next
	return nil
}

func byHandle(recs map[string]domain.VerificationRecord, handle string) (domain.VerificationRecord, bool) {
	for _, r := range recs {
		if strings.EqualFold(r.ExternalHandle, handle) {
			return r, true
		}
	}
	return domain.VerificationRecord{}, false
}

func (s *VerificationStore) Commit(_ context.Context, req domain.CommitRequest) (*domain.CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res domain.CommitResult
	err := s.mutate(func(recs map[string]domain.VerificationRecord) error {
		credits := req.InitialCredits
		granted := true
		if holder, ok := byHandle(recs, req.ExternalHandle); ok && holder.OwnerID != req.OwnerID {
			credits, granted = holder.Credits, false
			res.DisplacedOwnerID = holder.OwnerID
			delete(recs, holder.OwnerID)
		} else if prev, ok := recs[req.OwnerID]; ok {
			credits, granted = prev.Credits, false
		}
		rec := domain.VerificationRecord{
			OwnerID:        req.OwnerID,
			ExternalHandle: req.ExternalHandle,
			HandleKey:      strings.ToLower(req.ExternalHandle),
			VerifiedAt:     req.VerifiedAt.UTC(),
			Credits:        credits,
		}
		recs[req.OwnerID] = rec
		res.Record, res.Granted = rec, granted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *VerificationStore) GetByOwner(_ context.Context, ownerID string) (*domain.VerificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[ownerID]
	if !ok {
		return nil, fmt.Errorf("verification for owner %s: %w", ownerID, domain.ErrNotFound)
	}
	return &r, nil
}

func (s *VerificationStore) GetByHandle(_ context.Context, handle string) (*domain.VerificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := byHandle(s.records, handle)
	if !ok {
		return nil, fmt.Errorf("verification for handle %s: %w", handle, domain.ErrNotFound)
	}
	return &r, nil
}

func (s *VerificationStore) Delete(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutate(func(recs map[string]domain.VerificationRecord) error {
		if _, ok := recs[ownerID]; !ok {
			return fmt.Errorf("verification for owner %s: %w", ownerID, domain.ErrNotFound)
		}
		delete(recs, ownerID)
		return nil
	})
}

func (s *VerificationStore) GrantInitial(_ context.Context, ownerID, handle string, amount int, at time.Time) (*domain.VerificationRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.records[ownerID]; ok {
		return &r, false, nil
	}
	if r, ok := byHandle(s.records, handle); ok {
		return &r, false, nil
	}
	rec := domain.VerificationRecord{
		OwnerID:        ownerID,
		ExternalHandle: handle,
		HandleKey:      strings.ToLower(handle),
		VerifiedAt:     at.UTC(),
		Credits:        amount,
	}
	err := s.mutate(func(recs map[string]domain.VerificationRecord) error {
		recs[ownerID] = rec
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

func (s *VerificationStore) Debit(_ context.Context, handle string, amount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var remaining int
	err := s.mutate(func(recs map[string]domain.VerificationRecord) error {
		r, ok := byHandle(recs, handle)
		if !ok {
			return fmt.Errorf("credits for handle %s: %w", handle, domain.ErrNotFound)
		}
		if r.Credits < amount {
			return fmt.Errorf("%s has %d: %w", handle, r.Credits, domain.ErrInsufficientCredits)
		}
		r.Credits -= amount
		recs[r.OwnerID] = r
		remaining = r.Credits
		return nil
	})
	return remaining, err
}

func (s *VerificationStore) AdjustCredits(_ context.Context, ownerID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var balance int
	err := s.mutate(func(recs map[string]domain.VerificationRecord) error {
		r, ok := recs[ownerID]
		if !ok {
			return fmt.Errorf("credits for owner %s: %w", ownerID, domain.ErrNotFound)
		}
		r.Credits = max(r.Credits+delta, 0)
		recs[ownerID] = r
		balance = r.Credits
		return nil
	})
	return balance, err
}
