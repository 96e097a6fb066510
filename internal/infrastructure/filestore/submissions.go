package filestore

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/blox-verify/internal/domain"
)

// SubmissionStore implements domain.SubmissionStore over dir/advertisement_requests.json.
type SubmissionStore struct {
	mu   sync.RWMutex
	file *jsonFile
	subs []domain.Submission
}

func NewSubmissionStore(dir string) (*SubmissionStore, error) {
	f, err := newJSONFile(dir, "advertisement_requests.json")
	if err != nil {
		return nil, err
	}
	s := &SubmissionStore{file: f}
	if err := f.load(&s.subs); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SubmissionStore) Append(_ context.Context, sub *domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.ContainsFunc(s.subs, func(x domain.Submission) bool { return x.ID == sub.ID }) {
		return fmt.Errorf("submission %s: %w", sub.ID, domain.ErrConflict)
	}
	next := append(slices.Clone(s.subs), *sub)
	if err := s.file.save(next); err != nil {
		return fmt.Errorf("persist submissions: %w", err)
	}
	s.subs = next
	return nil
}

func (s *SubmissionStore) Get(_ context.Context, id string) (*domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := slices.IndexFunc(s.subs, func(x domain.Submission) bool { return x.ID == id })
	if i < 0 {
		return nil, fmt.Errorf("submission %s: %w", id, domain.ErrNotFound)
	}
	sub := s.subs[i]
	return &sub, nil
}

func (s *SubmissionStore) ListPending(_ context.Context, guildID string) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Submission
	for _, sub := range s.subs {
		if sub.GuildID == guildID && sub.Status == domain.SubmissionPending {
			out = append(out, sub)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Submission) int { return a.SubmittedAt.Compare(b.SubmittedAt) })
	return out, nil
}

func (s *SubmissionStore) Decide(_ context.Context, id string, d domain.Decision) (*domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.subs, func(x domain.Submission) bool { return x.ID == id })
	if i < 0 {
		return nil, fmt.Errorf("submission %s: %w", id, domain.ErrNotFound)
	}
	if s.subs[i].Status != domain.SubmissionPending {
		return nil, fmt.Errorf("submission %s is %s: %w", id, s.subs[i].Status, domain.ErrNotPending)
	}

	next := slices.Clone(s.subs)
	at := d.ProcessedAt.UTC()
	next[i].Status = d.Status
	next[i].ProcessedBy = d.ProcessedBy
	next[i].Decision = domain.DecisionWord(d.Status)
	next[i].Comments = d.Comments
	next[i].ProcessedAt = &at
	if err := s.file.save(next); err != nil {
		return nil, fmt.Errorf("persist submissions: %w", err)
	}
	s.subs = next
	sub := next[i]
	return &sub, nil
}
