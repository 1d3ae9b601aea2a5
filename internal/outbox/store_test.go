package outbox

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/spec-kit/case-service/internal/domain"
)

// memStore mirrors the Postgres claim rules in memory.
type memStore struct {
	mu      sync.Mutex
	seq     int
	entries map[string]*domain.OutboxEntry
}

func newMemStore() *memStore {
	return &memStore{entries: map[string]*domain.OutboxEntry{}}
}

func (s *memStore) Insert(_ context.Context, entry *domain.OutboxEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	entry.ID = "entry-" + strconv.Itoa(s.seq)
	cp := *entry
	s.entries[entry.ID] = &cp
	return nil
}

func (s *memStore) Claim(_ context.Context, now, leaseUntil time.Time, limit int) ([]domain.OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*domain.OutboxEntry
	for _, e := range s.entries {
		if e.Status == domain.OutboxStatusCompleted || e.RetryCount >= e.MaxRetries {
			continue
		}
		if e.NextAttemptAt.After(now) {
			continue
		}
		due = append(due, e)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]domain.OutboxEntry, 0, len(due))
	for _, e := range due {
		e.Status = domain.OutboxStatusProcessing
		e.NextAttemptAt = leaseUntil
		out = append(out, *e)
	}
	return out, nil
}

func (s *memStore) MarkCompleted(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.Status != domain.OutboxStatusProcessing {
		return ErrNotClaimed
	}
	e.Status = domain.OutboxStatusCompleted
	e.ProcessedAt = &at
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, id, lastError string, nextAttemptAt time.Time) (*domain.OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.Status != domain.OutboxStatusProcessing {
		return nil, ErrNotClaimed
	}
	e.Status = domain.OutboxStatusFailed
	e.RetryCount++
	e.LastError = &lastError
	e.NextAttemptAt = nextAttemptAt
	cp := *e
	return &cp, nil
}

func (s *memStore) ListExhausted(_ context.Context, limit, offset int) ([]domain.OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.OutboxEntry
	for _, e := range s.entries {
		if e.Status == domain.OutboxStatusFailed && e.Exhausted() {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *memStore) Requeue(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.Status != domain.OutboxStatusFailed || !e.Exhausted() {
		return ErrNotClaimed
	}
	e.Status = domain.OutboxStatusPending
	e.RetryCount = 0
	e.NextAttemptAt = at
	return nil
}

func (s *memStore) get(id string) domain.OutboxEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.entries[id]
}
