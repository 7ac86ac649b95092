package usage

import (
	"context"
	"sync"
	"time"

	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/google/uuid"
)

// MemoryStore keeps counters in process memory. It is meant for tests and
// single-instance development; counters are lost on restart.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[uuid.UUID]domain.UsageRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[uuid.UUID]domain.UsageRecord)}
}

func (s *MemoryStore) Backend() string { return BackendMemory }

func (s *MemoryStore) Consume(ctx context.Context, userID uuid.UUID, quota int, now time.Time) (domain.ConsumeResult, error) {
	if err := validateQuota(quota); err != nil {
		return domain.ConsumeResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.ConsumeResult{}, err
	}
	now = now.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.counters[userID]
	if !ok {
		rec = domain.UsageRecord{UserID: userID}
	}

	if domain.NeedsRollover(rec.MonthlyReset, now) {
		reset := now
		rec.PostsGenerated = 1
		rec.MonthlyReset = &reset
		s.counters[userID] = rec
		return domain.ConsumeResult{Consumed: true, Used: 1, MonthlyReset: reset, RolledOver: true}, nil
	}

	if !domain.IsUnlimited(quota) && rec.PostsGenerated >= int64(quota) {
		return domain.ConsumeResult{Used: rec.PostsGenerated, MonthlyReset: *rec.MonthlyReset}, nil
	}

	rec.PostsGenerated++
	s.counters[userID] = rec
	return domain.ConsumeResult{Consumed: true, Used: rec.PostsGenerated, MonthlyReset: *rec.MonthlyReset}, nil
}

func (s *MemoryStore) Get(ctx context.Context, userID uuid.UUID) (domain.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.counters[userID]
	if !ok {
		return domain.UsageRecord{UserID: userID}, nil
	}
	if rec.MonthlyReset != nil {
		reset := *rec.MonthlyReset
		rec.MonthlyReset = &reset
	}
	return rec, nil
}

func (s *MemoryStore) Reset(ctx context.Context, userID uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reset := now.UTC()
	s.counters[userID] = domain.UsageRecord{UserID: userID, MonthlyReset: &reset}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, userID)
	return nil
}

// Set overwrites a counter.
func (s *MemoryStore) Set(rec domain.UsageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[rec.UserID] = rec
}
