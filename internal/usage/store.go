// Package usage persists per-user monthly generation counters.
//
// Every backend implements the same contract: Consume rolls a stale counter
// into the current UTC month and increments it in one atomic step, refusing
// the increment once the counter has reached the quota.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/DukeRupert/postpilot/internal/repository"
	"github.com/google/uuid"
)

// Backend names accepted by New.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Store is a usage counter backend.
type Store interface {
	// Consume performs the atomic rollover + check + increment for one unit.
	// quota must be positive or domain.Unlimited; zero quotas are rejected by
	// the caller before reaching the store.
	Consume(ctx context.Context, userID uuid.UUID, quota int, now time.Time) (domain.ConsumeResult, error)

	// Get returns the stored record. A user with no counter yet gets a zero
	// record and no error.
	Get(ctx context.Context, userID uuid.UUID) (domain.UsageRecord, error)

	// Reset zeroes the counter and starts a new cycle at now.
	Reset(ctx context.Context, userID uuid.UUID, now time.Time) error

	// Delete removes the counter of a deleted account. Deleting a missing
	// counter is not an error.
	Delete(ctx context.Context, userID uuid.UUID) error

	// Backend names the implementation for logs and metrics.
	Backend() string
}

// Options selects and configures a backend for New.
type Options struct {
	Backend  string
	Queries  *repository.Queries // postgres
	RedisURL string              // redis
}

// New opens the configured backend. The returned close function releases
// any connection the store owns and is never nil.
func New(ctx context.Context, opts Options) (Store, func() error, error) {
	noop := func() error { return nil }

	switch opts.Backend {
	case BackendPostgres, "":
		if opts.Queries == nil {
			return nil, noop, fmt.Errorf("postgres usage store requires queries")
		}
		return NewPostgresStore(opts.Queries), noop, nil
	case BackendRedis:
		client, err := NewRedisClient(ctx, opts.RedisURL)
		if err != nil {
			return nil, noop, err
		}
		return NewRedisStore(client), client.Close, nil
	case BackendMemory:
		return NewMemoryStore(), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown usage store %q", opts.Backend)
	}
}

// Period encodes the UTC (year, month) of t as YYYYMM.
func Period(t time.Time) int {
	y, m, _ := t.UTC().Date()
	return y*100 + int(m)
}

func validateQuota(quota int) error {
	if quota == 0 || quota < domain.Unlimited {
		return fmt.Errorf("invalid quota %d", quota)
	}
	return nil
}
