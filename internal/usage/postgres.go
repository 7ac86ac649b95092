package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/DukeRupert/postpilot/internal/repository"
	"github.com/google/uuid"
)

// PostgresStore keeps counters in the usage_counters table. The rollover and
// quota check happen inside a single INSERT ... ON CONFLICT DO UPDATE so
// concurrent requests for the same user serialize on the row lock.
type PostgresStore struct {
	queries *repository.Queries
}

// NewPostgresStore creates a store backed by the given queries.
func NewPostgresStore(queries *repository.Queries) *PostgresStore {
	return &PostgresStore{queries: queries}
}

func (s *PostgresStore) Backend() string { return BackendPostgres }

func (s *PostgresStore) Consume(ctx context.Context, userID uuid.UUID, quota int, now time.Time) (domain.ConsumeResult, error) {
	if err := validateQuota(quota); err != nil {
		return domain.ConsumeResult{}, err
	}
	now = now.UTC()

	if domain.IsUnlimited(quota) {
		row, err := s.queries.RecordUsage(ctx, repository.RecordUsageParams{
			UserID: userID,
			Now:    now,
		})
		if err != nil {
			return domain.ConsumeResult{}, fmt.Errorf("record usage: %w", err)
		}
		return domain.ConsumeResult{
			Consumed:     true,
			Used:         int64(row.PostsGenerated),
			MonthlyReset: row.MonthlyReset.Time,
			RolledOver:   row.RolledOver,
		}, nil
	}

	row, err := s.queries.ConsumeUsage(ctx, repository.ConsumeUsageParams{
		UserID: userID,
		Now:    now,
		Quota:  int32(quota),
	})
	if errors.Is(err, sql.ErrNoRows) {
		// The conditional update matched nothing: the counter is at quota.
		counter, err := s.queries.GetUsageCounter(ctx, userID)
		if err != nil {
			return domain.ConsumeResult{}, fmt.Errorf("read usage counter: %w", err)
		}
		return domain.ConsumeResult{
			Consumed:     false,
			Used:         int64(counter.PostsGenerated),
			MonthlyReset: counter.MonthlyReset.Time,
		}, nil
	}
	if err != nil {
		return domain.ConsumeResult{}, fmt.Errorf("consume usage: %w", err)
	}

	return domain.ConsumeResult{
		Consumed:     true,
		Used:         int64(row.PostsGenerated),
		MonthlyReset: row.MonthlyReset.Time,
		RolledOver:   row.RolledOver,
	}, nil
}

func (s *PostgresStore) Get(ctx context.Context, userID uuid.UUID) (domain.UsageRecord, error) {
	counter, err := s.queries.GetUsageCounter(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UsageRecord{UserID: userID}, nil
	}
	if err != nil {
		return domain.UsageRecord{}, fmt.Errorf("get usage counter: %w", err)
	}
	return domain.UsageRecord{
		UserID:         counter.UserID,
		PostsGenerated: int64(counter.PostsGenerated),
		MonthlyReset:   domain.NullTimeValue(counter.MonthlyReset),
	}, nil
}

func (s *PostgresStore) Reset(ctx context.Context, userID uuid.UUID, now time.Time) error {
	err := s.queries.ResetUsageCounter(ctx, repository.ResetUsageCounterParams{
		UserID:       userID,
		MonthlyReset: sql.NullTime{Time: now.UTC(), Valid: true},
	})
	if err != nil {
		return fmt.Errorf("reset usage counter: %w", err)
	}
	return nil
}

// Delete drops the live counter. Archived cycles stay until the users row is
// deleted, which cascades to both tables.
func (s *PostgresStore) Delete(ctx context.Context, userID uuid.UUID) error {
	if err := s.queries.DeleteUsageCounter(ctx, userID); err != nil {
		return fmt.Errorf("delete usage counter: %w", err)
	}
	return nil
}
