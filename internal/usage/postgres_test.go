package usage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/DukeRupert/postpilot/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewPostgresStore(repository.New(db)), mock
}

func TestPostgresStore_Consume(t *testing.T) {
	store, mock := newPostgresStore(t)
	userID := uuid.New()
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO usage_counters (.+) WHERE (.+)usage_counters\\.posts_generated < \\$3").
		WithArgs(userID, now, int32(50)).
		WillReturnRows(sqlmock.NewRows([]string{"posts_generated", "monthly_reset", "rolled_over"}).
			AddRow(7, now.AddDate(0, 0, -5), false))

	res, err := store.Consume(context.Background(), userID, 50, now)
	require.NoError(t, err)
	assert.True(t, res.Consumed)
	assert.Equal(t, int64(7), res.Used)
	assert.False(t, res.RolledOver)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RolloverArchivesClosingCycle(t *testing.T) {
	store, mock := newPostgresStore(t)
	userID := uuid.New()
	now := time.Date(2026, time.April, 1, 0, 1, 0, 0, time.UTC)

	// The archive insert must ride in the same statement as the upsert so
	// the first request of a month cannot overwrite an unexported cycle.
	mock.ExpectQuery("WITH prev AS \\( SELECT (.+) FROM usage_counters WHERE user_id = \\$1 FOR UPDATE \\), " +
		"archived AS \\( INSERT INTO usage_cycles (.+) ON CONFLICT \\(user_id, cycle_start\\) DO NOTHING \\) " +
		"INSERT INTO usage_counters").
		WithArgs(userID, now, int32(50)).
		WillReturnRows(sqlmock.NewRows([]string{"posts_generated", "monthly_reset", "rolled_over"}).
			AddRow(1, now, true))

	res, err := store.Consume(context.Background(), userID, 50, now)
	require.NoError(t, err)
	assert.True(t, res.Consumed)
	assert.Equal(t, int64(1), res.Used)
	assert.True(t, res.RolledOver)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RolledOverFollowsRolloverPredicate(t *testing.T) {
	store, mock := newPostgresStore(t)
	userID := uuid.New()
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

	// An increment landing on the same instant as an admin reset leaves
	// monthly_reset equal to now; the flag must still come out false.
	mock.ExpectQuery("RETURNING posts_generated, monthly_reset, COALESCE\\( \\(SELECT prev\\.monthly_reset IS NULL (.+) FROM prev\\), usage_counters\\.xmax = 0 \\)::bool AS rolled_over").
		WithArgs(userID, now, int32(50)).
		WillReturnRows(sqlmock.NewRows([]string{"posts_generated", "monthly_reset", "rolled_over"}).
			AddRow(1, now, false))

	res, err := store.Consume(context.Background(), userID, 50, now)
	require.NoError(t, err)
	assert.Equal(t, now, res.MonthlyReset)
	assert.False(t, res.RolledOver)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ConsumeAtQuota(t *testing.T) {
	store, mock := newPostgresStore(t)
	userID := uuid.New()
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO usage_counters").
		WithArgs(userID, now, int32(3)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM usage_counters WHERE user_id").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "posts_generated", "monthly_reset", "updated_at"}).
			AddRow(userID.String(), 3, now.AddDate(0, 0, -1), now))

	res, err := store.Consume(context.Background(), userID, 3, now)
	require.NoError(t, err)
	assert.False(t, res.Consumed)
	assert.Equal(t, int64(3), res.Used)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ConsumeUnlimitedSkipsCeiling(t *testing.T) {
	store, mock := newPostgresStore(t)
	userID := uuid.New()
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO usage_counters").
		WithArgs(userID, now).
		WillReturnRows(sqlmock.NewRows([]string{"posts_generated", "monthly_reset", "rolled_over"}).
			AddRow(1, now, true))

	res, err := store.Consume(context.Background(), userID, domain.Unlimited, now)
	require.NoError(t, err)
	assert.True(t, res.Consumed)
	assert.True(t, res.RolledOver)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ConsumeDatabaseError(t *testing.T) {
	store, mock := newPostgresStore(t)
	userID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO usage_counters").
		WillReturnError(errors.New("connection reset by peer"))

	_, err := store.Consume(context.Background(), userID, 3, now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "consume usage")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMissingCounter(t *testing.T) {
	store, mock := newPostgresStore(t)
	userID := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM usage_counters WHERE user_id").
		WithArgs(userID).
		WillReturnError(sql.ErrNoRows)

	rec, err := store.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, userID, rec.UserID)
	assert.Nil(t, rec.MonthlyReset)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Reset(t *testing.T) {
	store, mock := newPostgresStore(t)
	userID := uuid.New()
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO usage_cycles (.+) INSERT INTO usage_counters (.+) ON CONFLICT \\(user_id\\) DO UPDATE SET posts_generated = 0").
		WithArgs(userID, sql.NullTime{Time: now, Valid: true}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Reset(context.Background(), userID, now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Delete(t *testing.T) {
	store, mock := newPostgresStore(t)
	userID := uuid.New()

	mock.ExpectExec("DELETE FROM usage_counters WHERE user_id = \\$1").
		WithArgs(userID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Delete(context.Background(), userID))
	assert.NoError(t, mock.ExpectationsWereMet())
}
