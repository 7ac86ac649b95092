package service

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/DukeRupert/postpilot/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var userColumns = []string{
	"id", "email", "name", "is_admin", "is_banned", "ban_reason",
	"plan", "subscription_status", "granted_by_admin", "current_period_end",
	"stripe_customer_id", "stripe_subscription_id", "created_at", "updated_at",
}

type userRow struct {
	id             uuid.UUID
	plan           string
	status         string
	grantedByAdmin bool
	banned         bool
	customerID     string
}

func (u userRow) rows() *sqlmock.Rows {
	var customer interface{}
	if u.customerID != "" {
		customer = u.customerID
	}
	now := time.Now()
	return sqlmock.NewRows(userColumns).AddRow(
		u.id.String(), "owner@example.com", "Owner", false, u.banned, "",
		u.plan, u.status, u.grantedByAdmin, nil,
		customer, nil, now, now,
	)
}

func newMockQueries(t *testing.T) (*sql.DB, *repository.Queries, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db, repository.New(db), mock
}
