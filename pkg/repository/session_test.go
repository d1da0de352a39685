package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*SessionPostgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSessionPostgres(sqlx.NewDb(db, "postgres")), mock
}

func TestSessionPostgres_GetFlag(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM session_flags WHERE key = $1`)).
		WithArgs("isLoggedIn").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("true"))

	v, ok, err := repo.GetFlag(context.Background(), "isLoggedIn")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionPostgres_GetFlagMissing(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM session_flags`)).
		WithArgs("walletAddress").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	_, ok, err := repo.GetFlag(context.Background(), "walletAddress")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionPostgres_GetFlagError(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM session_flags`)).
		WillReturnError(errors.New("connection reset"))

	_, _, err := repo.GetFlag(context.Background(), "isLoggedIn")
	assert.ErrorContains(t, err, "connection reset")
}

func TestSessionPostgres_SetFlag(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO session_flags (key, value)`)).
		WithArgs("walletAddress", "0xabc").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetFlag(context.Background(), "walletAddress", "0xabc"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionPostgres_DeleteFlag(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM session_flags WHERE key = $1`)).
		WithArgs("walletAddress").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.DeleteFlag(context.Background(), "walletAddress"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemorySession(t *testing.T) {
	m := NewMemorySession()
	ctx := context.Background()

	_, ok, _ := m.GetFlag(ctx, "k")
	assert.False(t, ok)

	require.NoError(t, m.SetFlag(ctx, "k", "v"))
	v, ok, _ := m.GetFlag(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, m.DeleteFlag(ctx, "k"))
	_, ok, _ = m.GetFlag(ctx, "k")
	assert.False(t, ok)
}
