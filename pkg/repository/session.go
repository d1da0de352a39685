package repository

import (
	"context"
	"database/sql"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type SessionPostgres struct {
	db *sqlx.DB
}

func NewSessionPostgres(db *sqlx.DB) *SessionPostgres {
	return &SessionPostgres{db: db}
}

func (r *SessionPostgres) GetFlag(ctx context.Context, key string) (string, bool, error) {
	var value string
	query := `SELECT value FROM ` + sessionFlagsTable + ` WHERE key = $1`
	err := r.db.GetContext(ctx, &value, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "get flag %s", key)
	}
	return value, true, nil
}

func (r *SessionPostgres) SetFlag(ctx context.Context, key, value string) error {
	query := `
        INSERT INTO ` + sessionFlagsTable + ` (key, value)
        VALUES ($1, $2)
        ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
    `
	_, err := r.db.ExecContext(ctx, query, key, value)
	return errors.Wrapf(err, "set flag %s", key)
}

func (r *SessionPostgres) DeleteFlag(ctx context.Context, key string) error {
	query := `DELETE FROM ` + sessionFlagsTable + ` WHERE key = $1`
	_, err := r.db.ExecContext(ctx, query, key)
	return errors.Wrapf(err, "delete flag %s", key)
}

// MemorySession keeps the flags in process memory. Used when no database is
// configured.
type MemorySession struct {
	mu    sync.Mutex
	flags map[string]string
}

func NewMemorySession() *MemorySession {
	return &MemorySession{flags: map[string]string{}}
}

func (m *MemorySession) GetFlag(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.flags[key]
	return v, ok, nil
}

func (m *MemorySession) SetFlag(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.flags[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MemorySession) DeleteFlag(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.flags, key)
	m.mu.Unlock()
	return nil
}
