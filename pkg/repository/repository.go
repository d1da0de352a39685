package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// SessionStore persists the login flags across restarts.
type SessionStore interface {
	GetFlag(ctx context.Context, key string) (string, bool, error)
	SetFlag(ctx context.Context, key, value string) error
	DeleteFlag(ctx context.Context, key string) error
}

type Repository struct {
	SessionStore
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{
		SessionStore: NewSessionPostgres(db),
	}
}
