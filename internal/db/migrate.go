package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied in order inside one transaction; every statement is
// idempotent so Migrate runs on every boot.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY,
		email         TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		name          TEXT NOT NULL,
		role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'admin')),
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	// emails are normalized before every write, so a plain unique index is case-insensitive
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_uniq ON users (email)`,
	`CREATE TABLE IF NOT EXISTS expense_types (
		id          UUID PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS expense_types_name_uniq ON expense_types (LOWER(name))`,
	`CREATE TABLE IF NOT EXISTS expenses (
		id         UUID PRIMARY KEY,
		amount     NUMERIC(12, 2) NOT NULL CHECK (amount > 0),
		type_id    UUID NOT NULL REFERENCES expense_types (id) ON DELETE RESTRICT,
		reason     TEXT NOT NULL,
		date       TIMESTAMPTZ NOT NULL,
		user_id    UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS expenses_user_date_idx ON expenses (user_id, date DESC, id)`,
	`CREATE INDEX IF NOT EXISTS expenses_type_idx ON expenses (type_id)`,
}

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for i, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("migration %d: %w", i, err)
			}
		}
		return nil
	})
}
