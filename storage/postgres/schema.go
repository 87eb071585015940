package postgres

import (
	"context"
	"fmt"
)

// schema is applied by Migrate. Statements are idempotent so Migrate can
// run on every startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS oauth_clients (
		client_id     TEXT PRIMARY KEY,
		client_secret TEXT NOT NULL DEFAULT '',
		client_type   TEXT NOT NULL,
		grant_types   TEXT[] NOT NULL DEFAULT '{}',
		redirect_uris TEXT[] NOT NULL DEFAULT '{}',
		disabled      BOOLEAN NOT NULL DEFAULT FALSE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS oauth_users (
		id         TEXT PRIMARY KEY,
		username   TEXT NOT NULL UNIQUE,
		last_login TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS oauth_grants (
		code         TEXT PRIMARY KEY,
		client_id    TEXT NOT NULL,
		user_id      TEXT NOT NULL,
		scope        TEXT NOT NULL DEFAULT '',
		redirect_uri TEXT NOT NULL DEFAULT '',
		expires_at   TIMESTAMPTZ NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS oauth_access_tokens (
		id         TEXT PRIMARY KEY,
		token      TEXT NOT NULL UNIQUE,
		user_id    TEXT NOT NULL DEFAULT '',
		client_id  TEXT NOT NULL DEFAULT '',
		scope      TEXT NOT NULL DEFAULT '',
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS oauth_refresh_tokens (
		id              TEXT PRIMARY KEY,
		token           TEXT NOT NULL UNIQUE,
		user_id         TEXT NOT NULL DEFAULT '',
		client_id       TEXT NOT NULL DEFAULT '',
		access_token_id TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS oauth_id_tokens (
		id         TEXT PRIMARY KEY,
		token      TEXT NOT NULL UNIQUE,
		user_id    TEXT NOT NULL DEFAULT '',
		client_id  TEXT NOT NULL DEFAULT '',
		scope      TEXT NOT NULL DEFAULT '',
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS oauth_grants_expires_at_idx ON oauth_grants (expires_at)`,
	`CREATE INDEX IF NOT EXISTS oauth_access_tokens_expires_at_idx ON oauth_access_tokens (expires_at)`,
}

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
