package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS credentials (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role VARCHAR(100) NOT NULL,
		email TEXT,
		refresh_token_hash TEXT,
		refresh_expires_at TIMESTAMPTZ,
		refresh_revoked BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`ALTER TABLE credentials ADD COLUMN IF NOT EXISTS refresh_token_hash TEXT`,
	`ALTER TABLE credentials ADD COLUMN IF NOT EXISTS refresh_expires_at TIMESTAMPTZ`,
	`ALTER TABLE credentials ADD COLUMN IF NOT EXISTS refresh_revoked BOOLEAN NOT NULL DEFAULT FALSE`,
	`CREATE UNIQUE INDEX IF NOT EXISTS credentials_refresh_token_hash ON credentials (refresh_token_hash)`,
	// usernames are unique regardless of case
	`CREATE UNIQUE INDEX IF NOT EXISTS credentials_username_lower ON credentials (LOWER(username))`,
	`CREATE TABLE IF NOT EXISTS login_attempts (
		id BIGSERIAL PRIMARY KEY,
		identifier TEXT NOT NULL,
		kind VARCHAR(20) NOT NULL,
		failure_count INTEGER NOT NULL DEFAULT 0 CHECK (failure_count >= 0),
		first_failure_at TIMESTAMPTZ,
		last_failure_at TIMESTAMPTZ,
		locked BOOLEAN NOT NULL DEFAULT FALSE,
		lock_expires_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (identifier, kind),
		CHECK (NOT locked OR lock_expires_at IS NOT NULL)
	)`,
	`ALTER TABLE login_attempts ALTER COLUMN identifier TYPE TEXT`,
	`CREATE TABLE IF NOT EXISTS security_pins (
		id BIGSERIAL PRIMARY KEY,
		value VARCHAR(4) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS security_pins_single_active ON security_pins (is_active) WHERE is_active`,
	`CREATE TABLE IF NOT EXISTS password_reset_codes (
		id BIGSERIAL PRIMARY KEY,
		principal_id BIGINT NOT NULL REFERENCES credentials(id) ON DELETE CASCADE,
		code VARCHAR(6) NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`ALTER TABLE password_reset_codes ADD COLUMN IF NOT EXISTS attempts INTEGER NOT NULL DEFAULT 0`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id UUID PRIMARY KEY,
		action VARCHAR(50) NOT NULL,
		actor TEXT NOT NULL DEFAULT '',
		identifier TEXT NOT NULL DEFAULT '',
		kind VARCHAR(20) NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT '',
		client_ip TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS audit_log_created_at_idx ON audit_log (created_at DESC)`,
}

// Migrate creates the tables this service owns. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
