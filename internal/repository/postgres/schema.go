package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS vaults (
		id            TEXT PRIMARY KEY,
		owner         TEXT NOT NULL UNIQUE,
		authority     TEXT NOT NULL,
		policy_id     TEXT NOT NULL,
		balance       NUMERIC(20,0) NOT NULL DEFAULT 0,
		daily_spent   NUMERIC(20,0) NOT NULL DEFAULT 0,
		last_reset_at TIMESTAMPTZ NOT NULL,
		pending_count SMALLINT NOT NULL DEFAULT 0,
		action_nonce  NUMERIC(20,0) NOT NULL DEFAULT 0,
		is_active     BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS policies (
		id                   TEXT PRIMARY KEY,
		vault_id             TEXT NOT NULL UNIQUE REFERENCES vaults(id),
		daily_limit          NUMERIC(20,0) NOT NULL,
		large_tx_threshold   NUMERIC(20,0) NOT NULL,
		allowed_targets      JSONB NOT NULL,
		large_tx_cooldown_ms BIGINT NOT NULL DEFAULT 0,
		is_active            BOOLEAN NOT NULL DEFAULT TRUE,
		created_at           TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pending_actions (
		id             TEXT PRIMARY KEY,
		vault_id       TEXT NOT NULL REFERENCES vaults(id),
		requester      TEXT NOT NULL,
		kind           TEXT NOT NULL,
		amount         NUMERIC(20,0) NOT NULL,
		target         TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		payload        JSONB,
		status         TEXT NOT NULL,
		requested_at   TIMESTAMPTZ NOT NULL,
		expires_at     TIMESTAMPTZ NOT NULL,
		approver       TEXT,
		processed_at   TIMESTAMPTZ,
		failure_reason TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS pending_actions_vault_status_idx ON pending_actions (vault_id, status, requested_at)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id          UUID PRIMARY KEY,
		trace_id    TEXT NOT NULL DEFAULT '',
		vault_id    TEXT NOT NULL,
		action_id   TEXT NOT NULL DEFAULT '',
		actor       TEXT NOT NULL DEFAULT '',
		operation   TEXT NOT NULL,
		kind        TEXT NOT NULL DEFAULT '',
		amount      NUMERIC(20,0) NOT NULL DEFAULT 0,
		target      TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		duration_ms BIGINT NOT NULL DEFAULT 0,
		timestamp   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS audit_logs_vault_ts_idx ON audit_logs (vault_id, timestamp DESC)`,
}

// Migrate идемпотентно создает схему
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migration step %d: %w", i, err)
		}
	}
	return nil
}
