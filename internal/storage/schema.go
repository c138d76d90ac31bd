package storage

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS instruments (
        id               BIGSERIAL PRIMARY KEY,
        name             TEXT NOT NULL,
        type             TEXT NOT NULL,
        gpib_address     TEXT NOT NULL,
        description      TEXT,
        auto_connect     BOOLEAN NOT NULL DEFAULT FALSE,
        measurement_type TEXT NOT NULL DEFAULT 'DC_VOLTAGE',
        range            TEXT NOT NULL DEFAULT 'AUTO',
        resolution       TEXT NOT NULL DEFAULT '6.5',
        created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
        updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE INDEX IF NOT EXISTS idx_instruments_name ON instruments (name)`,
	`CREATE TABLE IF NOT EXISTS measurements (
        id               UUID PRIMARY KEY,
        instrument_id    BIGINT NOT NULL REFERENCES instruments (id) ON DELETE CASCADE,
        value            DOUBLE PRECISION NOT NULL,
        unit             TEXT NOT NULL,
        taken_at         TIMESTAMPTZ NOT NULL,
        measurement_type TEXT NOT NULL,
        range            TEXT NOT NULL,
        resolution       TEXT NOT NULL,
        instrument_type  TEXT NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_measurements_instrument ON measurements (instrument_id, taken_at DESC)`,
	`CREATE TABLE IF NOT EXISTS event_logs (
        id            UUID PRIMARY KEY,
        created_at    TIMESTAMPTZ NOT NULL,
        instrument_id BIGINT,
        type          TEXT NOT NULL,
        level         TEXT NOT NULL,
        code          TEXT NOT NULL DEFAULT '',
        description   TEXT NOT NULL DEFAULT '',
        details       JSONB
    )`,
	`CREATE INDEX IF NOT EXISTS idx_event_logs_created ON event_logs (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS users (
        id            UUID PRIMARY KEY,
        created_at    TIMESTAMPTZ NOT NULL,
        updated_at    TIMESTAMPTZ NOT NULL,
        email         TEXT NOT NULL UNIQUE,
        username      TEXT NOT NULL,
        password_hash TEXT NOT NULL,
        is_admin      BOOLEAN NOT NULL DEFAULT FALSE,
        is_active     BOOLEAN NOT NULL DEFAULT TRUE,
        last_login_at TIMESTAMPTZ
    )`,
}

// Migrate creates the tables the server needs if they do not exist yet
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.getDB().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
