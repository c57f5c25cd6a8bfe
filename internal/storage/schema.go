package storage

import (
	"context"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS price_observations (
        id                 INTEGER PRIMARY KEY AUTOINCREMENT,
        symbol             TEXT NOT NULL,
        price_usd          DOUBLE PRECISION NOT NULL,
        percent_change_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
        observed_at        BIGINT NOT NULL,
        UNIQUE (symbol, observed_at)
    );`,
	`CREATE TABLE IF NOT EXISTS alerts (
        id                TEXT PRIMARY KEY,
        owner             TEXT NOT NULL,
        symbols           TEXT NOT NULL,
        alert_kind        TEXT NOT NULL,
        trigger_condition TEXT NOT NULL,
        target_value      DOUBLE PRECISION NOT NULL,
        active            BOOLEAN NOT NULL DEFAULT 1,
        created_at        BIGINT NOT NULL,
        last_triggered_at BIGINT,
        last_known_prices TEXT NOT NULL DEFAULT '{}'
    );`,
	`CREATE TABLE IF NOT EXISTS notifications (
        id         INTEGER PRIMARY KEY AUTOINCREMENT,
        owner      TEXT NOT NULL,
        alert_id   TEXT NOT NULL DEFAULT '',
        message    TEXT NOT NULL,
        prices     TEXT NOT NULL DEFAULT '{}',
        created_at BIGINT NOT NULL
    );`,
	`CREATE TABLE IF NOT EXISTS wallet_snapshots (
        id           INTEGER PRIMARY KEY AUTOINCREMENT,
        address      TEXT NOT NULL,
        block_number BIGINT NOT NULL,
        balance_wei  TEXT NOT NULL,
        balance_eth  TEXT NOT NULL,
        value_usd    TEXT,
        tokens       TEXT NOT NULL DEFAULT '[]',
        taken_at     BIGINT NOT NULL,
        UNIQUE (address, block_number)
    );`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS price_observations (
        id                 BIGSERIAL PRIMARY KEY,
        symbol             TEXT NOT NULL,
        price_usd          DOUBLE PRECISION NOT NULL,
        percent_change_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
        observed_at        BIGINT NOT NULL,
        UNIQUE (symbol, observed_at)
    );`,
	`CREATE TABLE IF NOT EXISTS alerts (
        id                TEXT PRIMARY KEY,
        owner             TEXT NOT NULL,
        symbols           TEXT NOT NULL,
        alert_kind        TEXT NOT NULL,
        trigger_condition TEXT NOT NULL,
        target_value      DOUBLE PRECISION NOT NULL,
        active            BOOLEAN NOT NULL DEFAULT TRUE,
        created_at        BIGINT NOT NULL,
        last_triggered_at BIGINT,
        last_known_prices TEXT NOT NULL DEFAULT '{}'
    );`,
	`CREATE TABLE IF NOT EXISTS notifications (
        id         BIGSERIAL PRIMARY KEY,
        owner      TEXT NOT NULL,
        alert_id   TEXT NOT NULL DEFAULT '',
        message    TEXT NOT NULL,
        prices     TEXT NOT NULL DEFAULT '{}',
        created_at BIGINT NOT NULL
    );`,
	`CREATE TABLE IF NOT EXISTS wallet_snapshots (
        id           BIGSERIAL PRIMARY KEY,
        address      TEXT NOT NULL,
        block_number BIGINT NOT NULL,
        balance_wei  TEXT NOT NULL,
        balance_eth  TEXT NOT NULL,
        value_usd    TEXT,
        tokens       TEXT NOT NULL DEFAULT '[]',
        taken_at     BIGINT NOT NULL,
        UNIQUE (address, block_number)
    );`,
}

var sharedIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_price_observations_symbol_time ON price_observations (symbol, observed_at);`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_owner ON alerts (owner, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_active ON alerts (active);`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_owner ON notifications (owner, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_wallet_snapshots_address ON wallet_snapshots (address, taken_at);`,
}

// Migrate creates tables and indexes when missing.
func (s *Store) Migrate(ctx context.Context) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	schema := sqliteSchema
	if s.postgres {
		schema = postgresSchema
	}
	for _, stmt := range append(append([]string{}, schema...), sharedIndexes...) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return wrap("migrate", err)
		}
	}
	return nil
}
