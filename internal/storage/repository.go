package storage

import (
	"context"
	"time"

	"crypto-alerts/internal/alert"
	"crypto-alerts/internal/market"
)

const (
	insertObservationSQL = `INSERT INTO price_observations (
        symbol,
        price_usd,
        percent_change_24h,
        observed_at
    ) VALUES (?,?,?,?)
    ON CONFLICT (symbol, observed_at) DO NOTHING;`

	latestObservationsSQL = `SELECT
        p.symbol,
        p.price_usd,
        p.percent_change_24h,
        p.observed_at
    FROM price_observations p
    JOIN (
        SELECT symbol, MAX(observed_at) AS observed_at
        FROM price_observations
        WHERE symbol IN (%s)
        GROUP BY symbol
    ) latest ON latest.symbol = p.symbol AND latest.observed_at = p.observed_at;`

	historySQL = `SELECT
        symbol,
        price_usd,
        percent_change_24h,
        observed_at
    FROM price_observations
    WHERE symbol = ?
      AND observed_at >= ?
    ORDER BY observed_at;`

	countObservationsSQL = `SELECT COUNT(*) FROM price_observations;`

	insertAlertSQL = `INSERT INTO alerts (
        id,
        owner,
        symbols,
        alert_kind,
        trigger_condition,
        target_value,
        active,
        created_at,
        last_triggered_at,
        last_known_prices
    ) VALUES (?,?,?,?,?,?,?,?,?,?);`

	selectAlertColumns = `SELECT
        id,
        owner,
        symbols,
        alert_kind,
        trigger_condition,
        target_value,
        active,
        created_at,
        last_triggered_at,
        last_known_prices
    FROM alerts`

	getAlertSQL          = selectAlertColumns + ` WHERE id = ?;`
	listOwnerAlertsSQL   = selectAlertColumns + ` WHERE owner = ? ORDER BY created_at, id;`
	listOwnerActiveSQL   = selectAlertColumns + ` WHERE owner = ? AND active = ? ORDER BY created_at, id;`
	listActiveAlertsSQL  = selectAlertColumns + ` WHERE active = ? ORDER BY owner, created_at, id;`
	deleteAlertSQL       = `DELETE FROM alerts WHERE id = ?;`
	updateAlertPrefixSQL = `UPDATE alerts SET `

	insertNotificationSQL = `INSERT INTO notifications (
        owner,
        alert_id,
        message,
        prices,
        created_at
    ) VALUES (?,?,?,?,?);`

	listNotificationsSQL = `SELECT
        id,
        owner,
        alert_id,
        message,
        prices,
        created_at
    FROM notifications
    WHERE owner = ?
    ORDER BY created_at DESC, id DESC
    LIMIT ?;`

	insertWalletSnapshotSQL = `INSERT INTO wallet_snapshots (
        address,
        block_number,
        balance_wei,
        balance_eth,
        value_usd,
        tokens,
        taken_at
    ) VALUES (?,?,?,?,?,?,?)
    ON CONFLICT (address, block_number) DO NOTHING;`

	listWalletSnapshotsSQL = `SELECT
        id,
        address,
        block_number,
        balance_wei,
        balance_eth,
        value_usd,
        tokens,
        taken_at
    FROM wallet_snapshots
    WHERE address = ?
    ORDER BY block_number DESC
    LIMIT ?;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PriceStore is the append-only observation log.
type PriceStore interface {
	Record(ctx context.Context, observations []market.Observation) error
	Latest(ctx context.Context, symbols []string) (map[string]market.Observation, error)
	History(ctx context.Context, symbol string, window time.Duration) ([]market.Observation, error)
}

// NotificationStore keeps the delivered notification log.
type NotificationStore interface {
	InsertNotification(ctx context.Context, rec NotificationRecord) (NotificationRecord, error)
	ListNotifications(ctx context.Context, owner string, limit int) ([]NotificationRecord, error)
}

// WalletStore keeps on-chain balance snapshots.
type WalletStore interface {
	InsertWalletSnapshot(ctx context.Context, snap WalletSnapshot) (bool, error)
	ListWalletSnapshots(ctx context.Context, address string, limit int) ([]WalletSnapshot, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

var (
	_ PriceStore        = (*Store)(nil)
	_ NotificationStore = (*Store)(nil)
	_ WalletStore       = (*Store)(nil)
	_ AdvisoryLocker    = (*Store)(nil)
	_ alert.Store       = (*Store)(nil)
	_ alert.PriceReader = (*Store)(nil)
)
