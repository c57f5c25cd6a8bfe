package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// InsertWalletSnapshot stores a snapshot. It reports false when the
// (address, block) pair was already recorded.
func (s *Store) InsertWalletSnapshot(ctx context.Context, snap WalletSnapshot) (bool, error) {
	db, err := s.getDB()
	if err != nil {
		return false, err
	}
	if snap.TakenAt.IsZero() {
		snap.TakenAt = s.now()
	}
	tokens := snap.Tokens
	if tokens == nil {
		tokens = []TokenBalance{}
	}
	rawTokens, err := json.Marshal(tokens)
	if err != nil {
		return false, wrap("insert wallet snapshot: encode tokens", err)
	}

	var valueUSD any
	if snap.ValueUSD != nil {
		valueUSD = snap.ValueUSD.String()
	}

	res, err := db.ExecContext(ctx, s.rebind(insertWalletSnapshotSQL),
		strings.ToLower(snap.Address),
		int64(snap.BlockNumber),
		snap.BalanceWei,
		snap.BalanceETH.String(),
		valueUSD,
		string(rawTokens),
		unixNanos(snap.TakenAt),
	)
	if err != nil {
		return false, wrap("insert wallet snapshot", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, wrap("insert wallet snapshot: rows affected", err)
	}
	return affected > 0, nil
}

// ListWalletSnapshots returns the newest snapshots of address first.
func (s *Store) ListWalletSnapshots(ctx context.Context, address string, limit int) ([]WalletSnapshot, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := db.QueryContext(ctx, s.rebind(listWalletSnapshotsSQL), strings.ToLower(address), limit)
	if err != nil {
		return nil, wrap("list wallet snapshots", err)
	}
	defer rows.Close()

	snaps := make([]WalletSnapshot, 0, limit)
	for rows.Next() {
		var (
			snap       WalletSnapshot
			block      int64
			balanceETH string
			valueUSD   sql.NullString
			tokens     string
			takenAt    int64
		)
		if err := rows.Scan(&snap.ID, &snap.Address, &block, &snap.BalanceWei, &balanceETH, &valueUSD, &tokens, &takenAt); err != nil {
			return nil, wrap("list wallet snapshots: scan", err)
		}
		snap.BlockNumber = uint64(block)
		if snap.BalanceETH, err = decimal.NewFromString(balanceETH); err != nil {
			return nil, wrap("list wallet snapshots", fmt.Errorf("parse balance_eth: %w", err))
		}
		if valueUSD.Valid {
			v, err := decimal.NewFromString(valueUSD.String)
			if err != nil {
				return nil, wrap("list wallet snapshots", fmt.Errorf("parse value_usd: %w", err))
			}
			snap.ValueUSD = &v
		}
		if err := json.Unmarshal([]byte(tokens), &snap.Tokens); err != nil {
			return nil, wrap("list wallet snapshots: decode tokens", err)
		}
		snap.TakenAt = fromUnixNanos(takenAt)
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list wallet snapshots", err)
	}
	return snaps, nil
}
