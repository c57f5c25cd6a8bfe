package storage

import (
	"context"
	"fmt"
	"time"

	"crypto-alerts/internal/market"
)

// Record inserts the batch in one transaction. A duplicate (symbol,
// observed_at) pair is ignored; any other failure rolls the batch back.
func (s *Store) Record(ctx context.Context, observations []market.Observation) (err error) {
	if len(observations) == 0 {
		return nil
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("record: begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, s.rebind(insertObservationSQL))
	if err != nil {
		return wrap("record: prepare", err)
	}
	defer stmt.Close()

	for _, obs := range observations {
		symbol := market.NormalizeSymbol(obs.Symbol)
		if symbol == "" {
			return wrap("record", fmt.Errorf("observation without symbol"))
		}
		if _, err = stmt.ExecContext(ctx, symbol, obs.PriceUSD, obs.PercentChange24h, unixNanos(obs.ObservedAt)); err != nil {
			return wrap("record: insert "+symbol, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return wrap("record: commit", err)
	}
	return nil
}

// Latest returns the newest observation per symbol. Unknown symbols are omitted.
func (s *Store) Latest(ctx context.Context, symbols []string) (map[string]market.Observation, error) {
	symbols = market.NormalizeSymbols(symbols)
	out := make(map[string]market.Observation, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	args := make([]any, len(symbols))
	for i, symbol := range symbols {
		args[i] = symbol
	}
	query := s.rebind(fmt.Sprintf(latestObservationsSQL, placeholders(len(symbols))))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("latest", err)
	}
	defer rows.Close()

	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, wrap("latest: scan", err)
		}
		out[obs.Symbol] = obs
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("latest", err)
	}
	return out, nil
}

// History returns observations for symbol within window, oldest first.
func (s *Store) History(ctx context.Context, symbol string, window time.Duration) ([]market.Observation, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	since := s.now().Add(-window)

	rows, err := db.QueryContext(ctx, s.rebind(historySQL), market.NormalizeSymbol(symbol), unixNanos(since))
	if err != nil {
		return nil, wrap("history", err)
	}
	defer rows.Close()

	observations := make([]market.Observation, 0)
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, wrap("history: scan", err)
		}
		observations = append(observations, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("history", err)
	}
	return observations, nil
}

// CountObservations counts stored observations.
func (s *Store) CountObservations(ctx context.Context) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := db.QueryRowContext(ctx, countObservationsSQL).Scan(&count); err != nil {
		return 0, wrap("count observations", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(row rowScanner) (market.Observation, error) {
	var (
		obs        market.Observation
		observedAt int64
	)
	if err := row.Scan(&obs.Symbol, &obs.PriceUSD, &obs.PercentChange24h, &observedAt); err != nil {
		return market.Observation{}, err
	}
	obs.ObservedAt = fromUnixNanos(observedAt)
	return obs, nil
}
