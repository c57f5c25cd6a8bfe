package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"crypto-alerts/internal/alert"
)

// InsertAlert persists a new alert definition.
func (s *Store) InsertAlert(ctx context.Context, def alert.Definition) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	symbols, err := json.Marshal(def.Symbols)
	if err != nil {
		return wrap("insert alert: encode symbols", err)
	}
	prices, err := encodePrices(def.LastKnownPrices)
	if err != nil {
		return wrap("insert alert: encode prices", err)
	}

	var lastTriggered any
	if def.LastTriggeredAt != nil {
		lastTriggered = unixNanos(*def.LastTriggeredAt)
	}

	_, err = db.ExecContext(ctx, s.rebind(insertAlertSQL),
		def.ID,
		def.Owner,
		string(symbols),
		string(def.Kind),
		string(def.Condition),
		def.Value,
		def.Active,
		unixNanos(def.CreatedAt),
		lastTriggered,
		prices,
	)
	return wrap("insert alert", err)
}

// GetAlert loads one alert; unknown ids yield *alert.NotFoundError.
func (s *Store) GetAlert(ctx context.Context, id string) (alert.Definition, error) {
	db, err := s.getDB()
	if err != nil {
		return alert.Definition{}, err
	}
	def, err := scanAlert(db.QueryRowContext(ctx, s.rebind(getAlertSQL), id))
	if errors.Is(err, sql.ErrNoRows) {
		return alert.Definition{}, &alert.NotFoundError{ID: id}
	}
	if err != nil {
		return alert.Definition{}, wrap("get alert", err)
	}
	return def, nil
}

// ListAlerts lists an owner's alerts, oldest first.
func (s *Store) ListAlerts(ctx context.Context, owner string, filter alert.ListFilter) ([]alert.Definition, error) {
	if filter.Active != nil {
		return s.queryAlerts(ctx, "list alerts", listOwnerActiveSQL, owner, *filter.Active)
	}
	return s.queryAlerts(ctx, "list alerts", listOwnerAlertsSQL, owner)
}

// ListActiveAlerts lists active alerts across owners, grouped by owner.
func (s *Store) ListActiveAlerts(ctx context.Context) ([]alert.Definition, error) {
	return s.queryAlerts(ctx, "list active alerts", listActiveAlertsSQL, true)
}

// DeleteAlert removes an alert. Deleting an unknown id is not an error.
func (s *Store) DeleteAlert(ctx context.Context, id string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, s.rebind(deleteAlertSQL), id)
	return wrap("delete alert", err)
}

// UpdateAlert writes only the columns named by patch in a single statement.
func (s *Store) UpdateAlert(ctx context.Context, id string, patch alert.Patch) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	var (
		sets []string
		args []any
	)
	if patch.Value != nil {
		sets = append(sets, "target_value = ?")
		args = append(args, *patch.Value)
	}
	if patch.Active != nil {
		sets = append(sets, "active = ?")
		args = append(args, *patch.Active)
	}
	if patch.LastKnownPrices != nil {
		prices, err := encodePrices(patch.LastKnownPrices)
		if err != nil {
			return wrap("update alert: encode prices", err)
		}
		sets = append(sets, "last_known_prices = ?")
		args = append(args, prices)
	}
	if patch.LastTriggeredAt != nil {
		sets = append(sets, "last_triggered_at = ?")
		args = append(args, unixNanos(*patch.LastTriggeredAt))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := updateAlertPrefixSQL + strings.Join(sets, ", ") + " WHERE id = ?;"
	res, err := db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return wrap("update alert", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return wrap("update alert: rows affected", err)
	}
	if affected == 0 {
		return &alert.NotFoundError{ID: id}
	}
	return nil
}

func (s *Store) queryAlerts(ctx context.Context, op, query string, args ...any) ([]alert.Definition, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	defs := make([]alert.Definition, 0)
	for rows.Next() {
		def, err := scanAlert(rows)
		if err != nil {
			return nil, wrap(op+": scan", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return defs, nil
}

func scanAlert(row rowScanner) (alert.Definition, error) {
	var (
		def           alert.Definition
		symbols       string
		kind          string
		condition     string
		createdAt     int64
		lastTriggered sql.NullInt64
		prices        string
	)
	if err := row.Scan(
		&def.ID,
		&def.Owner,
		&symbols,
		&kind,
		&condition,
		&def.Value,
		&def.Active,
		&createdAt,
		&lastTriggered,
		&prices,
	); err != nil {
		return alert.Definition{}, err
	}

	if err := json.Unmarshal([]byte(symbols), &def.Symbols); err != nil {
		return alert.Definition{}, fmt.Errorf("decode symbols of alert %s: %w", def.ID, err)
	}
	def.LastKnownPrices = make(map[string]float64)
	if prices != "" {
		if err := json.Unmarshal([]byte(prices), &def.LastKnownPrices); err != nil {
			return alert.Definition{}, fmt.Errorf("decode prices of alert %s: %w", def.ID, err)
		}
	}
	def.Kind = alert.Kind(kind)
	def.Condition = alert.Condition(condition)
	def.CreatedAt = fromUnixNanos(createdAt)
	if lastTriggered.Valid {
		at := fromUnixNanos(lastTriggered.Int64)
		def.LastTriggeredAt = &at
	}
	return def, nil
}

func encodePrices(prices map[string]float64) (string, error) {
	if prices == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(prices)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
