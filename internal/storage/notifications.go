package storage

import (
	"context"
	"encoding/json"
	"strings"
)

const defaultNotificationLimit = 20

// InsertNotification appends a delivered notification to the log.
func (s *Store) InsertNotification(ctx context.Context, rec NotificationRecord) (NotificationRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return NotificationRecord{}, err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	prices, err := encodePrices(rec.Prices)
	if err != nil {
		return NotificationRecord{}, wrap("insert notification: encode prices", err)
	}

	args := []any{rec.Owner, rec.AlertID, rec.Message, prices, unixNanos(rec.CreatedAt)}
	if s.postgres {
		query := strings.TrimSuffix(s.rebind(insertNotificationSQL), ";") + " RETURNING id;"
		if err := db.QueryRowContext(ctx, query, args...).Scan(&rec.ID); err != nil {
			return NotificationRecord{}, wrap("insert notification", err)
		}
		return rec, nil
	}

	res, err := db.ExecContext(ctx, insertNotificationSQL, args...)
	if err != nil {
		return NotificationRecord{}, wrap("insert notification", err)
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return NotificationRecord{}, wrap("insert notification: last id", err)
	}
	return rec, nil
}

// ListNotifications returns the owner's most recent notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, owner string, limit int) ([]NotificationRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultNotificationLimit
	}

	rows, err := db.QueryContext(ctx, s.rebind(listNotificationsSQL), owner, limit)
	if err != nil {
		return nil, wrap("list notifications", err)
	}
	defer rows.Close()

	records := make([]NotificationRecord, 0, limit)
	for rows.Next() {
		var (
			rec       NotificationRecord
			prices    string
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.Owner, &rec.AlertID, &rec.Message, &prices, &createdAt); err != nil {
			return nil, wrap("list notifications: scan", err)
		}
		if prices != "" {
			if err := json.Unmarshal([]byte(prices), &rec.Prices); err != nil {
				return nil, wrap("list notifications: decode prices", err)
			}
		}
		rec.CreatedAt = fromUnixNanos(createdAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list notifications", err)
	}
	return records, nil
}
