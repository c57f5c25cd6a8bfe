package storage

import (
	"context"
	"fmt"
	"time"
)

// TryAdvisoryLock takes a Postgres session advisory lock on a dedicated
// connection and returns its release func. SQLite is single-process, so the
// lock is always granted there.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}
	if !s.postgres {
		return func() {}, true, nil
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		_ = conn.Close()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.ExecContext(ctxUnlock, advisoryUnlockSQL, key)
		_ = conn.Close()
	}
	return unlock, true, nil
}
