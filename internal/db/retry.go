package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	busyRetryAttempts = 6
	busyRetryBase     = 20 * time.Millisecond
	busyRetryCeiling  = 500 * time.Millisecond
)

// IsBusyError reports whether err is a transient SQLite busy/locked condition
// worth retrying. Anything else (constraint violations, bad SQL) is permanent.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_BUSY_SNAPSHOT:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "table is locked")
}

// ExecWithRetry runs a write statement, backing off on busy/locked errors.
// Every backoff wait is a suspension point: a canceled caller returns
// immediately instead of sitting out lock contention.
func ExecWithRetry(ctx context.Context, database *sql.DB, query string, args ...any) (sql.Result, error) {
	var lastErr error
	wait := busyRetryBase
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		res, err := database.ExecContext(ctx, query, args...)
		if err == nil {
			return res, nil
		}
		if !IsBusyError(err) {
			return nil, err
		}
		lastErr = err
		if werr := waitOrDone(ctx, wait); werr != nil {
			return nil, werr
		}
		if wait < busyRetryCeiling {
			wait *= 2
		}
	}
	return nil, lastErr
}

// QueryRowWithRetry runs a single-row query and scan with the same busy
// backoff as ExecWithRetry. sql.ErrNoRows passes through untouched so callers
// keep their absent-row handling.
func QueryRowWithRetry(ctx context.Context, database *sql.DB, query string, args []any, scan func(*sql.Row) error) error {
	var lastErr error
	wait := busyRetryBase
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		err := scan(database.QueryRowContext(ctx, query, args...))
		if err == nil || errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if !IsBusyError(err) {
			return err
		}
		lastErr = err
		if werr := waitOrDone(ctx, wait); werr != nil {
			return werr
		}
		if wait < busyRetryCeiling {
			wait *= 2
		}
	}
	return lastErr
}

func waitOrDone(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
