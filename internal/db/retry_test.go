package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestIsBusyError(t *testing.T) {
	if IsBusyError(nil) {
		t.Error("nil must not classify as busy")
	}
	if !IsBusyError(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Error("Expected locked message to classify as busy")
	}
	if IsBusyError(errors.New("UNIQUE constraint failed: game.id")) {
		t.Error("Constraint violation must not classify as busy")
	}
}

func TestExecWithRetryCanceledContext(t *testing.T) {
	database, err := Open(filepath.Join(t.TempDir(), "retry.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ExecWithRetry(ctx, database, `CREATE TABLE t (id INTEGER)`); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestExecWithRetryBackoffHonorsCancellation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contend.db")
	writer, err := Open(path)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	t.Cleanup(func() { _ = writer.Close() })
	if _, err := writer.Exec(`CREATE TABLE t (id INTEGER)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	second, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open second handle: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })
	second.SetMaxOpenConns(1)
	if _, err := second.Exec(`PRAGMA busy_timeout=0`); err != nil {
		t.Fatalf("pragma: %v", err)
	}

	// Hold the write lock so the second handle keeps seeing SQLITE_BUSY and
	// spends its time in the backoff waits.
	conn, err := writer.Conn(context.Background())
	if err != nil {
		t.Fatalf("conn: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if _, err := conn.ExecContext(context.Background(), `BEGIN IMMEDIATE`); err != nil {
		t.Fatalf("begin immediate: %v", err)
	}
	t.Cleanup(func() { _, _ = conn.ExecContext(context.Background(), `ROLLBACK`) })

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = ExecWithRetry(ctx, second, `INSERT INTO t (id) VALUES (1)`)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected context.DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Backoff did not return promptly after cancellation (%v)", elapsed)
	}
}

func TestQueryRowWithRetryNoRows(t *testing.T) {
	database, err := Open(filepath.Join(t.TempDir(), "rows.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if _, err := database.Exec(`CREATE TABLE t (id INTEGER)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	var id int
	err = QueryRowWithRetry(context.Background(), database, `SELECT id FROM t WHERE id = ?`, []any{1},
		func(row *sql.Row) error { return row.Scan(&id) })
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Expected sql.ErrNoRows, got %v", err)
	}
}
