package achievecache

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"achievement-sync/internal/db"
	"achievement-sync/internal/logging"
	"achievement-sync/internal/provider"
	"achievement-sync/internal/throttle"
)

const invalidationMinInterval = 500 * time.Millisecond

// WriteResult reports the outcome of a durable cache write.
type WriteResult struct {
	Success      bool   `json:"success"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// WriteError is the persistence failure class. It is never retried and never
// swallowed: the refresh pipeline aborts a provider's loop when it sees one.
type WriteError struct {
	GameID string
	Code   string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("cache write failed for game %s (%s): %v", e.GameID, e.Code, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Store persists per-game achievement data and notifies subscribers of cache
// changes. Non-forced invalidation broadcasts are throttled so a fast bulk
// refresh does not storm downstream listeners.
type Store struct {
	db             *sql.DB
	invalidateGate *throttle.Gate

	subMu          sync.Mutex
	updatedSubs    []func(gameID string)
	deltaSubs      []func(gameIDs []string)
	invalidateSubs []func(forced bool)
}

func NewStore(database *sql.DB) *Store {
	return &Store{
		db:             database,
		invalidateGate: throttle.NewGate(invalidationMinInterval),
	}
}

// OnGameCacheUpdated registers a per-game update listener.
func (s *Store) OnGameCacheUpdated(fn func(gameID string)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.updatedSubs = append(s.updatedSubs, fn)
}

// OnCacheDeltaUpdated registers a listener for batched id deltas.
func (s *Store) OnCacheDeltaUpdated(fn func(gameIDs []string)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.deltaSubs = append(s.deltaSubs, fn)
}

// OnCacheInvalidated registers a whole-cache invalidation listener.
func (s *Store) OnCacheInvalidated(fn func(forced bool)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.invalidateSubs = append(s.invalidateSubs, fn)
}

// SaveGameData writes one game's achievement data as a unit. The returned
// WriteResult never carries a Go error; callers translate failure into
// *WriteError where abort semantics are needed.
func (s *Store) SaveGameData(gameID string, data *provider.GameAchievementData) WriteResult {
	if data == nil {
		return WriteResult{Success: false, ErrorCode: "empty_payload", ErrorMessage: "no data to persist"}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return WriteResult{Success: false, ErrorCode: "begin_failed", ErrorMessage: err.Error()}
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO achievement_cache (game_id, provider, has_achievements, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(game_id) DO UPDATE SET
			provider = excluded.provider,
			has_achievements = excluded.has_achievements,
			last_updated = excluded.last_updated
	`, gameID, data.Provider, data.HasAchievements, data.LastUpdated.UTC())
	if err != nil {
		return WriteResult{Success: false, ErrorCode: "upsert_failed", ErrorMessage: err.Error()}
	}

	if _, err := tx.Exec(`DELETE FROM achievement WHERE game_id = ?`, gameID); err != nil {
		return WriteResult{Success: false, ErrorCode: "clear_failed", ErrorMessage: err.Error()}
	}

	stmt, err := tx.Prepare(`
		INSERT INTO achievement (game_id, api_name, name, description, icon_url, icon_path,
		                         hidden, unlocked, unlocked_at, percent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return WriteResult{Success: false, ErrorCode: "prepare_failed", ErrorMessage: err.Error()}
	}
	defer stmt.Close()

	for _, a := range data.Achievements {
		var unlockedAt any
		if a.UnlockedAt != nil {
			unlockedAt = a.UnlockedAt.UnixMilli()
		}
		if _, err := stmt.Exec(gameID, a.APIName, a.Name, a.Description, a.IconURL, a.IconPath,
			a.Hidden, a.Unlocked, unlockedAt, a.Percent); err != nil {
			return WriteResult{Success: false, ErrorCode: "insert_failed", ErrorMessage: err.Error()}
		}
	}

	if err := tx.Commit(); err != nil {
		return WriteResult{Success: false, ErrorCode: "commit_failed", ErrorMessage: err.Error()}
	}

	s.notifyUpdated(gameID)
	s.notifyDelta([]string{gameID})
	s.Invalidate(false)
	return WriteResult{Success: true}
}

// LoadGameData reads one game's cached achievement data, or nil when absent.
func (s *Store) LoadGameData(ctx context.Context, gameID string) (*provider.GameAchievementData, error) {
	data := &provider.GameAchievementData{GameID: gameID}
	var lastUpdated time.Time
	err := db.QueryRowWithRetry(ctx, s.db,
		`SELECT provider, has_achievements, last_updated FROM achievement_cache WHERE game_id = ?`,
		[]any{gameID},
		func(row *sql.Row) error {
			return row.Scan(&data.Provider, &data.HasAchievements, &lastUpdated)
		})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("achievecache: load %s: %w", gameID, err)
	}
	data.LastUpdated = lastUpdated

	rows, err := s.db.QueryContext(ctx, `
		SELECT api_name, name, description, icon_url, icon_path, hidden, unlocked, unlocked_at, percent
		FROM achievement WHERE game_id = ? ORDER BY api_name`, gameID)
	if err != nil {
		return nil, fmt.Errorf("achievecache: load achievements %s: %w", gameID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var a provider.Achievement
		var unlockedAt sql.NullInt64
		if err := rows.Scan(&a.APIName, &a.Name, &a.Description, &a.IconURL, &a.IconPath,
			&a.Hidden, &a.Unlocked, &unlockedAt, &a.Percent); err != nil {
			return nil, err
		}
		if unlockedAt.Valid {
			t := time.UnixMilli(unlockedAt.Int64)
			a.UnlockedAt = &t
		}
		data.Achievements = append(data.Achievements, a)
	}
	return data, rows.Err()
}

// GetCachedGameIDs returns the ids of all games present in the cache.
func (s *Store) GetCachedGameIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT game_id FROM achievement_cache`)
	if err != nil {
		return nil, fmt.Errorf("achievecache: ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RemoveGameData deletes one game's cached data.
func (s *Store) RemoveGameData(ctx context.Context, gameID string) error {
	if _, err := db.ExecWithRetry(ctx, s.db, `DELETE FROM achievement_cache WHERE game_id = ?`, gameID); err != nil {
		return fmt.Errorf("achievecache: remove %s: %w", gameID, err)
	}
	s.notifyUpdated(gameID)
	s.Invalidate(true)
	return nil
}

// Clear drops the whole cache.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := db.ExecWithRetry(ctx, s.db, `DELETE FROM achievement_cache`); err != nil {
		return fmt.Errorf("achievecache: clear: %w", err)
	}
	s.Invalidate(true)
	return nil
}

// Invalidate broadcasts a cache-invalidated event. Non-forced broadcasts are
// throttled to one per 500ms; forced ones (end of run, explicit user action)
// always go out and reset the window.
func (s *Store) Invalidate(forced bool) {
	now := time.Now()
	if forced {
		s.invalidateGate.Force(now)
	} else if !s.invalidateGate.TryPass(now) {
		return
	}
	s.subMu.Lock()
	subs := make([]func(bool), len(s.invalidateSubs))
	copy(subs, s.invalidateSubs)
	s.subMu.Unlock()
	for _, fn := range subs {
		safeNotify(func() { fn(forced) })
	}
}

func (s *Store) notifyUpdated(gameID string) {
	s.subMu.Lock()
	subs := make([]func(string), len(s.updatedSubs))
	copy(subs, s.updatedSubs)
	s.subMu.Unlock()
	for _, fn := range subs {
		safeNotify(func() { fn(gameID) })
	}
}

func (s *Store) notifyDelta(gameIDs []string) {
	s.subMu.Lock()
	subs := make([]func([]string), len(s.deltaSubs))
	copy(subs, s.deltaSubs)
	s.subMu.Unlock()
	for _, fn := range subs {
		safeNotify(func() { fn(gameIDs) })
	}
}

// One failing listener must not block the rest.
func safeNotify(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Warn("cache subscriber panicked", "panic", rec)
		}
	}()
	fn()
}
