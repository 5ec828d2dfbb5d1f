package settings

import (
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	"achievement-sync/internal/logging"
)

// Well-known setting keys. Provider-enabled keys are derived per provider.
const (
	KeyRecentCount       = "refresh_recent_count"
	KeyParallelProviders = "refresh_parallel_providers"
	KeyIncludeUnplayed   = "refresh_include_unplayed"
	KeyAutoRefreshSec    = "refresh_auto_interval_sec"
	KeyExcludedGames     = "excluded_games"

	providerEnabledPrefix = "provider_enabled_"
)

// Store reads and writes persisted user settings from the app_settings table.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetValue returns the raw value for key, or def when unset.
func (s *Store) GetValue(key, def string) string {
	var value string
	err := s.db.QueryRow(`SELECT value FROM app_settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if err != sql.ErrNoRows {
			logging.Debug("settings: read failed", "key", key, "error", err)
		}
		return def
	}
	return value
}

// SetValue upserts a setting.
func (s *Store) SetValue(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO app_settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	return err
}

func (s *Store) GetBool(key string, def bool) bool {
	switch s.GetValue(key, "") {
	case "true":
		return true
	case "false":
		return false
	default:
		return def
	}
}

func (s *Store) GetInt(key string, def int) int {
	if v := s.GetValue(key, ""); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// RecentCount returns the configured Recent-mode cap.
func (s *Store) RecentCount(def int) int {
	n := s.GetInt(KeyRecentCount, def)
	if n <= 0 {
		return def
	}
	return n
}

func (s *Store) ParallelProviders(def bool) bool {
	return s.GetBool(KeyParallelProviders, def)
}

func (s *Store) IncludeUnplayed(def bool) bool {
	return s.GetBool(KeyIncludeUnplayed, def)
}

func (s *Store) AutoRefreshSec(def int) int {
	return s.GetInt(KeyAutoRefreshSec, def)
}

// HasProviderSetting reports whether an explicit enabled/disabled choice has
// been persisted for the provider.
func (s *Store) HasProviderSetting(providerKey string) bool {
	return s.GetValue(providerEnabledPrefix+providerKey, "") != ""
}

// ProviderEnabled reports whether refreshing through the given provider is on.
func (s *Store) ProviderEnabled(providerKey string, def bool) bool {
	return s.GetBool(providerEnabledPrefix+providerKey, def)
}

// EnableProvider records the auto-enable-on-first-detection flag for a
// provider that authenticated for the first time.
func (s *Store) EnableProvider(providerKey string) error {
	return s.SetValue(providerEnabledPrefix+providerKey, "true")
}

// ExcludedGames returns the persisted per-game exclusion set.
func (s *Store) ExcludedGames() map[string]bool {
	raw := s.GetValue(KeyExcludedGames, "")
	out := make(map[string]bool)
	if raw == "" {
		return out
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		logging.Debug("settings: malformed exclusion list, ignoring", "error", err)
		return out
	}
	for _, id := range ids {
		if id != "" {
			out[id] = true
		}
	}
	return out
}

// SetExcludedGames replaces the persisted exclusion set.
func (s *Store) SetExcludedGames(ids []string) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return s.SetValue(KeyExcludedGames, string(raw))
}
