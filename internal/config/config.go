package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	SQLitePath string
	IconCache  string
	WebPath    string

	// Provider credentials
	SteamAPIKey   string
	SteamUserID   string
	XboxToken     string
	XboxXUID      string
	GogToken      string
	GogUserID     string
	EpicToken     string
	EpicAccountID string
	RetroAPIKey   string
	RetroUser     string

	// Refresh orchestration
	RecentCount        int           // default game cap for Recent mode
	ParallelProviders  bool          // run provider plans concurrently
	IncludeUnplayed    bool          // include zero-playtime games in Full mode
	GameDelayMs        int           // inter-game pacing per provider
	RetryBaseDelayMs   int           // rate limiter base delay
	MaxRetryAttempts   int           // rate limiter attempt cap
	AutoRefreshSec     int           // background Recent refresh interval (0 = off)
	ProgressIntervalMs int           // progress emission throttle window
	IconTimeout        time.Duration // per-icon download timeout
}

func Load() Config {
	dbPath := env("SQLITE_PATH", "/var/lib/achievement-sync/achievements.db")
	iconCache := env("ICON_CACHE_PATH", "/var/lib/achievement-sync/icons")
	webPath := env("WEB_PATH", "/app/web")

	_ = os.MkdirAll(filepath.Dir(dbPath), 0755)
	_ = os.MkdirAll(iconCache, 0755)

	cfg := Config{
		SQLitePath:         dbPath,
		IconCache:          iconCache,
		WebPath:            webPath,
		SteamAPIKey:        env("STEAM_API_KEY", ""),
		SteamUserID:        env("STEAM_USER_ID", ""),
		XboxToken:          env("XBOX_TOKEN", ""),
		XboxXUID:           env("XBOX_XUID", ""),
		GogToken:           env("GOG_TOKEN", ""),
		GogUserID:          env("GOG_USER_ID", ""),
		EpicToken:          env("EPIC_TOKEN", ""),
		EpicAccountID:      env("EPIC_ACCOUNT_ID", ""),
		RetroAPIKey:        env("RA_API_KEY", ""),
		RetroUser:          env("RA_USER", ""),
		RecentCount:        envInt("RECENT_COUNT", 10),
		ParallelProviders:  envBool("PARALLEL_PROVIDERS", false),
		IncludeUnplayed:    envBool("INCLUDE_UNPLAYED", false),
		GameDelayMs:        envInt("GAME_DELAY_MS", 250),
		RetryBaseDelayMs:   envInt("RETRY_BASE_DELAY_MS", 1000),
		MaxRetryAttempts:   envInt("MAX_RETRY_ATTEMPTS", 3),
		AutoRefreshSec:     envInt("AUTO_REFRESH_SEC", 0),
		ProgressIntervalMs: envInt("PROGRESS_INTERVAL_MS", 1000),
		IconTimeout:        time.Duration(envInt("ICON_TIMEOUT_SEC", 20)) * time.Second,
	}

	fmt.Printf("[INFO] Using SQLite DB at: %s\n", dbPath)
	fmt.Printf("[INFO] Icon cache at: %s\n", iconCache)
	return cfg
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}
