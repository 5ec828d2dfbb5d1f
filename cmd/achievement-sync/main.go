package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"achievement-sync/internal/achievecache"
	"achievement-sync/internal/config"
	"achievement-sync/internal/db"
	achievementsapi "achievement-sync/internal/handlers/achievements"
	healthapi "achievement-sync/internal/handlers/health"
	libraryapi "achievement-sync/internal/handlers/library"
	settingsapi "achievement-sync/internal/handlers/settings"
	"achievement-sync/internal/icons"
	"achievement-sync/internal/library"
	"achievement-sync/internal/logging"
	"achievement-sync/internal/progress"
	"achievement-sync/internal/provider"
	"achievement-sync/internal/provider/epic"
	"achievement-sync/internal/provider/gog"
	"achievement-sync/internal/provider/retro"
	"achievement-sync/internal/provider/steam"
	"achievement-sync/internal/provider/xbox"
	"achievement-sync/internal/ratelimit"
	"achievement-sync/internal/refresh"
	"achievement-sync/internal/settings"
	"achievement-sync/internal/tasks"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/static"
	"github.com/joho/godotenv"
	ws "github.com/saveblush/gofiber3-contrib/websocket"
)

func main() {
	_ = godotenv.Load()

	// ---- Logging ----
	logging.SetDefault(logging.NewLogger(&logging.Config{
		Level:  logLevel(),
		Format: os.Getenv("LOG_FORMAT"),
	}))

	// ---- Config ----
	cfg := config.Load()

	// ---- Database Initialization & Migration ----
	sqlDB, err := db.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}
	defer func(dbh *sql.DB) { _ = dbh.Close() }(sqlDB)

	if err := db.MigrateUp("sqlite://" + cfg.SQLitePath); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// ---- Stores ----
	libStore := library.NewStore(sqlDB)
	settingsStore := settings.NewStore(sqlDB)
	cacheStore := achievecache.NewStore(sqlDB)
	iconCache := icons.New(cfg.IconCache, cfg.IconTimeout)

	// ---- Achievement Providers ----
	registry := provider.NewRegistry()
	registry.Register(steam.New(cfg.SteamAPIKey, cfg.SteamUserID))
	registry.Register(xbox.New(cfg.XboxToken, cfg.XboxXUID))
	registry.Register(gog.New(cfg.GogToken, cfg.GogUserID))
	registry.Register(epic.New(cfg.EpicToken, cfg.EpicAccountID))
	registry.Register(retro.New(cfg.RetroUser, cfg.RetroAPIKey))
	for _, p := range registry.All() {
		logging.Info("provider registered", "provider", p.Key(), "authenticated", p.IsAuthenticated())
	}

	// ---- Refresh Orchestration ----
	reporter := progress.NewReporter(time.Duration(cfg.ProgressIntervalMs) * time.Millisecond)
	limiter := ratelimit.New(
		time.Duration(cfg.RetryBaseDelayMs)*time.Millisecond,
		cfg.MaxRetryAttempts,
	)
	orchestrator := refresh.NewOrchestrator(registry, libStore, cacheStore, iconCache, settingsStore, reporter, limiter, refresh.Config{
		RecentCountDefault:     cfg.RecentCount,
		ParallelDefault:        cfg.ParallelProviders,
		IncludeUnplayedDefault: cfg.IncludeUnplayed,
		GameDelay:              time.Duration(cfg.GameDelayMs) * time.Millisecond,
	})

	// ---- Fiber v3 App ----
	app := fiber.New(fiber.Config{
		EnableIPValidation: true,
		ProxyHeader:        fiber.HeaderXForwardedFor,
	})
	app.Use(recover.New())
	app.Use(logging.FiberMiddleware(logging.Default()))

	// ---- Health Routes ----
	app.Get("/health", healthapi.Health(sqlDB))
	app.Get("/health/providers", healthapi.Providers(registry, orchestrator))

	// ---- Library Routes ----
	app.Get("/library", libraryapi.List(libStore))
	app.Post("/library/import", libraryapi.Import(libStore))
	app.Post("/library/:id/activity", libraryapi.TouchActivity(libStore))

	// ---- Refresh Routes ----
	app.Post("/refresh/start", achievementsapi.StartHandler(orchestrator))
	app.Post("/refresh/cancel", achievementsapi.CancelHandler(orchestrator))
	app.Get("/refresh/status", achievementsapi.StatusHandler(orchestrator))
	app.Get("/refresh/stream", achievementsapi.StreamHandler(orchestrator))
	app.Get("/refresh/ws", func(c fiber.Ctx) error {
		if ws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}, achievementsapi.WS(orchestrator))

	// ---- Achievement Cache Routes ----
	app.Get("/achievements/ids", achievementsapi.CachedIDsHandler(cacheStore))
	app.Get("/achievements/:id", achievementsapi.GameDataHandler(cacheStore))
	app.Delete("/achievements/:id", achievementsapi.RemoveGameDataHandler(cacheStore))
	app.Post("/achievements/clear", achievementsapi.ClearCacheHandler(cacheStore))

	// ---- Settings Routes ----
	app.Get("/settings", settingsapi.GetSettings(settingsStore))
	app.Post("/settings/:key", settingsapi.UpdateSetting(settingsStore))
	app.Get("/settings/providers/:provider", settingsapi.GetProviderEnabled(settingsStore))
	app.Post("/settings/providers/:provider", settingsapi.SetProviderEnabled(settingsStore))
	app.Get("/settings/exclusions", settingsapi.GetExclusions(settingsStore))
	app.Put("/settings/exclusions", settingsapi.SetExclusions(settingsStore))

	// ---- Background Tasks ----
	tasks.StartAutoRefreshLoop(context.Background(), orchestrator, settingsStore, cfg)

	// ---- Static UI Serving ----
	app.Use("/", static.New(cfg.WebPath))

	// SPA Fallback: for any GET request that is not an API call, serve the index.html.
	app.Use(func(c fiber.Ctx) error {
		if c.Method() == fiber.MethodGet && !startsWithAny(c.Path(), "/health", "/library", "/refresh", "/achievements", "/settings") {
			return c.SendFile(filepath.Join(cfg.WebPath, "index.html"))
		}
		return c.Next()
	})

	addr := ":8080"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	logging.Info("listening", "addr", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

func logLevel() logging.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func startsWithAny(path string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
