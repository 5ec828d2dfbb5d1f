package health

import (
	"database/sql"

	"github.com/gofiber/fiber/v3"

	"achievement-sync/internal/provider"
	"achievement-sync/internal/refresh"
)

// Health reports database reachability.
func Health(db *sql.DB) fiber.Handler {
	return func(c fiber.Ctx) error {
		if err := db.Ping(); err != nil {
			return c.Status(503).JSON(fiber.Map{"status": "unhealthy", "db": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}

// Providers reports per-provider authentication state and whether a refresh
// could start right now.
func Providers(registry *provider.Registry, o *refresh.Orchestrator) fiber.Handler {
	return func(c fiber.Ctx) error {
		out := make([]fiber.Map, 0)
		for _, p := range registry.All() {
			out = append(out, fiber.Map{
				"key":           p.Key(),
				"name":          p.Name(),
				"authenticated": p.IsAuthenticated(),
			})
		}
		return c.JSON(fiber.Map{
			"providers": out,
			"can_run":   o.ValidateCanStartRefresh(),
			"running":   o.IsRunning(),
		})
	}
}
