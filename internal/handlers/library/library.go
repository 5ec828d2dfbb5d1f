package library

import (
	"time"

	"github.com/gofiber/fiber/v3"

	applibrary "achievement-sync/internal/library"
)

type ImportRequest struct {
	Games   []applibrary.Game `json:"games"`
	Replace bool              `json:"replace"`
}

type ActivityRequest struct {
	At int64 `json:"at,omitempty"` // unix millis, 0 = now
}

// List returns the full library in stable library order.
func List(store *applibrary.Store) fiber.Handler {
	return func(c fiber.Ctx) error {
		snap, err := store.Snapshot()
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "Failed to load library"})
		}
		games := snap.Games
		if games == nil {
			games = []applibrary.Game{}
		}
		return c.JSON(fiber.Map{"games": games, "count": len(games)})
	}
}

// Import upserts the pushed game list. With replace=true, games absent from
// the payload are pruned so the stored library mirrors the host's.
func Import(store *applibrary.Store) fiber.Handler {
	return func(c fiber.Ctx) error {
		var req ImportRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
		}
		if len(req.Games) == 0 {
			return c.Status(400).JSON(fiber.Map{"error": "No games in payload"})
		}

		if req.Replace {
			pruned, err := store.ReplaceLibrary(req.Games)
			if err != nil {
				return c.Status(500).JSON(fiber.Map{"error": "Failed to import library"})
			}
			return c.JSON(fiber.Map{"imported": len(req.Games), "pruned": pruned})
		}

		if err := store.UpsertGames(req.Games); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "Failed to import library"})
		}
		return c.JSON(fiber.Map{"imported": len(req.Games)})
	}
}

// TouchActivity records a launch timestamp for a game, feeding Recent mode.
func TouchActivity(store *applibrary.Store) fiber.Handler {
	return func(c fiber.Ctx) error {
		gameID := c.Params("id")
		if gameID == "" {
			return c.Status(400).JSON(fiber.Map{"error": "Game id is required"})
		}
		var req ActivityRequest
		if len(c.Body()) > 0 {
			if err := c.Bind().Body(&req); err != nil {
				return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
			}
		}
		at := time.Now()
		if req.At > 0 {
			at = time.UnixMilli(req.At)
		}
		if err := store.TouchActivity(gameID, at); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "Failed to record activity"})
		}
		return c.JSON(fiber.Map{"success": true, "game_id": gameID})
	}
}
