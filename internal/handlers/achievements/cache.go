package achievements

import (
	"github.com/gofiber/fiber/v3"

	"achievement-sync/internal/achievecache"
)

// GameDataHandler returns one game's cached achievement data, 404 when the
// game has never been refreshed.
func GameDataHandler(store *achievecache.Store) fiber.Handler {
	return func(c fiber.Ctx) error {
		gameID := c.Params("id")
		if gameID == "" {
			return c.Status(400).JSON(fiber.Map{"error": "Game id is required"})
		}
		data, err := store.LoadGameData(c, gameID)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "Failed to load achievement data"})
		}
		if data == nil {
			return c.Status(404).JSON(fiber.Map{"error": "No cached achievement data"})
		}
		return c.JSON(data)
	}
}

// CachedIDsHandler lists the ids of all games present in the cache.
func CachedIDsHandler(store *achievecache.Store) fiber.Handler {
	return func(c fiber.Ctx) error {
		ids, err := store.GetCachedGameIDs()
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "Failed to list cached games"})
		}
		if ids == nil {
			ids = []string{}
		}
		return c.JSON(fiber.Map{"game_ids": ids, "count": len(ids)})
	}
}

// RemoveGameDataHandler drops one game's cached data.
func RemoveGameDataHandler(store *achievecache.Store) fiber.Handler {
	return func(c fiber.Ctx) error {
		gameID := c.Params("id")
		if gameID == "" {
			return c.Status(400).JSON(fiber.Map{"error": "Game id is required"})
		}
		if err := store.RemoveGameData(c, gameID); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "Failed to remove achievement data"})
		}
		return c.JSON(fiber.Map{"removed": true, "game_id": gameID})
	}
}

// ClearCacheHandler drops the whole achievement cache.
func ClearCacheHandler(store *achievecache.Store) fiber.Handler {
	return func(c fiber.Ctx) error {
		if err := store.Clear(c); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "Failed to clear achievement cache"})
		}
		return c.JSON(fiber.Map{"cleared": true})
	}
}
