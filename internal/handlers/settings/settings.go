package settings

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"

	appsettings "achievement-sync/internal/settings"
)

type UpdateSettingRequest struct {
	Value string `json:"value"`
}

type ExclusionsRequest struct {
	GameIDs []string `json:"game_ids"`
}

// GetSettings returns the refresh-related settings with their effective values.
func GetSettings(store *appsettings.Store) fiber.Handler {
	return func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			appsettings.KeyRecentCount:       store.RecentCount(10),
			appsettings.KeyParallelProviders: store.ParallelProviders(false),
			appsettings.KeyIncludeUnplayed:   store.IncludeUnplayed(false),
			appsettings.KeyAutoRefreshSec:    store.AutoRefreshSec(0),
		})
	}
}

// UpdateSetting updates one refresh setting by key.
func UpdateSetting(store *appsettings.Store) fiber.Handler {
	return func(c fiber.Ctx) error {
		key := c.Params("key")
		if key == "" {
			return c.Status(400).JSON(fiber.Map{"error": "Setting key is required"})
		}

		var req UpdateSettingRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
		}
		if !isValidSetting(key, req.Value) {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid setting key or value"})
		}

		if err := store.SetValue(key, req.Value); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "Failed to update setting"})
		}
		return c.JSON(fiber.Map{"success": true, "key": key, "value": req.Value})
	}
}

// GetProviderEnabled reports the enabled flag for one provider.
func GetProviderEnabled(store *appsettings.Store) fiber.Handler {
	return func(c fiber.Ctx) error {
		key := c.Params("provider")
		if key == "" {
			return c.Status(400).JSON(fiber.Map{"error": "Provider key is required"})
		}
		return c.JSON(fiber.Map{
			"provider": key,
			"enabled":  store.ProviderEnabled(key, true),
			"explicit": store.HasProviderSetting(key),
		})
	}
}

// SetProviderEnabled flips the enabled flag for one provider.
func SetProviderEnabled(store *appsettings.Store) fiber.Handler {
	return func(c fiber.Ctx) error {
		key := c.Params("provider")
		if key == "" {
			return c.Status(400).JSON(fiber.Map{"error": "Provider key is required"})
		}
		var req UpdateSettingRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
		}
		if req.Value != "true" && req.Value != "false" {
			return c.Status(400).JSON(fiber.Map{"error": "Value must be true or false"})
		}
		if err := store.SetValue("provider_enabled_"+key, req.Value); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "Failed to update provider setting"})
		}
		return c.JSON(fiber.Map{"success": true, "provider": key, "enabled": req.Value == "true"})
	}
}

// GetExclusions returns the persisted per-game exclusion list.
func GetExclusions(store *appsettings.Store) fiber.Handler {
	return func(c fiber.Ctx) error {
		excluded := store.ExcludedGames()
		ids := make([]string, 0, len(excluded))
		for id := range excluded {
			ids = append(ids, id)
		}
		return c.JSON(fiber.Map{"game_ids": ids, "count": len(ids)})
	}
}

// SetExclusions replaces the persisted per-game exclusion list.
func SetExclusions(store *appsettings.Store) fiber.Handler {
	return func(c fiber.Ctx) error {
		var req ExclusionsRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
		}
		ids := make([]string, 0, len(req.GameIDs))
		for _, id := range req.GameIDs {
			if strings.TrimSpace(id) != "" {
				ids = append(ids, id)
			}
		}
		if err := store.SetExcludedGames(ids); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "Failed to update exclusions"})
		}
		return c.JSON(fiber.Map{"success": true, "count": len(ids)})
	}
}

func isValidSetting(key, value string) bool {
	switch key {
	case appsettings.KeyParallelProviders, appsettings.KeyIncludeUnplayed:
		return value == "true" || value == "false"
	case appsettings.KeyRecentCount:
		n, err := strconv.Atoi(value)
		return err == nil && n > 0 && n <= 1000
	case appsettings.KeyAutoRefreshSec:
		n, err := strconv.Atoi(value)
		return err == nil && n >= 0
	default:
		return false
	}
}
