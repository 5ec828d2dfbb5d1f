package provider

import "time"

// Achievement is one achievement definition, optionally with unlock state.
type Achievement struct {
	APIName     string     `json:"api_name"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	IconURL     string     `json:"icon_url,omitempty"`
	IconPath    string     `json:"icon_path,omitempty"`
	Hidden      bool       `json:"hidden"`
	Unlocked    bool       `json:"unlocked"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty"`
	Percent     float64    `json:"percent"` // global unlock percentage, 0 when unknown
}

// GameAchievementData is the per-game output record produced by one provider
// fetch and persisted as a unit to the achievement cache.
type GameAchievementData struct {
	GameID          string        `json:"game_id"`
	Provider        string        `json:"provider"`
	Achievements    []Achievement `json:"achievements"`
	HasAchievements bool          `json:"has_achievements"`
	LastUpdated     time.Time     `json:"last_updated"`
}
