package steam

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"achievement-sync/internal/library"
	"achievement-sync/internal/provider"
)

const defaultBaseURL = "https://api.steampowered.com"

// Client fetches achievement schemas and per-user unlock state from the
// Steam Web API.
type Client struct {
	baseURL string
	apiKey  string
	steamID string
	http    *http.Client
}

func New(apiKey, steamID string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		steamID: steamID,
		http:    provider.DefaultHTTPClient(),
	}
}

// NewWithBaseURL is used by tests to point the client at a local server.
func NewWithBaseURL(baseURL, apiKey, steamID string) *Client {
	c := New(apiKey, steamID)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

func (c *Client) Key() string  { return "steam" }
func (c *Client) Name() string { return "Steam" }

func (c *Client) IsAuthenticated() bool {
	return c.apiKey != "" && c.steamID != ""
}

func (c *Client) IsCapable(g library.Game) (bool, error) {
	if !strings.EqualFold(g.Source, "steam") {
		return false, nil
	}
	if _, err := strconv.ParseUint(provider.GameAppID(g), 10, 64); err != nil {
		return false, fmt.Errorf("steam: game %s has no numeric app id", g.ID)
	}
	return true, nil
}

func (c *Client) IsAuthError(err error) bool      { return provider.IsAuthError(err) }
func (c *Client) IsTransientError(err error) bool { return provider.IsTransientError(err) }

type schemaResponse struct {
	Game struct {
		AvailableGameStats struct {
			Achievements []struct {
				Name        string `json:"name"`
				DisplayName string `json:"displayName"`
				Description string `json:"description"`
				Icon        string `json:"icon"`
				Hidden      int    `json:"hidden"`
			} `json:"achievements"`
		} `json:"availableGameStats"`
	} `json:"game"`
}

type playerAchievementsResponse struct {
	PlayerStats struct {
		Success      bool `json:"success"`
		Achievements []struct {
			APIName    string `json:"apiname"`
			Achieved   int    `json:"achieved"`
			UnlockTime int64  `json:"unlocktime"`
		} `json:"achievements"`
	} `json:"playerstats"`
}

type globalPercentagesResponse struct {
	AchievementPercentages struct {
		Achievements []struct {
			Name    string  `json:"name"`
			Percent float64 `json:"percent"`
		} `json:"achievements"`
	} `json:"achievementpercentages"`
}

func (c *Client) FetchAchievements(ctx context.Context, g library.Game) (*provider.GameAchievementData, error) {
	appID := provider.GameAppID(g)

	var schema schemaResponse
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("appid", appID)
	u := fmt.Sprintf("%s/ISteamUserStats/GetSchemaForGame/v2/?%s", c.baseURL, q.Encode())
	if err := provider.GetJSON(ctx, c.http, c.Key(), u, nil, &schema); err != nil {
		return nil, err
	}

	data := &provider.GameAchievementData{
		GameID:      g.ID,
		Provider:    c.Key(),
		LastUpdated: time.Now().UTC(),
	}

	defs := schema.Game.AvailableGameStats.Achievements
	if len(defs) == 0 {
		return data, nil
	}

	unlocked := make(map[string]int64, len(defs))
	var player playerAchievementsResponse
	pq := url.Values{}
	pq.Set("key", c.apiKey)
	pq.Set("steamid", c.steamID)
	pq.Set("appid", appID)
	pu := fmt.Sprintf("%s/ISteamUserStats/GetPlayerAchievements/v1/?%s", c.baseURL, pq.Encode())
	if err := provider.GetJSON(ctx, c.http, c.Key(), pu, nil, &player); err != nil {
		// A private profile answers 403, which is an auth-class failure.
		return nil, err
	}
	for _, a := range player.PlayerStats.Achievements {
		if a.Achieved != 0 {
			unlocked[a.APIName] = a.UnlockTime
		}
	}

	percents := make(map[string]float64, len(defs))
	var global globalPercentagesResponse
	gq := url.Values{}
	gq.Set("gameid", appID)
	gu := fmt.Sprintf("%s/ISteamUserStats/GetGlobalAchievementPercentagesForApp/v2/?%s", c.baseURL, gq.Encode())
	if err := provider.GetJSON(ctx, c.http, c.Key(), gu, nil, &global); err == nil {
		for _, a := range global.AchievementPercentages.Achievements {
			percents[a.Name] = a.Percent
		}
	}
	// Global percentages are best-effort; the schema is authoritative.

	for _, def := range defs {
		ach := provider.Achievement{
			APIName:     def.Name,
			Name:        def.DisplayName,
			Description: def.Description,
			IconURL:     def.Icon,
			Hidden:      def.Hidden != 0,
			Percent:     percents[def.Name],
		}
		if ts, ok := unlocked[def.Name]; ok {
			ach.Unlocked = true
			if ts > 0 {
				t := time.Unix(ts, 0).UTC()
				ach.UnlockedAt = &t
			}
		}
		data.Achievements = append(data.Achievements, ach)
	}
	data.HasAchievements = len(data.Achievements) > 0
	return data, nil
}
