package gog

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"achievement-sync/internal/library"
	"achievement-sync/internal/provider"
)

const defaultBaseURL = "https://gameplay.gog.com"

// Client reads achievements from the GOG gameplay service with an OAuth
// bearer token obtained out of band.
type Client struct {
	baseURL string
	token   string
	userID  string
	http    *http.Client
}

func New(token, userID string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		token:   token,
		userID:  userID,
		http:    provider.DefaultHTTPClient(),
	}
}

// NewWithBaseURL is used by tests to point the client at a local server.
func NewWithBaseURL(baseURL, token, userID string) *Client {
	c := New(token, userID)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

func (c *Client) Key() string  { return "gog" }
func (c *Client) Name() string { return "GOG" }

func (c *Client) IsAuthenticated() bool {
	return c.token != "" && c.userID != ""
}

func (c *Client) IsCapable(g library.Game) (bool, error) {
	return strings.EqualFold(g.Source, "gog"), nil
}

func (c *Client) IsAuthError(err error) bool      { return provider.IsAuthError(err) }
func (c *Client) IsTransientError(err error) bool { return provider.IsTransientError(err) }

type achievementsResponse struct {
	Items []struct {
		AchievementKey  string  `json:"achievement_key"`
		Name            string  `json:"name"`
		Description     string  `json:"description"`
		ImageURLUnlocked string `json:"image_url_unlocked"`
		Visible         bool    `json:"visible"`
		DateUnlocked    *string `json:"date_unlocked"`
		Rarity          float64 `json:"rarity"`
	} `json:"items"`
	TotalCount int `json:"total_count"`
}

func (c *Client) FetchAchievements(ctx context.Context, g library.Game) (*provider.GameAchievementData, error) {
	u := fmt.Sprintf("%s/clients/%s/users/%s/achievements", c.baseURL, provider.GameAppID(g), c.userID)
	headers := map[string]string{"Authorization": "Bearer " + c.token}

	var resp achievementsResponse
	if err := provider.GetJSON(ctx, c.http, c.Key(), u, headers, &resp); err != nil {
		return nil, err
	}

	data := &provider.GameAchievementData{
		GameID:      g.ID,
		Provider:    c.Key(),
		LastUpdated: time.Now().UTC(),
	}
	for _, a := range resp.Items {
		ach := provider.Achievement{
			APIName:     a.AchievementKey,
			Name:        a.Name,
			Description: a.Description,
			IconURL:     a.ImageURLUnlocked,
			Hidden:      !a.Visible,
			Percent:     a.Rarity,
		}
		if a.DateUnlocked != nil && *a.DateUnlocked != "" {
			ach.Unlocked = true
			if t, err := time.Parse(time.RFC3339, *a.DateUnlocked); err == nil {
				tt := t.UTC()
				ach.UnlockedAt = &tt
			}
		}
		data.Achievements = append(data.Achievements, ach)
	}
	data.HasAchievements = len(data.Achievements) > 0
	return data, nil
}
