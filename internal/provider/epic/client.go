package epic

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"achievement-sync/internal/library"
	"achievement-sync/internal/provider"
)

const defaultBaseURL = "https://api.epicgames.dev"

// Client reads achievements from Epic Online Services with a bearer token
// obtained out of band.
type Client struct {
	baseURL   string
	token     string
	accountID string
	http      *http.Client
}

func New(token, accountID string) *Client {
	return &Client{
		baseURL:   defaultBaseURL,
		token:     token,
		accountID: accountID,
		http:      provider.DefaultHTTPClient(),
	}
}

// NewWithBaseURL is used by tests to point the client at a local server.
func NewWithBaseURL(baseURL, token, accountID string) *Client {
	c := New(token, accountID)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

func (c *Client) Key() string  { return "epic" }
func (c *Client) Name() string { return "Epic" }

func (c *Client) IsAuthenticated() bool {
	return c.token != "" && c.accountID != ""
}

func (c *Client) IsCapable(g library.Game) (bool, error) {
	return strings.EqualFold(g.Source, "epic"), nil
}

func (c *Client) IsAuthError(err error) bool      { return provider.IsAuthError(err) }
func (c *Client) IsTransientError(err error) bool { return provider.IsTransientError(err) }

type achievementsResponse struct {
	Data []struct {
		Achievement struct {
			Name        string `json:"name"`
			UnlockedDisplayName string `json:"unlockedDisplayName"`
			UnlockedDescription string `json:"unlockedDescription"`
			UnlockedIconURL     string `json:"unlockedIconUrl"`
			Hidden              bool   `json:"hidden"`
		} `json:"achievement"`
		Progress struct {
			Achieved   bool   `json:"achieved"`
			UnlockDate string `json:"unlockDate"`
		} `json:"progress"`
	} `json:"data"`
}

func (c *Client) FetchAchievements(ctx context.Context, g library.Game) (*provider.GameAchievementData, error) {
	sandboxID := provider.GameAppID(g)
	u := fmt.Sprintf("%s/epic/achievements/v1/%s/accounts/%s/achievements", c.baseURL, sandboxID, c.accountID)
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
	for _, a := range resp.Data {
		ach := provider.Achievement{
			APIName:     a.Achievement.Name,
			Name:        a.Achievement.UnlockedDisplayName,
			Description: a.Achievement.UnlockedDescription,
			IconURL:     a.Achievement.UnlockedIconURL,
			Hidden:      a.Achievement.Hidden,
		}
		if a.Progress.Achieved {
			ach.Unlocked = true
			if t, err := time.Parse(time.RFC3339, a.Progress.UnlockDate); err == nil {
				tt := t.UTC()
				ach.UnlockedAt = &tt
			}
		}
		data.Achievements = append(data.Achievements, ach)
	}
	data.HasAchievements = len(data.Achievements) > 0
	return data, nil
}
