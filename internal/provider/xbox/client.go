package xbox

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"achievement-sync/internal/library"
	"achievement-sync/internal/provider"
)

const defaultBaseURL = "https://achievements.xboxlive.com"

// Client reads the player's achievement list from the Xbox Live achievements
// service using an XSTS token obtained out of band.
type Client struct {
	baseURL string
	token   string
	xuid    string
	http    *http.Client
}

func New(token, xuid string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		token:   token,
		xuid:    xuid,
		http:    provider.DefaultHTTPClient(),
	}
}

// NewWithBaseURL is used by tests to point the client at a local server.
func NewWithBaseURL(baseURL, token, xuid string) *Client {
	c := New(token, xuid)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

func (c *Client) Key() string  { return "xbox" }
func (c *Client) Name() string { return "Xbox" }

func (c *Client) IsAuthenticated() bool {
	return c.token != "" && c.xuid != ""
}

func (c *Client) IsCapable(g library.Game) (bool, error) {
	return strings.EqualFold(g.Source, "xbox"), nil
}

func (c *Client) IsAuthError(err error) bool      { return provider.IsAuthError(err) }
func (c *Client) IsTransientError(err error) bool { return provider.IsTransientError(err) }

type achievementsResponse struct {
	Achievements []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		IsSecret    bool   `json:"isSecret"`
		ProgressState string `json:"progressState"` // "Achieved" | "NotStarted" | "InProgress"
		Progression struct {
			TimeUnlocked string `json:"timeUnlocked"`
		} `json:"progression"`
		MediaAssets []struct {
			Type string `json:"type"`
			URL  string `json:"url"`
		} `json:"mediaAssets"`
		Rarity struct {
			CurrentPercentage float64 `json:"currentPercentage"`
		} `json:"rarity"`
	} `json:"achievements"`
}

func (c *Client) FetchAchievements(ctx context.Context, g library.Game) (*provider.GameAchievementData, error) {
	titleID := provider.GameAppID(g)
	u := fmt.Sprintf("%s/users/xuid(%s)/achievements?titleId=%s&maxItems=1000", c.baseURL, c.xuid, titleID)
	headers := map[string]string{
		"Authorization":        c.token,
		"x-xbl-contract-version": "2",
	}

	var resp achievementsResponse
	if err := provider.GetJSON(ctx, c.http, c.Key(), u, headers, &resp); err != nil {
		return nil, err
	}

	data := &provider.GameAchievementData{
		GameID:      g.ID,
		Provider:    c.Key(),
		LastUpdated: time.Now().UTC(),
	}
	for _, a := range resp.Achievements {
		ach := provider.Achievement{
			APIName:     a.ID,
			Name:        a.Name,
			Description: a.Description,
			Hidden:      a.IsSecret,
			Percent:     a.Rarity.CurrentPercentage,
		}
		for _, asset := range a.MediaAssets {
			if asset.Type == "Icon" {
				ach.IconURL = asset.URL
				break
			}
		}
		if a.ProgressState == "Achieved" {
			ach.Unlocked = true
			if t, err := time.Parse(time.RFC3339, a.Progression.TimeUnlocked); err == nil {
				tt := t.UTC()
				ach.UnlockedAt = &tt
			}
		}
		data.Achievements = append(data.Achievements, ach)
	}
	data.HasAchievements = len(data.Achievements) > 0
	return data, nil
}
