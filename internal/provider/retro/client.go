package retro

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

const defaultBaseURL = "https://retroachievements.org"

// Client talks to the RetroAchievements web API.
type Client struct {
	baseURL string
	user    string
	apiKey  string
	http    *http.Client
}

func New(user, apiKey string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		user:    user,
		apiKey:  apiKey,
		http:    provider.DefaultHTTPClient(),
	}
}

// NewWithBaseURL is used by tests to point the client at a local server.
func NewWithBaseURL(baseURL, user, apiKey string) *Client {
	c := New(user, apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

func (c *Client) Key() string  { return "retro" }
func (c *Client) Name() string { return "RetroAchievements" }

func (c *Client) IsAuthenticated() bool {
	return c.user != "" && c.apiKey != ""
}

func (c *Client) IsCapable(g library.Game) (bool, error) {
	if !strings.EqualFold(g.Source, "retro") {
		return false, nil
	}
	if _, err := strconv.Atoi(provider.GameAppID(g)); err != nil {
		return false, fmt.Errorf("retro: game %s has no numeric id", g.ID)
	}
	return true, nil
}

func (c *Client) IsAuthError(err error) bool      { return provider.IsAuthError(err) }
func (c *Client) IsTransientError(err error) bool { return provider.IsTransientError(err) }

type gameProgressResponse struct {
	Achievements map[string]struct {
		Title       string `json:"Title"`
		Description string `json:"Description"`
		BadgeName   string `json:"BadgeName"`
		DateEarned  string `json:"DateEarned"`
	} `json:"Achievements"`
	NumAchievements int `json:"NumAchievements"`
}

func (c *Client) FetchAchievements(ctx context.Context, g library.Game) (*provider.GameAchievementData, error) {
	q := url.Values{}
	q.Set("z", c.user)
	q.Set("y", c.apiKey)
	q.Set("u", c.user)
	q.Set("g", provider.GameAppID(g))
	u := fmt.Sprintf("%s/API/API_GetGameInfoAndUserProgress.php?%s", c.baseURL, q.Encode())

	var resp gameProgressResponse
	if err := provider.GetJSON(ctx, c.http, c.Key(), u, nil, &resp); err != nil {
		return nil, err
	}

	data := &provider.GameAchievementData{
		GameID:      g.ID,
		Provider:    c.Key(),
		LastUpdated: time.Now().UTC(),
	}
	for apiName, a := range resp.Achievements {
		ach := provider.Achievement{
			APIName:     apiName,
			Name:        a.Title,
			Description: a.Description,
		}
		if a.BadgeName != "" {
			ach.IconURL = fmt.Sprintf("%s/Badge/%s.png", c.baseURL, a.BadgeName)
		}
		if a.DateEarned != "" {
			ach.Unlocked = true
			if t, err := time.Parse("2006-01-02 15:04:05", a.DateEarned); err == nil {
				tt := t.UTC()
				ach.UnlockedAt = &tt
			}
		}
		data.Achievements = append(data.Achievements, ach)
	}
	data.HasAchievements = len(data.Achievements) > 0
	return data, nil
}
