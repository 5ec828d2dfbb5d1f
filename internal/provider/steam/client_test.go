package steam

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"achievement-sync/internal/library"
	"achievement-sync/internal/provider"
)

const (
	schemaBody = `{"game":{"availableGameStats":{"achievements":[
		{"name":"ACH_WIN","displayName":"Winner","description":"Win once","icon":"http://cdn/win.jpg","hidden":0},
		{"name":"ACH_SECRET","displayName":"Secret","description":"","icon":"http://cdn/secret.jpg","hidden":1}
	]}}}`
	playerBody = `{"playerstats":{"success":true,"achievements":[
		{"apiname":"ACH_WIN","achieved":1,"unlocktime":1717243200},
		{"apiname":"ACH_SECRET","achieved":0,"unlocktime":0}
	]}}`
	globalBody = `{"achievementpercentages":{"achievements":[
		{"name":"ACH_WIN","percent":61.3},
		{"name":"ACH_SECRET","percent":2.1}
	]}}`
)

func testServer(t *testing.T, playerStatus int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "GetSchemaForGame"):
			w.Write([]byte(schemaBody))
		case strings.Contains(r.URL.Path, "GetPlayerAchievements"):
			if playerStatus != http.StatusOK {
				w.WriteHeader(playerStatus)
				return
			}
			w.Write([]byte(playerBody))
		case strings.Contains(r.URL.Path, "GetGlobalAchievementPercentagesForApp"):
			w.Write([]byte(globalBody))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestFetchAchievements(t *testing.T) {
	srv := testServer(t, http.StatusOK)
	defer srv.Close()

	c := NewWithBaseURL(srv.URL, "test-key", "7656119")
	data, err := c.FetchAchievements(context.Background(), library.Game{ID: "steam:440", Source: "steam"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !data.HasAchievements || len(data.Achievements) != 2 {
		t.Fatalf("Expected 2 achievements, got %+v", data)
	}

	byName := map[string]provider.Achievement{}
	for _, a := range data.Achievements {
		byName[a.APIName] = a
	}
	win := byName["ACH_WIN"]
	if !win.Unlocked || win.UnlockedAt == nil {
		t.Errorf("Expected ACH_WIN unlocked with timestamp, got %+v", win)
	}
	if win.Percent != 61.3 {
		t.Errorf("Expected global percent 61.3, got %v", win.Percent)
	}
	secret := byName["ACH_SECRET"]
	if secret.Unlocked || !secret.Hidden {
		t.Errorf("Unexpected ACH_SECRET state: %+v", secret)
	}
}

func TestFetchAchievementsNoSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"game":{}}`))
	}))
	defer srv.Close()

	c := NewWithBaseURL(srv.URL, "test-key", "7656119")
	data, err := c.FetchAchievements(context.Background(), library.Game{ID: "steam:999", Source: "steam"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if data.HasAchievements || len(data.Achievements) != 0 {
		t.Errorf("Expected empty achievement set, got %+v", data)
	}
}

func TestFetchAchievementsPrivateProfile(t *testing.T) {
	srv := testServer(t, http.StatusForbidden)
	defer srv.Close()

	c := NewWithBaseURL(srv.URL, "test-key", "7656119")
	_, err := c.FetchAchievements(context.Background(), library.Game{ID: "steam:440", Source: "steam"})
	if err == nil {
		t.Fatal("Expected error for private profile")
	}
	if !c.IsAuthError(err) {
		t.Errorf("Expected 403 to classify as auth error, got %v", err)
	}
	var apiErr *provider.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden {
		t.Errorf("Expected APIError with status 403, got %v", err)
	}
}

func TestIsAuthenticated(t *testing.T) {
	if New("", "").IsAuthenticated() {
		t.Error("Expected unauthenticated without credentials")
	}
	if !New("key", "id").IsAuthenticated() {
		t.Error("Expected authenticated with credentials")
	}
}

func TestIsCapable(t *testing.T) {
	c := New("key", "id")
	if ok, err := c.IsCapable(library.Game{ID: "steam:440", Source: "steam"}); !ok || err != nil {
		t.Errorf("Expected capable for numeric steam id, got %v %v", ok, err)
	}
	if ok, _ := c.IsCapable(library.Game{ID: "gog:1", Source: "gog"}); ok {
		t.Error("Expected not capable for other sources")
	}
	if ok, err := c.IsCapable(library.Game{ID: "steam:abc", Source: "steam"}); ok || err == nil {
		t.Error("Expected capability error for non-numeric steam id")
	}
}
