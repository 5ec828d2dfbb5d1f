package settings

import (
	"path/filepath"
	"testing"

	"achievement-sync/internal/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	if err := db.MigrateUp("sqlite://" + path); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, err := db.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewStore(sqlDB)
}

func TestGetValueDefault(t *testing.T) {
	store := newTestStore(t)
	if got := store.GetValue("unset", "fallback"); got != "fallback" {
		t.Errorf("Expected fallback, got %q", got)
	}
}

func TestSetAndGetValue(t *testing.T) {
	store := newTestStore(t)
	if err := store.SetValue("k", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := store.GetValue("k", ""); got != "v1" {
		t.Errorf("Expected v1, got %q", got)
	}
	// Upsert overwrites.
	if err := store.SetValue("k", "v2"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := store.GetValue("k", ""); got != "v2" {
		t.Errorf("Expected v2, got %q", got)
	}
}

func TestGetBoolAndInt(t *testing.T) {
	store := newTestStore(t)
	store.SetValue("flag", "true")
	store.SetValue("num", "17")
	store.SetValue("junk", "not a number")

	if !store.GetBool("flag", false) {
		t.Error("Expected true")
	}
	if store.GetBool("missing", false) {
		t.Error("Expected default false")
	}
	if got := store.GetInt("num", 0); got != 17 {
		t.Errorf("Expected 17, got %d", got)
	}
	if got := store.GetInt("junk", 5); got != 5 {
		t.Errorf("Expected default for junk value, got %d", got)
	}
}

func TestRecentCountRejectsNonPositive(t *testing.T) {
	store := newTestStore(t)
	store.SetValue(KeyRecentCount, "0")
	if got := store.RecentCount(10); got != 10 {
		t.Errorf("Expected default for non-positive stored value, got %d", got)
	}
	store.SetValue(KeyRecentCount, "25")
	if got := store.RecentCount(10); got != 25 {
		t.Errorf("Expected 25, got %d", got)
	}
}

func TestProviderEnabledLifecycle(t *testing.T) {
	store := newTestStore(t)

	if store.HasProviderSetting("steam") {
		t.Error("Expected no explicit setting initially")
	}
	if !store.ProviderEnabled("steam", true) {
		t.Error("Expected default true when unset")
	}

	if err := store.EnableProvider("steam"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if !store.HasProviderSetting("steam") {
		t.Error("Expected explicit setting after enable")
	}
	if !store.ProviderEnabled("steam", false) {
		t.Error("Expected enabled after EnableProvider")
	}

	store.SetValue("provider_enabled_steam", "false")
	if store.ProviderEnabled("steam", true) {
		t.Error("Expected disabled after explicit false")
	}
}

func TestExcludedGamesRoundTrip(t *testing.T) {
	store := newTestStore(t)

	if got := store.ExcludedGames(); len(got) != 0 {
		t.Errorf("Expected empty set initially, got %v", got)
	}

	if err := store.SetExcludedGames([]string{"g1", "g2"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	got := store.ExcludedGames()
	if len(got) != 2 || !got["g1"] || !got["g2"] {
		t.Errorf("Unexpected exclusion set: %v", got)
	}
}

func TestExcludedGamesMalformedIgnored(t *testing.T) {
	store := newTestStore(t)
	store.SetValue(KeyExcludedGames, "{not json")
	if got := store.ExcludedGames(); len(got) != 0 {
		t.Errorf("Expected malformed list to be ignored, got %v", got)
	}
}
