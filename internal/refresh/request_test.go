package refresh

import "testing"

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"recent", ModeRecent},
		{"FULL", ModeFull},
		{" installed ", ModeInstalled},
		{"favorites", ModeFavorites},
		{"single", ModeSingle},
		{"library_selected", ModeLibrarySelected},
		{"missing", ModeMissing},
		{"custom", ModeCustom},
		{"", ModeRecent},
		{"bogus", ModeRecent},
	}
	for _, tt := range tests {
		if got := ParseMode(tt.in); got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeSingleGame(t *testing.T) {
	r := Request{GameIDs: []string{"g1"}, ModeKey: "full"}.normalize()
	if r.Mode != ModeSingle {
		t.Errorf("Expected Single, got %q", r.Mode)
	}
	if len(r.GameIDs) != 1 || r.GameIDs[0] != "g1" {
		t.Errorf("Expected game ids preserved, got %v", r.GameIDs)
	}
}

func TestNormalizeMultipleGames(t *testing.T) {
	r := Request{GameIDs: []string{"g1", "g2"}}.normalize()
	if r.Mode != ModeLibrarySelected {
		t.Errorf("Expected LibrarySelected, got %q", r.Mode)
	}
}

func TestNormalizeCustomWins(t *testing.T) {
	r := Request{Custom: &CustomOptions{Scope: ScopeInstalled}, ModeKey: "full"}.normalize()
	if r.Mode != ModeCustom {
		t.Errorf("Expected Custom, got %q", r.Mode)
	}
	if r.Custom == nil || r.Custom.Scope != ScopeInstalled {
		t.Errorf("Expected custom options preserved, got %+v", r.Custom)
	}
}

func TestNormalizeModeKey(t *testing.T) {
	r := Request{ModeKey: "missing"}.normalize()
	if r.Mode != ModeMissing {
		t.Errorf("Expected Missing, got %q", r.Mode)
	}
}

func TestNormalizeEmptyDefaultsRecent(t *testing.T) {
	r := Request{}.normalize()
	if r.Mode != ModeRecent {
		t.Errorf("Expected Recent, got %q", r.Mode)
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	req := Request{GameIDs: []string{"g1", "g2"}, ModeKey: "favorites"}
	first := req.normalize()
	second := req.normalize()
	if first.Mode != second.Mode || len(first.GameIDs) != len(second.GameIDs) {
		t.Errorf("Normalization not deterministic: %+v vs %+v", first, second)
	}
}

func TestPayloadMerge(t *testing.T) {
	a := Payload{GamesRefreshed: 2, GamesWithAchievements: 1, GamesWithoutAchievements: 1}
	b := Payload{GamesRefreshed: 3, GamesWithAchievements: 3, AuthRequired: true}
	a.merge(b)
	if a.GamesRefreshed != 5 || a.GamesWithAchievements != 4 || a.GamesWithoutAchievements != 1 {
		t.Errorf("Unexpected merged payload: %+v", a)
	}
	if !a.AuthRequired {
		t.Error("Expected AuthRequired to stick after merge")
	}
	a.merge(Payload{})
	if !a.AuthRequired {
		t.Error("AuthRequired must never be cleared by a later merge")
	}
}
