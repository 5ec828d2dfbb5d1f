package provider

import (
	"context"
	"testing"

	"achievement-sync/internal/library"
)

type stubProvider struct {
	key string
}

func (p *stubProvider) Key() string           { return p.key }
func (p *stubProvider) Name() string          { return p.key }
func (p *stubProvider) IsAuthenticated() bool { return true }

func (p *stubProvider) IsCapable(library.Game) (bool, error) { return true, nil }

func (p *stubProvider) FetchAchievements(context.Context, library.Game) (*GameAchievementData, error) {
	return nil, nil
}

func (p *stubProvider) IsAuthError(error) bool      { return false }
func (p *stubProvider) IsTransientError(error) bool { return false }

func TestRegisterReplacesKeepingPosition(t *testing.T) {
	r := NewRegistry()
	first := &stubProvider{key: "steam"}
	second := &stubProvider{key: "gog"}
	r.Register(first)
	r.Register(second)

	replacement := &stubProvider{key: "steam"}
	r.Register(replacement)

	all := r.All()
	if len(all) != 2 {
		t.Fatalf("Expected 2 providers, got %d", len(all))
	}
	if all[0] != Provider(replacement) {
		t.Error("Expected replacement to keep the original position")
	}
	got, _ := r.Get("steam")
	if got != Provider(replacement) {
		t.Error("Expected lookup to return the replacement")
	}
}

func TestGameAppID(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"steam:440", "440"},
		{"retro:515", "515"},
		{"440", "440"},
		{"epic:fn:live", "fn:live"},
		{"", ""},
	}
	for _, tt := range tests {
		g := library.Game{ID: tt.id}
		if got := GameAppID(g); got != tt.want {
			t.Errorf("GameAppID(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}
