package refresh

import (
	"strings"

	"achievement-sync/internal/library"
	"achievement-sync/internal/provider"
)

// Mode names a strategy for selecting which games are in scope for one run.
type Mode string

const (
	ModeRecent          Mode = "recent"
	ModeFull            Mode = "full"
	ModeInstalled       Mode = "installed"
	ModeFavorites       Mode = "favorites"
	ModeSingle          Mode = "single"
	ModeLibrarySelected Mode = "library_selected"
	ModeMissing         Mode = "missing"
	ModeCustom          Mode = "custom"
)

// ParseMode maps a mode key to a Mode, defaulting to Recent for unknown keys.
func ParseMode(key string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(key))) {
	case ModeRecent, ModeFull, ModeInstalled, ModeFavorites,
		ModeSingle, ModeLibrarySelected, ModeMissing, ModeCustom:
		return Mode(strings.ToLower(strings.TrimSpace(key)))
	default:
		return ModeRecent
	}
}

// CustomScope selects the candidate set for Custom mode.
type CustomScope string

const (
	ScopeAll             CustomScope = "all"
	ScopeInstalled       CustomScope = "installed"
	ScopeFavorites       CustomScope = "favorites"
	ScopeRecent          CustomScope = "recent"
	ScopeLibrarySelected CustomScope = "library_selected"
	ScopeMissing         CustomScope = "missing"
	ScopeExplicit        CustomScope = "explicit"
)

// CustomOptions is the caller-supplied scope for Custom mode.
type CustomOptions struct {
	Scope            CustomScope `json:"scope"`
	IncludeIDs       []string    `json:"include_ids,omitempty"`
	ExcludeIDs       []string    `json:"exclude_ids,omitempty"`
	BypassExclusions bool        `json:"bypass_exclusions"`
	RecentCount      int         `json:"recent_count,omitempty"`
}

// Request is the input descriptor for one refresh. At most one of GameIDs,
// Custom, ModeKey and Mode is authoritative; normalization picks the most
// specific one present and defaults to Recent.
type Request struct {
	GameIDs []string       `json:"game_ids,omitempty"`
	Mode    Mode           `json:"mode,omitempty"`
	ModeKey string         `json:"mode_key,omitempty"`
	Custom  *CustomOptions `json:"custom,omitempty"`
}

// normalize resolves the authoritative scope of a request.
func (r Request) normalize() Request {
	switch {
	case len(r.GameIDs) == 1:
		return Request{GameIDs: r.GameIDs, Mode: ModeSingle}
	case len(r.GameIDs) > 1:
		return Request{GameIDs: r.GameIDs, Mode: ModeLibrarySelected}
	case r.Custom != nil:
		return Request{Mode: ModeCustom, Custom: r.Custom}
	case r.ModeKey != "":
		return Request{Mode: ParseMode(r.ModeKey)}
	case r.Mode != "":
		return Request{Mode: ParseMode(string(r.Mode))}
	default:
		return Request{Mode: ModeRecent}
	}
}

// Options is the fully resolved scope: request intent merged with persisted
// user settings.
type Options struct {
	Mode             Mode
	GameIDs          []string
	IncludeUnplayed  bool
	BypassExclusions bool
	RecentCount      int
	Custom           *CustomOptions
}

// Payload is the aggregate result of one provider plan, merged additively
// across all plans into the run summary.
type Payload struct {
	GamesRefreshed           int  `json:"games_refreshed"`
	GamesWithAchievements    int  `json:"games_with_achievements"`
	GamesWithoutAchievements int  `json:"games_without_achievements"`
	AuthRequired             bool `json:"auth_required"`
}

func (p *Payload) merge(other Payload) {
	p.GamesRefreshed += other.GamesRefreshed
	p.GamesWithAchievements += other.GamesWithAchievements
	p.GamesWithoutAchievements += other.GamesWithoutAchievements
	p.AuthRequired = p.AuthRequired || other.AuthRequired
}

// Plan pairs one provider with the ordered games it is responsible for in
// this run.
type Plan struct {
	Provider provider.Provider
	Games    []library.Game
}
