package library

import "time"

// Game is one entry of the user's game library as pushed by the host
// application. LastActivity is nil for games that were never launched.
type Game struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Source       string     `json:"source"`   // "steam", "xbox", "gog", "epic", "retro", ...
	Platform     string     `json:"platform"` // e.g. "PC (Windows)", "SNES"
	LastActivity *time.Time `json:"last_activity,omitempty"`
	PlaytimeMin  int64      `json:"playtime_min"`
	IsInstalled  bool       `json:"is_installed"`
	Favorite     bool       `json:"favorite"`
	Hidden       bool       `json:"hidden"`
	IconURL      string     `json:"icon_url,omitempty"`
	IconPath     string     `json:"icon_path,omitempty"`
}

// Snapshot is an immutable view of the library used by mode resolution, so a
// long refresh never observes a half-imported library.
type Snapshot struct {
	Games []Game
	byID  map[string]int
}

func NewSnapshot(games []Game) *Snapshot {
	s := &Snapshot{Games: games, byID: make(map[string]int, len(games))}
	for i, g := range games {
		s.byID[g.ID] = i
	}
	return s
}

// Get returns the game with the given id and whether it exists.
func (s *Snapshot) Get(id string) (Game, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Game{}, false
	}
	return s.Games[i], true
}

func (s *Snapshot) Len() int { return len(s.Games) }
