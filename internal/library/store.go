package library

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"achievement-sync/internal/logging"
)

// Store persists the game library pushed by the host application.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Snapshot loads the full library in stable library order (name, then id).
func (s *Store) Snapshot() (*Snapshot, error) {
	rows, err := s.db.Query(`
		SELECT id, name, source, platform, last_activity, playtime_min,
		       is_installed, favorite, hidden, icon_url, icon_path
		FROM game
		ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("library: snapshot query: %w", err)
	}
	defer rows.Close()

	var games []Game
	for rows.Next() {
		var g Game
		var lastActivity sql.NullInt64
		if err := rows.Scan(&g.ID, &g.Name, &g.Source, &g.Platform, &lastActivity,
			&g.PlaytimeMin, &g.IsInstalled, &g.Favorite, &g.Hidden, &g.IconURL, &g.IconPath); err != nil {
			return nil, fmt.Errorf("library: scan game: %w", err)
		}
		if lastActivity.Valid {
			t := time.UnixMilli(lastActivity.Int64)
			g.LastActivity = &t
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return NewSnapshot(games), nil
}

// UpsertGames inserts or updates the given games in one transaction.
func (s *Store) UpsertGames(games []Game) error {
	if len(games) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("library: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO game (id, name, source, platform, last_activity, playtime_min,
		                  is_installed, favorite, hidden, icon_url, icon_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			source = excluded.source,
			platform = excluded.platform,
			last_activity = COALESCE(excluded.last_activity, game.last_activity),
			playtime_min = excluded.playtime_min,
			is_installed = excluded.is_installed,
			favorite = excluded.favorite,
			hidden = excluded.hidden,
			icon_url = COALESCE(NULLIF(excluded.icon_url, ''), game.icon_url),
			icon_path = COALESCE(NULLIF(excluded.icon_path, ''), game.icon_path),
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("library: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, g := range games {
		if strings.TrimSpace(g.ID) == "" {
			continue
		}
		var lastActivity any
		if g.LastActivity != nil {
			lastActivity = g.LastActivity.UnixMilli()
		}
		if _, err := stmt.Exec(g.ID, g.Name, g.Source, g.Platform, lastActivity,
			g.PlaytimeMin, g.IsInstalled, g.Favorite, g.Hidden, g.IconURL, g.IconPath); err != nil {
			logging.Debug("library: failed to upsert game", "game_id", g.ID, "error", err)
			continue
		}
	}
	return tx.Commit()
}

// ReplaceLibrary upserts the given games and prunes entries absent from the
// import, mirroring what the host library currently contains.
func (s *Store) ReplaceLibrary(games []Game) (pruned int, err error) {
	existing, err := s.allIDs()
	if err != nil {
		// Proceed without pruning rather than failing the import.
		logging.Debug("library: failed to load existing ids, pruning disabled", "error", err)
		existing = nil
	}
	if err := s.UpsertGames(games); err != nil {
		return 0, err
	}
	if existing == nil {
		return 0, nil
	}
	for _, g := range games {
		delete(existing, g.ID)
	}
	for id := range existing {
		if _, err := s.db.Exec(`DELETE FROM game WHERE id = ?`, id); err != nil {
			logging.Debug("library: failed to prune game", "game_id", id, "error", err)
			continue
		}
		pruned++
	}
	return pruned, nil
}

// TouchActivity records a launch timestamp for a game.
func (s *Store) TouchActivity(id string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE game SET last_activity = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		at.UnixMilli(), id)
	return err
}

func (s *Store) allIDs() (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT id FROM game`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}
