package refresh

import (
	"context"
	"errors"
	"time"

	"achievement-sync/internal/achievecache"
	"achievement-sync/internal/library"
	"achievement-sync/internal/logging"
	"achievement-sync/internal/provider"
	"achievement-sync/internal/ratelimit"
)

// consecutiveErrorThreshold is how many back-to-back per-game failures a
// provider loop tolerates before it starts pausing between games.
const consecutiveErrorThreshold = 3

// PipelineHooks are the per-game callbacks driving one provider's loop.
type PipelineHooks struct {
	// OnGameStarting fires before a game is processed.
	OnGameStarting func(g library.Game)
	// Process fetches and persists one game's achievement data.
	Process func(ctx context.Context, g library.Game) (*provider.GameAchievementData, error)
	// OnGameCompleted fires with the result, or nil when the game was
	// skipped after an auth-required trigger (counters stay consistent).
	OnGameCompleted func(g library.Game, data *provider.GameAchievementData)
	// OnGameError fires for isolated per-game failures.
	OnGameError func(g library.Game, err error)
	// IsAuthRequired classifies a Process failure as lost authentication.
	IsAuthRequired func(err error) bool
}

// RunProviderGames processes games in order against one provider.
//
// A single bad game must not abort a multi-thousand-game run, so ordinary
// failures are isolated and only slow the loop down once they streak. A
// provider that has lost authentication entirely stops being called for the
// rest of the run, and a durable-write failure is different in kind from a
// fetch failure: it aborts the loop. Cancellation propagates immediately.
func RunProviderGames(ctx context.Context, games []library.Game, hooks PipelineHooks, limiter *ratelimit.Limiter, delayBetweenGames time.Duration) (Payload, error) {
	var payload Payload
	consecutiveErrors := 0
	skipRemaining := false

	for _, g := range games {
		if err := ctx.Err(); err != nil {
			return payload, err
		}

		if skipRemaining {
			// Auth is gone for this provider: stop wasting calls but keep
			// completion bookkeeping consistent.
			if hooks.OnGameCompleted != nil {
				hooks.OnGameCompleted(g, nil)
			}
			continue
		}

		if hooks.OnGameStarting != nil {
			hooks.OnGameStarting(g)
		}

		data, err := hooks.Process(ctx, g)
		if err != nil {
			if isCancellation(ctx, err) {
				return payload, err
			}
			var writeErr *achievecache.WriteError
			if errors.As(err, &writeErr) {
				// A failed durable write is not a transient condition worth
				// retrying past.
				return payload, err
			}
			if hooks.IsAuthRequired != nil && hooks.IsAuthRequired(err) {
				payload.AuthRequired = true
				skipRemaining = true
				logging.Warn("provider lost authentication, skipping remaining games",
					"game_id", g.ID, "error", err)
				if hooks.OnGameCompleted != nil {
					hooks.OnGameCompleted(g, nil)
				}
				continue
			}

			consecutiveErrors++
			if hooks.OnGameError != nil {
				hooks.OnGameError(g, err)
			}
			if consecutiveErrors >= consecutiveErrorThreshold {
				if derr := limiter.DelayAfterError(ctx, consecutiveErrors); derr != nil {
					return payload, derr
				}
			}
			continue
		}

		if hooks.OnGameCompleted != nil {
			hooks.OnGameCompleted(g, data)
		}
		payload.GamesRefreshed++
		if data != nil && data.HasAchievements {
			payload.GamesWithAchievements++
		} else {
			payload.GamesWithoutAchievements++
		}
		consecutiveErrors = 0

		if delayBetweenGames > 0 {
			if derr := ratelimit.Sleep(ctx, delayBetweenGames); derr != nil {
				return payload, derr
			}
		}
	}

	return payload, nil
}

func isCancellation(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
