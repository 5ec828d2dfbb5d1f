package tasks

import (
	"context"
	"time"

	"achievement-sync/internal/config"
	"achievement-sync/internal/logging"
	"achievement-sync/internal/refresh"
	"achievement-sync/internal/settings"
)

// StartAutoRefreshLoop launches a background ticker that periodically runs a
// Recent refresh. The interval comes from settings with the config value as
// fallback and is re-read each cycle, so changing it takes effect without a
// restart. Interval <= 0 disables the loop.
func StartAutoRefreshLoop(ctx context.Context, o *refresh.Orchestrator, store *settings.Store, cfg config.Config) {
	initial := currentInterval(store, cfg)
	if initial <= 0 {
		logging.Debug("auto refresh loop disabled (interval <= 0)")
		return
	}
	logging.Debug("starting auto refresh loop", "interval", initial)

	go func() {
		ticker := time.NewTicker(initial)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			interval := currentInterval(store, cfg)
			if interval <= 0 {
				logging.Debug("auto refresh loop stopped (interval set to 0)")
				return
			}
			ticker.Reset(interval)

			runAutoRefresh(ctx, o)
		}
	}()
}

func runAutoRefresh(ctx context.Context, o *refresh.Orchestrator) {
	if o.IsRunning() {
		logging.Debug("auto refresh skipped: a refresh is already running")
		return
	}
	if !o.ValidateCanStartRefresh() {
		logging.Debug("auto refresh skipped: no enabled, authenticated providers")
		return
	}

	start := time.Now()
	final := o.ExecuteRefresh(ctx, refresh.Request{Mode: refresh.ModeRecent})
	logging.Debug("auto refresh finished",
		"duration", time.Since(start).Round(time.Millisecond),
		"canceled", final.Canceled,
		"message", final.Message)
}

func currentInterval(store *settings.Store, cfg config.Config) time.Duration {
	return time.Duration(store.AutoRefreshSec(cfg.AutoRefreshSec)) * time.Second
}
