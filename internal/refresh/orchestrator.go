package refresh

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"achievement-sync/internal/achievecache"
	"achievement-sync/internal/library"
	"achievement-sync/internal/logging"
	"achievement-sync/internal/progress"
	"achievement-sync/internal/provider"
	"achievement-sync/internal/ratelimit"
)

// LibrarySource supplies an immutable view of the game library.
type LibrarySource interface {
	Snapshot() (*library.Snapshot, error)
}

// CacheStore is the durable-write collaborator. SaveGameData failures become
// the never-swallowed persistence error class.
type CacheStore interface {
	SaveGameData(gameID string, data *provider.GameAchievementData) achievecache.WriteResult
	GetCachedGameIDs() ([]string, error)
	Invalidate(forced bool)
}

// IconCache resolves achievement icons during per-game post-processing.
// Failures degrade gracefully.
type IconCache interface {
	GetOrDownloadIcon(ctx context.Context, url string, size int, scopeID string) (string, error)
}

// Settings exposes the persisted user preferences the orchestrator reads,
// plus the auto-enable write-back for newly detected providers.
type Settings interface {
	RecentCount(def int) int
	ParallelProviders(def bool) bool
	IncludeUnplayed(def bool) bool
	ExcludedGames() map[string]bool
	ProviderEnabled(providerKey string, def bool) bool
	HasProviderSetting(providerKey string) bool
	EnableProvider(providerKey string) error
}

// Config carries the orchestration defaults; persisted settings override the
// refresh-behavior ones per run.
type Config struct {
	RecentCountDefault     int
	ParallelDefault        bool
	IncludeUnplayedDefault bool
	GameDelay              time.Duration
	IconSize               int
}

// runState is the process-wide single-active-run record, guarded by the
// orchestrator mutex and mutated only through begin/end.
type runState struct {
	cancel       context.CancelFunc
	operationID  string
	mode         Mode
	singleGameID string
	req          Request
}

type runCounters struct {
	processed atomic.Int64
	saved     atomic.Int64
}

// Orchestrator owns the single-active-run invariant, resolves which games are
// in scope for a refresh mode, fans work out per capable provider, and merges
// the per-provider summaries.
type Orchestrator struct {
	registry *provider.Registry
	lib      LibrarySource
	cache    CacheStore
	icons    IconCache
	settings Settings
	reporter *progress.Reporter
	limiter  *ratelimit.Limiter
	cfg      Config

	mu     sync.Mutex
	active *runState
}

func NewOrchestrator(registry *provider.Registry, lib LibrarySource, cache CacheStore, icons IconCache, settings Settings, reporter *progress.Reporter, limiter *ratelimit.Limiter, cfg Config) *Orchestrator {
	if cfg.RecentCountDefault <= 0 {
		cfg.RecentCountDefault = 10
	}
	if cfg.IconSize <= 0 {
		cfg.IconSize = 64
	}
	return &Orchestrator{
		registry: registry,
		lib:      lib,
		cache:    cache,
		icons:    icons,
		settings: settings,
		reporter: reporter,
		limiter:  limiter,
		cfg:      cfg,
	}
}

// Reporter exposes the progress channel for subscribers.
func (o *Orchestrator) Reporter() *progress.Reporter { return o.reporter }

// IsRunning reports whether a refresh run is currently active.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active != nil
}

// LastProgress returns the most recently emitted report.
func (o *Orchestrator) LastProgress() (progress.Report, bool) {
	return o.reporter.Last()
}

// CancelCurrentRun signals cooperative cancellation of the active run, if
// any. In-flight work is not forcibly terminated; the per-game loop and every
// suspension point honor the token.
func (o *Orchestrator) CancelCurrentRun() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil {
		o.active.cancel()
	}
}

// ValidateCanStartRefresh reports whether at least one registered provider is
// both enabled and authenticated. Used as a pre-flight gate before showing
// any progress surface.
func (o *Orchestrator) ValidateCanStartRefresh() bool {
	return len(o.enabledProviders()) > 0
}

// ExecuteRefresh runs one refresh to completion, firing progress events along
// the way, and returns the terminal report. Expected conditions (no
// authenticated provider, empty scope, run already active) are reported, not
// errors. The returned report for a rejected request is the active run's
// current status.
func (o *Orchestrator) ExecuteRefresh(ctx context.Context, req Request) progress.Report {
	req = req.normalize()

	st, runCtx, ok := o.tryBeginRun(ctx, req)
	if !ok {
		last, found := o.reporter.Last()
		if !found {
			last = progress.Report{Message: "An achievement refresh is already running"}
		}
		// A snapshot re-emit must not disturb the active run's throttling.
		o.reporter.Reemit(last)
		return last
	}

	final := o.runGuarded(runCtx, st)

	// Teardown strictly before the terminal report: observers checking
	// IsRunning see false by the time they receive it.
	o.endRun(st)
	o.reporter.EmitNow(final)
	return final
}

func (o *Orchestrator) tryBeginRun(ctx context.Context, req Request) (*runState, context.Context, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil {
		return nil, nil, false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	st := &runState{
		cancel:      cancel,
		operationID: ulid.Make().String(),
		mode:        req.Mode,
		req:         req,
	}
	if req.Mode == ModeSingle && len(req.GameIDs) == 1 {
		st.singleGameID = req.GameIDs[0]
	}
	o.active = st
	return st, runCtx, true
}

func (o *Orchestrator) endRun(st *runState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st.cancel()
	if o.active == st {
		o.active = nil
	}
}

func (o *Orchestrator) runGuarded(ctx context.Context, st *runState) (final progress.Report) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error("achievement refresh panicked", "operation_id", st.operationID, "panic", rec)
			final = o.terminal(st, "Achievement refresh failed", 0, 0, false)
		}
	}()
	return o.run(ctx, st)
}

func (o *Orchestrator) run(ctx context.Context, st *runState) progress.Report {
	o.autoEnableProviders()

	if !o.ValidateCanStartRefresh() {
		logging.Info("refresh skipped: no enabled, authenticated providers", "operation_id", st.operationID)
		return o.terminal(st, "No achievement providers are authenticated", 0, 0, false)
	}

	snap, err := o.lib.Snapshot()
	if err != nil {
		logging.Error("failed to load library snapshot", "operation_id", st.operationID, "error", err)
		return o.terminal(st, "Achievement refresh failed", 0, 0, false)
	}

	opts := o.resolveOptions(st.req)
	targets := o.resolveTargets(snap, opts)
	if len(targets) == 0 {
		logging.Info("refresh resolved an empty target set", "operation_id", st.operationID, "mode", st.mode)
		return o.terminal(st, "No games to refresh", 0, 0, false)
	}

	plans := o.buildPlans(targets)
	if len(plans) == 0 {
		return o.terminal(st, "No capable providers for the selected games", 0, 0, false)
	}

	totalSteps := 0
	for _, plan := range plans {
		totalSteps += len(plan.Games)
	}

	counters := &runCounters{}
	o.reporter.Publish(progress.Report{
		Message:     fmt.Sprintf("Refreshing achievements for %d games...", totalSteps),
		TotalSteps:  totalSteps,
		OperationID: st.operationID,
		Mode:        string(st.mode),
	})

	payload, err := o.executePlans(ctx, st, plans, counters, totalSteps)
	o.cache.Invalidate(true)
	logging.Debug("refresh run finished",
		"operation_id", st.operationID,
		"processed", counters.processed.Load(),
		"saved", counters.saved.Load())

	step := int(counters.processed.Load())
	switch {
	case err == nil:
		msg := fmt.Sprintf("Refreshed %d games (%d with achievements, %d without)",
			payload.GamesRefreshed, payload.GamesWithAchievements, payload.GamesWithoutAchievements)
		if payload.AuthRequired {
			msg += ". Some providers require authentication"
		}
		return o.terminal(st, msg, totalSteps, totalSteps, false)
	case isCancellation(ctx, err):
		logging.Info("refresh canceled", "operation_id", st.operationID, "processed", step)
		return o.terminal(st, "Achievement refresh canceled", step, totalSteps, true)
	default:
		logging.Error("refresh failed", "operation_id", st.operationID, "error", err)
		return o.terminal(st, "Achievement refresh failed", step, totalSteps, false)
	}
}

func (o *Orchestrator) terminal(st *runState, msg string, step, total int, canceled bool) progress.Report {
	return progress.Report{
		Message:       msg,
		CurrentStep:   step,
		TotalSteps:    total,
		Canceled:      canceled,
		OperationID:   st.operationID,
		Mode:          string(st.mode),
		CurrentGameID: st.singleGameID,
	}
}

// resolveOptions merges the normalized request with persisted settings.
func (o *Orchestrator) resolveOptions(req Request) Options {
	opts := Options{
		Mode:            req.Mode,
		GameIDs:         req.GameIDs,
		IncludeUnplayed: o.settings.IncludeUnplayed(o.cfg.IncludeUnplayedDefault),
		RecentCount:     o.settings.RecentCount(o.cfg.RecentCountDefault),
		Custom:          req.Custom,
	}
	switch req.Mode {
	case ModeSingle, ModeLibrarySelected:
		// Explicitly requested games bypass the persisted exclusion set.
		opts.BypassExclusions = true
	case ModeCustom:
		if req.Custom != nil {
			opts.BypassExclusions = req.Custom.BypassExclusions
			if req.Custom.RecentCount > 0 {
				opts.RecentCount = req.Custom.RecentCount
			}
		}
	}
	return opts
}

// resolveTargets produces the ordered list of games in scope for this run.
func (o *Orchestrator) resolveTargets(snap *library.Snapshot, opts Options) []library.Game {
	excluded := o.settings.ExcludedGames()
	dropped := func(g library.Game) bool {
		return !opts.BypassExclusions && excluded[g.ID]
	}

	var out []library.Game
	switch opts.Mode {
	case ModeRecent:
		out = recentGames(snap.Games, dropped, opts.RecentCount)
	case ModeFull:
		for _, g := range snap.Games {
			if dropped(g) {
				continue
			}
			if !opts.IncludeUnplayed && g.PlaytimeMin == 0 {
				continue
			}
			out = append(out, g)
		}
	case ModeInstalled:
		for _, g := range snap.Games {
			if g.IsInstalled && !dropped(g) {
				out = append(out, g)
			}
		}
	case ModeFavorites:
		for _, g := range snap.Games {
			if g.Favorite && !dropped(g) {
				out = append(out, g)
			}
		}
	case ModeMissing:
		cached := o.cachedIDSet()
		for _, g := range snap.Games {
			if !cached[g.ID] && !dropped(g) {
				out = append(out, g)
			}
		}
	case ModeSingle, ModeLibrarySelected:
		for _, id := range opts.GameIDs {
			if g, ok := snap.Get(id); ok {
				out = append(out, g)
			}
		}
	case ModeCustom:
		out = o.resolveCustom(snap, opts, excluded)
	}

	return o.filterCapable(out)
}

func recentGames(games []library.Game, dropped func(library.Game) bool, limit int) []library.Game {
	var played []library.Game
	for _, g := range games {
		if g.LastActivity != nil && !dropped(g) {
			played = append(played, g)
		}
	}
	sort.SliceStable(played, func(i, j int) bool {
		return played[i].LastActivity.After(*played[j].LastActivity)
	})
	if limit > 0 && len(played) > limit {
		played = played[:limit]
	}
	return played
}

func (o *Orchestrator) resolveCustom(snap *library.Snapshot, opts Options, userExcluded map[string]bool) []library.Game {
	custom := opts.Custom
	if custom == nil {
		custom = &CustomOptions{Scope: ScopeAll}
	}

	callerExcluded := make(map[string]bool, len(custom.ExcludeIDs))
	for _, id := range custom.ExcludeIDs {
		callerExcluded[id] = true
	}

	seen := make(map[string]bool)
	var out []library.Game
	add := func(g library.Game, bypassUserExclusions bool) {
		if seen[g.ID] || callerExcluded[g.ID] {
			return
		}
		if !bypassUserExclusions && !custom.BypassExclusions && userExcluded[g.ID] {
			return
		}
		seen[g.ID] = true
		out = append(out, g)
	}

	switch custom.Scope {
	case ScopeAll:
		for _, g := range snap.Games {
			add(g, false)
		}
	case ScopeInstalled:
		for _, g := range snap.Games {
			if g.IsInstalled {
				add(g, false)
			}
		}
	case ScopeFavorites:
		for _, g := range snap.Games {
			if g.Favorite {
				add(g, false)
			}
		}
	case ScopeRecent:
		// Excluded games are dropped before the recent cap so they never
		// consume a slot, same as a plain recent refresh.
		droppedForRecent := func(g library.Game) bool {
			if callerExcluded[g.ID] {
				return true
			}
			return !custom.BypassExclusions && userExcluded[g.ID]
		}
		for _, g := range recentGames(snap.Games, droppedForRecent, opts.RecentCount) {
			add(g, false)
		}
	case ScopeLibrarySelected, ScopeExplicit:
		// Only the explicit include list below.
	case ScopeMissing:
		cached := o.cachedIDSet()
		for _, g := range snap.Games {
			if !cached[g.ID] {
				add(g, false)
			}
		}
	}

	// Explicitly included ids bypass the user's exclusion set.
	for _, id := range custom.IncludeIDs {
		if g, ok := snap.Get(id); ok {
			add(g, true)
		}
	}
	return out
}

func (o *Orchestrator) cachedIDSet() map[string]bool {
	ids, err := o.cache.GetCachedGameIDs()
	if err != nil {
		logging.Warn("failed to list cached game ids, treating cache as empty", "error", err)
		return map[string]bool{}
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// filterCapable keeps games claimed by at least one enabled, authenticated
// provider. A capability check that errors counts as "not capable" and never
// aborts resolution.
func (o *Orchestrator) filterCapable(games []library.Game) []library.Game {
	provs := o.enabledProviders()
	if len(provs) == 0 {
		return nil
	}
	var out []library.Game
	for _, g := range games {
		for _, p := range provs {
			if o.isCapable(p, g) {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

func (o *Orchestrator) isCapable(p provider.Provider, g library.Game) bool {
	ok, err := p.IsCapable(g)
	if err != nil {
		logging.Debug("capability check failed, treating as not capable",
			"provider", p.Key(), "game_id", g.ID, "error", err)
		return false
	}
	return ok
}

func (o *Orchestrator) enabledProviders() []provider.Provider {
	var out []provider.Provider
	for _, p := range o.registry.All() {
		if !p.IsAuthenticated() {
			continue
		}
		if !o.settings.ProviderEnabled(p.Key(), true) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// autoEnableProviders persists an enabled flag the first time a provider
// shows up authenticated, so it appears in the settings UI.
func (o *Orchestrator) autoEnableProviders() {
	for _, p := range o.registry.All() {
		if p.IsAuthenticated() && !o.settings.HasProviderSetting(p.Key()) {
			if err := o.settings.EnableProvider(p.Key()); err != nil {
				logging.Debug("failed to auto-enable provider", "provider", p.Key(), "error", err)
			}
		}
	}
}

// buildPlans groups targets per capable provider: first capable provider
// wins, in registration order, and plan order follows provider order.
func (o *Orchestrator) buildPlans(targets []library.Game) []Plan {
	provs := o.enabledProviders()
	byProvider := make(map[string]*Plan, len(provs))
	for _, g := range targets {
		for _, p := range provs {
			if !o.isCapable(p, g) {
				continue
			}
			plan, ok := byProvider[p.Key()]
			if !ok {
				plan = &Plan{Provider: p}
				byProvider[p.Key()] = plan
			}
			plan.Games = append(plan.Games, g)
			break
		}
	}

	var plans []Plan
	for _, p := range provs {
		if plan, ok := byProvider[p.Key()]; ok {
			plans = append(plans, *plan)
		}
	}
	return plans
}

func (o *Orchestrator) executePlans(ctx context.Context, st *runState, plans []Plan, counters *runCounters, totalSteps int) (Payload, error) {
	parallel := o.settings.ParallelProviders(o.cfg.ParallelDefault)
	if !parallel || len(plans) < 2 {
		var agg Payload
		for _, plan := range plans {
			p, err := o.runPlan(ctx, st, plan, counters, totalSteps)
			agg.merge(p)
			if err != nil {
				return agg, err
			}
		}
		return agg, nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		agg      Payload
		firstErr error
	)
	for _, plan := range plans {
		wg.Add(1)
		go func(pl Plan) {
			defer wg.Done()
			p, err := o.runPlan(ctx, st, pl, counters, totalSteps)
			mu.Lock()
			defer mu.Unlock()
			agg.merge(p)
			if err != nil && (firstErr == nil || isCancellation(ctx, err)) {
				firstErr = err
			}
		}(plan)
	}
	wg.Wait()
	return agg, firstErr
}

func (o *Orchestrator) runPlan(ctx context.Context, st *runState, plan Plan, counters *runCounters, totalSteps int) (Payload, error) {
	p := plan.Provider
	hooks := PipelineHooks{
		OnGameStarting: func(g library.Game) {
			o.reporter.Publish(progress.Report{
				Message:       fmt.Sprintf("Refreshing %s (%s)...", g.Name, p.Name()),
				CurrentStep:   int(counters.processed.Load()),
				TotalSteps:    totalSteps,
				OperationID:   st.operationID,
				Mode:          string(st.mode),
				CurrentGameID: g.ID,
			})
		},
		Process: func(ctx context.Context, g library.Game) (*provider.GameAchievementData, error) {
			data, err := ratelimit.ExecuteWithRetry(ctx, o.limiter, func(ctx context.Context) (*provider.GameAchievementData, error) {
				return p.FetchAchievements(ctx, g)
			}, p.IsTransientError)
			if err != nil {
				return nil, err
			}
			o.cacheIcons(ctx, st, g, data, counters, totalSteps)
			if err := ctx.Err(); err != nil {
				// Canceled mid-post-processing: abandon this in-flight game
				// without persisting a partial record.
				return nil, err
			}
			if wr := o.cache.SaveGameData(g.ID, data); !wr.Success {
				return nil, &achievecache.WriteError{
					GameID: g.ID,
					Code:   wr.ErrorCode,
					Err:    errors.New(wr.ErrorMessage),
				}
			}
			counters.saved.Add(1)
			return data, nil
		},
		OnGameCompleted: func(g library.Game, data *provider.GameAchievementData) {
			step := int(counters.processed.Add(1))
			o.reporter.Publish(progress.Report{
				Message:       fmt.Sprintf("Refreshed %d of %d games", step, totalSteps),
				CurrentStep:   step,
				TotalSteps:    totalSteps,
				OperationID:   st.operationID,
				Mode:          string(st.mode),
				CurrentGameID: g.ID,
			})
		},
		OnGameError: func(g library.Game, err error) {
			step := int(counters.processed.Add(1))
			logging.Warn("failed to refresh game", "game_id", g.ID, "provider", p.Key(), "error", err)
			o.reporter.Publish(progress.Report{
				Message:       fmt.Sprintf("Refreshed %d of %d games", step, totalSteps),
				CurrentStep:   step,
				TotalSteps:    totalSteps,
				OperationID:   st.operationID,
				Mode:          string(st.mode),
				CurrentGameID: g.ID,
			})
		},
		IsAuthRequired: p.IsAuthError,
	}
	return RunProviderGames(ctx, plan.Games, hooks, o.limiter, o.cfg.GameDelay)
}

// cacheIcons resolves achievement icons before the cache write so the
// persisted record carries local paths. Icon failures are logged and left
// unresolved; they never fail the game's refresh.
func (o *Orchestrator) cacheIcons(ctx context.Context, st *runState, g library.Game, data *provider.GameAchievementData, counters *runCounters, totalSteps int) {
	if o.icons == nil || data == nil || len(data.Achievements) == 0 {
		return
	}
	downloaded := 0
	for i := range data.Achievements {
		if ctx.Err() != nil {
			return
		}
		a := &data.Achievements[i]
		if a.IconURL == "" || a.IconPath != "" {
			continue
		}
		path, err := o.icons.GetOrDownloadIcon(ctx, a.IconURL, o.cfg.IconSize, g.ID)
		if err != nil {
			if isCancellation(ctx, err) {
				return
			}
			logging.Debug("icon download failed", "game_id", g.ID, "url", a.IconURL, "error", err)
			continue
		}
		a.IconPath = path
		downloaded++
	}
	if downloaded > 0 {
		o.reporter.PublishPriority(progress.Report{
			Message:       fmt.Sprintf("Caching %d icons for %s...", downloaded, g.Name),
			CurrentStep:   int(counters.processed.Load()),
			TotalSteps:    totalSteps,
			OperationID:   st.operationID,
			Mode:          string(st.mode),
			CurrentGameID: g.ID,
		})
	}
}
