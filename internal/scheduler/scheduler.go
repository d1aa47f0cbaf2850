// Package scheduler drives the watch set: an interval- or cron-driven tick
// loop, per-watch non-overlap, a startup stagger, and hot reload that
// reconciles the full watch set against the config directory every 30
// seconds.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/webwatch/internal/config"
	"github.com/hazyhaar/webwatch/internal/cronmatch"
	"github.com/hazyhaar/webwatch/internal/runner"
)

var (
	ErrNotFound = errors.New("scheduler: watch not found")
	ErrBusy     = errors.New("scheduler: watch already running")
)

const reconcileInterval = 30 * time.Second
const tickInterval = time.Second

// WatchStatus is a point-in-time snapshot of one watch's scheduling state,
// for the status dashboard and health endpoints.
type WatchStatus struct {
	WatchID string
	Name    string
	URL     string
	Enabled bool
	Busy    bool
	NextRun time.Time
}

type watchState struct {
	cfg         *config.WatchConfig
	contentHash string
	cronTracker *cronmatch.Tracker
	nextRun     time.Time
	busy        atomic.Bool
}

// Engine reconciles the configured watch set on a timer and runs each due
// watch through Runner, one at a time per watch.
type Engine struct {
	configDir string
	runner    *runner.Runner
	settings  *config.Settings
	logger    *slog.Logger

	mu      sync.Mutex
	watches map[string]*watchState
	order   []string // insertion order, for stable startup stagger
}

func New(configDir string, r *runner.Runner, settings *config.Settings, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		configDir: configDir,
		runner:    r,
		settings:  settings,
		logger:    logger,
		watches:   make(map[string]*watchState),
	}
}

// Run loads the initial watch set and blocks, reconciling and ticking until
// ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.reconcile(); err != nil {
		return err
	}

	reconcileTicker := time.NewTicker(reconcileInterval)
	defer reconcileTicker.Stop()
	tick := time.NewTicker(tickInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-reconcileTicker.C:
			if err := e.reconcile(); err != nil {
				e.logger.Error("scheduler: reconcile failed", "error", err)
			}
		case <-tick.C:
			e.runDue(ctx)
		}
	}
}

// Reconcile forces an immediate config-directory rescan outside the normal
// 30s cadence, for callers that want to pick up a just-written watch file
// without waiting (tests, and a future manual-reload endpoint).
func (e *Engine) Reconcile() error { return e.reconcile() }

// reconcile diffs the config directory's current watch set against the
// in-memory one by watch id, per the binding resolution that hot reload
// replaces the whole set rather than patching individual fields: new
// watches are added (an interval watch gets a staggered first run; a cron
// watch first runs at its first matching minute), removed watches are
// dropped, and a watch whose content hash changed gets a fresh cron
// tracker, but its busy flag and next-run clock are preserved so an
// in-flight run is never interrupted by a reload.
func (e *Engine) reconcile() error {
	result, err := config.LoadDir(e.configDir)
	if err != nil {
		return err
	}
	for _, loadErr := range result.Errors {
		e.logger.Warn("scheduler: skipping invalid watch config", "error", loadErr)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i, id := range sortedKeys(result.Watches) {
		cfg := result.Watches[id]
		ws, exists := e.watches[id]
		if !exists {
			ws = &watchState{nextRun: time.Now().Add(staggerDelay(i, e.settings))}
			e.watches[id] = ws
			e.order = append(e.order, id)
		}
		if !exists || ws.contentHash != cfg.ContentHash {
			ws.cronTracker = buildCronTracker(cfg)
		}
		ws.cfg = cfg
		ws.contentHash = cfg.ContentHash
	}

	var kept []string
	for _, id := range e.order {
		if _, ok := result.Watches[id]; ok {
			kept = append(kept, id)
		} else {
			delete(e.watches, id)
			e.logger.Info("scheduler: watch removed from config", "watch", id)
		}
	}
	e.order = kept

	return nil
}

func (e *Engine) runDue(ctx context.Context) {
	now := time.Now()

	e.mu.Lock()
	var due []*watchState
	for _, ws := range e.watches {
		if !ws.cfg.IsEnabled() || ws.busy.Load() {
			continue
		}
		if e.isDue(ws, now) {
			due = append(due, ws)
		}
	}
	e.mu.Unlock()

	for _, ws := range due {
		if !ws.busy.CompareAndSwap(false, true) {
			continue
		}
		go e.runOne(ctx, ws)
	}
}

func (e *Engine) runOne(ctx context.Context, ws *watchState) {
	defer ws.busy.Store(false)
	cfg := ws.cfg
	e.runner.Run(ctx, cfg)

	e.mu.Lock()
	ws.nextRun = time.Now().Add(intervalOf(cfg, e.settings))
	e.mu.Unlock()
}

func (e *Engine) isDue(ws *watchState, now time.Time) bool {
	if ws.cronTracker != nil {
		return ws.cronTracker.Should(now)
	}
	return !now.Before(ws.nextRun)
}

// Trigger runs one watch immediately, bypassing its schedule, unless it is
// already running. Used by the manual /api/trigger endpoint and the MCP
// trigger tool.
func (e *Engine) Trigger(ctx context.Context, watchID string) (runner.Result, error) {
	e.mu.Lock()
	ws, ok := e.watches[watchID]
	e.mu.Unlock()
	if !ok {
		return runner.Result{}, ErrNotFound
	}
	if !ws.busy.CompareAndSwap(false, true) {
		return runner.Result{}, ErrBusy
	}
	defer ws.busy.Store(false)

	res := e.runner.Run(ctx, ws.cfg)

	e.mu.Lock()
	ws.nextRun = time.Now().Add(intervalOf(ws.cfg, e.settings))
	e.mu.Unlock()

	return res, nil
}

// Has reports whether watchID is currently known to the scheduler, for the
// trigger endpoint's 404-on-unknown-id contract.
func (e *Engine) Has(watchID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.watches[watchID]
	return ok
}

// List returns a stable-ordered snapshot of every known watch's schedule
// state, for the status dashboard.
func (e *Engine) List() []WatchStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]WatchStatus, 0, len(e.order))
	for _, id := range e.order {
		ws, ok := e.watches[id]
		if !ok {
			continue
		}
		out = append(out, WatchStatus{
			WatchID: id,
			Name:    ws.cfg.Name,
			URL:     ws.cfg.URL,
			Enabled: ws.cfg.IsEnabled(),
			Busy:    ws.busy.Load(),
			NextRun: ws.nextRun,
		})
	}
	return out
}

func buildCronTracker(cfg *config.WatchConfig) *cronmatch.Tracker {
	if cfg.Schedule == "" {
		return nil
	}
	sched, err := cronmatch.Parse(cfg.Schedule)
	if err != nil {
		return nil
	}
	return cronmatch.NewTracker(sched)
}

func intervalOf(cfg *config.WatchConfig, settings *config.Settings) time.Duration {
	if cfg.IntervalMs > 0 {
		return time.Duration(cfg.IntervalMs) * time.Millisecond
	}
	return time.Duration(settings.CheckIntervalMs) * time.Millisecond
}

func staggerDelay(index int, settings *config.Settings) time.Duration {
	return time.Duration(index) * time.Duration(settings.StaggerDelayMs) * time.Millisecond
}

func sortedKeys(m map[string]*config.WatchConfig) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
