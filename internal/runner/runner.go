// Package runner implements the watch-run pipeline: context
// acquisition, navigation with retry, the action script, extraction, change
// detection against the prior snapshot, persistence, and notification —
// always releasing the browser context, whether the run succeeded or failed.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/hazyhaar/webwatch/internal/action"
	"github.com/hazyhaar/webwatch/internal/browser"
	"github.com/hazyhaar/webwatch/internal/comparator"
	"github.com/hazyhaar/webwatch/internal/config"
	"github.com/hazyhaar/webwatch/internal/extractor"
	"github.com/hazyhaar/webwatch/internal/history"
	"github.com/hazyhaar/webwatch/internal/notify"
	"github.com/hazyhaar/webwatch/internal/state"
)

// Result summarizes one completed watch run for the caller (the scheduler,
// or a manually triggered run from the status API).
type Result struct {
	WatchID string
	Success bool
	Changes []comparator.Change
	Err     error
	RanAt   time.Time
}

// Runner executes one watch's pipeline against the shared browser Manager.
// Safe for concurrent use across distinct watches; per-watch non-overlap is
// the scheduler's responsibility.
type Runner struct {
	browser  *browser.Manager
	settings *config.Settings
	state    *state.Store
	history  *history.Store
	notifier *notify.Router
	logger   *slog.Logger

	mu          sync.Mutex
	failCounts  map[string]int
	totalErrors map[string]int
}

func New(mgr *browser.Manager, settings *config.Settings, st *state.Store, hist *history.Store, notifier *notify.Router, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		browser:     mgr,
		settings:    settings,
		state:       st,
		history:     hist,
		notifier:    notifier,
		logger:      logger,
		failCounts:  make(map[string]int),
		totalErrors: make(map[string]int),
	}
}

// ErrorTotal returns the number of failed runs recorded for watchID since
// the process started. Unlike the consecutive-failure count used for error
// notification thresholds, this never resets on success.
func (r *Runner) ErrorTotal(watchID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalErrors[watchID]
}

// Run executes one pass of watch's pipeline. It never returns an error
// itself — every failure mode is recorded in state/history and surfaced via
// Result.Err: a bad run never aborts the process, only itself.
func (r *Runner) Run(ctx context.Context, watch *config.WatchConfig) Result {
	watchID := watch.WatchID()
	ranAt := time.Now()
	log := r.logger.With("watch", watchID, "name", watch.Name)

	bctx, err := r.browser.NewContext(ctx, buildContextOptions(watch, r.settings))
	if err != nil {
		return r.fail(ctx, watch, ranAt, nil, fmt.Errorf("acquire browser context: %w", err))
	}
	defer bctx.Close()
	page := bctx.Page()

	if err := r.navigate(ctx, page, watch, log); err != nil {
		return r.fail(ctx, watch, ranAt, page, fmt.Errorf("navigate: %w", err))
	}

	actionState := action.NewState()
	if err := action.Run(ctx, page, actionState, watch.Actions); err != nil {
		return r.fail(ctx, watch, ranAt, page, fmt.Errorf("actions: %w", err))
	}

	if watch.WaitForSelector != "" {
		if err := page.WaitForSelector(ctx, watch.WaitForSelector, 10*time.Second); err != nil {
			log.Warn("waitForSelector did not settle before extraction", "selector", watch.WaitForSelector, "error", err)
		}
	}
	if watch.WaitMs > 0 {
		page.WaitForTimeout(ctx, time.Duration(watch.WaitMs)*time.Millisecond)
	}

	values, extractErrs := extractor.ExtractAll(page, r.settings.ScreenshotDir, watchID, watch.Extractors)
	for name, extractErr := range extractErrs {
		log.Warn("extractor failed, recording nil value", "extractor", name, "error", extractErr)
		values[name] = nil
	}

	if watch.PersistSession {
		if err := bctx.SaveStorageState(state.SessionPath(r.settings.SessionDir, watchID)); err != nil {
			log.Warn("save storage state failed", "error", err)
		}
	}

	prior, loadErr := r.state.Load(watchID)
	if loadErr != nil {
		log.Warn("load prior state failed, treating as first run", "error", loadErr)
		prior = nil
	}
	changes := computeChanges(watch, values, prior)

	if err := r.state.SaveSuccess(watchID, values, ranAt); err != nil {
		log.Error("save state failed", "error", err)
	}

	r.resetFailCount(watchID)
	r.appendHistory(ctx, watch, true, "", len(changes), ranAt)

	if len(changes) > 0 && prior != nil {
		err := r.notifier.NotifyChange(ctx, notify.ChangeEvent{
			Watch:     watch,
			Changes:   changes,
			Current:   values,
			Previous:  priorData(prior),
			Timestamp: ranAt,
		})
		if err != nil {
			log.Warn("notify change failed", "error", err)
		}
	}

	return Result{WatchID: watchID, Success: true, Changes: changes, RanAt: ranAt}
}

func (r *Runner) navigate(ctx context.Context, page browser.Page, watch *config.WatchConfig, log *slog.Logger) error {
	timeout := time.Duration(watch.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := watch.Retries
	if retries <= 0 {
		retries = r.settings.MaxRetries
	}
	baseDelay := time.Duration(r.settings.RetryBaseDelayMs) * time.Millisecond
	if baseDelay <= 0 {
		baseDelay = 5 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= retries+1; attempt++ {
		lastErr = page.Goto(ctx, watch.URL, browser.GotoOptions{Timeout: timeout, WaitUntil: watch.WaitUntil})
		if lastErr == nil {
			return nil
		}
		if attempt > retries {
			break
		}
		delay := baseDelay * time.Duration(int64(1)<<uint(attempt-1))
		log.Warn("navigation attempt failed, retrying", "attempt", attempt, "error", lastErr, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

func (r *Runner) fail(ctx context.Context, watch *config.WatchConfig, ranAt time.Time, page browser.Page, runErr error) Result {
	watchID := watch.WatchID()
	log := r.logger.With("watch", watchID, "name", watch.Name)
	log.Error("watch run failed", "error", runErr)

	if watch.ScreenshotOnError && page != nil {
		path := state.ScreenshotPath(r.settings.ScreenshotDir, watchID, ranAt)
		if err := page.Screenshot(path); err != nil {
			log.Warn("error screenshot failed", "error", err)
		}
	}

	if err := r.state.SaveError(watchID, runErr.Error(), ranAt); err != nil {
		log.Error("save error state failed", "error", err)
	}

	failCount := r.incrementFailCount(watchID)
	r.appendHistory(ctx, watch, false, runErr.Error(), 0, ranAt)

	threshold := watch.ErrorThreshold
	if threshold <= 0 {
		threshold = r.settings.ErrorNotifyThreshold
	}
	if failCount >= threshold {
		err := r.notifier.NotifyError(ctx, notify.ErrorEvent{Watch: watch, Err: runErr, FailCount: failCount, Timestamp: ranAt})
		if err != nil {
			log.Warn("notify error failed", "error", err)
		}
	}

	return Result{WatchID: watchID, Success: false, Err: runErr, RanAt: ranAt}
}

func (r *Runner) appendHistory(ctx context.Context, watch *config.WatchConfig, success bool, errMsg string, changeCount int, ranAt time.Time) {
	if r.history == nil {
		return
	}
	entry := history.Entry{
		WatchID:     watch.WatchID(),
		WatchName:   watch.Name,
		Success:     success,
		Error:       errMsg,
		ChangeCount: changeCount,
		RanAt:       ranAt,
	}
	if err := r.history.Append(ctx, entry); err != nil {
		r.logger.Warn("append history failed", "watch", watch.WatchID(), "error", err)
	}
}

func (r *Runner) incrementFailCount(watchID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failCounts[watchID]++
	r.totalErrors[watchID]++
	return r.failCounts[watchID]
}

func (r *Runner) resetFailCount(watchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.failCounts, watchID)
}

func computeChanges(watch *config.WatchConfig, current map[string]interface{}, prior *state.Record) []comparator.Change {
	if prior == nil {
		return nil
	}
	priorValues := priorData(prior)

	var changes []comparator.Change
	for _, spec := range watch.Extractors {
		comp := spec.Comparator
		if comp == "" {
			comp = watch.Comparator
		}
		threshold := watch.Threshold
		if spec.Threshold != nil {
			threshold = *spec.Threshold
		}
		prev, hasPrior := priorValues[spec.Name]

		field := comparator.Field{
			Name:       spec.Name,
			Comparator: comp,
			Current:    current[spec.Name],
			Previous:   prev,
			HasPrior:   hasPrior,
			Threshold:  threshold,
		}
		if change, ok := comparator.Compare(field); ok {
			changes = append(changes, change)
		}
	}
	return changes
}

func priorData(prior *state.Record) map[string]interface{} {
	if prior == nil {
		return nil
	}
	m, _ := prior.Data.(map[string]interface{})
	return m
}

func buildContextOptions(watch *config.WatchConfig, settings *config.Settings) browser.ContextOptions {
	opts := browser.ContextOptions{
		UserAgent:      watch.UserAgent,
		Locale:         watch.Locale,
		Timezone:       watch.Timezone,
		ExtraHeaders:   watch.Headers,
		BlockResources: watch.BlockResources,
	}
	if watch.Viewport != nil {
		opts.ViewportWidth = watch.Viewport.Width
		opts.ViewportHeight = watch.Viewport.Height
	}
	for _, c := range watch.Cookies {
		opts.Cookies = append(opts.Cookies, browser.CookieOption{
			Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path, Secure: c.Secure, HTTPOnly: c.HTTPOnly,
		})
	}
	if watch.PersistSession {
		path := state.SessionPath(settings.SessionDir, watch.WatchID())
		if _, err := os.Stat(path); err == nil {
			opts.StorageStatePath = path
		}
	}
	return opts
}
