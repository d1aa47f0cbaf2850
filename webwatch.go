// Package webwatch is the process-wide facade over the watch engine: it
// wires the browser manager, watch runner, scheduler, status server, and
// MCP surface together the way domwatch.Watcher wires its browser pool,
// mutation detector, and connectivity router into one embeddable type.
package webwatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/webwatch/internal/browser"
	"github.com/hazyhaar/webwatch/internal/config"
	"github.com/hazyhaar/webwatch/internal/history"
	"github.com/hazyhaar/webwatch/internal/mcpsurface"
	"github.com/hazyhaar/webwatch/internal/notify"
	"github.com/hazyhaar/webwatch/internal/runner"
	"github.com/hazyhaar/webwatch/internal/scheduler"
	"github.com/hazyhaar/webwatch/internal/state"
	"github.com/hazyhaar/webwatch/internal/status"
)

// Settings is the process-wide configuration surface; see internal/config
// for the environment variable and settings-file contract.
type Settings = config.Settings

// WatchConfig is one declarative monitoring rule.
type WatchConfig = config.WatchConfig

// WatchStatus is a point-in-time scheduling snapshot for one watch.
type WatchStatus = scheduler.WatchStatus

// LoadSettings builds the effective Settings from defaults, an optional
// settings file, and environment variable overrides.
func LoadSettings(settingsFilePath string) (*Settings, error) {
	return config.LoadSettings(settingsFilePath)
}

// App wires the browser manager, watch runner, scheduler, and status server
// into one running process.
type App struct {
	settings *Settings
	browser  *browser.Manager
	state    *state.Store
	history  *history.Store
	runner   *runner.Runner
	engine   *scheduler.Engine
	status   *status.Server
	logger   *slog.Logger
}

// New builds an App from settings without launching the browser or
// scheduler; call Start to do that.
func New(settings *Settings, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	mgr := browser.NewManager(browser.Config{
		ProxyServer: settings.ProxyServer,
		Logger:      logger,
	})

	st := state.NewStore(settings.StateDir)

	hist, err := history.Open(filepath.Join(settings.StateDir, "history.db"), settings.HistoryMaxRows)
	if err != nil {
		return nil, fmt.Errorf("webwatch: open history: %w", err)
	}

	notifier := notify.NewRouter(settings)
	r := runner.New(mgr, settings, st, hist, notifier, logger)
	engine := scheduler.New(settings.ConfigDir, r, settings, logger)
	statusSrv := status.New(engine, r, st, hist, logger, settings.StatusPasswordHash)

	return &App{
		settings: settings,
		browser:  mgr,
		state:    st,
		history:  hist,
		runner:   r,
		engine:   engine,
		status:   statusSrv,
		logger:   logger,
	}, nil
}

// Start launches the browser and runs the scheduler loop. It blocks until
// ctx is cancelled or the scheduler's initial config load fails.
func (a *App) Start(ctx context.Context) error {
	if err := a.browser.Start(ctx); err != nil {
		return fmt.Errorf("webwatch: start browser: %w", err)
	}
	return a.engine.Run(ctx)
}

// Stop releases the browser handle and closes the history database. Safe
// to call after Start returns (including on ctx cancellation).
func (a *App) Stop() {
	if err := a.browser.Close(); err != nil {
		a.logger.Warn("webwatch: close browser failed", "error", err)
	}
	if err := a.history.Close(); err != nil {
		a.logger.Warn("webwatch: close history failed", "error", err)
	}
}

// StatusHandler returns the HTTP handler for the dashboard, health, and
// metrics endpoints, to be served on HEALTH_PORT.
func (a *App) StatusHandler() http.Handler { return a.status }

// RegisterMCP exposes webwatch_trigger and webwatch_status on srv.
func (a *App) RegisterMCP(srv *mcp.Server) { mcpsurface.Register(srv, a.engine) }

// Trigger runs one watch immediately, bypassing its schedule.
func (a *App) Trigger(ctx context.Context, watchID string) (runner.Result, error) {
	return a.engine.Trigger(ctx, watchID)
}

// Reconcile forces an immediate config-directory rescan outside the normal
// 30s hot-reload cadence.
func (a *App) Reconcile() error { return a.engine.Reconcile() }
