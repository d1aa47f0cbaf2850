// Command webwatch is the web page change-monitoring daemon: it loads watch
// documents from a config directory, runs each through a headless-browser
// pipeline on its own schedule, and notifies configured transports on
// change.
//
// Usage:
//
//	webwatch -settings settings.yaml
//	webwatch -mcp-stdio
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	webwatch "github.com/hazyhaar/webwatch"
)

func main() {
	settingsPath := flag.String("settings", "", "path to an optional settings.yaml file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	mcpStdio := flag.Bool("mcp-stdio", false, "also expose webwatch_trigger/webwatch_status over an MCP stdio transport")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *settingsPath, *mcpStdio); err != nil {
		logger.Error("webwatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, settingsPath string, mcpStdio bool) error {
	settings, err := webwatch.LoadSettings(settingsPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	app, err := webwatch.New(settings, logger)
	if err != nil {
		return err
	}
	defer app.Stop()

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", settings.HealthPort),
		Handler: app.StatusHandler(),
	}
	go func() {
		logger.Info("webwatch: status server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("webwatch: status server failed", "error", err)
		}
	}()

	if mcpStdio {
		mcpServer := mcp.NewServer(&mcp.Implementation{Name: "webwatch", Version: "0.1.0"}, nil)
		app.RegisterMCP(mcpServer)
		go func() {
			if err := mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("webwatch: mcp stdio server failed", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- app.Start(ctx) }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("webwatch: scheduler stopped", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("webwatch: status server shutdown failed", "error", err)
	}

	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
