package status

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/webwatch/internal/config"
	"github.com/hazyhaar/webwatch/internal/history"
	"github.com/hazyhaar/webwatch/internal/notify"
	"github.com/hazyhaar/webwatch/internal/runner"
	"github.com/hazyhaar/webwatch/internal/scheduler"
	"github.com/hazyhaar/webwatch/internal/state"
)

func newTestServer(t *testing.T, passwordHash string) (*Server, *scheduler.Engine) {
	t.Helper()
	dir := t.TempDir()
	doc := map[string]interface{}{
		"id":         "watch-a",
		"url":        "https://example.com/a",
		"interval":   60000,
		"extractors": []map[string]string{{"name": "title", "type": "title"}},
	}
	b, _ := json.Marshal(doc)
	if err := os.WriteFile(filepath.Join(dir, "a.json"), b, 0o644); err != nil {
		t.Fatalf("write watch file: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	settings := config.Defaults()
	st := state.NewStore(t.TempDir())
	var notifier *notify.Router
	r := runner.New(nil, &settings, st, nil, notifier, logger)
	eng := scheduler.New(dir, r, &settings, logger)
	if err := eng.Reconcile(); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	srv := New(eng, r, st, nil, logger, passwordHash)
	return srv, eng
}

func TestHandleHealth_ReturnsJSON(t *testing.T) {
	srv, _ := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("expected status ok, got %q", resp.Status)
	}
}

func TestHandleTrigger_MissingIDReturns400(t *testing.T) {
	srv, _ := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodPost, "/api/trigger", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleTrigger_UnknownIDReturns404(t *testing.T) {
	srv, _ := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodPost, "/api/trigger?id=missing", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestDashboard_RequiresBasicAuthWhenConfigured(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	srv, _ := newTestServer(t, string(hash))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.SetBasicAuth("operator", "secret")
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with correct credentials, got %d", w.Code)
	}
}

func TestHandleMetrics_ContainsExpectedGauges(t *testing.T) {
	srv, _ := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	body := w.Body.String()
	for _, want := range []string{"web_monitor_up", "web_monitor_uptime_seconds", "web_monitor_watch_success", "web_monitor_watch_errors_total"} {
		if !contains(body, want) {
			t.Fatalf("expected metrics body to contain %q, got %q", want, body)
		}
	}
}

func TestRecentRunsSummary_EmptyWithoutHistoryStore(t *testing.T) {
	srv, _ := newTestServer(t, "")
	if got := srv.recentRunsSummary(context.Background(), "watch-a"); got != "" {
		t.Fatalf("expected empty summary without a history store, got %q", got)
	}
}

func TestRecentRunsSummary_WithHistoryStore(t *testing.T) {
	srv, _ := newTestServer(t, "")
	hist, err := history.Open(filepath.Join(t.TempDir(), "history.db"), 10)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer hist.Close()
	srv.history = hist

	ctx := context.Background()
	hist.Append(ctx, history.Entry{WatchID: "watch-a", WatchName: "a", Success: true, RanAt: time.Now()})
	hist.Append(ctx, history.Entry{WatchID: "watch-a", WatchName: "a", Success: false, Error: "boom", RanAt: time.Now()})

	got := srv.recentRunsSummary(ctx, "watch-a")
	if got != "ok err" {
		t.Fatalf("expected \"ok err\", got %q", got)
	}
}

func contains(s, sub string) bool {
	return len(s) >= len(sub) && (func() bool {
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				return true
			}
		}
		return false
	})()
}
