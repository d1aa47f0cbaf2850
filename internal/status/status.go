// Package status implements the HTTP status surface: a dashboard, health
// and Prometheus endpoints, and a manual trigger endpoint, routed with
// go-chi the way the teacher's chassis and gateway services are.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/webwatch/internal/history"
	"github.com/hazyhaar/webwatch/internal/runner"
	"github.com/hazyhaar/webwatch/internal/scheduler"
	"github.com/hazyhaar/webwatch/internal/state"
)

// WatchHealth is one row of the /health and /metrics views.
type WatchHealth struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Enabled     bool      `json:"enabled"`
	Success     bool      `json:"success"`
	LastCheckAt time.Time `json:"lastCheckAt,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
}

// HealthResponse is the body of GET /health and GET /api/health.
type HealthResponse struct {
	Status    string        `json:"status"`
	Uptime    float64       `json:"uptime"`
	Watches   []WatchHealth `json:"watches"`
	Timestamp time.Time     `json:"timestamp"`
}

// Server exposes the read-only status snapshot and the manual trigger
// endpoint over HTTP, with optional Basic Auth on the dashboard.
type Server struct {
	engine    *scheduler.Engine
	runner    *runner.Runner
	state     *state.Store
	history   *history.Store
	logger    *slog.Logger
	startedAt time.Time
	passHash  []byte
	router    *chi.Mux
}

// New builds the router. passwordHash is the bcrypt hash from
// STATUS_PASSWORD_HASH; an empty string disables auth (the dashboard is
// plaintext HTTP by default, matching the teacher's unauthenticated BO
// stack absent an explicit credential). r may be nil in tests that don't
// exercise /metrics' error counter.
func New(engine *scheduler.Engine, r *runner.Runner, st *state.Store, hist *history.Store, logger *slog.Logger, passwordHash string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:    engine,
		runner:    r,
		state:     st,
		history:   hist,
		logger:    logger,
		startedAt: time.Now(),
		passHash:  []byte(passwordHash),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/health", s.handleHealth)
	r.Get("/api/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Post("/api/trigger", s.handleTrigger)

	r.With(s.basicAuth).Get("/", s.handleDashboard)
	r.With(s.basicAuth).Get("/dashboard", s.handleDashboard)

	return r
}

// basicAuth is a no-op when no password hash was configured, matching the
// teacher's BO stack (no rate limiter, no auth) absent an explicit
// credential; otherwise it checks a single shared operator credential the
// same way the teacher's admin login does.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	if len(s.passHash) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, password, ok := r.BasicAuth()
		if !ok || bcrypt.CompareHashAndPassword(s.passHash, []byte(password)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="webwatch"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) watchHealth() []WatchHealth {
	statuses := s.engine.List()
	out := make([]WatchHealth, 0, len(statuses))
	for _, ws := range statuses {
		h := WatchHealth{ID: ws.WatchID, Name: ws.Name, Enabled: ws.Enabled, Success: true}
		if s.state != nil {
			if rec, err := s.state.Load(ws.WatchID); err == nil && rec != nil {
				h.LastCheckAt = rec.LastCheckAt
				h.LastError = rec.LastError
				h.Success = rec.LastError == ""
			}
		}
		out = append(out, h)
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Uptime:    time.Since(s.startedAt).Seconds(),
		Watches:   s.watchHealth(),
		Timestamp: time.Now(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	b.WriteString("# HELP web_monitor_up webwatch process liveness\n")
	b.WriteString("# TYPE web_monitor_up gauge\n")
	b.WriteString("web_monitor_up 1\n")
	b.WriteString("# HELP web_monitor_uptime_seconds seconds since process start\n")
	b.WriteString("# TYPE web_monitor_uptime_seconds counter\n")
	fmt.Fprintf(&b, "web_monitor_uptime_seconds %f\n", time.Since(s.startedAt).Seconds())

	b.WriteString("# HELP web_monitor_watch_success 1 if the watch's last run succeeded\n")
	b.WriteString("# TYPE web_monitor_watch_success gauge\n")
	b.WriteString("# HELP web_monitor_watch_errors_total failed runs recorded for the watch since process start\n")
	b.WriteString("# TYPE web_monitor_watch_errors_total counter\n")
	for _, h := range s.watchHealth() {
		success := 0
		if h.Success {
			success = 1
		}
		fmt.Fprintf(&b, "web_monitor_watch_success{watch=%q,name=%q} %d\n", h.ID, h.Name, success)
		fmt.Fprintf(&b, "web_monitor_watch_errors_total{watch=%q,name=%q} %d\n", h.ID, h.Name, s.errorTotal(h.ID))
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write([]byte(b.String()))
}

func (s *Server) errorTotal(watchID string) int {
	if s.runner == nil {
		return 0
	}
	return s.runner.ErrorTotal(watchID)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	if !s.engine.Has(id) {
		http.Error(w, "unknown watch", http.StatusNotFound)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := s.engine.Trigger(ctx, id); err != nil && !errors.Is(err, scheduler.ErrBusy) {
			s.logger.Warn("manual trigger failed", "watch", id, "error", err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "triggered", "watchId": id})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<!doctype html><html><head><meta charset="utf-8"><title>webwatch</title>`+
		`<meta http-equiv="refresh" content="10"></head><body><h1>webwatch</h1><table border="1" cellpadding="4">`+
		`<tr><th>watch</th><th>name</th><th>status</th><th>last check</th><th>error</th><th>recent runs</th></tr>`)
	for _, h := range s.watchHealth() {
		color := "green"
		if !h.Success {
			color = "red"
		}
		fmt.Fprintf(w, `<tr style="color:%s"><td>%s</td><td>%s</td><td>%v</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
			color, h.ID, h.Name, h.Success, h.LastCheckAt.Format(time.RFC3339), h.LastError, s.recentRunsSummary(r.Context(), h.ID))
	}
	fmt.Fprint(w, `</table></body></html>`)
}

// recentRunsSummary renders the watch's last few history entries as a
// compact "ok ok err ok" strip, pulling from the bounded run-history table
// rather than just the single latest snapshot state keeps.
func (s *Server) recentRunsSummary(ctx context.Context, watchID string) string {
	if s.history == nil {
		return ""
	}
	entries, err := s.history.Recent(ctx, watchID, 5)
	if err != nil || len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	for i := len(entries) - 1; i >= 0; i-- {
		if i != len(entries)-1 {
			b.WriteString(" ")
		}
		if entries[i].Success {
			b.WriteString("ok")
		} else {
			b.WriteString("err")
		}
	}
	return b.String()
}
