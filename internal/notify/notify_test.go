package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hazyhaar/webwatch/internal/comparator"
	"github.com/hazyhaar/webwatch/internal/config"
)

func TestNotifyChange_Throttled(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	settings := config.Defaults()
	settings.WebhookURL = server.URL
	settings.NotificationThrottleMs = 60_000
	r := NewRouter(&settings)

	watch := &config.WatchConfig{Name: "test", URL: "https://example.com"}
	base := time.Now()

	ev := ChangeEvent{Watch: watch, Changes: []comparator.Change{{Name: "title", Previous: "a", Current: "b", Comparator: "exact"}}, Timestamp: base}
	if err := r.NotifyChange(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev.Timestamp = base.Add(time.Second)
	if err := r.NotifyChange(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if calls != 1 {
		t.Fatalf("expected throttling to suppress the second call, got %d calls", calls)
	}
}

func TestNotifyChange_NotThrottledAfterWindow(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	settings := config.Defaults()
	settings.WebhookURL = server.URL
	settings.NotificationThrottleMs = 1000
	r := NewRouter(&settings)

	watch := &config.WatchConfig{Name: "test", URL: "https://example.com"}
	base := time.Now()

	ev := ChangeEvent{Watch: watch, Changes: []comparator.Change{{Name: "title", Comparator: "exact"}}, Timestamp: base}
	r.NotifyChange(context.Background(), ev)

	ev.Timestamp = base.Add(2 * time.Second)
	r.NotifyChange(context.Background(), ev)

	if calls != 2 {
		t.Fatalf("expected both calls to go through, got %d", calls)
	}
}

func TestNotifyError_SkippedWithoutNotifyOnError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	settings := config.Defaults()
	settings.WebhookURL = server.URL
	r := NewRouter(&settings)

	watch := &config.WatchConfig{Name: "test", URL: "https://example.com", NotifyOnError: false}
	err := r.NotifyError(context.Background(), ErrorEvent{Watch: watch, Err: context.DeadlineExceeded, FailCount: 5, Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no dispatch when NotifyOnError is false")
	}
}

func TestDispatch_WebhookPayload(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	settings := config.Defaults()
	settings.WebhookURL = server.URL
	r := NewRouter(&settings)

	watch := &config.WatchConfig{Name: "test", URL: "https://example.com"}
	ev := ChangeEvent{Watch: watch, Changes: []comparator.Change{{Name: "price", Previous: 1.0, Current: 2.0, Comparator: "numeric"}}, Timestamp: time.Now()}
	if err := r.NotifyChange(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body["url"] != "https://example.com" {
		t.Fatalf("expected webhook payload to carry the watch url, got %v", body)
	}
}

func TestRenderTemplate_Placeholders(t *testing.T) {
	watch := &config.WatchConfig{Name: "Store", URL: "https://example.com", MessageTemplate: "{{name}} changed at {{url}}: {{addedCount}} added"}
	ev := ChangeEvent{
		Watch: watch,
		Changes: []comparator.Change{{
			Name:       "items",
			Comparator: "addedOrRemoved",
			Details:    map[string]interface{}{"added": []interface{}{"x"}},
		}},
		Timestamp: time.Now(),
	}
	got := renderTemplate(watch.MessageTemplate, watch, ev)
	want := "Store changed at https://example.com: 1 added"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestRenderTemplate_DiffPlaceholderIncludesPrevCurrAndSign(t *testing.T) {
	watch := &config.WatchConfig{Name: "My Watch", URL: "https://example.com", MessageTemplate: "{{name}}: {{diff.stock}}"}
	ev := ChangeEvent{
		Watch: watch,
		Changes: []comparator.Change{{
			Name:       "stock",
			Comparator: "numeric",
			Details:    map[string]interface{}{"previous": 5.0, "current": 8.0, "diff": 3.0},
		}},
		Timestamp: time.Now(),
	}
	got := renderTemplate(watch.MessageTemplate, watch, ev)
	want := "My Watch: 5 → 8 (+3)"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestDefaultChangeMessage_IncludesURL(t *testing.T) {
	watch := &config.WatchConfig{Name: "Store", URL: "https://example.com/page"}
	ev := ChangeEvent{Watch: watch, Changes: []comparator.Change{{Name: "title", Previous: "a", Current: "b", Comparator: "exact"}}}
	msg := defaultChangeMessage(watch, ev)
	if !contains(msg, watch.URL) {
		t.Fatalf("expected message to contain url, got %q", msg)
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
