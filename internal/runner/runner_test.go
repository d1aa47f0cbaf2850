package runner

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/hazyhaar/webwatch/internal/browser"
	"github.com/hazyhaar/webwatch/internal/config"
	"github.com/hazyhaar/webwatch/internal/notify"
	"github.com/hazyhaar/webwatch/internal/state"
)

func TestComputeChanges_FirstRunHasNoChanges(t *testing.T) {
	watch := &config.WatchConfig{Extractors: []config.ExtractorConfig{{Name: "title", Comparator: "exact"}}}
	changes := computeChanges(watch, map[string]interface{}{"title": "hello"}, nil)
	if len(changes) != 0 {
		t.Fatalf("expected no changes on first run, got %v", changes)
	}
}

func TestComputeChanges_DetectsExactChange(t *testing.T) {
	watch := &config.WatchConfig{Extractors: []config.ExtractorConfig{{Name: "title", Comparator: "exact"}}}
	prior := &state.Record{Data: map[string]interface{}{"title": "old"}}
	changes := computeChanges(watch, map[string]interface{}{"title": "new"}, prior)
	if len(changes) != 1 || changes[0].Name != "title" {
		t.Fatalf("expected one change, got %v", changes)
	}
}

func TestComputeChanges_PerExtractorComparatorOverridesWatchDefault(t *testing.T) {
	watch := &config.WatchConfig{
		Comparator: "hash",
		Extractors: []config.ExtractorConfig{{Name: "count", Comparator: "numeric", Threshold: floatp(5)}},
	}
	prior := &state.Record{Data: map[string]interface{}{"count": float64(100)}}
	changes := computeChanges(watch, map[string]interface{}{"count": float64(103)}, prior)
	if len(changes) != 0 {
		t.Fatalf("expected no change under threshold, got %v", changes)
	}
	changes = computeChanges(watch, map[string]interface{}{"count": float64(110)}, prior)
	if len(changes) != 1 {
		t.Fatalf("expected a change over threshold, got %v", changes)
	}
}

func floatp(f float64) *float64 { return &f }

type stubPage struct {
	gotoErr   error
	gotoCalls int
	text      map[string]string
}

func (p *stubPage) Goto(ctx context.Context, url string, opts browser.GotoOptions) error {
	p.gotoCalls++
	return p.gotoErr
}
func (p *stubPage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	return nil
}
func (p *stubPage) WaitForXPath(ctx context.Context, xpath string, timeout time.Duration) error {
	return nil
}
func (p *stubPage) WaitForNavigation(ctx context.Context, timeout time.Duration) error { return nil }
func (p *stubPage) WaitForTimeout(ctx context.Context, d time.Duration)                {}

func (p *stubPage) Query(selector string) (browser.Element, bool, error) {
	if v, ok := p.text[selector]; ok {
		return &stubElement{text: v}, true, nil
	}
	return nil, false, nil
}
func (p *stubPage) QueryAll(selector string) ([]browser.Element, error) {
	el, ok, _ := p.Query(selector)
	if !ok {
		return nil, nil
	}
	return []browser.Element{el}, nil
}
func (p *stubPage) QueryXPath(xpath string) (browser.Element, bool, error) { return p.Query(xpath) }
func (p *stubPage) QueryAllXPath(xpath string) ([]browser.Element, error)  { return p.QueryAll(xpath) }
func (p *stubPage) Evaluate(js string) (interface{}, error)                { return nil, nil }
func (p *stubPage) Frames() ([]browser.Frame, error)                       { return nil, nil }
func (p *stubPage) URL() string                                            { return "" }
func (p *stubPage) Title() (string, error)                                 { return "", nil }
func (p *stubPage) Screenshot(path string) error                           { return os.WriteFile(path, []byte("png"), 0o644) }
func (p *stubPage) Fill(selector, value string) error                      { return nil }
func (p *stubPage) TypeSlowly(selector, text string, d time.Duration) error { return nil }
func (p *stubPage) PressKey(key string) error                              { return nil }
func (p *stubPage) SelectOption(selector, value string) error              { return nil }
func (p *stubPage) Hover(selector string) error                            { return nil }
func (p *stubPage) ScrollIntoViewIfNeeded(selector string) error           { return nil }
func (p *stubPage) ScrollBy(x, y int) error                                { return nil }
func (p *stubPage) Close() error                                           { return nil }

type stubElement struct{ text string }

func (e *stubElement) Text() (string, error)                       { return e.text, nil }
func (e *stubElement) InnerText() (string, error)                  { return e.text, nil }
func (e *stubElement) HTML() (string, error)                       { return "", nil }
func (e *stubElement) OuterHTML() (string, error)                  { return "", nil }
func (e *stubElement) Value() (string, error)                      { return "", nil }
func (e *stubElement) Attribute(name string) (string, bool, error) { return "", false, nil }
func (e *stubElement) Click() error                                { return nil }
func (e *stubElement) Eval(js string) (interface{}, error)         { return nil, nil }

func TestRunner_FailRecordsStateAndHistory(t *testing.T) {
	dir := t.TempDir()
	st := state.NewStore(dir)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	settings := config.Defaults()

	var notifier *notify.Router
	r := New(nil, &settings, st, nil, notifier, logger)
	watch := &config.WatchConfig{Name: "w", URL: "https://example.com", Extractors: []config.ExtractorConfig{{Name: "title", Type: "title"}}}

	res := r.fail(context.Background(), watch, time.Now(), &stubPage{}, context.DeadlineExceeded)
	if res.Success {
		t.Fatalf("expected failure result")
	}

	rec, err := st.Load(watch.WatchID())
	if err != nil {
		t.Fatalf("unexpected error loading state: %v", err)
	}
	if rec == nil || rec.LastError == "" {
		t.Fatalf("expected error to be recorded in state")
	}
}
