package extractor

import (
	"context"
	"testing"
	"time"

	"github.com/hazyhaar/webwatch/internal/browser"
	"github.com/hazyhaar/webwatch/internal/config"
)

type stubElement struct {
	text, inner, html, outer, value string
	attrs                           map[string]string
}

func (e *stubElement) Text() (string, error)      { return e.text, nil }
func (e *stubElement) InnerText() (string, error) { return e.inner, nil }
func (e *stubElement) HTML() (string, error)      { return e.html, nil }
func (e *stubElement) OuterHTML() (string, error) { return e.outer, nil }
func (e *stubElement) Value() (string, error)     { return e.value, nil }
func (e *stubElement) Click() error                { return nil }
func (e *stubElement) Eval(js string) (interface{}, error) { return nil, nil }
func (e *stubElement) Attribute(name string) (string, bool, error) {
	v, ok := e.attrs[name]
	return v, ok, nil
}

type stubPage struct {
	elements map[string]*stubElement
	multi    map[string][]*stubElement
	xpath    map[string][]*stubElement
	url      string
	title    string
	frames   []browser.Frame
}

func (p *stubPage) Goto(ctx context.Context, url string, opts browser.GotoOptions) error { return nil }
func (p *stubPage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	return nil
}
func (p *stubPage) WaitForXPath(ctx context.Context, xpath string, timeout time.Duration) error {
	return nil
}
func (p *stubPage) WaitForNavigation(ctx context.Context, timeout time.Duration) error { return nil }
func (p *stubPage) WaitForTimeout(ctx context.Context, d time.Duration)                {}

func (p *stubPage) Query(selector string) (browser.Element, bool, error) {
	el, ok := p.elements[selector]
	if !ok {
		return nil, false, nil
	}
	return el, true, nil
}
func (p *stubPage) QueryAll(selector string) ([]browser.Element, error) {
	if els, ok := p.multi[selector]; ok {
		out := make([]browser.Element, len(els))
		for i, e := range els {
			out[i] = e
		}
		return out, nil
	}
	el, ok := p.elements[selector]
	if !ok {
		return nil, nil
	}
	return []browser.Element{el}, nil
}
func (p *stubPage) QueryXPath(xpath string) (browser.Element, bool, error) {
	els, ok := p.xpath[xpath]
	if !ok || len(els) == 0 {
		return nil, false, nil
	}
	return els[0], true, nil
}
func (p *stubPage) QueryAllXPath(xpath string) ([]browser.Element, error) {
	els, ok := p.xpath[xpath]
	if !ok {
		return nil, nil
	}
	out := make([]browser.Element, len(els))
	for i, e := range els {
		out[i] = e
	}
	return out, nil
}

func (p *stubPage) Evaluate(js string) (interface{}, error) { return js, nil }
func (p *stubPage) Frames() ([]browser.Frame, error)        { return p.frames, nil }

func (p *stubPage) URL() string               { return p.url }
func (p *stubPage) Title() (string, error)    { return p.title, nil }
func (p *stubPage) Screenshot(path string) error { return nil }

func (p *stubPage) Fill(selector, value string) error                         { return nil }
func (p *stubPage) TypeSlowly(selector, text string, d time.Duration) error    { return nil }
func (p *stubPage) PressKey(key string) error                                 { return nil }
func (p *stubPage) SelectOption(selector, value string) error                 { return nil }
func (p *stubPage) Hover(selector string) error                               { return nil }
func (p *stubPage) ScrollIntoViewIfNeeded(selector string) error              { return nil }
func (p *stubPage) ScrollBy(x, y int) error                                   { return nil }
func (p *stubPage) Close() error                                              { return nil }

func TestExtract_Text(t *testing.T) {
	page := &stubPage{elements: map[string]*stubElement{".price": {text: "€ 10"}}}
	v, err := Extract(page, "", "watch1", config.ExtractorConfig{Name: "price", Type: "text", Selector: ".price"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seq, ok := v.([]interface{})
	if !ok || len(seq) != 1 || seq[0] != "€ 10" {
		t.Fatalf("got %v", v)
	}
}

func TestExtract_MissingSelectorFallsBackToDefault(t *testing.T) {
	page := &stubPage{elements: map[string]*stubElement{}}
	v, err := Extract(page, "", "watch1", config.ExtractorConfig{Name: "price", Type: "text", Selector: ".price", Default: "n/a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "n/a" {
		t.Fatalf("got %v", v)
	}
}

func TestExtract_MissingSelectorNoDefaultErrors(t *testing.T) {
	page := &stubPage{elements: map[string]*stubElement{}}
	_, err := Extract(page, "", "watch1", config.ExtractorConfig{Name: "price", Type: "text", Selector: ".price"})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestExtract_CheckFramesFallsBackOnEmptyMain(t *testing.T) {
	frame := &stubPage{elements: map[string]*stubElement{".title": {text: "from frame"}}}
	main := &stubPage{
		elements: map[string]*stubElement{".title": {text: ""}},
		frames:   []browser.Frame{frame},
	}
	v, err := Extract(main, "", "watch1", config.ExtractorConfig{Name: "title", Type: "text", Selector: ".title", CheckFrames: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seq, ok := v.([]interface{})
	if !ok || len(seq) != 1 || seq[0] != "from frame" {
		t.Fatalf("got %v, want fallback to frame", v)
	}
}

func TestExtract_TextMultipleMatchesReturnsSequence(t *testing.T) {
	page := &stubPage{multi: map[string][]*stubElement{
		".item": {{text: "one"}, {text: "two"}, {text: "three"}},
	}}
	v, err := Extract(page, "", "watch1", config.ExtractorConfig{Name: "items", Type: "text", Selector: ".item"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seq, ok := v.([]interface{})
	if !ok || len(seq) != 3 || seq[0] != "one" || seq[1] != "two" || seq[2] != "three" {
		t.Fatalf("got %v", v)
	}
}

func TestExtract_XPathFlagForcesXPathResolution(t *testing.T) {
	page := &stubPage{
		elements: map[string]*stubElement{"//h1": {text: "css lookup would find this"}},
		xpath:    map[string][]*stubElement{"//h1": {{text: "xpath lookup"}}},
	}
	v, err := Extract(page, "", "watch1", config.ExtractorConfig{Name: "h", Type: "text", Selector: "//h1", XPath: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seq, ok := v.([]interface{})
	if !ok || len(seq) != 1 || seq[0] != "xpath lookup" {
		t.Fatalf("expected xpath:true to resolve via QueryAllXPath, got %v", v)
	}
}

func TestExtract_ExistsFalseTriggersCheckFramesFallback(t *testing.T) {
	frame := &stubPage{elements: map[string]*stubElement{".banner": {text: "present"}}}
	main := &stubPage{
		elements: map[string]*stubElement{},
		frames:   []browser.Frame{frame},
	}
	v, err := Extract(main, "", "watch1", config.ExtractorConfig{Name: "b", Type: "exists", Selector: ".banner", CheckFrames: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != true {
		t.Fatalf("got %v, want exists:false on main frame to fall back to the child frame", v)
	}
}

func TestExtract_Count(t *testing.T) {
	page := &stubPage{elements: map[string]*stubElement{".item": {text: "x"}}}
	v, err := Extract(page, "", "watch1", config.ExtractorConfig{Name: "n", Type: "count", Selector: ".item"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 1 {
		t.Fatalf("got %v", v)
	}
}

func TestExtract_Exists(t *testing.T) {
	page := &stubPage{elements: map[string]*stubElement{}}
	v, err := Extract(page, "", "watch1", config.ExtractorConfig{Name: "n", Type: "exists", Selector: ".item"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != false {
		t.Fatalf("got %v", v)
	}
}

func TestExtract_URL(t *testing.T) {
	page := &stubPage{url: "https://example.com"}
	v, err := Extract(page, "", "watch1", config.ExtractorConfig{Name: "u", Type: "url"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "https://example.com" {
		t.Fatalf("got %v", v)
	}
}

func TestExtract_JSON(t *testing.T) {
	page := &stubPage{elements: map[string]*stubElement{"#data": {text: `{"a":1}`}}}
	v, err := Extract(page, "", "watch1", config.ExtractorConfig{Name: "d", Type: "json", Selector: "#data"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := v.(map[string]interface{})
	if !ok || m["a"] != float64(1) {
		t.Fatalf("got %v", v)
	}
}

func TestExtract_UnknownTypeErrors(t *testing.T) {
	page := &stubPage{}
	_, err := Extract(page, "", "watch1", config.ExtractorConfig{Name: "x", Type: "bogus"})
	if err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

func TestExtractAll_AppliesTransforms(t *testing.T) {
	page := &stubPage{elements: map[string]*stubElement{".price": {text: "  42  "}}}
	values, errs := ExtractAll(page, "", "watch1", []config.ExtractorConfig{
		{Name: "price", Type: "text", Selector: ".price", Transforms: []config.TransformConfig{{Type: "trim"}}},
	})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	seq, ok := values["price"].([]interface{})
	if !ok || len(seq) != 1 || seq[0] != "42" {
		t.Fatalf("got %v", values["price"])
	}
}
