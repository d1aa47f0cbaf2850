package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("browser: mkdir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// GotoOptions mirrors `goto(url, {timeout, waitUntil})`.
type GotoOptions struct {
	Timeout   time.Duration
	WaitUntil string // "load" (default), "domcontentloaded", "networkidle"
}

// Page is the narrow browser-driver facade the action and
// extractor engines consume. A stub implementation backs unit tests without
// a real browser.
type Page interface {
	Goto(ctx context.Context, url string, opts GotoOptions) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	WaitForXPath(ctx context.Context, xpath string, timeout time.Duration) error
	WaitForNavigation(ctx context.Context, timeout time.Duration) error
	WaitForTimeout(ctx context.Context, d time.Duration)

	Query(selector string) (Element, bool, error)
	QueryAll(selector string) ([]Element, error)
	QueryXPath(xpath string) (Element, bool, error)
	QueryAllXPath(xpath string) ([]Element, error)

	Evaluate(js string) (interface{}, error)
	Frames() ([]Frame, error)

	URL() string
	Title() (string, error)
	Screenshot(path string) error

	Fill(selector, value string) error
	TypeSlowly(selector, text string, perKeyDelay time.Duration) error
	PressKey(key string) error
	SelectOption(selector, value string) error
	Hover(selector string) error
	ScrollIntoViewIfNeeded(selector string) error
	ScrollBy(x, y int) error

	Close() error
}

// Frame is a child frame; it exposes the same query/eval surface as Page so
// the action and extractor engines can treat "probe every child frame" (the
// checkFrames fallback) uniformly.
type Frame = Page

// Element is one matched DOM node.
type Element interface {
	Text() (string, error)
	InnerText() (string, error)
	HTML() (string, error)
	OuterHTML() (string, error)
	Attribute(name string) (string, bool, error)
	Value() (string, error)
	Click() error
	Eval(js string) (interface{}, error)
}

type rodPage struct {
	page *rod.Page
}

func (p *rodPage) Goto(ctx context.Context, url string, opts GotoOptions) error {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	page := p.page.Context(ctx).Timeout(timeout)

	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}

	switch opts.WaitUntil {
	case "domcontentloaded":
		return page.WaitDOMStable(500*time.Millisecond, 0)
	case "networkidle":
		return page.WaitIdle(timeout)
	default:
		return page.WaitLoad()
	}
}

func (p *rodPage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	_, err := p.page.Context(ctx).Timeout(timeout).Element(selector)
	return err
}

func (p *rodPage) WaitForXPath(ctx context.Context, xpath string, timeout time.Duration) error {
	_, err := p.page.Context(ctx).Timeout(timeout).ElementX(xpath)
	return err
}

func (p *rodPage) WaitForNavigation(ctx context.Context, timeout time.Duration) error {
	wait := p.page.Context(ctx).Timeout(timeout).WaitNavigation(proto.PageLifecycleEventNameLoad)
	wait()
	return nil
}

func (p *rodPage) WaitForTimeout(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (p *rodPage) Query(selector string) (Element, bool, error) {
	el, err := p.page.Element(selector)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &rodElement{el: el}, true, nil
}

func (p *rodPage) QueryAll(selector string) ([]Element, error) {
	els, err := p.page.Elements(selector)
	if err != nil {
		return nil, err
	}
	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = &rodElement{el: el}
	}
	return out, nil
}

func (p *rodPage) QueryXPath(xpath string) (Element, bool, error) {
	el, err := p.page.ElementX(xpath)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &rodElement{el: el}, true, nil
}

func (p *rodPage) QueryAllXPath(xpath string) ([]Element, error) {
	els, err := p.page.ElementsX(xpath)
	if err != nil {
		return nil, err
	}
	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = &rodElement{el: el}
	}
	return out, nil
}

func (p *rodPage) Evaluate(js string) (interface{}, error) {
	res, err := p.page.Eval(js)
	if err != nil {
		return nil, fmt.Errorf("browser: evaluate: %w", err)
	}
	return decodeValue(res.Value)
}

func (p *rodPage) Frames() ([]Frame, error) {
	iframes, err := p.page.Elements("iframe")
	if err != nil {
		return nil, err
	}
	var out []Frame
	for _, el := range iframes {
		fp, err := el.Frame()
		if err != nil {
			continue // a cross-origin or not-yet-loaded frame; skip, don't fail the run
		}
		out = append(out, &rodPage{page: fp})
	}
	return out, nil
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *rodPage) Title() (string, error) {
	res, err := p.page.Eval(`() => document.title`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (p *rodPage) Screenshot(path string) error {
	b, err := p.page.Screenshot(true, nil)
	if err != nil {
		return fmt.Errorf("browser: screenshot: %w", err)
	}
	return writeFile(path, b)
}

func (p *rodPage) Fill(selector, value string) error {
	el, err := p.page.Element(selector)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err == nil {
		el.Input("")
	}
	return el.Input(value)
}

func (p *rodPage) TypeSlowly(selector, text string, perKeyDelay time.Duration) error {
	el, err := p.page.Element(selector)
	if err != nil {
		return err
	}
	for _, r := range text {
		if err := el.Input(string(r)); err != nil {
			return err
		}
		if perKeyDelay > 0 {
			time.Sleep(perKeyDelay)
		}
	}
	return nil
}

func (p *rodPage) PressKey(key string) error {
	k, ok := keyByName(key)
	if !ok {
		return fmt.Errorf("browser: unknown key %q", key)
	}
	return p.page.Keyboard.Type(k)
}

func (p *rodPage) SelectOption(selector, value string) error {
	el, err := p.page.Element(selector)
	if err != nil {
		return err
	}
	_, err = el.Select([]string{value}, true, rod.SelectorTypeText)
	return err
}

func (p *rodPage) Hover(selector string) error {
	el, err := p.page.Element(selector)
	if err != nil {
		return err
	}
	return el.Hover()
}

func (p *rodPage) ScrollIntoViewIfNeeded(selector string) error {
	el, err := p.page.Element(selector)
	if err != nil {
		return err
	}
	return el.ScrollIntoView()
}

func (p *rodPage) ScrollBy(x, y int) error {
	_, err := p.page.Eval(`(x, y) => window.scrollBy(x, y)`, x, y)
	return err
}

func (p *rodPage) Close() error {
	return p.page.Close()
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Text() (string, error) {
	s, err := e.el.Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

func (e *rodElement) InnerText() (string, error) {
	res, err := e.el.Eval(`() => this.innerText`)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Value.Str()), nil
}

func (e *rodElement) HTML() (string, error) {
	res, err := e.el.Eval(`() => this.innerHTML`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (e *rodElement) OuterHTML() (string, error) {
	html, err := e.el.HTML()
	if err != nil {
		return "", err
	}
	return html, nil
}

func (e *rodElement) Attribute(name string) (string, bool, error) {
	v, err := e.el.Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *rodElement) Value() (string, error) {
	res, err := e.el.Eval(`() => this.value`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (e *rodElement) Click() error {
	return e.el.Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Eval(js string) (interface{}, error) {
	res, err := e.el.Eval(js)
	if err != nil {
		return nil, err
	}
	return decodeValue(res.Value)
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "cannot find")
}

var namedKeys = map[string]input.Key{
	"Enter":      input.Enter,
	"Tab":        input.Tab,
	"Escape":     input.Escape,
	"Backspace":  input.Backspace,
	"ArrowUp":    input.ArrowUp,
	"ArrowDown":  input.ArrowDown,
	"ArrowLeft":  input.ArrowLeft,
	"ArrowRight": input.ArrowRight,
	"Space":      input.Space,
	"Delete":     input.Delete,
	"Home":       input.Home,
	"End":        input.End,
	"PageUp":     input.PageUp,
	"PageDown":   input.PageDown,
}

func keyByName(name string) (input.Key, bool) {
	if k, ok := namedKeys[name]; ok {
		return k, true
	}
	if len(name) == 1 {
		if k, ok := input.Keys[rune(name[0])]; ok {
			return k, true
		}
	}
	return 0, false
}
