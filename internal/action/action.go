// Package action implements the action script engine: a small
// imperative sequence of browser operations (clicks, typing, waits, a
// composite login) run before extraction, each with an optional guard
// condition and optional-failure suppression.
package action

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/webwatch/internal/browser"
	"github.com/hazyhaar/webwatch/internal/config"
)

// State carries the action engine's mutable context across one watch run:
// named variables set by setVariable/evaluate and the most recent evaluate
// result, both addressable from later conditions in the same run.
type State struct {
	Variables map[string]interface{}
}

func NewState() *State {
	return &State{Variables: make(map[string]interface{})}
}

// Run executes specs in order against page. A step whose `if` condition is
// false is skipped. A step marked Optional swallows its own error and
// continues; any other error aborts the remaining steps.
func Run(ctx context.Context, page browser.Page, state *State, specs []config.ActionConfig) error {
	for i, spec := range specs {
		ok, err := evalCondition(page, state, spec.If)
		if err != nil {
			return fmt.Errorf("action[%d] %s: evaluate condition: %w", i, spec.Type, err)
		}
		if !ok {
			continue
		}

		if err := runOne(ctx, page, state, spec); err != nil {
			if spec.Optional {
				continue
			}
			return fmt.Errorf("action[%d] %s: %w", i, spec.Type, err)
		}

		if spec.Delay > 0 {
			page.WaitForTimeout(ctx, time.Duration(spec.Delay)*time.Millisecond)
		}
	}
	return nil
}

func runOne(ctx context.Context, page browser.Page, state *State, spec config.ActionConfig) error {
	timeout := timeoutOf(spec)

	switch spec.Type {
	case "wait":
		page.WaitForTimeout(ctx, time.Duration(spec.WaitMs)*time.Millisecond)
		return nil
	case "waitForSelector":
		return queryOrProbeFrames(page, spec, func(p browser.Page) error {
			return p.WaitForSelector(ctx, spec.Selector, timeout)
		})
	case "waitForXPath":
		return queryOrProbeFrames(page, spec, func(p browser.Page) error {
			return p.WaitForXPath(ctx, spec.Selector, timeout)
		})
	case "waitForNavigation":
		return page.WaitForNavigation(ctx, timeout)
	case "click":
		return click(page, spec)
	case "type":
		return page.Fill(spec.Selector, spec.Value)
	case "typeSlowly":
		return page.TypeSlowly(spec.Selector, spec.Value, time.Duration(spec.KeyDelayMs)*time.Millisecond)
	case "pressKey":
		return page.PressKey(spec.Key)
	case "select":
		return page.SelectOption(spec.Selector, spec.Value)
	case "hover":
		return page.Hover(spec.Selector)
	case "scroll":
		return page.ScrollBy(spec.X, spec.Y)
	case "evaluate":
		v, err := page.Evaluate(spec.Script)
		if err != nil {
			return err
		}
		if spec.Variable != "" {
			state.Variables[spec.Variable] = v
		} else {
			state.Variables["_evalResult"] = v
		}
		return nil
	case "screenshot":
		path := spec.Path
		if path == "" {
			return fmt.Errorf("screenshot action requires a path")
		}
		return page.Screenshot(path)
	case "setVariable":
		state.Variables[spec.Variable] = spec.Value
		return nil
	case "login":
		return login(page, spec)
	default:
		return fmt.Errorf("unknown action type %q", spec.Type)
	}
}

func click(page browser.Page, spec config.ActionConfig) error {
	if strings.HasPrefix(spec.Selector, "//") {
		return queryOrProbeFramesXPath(page, spec, func(el browser.Element) error { return el.Click() })
	}
	return queryOrProbeFramesCSS(page, spec, func(el browser.Element) error { return el.Click() })
}

func login(page browser.Page, spec config.ActionConfig) error {
	if spec.UsernameSelector != "" {
		if err := page.Fill(spec.UsernameSelector, spec.Username); err != nil {
			return fmt.Errorf("login: username: %w", err)
		}
	}
	if spec.PasswordSelector != "" {
		if err := page.Fill(spec.PasswordSelector, spec.Password); err != nil {
			return fmt.Errorf("login: password: %w", err)
		}
	}
	if spec.SubmitSelector != "" {
		el, ok, err := page.Query(spec.SubmitSelector)
		if err != nil {
			return fmt.Errorf("login: submit: %w", err)
		}
		if !ok {
			return fmt.Errorf("login: submit selector %q: no match", spec.SubmitSelector)
		}
		if err := el.Click(); err != nil {
			return fmt.Errorf("login: submit: %w", err)
		}
	}
	return nil
}

func queryOrProbeFramesCSS(page browser.Page, spec config.ActionConfig, fn func(browser.Element) error) error {
	el, ok, err := page.Query(spec.Selector)
	if err == nil && ok {
		return fn(el)
	}
	if checkFrames(spec) {
		if frames, ferr := page.Frames(); ferr == nil {
			for _, f := range frames {
				if fel, fok, ferr2 := f.Query(spec.Selector); ferr2 == nil && fok {
					return fn(fel)
				}
			}
		}
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("selector %q: no match", spec.Selector)
}

func queryOrProbeFramesXPath(page browser.Page, spec config.ActionConfig, fn func(browser.Element) error) error {
	el, ok, err := page.QueryXPath(spec.Selector)
	if err == nil && ok {
		return fn(el)
	}
	if checkFrames(spec) {
		if frames, ferr := page.Frames(); ferr == nil {
			for _, f := range frames {
				if fel, fok, ferr2 := f.QueryXPath(spec.Selector); ferr2 == nil && fok {
					return fn(fel)
				}
			}
		}
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("xpath %q: no match", spec.Selector)
}

func queryOrProbeFrames(page browser.Page, spec config.ActionConfig, fn func(browser.Page) error) error {
	if err := fn(page); err == nil {
		return nil
	} else if !checkFrames(spec) {
		return err
	}
	frames, ferr := page.Frames()
	if ferr != nil {
		return ferr
	}
	var lastErr error
	for _, f := range frames {
		if err := fn(f); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("no frames matched")
}

func checkFrames(spec config.ActionConfig) bool {
	return spec.CheckFrames != nil && *spec.CheckFrames
}

func timeoutOf(spec config.ActionConfig) time.Duration {
	if spec.TimeoutMs > 0 {
		return time.Duration(spec.TimeoutMs) * time.Millisecond
	}
	return 10 * time.Second
}

func evalCondition(page browser.Page, state *State, cond *config.ConditionConfig) (bool, error) {
	if cond == nil {
		return true, nil
	}
	switch cond.Type {
	case "exists":
		_, ok, err := page.Query(cond.Selector)
		return ok, err
	case "notExists":
		_, ok, err := page.Query(cond.Selector)
		return !ok, err
	case "textContains":
		el, ok, err := page.Query(cond.Selector)
		if err != nil || !ok {
			return false, err
		}
		text, err := el.Text()
		if err != nil {
			return false, err
		}
		return strings.Contains(text, cond.Text), nil
	case "variable":
		v, ok := state.Variables[cond.Variable]
		if !ok {
			return false, nil
		}
		return truthy(v), nil
	case "evaluate":
		v, err := page.Evaluate(cond.Script)
		if err != nil {
			return false, err
		}
		return truthy(v), nil
	default:
		return true, nil
	}
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}
