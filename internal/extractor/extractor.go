// Package extractor implements the extractor catalogue: pulling
// named values out of a loaded page after its action script has run, with
// per-extractor failure isolation, a checkFrames fallback, and a default
// value substituted when neither the main document nor any frame yields a
// result.
package extractor

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/hazyhaar/webwatch/internal/browser"
	"github.com/hazyhaar/webwatch/internal/config"
	"github.com/hazyhaar/webwatch/internal/jsonpath"
	"github.com/hazyhaar/webwatch/internal/transform"
)

// ExtractAll runs every extractor against page in order, applying each
// extractor's transform chain to a successful result. A failing extractor
// never aborts the others; its error is reported separately so the runner
// can decide whether the watch run as a whole failed.
func ExtractAll(page browser.Page, screenshotDir, watchID string, specs []config.ExtractorConfig) (map[string]interface{}, map[string]error) {
	values := make(map[string]interface{}, len(specs))
	errs := make(map[string]error)

	for _, spec := range specs {
		v, err := Extract(page, screenshotDir, watchID, spec)
		if err != nil {
			errs[spec.Name] = err
			continue
		}
		if transforms := spec.EffectiveTransforms(); len(transforms) > 0 {
			v = transform.ApplyAll(transforms, v)
		}
		values[spec.Name] = v
	}

	return values, errs
}

// Extract runs one extractor, trying the main frame first and, when
// CheckFrames is set and the main-frame result is empty or errored, each
// child frame in document order until one yields a non-empty value. A
// configured Default is returned in place of an error.
func Extract(page browser.Page, screenshotDir, watchID string, spec config.ExtractorConfig) (interface{}, error) {
	v, err := extractOnce(page, screenshotDir, watchID, spec)

	if spec.CheckFrames && (err != nil || isEmpty(v)) {
		if frames, ferr := page.Frames(); ferr == nil {
			for _, f := range frames {
				fv, ferr2 := extractOnce(f, screenshotDir, watchID, spec)
				if ferr2 == nil && !isEmpty(fv) {
					v, err = fv, nil
					break
				}
			}
		}
	}

	if err != nil {
		if spec.Default != nil {
			return spec.Default, nil
		}
		return nil, err
	}
	return v, nil
}

func extractOnce(page browser.Page, screenshotDir, watchID string, spec config.ExtractorConfig) (interface{}, error) {
	// xpath:true reinterprets a CSS-typed selector as XPath for any
	// extractor type; the xpath type itself always resolves as XPath.
	useXPath := spec.XPath || spec.Type == "xpath"

	switch spec.Type {
	case "text":
		return withElements(page, spec.Selector, useXPath, func(el browser.Element) (interface{}, error) { return el.Text() })
	case "innerText":
		return withElements(page, spec.Selector, useXPath, func(el browser.Element) (interface{}, error) { return el.InnerText() })
	case "attribute":
		return withElements(page, spec.Selector, useXPath, func(el browser.Element) (interface{}, error) {
			v, ok, err := el.Attribute(spec.Attribute)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, nil
			}
			return v, nil
		})
	case "value":
		return withElements(page, spec.Selector, useXPath, func(el browser.Element) (interface{}, error) { return el.Value() })
	case "html":
		return withElements(page, spec.Selector, useXPath, func(el browser.Element) (interface{}, error) { return el.HTML() })
	case "outerHtml":
		return withElements(page, spec.Selector, useXPath, func(el browser.Element) (interface{}, error) { return el.OuterHTML() })
	case "xpath":
		return withElements(page, spec.Selector, useXPath, func(el browser.Element) (interface{}, error) {
			if spec.Attribute != "" {
				v, _, err := el.Attribute(spec.Attribute)
				return v, err
			}
			return el.Text()
		})
	case "options":
		return extractOptions(page, spec.Selector)
	case "count":
		els, err := queryElements(page, spec.Selector, useXPath)
		if err != nil {
			return nil, err
		}
		return len(els), nil
	case "exists":
		els, err := queryElements(page, spec.Selector, useXPath)
		if err != nil {
			return nil, err
		}
		return len(els) > 0, nil
	case "url":
		return page.URL(), nil
	case "title":
		return page.Title()
	case "evaluate":
		return page.Evaluate(spec.Script)
	case "json", "jsonFromScript":
		selector, xpath := spec.Selector, useXPath
		if selector == "" {
			selector, xpath = "body", false
			if spec.Type == "jsonFromScript" {
				selector = `script[type="application/json"], script[type="application/ld+json"]`
			}
		}
		v, err := extractJSON(page, selector, xpath)
		if err != nil {
			return nil, err
		}
		if spec.Path != "" {
			resolved, ok := jsonpath.Get(v, spec.Path)
			if !ok {
				return nil, fmt.Errorf("extractor: %s: path %q not found", spec.Type, spec.Path)
			}
			return resolved, nil
		}
		return v, nil
	case "screenshot":
		path := spec.Path
		if path == "" {
			path = filepath.Join(screenshotDir, fmt.Sprintf("%s-%s.png", watchID, spec.Name))
		}
		if err := page.Screenshot(path); err != nil {
			return nil, err
		}
		return path, nil
	default:
		return nil, fmt.Errorf("extractor: unknown type %q", spec.Type)
	}
}

// queryElements resolves selector as XPath or CSS depending on useXPath.
func queryElements(page browser.Page, selector string, useXPath bool) ([]browser.Element, error) {
	if useXPath {
		return page.QueryAllXPath(selector)
	}
	return page.QueryAll(selector)
}

// queryElement is the single-match counterpart of queryElements, for
// extractor types that only ever want the first match (json, jsonFromScript).
func queryElement(page browser.Page, selector string, useXPath bool) (browser.Element, bool, error) {
	if useXPath {
		return page.QueryXPath(selector)
	}
	return page.Query(selector)
}

// withElements resolves selector to every matching element and maps fn over
// each, returning the "sequence of ..." shape the comparator and transform
// stages expect for every element-based extractor type.
func withElements(page browser.Page, selector string, useXPath bool, fn func(browser.Element) (interface{}, error)) (interface{}, error) {
	els, err := queryElements(page, selector, useXPath)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("extractor: selector %q: no match", selector)
	}
	out := make([]interface{}, 0, len(els))
	for _, el := range els {
		v, err := fn(el)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func extractOptions(page browser.Page, selector string) (interface{}, error) {
	els, err := page.QueryAll(selector + " option")
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, 0, len(els))
	for _, el := range els {
		text, _ := el.Text()
		value, _ := el.Value()
		out = append(out, map[string]interface{}{"value": value, "text": text})
	}
	return out, nil
}

func extractJSON(page browser.Page, selector string, useXPath bool) (interface{}, error) {
	el, ok, err := queryElement(page, selector, useXPath)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("extractor: selector %q: no match", selector)
	}
	text, err := el.Text()
	if err != nil {
		return nil, err
	}
	if text == "" {
		text, err = el.HTML()
		if err != nil {
			return nil, err
		}
	}
	var v interface{}
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, fmt.Errorf("extractor: parse json: %w", err)
	}
	return v, nil
}

func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []interface{}:
		if len(t) == 0 {
			return true
		}
		for _, el := range t {
			if !isEmpty(el) {
				return false
			}
		}
		return true
	case bool:
		return !t
	default:
		return false
	}
}
