// Package jsonpath implements the minimal dotted/indexed path resolver the
// JSON extractors and the jsonPath transform need. It is not a general
// JSONPath engine (no wildcards, filters, or recursive descent) — just
// `.field`, `[n]`, and `["quoted field"]` steps over a decoded
// map[string]interface{}/[]interface{} tree, grounded in the same
// hand-rolled-DSL idiom the teacher uses for its XPath subset evaluator.
package jsonpath

import (
	"fmt"
	"strconv"
	"strings"
)

// step is one resolved path component: either a field name or an array index.
type step struct {
	field string
	index int
	isIdx bool
}

// Parse splits a path like `a.b[0]["c d"].e` into its steps. A leading "$."
// or "$" root marker is tolerated and stripped.
func Parse(path string) ([]step, error) {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")

	var steps []step
	i := 0
	n := len(path)

	for i < n {
		switch path[i] {
		case '.':
			i++
		case '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("jsonpath: unterminated [ in %q", path)
			}
			inner := path[i+1 : i+end]
			i += end + 1
			inner = strings.Trim(inner, `"'`)
			if idx, err := strconv.Atoi(inner); err == nil {
				steps = append(steps, step{index: idx, isIdx: true})
			} else {
				steps = append(steps, step{field: inner})
			}
		default:
			start := i
			for i < n && path[i] != '.' && path[i] != '[' {
				i++
			}
			field := path[start:i]
			if field != "" {
				steps = append(steps, step{field: field})
			}
		}
	}

	return steps, nil
}

// Get resolves path against a decoded JSON value (the result of
// json.Unmarshal into interface{}). Returns (nil, false) if any step fails
// to resolve — missing fields, out-of-range indices, or type mismatches are
// all treated as "not found" rather than errors, matching the extractor
// engine's null-on-miss contract.
func Get(value interface{}, path string) (interface{}, bool) {
	if path == "" {
		return value, true
	}

	steps, err := Parse(path)
	if err != nil {
		return nil, false
	}

	cur := value
	for _, s := range steps {
		if s.isIdx {
			arr, ok := cur.([]interface{})
			if !ok || s.index < 0 || s.index >= len(arr) {
				return nil, false
			}
			cur = arr[s.index]
			continue
		}
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, present := obj[s.field]
		if !present {
			return nil, false
		}
		cur = v
	}

	return cur, true
}
