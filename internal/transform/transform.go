// Package transform implements the pure data reshapers, applied to
// extractor output after extraction and before comparison. Every transform
// tolerates nil by returning it unchanged, and no-ops on a type mismatch
// rather than erroring — extractor output is heterogeneous JSON-shaped data
// and the transform pipeline must never abort a run over a shape mismatch.
package transform

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hazyhaar/webwatch/internal/config"
	"github.com/hazyhaar/webwatch/internal/jsonpath"
)

// Record is the `{value, text}` shape the `options` extractor and several
// transforms (filter, map/pluck) operate on.
type Record struct {
	Value string `json:"value"`
	Text  string `json:"text"`
}

// ApplyAll threads value through specs in order.
func ApplyAll(specs []config.TransformConfig, value interface{}) interface{} {
	for _, spec := range specs {
		value = Apply(spec, value)
	}
	return value
}

// Apply runs one transform. Unknown transform names are identity.
func Apply(spec config.TransformConfig, value interface{}) interface{} {
	if value == nil {
		return nil
	}

	switch spec.Type {
	case "flatten":
		depth := 1
		if spec.Depth != nil {
			depth = *spec.Depth
		}
		return flatten(value, depth)
	case "unique":
		return unique(value)
	case "sort":
		return sortSeq(value, spec.Key, spec.Desc)
	case "reverse":
		return reverseSeq(value)
	case "join":
		sep := spec.Separator
		if sep == "" {
			sep = ", "
		}
		return join(value, sep)
	case "split":
		sep := spec.Separator
		if sep == "" {
			sep = ","
		}
		return split(value, sep)
	case "first":
		return firstOf(value)
	case "last":
		return lastOf(value)
	case "slice":
		start := 0
		if spec.Start != nil {
			start = *spec.Start
		}
		return sliceSeq(value, start, spec.End)
	case "filter":
		return filterSeq(value, spec.Include, spec.Exclude)
	case "map", "pluck":
		return pluck(value, spec.Key)
	case "trim":
		return mapStrings(value, strings.TrimSpace)
	case "lowercase":
		return mapStrings(value, strings.ToLower)
	case "uppercase":
		return mapStrings(value, strings.ToUpper)
	case "regex":
		return regexMatch(value, spec.Pattern, spec.Flags)
	case "replace":
		return regexReplace(value, spec.Pattern, spec.Replacement, spec.Flags)
	case "parseNumber":
		return parseNumber(value)
	case "parseJson":
		return parseJSON(value)
	case "jsonPath":
		v, ok := jsonpath.Get(value, spec.Path)
		if !ok {
			return nil
		}
		return v
	case "compact":
		return compact(value)
	default:
		if f, ok := extras[spec.Type]; ok {
			return f(value)
		}
		return value
	}
}

func toSeq(value interface{}) ([]interface{}, bool) {
	seq, ok := value.([]interface{})
	return seq, ok
}

func flatten(value interface{}, depth int) interface{} {
	seq, ok := toSeq(value)
	if !ok {
		return value
	}
	return flattenSeq(seq, depth)
}

func flattenSeq(seq []interface{}, depth int) []interface{} {
	if depth <= 0 {
		return seq
	}
	var out []interface{}
	for _, v := range seq {
		if inner, ok := v.([]interface{}); ok {
			out = append(out, flattenSeq(inner, depth-1)...)
		} else {
			out = append(out, v)
		}
	}
	return out
}

func unique(value interface{}) interface{} {
	seq, ok := toSeq(value)
	if !ok {
		return value
	}
	seen := make(map[string]struct{}, len(seq))
	var out []interface{}
	for _, v := range seq {
		key := structuralKey(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

func structuralKey(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func sortSeq(value interface{}, key string, desc bool) interface{} {
	seq, ok := toSeq(value)
	if !ok {
		return value
	}
	out := append([]interface{}{}, seq...)
	less := func(i, j int) bool {
		return compareLess(sortKeyOf(out[i], key), sortKeyOf(out[j], key))
	}
	if desc {
		sort.SliceStable(out, func(i, j int) bool { return less(j, i) })
	} else {
		sort.SliceStable(out, less)
	}
	return out
}

func sortKeyOf(v interface{}, key string) interface{} {
	if key == "" {
		return v
	}
	if m, ok := v.(map[string]interface{}); ok {
		return m[key]
	}
	return v
}

func compareLess(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af < bf
	}
	return fmt.Sprintf("%v", a) < fmt.Sprintf("%v", b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func reverseSeq(value interface{}) interface{} {
	seq, ok := toSeq(value)
	if !ok {
		return value
	}
	out := make([]interface{}, len(seq))
	for i, v := range seq {
		out[len(seq)-1-i] = v
	}
	return out
}

func join(value interface{}, sep string) interface{} {
	seq, ok := toSeq(value)
	if !ok {
		return value
	}
	parts := make([]string, 0, len(seq))
	for _, v := range seq {
		parts = append(parts, stringify(v))
	}
	return strings.Join(parts, sep)
}

func split(value interface{}, sep string) interface{} {
	s, ok := value.(string)
	if !ok {
		return value
	}
	parts := strings.Split(s, sep)
	out := make([]interface{}, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

func firstOf(value interface{}) interface{} {
	seq, ok := toSeq(value)
	if !ok || len(seq) == 0 {
		return nil
	}
	return seq[0]
}

func lastOf(value interface{}) interface{} {
	seq, ok := toSeq(value)
	if !ok || len(seq) == 0 {
		return nil
	}
	return seq[len(seq)-1]
}

func sliceSeq(value interface{}, start int, end *int) interface{} {
	seq, ok := toSeq(value)
	if !ok {
		return value
	}
	n := len(seq)
	s := clampIndex(start, n)
	e := n
	if end != nil {
		e = clampIndex(*end, n)
	}
	if s > e {
		return []interface{}{}
	}
	return append([]interface{}{}, seq[s:e]...)
}

func clampIndex(i, n int) int {
	if i < 0 {
		i = n + i
	}
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

func filterSeq(value interface{}, include, exclude []string) interface{} {
	seq, ok := toSeq(value)
	if !ok {
		return value
	}
	includeSet := toSet(include)
	excludeSet := toSet(exclude)

	var out []interface{}
	for _, v := range seq {
		candidate := recordComparable(v)
		if len(includeSet) > 0 {
			if _, ok := includeSet[candidate]; !ok {
				continue
			}
		}
		if len(excludeSet) > 0 {
			if _, ok := excludeSet[candidate]; ok {
				continue
			}
		}
		out = append(out, v)
	}
	return out
}

func recordComparable(v interface{}) string {
	if m, ok := v.(map[string]interface{}); ok {
		if val, ok := m["value"].(string); ok {
			return val
		}
		if text, ok := m["text"].(string); ok {
			return text
		}
	}
	return stringify(v)
}

func toSet(items []string) map[string]struct{} {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(items))
	for _, i := range items {
		set[i] = struct{}{}
	}
	return set
}

func pluck(value interface{}, key string) interface{} {
	seq, ok := toSeq(value)
	if !ok {
		return value
	}
	out := make([]interface{}, len(seq))
	for i, v := range seq {
		if m, ok := v.(map[string]interface{}); ok {
			out[i] = m[key]
		} else {
			out[i] = v
		}
	}
	return out
}

func mapStrings(value interface{}, f func(string) string) interface{} {
	switch v := value.(type) {
	case string:
		return f(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = mapStrings(item, f)
		}
		return out
	default:
		return value
	}
}

func compileRegex(pattern, flags string) (*regexp.Regexp, error) {
	prefix := ""
	if strings.Contains(flags, "i") {
		prefix = "(?i)"
	}
	return regexp.Compile(prefix + pattern)
}

func regexMatch(value interface{}, pattern, flags string) interface{} {
	s, ok := value.(string)
	if !ok || pattern == "" {
		return value
	}
	re, err := compileRegex(pattern, flags)
	if err != nil {
		return value
	}
	global := strings.Contains(flags, "g") || flags == ""
	if !global {
		m := re.FindString(s)
		if m == "" {
			return nil
		}
		return m
	}
	matches := re.FindAllString(s, -1)
	out := make([]interface{}, len(matches))
	for i, m := range matches {
		out[i] = m
	}
	return out
}

func regexReplace(value interface{}, pattern, replacement, flags string) interface{} {
	s, ok := value.(string)
	if !ok || pattern == "" {
		return value
	}
	re, err := compileRegex(pattern, flags)
	if err != nil {
		return value
	}
	goReplacement := strings.ReplaceAll(replacement, "$", "$$")
	goReplacement = regexp.MustCompile(`\$\$(\d)`).ReplaceAllString(goReplacement, `$$$1`)
	return re.ReplaceAllString(s, goReplacement)
}

var numericStripper = regexp.MustCompile(`[^0-9.\-]`)

func parseNumber(value interface{}) interface{} {
	s, ok := value.(string)
	if !ok {
		if f, ok := value.(float64); ok {
			return f
		}
		return float64(0)
	}
	stripped := numericStripper.ReplaceAllString(s, "")
	if stripped == "" {
		return float64(0)
	}
	f, err := strconv.ParseFloat(stripped, 64)
	if err != nil {
		return float64(0)
	}
	return f
}

func parseJSON(value interface{}) interface{} {
	s, ok := value.(string)
	if !ok {
		return value
	}
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return value
	}
	return v
}

func compact(value interface{}) interface{} {
	seq, ok := toSeq(value)
	if !ok {
		return value
	}
	var out []interface{}
	for _, v := range seq {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]interface{}:
		if text, ok := t["text"].(string); ok {
			return text
		}
		if val, ok := t["value"].(string); ok {
			return val
		}
		b, _ := json.Marshal(t)
		return string(b)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
