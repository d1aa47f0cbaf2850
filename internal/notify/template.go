package notify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hazyhaar/webwatch/internal/comparator"
	"github.com/hazyhaar/webwatch/internal/config"
)

// renderChangeMessage picks the watch's messageTemplate when set, else the
// default "<name>: <prev> → <curr> (<diff>)" rendering.
func renderChangeMessage(watch *config.WatchConfig, ev ChangeEvent) string {
	if watch.MessageTemplate != "" {
		return renderTemplate(watch.MessageTemplate, watch, ev)
	}
	return defaultChangeMessage(watch, ev)
}

func defaultChangeMessage(watch *config.WatchConfig, ev ChangeEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s changed\n", displayName(watch))

	for _, c := range ev.Changes {
		fmt.Fprintf(&b, "%s: %s", c.Name, changeLine(c))
		b.WriteString("\n")
	}

	b.WriteString(watch.URL)
	return b.String()
}

func changeLine(c comparator.Change) string {
	switch c.Comparator {
	case "added", "removed", "addedOrRemoved":
		m, _ := c.Details.(map[string]interface{})
		var parts []string
		if added, ok := m["added"].([]interface{}); ok && len(added) > 0 {
			parts = append(parts, fmt.Sprintf("added %s", joinValues(added)))
		}
		if removed, ok := m["removed"].([]interface{}); ok && len(removed) > 0 {
			parts = append(parts, fmt.Sprintf("removed %s", joinValues(removed)))
		}
		if len(parts) == 0 {
			return "changed"
		}
		return strings.Join(parts, ", ")
	case "numeric", "increased", "decreased", "length":
		m, _ := c.Details.(map[string]interface{})
		return fmt.Sprintf("%v → %v (%v)", m["previous"], m["current"], m["diff"])
	default:
		return fmt.Sprintf("%s → %s", stringifyValue(c.Previous), stringifyValue(c.Current))
	}
}

func joinValues(items []interface{}) string {
	parts := make([]string, len(items))
	for i, v := range items {
		parts[i] = stringifyValue(v)
	}
	return strings.Join(parts, ", ")
}

func stringifyValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "(none)"
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

func renderErrorMessage(watch *config.WatchConfig, ev ErrorEvent) string {
	return fmt.Sprintf("%s failed %d consecutive times: %v\n%s", displayName(watch), ev.FailCount, ev.Err, watch.URL)
}

func displayName(watch *config.WatchConfig) string {
	if watch.Name != "" {
		return watch.Name
	}
	return watch.WatchID()
}

// renderTemplate substitutes the placeholder set into a messageTemplate
// document. Unknown placeholders are left untouched.
func renderTemplate(tmpl string, watch *config.WatchConfig, ev ChangeEvent) string {
	replacer := []string{
		"{{name}}", displayName(watch),
		"{{url}}", watch.URL,
		"{{timestamp}}", ev.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
		"{{changes}}", changesSummary(ev.Changes),
		"{{data}}", stringifyValue(ev.Current),
	}

	added, removed := flattenAddedRemoved(ev.Changes)
	replacer = append(replacer,
		"{{added}}", joinValues(added),
		"{{removed}}", joinValues(removed),
		"{{addedList}}", bulletList(added),
		"{{removedList}}", bulletList(removed),
		"{{addedCount}}", fmt.Sprintf("%d", len(added)),
		"{{removedCount}}", fmt.Sprintf("%d", len(removed)),
	)

	out := strings.NewReplacer(replacer...).Replace(tmpl)
	out = substituteFieldPlaceholders(out, "current", ev.Current)
	out = substituteFieldPlaceholders(out, "previous", ev.Previous)
	out = substituteDiffPlaceholders(out, ev.Changes)
	return out
}

func changesSummary(changes []comparator.Change) string {
	parts := make([]string, 0, len(changes))
	for _, c := range changes {
		parts = append(parts, fmt.Sprintf("%s: %s", c.Name, changeLine(c)))
	}
	return strings.Join(parts, "; ")
}

func flattenAddedRemoved(changes []comparator.Change) (added, removed []interface{}) {
	for _, c := range changes {
		m, ok := c.Details.(map[string]interface{})
		if !ok {
			continue
		}
		if a, ok := m["added"].([]interface{}); ok {
			added = append(added, a...)
		}
		if r, ok := m["removed"].([]interface{}); ok {
			removed = append(removed, r...)
		}
	}
	return added, removed
}

func bulletList(items []interface{}) string {
	if len(items) == 0 {
		return ""
	}
	lines := make([]string, len(items))
	for i, v := range items {
		lines[i] = "- " + stringifyValue(v)
	}
	return strings.Join(lines, "\n")
}

// substituteFieldPlaceholders replaces {{current.FIELD}} / {{previous.FIELD}}
// with the named field's current/previous value.
func substituteFieldPlaceholders(s, prefix string, values map[string]interface{}) string {
	for len(s) > 0 {
		start := strings.Index(s, "{{"+prefix+".")
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], "}}")
		if end == -1 {
			break
		}
		end += start
		field := s[start+len(prefix)+3 : end]
		s = s[:start] + stringifyValue(values[field]) + s[end+2:]
	}
	return s
}

func substituteDiffPlaceholders(s string, changes []comparator.Change) string {
	byName := make(map[string]comparator.Change, len(changes))
	for _, c := range changes {
		byName[c.Name] = c
	}
	for len(s) > 0 {
		start := strings.Index(s, "{{diff.")
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], "}}")
		if end == -1 {
			break
		}
		end += start
		field := s[start+7 : end]
		value := ""
		if c, ok := byName[field]; ok {
			if m, ok := c.Details.(map[string]interface{}); ok {
				value = fmt.Sprintf("%v → %v (%s)", m["previous"], m["current"], signedDiff(m["diff"]))
			}
		}
		s = s[:start] + value + s[end+2:]
	}
	return s
}

// signedDiff renders a numeric diff with an explicit leading sign, e.g. "+3"
// or "-2", matching the "prev → curr (±diff)" notification format.
func signedDiff(v interface{}) string {
	f, ok := toFloat(v)
	if !ok {
		return stringifyValue(v)
	}
	if f >= 0 {
		return fmt.Sprintf("+%v", trimFloat(f))
	}
	return fmt.Sprintf("%v", trimFloat(f))
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}

// trimFloat returns an int when the diff has no fractional part, so a
// message reads "+3" rather than "+3.0" for the common case of counts.
func trimFloat(f float64) interface{} {
	if f == float64(int64(f)) {
		return int64(f)
	}
	return f
}
