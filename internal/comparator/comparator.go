// Package comparator implements the change-verdict procedures: one
// comparator per extracted field, resolved per-field with a watch-level
// default, producing a change record when the verdict is true.
package comparator

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
)

// Change is the record emitted for one field whose comparator reported a
// change, in extractor-declaration order.
type Change struct {
	Name       string      `json:"name"`
	Previous   interface{} `json:"previous,omitempty"`
	Current    interface{} `json:"current,omitempty"`
	Details    interface{} `json:"details,omitempty"`
	Comparator string      `json:"comparator"`
}

// Field is one entry to compare: its name, the resolved comparator, current
// and prior values, and the numeric threshold for numeric/increased/decreased.
type Field struct {
	Name       string
	Comparator string
	Current    interface{}
	Previous   interface{}
	HasPrior   bool
	Threshold  float64
}

// Compare evaluates one field and returns (change, emitted). Unknown
// comparator names degrade to hash.
func Compare(f Field) (Change, bool) {
	switch normalize(f.Comparator) {
	case "hash":
		return compareHash(f)
	case "exact":
		return compareExact(f)
	case "length":
		return compareLength(f)
	case "added":
		return compareSetDiff(f, true, false)
	case "removed":
		return compareSetDiff(f, false, true)
	case "addedOrRemoved":
		return compareSetDiff(f, true, true)
	case "numeric":
		return compareNumeric(f, numericAbs)
	case "increased":
		return compareNumeric(f, numericIncreased)
	case "decreased":
		return compareNumeric(f, numericDecreased)
	case "none":
		return Change{}, false
	case "custom":
		// No trusted in-process script evaluator is wired; a custom
		// comparator is treated as "not changed".
		return Change{}, false
	default:
		return compareHash(f)
	}
}

func normalize(name string) string {
	if name == "" {
		return "hash"
	}
	return name
}

func hashJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:]), nil
}

func compareHash(f Field) (Change, bool) {
	curHash, err1 := hashJSON(f.Current)
	prevHash, err2 := hashJSON(f.Previous)
	if err1 != nil || err2 != nil {
		return Change{}, false
	}
	if curHash == prevHash {
		return Change{}, false
	}
	return change(f, nil), true
}

func compareExact(f Field) (Change, bool) {
	curJSON, err1 := json.Marshal(f.Current)
	prevJSON, err2 := json.Marshal(f.Previous)
	if err1 != nil || err2 != nil {
		return Change{}, false
	}
	if string(curJSON) == string(prevJSON) {
		return Change{}, false
	}
	return change(f, nil), true
}

func lengthOf(v interface{}) int {
	switch t := v.(type) {
	case string:
		return len(t)
	case []interface{}:
		return len(t)
	case nil:
		return 0
	default:
		return 0
	}
}

func compareLength(f Field) (Change, bool) {
	curLen := lengthOf(f.Current)
	prevLen := 0
	if f.HasPrior {
		prevLen = lengthOf(f.Previous)
	}
	if curLen == prevLen {
		return Change{}, false
	}
	details := map[string]interface{}{
		"previous": prevLen,
		"current":  curLen,
		"diff":     curLen - prevLen,
	}
	return change(f, details), true
}

func toSet(v interface{}) map[string]interface{} {
	seq, ok := v.([]interface{})
	if !ok {
		return nil
	}
	set := make(map[string]interface{}, len(seq))
	for _, item := range seq {
		set[memberKey(item)] = item
	}
	return set
}

func memberKey(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]interface{}, []interface{}:
		b, _ := json.Marshal(t)
		return string(b)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func compareSetDiff(f Field, wantAdded, wantRemoved bool) (Change, bool) {
	curSeq, curIsSeq := f.Current.([]interface{})
	if !curIsSeq {
		return Change{}, false
	}
	prevSeq, prevIsSeq := f.Previous.([]interface{})

	curSet := toSet(curSeq)
	prevSet := toSet(prevSeq)

	var added, removed []interface{}
	if wantAdded {
		for k, v := range curSet {
			if _, ok := prevSet[k]; !ok {
				added = append(added, v)
			}
		}
	}
	if wantRemoved && prevIsSeq {
		for k, v := range prevSet {
			if _, ok := curSet[k]; !ok {
				removed = append(removed, v)
			}
		}
	}

	if len(added) == 0 && len(removed) == 0 {
		return Change{}, false
	}

	details := map[string]interface{}{}
	if wantAdded {
		details["added"] = orderedByOriginal(curSeq, added)
	}
	if wantRemoved {
		details["removed"] = orderedByOriginal(prevSeq, removed)
	}
	return change(f, details), true
}

// orderedByOriginal preserves the original sequence order of the selected
// members instead of map iteration order.
func orderedByOriginal(original []interface{}, selected []interface{}) []interface{} {
	if len(selected) == 0 {
		return []interface{}{}
	}
	want := make(map[string]struct{}, len(selected))
	for _, v := range selected {
		want[memberKey(v)] = struct{}{}
	}
	var out []interface{}
	for _, v := range original {
		if _, ok := want[memberKey(v)]; ok {
			out = append(out, v)
		}
	}
	return out
}

func parseFloatValue(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

type numericVerdict func(cur, prev, threshold float64) bool

func numericAbs(cur, prev, threshold float64) bool {
	diff := cur - prev
	if diff < 0 {
		diff = -diff
	}
	return diff > threshold
}

func numericIncreased(cur, prev, threshold float64) bool {
	return cur > prev+threshold
}

func numericDecreased(cur, prev, threshold float64) bool {
	return cur < prev-threshold
}

func compareNumeric(f Field, verdict numericVerdict) (Change, bool) {
	cur, curOK := parseFloatValue(f.Current)
	prev, prevOK := parseFloatValue(f.Previous)
	if !curOK {
		return Change{}, false
	}
	if !prevOK {
		prev = 0
	}
	if !verdict(cur, prev, f.Threshold) {
		return Change{}, false
	}
	details := map[string]interface{}{
		"previous": prev,
		"current":  cur,
		"diff":     cur - prev,
	}
	return change(f, details), true
}

func change(f Field, details interface{}) Change {
	return Change{
		Name:       f.Name,
		Previous:   f.Previous,
		Current:    f.Current,
		Details:    details,
		Comparator: normalize(f.Comparator),
	}
}
