package transform

import (
	"reflect"
	"testing"

	"github.com/hazyhaar/webwatch/internal/config"
)

func seq(items ...interface{}) []interface{} { return items }

func TestApply_Trim(t *testing.T) {
	got := Apply(config.TransformConfig{Type: "trim"}, "  hi  ")
	if got != "hi" {
		t.Fatalf("trim: got %v", got)
	}
}

func TestApply_NilPassesThrough(t *testing.T) {
	if got := Apply(config.TransformConfig{Type: "trim"}, nil); got != nil {
		t.Fatalf("trim(nil): got %v", got)
	}
}

func TestApply_UnknownIsIdentity(t *testing.T) {
	if got := Apply(config.TransformConfig{Type: "nope"}, "x"); got != "x" {
		t.Fatalf("unknown transform: got %v", got)
	}
}

func TestApply_TrimTypeMismatchNoop(t *testing.T) {
	if got := Apply(config.TransformConfig{Type: "trim"}, float64(5)); got != float64(5) {
		t.Fatalf("trim(number): got %v", got)
	}
}

func TestScenario2_NumericThreshold(t *testing.T) {
	specs := []config.TransformConfig{{Type: "trim"}, {Type: "parseNumber"}}
	got := ApplyAll(specs, "€ 118.50")
	if got != 118.5 {
		t.Fatalf("ApplyAll: got %v, want 118.5", got)
	}
}

func TestProperty8_SplitJoinRoundTrip(t *testing.T) {
	original := seq("a", "b", "c")
	joined := Apply(config.TransformConfig{Type: "join", Separator: "|"}, original)
	back := Apply(config.TransformConfig{Type: "split", Separator: "|"}, joined)
	if !reflect.DeepEqual(back, original) {
		t.Fatalf("split(join(x)) != x: got %v", back)
	}
}

func TestProperty8_ParseJSONRoundTrip(t *testing.T) {
	doc := `{"a":1,"b":[1,2,3]}`
	parsed := Apply(config.TransformConfig{Type: "parseJson"}, doc)
	if m, ok := parsed.(map[string]interface{}); !ok || m["a"] != float64(1) {
		t.Fatalf("parseJson: got %v", parsed)
	}
}

func TestUnique_StructuralEquality(t *testing.T) {
	in := seq("a", "a", "b", map[string]interface{}{"x": float64(1)}, map[string]interface{}{"x": float64(1)})
	got := Apply(config.TransformConfig{Type: "unique"}, in)
	gotSeq, ok := got.([]interface{})
	if !ok || len(gotSeq) != 3 {
		t.Fatalf("unique: got %v", got)
	}
}

func TestCompact_DropsNullAndEmpty(t *testing.T) {
	in := seq("a", "", nil, "b")
	got := Apply(config.TransformConfig{Type: "compact"}, in)
	gotSeq, ok := got.([]interface{})
	if !ok || len(gotSeq) != 2 {
		t.Fatalf("compact: got %v", got)
	}
}

func TestFlatten_DefaultDepthOne(t *testing.T) {
	in := seq(seq(1, 2), seq(3, seq(4)))
	got := Apply(config.TransformConfig{Type: "flatten"}, in)
	gotSeq, ok := got.([]interface{})
	if !ok || len(gotSeq) != 4 {
		t.Fatalf("flatten: got %v", got)
	}
}

func TestSlice_NegativeIndices(t *testing.T) {
	in := seq(1, 2, 3, 4, 5)
	end := -1
	got := Apply(config.TransformConfig{Type: "slice", Start: intp(1), End: &end}, in)
	gotSeq, ok := got.([]interface{})
	if !ok || len(gotSeq) != 3 {
		t.Fatalf("slice: got %v", got)
	}
}

func intp(i int) *int { return &i }
