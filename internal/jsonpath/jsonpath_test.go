package jsonpath

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, s string) interface{} {
	t.Helper()
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestGet_DottedField(t *testing.T) {
	v := decode(t, `{"a":{"b":42}}`)
	got, ok := Get(v, "a.b")
	if !ok || got != float64(42) {
		t.Fatalf("Get: got %v, %v", got, ok)
	}
}

func TestGet_Index(t *testing.T) {
	v := decode(t, `{"items":[10,20,30]}`)
	got, ok := Get(v, "items[1]")
	if !ok || got != float64(20) {
		t.Fatalf("Get: got %v, %v", got, ok)
	}
}

func TestGet_QuotedField(t *testing.T) {
	v := decode(t, `{"a b":{"c":"x"}}`)
	got, ok := Get(v, `["a b"].c`)
	if !ok || got != "x" {
		t.Fatalf("Get: got %v, %v", got, ok)
	}
}

func TestGet_MissingReturnsFalse(t *testing.T) {
	v := decode(t, `{"a":1}`)
	if _, ok := Get(v, "a.b.c"); ok {
		t.Fatal("Get: expected not-found for missing path")
	}
}

func TestGet_EmptyPathReturnsWholeValue(t *testing.T) {
	v := decode(t, `{"a":1}`)
	got, ok := Get(v, "")
	if !ok {
		t.Fatal("Get: expected ok for empty path")
	}
	if m, isMap := got.(map[string]interface{}); !isMap || m["a"] != float64(1) {
		t.Fatalf("Get: unexpected value %v", got)
	}
}

func TestGet_IndexOutOfRange(t *testing.T) {
	v := decode(t, `{"items":[1]}`)
	if _, ok := Get(v, "items[5]"); ok {
		t.Fatal("Get: expected not-found for out-of-range index")
	}
}
