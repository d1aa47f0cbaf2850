package state

import (
	"testing"
	"time"
)

func TestLoad_MissingReturnsNil(t *testing.T) {
	s := NewStore(t.TempDir())
	rec, err := s.Load("nope")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec != nil {
		t.Fatalf("Load: expected nil for missing watch, got %+v", rec)
	}
}

func TestSaveSuccess_ThenLoad(t *testing.T) {
	s := NewStore(t.TempDir())
	now := time.Now().UTC().Truncate(time.Second)
	if err := s.SaveSuccess("w1", map[string]interface{}{"a": float64(1)}, now); err != nil {
		t.Fatalf("SaveSuccess: %v", err)
	}

	rec, err := s.Load("w1")
	if err != nil || rec == nil {
		t.Fatalf("Load: %v, %+v", err, rec)
	}
	m, ok := rec.Data.(map[string]interface{})
	if !ok || m["a"] != float64(1) {
		t.Fatalf("Data: got %v", rec.Data)
	}
}

func TestSaveError_DoesNotOverwriteData(t *testing.T) {
	s := NewStore(t.TempDir())
	now := time.Now().UTC()

	if err := s.SaveSuccess("w1", "snapshot-1", now); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveError("w1", "boom", now.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}

	rec, err := s.Load("w1")
	if err != nil || rec == nil {
		t.Fatalf("Load: %v, %+v", err, rec)
	}
	if rec.Data != "snapshot-1" {
		t.Fatalf("Data: expected snapshot to survive a failed run, got %v", rec.Data)
	}
	if rec.LastError != "boom" {
		t.Fatalf("LastError: got %q", rec.LastError)
	}
}

func TestScreenshotPath_Format(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	got := ScreenshotPath("/shots", "abc123", at)
	want := "/shots/error-abc123-1700000000123.png"
	if got != want {
		t.Fatalf("ScreenshotPath: got %q, want %q", got, want)
	}
}
