package dlog

import "testing"

func TestNewAssignsDistinctSessionIDs(t *testing.T) {
	a, b := New(false), New(false)
	if a.SessionID() == "" {
		t.Fatalf("expected a non-empty session ID")
	}
	if a.SessionID() == b.SessionID() {
		t.Fatalf("expected distinct session IDs, got %q twice", a.SessionID())
	}
}

func TestLevelGating(t *testing.T) {
	l := New(false)
	if l.shouldLog(LevelDebug) {
		t.Fatalf("LevelDebug should be gated out at default verbosity")
	}
	if !l.shouldLog(LevelInfo) {
		t.Fatalf("LevelInfo should pass at default verbosity")
	}

	v := New(true)
	if !v.shouldLog(LevelDebug) {
		t.Fatalf("LevelDebug should pass when verbose")
	}
}
