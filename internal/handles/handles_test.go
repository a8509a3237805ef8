package handles

import "testing"

func TestTableCreateGet(t *testing.T) {
	tbl := New[string]()
	h1 := tbl.Create("frame-0")
	h2 := tbl.Create("frame-1")
	if h1 == h2 {
		t.Fatalf("expected distinct handles, got %d and %d", h1, h2)
	}
	v, ok := tbl.Get(h1)
	if !ok || v != "frame-0" {
		t.Fatalf("Get(%d) = %q, %v; want frame-0, true", h1, v, ok)
	}
	if _, ok := tbl.Get(0); ok {
		t.Fatalf("handle 0 must always be invalid")
	}
	if _, ok := tbl.Get(99); ok {
		t.Fatalf("out-of-range handle must be invalid")
	}
}

func TestTableReset(t *testing.T) {
	tbl := New[int]()
	h := tbl.Create(42)
	tbl.Reset()
	if _, ok := tbl.Get(h); ok {
		t.Fatalf("expected handle to be invalidated by Reset")
	}
	if tbl.Len() != 0 {
		t.Fatalf("expected empty table after Reset, got len %d", tbl.Len())
	}
	h2 := tbl.Create(43)
	if h2 != 1 {
		t.Fatalf("expected handle numbering to restart at 1 after Reset, got %d", h2)
	}
}

func TestReverseTableGetOrCreate(t *testing.T) {
	rt := NewReverse[string]()
	h1 := rt.GetOrCreate("scriptId-1")
	h2 := rt.GetOrCreate("scriptId-2")
	h1Again := rt.GetOrCreate("scriptId-1")
	if h1 != h1Again {
		t.Fatalf("expected GetOrCreate to reuse handle for repeated value, got %d and %d", h1, h1Again)
	}
	if h1 == h2 {
		t.Fatalf("expected distinct handles for distinct values")
	}
	if v, ok := rt.Get(h2); !ok || v != "scriptId-2" {
		t.Fatalf("Get(%d) = %q, %v; want scriptId-2, true", h2, v, ok)
	}
	if h, ok := rt.HandleFor("scriptId-1"); !ok || h != h1 {
		t.Fatalf("HandleFor(scriptId-1) = %d, %v; want %d, true", h, ok, h1)
	}
}

func TestReverseTableReset(t *testing.T) {
	rt := NewReverse[int]()
	rt.GetOrCreate(7)
	rt.Reset()
	if _, ok := rt.HandleFor(7); ok {
		t.Fatalf("expected value lookup to be cleared by Reset")
	}
	h := rt.GetOrCreate(7)
	if h != 1 {
		t.Fatalf("expected handle numbering to restart at 1 after Reset, got %d", h)
	}
}
