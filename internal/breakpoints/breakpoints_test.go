package breakpoints

import (
	"context"
	"testing"

	"github.com/chromedp/cdproto/debugger"

	"github.com/tmc/dapcore/internal/cdpfake"
	"github.com/tmc/dapcore/internal/scripts"
	"github.com/tmc/dapcore/internal/transform"
)

func TestParseHitCondition(t *testing.T) {
	tests := []struct {
		expr    string
		wantOp  string
		wantVal int
		wantErr bool
	}{
		{"5", ">=", 5, false},
		{">= 3", ">=", 3, false},
		{"> 3", ">", 3, false},
		{"= 10", "=", 10, false},
		{"% 2", "%", 2, false},
		{"nonsense", "", 0, true},
	}
	for _, tt := range tests {
		hc, err := ParseHitCondition(tt.expr)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseHitCondition(%q): expected error", tt.expr)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseHitCondition(%q): %v", tt.expr, err)
		}
		if hc.Operator != tt.wantOp || hc.Operand != tt.wantVal {
			t.Errorf("ParseHitCondition(%q) = %+v, want op=%s val=%d", tt.expr, hc, tt.wantOp, tt.wantVal)
		}
	}
}

func TestShouldPause(t *testing.T) {
	hc := &HitConditionBreakpoint{Operator: ">=", Operand: 3}
	var results []bool
	for i := 0; i < 4; i++ {
		results = append(results, hc.ShouldPause())
	}
	want := []bool{false, false, true, true}
	for i, w := range want {
		if results[i] != w {
			t.Errorf("hit %d: ShouldPause() = %v, want %v", i+1, results[i], w)
		}
	}

	mod := &HitConditionBreakpoint{Operator: "%", Operand: 2}
	if mod.ShouldPause() {
		t.Errorf("1st hit of mod-2 should not pause")
	}
	if !mod.ShouldPause() {
		t.Errorf("2nd hit of mod-2 should pause")
	}
}

func TestSetBreakpointsKnownScript(t *testing.T) {
	fake := &cdpfake.Client{}
	reg := scripts.New(transform.IdentityPathTransformer{}, transform.IdentitySourceMapTransformer{}, nil)
	reg.Observe("1", "file:///a/b.js", "")

	mgr := New(fake, reg, transform.IdentityPathTransformer{}, transform.IdentitySourceMapTransformer{}, transform.LineColumnTransformer{}, nil)

	results, err := mgr.SetBreakpoints(context.Background(), "file:///a/b.js", []Line{{Line: 10}})
	if err != nil {
		t.Fatalf("SetBreakpoints: %v", err)
	}
	if len(results) != 1 || !results[0].Verified {
		t.Fatalf("expected one verified breakpoint, got %+v", results)
	}
}

func TestSetBreakpointsPendingThenResolved(t *testing.T) {
	fake := &cdpfake.Client{}
	var verifiedID int
	reg := scripts.New(transform.IdentityPathTransformer{}, transform.IdentitySourceMapTransformer{}, nil)
	mgr := New(fake, reg, transform.IdentityPathTransformer{}, transform.IdentitySourceMapTransformer{}, transform.LineColumnTransformer{}, func(id, line, column int) {
		verifiedID = id
	})
	reg = scripts.New(transform.IdentityPathTransformer{}, transform.IdentitySourceMapTransformer{}, mgr.OnScriptResolved)
	mgr.registry = reg

	results, err := mgr.SetBreakpoints(context.Background(), "file:///missing.js", []Line{{Line: 10}})
	if err != nil {
		t.Fatalf("SetBreakpoints: %v", err)
	}
	if len(results) != 1 || results[0].Verified {
		t.Fatalf("expected one unverified breakpoint, got %+v", results)
	}
	wantID := results[0].ID

	reg.Observe("1", "file:///missing.js", "")

	if verifiedID != wantID {
		t.Fatalf("expected pending breakpoint %d to verify, got %d", wantID, verifiedID)
	}
}

func TestOnBreakpointResolvedReportsOwningClientID(t *testing.T) {
	fake := &cdpfake.Client{}
	var gotID, gotLine, gotCol int
	reg := scripts.New(transform.IdentityPathTransformer{}, transform.IdentitySourceMapTransformer{}, nil)
	reg.Observe("1", "file:///a/b.js", "")

	mgr := New(fake, reg, transform.IdentityPathTransformer{}, transform.IdentitySourceMapTransformer{}, transform.LineColumnTransformer{}, func(id, line, column int) {
		gotID, gotLine, gotCol = id, line, column
	})

	results, err := mgr.SetBreakpoints(context.Background(), "file:///a/b.js", []Line{{Line: 10}})
	if err != nil {
		t.Fatalf("SetBreakpoints: %v", err)
	}
	clientID := results[0].ID

	col := int64(4)
	mgr.OnBreakpointResolved("bp-1", &debugger.Location{LineNumber: 12, ColumnNumber: &col})

	if gotID != clientID {
		t.Fatalf("OnBreakpointResolved reported client id %d, want %d", gotID, clientID)
	}
	if gotLine != 12 || gotCol != 4 {
		t.Fatalf("OnBreakpointResolved reported line/col %d/%d, want 12/4", gotLine, gotCol)
	}
}

func TestClearAllBreakpointsRemovesOneAtATime(t *testing.T) {
	fake := &cdpfake.Client{}
	reg := scripts.New(transform.IdentityPathTransformer{}, transform.IdentitySourceMapTransformer{}, nil)
	reg.Observe("1", "file:///a/b.js", "")
	mgr := New(fake, reg, transform.IdentityPathTransformer{}, transform.IdentitySourceMapTransformer{}, transform.LineColumnTransformer{}, nil)

	if _, err := mgr.SetBreakpoints(context.Background(), "file:///a/b.js", []Line{{Line: 1}, {Line: 2}}); err != nil {
		t.Fatalf("first SetBreakpoints: %v", err)
	}
	if _, err := mgr.SetBreakpoints(context.Background(), "file:///a/b.js", []Line{{Line: 3}}); err != nil {
		t.Fatalf("second SetBreakpoints: %v", err)
	}

	removeCalls := 0
	for _, c := range fake.Calls {
		if c == "RemoveBreakpoint" {
			removeCalls++
		}
	}
	if removeCalls != 2 {
		t.Fatalf("expected 2 RemoveBreakpoint calls (one per prior committed line), got %d", removeCalls)
	}
}
