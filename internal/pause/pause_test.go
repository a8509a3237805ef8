package pause

import (
	"context"
	"testing"
)

func TestLocalize(t *testing.T) {
	tests := map[Reason]string{
		ReasonDebugger:   "debugger statement",
		ReasonBreakpoint: "debugger statement",
		ReasonFrameEntry: "frame entry",
		ReasonStep:       "step",
		Reason("custom"): "custom",
	}
	for r, want := range tests {
		if got := Localize(r); got != want {
			t.Errorf("Localize(%v) = %q, want %q", r, got, want)
		}
	}
}

func TestClassifyException(t *testing.T) {
	c := New(false, false, nil, nil)
	reason, ok := c.Classify(context.Background(), PausedEvent{Reason: "exception"})
	if !ok || reason != ReasonException {
		t.Fatalf("Classify(exception) = %v, %v", reason, ok)
	}
}

func TestClassifyBreakpoint(t *testing.T) {
	c := New(false, false, nil, nil)
	reason, ok := c.Classify(context.Background(), PausedEvent{HitBreakpoints: []string{"bp-1"}})
	if !ok || reason != ReasonBreakpoint {
		t.Fatalf("Classify(breakpoint) = %v, %v", reason, ok)
	}
}

func TestClassifyExpectedReason(t *testing.T) {
	c := New(false, false, nil, nil)
	done := c.BeginRequest(ReasonStep)
	done()
	reason, ok := c.Classify(context.Background(), PausedEvent{})
	if !ok || reason != ReasonStep {
		t.Fatalf("Classify(expected=step) = %v, %v", reason, ok)
	}
}

func TestClassifyDefaultsToDebugger(t *testing.T) {
	c := New(false, false, nil, nil)
	reason, ok := c.Classify(context.Background(), PausedEvent{})
	if !ok || reason != ReasonDebugger {
		t.Fatalf("Classify(no expectation) = %v, %v", reason, ok)
	}
}

func TestClassifySmartStepSuppresses(t *testing.T) {
	stepInCalled := false
	stepIn := func(ctx context.Context) error {
		stepInCalled = true
		return nil
	}
	c := New(true, true, stepIn, nil)
	done := c.BeginRequest(ReasonStep)
	done()

	reason, ok := c.Classify(context.Background(), PausedEvent{TopFrameMapped: false})
	if ok {
		t.Fatalf("expected smart-step to suppress the stopped event, got ok=true reason=%v", reason)
	}
	if !stepInCalled {
		t.Fatalf("expected smart-step to auto-issue stepIn")
	}
	if c.SkippedSteps() != 1 {
		t.Fatalf("expected SkippedSteps() == 1, got %d", c.SkippedSteps())
	}
}

func TestClassifySmartStepAllowsMappedFrame(t *testing.T) {
	c := New(true, true, func(ctx context.Context) error { return nil }, nil)
	done := c.BeginRequest(ReasonStep)
	done()

	reason, ok := c.Classify(context.Background(), PausedEvent{TopFrameMapped: true})
	if !ok || reason != ReasonStep {
		t.Fatalf("expected mapped step frame to stop normally, got %v, %v", reason, ok)
	}
}
