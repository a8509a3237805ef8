// Package pause coordinates pause, resume, and step requests: it
// classifies why the debuggee stopped, applies smart-step filtering,
// and enforces the ordering guarantee that a DAP stopped event never
// precedes the response to the request that caused it. Hit-condition
// filtering is done by the adapter before a paused event reaches the
// coordinator.
package pause

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
)

// ThreadID is the single reported thread: the debuggee is always
// modeled as monothreaded.
const ThreadID = 1

// stoppedWait is how long the coordinator waits for an in-flight
// step/continue/pause response before emitting stopped anyway.
const stoppedWait = 300 * time.Millisecond

// settleDelay is the wait AwaitSettle imposes before an evaluate is
// dispatched, working around a debuggee quirk where immediate
// post-resume evaluation misbehaves. The delay is applied to every
// evaluate; it is not limited to evaluates that follow a resume.
const settleDelay = 50 * time.Millisecond

// Reason is the internal stop-reason token, separate from its
// localized DAP string.
type Reason string

const (
	ReasonEntry      Reason = "entry"
	ReasonException  Reason = "exception"
	ReasonBreakpoint Reason = "breakpoint"
	ReasonDebugger   Reason = "debugger"
	ReasonFrameEntry Reason = "frame_entry"
	ReasonStep       Reason = "step"
	ReasonUserReq    Reason = "user_request"
)

// Localize maps an internal Reason to the human string shown in the
// client UI. Unknown reasons pass through literally.
func Localize(r Reason) string {
	switch r {
	case ReasonEntry, ReasonException, ReasonBreakpoint, ReasonDebugger:
		return "debugger statement"
	case ReasonFrameEntry:
		return "frame entry"
	case ReasonStep:
		return "step"
	case ReasonUserReq:
		return "user_request"
	default:
		return string(r)
	}
}

// PausedEvent is the subset of a CDP Debugger.paused event the
// coordinator needs. The stack itself is materialized by the
// inspector; the coordinator only classifies why execution stopped.
type PausedEvent struct {
	Reason         string
	HitBreakpoints []string
	Exception      *runtime.RemoteObject
	TopFrameMapped bool // whether the top frame has an authored-source mapping, supplied by the caller
}

// Coordinator tracks the expected stop reason across a single
// outstanding step/continue/pause request.
type Coordinator struct {
	mu             sync.Mutex
	expectedReason Reason
	stepDone       chan struct{}

	smartStep  bool
	sourceMaps bool

	stepInFunc func(ctx context.Context) error
	resumeFunc func(ctx context.Context) error

	skippedSteps int
}

// New creates a Coordinator. stepIn is the CDP action the coordinator
// issues on its own initiative (smart-step auto-stepIn). resume is
// stored but not called by the coordinator; the adapter issues the
// hit-condition silent resume itself.
func New(smartStep, sourceMaps bool, stepIn, resume func(ctx context.Context) error) *Coordinator {
	return &Coordinator{
		smartStep:  smartStep,
		sourceMaps: sourceMaps,
		stepInFunc: stepIn,
		resumeFunc: resume,
	}
}

// BeginRequest records that requestReason is now the expected stop
// reason for the command about to be issued, and returns a function
// the caller must invoke once that command's response has arrived.
func (c *Coordinator) BeginRequest(reason Reason) (done func()) {
	c.mu.Lock()
	c.expectedReason = reason
	ch := make(chan struct{})
	c.stepDone = ch
	c.mu.Unlock()
	return func() { close(ch) }
}

// awaitRequestSettled blocks until the in-flight request's completion
// function has run, or stoppedWait elapses, whichever comes first.
func (c *Coordinator) awaitRequestSettled() {
	c.mu.Lock()
	ch := c.stepDone
	c.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case <-ch:
	case <-time.After(stoppedWait):
	}
}

// Classify determines the stop reason for a CDP paused event, applying
// smart-step. It returns ok=false when the event should be entirely
// suppressed (a smart-step auto-continuation), in which case the caller
// must not emit a stopped event. Hit-condition misses are filtered by
// the caller before Classify is reached.
func (c *Coordinator) Classify(ctx context.Context, ev PausedEvent) (reason Reason, ok bool) {
	c.awaitRequestSettled()

	switch {
	case ev.Reason == "exception":
		reason = ReasonException
	case len(ev.HitBreakpoints) > 0:
		reason = ReasonBreakpoint
	default:
		c.mu.Lock()
		expected := c.expectedReason
		c.mu.Unlock()
		if expected != "" {
			reason = expected
		} else {
			reason = ReasonDebugger
		}
	}

	if reason == ReasonStep && c.sourceMaps && c.smartStep && !ev.TopFrameMapped {
		c.skippedSteps++
		if c.stepInFunc != nil {
			_ = c.stepInFunc(ctx)
		}
		return reason, false
	}

	return reason, true
}

// AwaitSettle blocks for the post-resume settle delay; the evaluator
// calls this before dispatching every evaluate, whether or not a step
// or resume preceded it.
func AwaitSettle(ctx context.Context) {
	t := time.NewTimer(settleDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// SkippedSteps reports how many automatic smart-step stepIns have been
// issued since the Coordinator was created.
func (c *Coordinator) SkippedSteps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.skippedSteps
}
