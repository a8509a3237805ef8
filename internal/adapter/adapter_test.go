package adapter

import (
	"bytes"
	"context"
	"testing"

	"github.com/chromedp/cdproto/debugger"
	"github.com/google/go-dap"

	"github.com/tmc/dapcore/internal/cdpfake"
	"github.com/tmc/dapcore/internal/config"
	"github.com/tmc/dapcore/internal/dlog"
	"github.com/tmc/dapcore/internal/inspector"
	"github.com/tmc/dapcore/internal/pause"
	"github.com/tmc/dapcore/internal/transform"
)

// mappedSourceMapTransformer treats every generated location as already
// authored, the opposite of transform.IdentitySourceMapTransformer,
// so tests can exercise the "top frame is mapped" branch of smart-step.
type mappedSourceMapTransformer struct{}

func (mappedSourceMapTransformer) AuthoredPath(generatedURL string) (string, bool) {
	return generatedURL, true
}
func (mappedSourceMapTransformer) GeneratedPath(authoredPath string) (string, bool) {
	return authoredPath, true
}
func (mappedSourceMapTransformer) MapToGenerated(authoredPath string, line, column int) (int, int, bool) {
	return line, column, true
}
func (mappedSourceMapTransformer) MapToAuthored(generatedURL string, line, column int) (int, int, bool) {
	return line, column, true
}

func newTestSession(t *testing.T) (*Session, *cdpfake.Client) {
	t.Helper()
	fake := &cdpfake.Client{}
	cfg := &config.LaunchConfig{Request: "launch", PathFormat: "path", SourceMaps: true}
	s := NewSession(&bytes.Buffer{}, fake, cfg, dlog.New(false))
	return s, fake
}

func newSmartStepTestSession(t *testing.T) (*Session, *cdpfake.Client) {
	t.Helper()
	fake := &cdpfake.Client{}
	cfg := &config.LaunchConfig{Request: "launch", PathFormat: "path", SourceMaps: true, SmartStep: true}
	s := NewSession(&bytes.Buffer{}, fake, cfg, dlog.New(false))
	return s, fake
}

func readMessage(t *testing.T, s *Session) dap.Message {
	t.Helper()
	msg, err := dap.ReadProtocolMessage(s.rw.Reader)
	if err != nil {
		t.Fatalf("ReadProtocolMessage: %v", err)
	}
	return msg
}

func TestHandleInitializeSendsCapabilitiesThenInitialized(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	s.handleInitialize(ctx, &dap.InitializeRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: 1, Type: "request"}, Command: "initialize"},
		Arguments: dap.InitializeRequestArguments{PathFormat: "path"},
	})

	resp, ok := readMessage(t, s).(*dap.InitializeResponse)
	if !ok {
		t.Fatalf("expected InitializeResponse")
	}
	if !resp.Body.SupportsSetVariable {
		t.Fatalf("expected SupportsSetVariable capability")
	}

	ev, ok := readMessage(t, s).(*dap.InitializedEvent)
	if !ok {
		t.Fatalf("expected InitializedEvent, got %T", ev)
	}
}

func TestHandleInitializeRejectsBadPathFormat(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	s.handleInitialize(ctx, &dap.InitializeRequest{
		Request:   dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: 1, Type: "request"}, Command: "initialize"},
		Arguments: dap.InitializeRequestArguments{PathFormat: "uri"},
	})

	msg := readMessage(t, s)
	errResp, ok := msg.(*dap.ErrorResponse)
	if !ok {
		t.Fatalf("expected ErrorResponse, got %T", msg)
	}
	if errResp.Success {
		t.Fatalf("expected Success=false")
	}
}

func TestHandleSetBreakpointsKnownScript(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()
	s.registry.Observe("1", "file:///a/b.js", "")

	s.handleSetBreakpoints(ctx, &dap.SetBreakpointsRequest{
		Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: 2, Type: "request"}, Command: "setBreakpoints"},
		Arguments: dap.SetBreakpointsArguments{
			Source:      dap.Source{Path: "file:///a/b.js"},
			Breakpoints: []dap.SourceBreakpoint{{Line: 10}},
		},
	})

	resp, ok := readMessage(t, s).(*dap.SetBreakpointsResponse)
	if !ok {
		t.Fatalf("expected SetBreakpointsResponse")
	}
	if len(resp.Body.Breakpoints) != 1 || !resp.Body.Breakpoints[0].Verified {
		t.Fatalf("expected one verified breakpoint, got %+v", resp.Body.Breakpoints)
	}
}

func TestOnPausedEmitsStoppedWithClassifiedReason(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	s.OnPaused(ctx, pause.PausedEvent{Reason: "exception"}, nil, "")

	ev, ok := readMessage(t, s).(*dap.StoppedEvent)
	if !ok {
		t.Fatalf("expected StoppedEvent")
	}
	if ev.Body.Reason != "debugger statement" {
		t.Fatalf("Body.Reason = %q, want %q", ev.Body.Reason, "debugger statement")
	}
}

func TestOnPausedSmartStepSuppressesUnmappedStepFrame(t *testing.T) {
	s, fake := newSmartStepTestSession(t)
	ctx := context.Background()

	done := s.coord.BeginRequest(pause.ReasonStep)
	done()

	s.OnPaused(ctx, pause.PausedEvent{Reason: ""}, nil, "")

	if _, err := dap.ReadProtocolMessage(s.rw.Reader); err == nil {
		t.Fatalf("expected no StoppedEvent to be emitted for an unmapped smart-stepped frame")
	}

	stepIns := 0
	for _, c := range fake.Calls {
		if c == "StepInto" {
			stepIns++
		}
	}
	if stepIns != 1 {
		t.Fatalf("expected smart-step to auto-issue one StepInto, got %d", stepIns)
	}
}

func TestOnPausedSmartStepAllowsMappedStepFrame(t *testing.T) {
	s, fake := newSmartStepTestSession(t)
	ctx := context.Background()

	s.registry.Observe("1", "file:///a.js", "")
	s.insp = inspector.New(fake, s.registry, s.skip, transform.IdentityPathTransformer{}, mappedSourceMapTransformer{}, s.lineColT, true)

	done := s.coord.BeginRequest(pause.ReasonStep)
	done()

	col := int64(0)
	callFrames := []*debugger.CallFrame{{
		CallFrameID:  "cf-1",
		FunctionName: "foo",
		Location:     &debugger.Location{ScriptID: "1", LineNumber: 5, ColumnNumber: &col},
	}}

	s.OnPaused(ctx, pause.PausedEvent{Reason: ""}, callFrames, "")

	ev, ok := readMessage(t, s).(*dap.StoppedEvent)
	if !ok {
		t.Fatalf("expected a StoppedEvent for a mapped step frame, smart-step should not suppress it")
	}
	if ev.Body.Reason != "step" {
		t.Fatalf("Body.Reason = %q, want %q", ev.Body.Reason, "step")
	}
}
