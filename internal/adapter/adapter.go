// Package adapter is the façade: it exposes the DAP request surface
// over a byte stream, routes each request to the breakpoint, skip,
// pause, inspector, and evaluator components, and emits DAP events back
// to the client.
package adapter

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto/debugger"
	"github.com/google/go-dap"
	"github.com/pkg/errors"

	"github.com/tmc/dapcore/internal/breakpoints"
	"github.com/tmc/dapcore/internal/cdpclient"
	"github.com/tmc/dapcore/internal/codes"
	"github.com/tmc/dapcore/internal/config"
	"github.com/tmc/dapcore/internal/dlog"
	"github.com/tmc/dapcore/internal/evaluator"
	"github.com/tmc/dapcore/internal/inspector"
	"github.com/tmc/dapcore/internal/pause"
	"github.com/tmc/dapcore/internal/scripts"
	"github.com/tmc/dapcore/internal/skipfiles"
	"github.com/tmc/dapcore/internal/transform"
)

// Session is one DAP connection's worth of adapter state. Launch/attach
// mechanics and the CDP client itself are supplied by the caller
// (cmd/dapserve), per the core's external-collaborator boundary.
type Session struct {
	rw     *bufio.ReadWriter
	sendMu sync.Mutex
	log    *dlog.Logger

	seq int32

	client   cdpclient.Client
	registry *scripts.Registry
	bp       *breakpoints.Manager
	skip     *skipfiles.Manager
	coord    *pause.Coordinator
	insp     *inspector.Inspector
	eval     *evaluator.Evaluator

	lineColT transform.LineColumnTransformer
	pathT    transform.PathTransformer

	terminated atomic.Bool
	lastStop   dap.StoppedEventBody
}

// NewSession wires every core component together against an already
// connected CDP client and a decoded launch configuration. The caller
// is responsible for having the CDP client's Debugger/Runtime domains
// enabled, and for tearing the client down when Run returns.
func NewSession(conn io.ReadWriter, client cdpclient.Client, cfg *config.LaunchConfig, log *dlog.Logger) *Session {
	pt := transform.IdentityPathTransformer{}
	smt := transform.IdentitySourceMapTransformer{}
	lct := transform.LineColumnTransformer{LinesStartAt1: cfg.LinesStartAt1, ColumnsStartAt1: cfg.ColumnsStartAt1}

	s := &Session{
		rw:       bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
		log:      log,
		client:   client,
		lineColT: lct,
		pathT:    pt,
	}

	s.registry = scripts.New(pt, smt, func(clientURL string) {
		if s.bp != nil {
			s.bp.OnScriptResolved(context.Background(), clientURL)
		}
	})
	s.bp = breakpoints.New(client, s.registry, pt, smt, lct, func(id, line, column int) {
		s.sendEvent(&dap.BreakpointEvent{
			Event: dap.Event{Event: "breakpoint"},
			Body: dap.BreakpointEventBody{
				Reason:     "changed",
				Breakpoint: dap.Breakpoint{Id: id, Verified: true, Line: line, Column: column},
			},
		})
	})
	skipMgr, err := skipfiles.New(client, cfg.SkipFiles, cfg.SkipFileRegExps)
	if err != nil {
		log.Warn("compiling skip-file patterns: %v", err)
		skipMgr, _ = skipfiles.New(client, nil, nil)
	}
	s.skip = skipMgr
	s.insp = inspector.New(client, s.registry, s.skip, pt, smt, lct, cfg.SmartStep)
	s.eval = evaluator.New(client, s.registry, s.insp)
	s.coord = pause.New(cfg.SmartStep, cfg.SourceMaps, func(ctx context.Context) error {
		return client.StepInto(ctx)
	}, func(ctx context.Context) error {
		return client.Resume(ctx)
	})

	return s
}

// Run services requests until the connection closes or ctx is done.
func (s *Session) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := dap.ReadProtocolMessage(s.rw.Reader)
		if err != nil {
			if err == io.EOF {
				s.terminate(ctx)
				return nil
			}
			return errors.Wrap(err, "reading DAP message")
		}
		s.dispatch(ctx, msg)
	}
}

func (s *Session) nextSeq() int {
	return int(atomic.AddInt32(&s.seq, 1))
}

func (s *Session) sendEvent(ev dap.Message) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := dap.WriteProtocolMessage(s.rw.Writer, ev); err != nil {
		s.log.Error("writing DAP event: %v", err)
		return
	}
	_ = s.rw.Flush()
}

func (s *Session) sendResponse(resp dap.Message) {
	s.sendEvent(resp)
}

// terminate emits a single idempotent TerminatedEvent.
func (s *Session) terminate(ctx context.Context) {
	if !s.terminated.CompareAndSwap(false, true) {
		return
	}
	s.sendEvent(&dap.TerminatedEvent{Event: dap.Event{Event: "terminated"}})
}

func (s *Session) dispatch(ctx context.Context, msg dap.Message) {
	switch req := msg.(type) {
	case *dap.InitializeRequest:
		s.handleInitialize(ctx, req)
	case *dap.LaunchRequest:
		s.handleLaunchOrAttach(ctx, req.Seq, "launch", req.Arguments)
	case *dap.AttachRequest:
		s.handleLaunchOrAttach(ctx, req.Seq, "attach", req.Arguments)
	case *dap.ConfigurationDoneRequest:
		s.sendResponse(&dap.ConfigurationDoneResponse{Response: newResponse(req.Seq, "configurationDone")})
	case *dap.SetExceptionBreakpointsRequest:
		s.handleSetExceptionBreakpoints(ctx, req)
	case *dap.SetBreakpointsRequest:
		s.handleSetBreakpoints(ctx, req)
	case *dap.ContinueRequest:
		s.handleContinue(ctx, req)
	case *dap.NextRequest:
		s.handleStep(ctx, req.Seq, "next", s.client.StepOver)
	case *dap.StepInRequest:
		s.handleStep(ctx, req.Seq, "stepIn", s.client.StepInto)
	case *dap.StepOutRequest:
		s.handleStep(ctx, req.Seq, "stepOut", s.client.StepOut)
	case *dap.PauseRequest:
		s.handlePause(ctx, req)
	case *dap.ThreadsRequest:
		s.sendResponse(&dap.ThreadsResponse{
			Response: newResponse(req.Seq, "threads"),
			Body:     dap.ThreadsResponseBody{Threads: []dap.Thread{{Id: pause.ThreadID, Name: "main"}}},
		})
	case *dap.StackTraceRequest:
		s.handleStackTrace(ctx, req)
	case *dap.ScopesRequest:
		s.handleScopes(ctx, req)
	case *dap.VariablesRequest:
		s.handleVariables(ctx, req)
	case *dap.SourceRequest:
		s.handleSource(ctx, req)
	case *dap.EvaluateRequest:
		s.handleEvaluate(ctx, req)
	case *dap.SetVariableRequest:
		s.handleSetVariable(ctx, req)
	case *dap.CompletionsRequest:
		s.handleCompletions(ctx, req)
	case *dap.RestartFrameRequest:
		s.handleRestartFrame(ctx, req)
	case *dap.DisconnectRequest:
		s.sendResponse(&dap.DisconnectResponse{Response: newResponse(req.Seq, "disconnect")})
		s.terminate(ctx)
	default:
		s.log.Warn("unhandled DAP request %T", msg)
	}
}

func newResponse(requestSeq int, command string) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Type: "response"},
		RequestSeq:      requestSeq,
		Success:         true,
		Command:         command,
	}
}

func errorResponse(requestSeq int, command, message string) *dap.ErrorResponse {
	return &dap.ErrorResponse{
		Response: dap.Response{
			ProtocolMessage: dap.ProtocolMessage{Type: "response"},
			RequestSeq:      requestSeq,
			Success:         false,
			Command:         command,
			Message:         message,
		},
	}
}

func (s *Session) handleInitialize(ctx context.Context, req *dap.InitializeRequest) {
	if req.Arguments.PathFormat != "" && req.Arguments.PathFormat != "path" {
		s.sendResponse(errorResponse(req.Seq, "initialize", codes.Newf(codes.PathFormatUnsupported, "unsupported pathFormat %q", req.Arguments.PathFormat).Error()))
		return
	}

	s.sendResponse(&dap.InitializeResponse{
		Response: newResponse(req.Seq, "initialize"),
		Body: dap.Capabilities{
			SupportsConfigurationDoneRequest: true,
			SupportsSetVariable:              true,
			SupportsConditionalBreakpoints:   true,
			SupportsHitConditionalBreakpoints: true,
			SupportsCompletionsRequest:       true,
			SupportsRestartFrame:             true,
			ExceptionBreakpointFilters: []dap.ExceptionBreakpointsFilter{
				{Filter: "all", Label: "All Exceptions", Default: false},
				{Filter: "uncaught", Label: "Uncaught Exceptions", Default: true},
			},
		},
	})

	if err := s.registry.WaitInitial(ctx); err != nil {
		s.log.Warn("initial sourcemap resolution: %v", err)
	}
	s.sendEvent(&dap.InitializedEvent{Event: dap.Event{Event: "initialized"}})
}

func (s *Session) handleLaunchOrAttach(ctx context.Context, seq int, request string, raw json.RawMessage) {
	cfg, err := config.Decode(request, raw)
	if err != nil {
		s.sendResponse(errorResponse(seq, request, err.Error()))
		return
	}
	if v := config.Validate(cfg); v.HasErrors() {
		s.sendResponse(errorResponse(seq, request, v.First().Error()))
		return
	}
	if err := s.client.EnableDebugger(ctx); err != nil {
		s.sendResponse(errorResponse(seq, request, codes.Wrap(err, codes.RuntimeNotConnected, "enabling debugger domain").Error()))
		return
	}
	_ = s.client.EnableRuntime(ctx)
	_ = s.client.EnableConsole(ctx)
	s.sendResponse(&dap.Response{ProtocolMessage: dap.ProtocolMessage{Type: "response"}, RequestSeq: seq, Success: true, Command: request})
}

func (s *Session) handleSetExceptionBreakpoints(ctx context.Context, req *dap.SetExceptionBreakpointsRequest) {
	state := debugger.PauseOnExceptionsStateNone
	for _, f := range req.Arguments.Filters {
		switch f {
		case "all":
			state = debugger.PauseOnExceptionsStateAll
		case "uncaught":
			if state != debugger.PauseOnExceptionsStateAll {
				state = debugger.PauseOnExceptionsStateUncaught
			}
		}
	}
	if err := s.client.SetPauseOnExceptions(ctx, state); err != nil {
		s.log.Warn("setPauseOnExceptions: %v", err)
	}
	s.sendResponse(&dap.SetExceptionBreakpointsResponse{Response: newResponse(req.Seq, "setExceptionBreakpoints")})
}

func (s *Session) handleSetBreakpoints(ctx context.Context, req *dap.SetBreakpointsRequest) {
	lines := make([]breakpoints.Line, len(req.Arguments.Breakpoints))
	for i, b := range req.Arguments.Breakpoints {
		lines[i] = breakpoints.Line{Line: b.Line, Column: b.Column, Condition: b.Condition, HitCondition: b.HitCondition}
	}

	path := req.Arguments.Source.Path
	results, err := s.bp.SetBreakpoints(ctx, path, lines)
	if err != nil {
		s.sendResponse(errorResponse(req.Seq, "setBreakpoints", err.Error()))
		return
	}

	body := dap.SetBreakpointsResponseBody{Breakpoints: make([]dap.Breakpoint, len(results))}
	for i, r := range results {
		body.Breakpoints[i] = dap.Breakpoint{Id: r.ID, Verified: r.Verified, Line: r.Line, Column: r.Column, Message: r.Message}
	}
	s.sendResponse(&dap.SetBreakpointsResponse{Response: newResponse(req.Seq, "setBreakpoints"), Body: body})
}

func (s *Session) handleContinue(ctx context.Context, req *dap.ContinueRequest) {
	done := s.coord.BeginRequest(pause.ReasonUserReq)
	err := s.client.Resume(ctx)
	done()
	if err != nil {
		s.sendResponse(errorResponse(req.Seq, "continue", err.Error()))
		return
	}
	s.sendResponse(&dap.ContinueResponse{Response: newResponse(req.Seq, "continue")})
	s.sendEvent(&dap.ContinuedEvent{Event: dap.Event{Event: "continued"}, Body: dap.ContinuedEventBody{ThreadId: pause.ThreadID, AllThreadsContinued: true}})
}

func (s *Session) handleStep(ctx context.Context, seq int, command string, step func(context.Context) error) {
	done := s.coord.BeginRequest(pause.ReasonStep)
	err := step(ctx)
	done()
	if err != nil {
		s.sendResponse(errorResponse(seq, command, err.Error()))
		return
	}
	s.sendResponse(&dap.Response{ProtocolMessage: dap.ProtocolMessage{Type: "response"}, RequestSeq: seq, Success: true, Command: command})
}

func (s *Session) handlePause(ctx context.Context, req *dap.PauseRequest) {
	done := s.coord.BeginRequest(pause.ReasonUserReq)
	err := s.client.Pause(ctx)
	done()
	if err != nil {
		s.sendResponse(errorResponse(req.Seq, "pause", err.Error()))
		return
	}
	s.sendResponse(&dap.PauseResponse{Response: newResponse(req.Seq, "pause")})
}

// HandleScriptParsed handles a CDP Debugger.scriptParsed event: it
// records the script in the registry, which resolves any breakpoints
// pending on the script's URL.
func (s *Session) HandleScriptParsed(scriptID, url, sourceMapURL string) {
	s.registry.Observe(scriptID, url, sourceMapURL)
}

// HandleBreakpointResolved handles a CDP Debugger.breakpointResolved
// event, reporting the now-settled location for whichever client
// breakpoint installed cdpID.
func (s *Session) HandleBreakpointResolved(cdpID string, location *debugger.Location) {
	s.bp.OnBreakpointResolved(cdpID, location)
}

// ScriptURLByID resolves a CDP scriptId to the CDP URL OnPaused expects
// as its hitBreakpointURL argument, so the CDP event loop doesn't need
// direct access to the registry.
func (s *Session) ScriptURLByID(scriptID string) (string, bool) {
	sc, ok := s.registry.ByID(scriptID)
	if !ok {
		return "", false
	}
	return sc.URL, true
}

// OnPaused is invoked by the caller's CDP event loop for every
// Debugger.paused event; it classifies the stop reason, applies
// hit-condition filtering, and emits the DAP stopped event unless the
// classification says to suppress it.
func (s *Session) OnPaused(ctx context.Context, ev pause.PausedEvent, callFrames []*debugger.CallFrame, hitBreakpointURL string) {
	if len(ev.HitBreakpoints) > 0 {
		for _, id := range ev.HitBreakpoints {
			if hc, ok := s.bp.HitConditionFor(hitBreakpointURL, id); ok {
				if !hc.ShouldPause() {
					_ = s.client.Resume(ctx)
					return
				}
			}
		}
	}

	s.insp.ResetForPause(ev.Exception)
	frames := s.insp.BuildStack(callFrames, 0)
	if len(frames) > 0 {
		ev.TopFrameMapped = frames[0].TopFrameMapped()
	}

	reason, ok := s.coord.Classify(ctx, ev)
	if !ok {
		return
	}

	body := dap.StoppedEventBody{
		Reason:   pause.Localize(reason),
		ThreadId: pause.ThreadID,
	}
	s.lastStop = body
	s.sendEvent(&dap.StoppedEvent{Event: dap.Event{Event: "stopped"}, Body: body})
}

func (s *Session) handleStackTrace(ctx context.Context, req *dap.StackTraceRequest) {
	body := dap.StackTraceResponseBody{}
	for _, f := range s.currentFrames() {
		sf := dap.StackFrame{Id: f.ID, Name: f.Name, Line: f.Line, Column: f.Column}
		if f.Path != "" {
			sf.Source = &dap.Source{Path: f.Path}
		} else if f.SourceReference != 0 {
			sf.Source = &dap.Source{SourceReference: f.SourceReference}
		}
		if f.PresentationHint != "" {
			sf.PresentationHint = f.PresentationHint
		}
		body.StackFrames = append(body.StackFrames, sf)
	}
	body.TotalFrames = len(body.StackFrames)
	s.sendResponse(&dap.StackTraceResponse{Response: newResponse(req.Seq, "stackTrace"), Body: body})
}

// currentFrames reads back, in handle order, the frames the inspector
// minted when OnPaused built the stack for the current pause.
func (s *Session) currentFrames() []*inspector.Frame {
	var out []*inspector.Frame
	for i := 1; ; i++ {
		f, ok := s.insp.FrameByID(i)
		if !ok {
			break
		}
		out = append(out, f)
	}
	return out
}

func (s *Session) handleScopes(ctx context.Context, req *dap.ScopesRequest) {
	scopes, err := s.insp.Scopes(req.Arguments.FrameId)
	if err != nil {
		s.sendResponse(errorResponse(req.Seq, "scopes", codes.Wrap(err, codes.StackFrameNotValid, "resolving frame").Error()))
		return
	}
	body := dap.ScopesResponseBody{}
	for _, sc := range scopes {
		body.Scopes = append(body.Scopes, dap.Scope{Name: sc.Name, VariablesReference: sc.VariablesReference, Expensive: sc.Expensive})
	}
	s.sendResponse(&dap.ScopesResponse{Response: newResponse(req.Seq, "scopes"), Body: body})
}

func (s *Session) handleVariables(ctx context.Context, req *dap.VariablesRequest) {
	vars, err := s.insp.Variables(ctx, req.Arguments.VariablesReference, req.Arguments.Filter, req.Arguments.Start, req.Arguments.Count)
	if err != nil {
		s.sendResponse(errorResponse(req.Seq, "variables", codes.Wrap(err, codes.SourceRequestIllegalHandle, "resolving variables handle").Error()))
		return
	}
	body := dap.VariablesResponseBody{}
	for _, v := range vars {
		body.Variables = append(body.Variables, dap.Variable{
			Name: v.Name, Value: v.Value, Type: v.Type,
			VariablesReference: v.VariablesReference,
			EvaluateName:       v.EvaluateName,
			IndexedVariables:   v.IndexedVariables,
			NamedVariables:     v.NamedVariables,
		})
	}
	s.sendResponse(&dap.VariablesResponse{Response: newResponse(req.Seq, "variables"), Body: body})
}

func (s *Session) handleSource(ctx context.Context, req *dap.SourceRequest) {
	ref := req.Arguments.SourceReference
	if req.Arguments.Source != nil && req.Arguments.Source.SourceReference != 0 {
		ref = req.Arguments.Source.SourceReference
	}
	scriptID, ok := s.sourceIDForReference(ref)
	if !ok {
		s.sendResponse(errorResponse(req.Seq, "source", codes.New(codes.SourceRequestIllegalHandle, "unknown sourceReference").Error()))
		return
	}
	source, err := s.client.GetScriptSource(ctx, scriptID)
	if err != nil {
		s.sendResponse(errorResponse(req.Seq, "source", err.Error()))
		return
	}
	s.sendResponse(&dap.SourceResponse{Response: newResponse(req.Seq, "source"), Body: dap.SourceResponseBody{Content: source}})
}

func (s *Session) sourceIDForReference(ref int) (string, bool) {
	return s.insp.SourceScriptID(ref)
}

func (s *Session) handleEvaluate(ctx context.Context, req *dap.EvaluateRequest) {
	res, err := s.eval.Evaluate(ctx, req.Arguments.Expression, req.Arguments.FrameId, req.Arguments.Context)
	if err != nil {
		s.sendResponse(errorResponse(req.Seq, "evaluate", err.Error()))
		return
	}
	if res.Output != "" {
		s.sendEvent(&dap.OutputEvent{Event: dap.Event{Event: "output"}, Body: dap.OutputEventBody{Category: "console", Output: res.Output}})
		s.sendResponse(&dap.EvaluateResponse{Response: newResponse(req.Seq, "evaluate")})
		return
	}
	s.sendResponse(&dap.EvaluateResponse{
		Response: newResponse(req.Seq, "evaluate"),
		Body:     dap.EvaluateResponseBody{Result: res.Value, Type: res.Type, VariablesReference: res.VariablesReference},
	})
}

func (s *Session) handleSetVariable(ctx context.Context, req *dap.SetVariableRequest) {
	res, err := s.eval.SetVariable(ctx, 0, req.Arguments.VariablesReference, 0, req.Arguments.Name, req.Arguments.Value, "")
	if err != nil {
		s.sendResponse(errorResponse(req.Seq, "setVariable", err.Error()))
		return
	}
	s.sendResponse(&dap.SetVariableResponse{
		Response: newResponse(req.Seq, "setVariable"),
		Body:     dap.SetVariableResponseBody{Value: res.Value, Type: res.Type},
	})
}

func (s *Session) handleCompletions(ctx context.Context, req *dap.CompletionsRequest) {
	names, err := s.eval.Completions(ctx, req.Arguments.FrameId, req.Arguments.Text)
	if err != nil {
		s.sendResponse(errorResponse(req.Seq, "completions", err.Error()))
		return
	}
	body := dap.CompletionsResponseBody{}
	for _, n := range names {
		body.Targets = append(body.Targets, dap.CompletionItem{Label: n})
	}
	s.sendResponse(&dap.CompletionsResponse{Response: newResponse(req.Seq, "completions"), Body: body})
}

func (s *Session) handleRestartFrame(ctx context.Context, req *dap.RestartFrameRequest) {
	done := s.coord.BeginRequest(pause.ReasonFrameEntry)
	err := s.eval.RestartFrame(ctx, req.Arguments.FrameId)
	done()
	if err != nil {
		s.sendResponse(errorResponse(req.Seq, "restartFrame", err.Error()))
		return
	}
	s.sendResponse(&dap.RestartFrameResponse{Response: newResponse(req.Seq, "restartFrame")})
}

// ToggleSkipFileStatus implements the non-standard toggleSkipFileStatus
// request some clients send as a custom DAP request.
func (s *Session) ToggleSkipFileStatus(path string, inStack func(string) bool) error {
	if sc, ok := s.registry.ByURL(path); ok && s.pathT.ClientPath(sc.URL) == path && len(sc.AuthoredPaths) > 0 {
		return errors.Errorf("cannot toggle skip state for %q: it is a generated script with authored sources", path)
	}
	if err := s.skip.Toggle(path, inStack); err != nil {
		return err
	}
	if err := s.skip.PushPatterns(context.Background()); err != nil {
		s.log.Warn("pushing blackbox patterns: %v", err)
	}
	s.pushBlackboxedRanges(context.Background(), path)
	s.sendEvent(&dap.StoppedEvent{Event: dap.Event{Event: "stopped"}, Body: s.lastStop})
	return nil
}

// pushBlackboxedRanges recomputes and pushes the CDP positional blackbox
// ranges for the generated script owning path, whether path names that
// script directly or one of its authored sources.
func (s *Session) pushBlackboxedRanges(ctx context.Context, path string) {
	sc, ok := s.registry.ByURL(path)
	if !ok {
		return
	}
	clientURL := s.pathT.ClientPath(sc.URL)
	parentSkipped, _ := s.skip.ShouldSkip(clientURL)

	var authored []skipfiles.AuthoredRange
	for _, a := range sc.AuthoredPaths {
		skip, _ := s.skip.ShouldSkip(a)
		authored = append(authored, skipfiles.AuthoredRange{Skipped: skip})
	}

	ranges := skipfiles.PositionalRanges(parentSkipped, authored)
	s.skip.SetBlackboxedRanges(ctx, sc.ID, ranges)
}
