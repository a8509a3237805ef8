// Package breakpoints owns breakpoint resolution: pending breakpoints
// awaiting a script parse, committed breakpoints per URL, hit-condition
// state, and the single-flight queue that keeps overlapping
// setBreakpoints calls from racing each other on the debuggee.
package breakpoints

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/debugger"
	"github.com/pkg/errors"

	"github.com/tmc/dapcore/internal/cdpclient"
	"github.com/tmc/dapcore/internal/codes"
	"github.com/tmc/dapcore/internal/scripts"
	"github.com/tmc/dapcore/internal/transform"
)

// queueTimeout bounds a single setBreakpoints operation queued behind
// the serialization discipline.
const queueTimeout = 3000 * time.Millisecond

// Line is one requested line within a setBreakpoints call.
type Line struct {
	Line         int
	Column       int
	Condition    string
	HitCondition string
}

// Resolved is the DAP-shaped outcome for one requested line.
type Resolved struct {
	ID       int
	Verified bool
	Line     int
	Column   int
	Message  string
}

// PendingBreakpoint is a setBreakpoints call that arrived before its
// target script was observed; it is resolved exactly once when a
// matching script shows up.
type PendingBreakpoint struct {
	Path        string
	Lines       []Line
	ClientIDs   []int
	RequestSeq  int
}

// HitConditionBreakpoint tracks a conditional hit count for one
// committed breakpoint id.
type HitConditionBreakpoint struct {
	Operator string
	Operand  int
	NumHits  int
}

var hitConditionRE = regexp.MustCompile(`^(>=|<=|>|<|=|%)?\s*([0-9]+)$`)

// ParseHitCondition compiles a hitCondition expression into a
// HitConditionBreakpoint. The default operator, when none is given, is
// ">=".
func ParseHitCondition(expr string) (*HitConditionBreakpoint, error) {
	m := hitConditionRE.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return nil, codes.Newf(codes.InvalidHitCondition, "invalid hit condition %q", expr)
	}
	op := m[1]
	if op == "" {
		op = ">="
	}
	operand, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, codes.Wrapf(err, codes.InvalidHitCondition, "invalid hit condition operand %q", expr)
	}
	return &HitConditionBreakpoint{Operator: op, Operand: operand}, nil
}

// ShouldPause reports whether, after incrementing NumHits, the
// breakpoint should actually stop execution.
func (h *HitConditionBreakpoint) ShouldPause() bool {
	h.NumHits++
	switch h.Operator {
	case ">=":
		return h.NumHits >= h.Operand
	case "<=":
		return h.NumHits <= h.Operand
	case ">":
		return h.NumHits > h.Operand
	case "<":
		return h.NumHits < h.Operand
	case "=":
		return h.NumHits == h.Operand
	case "%":
		return h.Operand != 0 && h.NumHits%h.Operand == 0
	default:
		return true
	}
}

type committed struct {
	cdpIDs        []string
	cdpToClientID map[string]int
	hitConditions map[string]*HitConditionBreakpoint
}

// Manager is the breakpoint subsystem for a single debug session.
type Manager struct {
	client    cdpclient.Client
	registry  *scripts.Registry
	pathT     transform.PathTransformer
	sourceMapT transform.SourceMapTransformer
	lineColT  transform.LineColumnTransformer

	onVerified func(id int, line, column int)

	mu             sync.Mutex
	nextID         int
	pendingByURL   map[string][]*PendingBreakpoint
	committedByURL map[string]*committed

	queueMu sync.Mutex
	queue   chan struct{}
}

// New creates a breakpoint Manager. onVerified is invoked whenever a
// previously unverified breakpoint becomes verified, either immediately
// during setBreakpoints or later via a CDP breakpointResolved event.
func New(client cdpclient.Client, registry *scripts.Registry, pt transform.PathTransformer, smt transform.SourceMapTransformer, lct transform.LineColumnTransformer, onVerified func(id int, line, column int)) *Manager {
	m := &Manager{
		client:         client,
		registry:       registry,
		pathT:          pt,
		sourceMapT:     smt,
		lineColT:       lct,
		onVerified:     onVerified,
		pendingByURL:   make(map[string][]*PendingBreakpoint),
		committedByURL: make(map[string]*committed),
		queue:          make(chan struct{}, 1),
	}
	return m
}

func (m *Manager) nextBreakpointID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return m.nextID
}

// SetBreakpoints implements the public setBreakpoints contract: it
// clears whatever was previously committed for this source and adds
// the requested lines, serialized behind the global queue. When no
// target URL can be derived, or the target script has not been
// observed yet, the lines are recorded as a PendingBreakpoint and
// returned unverified.
func (m *Manager) SetBreakpoints(ctx context.Context, path string, lines []Line) ([]Resolved, error) {
	targetURL, ok := m.pathT.TargetURL(path)
	if genPath, mapped := m.sourceMapT.GeneratedPath(path); mapped {
		targetURL, ok = m.pathT.TargetURL(genPath)
	}
	if ok && targetURL != "" {
		if _, known := m.registry.ByURL(targetURL); !known {
			ok = false
		}
	}
	if !ok || targetURL == "" {
		out := make([]Resolved, len(lines))
		ids := make([]int, len(lines))
		for i, l := range lines {
			id := m.nextBreakpointID()
			ids[i] = id
			out[i] = Resolved{ID: id, Verified: false, Line: l.Line, Column: l.Column}
		}
		m.mu.Lock()
		m.pendingByURL[path] = append(m.pendingByURL[path], &PendingBreakpoint{Path: path, Lines: lines, ClientIDs: ids})
		m.mu.Unlock()
		return out, nil
	}

	return m.setBreakpointsForURL(ctx, targetURL, path, lines, nil)
}

func (m *Manager) setBreakpointsForURL(ctx context.Context, targetURL, clientPath string, lines []Line, clientIDs []int) ([]Resolved, error) {
	select {
	case m.queue <- struct{}{}:
	case <-time.After(queueTimeout):
		return nil, codes.New(codes.BreakpointsTimeout, "timed out waiting for the breakpoint queue")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-m.queue }()

	opCtx, cancel := context.WithTimeout(ctx, queueTimeout)
	defer cancel()

	if err := m.clearAllBreakpoints(opCtx, targetURL); err != nil {
		return nil, errors.Wrap(err, "clearing prior breakpoints")
	}

	sc, known := m.registry.ByURL(targetURL)

	results := make([]Resolved, len(lines))
	ids := clientIDs
	if ids == nil {
		ids = make([]int, len(lines))
		for i := range ids {
			ids[i] = m.nextBreakpointID()
		}
	}

	cm := &committed{hitConditions: make(map[string]*HitConditionBreakpoint), cdpToClientID: make(map[string]int)}

	for i, l := range lines {
		line, col := m.lineColT.ToCDP(l.Line, l.Column)
		var cdpID string
		var actualLine, actualCol int
		var err error

		if known && sc.IsPlaceholder() {
			var loc *debugger.Location
			cdpID, loc, err = m.client.SetBreakpoint(opCtx, sc.ID, int64(line), int64(col), l.Condition)
			if loc != nil {
				actualLine = int(loc.LineNumber)
				if loc.ColumnNumber != nil {
					actualCol = int(*loc.ColumnNumber)
				}
			}
		} else {
			regex := urlRegex(targetURL)
			var locs []*debugger.Location
			cdpID, locs, err = m.client.SetBreakpointByURL(opCtx, regex, int64(line), int64(col), l.Condition)
			if len(locs) > 0 {
				actualLine = int(locs[0].LineNumber)
				if locs[0].ColumnNumber != nil {
					actualCol = int(*locs[0].ColumnNumber)
				}
			}
		}

		if err != nil {
			results[i] = Resolved{ID: ids[i], Verified: false, Line: l.Line, Column: l.Column, Message: err.Error()}
			continue
		}

		cm.cdpIDs = append(cm.cdpIDs, cdpID)
		cm.cdpToClientID[cdpID] = ids[i]
		if l.HitCondition != "" {
			hc, err := ParseHitCondition(l.HitCondition)
			if err != nil {
				results[i] = Resolved{ID: ids[i], Verified: false, Line: l.Line, Column: l.Column, Message: err.Error()}
				continue
			}
			cm.hitConditions[cdpID] = hc
		}

		clLine, clCol := m.lineColT.ToClient(actualLine, actualCol)
		results[i] = Resolved{ID: ids[i], Verified: true, Line: clLine, Column: clCol}
	}

	m.mu.Lock()
	m.committedByURL[targetURL] = cm
	m.mu.Unlock()

	return results, nil
}

// clearAllBreakpoints removes every CDP breakpoint committed for url,
// one at a time: batching them trips a debuggee bug where a later add
// on the same line fails with "breakpoint already exists."
func (m *Manager) clearAllBreakpoints(ctx context.Context, url string) error {
	m.mu.Lock()
	cm, ok := m.committedByURL[url]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	for _, id := range cm.cdpIDs {
		if err := m.client.RemoveBreakpoint(ctx, id); err != nil {
			return err
		}
	}
	m.mu.Lock()
	delete(m.committedByURL, url)
	m.mu.Unlock()
	return nil
}

func urlRegex(url string) string {
	return "^" + regexp.QuoteMeta(url) + "$"
}

// OnScriptResolved is hung off the script registry's resolved callback:
// it consumes any PendingBreakpoint queued under the script's client
// path and resolves it against the debuggee exactly once.
func (m *Manager) OnScriptResolved(ctx context.Context, clientURL string) {
	m.mu.Lock()
	pendings := m.pendingByURL[clientURL]
	delete(m.pendingByURL, clientURL)
	m.mu.Unlock()

	for _, p := range pendings {
		targetURL, ok := m.pathT.TargetURL(clientURL)
		if !ok {
			continue
		}
		results, err := m.setBreakpointsForURL(ctx, targetURL, p.Path, p.Lines, p.ClientIDs)
		if err != nil {
			continue
		}
		for _, r := range results {
			if r.Verified && m.onVerified != nil {
				m.onVerified(r.ID, r.Line, r.Column)
			}
		}
	}
}

// OnBreakpointResolved handles a CDP Debugger.breakpointResolved event:
// a breakpoint installed by URL before its script loaded has now
// settled on a concrete location. It finds which client-visible
// breakpoint owns cdpID across every committed URL and reports the
// resolved location through onVerified.
func (m *Manager) OnBreakpointResolved(cdpID string, location *debugger.Location) {
	if location == nil {
		return
	}
	line, col := int(location.LineNumber), 0
	if location.ColumnNumber != nil {
		col = int(*location.ColumnNumber)
	}

	m.mu.Lock()
	var clientID int
	var found bool
	for _, cm := range m.committedByURL {
		if id, ok := cm.cdpToClientID[cdpID]; ok {
			clientID, found = id, true
			break
		}
	}
	m.mu.Unlock()
	if !found {
		return
	}

	clLine, clCol := m.lineColT.ToClient(line, col)
	if m.onVerified != nil {
		m.onVerified(clientID, clLine, clCol)
	}
}

// HitConditionFor returns the HitConditionBreakpoint tracking a
// committed CDP breakpoint id, if one was installed for it.
func (m *Manager) HitConditionFor(url, cdpID string) (*HitConditionBreakpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cm, ok := m.committedByURL[url]
	if !ok {
		return nil, false
	}
	hc, ok := cm.hitConditions[cdpID]
	return hc, ok
}
