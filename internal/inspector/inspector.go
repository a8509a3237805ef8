// Package inspector materializes DAP stack frames, scopes, and
// variables from CDP call frames and RemoteObjects: the largest single
// component of the adapter core.
package inspector

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/chromedp/cdproto/debugger"
	"github.com/chromedp/cdproto/runtime"

	"github.com/tmc/dapcore/internal/cdpclient"
	"github.com/tmc/dapcore/internal/handles"
	"github.com/tmc/dapcore/internal/scripts"
	"github.com/tmc/dapcore/internal/skipfiles"
	"github.com/tmc/dapcore/internal/transform"
)

// Frame is a materialized DAP stack frame plus the bookkeeping the
// inspector needs to answer later scopes/variables/evaluate requests
// against it.
type Frame struct {
	ID                int
	CallFrameID        string
	Name              string
	Path              string
	SourceReference   int
	Line, Column      int
	PresentationHint  string
	Origin            string
	rawScopes         []*debugger.Scope
	topFrameMapped    bool
}

// TopFrameMapped reports whether this frame resolved to an authored
// source location, the signal the pause coordinator's smart-step uses.
func (f *Frame) TopFrameMapped() bool { return f.topFrameMapped }

// containerKind distinguishes what a variablesReference handle expands
// into.
type containerKind int

const (
	kindScope containerKind = iota
	kindObject
)

type container struct {
	kind     containerKind
	objectID string
	name     string // evaluateName prefix for children
}

// Inspector holds the pause-scoped handle tables and the collaborators
// needed to resolve CDP references into DAP payloads.
type Inspector struct {
	client    cdpclient.Client
	registry  *scripts.Registry
	skip      *skipfiles.Manager
	pathT     transform.PathTransformer
	sourceMapT transform.SourceMapTransformer
	lineColT  transform.LineColumnTransformer
	smartStep bool

	frames     *handles.Table[*Frame]
	containers *handles.Table[*container]
	sources    *handles.ReverseTable[string]

	exception *runtime.RemoteObject
}

// New creates an Inspector. skip may be nil if skip-file support is
// disabled for the session.
func New(client cdpclient.Client, registry *scripts.Registry, skip *skipfiles.Manager, pt transform.PathTransformer, smt transform.SourceMapTransformer, lct transform.LineColumnTransformer, smartStep bool) *Inspector {
	return &Inspector{
		client:     client,
		registry:   registry,
		skip:       skip,
		pathT:      pt,
		sourceMapT: smt,
		lineColT:   lct,
		smartStep:  smartStep,
		frames:     handles.New[*Frame](),
		containers: handles.New[*container](),
		sources:    handles.NewReverse[string](),
	}
}

// ResetForPause drains the frame and variable-container tables: every
// handle from the prior pause becomes invalid, per the shared-resource
// policy.
func (insp *Inspector) ResetForPause(exception *runtime.RemoteObject) {
	insp.frames.Reset()
	insp.containers.Reset()
	insp.exception = exception
}

// BuildStack materializes DAP frames from CDP call frames, optionally
// truncated to levels (0 means unlimited). A call frame that cannot be
// resolved is recovered as a single dummy "Unknown" frame instead of
// failing the whole request.
func (insp *Inspector) BuildStack(callFrames []*debugger.CallFrame, levels int) (frames []*Frame) {
	if levels > 0 && levels < len(callFrames) {
		callFrames = callFrames[:levels]
	}
	for _, cf := range callFrames {
		frames = append(frames, insp.buildFrame(cf))
	}
	return frames
}

func (insp *Inspector) buildFrame(cf *debugger.CallFrame) (f *Frame) {
	defer func() {
		if r := recover(); r != nil {
			f = &Frame{Name: "Unknown"}
			f.ID = insp.frames.Create(f)
		}
	}()

	if cf == nil || cf.Location == nil {
		panic("malformed call frame")
	}

	sc, known := insp.registry.ByID(string(cf.Location.ScriptID))

	f = &Frame{
		Name:        cf.FunctionName,
		CallFrameID: string(cf.CallFrameID),
		rawScopes:   cf.ScopeChain,
	}
	if f.Name == "" {
		f.Name = "(anonymous function)"
	}

	line, col := int(cf.Location.LineNumber), 0
	if cf.Location.ColumnNumber != nil {
		col = int(*cf.Location.ColumnNumber)
	}

	skipped := false
	if known {
		url := sc.URL
		if authored, ok := insp.sourceMapT.AuthoredPath(url); ok {
			url = authored
			f.topFrameMapped = true
		}
		clientPath := insp.pathT.ClientPath(url)
		line, col = insp.lineColT.ToClient(line, col)

		if insp.skip != nil {
			if s, ok := insp.skip.ShouldSkip(clientPath); ok && s {
				skipped = true
			}
		}

		f.Path = clientPath
		f.Line, f.Column = line, col

		if strings.HasPrefix(f.Path, "eval://") {
			f.Path = ""
			f.Name = fmt.Sprintf("VM%s", strings.TrimPrefix(sc.URL, "eval://"))
			f.SourceReference = insp.sources.GetOrCreate(sc.ID)
		}
	} else {
		f.SourceReference = insp.sources.GetOrCreate(string(cf.Location.ScriptID))
		f.Line, f.Column = insp.lineColT.ToClient(line, col)
	}

	switch {
	case skipped:
		f.Origin = "(skipped by 'skipFiles')"
		f.PresentationHint = "deemphasize"
	case insp.smartStep && !f.topFrameMapped && f.Path != "":
		f.Origin = "(skipped by 'smartStep')"
		f.PresentationHint = "deemphasize"
	}

	f.ID = insp.frames.Create(f)
	return f
}

// FrameByID resolves a DAP frameId minted by BuildStack.
func (insp *Inspector) FrameByID(id int) (*Frame, bool) {
	return insp.frames.Get(id)
}

// SourceScriptID resolves a DAP sourceReference minted for a script
// with no path (placeholder URL or unresolved generated script) back
// to the CDP scriptId whose source getScriptSource should fetch.
func (insp *Inspector) SourceScriptID(sourceReference int) (string, bool) {
	return insp.sources.Get(sourceReference)
}

// Scope is a materialized DAP scope: a name plus the handle that
// expands into its variables.
type Scope struct {
	Name              string
	VariablesReference int
	Expensive         bool
}

// Scopes builds the DAP scopes for a frame, prepending a synthetic
// "Exception" scope when an exception is pinned for this pause.
func (insp *Inspector) Scopes(frameID int) ([]Scope, error) {
	f, ok := insp.frames.Get(frameID)
	if !ok {
		return nil, fmt.Errorf("unknown frame handle %d", frameID)
	}

	var out []Scope
	if insp.exception != nil {
		out = append(out, Scope{
			Name:               "Exception",
			VariablesReference: insp.containers.Create(&container{kind: kindObject, objectID: string(insp.exception.ObjectID), name: ""}),
		})
	}
	for _, s := range f.rawScopes {
		if s.Object == nil {
			continue
		}
		out = append(out, Scope{
			Name:               strings.Title(string(s.Type)),
			VariablesReference: insp.containers.Create(&container{kind: kindScope, objectID: string(s.Object.ObjectID), name: ""}),
			Expensive:          s.Type == debugger.ScopeTypeGlobal,
		})
	}
	return out, nil
}

// Variable is a materialized DAP variable.
type Variable struct {
	Name               string
	Value              string
	Type               string
	VariablesReference int
	EvaluateName       string
	IndexedVariables   int
	NamedVariables     int
}

var indexedNameRE = regexp.MustCompile(`^(0|[1-9][0-9]*)$`)

func isIndexedPropName(name string) bool {
	return indexedNameRE.MatchString(name)
}

// Variables expands a variablesReference into its DAP variables,
// optionally partitioned by indexed/named, with inherited getters and
// setters resolved the way CDP reports them. When count is positive the
// expansion is paginated: rather than fetching every property, a
// slicing helper runs on the debuggee via callFunctionOn and only the
// requested chunk is expanded, so a client paging through a large
// array never pulls the whole thing over the wire.
func (insp *Inspector) Variables(ctx context.Context, variablesReference int, filter string, start, count int) ([]Variable, error) {
	c, ok := insp.containers.Get(variablesReference)
	if !ok {
		return nil, fmt.Errorf("unknown variables handle %d", variablesReference)
	}

	if count > 0 {
		return insp.variablesSlice(ctx, c, start, count)
	}

	own, err := insp.client.GetProperties(ctx, c.objectID, true, false)
	if err != nil {
		return nil, err
	}
	inherited, err := insp.client.GetProperties(ctx, c.objectID, false, true)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(own))
	props := make([]*runtime.PropertyDescriptor, 0, len(own)+len(inherited))
	for _, p := range own {
		seen[p.Name] = true
		props = append(props, p)
	}
	for _, p := range inherited {
		if !seen[p.Name] {
			props = append(props, p)
		}
	}

	var out []Variable
	for _, p := range props {
		if filter == "indexed" && !isIndexedPropName(p.Name) {
			continue
		}
		if filter == "named" && isIndexedPropName(p.Name) {
			continue
		}

		v := Variable{Name: p.Name, EvaluateName: evaluateName(c.name, p.Name)}

		switch {
		case p.Get != nil && p.Get.ObjectID != "":
			result, _, err := insp.client.CallFunctionOn(ctx, c.objectID, "function(p){return this[p]}", []*runtime.CallArgument{{Value: []byte(strconv.Quote(p.Name))}}, true, false)
			if err != nil {
				v.Value = err.Error()
			} else {
				insp.renderInto(&v, result)
			}
		case p.Set != nil && p.Get == nil:
			v.Value = "setter"
		case p.Value != nil:
			insp.renderInto(&v, p.Value)
			if p.Value.Type == "object" && p.Value.ObjectID != "" {
				v.VariablesReference = insp.containers.Create(&container{kind: kindObject, objectID: string(p.Value.ObjectID), name: v.EvaluateName})
			}
		}

		out = append(out, v)
	}
	return out, nil
}

// variablesSlice expands a large indexed collection one chunk at a
// time: a small helper function built from start/count runs on the
// debuggee and returns an array holding just that chunk, which is then
// expanded the same way a regular property value would be.
func (insp *Inspector) variablesSlice(ctx context.Context, c *container, start, count int) ([]Variable, error) {
	fn := fmt.Sprintf(`function(){
		var s=%d,c=%d;
		if (this && typeof this.length === 'number') {
			var out=[]; for (var i=0;i<c;i++){ out.push(this[s+i]) } return out;
		}
		var keys=Object.keys(this).slice(s,s+c);
		var out={}; for (var i=0;i<keys.length;i++){ out[keys[i]]=this[keys[i]] } return out;
	}`, start, count)

	result, _, err := insp.client.CallFunctionOn(ctx, c.objectID, fn, nil, true, false)
	if err != nil {
		return nil, err
	}
	if result == nil || result.ObjectID == "" {
		return nil, nil
	}

	props, err := insp.client.GetProperties(ctx, string(result.ObjectID), true, false)
	if err != nil {
		return nil, err
	}

	var out []Variable
	for _, p := range props {
		if p.Value == nil {
			continue
		}
		name := p.Name
		if isIndexedPropName(name) {
			if idx, err := strconv.Atoi(name); err == nil {
				name = strconv.Itoa(start + idx)
			}
		}
		v := Variable{Name: name, EvaluateName: evaluateName(c.name, name)}
		insp.renderInto(&v, p.Value)
		if p.Value.Type == "object" && p.Value.ObjectID != "" {
			v.VariablesReference = insp.containers.Create(&container{kind: kindObject, objectID: string(p.Value.ObjectID), name: v.EvaluateName})
		}
		out = append(out, v)
	}
	return out, nil
}

func evaluateName(parent, name string) string {
	if parent == "" {
		return name
	}
	if isIndexedPropName(name) {
		return fmt.Sprintf("%s[%s]", parent, name)
	}
	return fmt.Sprintf("%s.%s", parent, name)
}

func (insp *Inspector) renderInto(v *Variable, obj *runtime.RemoteObject) {
	v.Type = string(obj.Type)
	v.Value = RenderValue(obj)
	if obj.Type == "object" && obj.Preview != nil {
		v.NamedVariables = len(obj.Preview.Properties)
	}
}

// RenderValue converts a CDP RemoteObject to the DAP variable value
// string, per the per-type rendering rules.
func RenderValue(obj *runtime.RemoteObject) string {
	switch obj.Type {
	case "undefined":
		return "undefined"
	case "object":
		if obj.Subtype == "" && len(obj.Value) == 0 {
			return "null"
		}
		if obj.Subtype == "internal#location" {
			return "internal#location"
		}
		if obj.Description != "" {
			return obj.Description
		}
		return string(obj.Value)
	case "function":
		return truncateFunctionSignature(obj.Description)
	case "number":
		return obj.Description
	case "boolean":
		return string(obj.Value)
	default:
		if len(obj.Value) == 0 {
			return obj.Description
		}
		return string(obj.Value)
	}
}

func truncateFunctionSignature(desc string) string {
	if i := strings.Index(desc, "{"); i >= 0 {
		return desc[:i] + "{ … }"
	}
	if i := strings.Index(desc, "=>"); i >= 0 {
		return desc[:i+2] + " …"
	}
	return desc
}
