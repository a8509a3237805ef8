// Package evaluator dispatches DAP evaluate/setVariable/completions
// requests onto the debuggee, either scoped to a paused call frame or
// globally, including the `.scripts` meta-command.
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/chromedp/cdproto/runtime"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tmc/dapcore/internal/cdpclient"
	"github.com/tmc/dapcore/internal/codes"
	"github.com/tmc/dapcore/internal/inspector"
	"github.com/tmc/dapcore/internal/pause"
	"github.com/tmc/dapcore/internal/scripts"
)

// maxScriptSourceChars bounds how much of a script's source the
// `.scripts <url>` meta-command will print.
const maxScriptSourceChars = 100_000

// scriptSourceCacheSize bounds how many scripts' full source text
// `.scripts <url>` keeps around; sources don't change once a script
// has been parsed, so repeated lookups during a REPL session never
// need to re-fetch from the debuggee.
const scriptSourceCacheSize = 64

// Evaluator dispatches evaluate-family requests.
type Evaluator struct {
	client     cdpclient.Client
	registry   *scripts.Registry
	inspector  *inspector.Inspector
	sourceByID *lru.Cache[string, string]
}

// New creates an Evaluator.
func New(client cdpclient.Client, registry *scripts.Registry, insp *inspector.Inspector) *Evaluator {
	cache, _ := lru.New[string, string](scriptSourceCacheSize)
	return &Evaluator{client: client, registry: registry, inspector: insp, sourceByID: cache}
}

// Result is the outcome of an evaluate request.
type Result struct {
	// Output is set instead of Value for the `.scripts` meta-command,
	// which produces console output rather than a variable result.
	Output             string
	Value              string
	Type               string
	VariablesReference int
}

// Evaluate dispatches expression either on frameID's call frame
// (frameID > 0) or globally. context is the DAP evaluate context
// ("repl", "watch", "hover", ...).
func (e *Evaluator) Evaluate(ctx context.Context, expression string, frameID int, evalContext string) (*Result, error) {
	if strings.HasPrefix(expression, ".scripts") {
		return e.metaScripts(strings.TrimSpace(strings.TrimPrefix(expression, ".scripts")))
	}

	pause.AwaitSettle(ctx)

	var obj *runtime.RemoteObject
	var exc *runtime.ExceptionDetails
	var err error

	if frameID > 0 {
		f, ok := e.inspector.FrameByID(frameID)
		if !ok {
			return nil, codes.Newf(codes.StackFrameNotValid, "frame %d is not valid", frameID)
		}
		obj, exc, err = e.client.EvaluateOnCallFrame(ctx, f.CallFrameID, expression, true, true)
	} else {
		obj, exc, err = e.client.Evaluate(ctx, expression, evalContext == "repl")
	}
	if err != nil {
		return nil, codes.Wrap(err, codes.EvaluateFailed, "evaluating expression")
	}
	if exc != nil {
		return nil, classifyException(exc, evalContext)
	}

	res := &Result{Type: string(obj.Type), Value: inspector.RenderValue(obj)}
	return res, nil
}

func classifyException(exc *runtime.ExceptionDetails, evalContext string) error {
	text := exc.Text
	if exc.Exception != nil && exc.Exception.Description != "" {
		text = exc.Exception.Description
	}
	if evalContext != "repl" && strings.HasPrefix(text, "ReferenceError:") {
		return codes.New(codes.EvaluateFailed, "not available")
	}
	return codes.Newf(codes.EvaluateFailed, "%s", text)
}

func (e *Evaluator) metaScripts(arg string) (*Result, error) {
	if arg == "" {
		var b strings.Builder
		all := e.registry.All()
		sort.Slice(all, func(i, j int) bool { return all[i].URL < all[j].URL })
		for _, sc := range all {
			fmt.Fprintf(&b, "%s\n", sc.URL)
			for _, a := range sc.AuthoredPaths {
				fmt.Fprintf(&b, "  - %s\n", a)
			}
		}
		return &Result{Output: b.String()}, nil
	}

	sc, ok := e.registry.ByURL(arg)
	if !ok {
		return nil, codes.Newf(codes.EvaluateFailed, "unknown script %q", arg)
	}

	source, cached := e.sourceByID.Get(sc.ID)
	if !cached {
		var err error
		source, err = e.client.GetScriptSource(context.Background(), sc.ID)
		if err != nil {
			return nil, codes.Wrap(err, codes.EvaluateFailed, "fetching script source")
		}
		e.sourceByID.Add(sc.ID, source)
	}
	if len(source) > maxScriptSourceChars {
		source = source[:maxScriptSourceChars] + "[⋯]"
	}
	return &Result{Output: source}, nil
}

// SetVariable evaluates newValue on frameID's call frame and installs
// it either as a scope variable (via Debugger.setVariableValue) or a
// property of the container object (via Runtime.callFunctionOn).
func (e *Evaluator) SetVariable(ctx context.Context, frameID, variablesReference int, scopeNumber int64, name, newValue string, objectID string) (*Result, error) {
	f, ok := e.inspector.FrameByID(frameID)
	if !ok {
		return nil, codes.Newf(codes.StackFrameNotValid, "frame %d is not valid", frameID)
	}

	obj, exc, err := e.client.EvaluateOnCallFrame(ctx, f.CallFrameID, newValue, true, false)
	if err != nil {
		return nil, codes.Wrap(err, codes.SetValueNotSupported, "evaluating new value")
	}
	if exc != nil {
		return nil, codes.Newf(codes.SetValueNotSupported, "%s", exc.Text)
	}

	arg := toCallArgument(obj)

	if objectID == "" {
		if err := e.client.SetVariableValue(ctx, scopeNumber, name, arg, f.CallFrameID); err != nil {
			return nil, codes.Wrap(err, codes.SetValueNotSupported, "setting scope variable")
		}
	} else {
		fn := fmt.Sprintf(`function(){ return this[%s] = %s }`, strconv.Quote(name), newValue)
		if _, _, err := e.client.CallFunctionOn(ctx, objectID, fn, nil, true, false); err != nil {
			return nil, codes.Wrap(err, codes.SetValueNotSupported, "setting property")
		}
	}

	return &Result{Type: string(obj.Type), Value: inspector.RenderValue(obj)}, nil
}

func toCallArgument(obj *runtime.RemoteObject) *runtime.CallArgument {
	if obj.ObjectID != "" {
		return &runtime.CallArgument{ObjectID: obj.ObjectID}
	}
	return &runtime.CallArgument{Value: obj.Value}
}

// Completions splits prefix at the last '.'; with a leading expression
// it walks the prototype chain of its evaluated value, otherwise it
// flattens the variable names of every scope in frameID's top frame.
func (e *Evaluator) Completions(ctx context.Context, frameID int, prefix string) ([]string, error) {
	idx := strings.LastIndex(prefix, ".")
	if idx < 0 {
		f, ok := e.inspector.FrameByID(frameID)
		if !ok {
			return nil, codes.Newf(codes.StackFrameNotValid, "frame %d is not valid", frameID)
		}
		scopes, err := e.inspector.Scopes(f.ID)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool)
		var names []string
		for _, s := range scopes {
			vars, err := e.inspector.Variables(ctx, s.VariablesReference, "", 0, 0)
			if err != nil {
				continue
			}
			for _, v := range vars {
				if !seen[v.Name] {
					seen[v.Name] = true
					names = append(names, v.Name)
				}
			}
		}
		return names, nil
	}

	expr := prefix[:idx]
	walk := `(function(x){var a=[];for(var o=x;o!==null&&typeof o!=='undefined';o=o.__proto__){a.push(Object.getOwnPropertyNames(o))};return a})(` + expr + `)`

	obj, exc, err := e.client.Evaluate(ctx, walk, false)
	if err != nil {
		return nil, codes.Wrap(err, codes.EvaluateFailed, "evaluating completion prefix")
	}
	if exc != nil {
		return nil, codes.Newf(codes.EvaluateFailed, "%s", exc.Text)
	}

	var layers [][]string
	if err := json.Unmarshal(obj.Value, &layers); err != nil {
		return nil, codes.Wrap(err, codes.EvaluateFailed, "parsing completion result")
	}

	seen := make(map[string]bool)
	var names []string
	for _, layer := range layers {
		for _, name := range layer {
			if isIndexedName(name) || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	return names, nil
}

func isIndexedName(name string) bool {
	_, err := strconv.Atoi(name)
	return err == nil
}

// RestartFrame restarts execution at the call frame frameID refers to;
// the resulting pause is tagged frame_entry by the caller.
func (e *Evaluator) RestartFrame(ctx context.Context, frameID int) error {
	f, ok := e.inspector.FrameByID(frameID)
	if !ok {
		return codes.Newf(codes.StackFrameNotValid, "frame %d is not valid", frameID)
	}
	return e.client.RestartFrame(ctx, f.CallFrameID)
}
