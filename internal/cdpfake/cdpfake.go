// Package cdpfake provides an in-memory implementation of
// cdpclient.Client for exercising the breakpoint, skipfiles, inspector,
// evaluator, and adapter packages without a live Chrome instance, the way the
// teacher's browser tests fake a page instead of launching one.
package cdpfake

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/debugger"
	"github.com/chromedp/cdproto/runtime"

	"github.com/tmc/dapcore/internal/cdpclient"
)

var _ cdpclient.Client = (*Client)(nil)

// Client is a scriptable fake CDP backend. Callers set the *Func fields
// they need a non-default behavior for; unset ones return zero values.
type Client struct {
	mu sync.Mutex

	EvaluateFunc            func(ctx context.Context, expression string, includeCommandLineAPI bool) (*runtime.RemoteObject, *runtime.ExceptionDetails, error)
	EvaluateOnCallFrameFunc func(ctx context.Context, callFrameID, expression string, silent, generatePreview bool) (*runtime.RemoteObject, *runtime.ExceptionDetails, error)
	GetPropertiesFunc       func(ctx context.Context, objectID string, ownProperties, accessorPropertiesOnly bool) ([]*runtime.PropertyDescriptor, error)
	CallFunctionOnFunc      func(ctx context.Context, objectID, functionDeclaration string, args []*runtime.CallArgument, silent, returnByValue bool) (*runtime.RemoteObject, *runtime.ExceptionDetails, error)
	GetScriptSourceFunc     func(ctx context.Context, scriptID string) (string, error)
	SetBreakpointFunc       func(ctx context.Context, scriptID string, line, column int64, condition string) (string, *debugger.Location, error)
	SetBreakpointByURLFunc  func(ctx context.Context, urlRegex string, line, column int64, condition string) (string, []*debugger.Location, error)

	nextBreakpointID int
	Calls            []string
}

func (c *Client) record(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, name)
}

func (c *Client) EnableDebugger(ctx context.Context) error { c.record("EnableDebugger"); return nil }
func (c *Client) EnableRuntime(ctx context.Context) error  { c.record("EnableRuntime"); return nil }
func (c *Client) EnableConsole(ctx context.Context) error  { c.record("EnableConsole"); return nil }

func (c *Client) Pause(ctx context.Context) error    { c.record("Pause"); return nil }
func (c *Client) Resume(ctx context.Context) error   { c.record("Resume"); return nil }
func (c *Client) StepOver(ctx context.Context) error { c.record("StepOver"); return nil }
func (c *Client) StepInto(ctx context.Context) error { c.record("StepInto"); return nil }
func (c *Client) StepOut(ctx context.Context) error  { c.record("StepOut"); return nil }

func (c *Client) RestartFrame(ctx context.Context, callFrameID string) error {
	c.record("RestartFrame")
	return nil
}

func (c *Client) SetPauseOnExceptions(ctx context.Context, state debugger.PauseOnExceptionsState) error {
	c.record("SetPauseOnExceptions")
	return nil
}

func (c *Client) SetBreakpoint(ctx context.Context, scriptID string, line, column int64, condition string) (string, *debugger.Location, error) {
	c.record("SetBreakpoint")
	if c.SetBreakpointFunc != nil {
		return c.SetBreakpointFunc(ctx, scriptID, line, column, condition)
	}
	c.mu.Lock()
	c.nextBreakpointID++
	id := fmt.Sprintf("bp-%d", c.nextBreakpointID)
	c.mu.Unlock()
	return id, &debugger.Location{ScriptID: debugger.ScriptID(scriptID), LineNumber: line, ColumnNumber: &column}, nil
}

func (c *Client) SetBreakpointByURL(ctx context.Context, urlRegex string, line, column int64, condition string) (string, []*debugger.Location, error) {
	c.record("SetBreakpointByURL")
	if c.SetBreakpointByURLFunc != nil {
		return c.SetBreakpointByURLFunc(ctx, urlRegex, line, column, condition)
	}
	c.mu.Lock()
	c.nextBreakpointID++
	id := fmt.Sprintf("bp-%d", c.nextBreakpointID)
	c.mu.Unlock()
	return id, []*debugger.Location{{LineNumber: line, ColumnNumber: &column}}, nil
}

func (c *Client) RemoveBreakpoint(ctx context.Context, breakpointID string) error {
	c.record("RemoveBreakpoint")
	return nil
}

func (c *Client) SetBlackboxPatterns(ctx context.Context, patterns []string) error {
	c.record("SetBlackboxPatterns")
	return nil
}

func (c *Client) SetBlackboxedRanges(ctx context.Context, scriptID string, positions []*debugger.ScriptPosition) error {
	c.record("SetBlackboxedRanges")
	return nil
}

func (c *Client) GetScriptSource(ctx context.Context, scriptID string) (string, error) {
	c.record("GetScriptSource")
	if c.GetScriptSourceFunc != nil {
		return c.GetScriptSourceFunc(ctx, scriptID)
	}
	return "", nil
}

func (c *Client) EvaluateOnCallFrame(ctx context.Context, callFrameID, expression string, silent, generatePreview bool) (*runtime.RemoteObject, *runtime.ExceptionDetails, error) {
	c.record("EvaluateOnCallFrame")
	if c.EvaluateOnCallFrameFunc != nil {
		return c.EvaluateOnCallFrameFunc(ctx, callFrameID, expression, silent, generatePreview)
	}
	return &runtime.RemoteObject{Type: "undefined"}, nil, nil
}

func (c *Client) Evaluate(ctx context.Context, expression string, includeCommandLineAPI bool) (*runtime.RemoteObject, *runtime.ExceptionDetails, error) {
	c.record("Evaluate")
	if c.EvaluateFunc != nil {
		return c.EvaluateFunc(ctx, expression, includeCommandLineAPI)
	}
	return &runtime.RemoteObject{Type: "undefined"}, nil, nil
}

func (c *Client) SetVariableValue(ctx context.Context, scopeNumber int64, variableName string, newValue *runtime.CallArgument, callFrameID string) error {
	c.record("SetVariableValue")
	return nil
}

func (c *Client) GetProperties(ctx context.Context, objectID string, ownProperties, accessorPropertiesOnly bool) ([]*runtime.PropertyDescriptor, error) {
	c.record("GetProperties")
	if c.GetPropertiesFunc != nil {
		return c.GetPropertiesFunc(ctx, objectID, ownProperties, accessorPropertiesOnly)
	}
	return nil, nil
}

func (c *Client) CallFunctionOn(ctx context.Context, objectID, functionDeclaration string, args []*runtime.CallArgument, silent, returnByValue bool) (*runtime.RemoteObject, *runtime.ExceptionDetails, error) {
	c.record("CallFunctionOn")
	if c.CallFunctionOnFunc != nil {
		return c.CallFunctionOnFunc(ctx, objectID, functionDeclaration, args, silent, returnByValue)
	}
	return &runtime.RemoteObject{Type: "undefined"}, nil, nil
}
