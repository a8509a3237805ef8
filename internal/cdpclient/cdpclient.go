// Package cdpclient wraps the CDP domain calls the adapter core issues
// against the debuggee, the way the teacher's browser package wraps
// chromedp.Run calls against network and fetch domains behind a
// narrower manager type.
package cdpclient

import (
	"context"

	"github.com/chromedp/cdproto/debugger"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/pkg/errors"
)

// Client is the CDP surface the adapter core depends on. The cdpfake
// package provides a fake implementation for the core's unit tests;
// ChromeDPClient is the real one, built over a live chromedp context.
type Client interface {
	EnableDebugger(ctx context.Context) error
	EnableRuntime(ctx context.Context) error
	EnableConsole(ctx context.Context) error

	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	StepOver(ctx context.Context) error
	StepInto(ctx context.Context) error
	StepOut(ctx context.Context) error
	RestartFrame(ctx context.Context, callFrameID string) error

	SetPauseOnExceptions(ctx context.Context, state debugger.PauseOnExceptionsState) error

	SetBreakpoint(ctx context.Context, scriptID string, line, column int64, condition string) (breakpointID string, actual *debugger.Location, err error)
	SetBreakpointByURL(ctx context.Context, urlRegex string, line, column int64, condition string) (breakpointID string, locations []*debugger.Location, err error)
	RemoveBreakpoint(ctx context.Context, breakpointID string) error

	SetBlackboxPatterns(ctx context.Context, patterns []string) error
	SetBlackboxedRanges(ctx context.Context, scriptID string, positions []*debugger.ScriptPosition) error

	GetScriptSource(ctx context.Context, scriptID string) (source string, err error)

	EvaluateOnCallFrame(ctx context.Context, callFrameID, expression string, silent, generatePreview bool) (*runtime.RemoteObject, *runtime.ExceptionDetails, error)
	Evaluate(ctx context.Context, expression string, includeCommandLineAPI bool) (*runtime.RemoteObject, *runtime.ExceptionDetails, error)
	SetVariableValue(ctx context.Context, scopeNumber int64, variableName string, newValue *runtime.CallArgument, callFrameID string) error

	GetProperties(ctx context.Context, objectID string, ownProperties, accessorPropertiesOnly bool) ([]*runtime.PropertyDescriptor, error)
	CallFunctionOn(ctx context.Context, objectID, functionDeclaration string, args []*runtime.CallArgument, silent, returnByValue bool) (*runtime.RemoteObject, *runtime.ExceptionDetails, error)
}

// ChromeDPClient implements Client over a live chromedp-managed target.
type ChromeDPClient struct {
	ctx context.Context
}

// New wraps a chromedp-managed context. The context should already be
// the one returned by chromedp.NewContext, not a plain context.Context.
func New(ctx context.Context) *ChromeDPClient {
	return &ChromeDPClient{ctx: ctx}
}

func (c *ChromeDPClient) EnableDebugger(ctx context.Context) error {
	return chromedp.Run(ctx, debugger.Enable())
}

func (c *ChromeDPClient) EnableRuntime(ctx context.Context) error {
	return chromedp.Run(ctx, runtime.Enable())
}

func (c *ChromeDPClient) EnableConsole(ctx context.Context) error {
	return nil
}

func (c *ChromeDPClient) Pause(ctx context.Context) error {
	return chromedp.Run(ctx, debugger.Pause())
}

func (c *ChromeDPClient) Resume(ctx context.Context) error {
	return chromedp.Run(ctx, debugger.Resume())
}

func (c *ChromeDPClient) StepOver(ctx context.Context) error {
	return chromedp.Run(ctx, debugger.StepOver())
}

func (c *ChromeDPClient) StepInto(ctx context.Context) error {
	return chromedp.Run(ctx, debugger.StepInto())
}

func (c *ChromeDPClient) StepOut(ctx context.Context) error {
	return chromedp.Run(ctx, debugger.StepOut())
}

func (c *ChromeDPClient) RestartFrame(ctx context.Context, callFrameID string) error {
	if err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, err := debugger.RestartFrame(debugger.CallFrameID(callFrameID)).Do(ctx)
		return err
	})); err != nil {
		return errors.Wrap(err, "restarting frame")
	}
	return chromedp.Run(ctx, debugger.StepInto())
}

func (c *ChromeDPClient) SetPauseOnExceptions(ctx context.Context, state debugger.PauseOnExceptionsState) error {
	return chromedp.Run(ctx, debugger.SetPauseOnExceptions(state))
}

func (c *ChromeDPClient) SetBreakpoint(ctx context.Context, scriptID string, line, column int64, condition string) (string, *debugger.Location, error) {
	var id debugger.BreakpointID
	var actual *debugger.Location
	loc := &debugger.Location{ScriptID: debugger.ScriptID(scriptID), LineNumber: line, ColumnNumber: &column}
	params := debugger.SetBreakpoint(loc)
	if condition != "" {
		params = params.WithCondition(condition)
	}
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		id, actual, err = params.Do(ctx)
		return err
	}))
	if err != nil {
		return "", nil, errors.Wrap(err, "setting breakpoint by location")
	}
	return string(id), actual, nil
}

func (c *ChromeDPClient) SetBreakpointByURL(ctx context.Context, urlRegex string, line, column int64, condition string) (string, []*debugger.Location, error) {
	var id debugger.BreakpointID
	var locations []*debugger.Location
	params := debugger.SetBreakpointByURL(line).WithURLRegex(urlRegex).WithColumnNumber(column)
	if condition != "" {
		params = params.WithCondition(condition)
	}
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		id, locations, err = params.Do(ctx)
		return err
	}))
	if err != nil {
		return "", nil, errors.Wrap(err, "setting breakpoint by url")
	}
	return string(id), locations, nil
}

func (c *ChromeDPClient) RemoveBreakpoint(ctx context.Context, breakpointID string) error {
	return chromedp.Run(ctx, debugger.RemoveBreakpoint(debugger.BreakpointID(breakpointID)))
}

func (c *ChromeDPClient) SetBlackboxPatterns(ctx context.Context, patterns []string) error {
	return chromedp.Run(ctx, debugger.SetBlackboxPatterns(patterns))
}

func (c *ChromeDPClient) SetBlackboxedRanges(ctx context.Context, scriptID string, positions []*debugger.ScriptPosition) error {
	return chromedp.Run(ctx, debugger.SetBlackboxedRanges(debugger.ScriptID(scriptID), positions))
}

func (c *ChromeDPClient) GetScriptSource(ctx context.Context, scriptID string) (string, error) {
	var source string
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		source, _, err = debugger.GetScriptSource(debugger.ScriptID(scriptID)).Do(ctx)
		return err
	}))
	if err != nil {
		return "", errors.Wrap(err, "fetching script source")
	}
	return source, nil
}

func (c *ChromeDPClient) EvaluateOnCallFrame(ctx context.Context, callFrameID, expression string, silent, generatePreview bool) (*runtime.RemoteObject, *runtime.ExceptionDetails, error) {
	var result *runtime.RemoteObject
	var exc *runtime.ExceptionDetails
	params := debugger.EvaluateOnCallFrame(debugger.CallFrameID(callFrameID), expression).
		WithSilent(silent).WithGeneratePreview(generatePreview)
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		result, exc, err = params.Do(ctx)
		return err
	}))
	if err != nil {
		return nil, nil, errors.Wrap(err, "evaluating on call frame")
	}
	return result, exc, nil
}

func (c *ChromeDPClient) Evaluate(ctx context.Context, expression string, includeCommandLineAPI bool) (*runtime.RemoteObject, *runtime.ExceptionDetails, error) {
	var result *runtime.RemoteObject
	var exc *runtime.ExceptionDetails
	params := runtime.Evaluate(expression).WithGeneratePreview(true).WithIncludeCommandLineAPI(includeCommandLineAPI)
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		result, exc, err = params.Do(ctx)
		return err
	}))
	if err != nil {
		return nil, nil, errors.Wrap(err, "evaluating expression")
	}
	return result, exc, nil
}

func (c *ChromeDPClient) SetVariableValue(ctx context.Context, scopeNumber int64, variableName string, newValue *runtime.CallArgument, callFrameID string) error {
	return chromedp.Run(ctx, debugger.SetVariableValue(scopeNumber, variableName, newValue, debugger.CallFrameID(callFrameID)))
}

func (c *ChromeDPClient) GetProperties(ctx context.Context, objectID string, ownProperties, accessorPropertiesOnly bool) ([]*runtime.PropertyDescriptor, error) {
	var props []*runtime.PropertyDescriptor
	params := runtime.GetProperties(runtime.RemoteObjectID(objectID)).
		WithOwnProperties(ownProperties).WithAccessorPropertiesOnly(accessorPropertiesOnly).WithGeneratePreview(true)
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		props, _, _, _, err = params.Do(ctx)
		return err
	}))
	if err != nil {
		return nil, errors.Wrap(err, "getting properties")
	}
	return props, nil
}

func (c *ChromeDPClient) CallFunctionOn(ctx context.Context, objectID, functionDeclaration string, args []*runtime.CallArgument, silent, returnByValue bool) (*runtime.RemoteObject, *runtime.ExceptionDetails, error) {
	var result *runtime.RemoteObject
	var exc *runtime.ExceptionDetails
	params := runtime.CallFunctionOn(functionDeclaration).
		WithObjectID(runtime.RemoteObjectID(objectID)).
		WithArguments(args).
		WithSilent(silent).
		WithReturnByValue(returnByValue)
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		result, exc, err = params.Do(ctx)
		return err
	}))
	if err != nil {
		return nil, nil, errors.Wrap(err, "calling function on object")
	}
	return result, exc, nil
}
