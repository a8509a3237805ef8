// Package browser manages the lifecycle of the debuggee Chrome target.
package browser

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/chromedp/chromedp"
	"github.com/pkg/errors"
)

// Target represents a managed debuggee Chrome instance: either one this
// process launched, or an attach to one already running.
type Target struct {
	ctx        context.Context
	cancelFunc context.CancelFunc
	opts       *Options
}

// New applies the given options and returns an unlaunched Target.
func New(opts ...Option) (*Target, error) {
	options := defaultOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, errors.Wrap(err, "applying browser option")
		}
	}
	return &Target{opts: options}, nil
}

// Launch starts a new Chrome instance, or attaches to a running one when
// the Target was configured with WithRemoteChrome.
func (t *Target) Launch(ctx context.Context) error {
	if t.opts.UseRemote {
		return t.attach(ctx)
	}
	return t.launch(ctx)
}

func (t *Target) launch(ctx context.Context) error {
	chromeOpts := chromedp.DefaultExecAllocatorOptions[:]
	if t.opts.Headless {
		chromeOpts = append(chromeOpts, chromedp.Headless)
	} else {
		chromeOpts = append(chromeOpts, chromedp.Flag("headless", false))
	}
	if t.opts.ChromePath != "" {
		chromeOpts = append(chromeOpts, chromedp.ExecPath(t.opts.ChromePath))
	}
	if t.opts.UserDataDir != "" {
		chromeOpts = append(chromeOpts, chromedp.UserDataDir(t.opts.UserDataDir))
	}
	if t.opts.DebugPort > 0 {
		chromeOpts = append(chromeOpts, chromedp.Flag("remote-debugging-port", fmt.Sprintf("%d", t.opts.DebugPort)))
	}
	if t.opts.Verbose {
		chromeOpts = append(chromeOpts, chromedp.CombinedOutput(os.Stdout))
	}
	for _, flag := range t.opts.ChromeFlags {
		chromeOpts = append(chromeOpts, chromedp.Flag(flag, true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, chromeOpts...)

	var browserCtx context.Context
	var browserCancel context.CancelFunc
	if t.opts.Verbose {
		browserCtx, browserCancel = chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Printf))
	} else {
		browserCtx, browserCancel = chromedp.NewContext(allocCtx)
	}

	// Force the allocator to actually start the process and attach, so
	// Launch fails fast instead of on the first Debugger command.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return errors.Wrap(err, "launching chrome")
	}

	t.ctx = browserCtx
	t.cancelFunc = func() {
		browserCancel()
		allocCancel()
	}
	if t.opts.Verbose {
		log.Printf("launched chrome, debuggee target ready")
	}
	return nil
}

// attach connects to an already-running Chrome's DevTools endpoint,
// optionally a specific target within it, rather than spawning a process.
func (t *Target) attach(ctx context.Context) error {
	if t.opts.RemoteHost == "" {
		t.opts.RemoteHost = "localhost"
	}
	wsURL, err := devtoolsWebsocketURL(ctx, t.opts.RemoteHost, t.opts.RemotePort, t.opts.RemoteTabID)
	if err != nil {
		return errors.Wrap(err, "discovering devtools websocket endpoint")
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, wsURL)
	var browserCtx context.Context
	var browserCancel context.CancelFunc
	if t.opts.Verbose {
		browserCtx, browserCancel = chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Printf))
	} else {
		browserCtx, browserCancel = chromedp.NewContext(allocCtx)
	}

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return errors.Wrap(err, "attaching to chrome")
	}

	t.ctx = browserCtx
	t.cancelFunc = func() {
		browserCancel()
		allocCancel()
	}
	if t.opts.Verbose {
		log.Printf("attached to chrome at %s:%d", t.opts.RemoteHost, t.opts.RemotePort)
	}
	return nil
}

// Context returns the chromedp context bound to this target, valid only
// after a successful Launch.
func (t *Target) Context() context.Context {
	return t.ctx
}

// Close tears down the target: for a launched instance this kills the
// process; for an attach it only closes the connection.
func (t *Target) Close() error {
	if t.cancelFunc != nil {
		t.cancelFunc()
	}
	return nil
}
