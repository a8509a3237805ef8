// Command dapserve exposes the adapter core over a DAP connection,
// launching or attaching to a Chrome debuggee according to its flags
// before handing the connection to the adapter façade.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/chromedp/cdproto/debugger"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/pkg/errors"

	"github.com/tmc/dapcore/internal/adapter"
	"github.com/tmc/dapcore/internal/browser"
	"github.com/tmc/dapcore/internal/cdpclient"
	"github.com/tmc/dapcore/internal/config"
	"github.com/tmc/dapcore/internal/dlog"
	"github.com/tmc/dapcore/internal/pause"
)

func main() {
	var (
		addr        = flag.String("addr", "", "listen address for DAP connections (TCP); empty means serve a single session over stdio")
		verbose     = flag.Bool("verbose", false, "enable debug logging")
		headless    = flag.Bool("headless", true, "launch Chrome headless")
		chromePath  = flag.String("chrome-path", "", "path to a Chrome/Chromium binary")
		attachHost  = flag.String("attach-host", "", "attach to an already-running Chrome at this host instead of launching one")
		attachPort  = flag.Int("attach-port", 0, "remote-debugging port of the Chrome instance named by -attach-host")
		userDataDir = flag.String("user-data-dir", "", "Chrome user-data-dir for a launched instance")
	)
	flag.Parse()

	log := dlog.New(*verbose)

	opts := []browser.Option{browser.WithHeadless(*headless), browser.WithVerbose(*verbose)}
	if *chromePath != "" {
		opts = append(opts, browser.WithChromePath(*chromePath))
	}
	if *userDataDir != "" {
		opts = append(opts, browser.WithUserDataDir(*userDataDir))
	}
	if *attachHost != "" {
		opts = append(opts, browser.WithRemoteChrome(*attachHost, *attachPort))
	}

	ctx, cancel := signalContext()
	defer cancel()

	target, err := browser.New(opts...)
	if err != nil {
		fail(err)
	}
	if err := target.Launch(ctx); err != nil {
		fail(errors.Wrap(err, "bringing up debuggee"))
	}
	defer target.Close()

	client := cdpclient.New(target.Context())
	if err := client.EnableDebugger(ctx); err != nil {
		fail(errors.Wrap(err, "enabling debugger domain"))
	}
	if err := client.EnableRuntime(ctx); err != nil {
		fail(errors.Wrap(err, "enabling runtime domain"))
	}

	cfg := &config.LaunchConfig{Request: "launch", PathFormat: "path", SourceMaps: true}

	if *addr == "" {
		session := adapter.NewSession(stdioConn{}, client, cfg, log)
		stopEvents := listenCDPEvents(target.Context(), session)
		defer stopEvents()
		if err := session.Run(ctx); err != nil {
			fail(err)
		}
		return
	}

	if err := serveTCP(ctx, target.Context(), *addr, client, cfg, *verbose, log); err != nil {
		fail(err)
	}
}

func serveTCP(ctx, browserCtx context.Context, addr string, client cdpclient.Client, cfg *config.LaunchConfig, verbose bool, log *dlog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "listening for DAP connections")
	}
	defer ln.Close()
	log.Info("listening for DAP connections on %s", addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return errors.Wrap(err, "accepting DAP connection")
			}
		}
		go func() {
			defer conn.Close()
			sessLog := dlog.New(verbose)
			session := adapter.NewSession(conn, client, cfg, sessLog)
			stopEvents := listenCDPEvents(browserCtx, session)
			defer stopEvents()
			if err := session.Run(ctx); err != nil {
				sessLog.Error("session ended: %v", err)
			}
		}()
	}
}

// listenCDPEvents subscribes to the debuggee's async CDP events for the
// lifetime of one session and routes each to the handler that reacts to
// it: scriptParsed feeds the script registry (which in turn resolves
// breakpoints pending on that URL), paused drives the session's
// stopped-event classification, and breakpointResolved reports a
// by-URL breakpoint's settled location back to the client. resumed is
// received but not relayed.
func listenCDPEvents(browserCtx context.Context, session *adapter.Session) (stop func()) {
	ctx, cancel := context.WithCancel(browserCtx)
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *debugger.EventScriptParsed:
			session.HandleScriptParsed(string(e.ScriptID), e.URL, e.SourceMapURL)

		case *debugger.EventBreakpointResolved:
			session.HandleBreakpointResolved(string(e.BreakpointID), e.Location)

		case *debugger.EventPaused:
			var hitURL string
			if len(e.CallFrames) > 0 && e.CallFrames[0].Location != nil {
				if url, ok := session.ScriptURLByID(string(e.CallFrames[0].Location.ScriptID)); ok {
					hitURL = url
				}
			}
			var exc *runtime.RemoteObject
			if len(e.Data) > 0 {
				exc = new(runtime.RemoteObject)
				if err := json.Unmarshal(e.Data, exc); err != nil {
					exc = nil
				}
			}
			session.OnPaused(ctx, pause.PausedEvent{
				Reason:         string(e.Reason),
				HitBreakpoints: e.HitBreakpoints,
				Exception:      exc,
			}, e.CallFrames, hitURL)

		case *debugger.EventResumed:
			// nothing to relay: the next OnPaused call carries its own state
		}
	})
	return cancel
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

type stdioConn struct{}

func (stdioConn) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioConn) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
