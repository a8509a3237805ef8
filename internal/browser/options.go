package browser

import (
	"github.com/pkg/errors"
)

// Options controls how the debuggee Chrome target is obtained: either a
// freshly launched instance or an attach to one already running.
type Options struct {
	// Launch settings
	Headless    bool
	ChromePath  string
	DebugPort   int
	UserDataDir string
	ChromeFlags []string
	Verbose     bool
	Timeout     int

	// Attach settings
	UseRemote   bool
	RemoteHost  string
	RemotePort  int
	RemoteTabID string
}

// Option is a function that modifies Options.
type Option func(*Options) error

func defaultOptions() *Options {
	return &Options{
		Headless: true,
		Timeout:  30,
	}
}

// WithHeadless controls whether a launched Chrome runs headless.
func WithHeadless(headless bool) Option {
	return func(o *Options) error {
		o.Headless = headless
		return nil
	}
}

// WithChromePath sets a custom Chrome executable path.
func WithChromePath(path string) Option {
	return func(o *Options) error {
		o.ChromePath = path
		return nil
	}
}

// WithDebugPort fixes the remote-debugging port a launched Chrome exposes.
func WithDebugPort(port int) Option {
	return func(o *Options) error {
		if port < 0 {
			return errors.New("debug port must not be negative")
		}
		o.DebugPort = port
		return nil
	}
}

// WithUserDataDir sets Chrome's user-data-dir for a launched instance.
func WithUserDataDir(dir string) Option {
	return func(o *Options) error {
		o.UserDataDir = dir
		return nil
	}
}

// WithChromeFlags adds custom Chrome command line flags.
func WithChromeFlags(flags []string) Option {
	return func(o *Options) error {
		o.ChromeFlags = append(o.ChromeFlags, flags...)
		return nil
	}
}

// WithVerbose enables chromedp's log output, a launched Chrome's
// combined output on stdout, and this package's own progress lines.
func WithVerbose(verbose bool) Option {
	return func(o *Options) error {
		o.Verbose = verbose
		return nil
	}
}

// WithTimeout records a timeout in seconds in Options.Timeout. Launch
// does not read it: neither launching nor attaching is bounded by it.
func WithTimeout(timeout int) Option {
	return func(o *Options) error {
		if timeout <= 0 {
			return errors.New("timeout must be positive")
		}
		o.Timeout = timeout
		return nil
	}
}

// WithRemoteChrome configures attaching to an already-running Chrome's
// browser endpoint instead of launching a new instance.
func WithRemoteChrome(host string, port int) Option {
	return func(o *Options) error {
		if port <= 0 {
			return errors.New("remote port must be positive")
		}
		o.UseRemote = true
		o.RemoteHost = host
		o.RemotePort = port
		return nil
	}
}

// WithRemoteTab attaches to a specific target ID within the remote Chrome
// instance instead of the browser-wide DevTools endpoint.
func WithRemoteTab(tabID string) Option {
	return func(o *Options) error {
		if tabID == "" {
			return errors.New("tab ID cannot be empty")
		}
		o.RemoteTabID = tabID
		return nil
	}
}
