// Package scripts indexes every CDP script the debuggee has parsed, the
// way the teacher's browser package indexes discovered network
// resources: by an opaque CDP-minted id and by URL, kept in sync as
// events arrive.
package scripts

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/tmc/dapcore/internal/transform"
)

// Script is a single parsed CDP script, immutable after Observe first
// reports it.
type Script struct {
	ID            string
	URL           string
	SourceMapURL  string
	AuthoredPaths []string
}

// IsPlaceholder reports whether URL is the eval:// stand-in minted for
// scripts the runtime reported with no URL of their own.
func (s *Script) IsPlaceholder() bool {
	return strings.HasPrefix(s.URL, "eval://")
}

var driveLetterRE = regexp.MustCompile(`^([a-zA-Z]):[\\/]`)

// Registry indexes observed scripts by id and by URL, applies the path
// and source-map transformers on arrival, and gates the adapter's
// "initialized" event on any sourcemap resolution in flight when it
// arrives.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*Script
	byURL map[string]*Script

	pathTransform transform.PathTransformer
	sourceMap     transform.SourceMapTransformer

	onResolved func(clientURL string)

	initialGroup  errgroup.Group
	initialClosed atomic.Bool
}

// New creates an empty Registry. onResolved, if non-nil, is invoked
// with the client-visible path of every script as soon as it (and any
// sourcemap work it triggered) is fully resolved; the breakpoint
// manager hangs its pending-breakpoint resolution off this callback.
func New(pt transform.PathTransformer, smt transform.SourceMapTransformer, onResolved func(clientURL string)) *Registry {
	return &Registry{
		byID:          make(map[string]*Script),
		byURL:         make(map[string]*Script),
		pathTransform: pt,
		sourceMap:     smt,
		onResolved:    onResolved,
	}
}

// normalizeURL applies the extension-drop and placeholder rules,
// returning ok=false for a script that should not be indexed at all.
func normalizeURL(id, rawURL string) (string, bool) {
	if strings.HasPrefix(rawURL, "extensions::") || strings.HasPrefix(rawURL, "chrome-extension://") {
		return "", false
	}
	if rawURL == "" {
		return fmt.Sprintf("eval://%s", id), true
	}
	url := strings.ReplaceAll(rawURL, `\`, `/`)
	if m := driveLetterRE.FindStringSubmatch(url); m != nil {
		url = strings.ToUpper(m[1]) + ":" + url[len(m[1])+1:]
	}
	return url, true
}

// Observe records a CDP scriptParsed event. It returns nil for scripts
// that are dropped outright (extension sources).
func (r *Registry) Observe(id, rawURL, sourceMapURL string) *Script {
	url, ok := normalizeURL(id, rawURL)
	if !ok {
		return nil
	}

	sc := &Script{ID: id, URL: url, SourceMapURL: sourceMapURL}

	r.mu.Lock()
	r.byID[id] = sc
	r.byURL[url] = sc
	r.mu.Unlock()

	clientURL := r.pathTransform.ClientPath(url)

	if sourceMapURL == "" {
		r.notifyResolved(clientURL)
		return sc
	}

	work := func() error {
		if authored, ok := r.sourceMap.AuthoredPath(url); ok {
			r.mu.Lock()
			sc.AuthoredPaths = append(sc.AuthoredPaths, authored)
			r.mu.Unlock()
		}
		r.notifyResolved(clientURL)
		return nil
	}

	if r.initialClosed.Load() {
		go work()
	} else {
		r.initialGroup.Go(work)
	}

	return sc
}

func (r *Registry) notifyResolved(clientURL string) {
	if r.onResolved != nil {
		r.onResolved(clientURL)
	}
}

// WaitInitial blocks until every sourcemap resolution triggered by a
// scriptParsed event observed before this call has settled, then
// closes the window: scripts parsed afterwards resolve independently
// and no longer gate anything. The façade calls this exactly once,
// immediately before emitting the DAP initialized event.
func (r *Registry) WaitInitial(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- r.initialGroup.Wait() }()
	select {
	case err := <-done:
		r.initialClosed.Store(true)
		return err
	case <-ctx.Done():
		r.initialClosed.Store(true)
		return ctx.Err()
	}
}

// ByID looks up a script by its CDP scriptId.
func (r *Registry) ByID(id string) (*Script, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sc, ok := r.byID[id]
	return sc, ok
}

// ByURL looks up a script by its (normalized) URL, either its
// generated URL or an authored path discovered via its sourcemap.
func (r *Registry) ByURL(url string) (*Script, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sc, ok := r.byURL[url]; ok {
		return sc, true
	}
	for _, sc := range r.byURL {
		for _, authored := range sc.AuthoredPaths {
			if authored == url {
				return sc, true
			}
		}
	}
	return nil, false
}

// All returns every indexed script, for the `.scripts` meta-command.
func (r *Registry) All() []*Script {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Script, 0, len(r.byID))
	for _, sc := range r.byID {
		out = append(out, sc)
	}
	return out
}

// Reset drops every indexed script, the way the teacher's connection
// code clears accumulated browser state on navigation. No CDP event
// handler in this module calls it: ExecutionContextsCleared is not
// subscribed to, so the index is kept across navigations.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]*Script)
	r.byURL = make(map[string]*Script)
}
