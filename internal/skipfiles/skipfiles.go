// Package skipfiles implements the blackbox manager: the pattern list
// and per-source override map that decide which sources are stepped
// through versus stepped over, and the CDP plumbing that keeps the
// debuggee's own blackbox state in sync.
package skipfiles

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/debugger"
	"github.com/pkg/errors"

	"github.com/tmc/dapcore/internal/cdpclient"
)

// Manager tracks which sources are considered library code.
type Manager struct {
	client cdpclient.Client

	mu        sync.RWMutex
	patterns  []*regexp.Regexp
	overrides map[string]bool
}

// New compiles globs and regexps into the initial pattern list.
func New(client cdpclient.Client, globs, regexps []string) (*Manager, error) {
	m := &Manager{
		client:    client,
		overrides: make(map[string]bool),
	}
	for _, g := range globs {
		re, err := globToRegexp(g)
		if err != nil {
			return nil, errors.Wrapf(err, "compiling skipFiles glob %q", g)
		}
		m.patterns = append(m.patterns, re)
	}
	for _, r := range regexps {
		re, err := regexp.Compile(r)
		if err != nil {
			return nil, errors.Wrapf(err, "compiling skipFileRegExps %q", r)
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

// globToRegexp turns a **-aware glob into a regexp. filepath.Match
// doesn't support **, so the translation is hand-rolled rather than
// borrowed from path/filepath.
func globToRegexp(glob string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	i := 0
	for i < len(glob) {
		switch {
		case strings.HasPrefix(glob[i:], "**"):
			b.WriteString(".*")
			i += 2
		case glob[i] == '*':
			b.WriteString("[^/]*")
			i++
		case glob[i] == '?':
			b.WriteString("[^/]")
			i++
		default:
			b.WriteString(regexp.QuoteMeta(string(glob[i])))
			i++
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// ShouldSkip reports the current skip decision for path: the override
// if the user has toggled it, else the first matching pattern, else
// "unknown" (ok=false) meaning neither says anything either way.
func (m *Manager) ShouldSkip(path string) (skip bool, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.shouldSkipLocked(path)
}

func (m *Manager) shouldSkipLocked(path string) (bool, bool) {
	if v, has := m.overrides[path]; has {
		return v, true
	}
	for _, re := range m.patterns {
		if re.MatchString(path) {
			return true, true
		}
	}
	return false, false
}

// InStackFunc reports whether path is exercised by the current stack;
// toggling is only permitted for sources the user can currently see.
type InStackFunc func(path string) bool

// Toggle flips the skip decision for path, which must be a source
// currently visible in the stack. Toggle does not check whether path
// is a generated script with authored sources of its own; the
// adapter's ToggleSkipFileStatus refuses such scripts before calling
// it, so only their authored sources are toggled.
func (m *Manager) Toggle(path string, inStackNow InStackFunc) error {
	if !inStackNow(path) {
		return errors.Errorf("cannot toggle skip state for %q: not part of the current stack", path)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, has := m.overrides[path]
	next := true
	if has {
		next = !current
	} else if skip, ok := m.shouldSkipLocked(path); ok {
		next = !skip
	}
	m.overrides[path] = next

	if next {
		re, err := regexp.Compile("^" + regexp.QuoteMeta(path) + "$")
		if err == nil {
			m.patterns = append(m.patterns, re)
		}
	} else {
		m.removePatternForLocked(path)
	}

	return nil
}

// removePatternForLocked surgically drops any compiled pattern that
// matches only path, so a disable doesn't linger in the pattern list.
// Patterns that also match other paths are left alone; the override
// map already takes precedence over them.
func (m *Manager) removePatternForLocked(path string) {
	exact := "^" + regexp.QuoteMeta(path) + "$"
	kept := m.patterns[:0]
	for _, re := range m.patterns {
		if re.String() != exact {
			kept = append(kept, re)
		}
	}
	m.patterns = kept
}

// PushPatterns re-issues setBlackboxPatterns with the current pattern
// list; a failure here only means the runtime lacks blackbox support
// and is not fatal to the caller.
func (m *Manager) PushPatterns(ctx context.Context) error {
	m.mu.RLock()
	raw := make([]string, len(m.patterns))
	for i, re := range m.patterns {
		raw[i] = re.String()
	}
	m.mu.RUnlock()
	return m.client.SetBlackboxPatterns(ctx, raw)
}

// AuthoredRange is one authored-source interval within a generated
// script, in source order.
type AuthoredRange struct {
	StartLine, StartColumn int
	Skipped                bool
}

// PositionalRanges computes the blackboxed positional ranges for a
// generated script, walking its authored sources in order and flipping
// inLibRange on every skip-state transition.
func PositionalRanges(parentSkipped bool, authoredSources []AuthoredRange) []*debugger.ScriptPosition {
	var ranges []*debugger.ScriptPosition
	inLibRange := parentSkipped
	if parentSkipped {
		ranges = append(ranges, &debugger.ScriptPosition{LineNumber: 0, ColumnNumber: 0})
	}
	for _, a := range authoredSources {
		if a.Skipped != inLibRange {
			ranges = append(ranges, &debugger.ScriptPosition{LineNumber: int64(a.StartLine), ColumnNumber: int64(a.StartColumn)})
			inLibRange = a.Skipped
		}
	}
	return ranges
}

// SetBlackboxedRanges clears any previous ranges for scriptID, then
// pushes the new ones. Both calls tolerate CDP rejection.
func (m *Manager) SetBlackboxedRanges(ctx context.Context, scriptID string, ranges []*debugger.ScriptPosition) {
	_ = m.client.SetBlackboxedRanges(ctx, scriptID, nil)
	if len(ranges) > 0 {
		_ = m.client.SetBlackboxedRanges(ctx, scriptID, ranges)
	}
}
