package scripts

import (
	"context"
	"testing"

	"github.com/tmc/dapcore/internal/transform"
)

func TestObserveDropsExtensions(t *testing.T) {
	r := New(transform.IdentityPathTransformer{}, transform.IdentitySourceMapTransformer{}, nil)
	if sc := r.Observe("1", "chrome-extension://abc/foo.js", ""); sc != nil {
		t.Fatalf("expected chrome-extension:// script to be dropped, got %+v", sc)
	}
	if sc := r.Observe("2", "extensions::foo.js", ""); sc != nil {
		t.Fatalf("expected extensions:: script to be dropped, got %+v", sc)
	}
}

func TestObservePlaceholderURL(t *testing.T) {
	r := New(transform.IdentityPathTransformer{}, transform.IdentitySourceMapTransformer{}, nil)
	sc := r.Observe("42", "", "")
	if sc == nil {
		t.Fatalf("expected script to be observed")
	}
	if sc.URL != "eval://42" {
		t.Fatalf("URL = %q, want eval://42", sc.URL)
	}
	if !sc.IsPlaceholder() {
		t.Fatalf("expected IsPlaceholder to be true")
	}
}

func TestObserveNormalizesDriveLetter(t *testing.T) {
	r := New(transform.IdentityPathTransformer{}, transform.IdentitySourceMapTransformer{}, nil)
	sc := r.Observe("1", `c:\code\app.js`, "")
	if sc.URL != "C:/code/app.js" {
		t.Fatalf("URL = %q, want C:/code/app.js", sc.URL)
	}
}

func TestByIDAndByURL(t *testing.T) {
	r := New(transform.IdentityPathTransformer{}, transform.IdentitySourceMapTransformer{}, nil)
	r.Observe("1", "file:///a/b.js", "")
	if sc, ok := r.ByID("1"); !ok || sc.URL != "file:///a/b.js" {
		t.Fatalf("ByID(1) = %+v, %v", sc, ok)
	}
	if sc, ok := r.ByURL("file:///a/b.js"); !ok || sc.ID != "1" {
		t.Fatalf("ByURL = %+v, %v", sc, ok)
	}
	if _, ok := r.ByURL("file:///missing.js"); ok {
		t.Fatalf("expected missing URL to not resolve")
	}
}

func TestResetClearsIndex(t *testing.T) {
	r := New(transform.IdentityPathTransformer{}, transform.IdentitySourceMapTransformer{}, nil)
	r.Observe("1", "file:///a/b.js", "")
	r.Reset()
	if _, ok := r.ByID("1"); ok {
		t.Fatalf("expected Reset to clear the index")
	}
	if len(r.All()) != 0 {
		t.Fatalf("expected All() to be empty after Reset")
	}
}

func TestObserveNotifiesResolvedWithoutSourceMap(t *testing.T) {
	var got string
	r := New(transform.IdentityPathTransformer{}, transform.IdentitySourceMapTransformer{}, func(clientURL string) {
		got = clientURL
	})
	r.Observe("1", "file:///a/b.js", "")
	if got != "file:///a/b.js" {
		t.Fatalf("onResolved got %q", got)
	}
}

func TestWaitInitialSettlesBeforeInitialized(t *testing.T) {
	resolved := make(chan string, 1)
	r := New(transform.IdentityPathTransformer{}, transform.IdentitySourceMapTransformer{}, func(clientURL string) {
		resolved <- clientURL
	})
	r.Observe("1", "file:///a/b.js", "file:///a/b.js.map")
	if err := r.WaitInitial(context.Background()); err != nil {
		t.Fatalf("WaitInitial: %v", err)
	}
	select {
	case <-resolved:
	default:
		t.Fatalf("expected sourcemap work to have resolved before WaitInitial returned")
	}
}
