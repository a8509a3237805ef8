package inspector

import (
	"context"
	"testing"

	"github.com/chromedp/cdproto/runtime"

	"github.com/tmc/dapcore/internal/cdpfake"
	"github.com/tmc/dapcore/internal/scripts"
	"github.com/tmc/dapcore/internal/transform"
)

func TestRenderValue(t *testing.T) {
	tests := []struct {
		name string
		obj  *runtime.RemoteObject
		want string
	}{
		{"undefined", &runtime.RemoteObject{Type: "undefined"}, "undefined"},
		{"null object", &runtime.RemoteObject{Type: "object"}, "null"},
		{"internal location", &runtime.RemoteObject{Type: "object", Subtype: "internal#location"}, "internal#location"},
		{"boolean", &runtime.RemoteObject{Type: "boolean", Value: []byte("true")}, "true"},
		{"number uses description", &runtime.RemoteObject{Type: "number", Description: "Infinity"}, "Infinity"},
		{"object with description", &runtime.RemoteObject{Type: "object", Subtype: "array", Description: "Array(3)"}, "Array(3)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderValue(tt.obj); got != tt.want {
				t.Errorf("RenderValue(%+v) = %q, want %q", tt.obj, got, tt.want)
			}
		})
	}
}

func TestTruncateFunctionSignature(t *testing.T) {
	if got := truncateFunctionSignature("function foo(a, b) { return a + b; }"); got != "function foo(a, b) { … }" {
		t.Errorf("truncateFunctionSignature(block body) = %q", got)
	}
	if got := truncateFunctionSignature("(a, b) => a + b"); got != "(a, b) => …" {
		t.Errorf("truncateFunctionSignature(arrow) = %q", got)
	}
}

func TestIsIndexedPropName(t *testing.T) {
	tests := map[string]bool{
		"0": true, "1": true, "42": true,
		"01": false, "-1": false, "foo": false, "": false,
	}
	for name, want := range tests {
		if got := isIndexedPropName(name); got != want {
			t.Errorf("isIndexedPropName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestEvaluateName(t *testing.T) {
	if got := evaluateName("", "x"); got != "x" {
		t.Errorf("evaluateName(root) = %q", got)
	}
	if got := evaluateName("arr", "0"); got != "arr[0]" {
		t.Errorf("evaluateName(indexed) = %q", got)
	}
	if got := evaluateName("obj", "name"); got != "obj.name" {
		t.Errorf("evaluateName(named) = %q", got)
	}
}

func TestVariablesDedupesOwnAndInherited(t *testing.T) {
	fake := &cdpfake.Client{
		GetPropertiesFunc: func(ctx context.Context, objectID string, own, accessorOnly bool) ([]*runtime.PropertyDescriptor, error) {
			if own {
				return []*runtime.PropertyDescriptor{
					{Name: "x", Value: &runtime.RemoteObject{Type: "number", Description: "1"}},
				}, nil
			}
			return []*runtime.PropertyDescriptor{
				{Name: "x", Value: &runtime.RemoteObject{Type: "number", Description: "999"}},
				{Name: "toString", Value: &runtime.RemoteObject{Type: "function", Description: "function toString() { [native code] }"}},
			}, nil
		},
	}

	reg := scripts.New(transform.IdentityPathTransformer{}, transform.IdentitySourceMapTransformer{}, nil)
	insp := New(fake, reg, nil, transform.IdentityPathTransformer{}, transform.IdentitySourceMapTransformer{}, transform.LineColumnTransformer{}, false)

	ref := insp.containers.Create(&container{kind: kindObject, objectID: "obj-1"})
	vars, err := insp.Variables(context.Background(), ref, "", 0, 0)
	if err != nil {
		t.Fatalf("Variables: %v", err)
	}
	if len(vars) != 2 {
		t.Fatalf("expected 2 variables (own x wins, plus inherited toString), got %d: %+v", len(vars), vars)
	}
	for _, v := range vars {
		if v.Name == "x" && v.Value != "1" {
			t.Errorf("expected own property x=1 to win over inherited, got %q", v.Value)
		}
	}
}

func TestVariablesSetterOnly(t *testing.T) {
	fake := &cdpfake.Client{
		GetPropertiesFunc: func(ctx context.Context, objectID string, own, accessorOnly bool) ([]*runtime.PropertyDescriptor, error) {
			if own {
				return []*runtime.PropertyDescriptor{
					{Name: "y", Set: &runtime.RemoteObject{Type: "function"}},
				}, nil
			}
			return nil, nil
		},
	}
	reg := scripts.New(transform.IdentityPathTransformer{}, transform.IdentitySourceMapTransformer{}, nil)
	insp := New(fake, reg, nil, transform.IdentityPathTransformer{}, transform.IdentitySourceMapTransformer{}, transform.LineColumnTransformer{}, false)
	ref := insp.containers.Create(&container{kind: kindObject, objectID: "obj-1"})

	vars, err := insp.Variables(context.Background(), ref, "", 0, 0)
	if err != nil {
		t.Fatalf("Variables: %v", err)
	}
	if len(vars) != 1 || vars[0].Value != "setter" {
		t.Fatalf("expected setter-only property to render as \"setter\", got %+v", vars)
	}
}

func TestVariablesPaginatesLargeCollection(t *testing.T) {
	fake := &cdpfake.Client{
		CallFunctionOnFunc: func(ctx context.Context, objectID, fn string, args []*runtime.CallArgument, silent, returnByValue bool) (*runtime.RemoteObject, *runtime.ExceptionDetails, error) {
			return &runtime.RemoteObject{Type: "object", Subtype: "array", ObjectID: "slice-1"}, nil, nil
		},
		GetPropertiesFunc: func(ctx context.Context, objectID string, own, accessorOnly bool) ([]*runtime.PropertyDescriptor, error) {
			if objectID != "slice-1" {
				t.Fatalf("expected GetProperties on the sliced array, got %q", objectID)
			}
			return []*runtime.PropertyDescriptor{
				{Name: "0", Value: &runtime.RemoteObject{Type: "number", Description: "100"}},
				{Name: "1", Value: &runtime.RemoteObject{Type: "number", Description: "101"}},
			}, nil
		},
	}
	reg := scripts.New(transform.IdentityPathTransformer{}, transform.IdentitySourceMapTransformer{}, nil)
	insp := New(fake, reg, nil, transform.IdentityPathTransformer{}, transform.IdentitySourceMapTransformer{}, transform.LineColumnTransformer{}, false)
	ref := insp.containers.Create(&container{kind: kindObject, objectID: "big-array"})

	vars, err := insp.Variables(context.Background(), ref, "", 100, 2)
	if err != nil {
		t.Fatalf("Variables: %v", err)
	}
	if len(vars) != 2 || vars[0].Name != "100" || vars[1].Name != "101" {
		t.Fatalf("expected names offset by start=100, got %+v", vars)
	}
}
