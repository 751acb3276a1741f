package jsonadapter

import (
	"context"
	"testing"

	"github.com/arbortree/arbor/pkg/adapter"
	"github.com/arbortree/arbor/pkg/errors"
	"github.com/arbortree/arbor/pkg/node"
)

const doc = `{
	"b": {"x": 1, "y": 2},
	"a": [10, 20, 30],
	"c": "leaf"
}`

func TestAdapter_Children_ObjectSortedByKey(t *testing.T) {
	t.Parallel()

	a, err := New("test", []byte(doc))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := a.Children(context.Background(), node.New(RootKey, 0), adapter.DefaultChildrenOptions())
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3", len(got))
	}
	want := []node.Key{"/a", "/b", "/c"}
	for i, w := range want {
		if got[i].Key() != w {
			t.Errorf("got[%d] = %q, want %q", i, got[i].Key(), w)
		}
		if got[i].Depth() != 1 {
			t.Errorf("got[%d].Depth() = %d, want 1", i, got[i].Depth())
		}
	}
}

func TestAdapter_Children_ArrayIndexOrder(t *testing.T) {
	t.Parallel()

	a, err := New("test", []byte(doc))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := a.Children(context.Background(), node.New(node.Key("/a"), 1), adapter.DefaultChildrenOptions())
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	want := []node.Key{"/a/0", "/a/1", "/a/2"}
	if len(got) != len(want) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Key() != w {
			t.Errorf("got[%d] = %q, want %q", i, got[i].Key(), w)
		}
	}
}

func TestAdapter_Children_ScalarHasNoChildren(t *testing.T) {
	t.Parallel()

	a, err := New("test", []byte(doc))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := a.Children(context.Background(), node.New(node.Key("/c"), 1), adapter.DefaultChildrenOptions())
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len(got) = %d, want 0", len(got))
	}
}

func TestAdapter_Children_MissingPointerIsNodeGone(t *testing.T) {
	t.Parallel()

	a, err := New("test", []byte(doc))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = a.Children(context.Background(), node.New(node.Key("/nope"), 1), adapter.DefaultChildrenOptions())
	if !errors.Is(err, errors.CodeNodeGone) {
		t.Errorf("error = %v, want CodeNodeGone", err)
	}
}

func TestAdapter_Metadata(t *testing.T) {
	t.Parallel()

	a, err := New("test", []byte(doc))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	meta, err := a.Metadata(context.Background(), node.New(node.Key("/c"), 1))
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if meta["type"] != "string" || meta["value"] != "leaf" {
		t.Errorf("meta = %v, want type=string value=leaf", meta)
	}
}

func TestEscapeUnescapeToken_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, tok := range []string{"a/b", "a~b", "plain"} {
		if got := unescapeToken(escapeToken(tok)); got != tok {
			t.Errorf("round trip %q -> %q, want %q", tok, got, tok)
		}
	}
}

func TestAdapter_Identity(t *testing.T) {
	t.Parallel()

	a, err := New("doc-1", []byte(doc))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Identity() != "jsonadapter:doc-1" {
		t.Errorf("Identity() = %q", a.Identity())
	}
}
