// Package jsonadapter implements a base adapter (C3) over an in-memory JSON
// document: a node's key is its JSON Pointer (RFC 6901) path, and Children
// enumerates object members in sorted key order or array elements in index
// order, so two traversals of the same document always see the same order.
package jsonadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/arbortree/arbor/pkg/adapter"
	"github.com/arbortree/arbor/pkg/errors"
	"github.com/arbortree/arbor/pkg/node"
)

// RootKey is the JSON Pointer for the document root.
const RootKey = node.Key("")

// Adapter enumerates the members of a parsed JSON document. The document is
// decoded once at construction; Children never re-parses.
type Adapter struct {
	root     any
	identity string
}

// New decodes raw as JSON and returns an adapter over it. name distinguishes
// this document's cache scope from any other jsonadapter instance.
func New(name string, raw []byte) (*Adapter, error) {
	var root any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, errors.Wrap(errors.CodeConfigurationError, "jsonadapter", "new", err).WithContext("name", name)
	}
	return &Adapter{root: root, identity: fmt.Sprintf("jsonadapter:%s", name)}, nil
}

// NewFromValue wraps an already-decoded JSON-shaped value (map[string]any,
// []any, or a scalar) without re-marshaling.
func NewFromValue(name string, root any) *Adapter {
	return &Adapter{root: root, identity: fmt.Sprintf("jsonadapter:%s", name)}
}

// Identity returns a tag stable for this document instance.
func (a *Adapter) Identity() string {
	return a.identity
}

// Children enumerates n's object members (sorted by key) or array elements
// (in index order). Scalars have no children; a pointer that does not
// resolve returns a CodeNodeGone error.
func (a *Adapter) Children(ctx context.Context, n node.Node, opts adapter.ChildrenOptions) ([]node.Node, error) {
	value, err := resolve(a.root, string(n.Key()))
	if err != nil {
		return nil, errors.Wrap(errors.CodeNodeGone, "jsonadapter", "children", err).WithContext("pointer", string(n.Key()))
	}

	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		children := make([]node.Node, 0, len(keys))
		for _, k := range keys {
			childKey := node.Key(string(n.Key()) + "/" + escapeToken(k))
			val := v[k]
			children = append(children, node.NewWithMetadata(childKey, n.Depth()+1, func() (map[string]string, error) {
				return metadataFor(val), nil
			}))
		}
		return children, nil

	case []any:
		children := make([]node.Node, 0, len(v))
		for i, val := range v {
			childKey := node.Key(fmt.Sprintf("%s/%d", string(n.Key()), i))
			val := val
			children = append(children, node.NewWithMetadata(childKey, n.Depth()+1, func() (map[string]string, error) {
				return metadataFor(val), nil
			}))
		}
		return children, nil

	default:
		return nil, nil
	}
}

// Metadata returns a "type" field and, for scalars, a "value" field.
func (a *Adapter) Metadata(ctx context.Context, n node.Node) (map[string]string, error) {
	value, err := resolve(a.root, string(n.Key()))
	if err != nil {
		return nil, errors.Wrap(errors.CodeNodeGone, "jsonadapter", "metadata", err).WithContext("pointer", string(n.Key()))
	}
	return metadataFor(value), nil
}

func metadataFor(value any) map[string]string {
	switch v := value.(type) {
	case map[string]any:
		return map[string]string{"type": "object"}
	case []any:
		return map[string]string{"type": "array"}
	case string:
		return map[string]string{"type": "string", "value": v}
	case json.Number:
		return map[string]string{"type": "number", "value": v.String()}
	case float64:
		return map[string]string{"type": "number", "value": strconv.FormatFloat(v, 'g', -1, 64)}
	case bool:
		return map[string]string{"type": "bool", "value": strconv.FormatBool(v)}
	case nil:
		return map[string]string{"type": "null"}
	default:
		return map[string]string{"type": "unknown"}
	}
}

// resolve walks root following the JSON Pointer given by pointer (the part
// after the adapter's RootKey prefix).
func resolve(root any, pointer string) (any, error) {
	if pointer == "" {
		return root, nil
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, fmt.Errorf("malformed pointer %q", pointer)
	}

	current := root
	for _, raw := range strings.Split(pointer, "/")[1:] {
		token := unescapeToken(raw)
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[token]
			if !ok {
				return nil, fmt.Errorf("no member %q", token)
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(token)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("invalid index %q", token)
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("cannot descend into scalar at %q", token)
		}
	}
	return current, nil
}

func escapeToken(token string) string {
	token = strings.ReplaceAll(token, "~", "~0")
	token = strings.ReplaceAll(token, "/", "~1")
	return token
}

func unescapeToken(token string) string {
	token = strings.ReplaceAll(token, "~1", "/")
	token = strings.ReplaceAll(token, "~0", "~")
	return token
}

var (
	_ adapter.Adapter         = (*Adapter)(nil)
	_ adapter.MetadataAdapter = (*Adapter)(nil)
)
