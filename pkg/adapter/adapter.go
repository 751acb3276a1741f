// Package adapter defines the child-enumeration contract that every
// concrete source (filesystem, JSON document, S3 bucket) and every
// decorator (filter, cache) implements. The engine and the cache layer
// depend only on this interface — never on a concrete base adapter.
package adapter

import (
	"context"

	"github.com/arbortree/arbor/pkg/node"
)

// ChildrenOptions parameterizes a single Children call.
type ChildrenOptions struct {
	// RequiredDepth hints how many further levels beneath each returned
	// child the caller intends to traverse. A cache decorator uses this to
	// decide whether a cached entry satisfies the request or must be
	// upgraded. Base adapters ignore it; it has no effect below the cache.
	RequiredDepth int

	// UseCache, when false, tells a cache decorator to delegate straight
	// through without reading or writing its tables. Ignored by adapters
	// that are not a cache decorator.
	UseCache bool
}

// DefaultChildrenOptions returns the zero-hint, cache-enabled default: only
// direct children are required, and caches (if any) participate normally.
func DefaultChildrenOptions() ChildrenOptions {
	return ChildrenOptions{RequiredDepth: 0, UseCache: true}
}

// Adapter enumerates the children of a node from some source. A single
// Adapter instance implementing this interface is either a base adapter
// talking directly to a source, or a decorator wrapping another Adapter.
//
// Implementations must be safe for concurrent use by independent
// traversals; per-call resources (buffers, connections checked out for one
// call) must not be shared across concurrent Children calls.
type Adapter interface {
	// Children returns node's direct children exactly once, in a
	// source-defined deterministic order (sorted by key unless the source
	// has an intrinsic order). Returns an *errors.Error with code
	// SourceUnavailable or NodeGone on failure; such errors are per-node,
	// never fatal to a traversal by themselves.
	Children(ctx context.Context, n node.Node, opts ChildrenOptions) ([]node.Node, error)

	// Identity returns a tag stable for the lifetime of this instance,
	// used by a wrapping cache decorator to derive its scope tag. Two
	// adapters wrapping the same inner adapter with different
	// configuration must return distinct identities.
	Identity() string
}

// MetadataAdapter is an optional capability: an Adapter may also expose
// per-node metadata. The engine never requires this; callers that want
// metadata type-assert for it.
type MetadataAdapter interface {
	Adapter

	// Metadata returns source-specific key/value metadata for node.
	Metadata(ctx context.Context, n node.Node) (map[string]string, error)
}
