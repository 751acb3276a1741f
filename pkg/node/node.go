// Package node defines the identity of a tree position: the Node and Key
// types that every adapter, the cache and the traversal engine operate on.
package node

// Key is a stable, hashable, value-equal identifier for a node within a
// single adapter's source. Two nodes with the same Key are the same tree
// position; Key is never derived from a node's depth or from any adapter
// stack-specific scope (that's cache.Key's job).
type Key string

// Node is an opaque handle to a position in a source tree. A Node is
// immutable after construction: WithDepth returns a modified copy rather
// than mutating the receiver, so one Node value can be safely shared across
// goroutines and across the cache's retained child-key lists.
type Node struct {
	key      Key
	depth    int
	metadata func() (map[string]string, error)
}

// New creates a Node at the given depth with no metadata accessor.
func New(key Key, depth int) Node {
	return Node{key: key, depth: depth}
}

// NewWithMetadata creates a Node whose Metadata() lazily invokes fn on first
// use. fn is never called during construction, only when Metadata is called.
func NewWithMetadata(key Key, depth int, fn func() (map[string]string, error)) Node {
	return Node{key: key, depth: depth, metadata: fn}
}

// Key returns the node's stable identifier.
func (n Node) Key() Key {
	return n.key
}

// Depth returns the node's depth from the traversal root, as placed by the
// engine. A Node obtained directly from an adapter's Children result before
// being handed to the engine carries the depth the caller assigned it.
func (n Node) Depth() int {
	return n.depth
}

// WithDepth returns a copy of n at the given depth, leaving n unmodified.
func (n Node) WithDepth(depth int) Node {
	n.depth = depth
	return n
}

// Metadata returns the node's source-specific metadata, if the adapter that
// produced this node supplied an accessor. Returns nil, nil if none was
// supplied — metadata is optional per the adapter protocol.
func (n Node) Metadata() (map[string]string, error) {
	if n.metadata == nil {
		return nil, nil
	}
	return n.metadata()
}

// HasMetadata reports whether Metadata will do source work rather than
// trivially return nil.
func (n Node) HasMetadata() bool {
	return n.metadata != nil
}
