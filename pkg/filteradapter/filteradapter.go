// Package filteradapter implements the filtering wrapper (C4): a decorator
// that narrows the children an inner adapter reports through an inclusion
// predicate, without altering the inner adapter's own results.
package filteradapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/arbortree/arbor/pkg/adapter"
	"github.com/arbortree/arbor/pkg/node"
)

// Predicate reports whether n should be kept in a filtered Children result.
type Predicate func(n node.Node) bool

// Adapter wraps an inner adapter.Adapter, reporting only the children for
// which Predicate returns true. It never mutates the inner adapter's
// results or the inner adapter's own cache entries (if any) — filtering
// happens in the wrapper's own scope, identified by Identity.
//
// Wrapping above a cache ("Filter(Cache(A))") hides entries from callers
// without shrinking what the cache below holds. Wrapping below a cache
// ("Cache(Filter(A))") narrows what gets cached in the first place. Both
// are legal; which one a caller builds determines which semantics they get.
type Adapter struct {
	inner       adapter.Adapter
	predicate   Predicate
	configLabel string
}

// Config names the predicate for Identity purposes. Label should uniquely
// describe the predicate's configuration (e.g. "ext=.go,.md") so that two
// filters over the same inner adapter with different predicates do not
// collide in a wrapping cache's scope tag.
type Config struct {
	Label     string
	Predicate Predicate
}

// New wraps inner with a filtering predicate.
func New(inner adapter.Adapter, config Config) *Adapter {
	return &Adapter{inner: inner, predicate: config.Predicate, configLabel: config.Label}
}

// Identity incorporates the inner adapter's identity and a digest of the
// predicate's configuration label, so a cache wrapping this filter (or
// wrapped by it) uses a scope distinct from the inner adapter's own scope
// and from any other filter configuration over the same inner adapter.
func (a *Adapter) Identity() string {
	sum := sha256.Sum256([]byte(a.configLabel))
	return fmt.Sprintf("filter(%s):%s", a.inner.Identity(), hex.EncodeToString(sum[:8]))
}

// Children returns the inner adapter's children for n, filtered by the
// configured predicate. A child excluded by the predicate is not
// traversed into and never reaches the engine; it does not affect the
// inner adapter's own reported child count for n.
func (a *Adapter) Children(ctx context.Context, n node.Node, opts adapter.ChildrenOptions) ([]node.Node, error) {
	children, err := a.inner.Children(ctx, n, opts)
	if err != nil {
		return nil, err
	}

	kept := make([]node.Node, 0, len(children))
	for _, c := range children {
		if a.predicate(c) {
			kept = append(kept, c)
		}
	}
	return kept, nil
}

// Metadata delegates to the inner adapter if it implements MetadataAdapter.
// Filtering never affects metadata: a kept node's metadata is the inner
// adapter's metadata, unchanged.
func (a *Adapter) Metadata(ctx context.Context, n node.Node) (map[string]string, error) {
	if ma, ok := a.inner.(adapter.MetadataAdapter); ok {
		return ma.Metadata(ctx, n)
	}
	return nil, nil
}

var (
	_ adapter.Adapter         = (*Adapter)(nil)
	_ adapter.MetadataAdapter = (*Adapter)(nil)
)
