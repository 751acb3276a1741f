// Package cache implements the completeness-aware cache adapter (C5): a
// decorator over any adapter.Adapter that records, per node, how deep a
// prior scan went, coalesces concurrent scans of the same node into one
// source call, and bounds memory either by LRU eviction (Safe mode) or not
// at all (Fast mode, chosen once at construction).
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arbortree/arbor/internal/metrics"
	"github.com/arbortree/arbor/internal/telemetry"
	"github.com/arbortree/arbor/pkg/adapter"
	"github.com/arbortree/arbor/pkg/errors"
	"github.com/arbortree/arbor/pkg/node"
)

// Complete is the depth_scanned sentinel meaning a subtree is exhaustively
// known, satisfying any required_depth.
const Complete = math.MaxInt

// Mode selects the cache's backing store. Fixed at construction; Children
// dispatches to whichever completenessStore was built for this instance,
// never branching on Mode itself on the hot path.
type Mode int

const (
	// Safe uses an LRU-ordered table with eviction enabled.
	Safe Mode = iota
	// Fast uses an unordered table with no eviction and no size enforcement.
	Fast
)

// Key identifies a cached entry: a node's key scoped to the adapter stack
// that produced it, so two stacks wrapping the same base, or a stack
// wrapping a filtered view of it, never collide.
type Key struct {
	NodeKey  node.Key
	ScopeTag string
}

// Entry is a single cached scan result.
type Entry struct {
	Children     []node.Node
	DepthScanned int
	InsertedAt   time.Time
	// Validator is the ValidatorFunc token captured after the scan that
	// produced this entry completed; nil when no ValidatorFunc is set or
	// it returned an error.
	Validator any
}

func sufficientDepth(e Entry, required int) bool {
	return e.DepthScanned == Complete || e.DepthScanned >= required
}

// Config configures a cache adapter instance.
type Config struct {
	// Name identifies this cache instance in counters and metrics labels.
	Name string

	// Mode is fixed for the instance's lifetime.
	Mode Mode

	// MaxEntries bounds the completeness table in Safe mode; ignored in
	// Fast mode. Must be > 0 when Mode is Safe.
	MaxEntries int

	// ValidationTTL is how long an entry is served without revalidation.
	// Zero disables TTL-based revalidation entirely (entries are only
	// invalidated by depth upgrades and, in Safe mode, eviction).
	ValidationTTL time.Duration

	// ValidatorFunc, if set, returns a source-level change token used to
	// revalidate an entry once ValidationTTL has elapsed.
	ValidatorFunc func(ctx context.Context, n node.Node) (any, error)

	// Metrics, if set, mirrors every counter into Prometheus series
	// labeled by Name.
	Metrics *metrics.Collector

	// Logger, if set, receives construction and eviction events, and a
	// warning for every scan the inner adapter fails.
	Logger *telemetry.Logger
}

// Counters is a snapshot of a cache adapter's observable counters. Advisory
// only: reading them never affects correctness, and concurrent updates may
// interleave with the snapshot.
type Counters struct {
	Hits           int64
	Misses         int64
	Bypasses       int64
	Evictions      int64
	Upgrades       int64
	CoalescedWaits int64
}

// Adapter wraps an inner adapter.Adapter with a completeness-aware cache.
type Adapter struct {
	inner    adapter.Adapter
	config   Config
	scopeTag string
	store    completenessStore
	logger   *telemetry.Logger

	mu       sync.Mutex
	inflight map[Key]*inflightCall

	hits, misses, bypasses atomic.Int64
	evictions, upgrades    atomic.Int64
	coalescedWaits         atomic.Int64
}

// New constructs a cache adapter wrapping inner. The backing store (LRU or
// plain map) is chosen here, once, and held as a completenessStore
// interface value for the adapter's lifetime.
func New(inner adapter.Adapter, config Config) (*Adapter, error) {
	var store completenessStore
	switch config.Mode {
	case Safe:
		if config.MaxEntries <= 0 {
			return nil, errors.New(errors.CodeConfigurationError, "cache", "new", "max_entries must be > 0 in safe mode")
		}
		s, err := newSafeStore(config.MaxEntries)
		if err != nil {
			return nil, errors.Wrap(errors.CodeConfigurationError, "cache", "new", err)
		}
		store = s
	case Fast:
		store = newFastStore()
	default:
		return nil, errors.New(errors.CodeConfigurationError, "cache", "new", fmt.Sprintf("unknown mode %d", config.Mode))
	}

	scopeTag := deriveScopeTag(inner.Identity(), config)

	logger := config.Logger
	if logger != nil {
		logger = logger.WithComponent("cache").WithField("scope", scopeTag)
		logger.Info("cache adapter constructed", map[string]interface{}{
			"mode":        config.Mode,
			"max_entries": config.MaxEntries,
		})
	}

	return &Adapter{
		inner:    inner,
		config:   config,
		scopeTag: scopeTag,
		store:    store,
		logger:   logger,
		inflight: make(map[Key]*inflightCall),
	}, nil
}

// deriveScopeTag derives a stable tag from the inner adapter's identity and
// this cache's own configuration, never from a memory address, so the tag
// is reproducible across runs and distinct for distinct configurations
// wrapping the same inner adapter.
func deriveScopeTag(innerIdentity string, config Config) string {
	digest := fmt.Sprintf("%s|name=%s|mode=%d|max_entries=%d|ttl=%s", innerIdentity, config.Name, config.Mode, config.MaxEntries, config.ValidationTTL)
	sum := sha256.Sum256([]byte(digest))
	return fmt.Sprintf("cache(%s):%s", innerIdentity, hex.EncodeToString(sum[:8]))
}

// Identity returns this cache adapter's scope tag.
func (a *Adapter) Identity() string {
	return a.scopeTag
}

// Children implements the cache operation of spec §4.4.1: lookup with
// optional revalidation, depth check, single-flight coalescing, scan and
// publish.
func (a *Adapter) Children(ctx context.Context, n node.Node, opts adapter.ChildrenOptions) ([]node.Node, error) {
	if !opts.UseCache {
		a.bypasses.Add(1)
		if a.config.Metrics != nil {
			a.config.Metrics.RecordCacheBypass(a.config.Name)
		}
		return a.inner.Children(ctx, n, opts)
	}

	key := Key{NodeKey: n.Key(), ScopeTag: a.scopeTag}

	entry, status := a.lookup(ctx, key, n, opts.RequiredDepth)
	switch status {
	case lookupFresh:
		a.hits.Add(1)
		if a.config.Metrics != nil {
			a.config.Metrics.RecordCacheHit(a.config.Name)
		}
		return cloneChildren(entry.Children), nil

	case lookupInsufficientDepth:
		entry, err := a.scanCoalesced(ctx, key, n, opts, true)
		if err != nil {
			return nil, err
		}
		return cloneChildren(entry.Children), nil

	default: // lookupAbsent
		entry, err := a.scanCoalesced(ctx, key, n, opts, false)
		if err != nil {
			return nil, err
		}
		return cloneChildren(entry.Children), nil
	}
}

// Metadata delegates to the inner adapter if it implements MetadataAdapter.
// The cache never caches metadata; only child enumeration is completeness-
// tracked.
func (a *Adapter) Metadata(ctx context.Context, n node.Node) (map[string]string, error) {
	if ma, ok := a.inner.(adapter.MetadataAdapter); ok {
		return ma.Metadata(ctx, n)
	}
	return nil, nil
}

// Counters returns a snapshot of this cache adapter's observable counters.
func (a *Adapter) Counters() Counters {
	return Counters{
		Hits:           a.hits.Load(),
		Misses:         a.misses.Load(),
		Bypasses:       a.bypasses.Load(),
		Evictions:      a.evictions.Load(),
		Upgrades:       a.upgrades.Load(),
		CoalescedWaits: a.coalescedWaits.Load(),
	}
}

// Len reports the current number of entries held by the completeness
// table.
func (a *Adapter) Len() int {
	return a.store.Len()
}

func cloneChildren(children []node.Node) []node.Node {
	if children == nil {
		return nil
	}
	clone := make([]node.Node, len(children))
	copy(clone, children)
	return clone
}

var (
	_ adapter.Adapter         = (*Adapter)(nil)
	_ adapter.MetadataAdapter = (*Adapter)(nil)
)
