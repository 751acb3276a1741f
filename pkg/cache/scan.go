package cache

import (
	"context"
	"sync"
	"time"

	"github.com/arbortree/arbor/pkg/adapter"
	"github.com/arbortree/arbor/pkg/node"
)

// inflightCall is a one-shot, fulfillable pending result shared by every
// caller that asks for the same Key while a scan is underway. Modeled on
// sync.OnceValues so the underlying scan runs exactly once no matter how
// many goroutines call wait: the first caller's goroutine executes fn,
// every other caller blocks on the same memoized result.
type inflightCall struct {
	once func() (Entry, error)
}

func newInflightCall(fn func() (Entry, error)) *inflightCall {
	return &inflightCall{once: sync.OnceValues(fn)}
}

func (c *inflightCall) wait() (Entry, error) {
	return c.once()
}

// scanCoalesced implements spec §4.4.1 steps 4-7: attach to an existing
// in-flight scan for key if one is underway, otherwise become the scan
// that every concurrent caller for this key will coalesce onto. upgrade
// records whether this scan was triggered by insufficient depth (counted
// as an upgrade) or a plain miss.
func (a *Adapter) scanCoalesced(ctx context.Context, key Key, n node.Node, opts adapter.ChildrenOptions, upgrade bool) (Entry, error) {
	a.mu.Lock()
	if call, ok := a.inflight[key]; ok {
		a.coalescedWaits.Add(1)
		a.mu.Unlock()
		if a.config.Metrics != nil {
			a.config.Metrics.RecordCoalescedWait(a.config.Name)
		}

		entry, err := call.wait()
		if err != nil {
			return Entry{}, err
		}
		// Re-evaluate step 3: the entry this wait resolved to may already
		// satisfy requiredDepth even if it wasn't the scan we expected.
		if sufficientDepth(entry, opts.RequiredDepth) {
			return entry, nil
		}
		return a.scanCoalesced(ctx, key, n, opts, true)
	}

	call := newInflightCall(func() (Entry, error) {
		return a.performScan(ctx, key, n, opts)
	})
	a.inflight[key] = call
	a.mu.Unlock()

	entry, err := call.wait()

	// The entry (on success) is already published in the completeness
	// table by performScan before wait() returns here; removing the
	// in-flight record only now preserves the ordering spec §4.4.1
	// requires: readers never observe an InFlightTable miss before the
	// corresponding CompletenessTable entry is visible.
	a.mu.Lock()
	delete(a.inflight, key)
	a.mu.Unlock()

	if err != nil {
		return Entry{}, err
	}

	if upgrade {
		a.upgrades.Add(1)
		if a.config.Metrics != nil {
			a.config.Metrics.RecordCacheUpgrade(a.config.Name)
		}
	} else {
		a.misses.Add(1)
		if a.config.Metrics != nil {
			a.config.Metrics.RecordCacheMiss(a.config.Name)
		}
	}

	return entry, nil
}

// performScan calls the inner adapter, builds the resulting CacheEntry and
// publishes it. Per spec §7, a failed scan never creates or replaces an
// entry: the key's prior state (absent, or a shallower valid entry) is
// untouched, and the caller may retry immediately through the full miss
// path.
func (a *Adapter) performScan(ctx context.Context, key Key, n node.Node, opts adapter.ChildrenOptions) (Entry, error) {
	children, err := a.inner.Children(ctx, n, opts)
	if err != nil {
		if a.logger != nil {
			a.logger.Warn("scan failed, entry left unchanged", map[string]interface{}{
				"node":  string(n.Key()),
				"error": err.Error(),
			})
		}
		return Entry{}, err
	}

	var validator any
	if a.config.ValidatorFunc != nil {
		if token, verr := a.config.ValidatorFunc(ctx, n); verr == nil {
			validator = token
		}
	}

	depthScanned := 0
	if opts.RequiredDepth > 1 {
		depthScanned = opts.RequiredDepth
	}

	entry := Entry{
		Children:     cloneChildren(children),
		DepthScanned: depthScanned,
		InsertedAt:   time.Now(),
		Validator:    validator,
	}

	evicted := a.store.Set(key, entry)
	if evicted {
		a.evictions.Add(1)
		if a.config.Metrics != nil {
			a.config.Metrics.RecordCacheEviction(a.config.Name)
		}
		if a.logger != nil {
			a.logger.Debug("evicting cache entry", map[string]interface{}{"node": string(key.NodeKey)})
		}
	}
	if a.config.Metrics != nil {
		a.config.Metrics.SetCacheTrackedNodes(a.config.Name, a.store.Len())
	}

	return entry, nil
}
