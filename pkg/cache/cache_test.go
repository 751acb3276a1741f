package cache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbortree/arbor/pkg/adapter"
	"github.com/arbortree/arbor/pkg/errors"
	"github.com/arbortree/arbor/pkg/node"
)

// countingAdapter records every call to Children, optionally with an
// artificial delay, and can be configured to fail.
type countingAdapter struct {
	mu       sync.Mutex
	calls    map[node.Key]int
	children map[node.Key][]node.Node
	identity string
	delay    time.Duration
	failKeys map[node.Key]bool
}

func newCountingAdapter(identity string, children map[node.Key][]node.Node) *countingAdapter {
	return &countingAdapter{
		calls:    make(map[node.Key]int),
		children: children,
		identity: identity,
		failKeys: make(map[node.Key]bool),
	}
}

func (c *countingAdapter) Children(ctx context.Context, n node.Node, opts adapter.ChildrenOptions) ([]node.Node, error) {
	c.mu.Lock()
	c.calls[n.Key()]++
	shouldFail := c.failKeys[n.Key()]
	c.mu.Unlock()

	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if shouldFail {
		return nil, errors.New(errors.CodeSourceUnavailable, "countingAdapter", "children", "injected failure")
	}
	return c.children[n.Key()], nil
}

func (c *countingAdapter) Identity() string { return c.identity }

func (c *countingAdapter) callCount(key node.Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[key]
}

var _ adapter.Adapter = (*countingAdapter)(nil)

func TestAdapter_CompletenessEquivalence(t *testing.T) {
	t.Parallel()

	root := node.New("/root", 0)
	a := node.New("/root/a", 1)
	b := node.New("/root/b", 1)
	inner := newCountingAdapter("fake:v1", map[node.Key][]node.Node{
		root.Key(): {a, b},
	})

	c, err := New(inner, Config{Name: "t", Mode: Safe, MaxEntries: 10})
	require.NoError(t, err)

	direct, err := inner.Children(context.Background(), root, adapter.DefaultChildrenOptions())
	require.NoError(t, err)
	cached, err := c.Children(context.Background(), root, adapter.DefaultChildrenOptions())
	require.NoError(t, err)

	require.Len(t, cached, len(direct))
	for i := range direct {
		assert.Equal(t, direct[i].Key(), cached[i].Key(), "order mismatch at %d", i)
	}
}

func TestAdapter_IdempotenceUnderRepeat(t *testing.T) {
	t.Parallel()

	root := node.New("/root", 0)
	inner := newCountingAdapter("fake:v1", map[node.Key][]node.Node{
		root.Key(): {node.New("/root/a", 1)},
	})
	c, err := New(inner, Config{Name: "t", Mode: Safe, MaxEntries: 10})
	require.NoError(t, err)

	first, err := c.Children(context.Background(), root, adapter.DefaultChildrenOptions())
	require.NoError(t, err)
	second, err := c.Children(context.Background(), root, adapter.DefaultChildrenOptions())
	require.NoError(t, err)

	require.Len(t, second, len(first))
	assert.Equal(t, first[0].Key(), second[0].Key())
	assert.EqualValues(t, 1, c.Counters().Misses)
	assert.EqualValues(t, 1, c.Counters().Hits)
	assert.Equal(t, 1, inner.callCount(root.Key()), "second call should be served from cache")
}

func TestAdapter_SingleFlight(t *testing.T) {
	t.Parallel()

	root := node.New("/root", 0)
	inner := newCountingAdapter("fake:v1", map[node.Key][]node.Node{
		root.Key(): {node.New("/root/a", 1)},
	})
	inner.delay = 50 * time.Millisecond

	c, err := New(inner, Config{Name: "t", Mode: Safe, MaxEntries: 10})
	require.NoError(t, err)

	const n = 16
	var wg sync.WaitGroup
	results := make([][]node.Node, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := c.Children(context.Background(), root, adapter.DefaultChildrenOptions())
			assert.NoError(t, err)
			results[i] = got
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, inner.callCount(root.Key()))
	for i := 1; i < n; i++ {
		require.Len(t, results[i], len(results[0]))
		assert.Equal(t, results[0][0].Key(), results[i][0].Key())
	}
	assert.GreaterOrEqual(t, c.Counters().CoalescedWaits, int64(n-1))
}

func TestAdapter_LRUBound(t *testing.T) {
	t.Parallel()

	children := map[node.Key][]node.Node{}
	for _, k := range []node.Key{"/k1", "/k2", "/k3", "/k4"} {
		children[k] = nil
	}
	inner := newCountingAdapter("fake:v1", children)
	c, err := New(inner, Config{Name: "t", Mode: Safe, MaxEntries: 3})
	require.NoError(t, err)

	for _, k := range []node.Key{"/k1", "/k2", "/k3", "/k4"} {
		_, err := c.Children(context.Background(), node.New(k, 0), adapter.DefaultChildrenOptions())
		require.NoError(t, err)
	}

	assert.Equal(t, 3, c.Len())

	_, err = c.Children(context.Background(), node.New("/k1", 0), adapter.DefaultChildrenOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, inner.callCount("/k1"), "evicted key must be re-scanned")
	assert.GreaterOrEqual(t, c.Counters().Evictions, int64(1))
}

func TestAdapter_ScopeIsolation(t *testing.T) {
	t.Parallel()

	root := node.New("/root", 0)
	inner := newCountingAdapter("fake:v1", map[node.Key][]node.Node{
		root.Key(): {node.New("/root/a", 1)},
	})

	c1, err := New(inner, Config{Name: "c1", Mode: Safe, MaxEntries: 10})
	require.NoError(t, err)
	c2, err := New(inner, Config{Name: "c2", Mode: Safe, MaxEntries: 10})
	require.NoError(t, err)

	require.NotEqual(t, c1.Identity(), c2.Identity())

	_, err = c1.Children(context.Background(), root, adapter.DefaultChildrenOptions())
	require.NoError(t, err)
	_, err = c2.Children(context.Background(), root, adapter.DefaultChildrenOptions())
	require.NoError(t, err)

	assert.Equal(t, 2, inner.callCount(root.Key()), "disjoint tables must not share a hit")
}

func TestAdapter_ErrorNonCaching(t *testing.T) {
	t.Parallel()

	root := node.New("/root", 0)
	inner := newCountingAdapter("fake:v1", map[node.Key][]node.Node{
		root.Key(): {node.New("/root/a", 1)},
	})
	inner.failKeys[root.Key()] = true

	c, err := New(inner, Config{Name: "t", Mode: Safe, MaxEntries: 10})
	require.NoError(t, err)

	_, err = c.Children(context.Background(), root, adapter.DefaultChildrenOptions())
	require.Error(t, err)

	inner.mu.Lock()
	inner.failKeys[root.Key()] = false
	inner.mu.Unlock()

	got, err := c.Children(context.Background(), root, adapter.DefaultChildrenOptions())
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 2, inner.callCount(root.Key()), "failed scan must not be cached")
	assert.EqualValues(t, 1, c.Counters().Misses, "failed scan does not count as a miss")
}

func TestAdapter_DepthUpgrade(t *testing.T) {
	t.Parallel()

	root := node.New("/a", 0)
	inner := newCountingAdapter("fake:v1", map[node.Key][]node.Node{
		root.Key(): {node.New("/a/b", 1), node.New("/a/d", 1)},
	})

	c, err := New(inner, Config{Name: "t", Mode: Safe, MaxEntries: 10})
	require.NoError(t, err)

	_, err = c.Children(context.Background(), root, adapter.ChildrenOptions{RequiredDepth: 0, UseCache: true})
	require.NoError(t, err)
	_, err = c.Children(context.Background(), root, adapter.ChildrenOptions{RequiredDepth: 2, UseCache: true})
	require.NoError(t, err)

	assert.EqualValues(t, 1, c.Counters().Upgrades)
	assert.Equal(t, 2, inner.callCount(root.Key()))
}

func TestAdapter_FastMode_NoEviction(t *testing.T) {
	t.Parallel()

	children := map[node.Key][]node.Node{}
	keys := make([]node.Key, 0, 10000)
	for i := 0; i < 10000; i++ {
		k := node.Key("/" + string(rune('a'+(i%26))) + "-" + strconv.Itoa(i))
		keys = append(keys, k)
		children[k] = nil
	}
	inner := newCountingAdapter("fake:v1", children)
	c, err := New(inner, Config{Name: "t", Mode: Fast})
	require.NoError(t, err)

	for _, k := range keys {
		_, err := c.Children(context.Background(), node.New(k, 0), adapter.DefaultChildrenOptions())
		require.NoError(t, err)
	}

	assert.Equal(t, len(keys), c.Len())
	assert.Zero(t, c.Counters().Evictions)
}

func TestAdapter_TTLRevalidation(t *testing.T) {
	t.Parallel()

	root := node.New("/root", 0)
	inner := newCountingAdapter("fake:v1", map[node.Key][]node.Node{
		root.Key(): {node.New("/root/a", 1)},
	})

	var token atomic.Int64
	token.Store(1)

	c, err := New(inner, Config{
		Name:          "t",
		Mode:          Safe,
		MaxEntries:    10,
		ValidationTTL: 10 * time.Millisecond,
		ValidatorFunc: func(ctx context.Context, n node.Node) (any, error) {
			return token.Load(), nil
		},
	})
	require.NoError(t, err)

	_, err = c.Children(context.Background(), root, adapter.DefaultChildrenOptions())
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	// Validator unchanged past TTL: still a hit, no rescan.
	_, err = c.Children(context.Background(), root, adapter.DefaultChildrenOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, inner.callCount(root.Key()), "validator unchanged should not trigger a rescan")

	token.Store(2)
	time.Sleep(20 * time.Millisecond)

	_, err = c.Children(context.Background(), root, adapter.DefaultChildrenOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, inner.callCount(root.Key()), "validator change must trigger a rescan")
}

func TestAdapter_UseCacheFalse_Bypasses(t *testing.T) {
	t.Parallel()

	root := node.New("/root", 0)
	inner := newCountingAdapter("fake:v1", map[node.Key][]node.Node{
		root.Key(): {node.New("/root/a", 1)},
	})
	c, err := New(inner, Config{Name: "t", Mode: Safe, MaxEntries: 10})
	require.NoError(t, err)

	opts := adapter.ChildrenOptions{RequiredDepth: 0, UseCache: false}
	_, err = c.Children(context.Background(), root, opts)
	require.NoError(t, err)
	_, err = c.Children(context.Background(), root, opts)
	require.NoError(t, err)

	assert.Equal(t, 2, inner.callCount(root.Key()), "cache must be bypassed both times")
	assert.EqualValues(t, 2, c.Counters().Bypasses)
	assert.Zero(t, c.Len(), "bypass must never touch the table")
}

func TestNew_RejectsSafeModeWithoutMaxEntries(t *testing.T) {
	t.Parallel()

	inner := newCountingAdapter("fake:v1", nil)
	_, err := New(inner, Config{Name: "t", Mode: Safe, MaxEntries: 0})
	assert.True(t, errors.Is(err, errors.CodeConfigurationError))
}
