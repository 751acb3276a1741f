// Package traverse implements the strategy-parameterized concurrent
// traversal engine (C6): BFS, DFS-pre and DFS-post walks over any
// adapter.Adapter, with bounded fan-out, backpressure and cancellation.
package traverse

import (
	"context"
	"iter"
	stderrors "errors"
	"time"

	"github.com/arbortree/arbor/internal/metrics"
	"github.com/arbortree/arbor/internal/telemetry"
	"github.com/arbortree/arbor/pkg/adapter"
	"github.com/arbortree/arbor/pkg/errors"
	"github.com/arbortree/arbor/pkg/node"
)

// Strategy selects the order in which the engine emits nodes.
type Strategy int

const (
	// BFS emits nodes in non-decreasing depth order.
	BFS Strategy = iota
	// DFSPre emits a parent before any of its descendants.
	DFSPre
	// DFSPost emits every descendant of a node before the node itself.
	DFSPost
)

// ErrorPolicy governs how the engine reacts to a per-node adapter error.
type ErrorPolicy int

const (
	// ContinueOnErrors skips the affected subtree and traversal continues.
	// The error always reaches Reporter: Run installs a telemetry-backed
	// default when the caller supplies none, so this policy never drops a
	// node silently. The default.
	ContinueOnErrors ErrorPolicy = iota
	// FailFast aborts the traversal with the first SourceUnavailable or
	// NodeGone error encountered.
	FailFast
	// CollectErrors behaves like ContinueOnErrors but accumulates every
	// error into the final Summary.
	CollectErrors
)

// Options parameterizes a single call to Run.
type Options struct {
	Strategy      Strategy
	MaxDepth      int // -1 means unbounded
	BatchSize     int
	MaxConcurrent int
	ErrorPolicy   ErrorPolicy

	// BypassCache, when true, passes UseCache=false on every Children
	// call, regardless of what adapter stack is in use.
	BypassCache bool

	// Reporter, if set, is invoked for every per-node error under
	// ContinueOnErrors and CollectErrors (and for the aborting error under
	// FailFast), before the node's subtree is skipped. If nil, Run installs
	// a default that logs through Logger (or a stdout telemetry.Logger if
	// Logger is also nil), so a per-node error is never silently dropped.
	Reporter func(n node.Node, depth int, err error)

	// Logger backs the default Reporter installed when Reporter is nil.
	// Ignored if Reporter is set explicitly.
	Logger *telemetry.Logger

	// Name identifies this traversal instance in metrics labels and in the
	// default Reporter's log fields.
	Name string
	// Metrics, if set, mirrors dispatch/emission counters into
	// Prometheus series labeled by Name.
	Metrics *metrics.Collector
}

// DefaultOptions returns the engine's documented defaults: BFS, unbounded
// depth, batch_size=256, max_concurrent=100, ContinueOnErrors.
func DefaultOptions() Options {
	return Options{
		Strategy:      BFS,
		MaxDepth:      -1,
		BatchSize:     256,
		MaxConcurrent: 100,
		ErrorPolicy:   ContinueOnErrors,
	}
}

// NodeError records a per-node adapter failure encountered during a
// traversal.
type NodeError struct {
	Node  node.Node
	Depth int
	Err   error
}

// Summary accumulates what happened during one Run, readable once the
// caller's range loop over the returned sequence has finished.
type Summary struct {
	NodesEmitted int
	Errors       []NodeError
	Cancelled    bool
	// FatalErr is set when ErrorPolicy is FailFast and a per-node error
	// aborted the traversal before the frontier was drained.
	FatalErr error
}

// Run constructs a traversal engine over root using a, and returns a
// sequence of (node, depth) pairs in the order opts.Strategy dictates. The
// returned *Summary is populated as iteration proceeds and is complete and
// safe to read once the caller's range loop over the sequence exits.
//
// Child enumeration is dispatched concurrently up to opts.MaxConcurrent
// simultaneous adapter calls. BFS dispatches each level in waves of up to
// opts.BatchSize nodes; DFSPre and DFSPost dispatch a node's enumeration
// when it is pushed and do not use BatchSize. The engine itself performs no
// blocking I/O; it only awaits adapter calls and a bounded semaphore.
func Run(ctx context.Context, root node.Node, a adapter.Adapter, opts Options) (iter.Seq2[node.Node, int], *Summary, error) {
	if opts.BatchSize <= 0 {
		return nil, nil, errors.New(errors.CodeConfigurationError, "traverse", "run", "batch_size must be > 0")
	}
	if opts.MaxConcurrent <= 0 {
		return nil, nil, errors.New(errors.CodeConfigurationError, "traverse", "run", "max_concurrent must be > 0")
	}

	if opts.Reporter == nil {
		opts.Reporter = defaultReporter(opts)
	}

	e := &engine{
		ctx:     ctx,
		root:    root,
		adapter: a,
		opts:    opts,
		sem:     make(chan struct{}, opts.MaxConcurrent),
		summary: &Summary{},
	}

	seq := func(yield func(node.Node, int) bool) {
		switch opts.Strategy {
		case DFSPre:
			e.runDFSPre(yield)
		case DFSPost:
			e.runDFSPost(yield)
		default:
			e.runBFS(yield)
		}
	}

	return seq, e.summary, nil
}

// engine holds the shared state and helpers used by every strategy's
// walk function.
type engine struct {
	ctx     context.Context
	root    node.Node
	adapter adapter.Adapter
	opts    Options
	sem     chan struct{}
	summary *Summary
}

// emit yields n at depth to the caller, recording it in the summary and
// metrics. Returns false if the caller's range loop broke early, in which
// case the walk must stop scheduling further work.
func (e *engine) emit(yield func(node.Node, int) bool, n node.Node, depth int) bool {
	e.summary.NodesEmitted++
	if e.opts.Metrics != nil {
		e.opts.Metrics.RecordNodeEmitted(e.opts.Name)
	}
	return yield(n, depth)
}

// requiredDepthFor computes the depth hint the engine passes to the
// adapter: how many further levels beneath a node at currentDepth this
// traversal still intends to visit. Zero (only direct children required)
// when MaxDepth is unbounded or already reached.
func (e *engine) requiredDepthFor(currentDepth int) int {
	if e.opts.MaxDepth < 0 {
		return 0
	}
	remaining := e.opts.MaxDepth - currentDepth
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// atMaxDepth reports whether a node at depth should have its children
// requested at all (spec §4.5.4: nodes at depth == max_depth are emitted
// but not expanded).
func (e *engine) atMaxDepth(depth int) bool {
	return e.opts.MaxDepth >= 0 && depth >= e.opts.MaxDepth
}

// defaultReporter builds the Reporter installed when the caller supplies
// none: every per-node error is logged through opts.Logger (or a stdout
// telemetry.Logger at its default level, if opts.Logger is also nil) rather
// than silently skipped.
func defaultReporter(opts Options) func(n node.Node, depth int, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.New(telemetry.DefaultConfig())
	}
	logger = logger.WithComponent("traverse")
	if opts.Name != "" {
		logger = logger.WithField("traversal", opts.Name)
	}

	return func(n node.Node, depth int, err error) {
		logger.Warn("node traversal error", map[string]interface{}{
			"node":  string(n.Key()),
			"depth": depth,
			"error": err.Error(),
		})
	}
}

// handleError applies the configured ErrorPolicy to a per-node adapter
// error. Returns true if the whole traversal must stop immediately.
func (e *engine) handleError(n node.Node, depth int, err error) (fatal bool) {
	if errors.Is(err, errors.CodeCancelled) {
		e.summary.Cancelled = true
		return true
	}

	if e.opts.Reporter != nil {
		e.opts.Reporter(n, depth, err)
	}

	switch e.opts.ErrorPolicy {
	case FailFast:
		e.summary.FatalErr = err
		e.summary.Errors = append(e.summary.Errors, NodeError{Node: n, Depth: depth, Err: err})
		return true
	case CollectErrors:
		e.summary.Errors = append(e.summary.Errors, NodeError{Node: n, Depth: depth, Err: err})
		return false
	default:
		return false
	}
}

// cancelled reports whether ctx has been cancelled, recording the
// cancellation in the summary and metrics the first time it's observed.
func (e *engine) cancelled() bool {
	if e.ctx.Err() == nil {
		return false
	}
	if !e.summary.Cancelled {
		e.summary.Cancelled = true
		if e.opts.Metrics != nil {
			e.opts.Metrics.RecordCancellation(e.opts.Name)
		}
	}
	return true
}

// childFuture is a one-shot handle to an in-flight Children call, dispatched
// eagerly so an ancestor's processing overlaps with a sibling's or a
// descendant's child enumeration up to MaxConcurrent simultaneous calls.
type childFuture struct {
	done     chan struct{}
	children []node.Node
	err      error
}

func (f *childFuture) wait() ([]node.Node, error) {
	<-f.done
	return f.children, f.err
}

// dispatch starts enumerating n's children in a new goroutine, bounded by
// e.sem, and returns immediately with a future for the result. Returns nil
// if n is at max depth (its children are never requested).
func (e *engine) dispatch(n node.Node) *childFuture {
	if e.atMaxDepth(n.Depth()) {
		return nil
	}

	f := &childFuture{done: make(chan struct{})}
	opts := adapter.ChildrenOptions{RequiredDepth: e.requiredDepthFor(n.Depth()), UseCache: !e.opts.BypassCache}

	go func() {
		e.sem <- struct{}{}
		defer func() { <-e.sem }()

		if e.opts.Metrics != nil {
			e.opts.Metrics.RecordTaskDispatched(e.opts.Name)
		}
		start := time.Now()
		children, err := e.adapter.Children(e.ctx, n, opts)
		if e.opts.Metrics != nil {
			e.opts.Metrics.ObserveDispatchLatency(e.opts.Name, time.Since(start))
			if err != nil {
				e.opts.Metrics.RecordTaskErrored(e.opts.Name)
			}
		}

		f.children = children
		f.err = err
		close(f.done)
	}()

	return f
}

// isCancellation reports whether err represents cooperative cancellation
// rather than a per-node source error.
func isCancellation(err error) bool {
	return errors.Is(err, errors.CodeCancelled) || stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}
