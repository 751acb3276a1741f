package traverse

import "github.com/arbortree/arbor/pkg/node"

// runBFS walks the tree level by level, emitting every node at depth d
// before any node at depth d+1. Children of different parents at the same
// depth are emitted grouped by parent in frontier order, and within a
// group in the order the adapter reported them.
func (e *engine) runBFS(yield func(node.Node, int) bool) {
	root := e.root.WithDepth(0)
	if !e.emit(yield, root, 0) {
		return
	}

	level := []node.Node{root}
	if e.opts.Metrics != nil {
		e.opts.Metrics.SetFrontierDepth(e.opts.Name, 0)
	}

	for len(level) > 0 {
		if e.cancelled() {
			return
		}

		next, stop := e.expandLevel(level)
		if stop {
			return
		}

		for _, n := range next {
			if !e.emit(yield, n, n.Depth()) {
				return
			}
		}

		level = next
		if e.opts.Metrics != nil && len(level) > 0 {
			e.opts.Metrics.SetFrontierDepth(e.opts.Name, level[0].Depth())
		}
	}
}

// expandLevel dispatches Children for every node in level, in waves of up
// to opts.BatchSize concurrent calls bounded overall by opts.MaxConcurrent,
// and returns the next level's nodes concatenated in frontier order. stop
// is true if a FailFast error or cancellation ended the traversal.
func (e *engine) expandLevel(level []node.Node) (next []node.Node, stop bool) {
	futures := make([]*childFuture, len(level))

	for start := 0; start < len(level); start += e.opts.BatchSize {
		if e.cancelled() {
			return nil, true
		}

		end := start + e.opts.BatchSize
		if end > len(level) {
			end = len(level)
		}
		for i := start; i < end; i++ {
			futures[i] = e.dispatch(level[i])
		}
		for i := start; i < end; i++ {
			if futures[i] == nil {
				continue // at max depth: children never requested
			}
			children, err := futures[i].wait()
			if err != nil {
				if isCancellation(err) {
					e.summary.Cancelled = true
					return nil, true
				}
				if e.handleError(level[i], level[i].Depth(), err) {
					return nil, true
				}
				continue
			}
			for _, c := range children {
				next = append(next, c.WithDepth(level[i].Depth()+1))
			}
		}
	}

	return next, false
}
