package traverse

import "github.com/arbortree/arbor/pkg/node"

// preFrame is one entry on the DFS-pre stack: a node whose children
// (if any) were dispatched for concurrent enumeration as soon as the node
// was pushed, so the fetch overlaps with whatever the engine emits first.
type preFrame struct {
	node   node.Node
	future *childFuture
}

// runDFSPre emits a parent before any of its descendants. The complete
// subtree of an earlier sibling is fully emitted before the next sibling
// begins, by construction of the LIFO stack.
func (e *engine) runDFSPre(yield func(node.Node, int) bool) {
	root := e.root.WithDepth(0)
	stack := []preFrame{{node: root, future: e.dispatch(root)}}

	for len(stack) > 0 {
		if e.cancelled() {
			return
		}

		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !e.emit(yield, top.node, top.node.Depth()) {
			return
		}
		if top.future == nil {
			continue
		}

		children, err := top.future.wait()
		if err != nil {
			if isCancellation(err) {
				e.summary.Cancelled = true
				return
			}
			if e.handleError(top.node, top.node.Depth(), err) {
				return
			}
			continue
		}

		for i := len(children) - 1; i >= 0; i-- {
			c := children[i].WithDepth(top.node.Depth() + 1)
			stack = append(stack, preFrame{node: c, future: e.dispatch(c)})
		}
	}
}

// postFrame is one entry on the DFS-post stack. childrenDone tracks
// whether this frame's own children have been fetched yet;
// nextChildIdx indexes how many of them have already been pushed.
type postFrame struct {
	node         node.Node
	future       *childFuture
	childrenDone bool
	children     []node.Node
	nextChildIdx int
	skip         bool
}

// runDFSPost emits every descendant of a node before the node itself,
// left-to-right across siblings.
func (e *engine) runDFSPost(yield func(node.Node, int) bool) {
	root := e.root.WithDepth(0)
	stack := []*postFrame{{node: root, future: e.dispatch(root)}}

	for len(stack) > 0 {
		if e.cancelled() {
			return
		}

		top := stack[len(stack)-1]

		if !top.childrenDone {
			top.childrenDone = true
			if top.future != nil {
				children, err := top.future.wait()
				if err != nil {
					if isCancellation(err) {
						e.summary.Cancelled = true
						return
					}
					if e.handleError(top.node, top.node.Depth(), err) {
						return
					}
					top.skip = true
				} else {
					top.children = children
				}
			}
		}

		if top.nextChildIdx < len(top.children) {
			c := top.children[top.nextChildIdx].WithDepth(top.node.Depth() + 1)
			top.nextChildIdx++
			stack = append(stack, &postFrame{node: c, future: e.dispatch(c)})
			continue
		}

		stack = stack[:len(stack)-1]
		if top.skip {
			continue
		}
		if !e.emit(yield, top.node, top.node.Depth()) {
			return
		}
	}
}
