// internal/browser/dom/walk.go
package dom

import "github.com/xkilldash9x/domscope/api/schemas"

// walkPreOrder visits every node under root, root included, in document order using an
// explicit stack so pathological page depth cannot exhaust the goroutine stack. Returning
// false from visit stops the walk.
func walkPreOrder(root *schemas.ElementNode, visit func(n schemas.Node) bool) {
	if root == nil {
		return
	}
	stack := []schemas.Node{schemas.NodeFromElement(root)}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !visit(n) {
			return
		}

		switch n.Kind {
		case schemas.NodeKindElement:
			// Push in reverse so the first child is visited next.
			children := n.Element.Children
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, children[i])
			}
		case schemas.NodeKindText:
			// Leaf.
		}
	}
}

// findElement returns the first element in pre-order for which match is true.
func findElement(root *schemas.ElementNode, match func(*schemas.ElementNode) bool) *schemas.ElementNode {
	var found *schemas.ElementNode
	walkPreOrder(root, func(n schemas.Node) bool {
		switch n.Kind {
		case schemas.NodeKindElement:
			if match(n.Element) {
				found = n.Element
				return false
			}
		case schemas.NodeKindText:
		}
		return true
	})
	return found
}
