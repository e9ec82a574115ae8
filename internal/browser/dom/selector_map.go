// internal/browser/dom/selector_map.go
package dom

import "github.com/xkilldash9x/domscope/api/schemas"

// BuildSelectorMap indexes every element under root that carries a highlight index.
// Text nodes and unindexed elements are skipped.
func BuildSelectorMap(root *schemas.ElementNode) schemas.SelectorMap {
	selectorMap := make(schemas.SelectorMap)
	walkPreOrder(root, func(n schemas.Node) bool {
		switch n.Kind {
		case schemas.NodeKindElement:
			if n.Element.HighlightIndex != nil {
				selectorMap[*n.Element.HighlightIndex] = n.Element
			}
		case schemas.NodeKindText:
		}
		return true
	})
	return selectorMap
}
