// internal/browser/dom/render.go
package dom

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	json "github.com/json-iterator/go"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/domscope/api/schemas"
)

// HighlightIndexAttr is added to indexed elements by RenderHTML.
const HighlightIndexAttr = "data-highlight-index"

// RenderJSON encodes a snapshot. The tree uses the extraction wire shape and the selector map
// is encoded as index -> xpath.
func RenderJSON(snapshot *schemas.Snapshot, indent bool) ([]byte, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("cannot render a nil snapshot")
	}
	if indent {
		return json.ConfigCompatibleWithStandardLibrary.MarshalIndent(snapshot, "", "  ")
	}
	return json.ConfigCompatibleWithStandardLibrary.Marshal(snapshot)
}

// voidElements cannot carry children when rendered.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true, "img": true,
	"input": true, "keygen": true, "link": true, "meta": true, "param": true, "source": true,
	"track": true, "wbr": true,
}

// RenderHTML rebuilds markup for the reconstructed tree. Indexed elements carry their index
// in a data-highlight-index attribute. Invisible text is dropped.
func RenderHTML(root *schemas.ElementNode) (string, error) {
	if root == nil {
		return "", fmt.Errorf("cannot render a nil tree")
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, toHTMLNode(root)); err != nil {
		return "", fmt.Errorf("failed to render snapshot html: %w", err)
	}
	return buf.String(), nil
}

// toHTMLNode converts the tree iteratively. Each work item pairs a source element with the
// html.Node already created for it.
func toHTMLNode(root *schemas.ElementNode) *html.Node {
	type item struct {
		src *schemas.ElementNode
		dst *html.Node
	}
	top := newHTMLElement(root)
	stack := []item{{root, top}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if voidElements[strings.ToLower(it.src.TagName)] {
			continue
		}
		for _, child := range it.src.Children {
			switch child.Kind {
			case schemas.NodeKindElement:
				n := newHTMLElement(child.Element)
				it.dst.AppendChild(n)
				stack = append(stack, item{child.Element, n})
			case schemas.NodeKindText:
				if child.Text.IsVisible {
					it.dst.AppendChild(&html.Node{Type: html.TextNode, Data: child.Text.Text})
				}
			}
		}
	}
	return top
}

// renamedElements maps tags that html.Render cannot emit in place to a stand-in. Everything
// after a plaintext start tag is raw text, so the renderer stops there and drops later siblings.
var renamedElements = map[string]string{
	"plaintext": "pre",
}

func newHTMLElement(el *schemas.ElementNode) *html.Node {
	tag := strings.ToLower(el.TagName)
	if renamed, ok := renamedElements[tag]; ok {
		tag = renamed
	}
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
	for _, key := range el.Attributes.Keys() {
		val, _ := el.Attributes.Get(key)
		n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
	}
	if el.HighlightIndex != nil {
		n.Attr = append(n.Attr, html.Attribute{Key: HighlightIndexAttr, Val: strconv.Itoa(*el.HighlightIndex)})
	}
	return n
}

// ClickableElementsString lists the indexed elements one per line as
// "[index]<tag attrs>text</tag>". Only attributes named in includeAttributes are printed. Text
// that no indexed element owns is listed on its own line prefixed with "_[:]".
func ClickableElementsString(root *schemas.ElementNode, includeAttributes ...string) string {
	var lines []string
	walkPreOrder(root, func(n schemas.Node) bool {
		switch n.Kind {
		case schemas.NodeKindElement:
			el := n.Element
			if el.HighlightIndex == nil {
				return true
			}
			lines = append(lines, fmt.Sprintf("[%d]<%s%s>%s</%s>",
				*el.HighlightIndex, el.TagName, formatAttributes(el.Attributes, includeAttributes),
				textUntilNextIndexed(el), el.TagName))
		case schemas.NodeKindText:
			if n.Text.IsVisible && !hasIndexedAncestor(n.Text.Parent) {
				if text := strings.TrimSpace(n.Text.Text); text != "" {
					lines = append(lines, "_[:]"+text)
				}
			}
		}
		return true
	})
	return strings.Join(lines, "\n")
}

func formatAttributes(attrs schemas.Attributes, include []string) string {
	if len(include) == 0 {
		return ""
	}
	var b strings.Builder
	for _, key := range include {
		if val, ok := attrs.Get(key); ok {
			fmt.Fprintf(&b, " %s=%q", key, val)
		}
	}
	return b.String()
}

// textUntilNextIndexed joins the visible text below el, not descending into nested indexed
// elements since those get their own line.
func textUntilNextIndexed(el *schemas.ElementNode) string {
	var parts []string
	stack := []schemas.Node{}
	for i := len(el.Children) - 1; i >= 0; i-- {
		stack = append(stack, el.Children[i])
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch n.Kind {
		case schemas.NodeKindElement:
			if n.Element.HighlightIndex != nil {
				continue
			}
			for i := len(n.Element.Children) - 1; i >= 0; i-- {
				stack = append(stack, n.Element.Children[i])
			}
		case schemas.NodeKindText:
			if !n.Text.IsVisible {
				continue
			}
			if text := strings.TrimSpace(n.Text.Text); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, " ")
}

func hasIndexedAncestor(el *schemas.ElementNode) bool {
	for p := el; p != nil; p = p.Parent {
		if p.HighlightIndex != nil {
			return true
		}
	}
	return false
}
