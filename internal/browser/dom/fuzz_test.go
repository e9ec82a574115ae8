// internal/browser/dom/fuzz_test.go
package dom

import (
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"

	"github.com/xkilldash9x/domscope/api/schemas"
)

// FuzzDecodeRecord feeds arbitrary bytes through the decoder and reconstructor. The goal is
// survival: every input either yields a tree or a *ParseError.
func FuzzDecodeRecord(f *testing.F) {
	seeds := []string{
		`null`,
		`{}`,
		`{"tagName":"body","xpath":"/body","children":[null,{"type":"TEXT_NODE","text":"a","isVisible":true}]}`,
		`{"tagName":"a","xpath":"/a","highlightIndex":"x","attributes":{"k":[1]}}`,
		`{"tagName":"a","xpath":"/a","viewportCoordinates":{"topLeft":{"x":1}}}`,
		`{"type":"TEXT_NODE"}`,
		`[{"tagName":"a"}]`,
		`0`,
		`"text"`,
		`{"tagName":"a","xpath":"/a","highlightIndex":1.7}`,
		`{"tagName":"plaintext","xpath":"/plaintext","children":[{"type":"TEXT_NODE","text":"<p>","isVisible":true}]}`,
	}
	for _, s := range seeds {
		f.Add([]byte(s))
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		rec, err := DecodeRecord(data, 64)
		if err != nil {
			return
		}
		root, err := ParseRoot(rec)
		if err != nil {
			return
		}
		_ = BuildSelectorMap(root)
		_ = findCrossOriginIframes(root)
		_ = ClickableElementsString(root)
		if _, err := RenderHTML(root); err != nil {
			t.Fatalf("rendering a reconstructed tree failed: %v", err)
		}
	})
}

// fuzzNode is a flattened tree node; Parent indexes an earlier element in the list.
type fuzzNode struct {
	Parent   uint8
	IsText   bool
	Visible  bool
	Indexed  bool
	TagName  string
	Text     string
	NullNode bool
}

// FuzzReconstruct_Structured builds well-formed raw trees from structured fuzz input and checks
// the reconstruction invariants on each.
func FuzzReconstruct_Structured(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0x01, 0x00, 0x00, 0x01, 0x01, 0x00, 0x00, 0x00, 0x01, 'a'})
	f.Add([]byte{0x04, 0x00, 0x01, 0x01, 0x00, 0x02, 'h', 'i', 0x01, 0x00, 0x00, 0x01, 0x03, 'd', 'i', 'v'})
	f.Add([]byte("\x08\x00\x00\x00\x01\x00\x01p\x00\x00\x00\x01\x01\x01\x00\x01\x00\x01\x01"))
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		var nodes []fuzzNode
		if err := consumer.CreateSlice(&nodes); err != nil {
			return
		}
		if len(nodes) > 256 {
			nodes = nodes[:256]
		}

		rootRaw := element("body", "/body")
		elements := []raw{rootRaw}
		nextIndex := 0
		wantIndexed := 0
		for i, n := range nodes {
			parent := elements[int(n.Parent)%len(elements)]
			children := parent["children"].([]interface{})
			switch {
			case n.NullNode:
				children = append(children, nil)
			case n.IsText:
				children = append(children, text(n.Text, n.Visible))
			default:
				el := element("x-"+n.TagName, "/node["+string(rune('a'+i%26))+"]")
				if n.Indexed {
					el = el.with("highlightIndex", nextIndex)
					nextIndex++
					wantIndexed++
				}
				children = append(children, el)
				elements = append(elements, el)
			}
			parent["children"] = children
		}

		rec, err := DecodeRecord(mustJSON(t, rootRaw), 0)
		if err != nil {
			t.Fatalf("well-formed input rejected: %v", err)
		}
		root, err := ParseRoot(rec)
		if err != nil {
			t.Fatalf("well-formed input failed to reconstruct: %v", err)
		}

		assertParentLinks(t, root)
		if got := len(BuildSelectorMap(root)); got != wantIndexed {
			t.Fatalf("selector map has %d entries, want %d", got, wantIndexed)
		}
		walkPreOrder(root, func(n schemas.Node) bool {
			if n.Kind == schemas.NodeKindElement && n.Element.IsCrossOriginIframe {
				t.Fatalf("unexpected cross-origin iframe")
			}
			return true
		})
	})
}
