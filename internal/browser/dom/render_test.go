// internal/browser/dom/render_test.go
package dom

import (
	"strings"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/domscope/api/schemas"
)

func sampleTree(t *testing.T) *schemas.ElementNode {
	return mustParseRoot(t, element("body", "/body",
		text("Sign in below", true),
		element("form", "/body/form",
			element("input", "/body/form/input").
				with("attributes", raw{"type": "email", "name": "email", "placeholder": "you@example.com"}).
				with("highlightIndex", 0),
			element("button", "/body/form/button",
				element("span", "/body/form/button/span", text("Continue", true)),
				text("hidden", false),
			).with("highlightIndex", 1),
		),
		element("a", "/body/a", text("Help", true),
			element("b", "/body/a/b", text("nested", true)).with("highlightIndex", 3),
		).with("highlightIndex", 2),
	))
}

func TestRenderJSON(t *testing.T) {
	root := sampleTree(t)
	snapshot := &schemas.Snapshot{ID: "snap-1", Root: root, SelectorMap: BuildSelectorMap(root)}

	out, err := RenderJSON(snapshot, true)
	require.NoError(t, err)

	var decoded struct {
		ID          string            `json:"id"`
		Root        map[string]any    `json:"root"`
		SelectorMap map[string]string `json:"selectorMap"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "snap-1", decoded.ID)
	assert.Equal(t, "body", decoded.Root["tagName"])
	assert.Equal(t, "ELEMENT_NODE", decoded.Root["type"])
	assert.Len(t, decoded.Root["children"], 3)
	assert.Equal(t, map[string]string{
		"0": "/body/form/input",
		"1": "/body/form/button",
		"2": "/body/a",
		"3": "/body/a/b",
	}, decoded.SelectorMap)

	// The encoded tree decodes back into an equivalent tree.
	var wrapper struct {
		Root json.RawMessage `json:"root"`
	}
	require.NoError(t, json.Unmarshal(out, &wrapper))
	rec, err := DecodeRecord(wrapper.Root, 0)
	require.NoError(t, err)
	again, err := ParseRoot(rec)
	require.NoError(t, err)
	assert.Equal(t, ClickableElementsString(root), ClickableElementsString(again))

	_, err = RenderJSON(nil, false)
	assert.Error(t, err)
}

func TestRenderHTML(t *testing.T) {
	out, err := RenderHTML(sampleTree(t))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "<body>"))
	assert.Contains(t, out, `<input name="email" placeholder="you@example.com" type="email" data-highlight-index="0"/>`)
	assert.Contains(t, out, `<button data-highlight-index="1"><span>Continue</span></button>`)
	assert.NotContains(t, out, "hidden", "invisible text is not rendered")

	// The output is well formed enough to parse back.
	doc, err := html.Parse(strings.NewReader(out))
	require.NoError(t, err)
	require.NotNil(t, doc)

	_, err = RenderHTML(nil)
	assert.Error(t, err)
}

func TestRenderHTML_VoidElementWithChildren(t *testing.T) {
	root := mustParseRoot(t, element("div", "/div",
		element("img", "/div/img", text("alt text", true)),
	))
	out, err := RenderHTML(root)
	require.NoError(t, err)
	assert.Equal(t, "<div><img/></div>", out)
}

func TestRenderHTML_PlaintextKeepsLaterSiblings(t *testing.T) {
	root := mustParseRoot(t, element("body", "/body",
		element("PLAINTEXT", "/body/plaintext", text("<b>x", true)).with("highlightIndex", 0),
		element("p", "/body/p", text("after", true)),
	))
	out, err := RenderHTML(root)
	require.NoError(t, err)
	assert.Equal(t, `<body><pre data-highlight-index="0">&lt;b&gt;x</pre><p>after</p></body>`, out)
}

func TestClickableElementsString(t *testing.T) {
	root := sampleTree(t)

	got := ClickableElementsString(root)
	want := strings.Join([]string{
		"_[:]Sign in below",
		"[0]<input></input>",
		"[1]<button>Continue</button>",
		"[2]<a>Help</a>",
		"[3]<b>nested</b>",
	}, "\n")
	assert.Equal(t, want, got)

	withAttrs := ClickableElementsString(root, "type", "placeholder", "missing")
	assert.Contains(t, withAttrs, `[0]<input type="email" placeholder="you@example.com"></input>`)
}
