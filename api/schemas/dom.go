package schemas

import (
	"fmt"
	"sort"

	json "github.com/json-iterator/go"
)

// -- Extraction Parameters --

// ExtractionParams is the parameter record handed to the in-page extraction script.
// The same record is passed unchanged to every execution context touched by one request.
type ExtractionParams struct {
	DoHighlightElements bool `json:"doHighlightElements"`
	// FocusHighlightIndex of -1 means no element is focused.
	FocusHighlightIndex int `json:"focusHighlightIndex"`
	// ViewportExpansion is in pixels; 0 means no expansion.
	ViewportExpansion int `json:"viewportExpansion"`
}

// DefaultExtractionParams mirrors the defaults an agent gets when it does not specify anything.
func DefaultExtractionParams() ExtractionParams {
	return ExtractionParams{
		DoHighlightElements: true,
		FocusHighlightIndex: -1,
		ViewportExpansion:   0,
	}
}

// -- Geometry --

// Coordinates is a single 2D point as reported by the extraction script.
type Coordinates struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CoordinateSet describes an element's box. An element may carry two independent sets,
// one relative to the viewport and one relative to the full page.
type CoordinateSet struct {
	TopLeft     Coordinates `json:"topLeft"`
	TopRight    Coordinates `json:"topRight"`
	BottomLeft  Coordinates `json:"bottomLeft"`
	BottomRight Coordinates `json:"bottomRight"`
	Center      Coordinates `json:"center"`
	Width       float64     `json:"width"`
	Height      float64     `json:"height"`
}

// ViewportInfo is the scroll and viewport state at extraction time.
type ViewportInfo struct {
	ScrollX float64 `json:"scrollX"`
	ScrollY float64 `json:"scrollY"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// -- DOM Tree --

// NodeKind discriminates the Node sum type.
type NodeKind int

const (
	NodeKindElement NodeKind = iota + 1
	NodeKindText
)

func (k NodeKind) String() string {
	switch k {
	case NodeKindElement:
		return "element"
	case NodeKindText:
		return "text"
	default:
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
}

// Wire values of the "type" key in extraction records.
const (
	WireTypeText    = "TEXT_NODE"
	WireTypeElement = "ELEMENT_NODE"
)

// Node is either an element or a text node. Exactly one of Element or Text is set and
// it always agrees with Kind.
type Node struct {
	Kind    NodeKind
	Element *ElementNode
	Text    *TextNode
}

// NodeFromElement wraps an element as a Node.
func NodeFromElement(e *ElementNode) Node {
	return Node{Kind: NodeKindElement, Element: e}
}

// NodeFromText wraps a text node as a Node.
func NodeFromText(t *TextNode) Node {
	return Node{Kind: NodeKindText, Text: t}
}

// Parent returns the non-owning back-reference of the wrapped node.
func (n Node) Parent() *ElementNode {
	switch n.Kind {
	case NodeKindElement:
		return n.Element.Parent
	case NodeKindText:
		return n.Text.Parent
	default:
		return nil
	}
}

// MarshalJSON encodes the node in the same shape the extraction script produces.
func (n Node) MarshalJSON() ([]byte, error) {
	switch n.Kind {
	case NodeKindElement:
		return n.Element.MarshalJSON()
	case NodeKindText:
		return n.Text.MarshalJSON()
	default:
		return nil, fmt.Errorf("cannot marshal node of unknown kind %s", n.Kind)
	}
}

// TextNode is a run of text inside an element.
type TextNode struct {
	Text      string
	IsVisible bool
	// Parent is a non-owning back-reference.
	Parent *ElementNode
}

type wireText struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	IsVisible bool   `json:"isVisible"`
}

func (t *TextNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireText{Type: WireTypeText, Text: t.Text, IsVisible: t.IsVisible})
}

// ElementNode is a reconstructed DOM element. It owns its Children.
type ElementNode struct {
	TagName    string
	XPath      string
	Attributes Attributes
	Children   []Node

	IsVisible     bool
	IsInteractive bool
	IsTopElement  bool
	// HighlightIndex is unique across a finished tree when set.
	HighlightIndex      *int
	HasShadowRoot       bool
	IsCrossOriginIframe bool
	// FrameID identifies the live browser frame an iframe element maps to.
	FrameID *string

	// Parent is a non-owning back-reference.
	Parent *ElementNode

	ViewportCoordinates *CoordinateSet
	PageCoordinates     *CoordinateSet
	ViewportInfo        *ViewportInfo
}

type wireElement struct {
	Type                string         `json:"type"`
	TagName             string         `json:"tagName"`
	XPath               string         `json:"xpath"`
	Attributes          Attributes     `json:"attributes"`
	IsVisible           bool           `json:"isVisible"`
	IsInteractive       bool           `json:"isInteractive"`
	IsTopElement        bool           `json:"isTopElement"`
	HighlightIndex      *int           `json:"highlightIndex,omitempty"`
	ShadowRoot          bool           `json:"shadowRoot"`
	CrossOriginIframe   bool           `json:"crossOriginIframe"`
	FrameID             *string        `json:"id,omitempty"`
	ViewportCoordinates *CoordinateSet `json:"viewportCoordinates,omitempty"`
	PageCoordinates     *CoordinateSet `json:"pageCoordinates,omitempty"`
	Viewport            *ViewportInfo  `json:"viewport,omitempty"`
	Children            []Node         `json:"children"`
}

func (e *ElementNode) MarshalJSON() ([]byte, error) {
	children := e.Children
	if children == nil {
		children = []Node{}
	}
	return json.Marshal(wireElement{
		Type:                WireTypeElement,
		TagName:             e.TagName,
		XPath:               e.XPath,
		Attributes:          e.Attributes,
		IsVisible:           e.IsVisible,
		IsInteractive:       e.IsInteractive,
		IsTopElement:        e.IsTopElement,
		HighlightIndex:      e.HighlightIndex,
		ShadowRoot:          e.HasShadowRoot,
		CrossOriginIframe:   e.IsCrossOriginIframe,
		FrameID:             e.FrameID,
		ViewportCoordinates: e.ViewportCoordinates,
		PageCoordinates:     e.PageCoordinates,
		Viewport:            e.ViewportInfo,
		Children:            children,
	})
}

// FrameIDValue returns the frame id or "" when the element has none.
func (e *ElementNode) FrameIDValue() string {
	if e.FrameID == nil {
		return ""
	}
	return *e.FrameID
}

// -- Attributes --

// Attributes is a string map that remembers insertion order, so attributes come back out in
// the order the page declared them.
type Attributes struct {
	keys   []string
	values map[string]string
}

// NewAttributes builds Attributes from alternating key/value pairs.
func NewAttributes(kv ...string) Attributes {
	var a Attributes
	for i := 0; i+1 < len(kv); i += 2 {
		a.Set(kv[i], kv[i+1])
	}
	return a
}

// Set adds or overwrites a key. Overwriting keeps the original position.
func (a *Attributes) Set(key, value string) {
	if a.values == nil {
		a.values = make(map[string]string)
	}
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
}

// Get returns the value for key.
func (a Attributes) Get(key string) (string, bool) {
	v, ok := a.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (a Attributes) Keys() []string {
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

// Len reports the number of attributes.
func (a Attributes) Len() int { return len(a.keys) }

func (a Attributes) MarshalJSON() ([]byte, error) {
	stream := json.ConfigCompatibleWithStandardLibrary.BorrowStream(nil)
	defer json.ConfigCompatibleWithStandardLibrary.ReturnStream(stream)

	stream.WriteObjectStart()
	for i, k := range a.keys {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteObjectField(k)
		stream.WriteString(a.values[k])
	}
	stream.WriteObjectEnd()
	if stream.Error != nil {
		return nil, stream.Error
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

func (a *Attributes) UnmarshalJSON(data []byte) error {
	*a = Attributes{}
	iter := json.ConfigCompatibleWithStandardLibrary.BorrowIterator(data)
	defer json.ConfigCompatibleWithStandardLibrary.ReturnIterator(iter)

	if iter.WhatIsNext() == json.NilValue {
		iter.ReadNil()
		return nil
	}
	iter.ReadMapCB(func(it *json.Iterator, key string) bool {
		switch it.WhatIsNext() {
		case json.StringValue:
			a.Set(key, it.ReadString())
		case json.NilValue:
			it.ReadNil()
			a.Set(key, "")
		default:
			// Scripts occasionally hand back numbers or booleans for attribute values.
			a.Set(key, it.ReadAny().ToString())
		}
		return true
	})
	if iter.Error != nil {
		return fmt.Errorf("decoding attributes: %w", iter.Error)
	}
	return nil
}

// -- Selector Map & Snapshot --

// SelectorMap resolves a highlight index to the element carrying it. It does not own the nodes.
type SelectorMap map[int]*ElementNode

// Indices returns the map keys in ascending order.
func (m SelectorMap) Indices() []int {
	out := make([]int, 0, len(m))
	for idx := range m {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// MarshalJSON encodes the map as index -> xpath to avoid re-serializing subtrees.
func (m SelectorMap) MarshalJSON() ([]byte, error) {
	out := make(map[int]string, len(m))
	for idx, el := range m {
		out[idx] = el.XPath
	}
	return json.Marshal(out)
}

// Snapshot is the result of one extraction, reconstruction and iframe resolution cycle.
type Snapshot struct {
	ID          string       `json:"id"`
	Root        *ElementNode `json:"root"`
	SelectorMap SelectorMap  `json:"selectorMap"`
}
