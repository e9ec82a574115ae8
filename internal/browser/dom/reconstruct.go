// internal/browser/dom/reconstruct.go
package dom

import (
	"fmt"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/domscope/api/schemas"
)

// DefaultMaxTreeDepth bounds how deep a raw tree may nest before reconstruction refuses it.
// Real pages rarely exceed a few hundred levels.
const DefaultMaxTreeDepth = 2048

// ParseNode converts a raw record, and recursively its children, into a typed node whose
// Parent is set to parent. A null record yields (nil, nil) and must be skipped by the caller.
// Missing required fields produce a *ParseError.
func ParseNode(rec *Record, parent *schemas.ElementNode) (*schemas.Node, error) {
	return parseNode(rec, parent, "root")
}

// ParseRoot reconstructs a top-level record, which must be an element.
func ParseRoot(rec *Record) (*schemas.ElementNode, error) {
	node, err := ParseNode(rec, nil)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, &ParseError{Path: "root", Reason: "extraction returned no node", Record: rec.summary()}
	}
	switch node.Kind {
	case schemas.NodeKindElement:
		return node.Element, nil
	case schemas.NodeKindText:
		return nil, &ParseError{Path: "root", Reason: "top-level record is a text node, expected an element", Record: rec.summary()}
	default:
		return nil, &ParseError{Path: "root", Reason: fmt.Sprintf("unexpected node kind %s", node.Kind)}
	}
}

func parseNode(rec *Record, parent *schemas.ElementNode, path string) (*schemas.Node, error) {
	if rec.isNull() {
		return nil, nil
	}
	if rec.invalid != "" {
		return nil, &ParseError{Path: path, Field: rec.invalidField, Reason: rec.invalid, Record: rec.summary()}
	}

	if rec.IsText() {
		if rec.Text == nil {
			return nil, &ParseError{Path: path, Field: "text", Reason: "text node is missing a required field", Record: rec.summary()}
		}
		if rec.IsVisible == nil {
			return nil, &ParseError{Path: path, Field: "isVisible", Reason: "text node is missing a required field", Record: rec.summary()}
		}
		n := schemas.NodeFromText(&schemas.TextNode{
			Text:      *rec.Text,
			IsVisible: *rec.IsVisible,
			Parent:    parent,
		})
		return &n, nil
	}

	el, err := newElement(rec, parent, path)
	if err != nil {
		return nil, err
	}

	// Each child sees el as its parent before its own subtree is built.
	el.Children = make([]schemas.Node, 0, len(rec.Children))
	for i, childRec := range rec.Children {
		if childRec == nil {
			continue
		}
		child, err := parseNode(childRec, el, fmt.Sprintf("%s.children[%d]", path, i))
		if err != nil {
			return nil, err
		}
		if child != nil {
			el.Children = append(el.Children, *child)
		}
	}

	n := schemas.NodeFromElement(el)
	return &n, nil
}

func newElement(rec *Record, parent *schemas.ElementNode, path string) (*schemas.ElementNode, error) {
	if rec.TagName == nil {
		return nil, &ParseError{Path: path, Field: "tagName", Reason: "element is missing a required field", Record: rec.summary()}
	}
	if rec.XPath == nil {
		return nil, &ParseError{Path: path, Field: "xpath", Reason: "element is missing a required field", Record: rec.summary()}
	}

	el := &schemas.ElementNode{
		TagName:             *rec.TagName,
		XPath:               *rec.XPath,
		Attributes:          rec.Attributes,
		IsVisible:           rec.IsVisible != nil && *rec.IsVisible,
		IsInteractive:       rec.IsInteractive,
		IsTopElement:        rec.IsTopElement,
		HighlightIndex:      rec.HighlightIndex,
		HasShadowRoot:       rec.ShadowRoot,
		IsCrossOriginIframe: rec.CrossOriginIframe,
		FrameID:             rec.FrameID,
		Parent:              parent,
	}

	var err error
	if rec.ViewportCoordinates != nil {
		if el.ViewportCoordinates, err = decodeCoordinateSet(rec.ViewportCoordinates, path, "viewportCoordinates"); err != nil {
			return nil, err
		}
	}
	if rec.PageCoordinates != nil {
		if el.PageCoordinates, err = decodeCoordinateSet(rec.PageCoordinates, path, "pageCoordinates"); err != nil {
			return nil, err
		}
	}
	if rec.Viewport != nil {
		if el.ViewportInfo, err = decodeViewportInfo(rec.Viewport, path); err != nil {
			return nil, err
		}
	}
	return el, nil
}

// -- Geometry decoding --

type rawPoint struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

type rawCoordinateSet struct {
	TopLeft     *rawPoint `json:"topLeft"`
	TopRight    *rawPoint `json:"topRight"`
	BottomLeft  *rawPoint `json:"bottomLeft"`
	BottomRight *rawPoint `json:"bottomRight"`
	Center      *rawPoint `json:"center"`
	Width       *float64  `json:"width"`
	Height      *float64  `json:"height"`
}

type rawViewport struct {
	ScrollX *float64 `json:"scrollX"`
	ScrollY *float64 `json:"scrollY"`
	Width   *float64 `json:"width"`
	Height  *float64 `json:"height"`
}

// decodeCoordinateSet copies the payload field by field; every point and both dimensions
// must be present.
func decodeCoordinateSet(data []byte, path, key string) (*schemas.CoordinateSet, error) {
	var raw rawCoordinateSet
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{Path: path, Field: key, Reason: fmt.Sprintf("malformed coordinate set: %v", err)}
	}

	points := []struct {
		name string
		p    *rawPoint
	}{
		{"topLeft", raw.TopLeft},
		{"topRight", raw.TopRight},
		{"bottomLeft", raw.BottomLeft},
		{"bottomRight", raw.BottomRight},
		{"center", raw.Center},
	}
	out := make([]schemas.Coordinates, 0, len(points))
	for _, pt := range points {
		if pt.p == nil || pt.p.X == nil || pt.p.Y == nil {
			return nil, &ParseError{Path: path, Field: key + "." + pt.name, Reason: "coordinate point is missing or incomplete"}
		}
		out = append(out, schemas.Coordinates{X: *pt.p.X, Y: *pt.p.Y})
	}
	if raw.Width == nil {
		return nil, &ParseError{Path: path, Field: key + ".width", Reason: "coordinate set is missing a dimension"}
	}
	if raw.Height == nil {
		return nil, &ParseError{Path: path, Field: key + ".height", Reason: "coordinate set is missing a dimension"}
	}

	return &schemas.CoordinateSet{
		TopLeft:     out[0],
		TopRight:    out[1],
		BottomLeft:  out[2],
		BottomRight: out[3],
		Center:      out[4],
		Width:       *raw.Width,
		Height:      *raw.Height,
	}, nil
}

func decodeViewportInfo(data []byte, path string) (*schemas.ViewportInfo, error) {
	var raw rawViewport
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{Path: path, Field: "viewport", Reason: fmt.Sprintf("malformed viewport: %v", err)}
	}
	fields := []struct {
		name string
		v    *float64
	}{
		{"scrollX", raw.ScrollX},
		{"scrollY", raw.ScrollY},
		{"width", raw.Width},
		{"height", raw.Height},
	}
	for _, f := range fields {
		if f.v == nil {
			return nil, &ParseError{Path: path, Field: "viewport." + f.name, Reason: "viewport info is missing a field"}
		}
	}
	return &schemas.ViewportInfo{
		ScrollX: *raw.ScrollX,
		ScrollY: *raw.ScrollY,
		Width:   *raw.Width,
		Height:  *raw.Height,
	}, nil
}
