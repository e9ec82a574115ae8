// internal/browser/dom/record.go
package dom

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/domscope/api/schemas"
)

// ErrSnapshotParse is the sentinel wrapped by every ParseError.
var ErrSnapshotParse = errors.New("snapshot parse error")

// ParseError reports a raw extraction record that cannot be turned into a node.
// It is always fatal for the snapshot being built.
type ParseError struct {
	// Path locates the record inside the raw tree, e.g. "root.children[2]".
	Path string
	// Field is the missing or malformed key, if the failure is tied to one.
	Field string
	// Reason is a short human readable description.
	Reason string
	// Record summarizes the offending record.
	Record string
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("snapshot parse error at ")
	b.WriteString(e.Path)
	if e.Field != "" {
		fmt.Fprintf(&b, " (field %q)", e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Record != "" {
		fmt.Fprintf(&b, " [record: %s]", e.Record)
	}
	return b.String()
}

func (e *ParseError) Unwrap() error { return ErrSnapshotParse }

// Record is one raw node as emitted by the extraction script. Pointer fields are nil when the
// key was absent; coordinate payloads are kept raw and decoded only when present.
type Record struct {
	Type      string
	Text      *string
	IsVisible *bool
	TagName   *string
	XPath     *string

	Attributes        schemas.Attributes
	IsInteractive     bool
	IsTopElement      bool
	HighlightIndex    *int
	ShadowRoot        bool
	CrossOriginIframe bool
	FrameID           *string

	ViewportCoordinates []byte
	PageCoordinates     []byte
	Viewport            []byte

	// Children keeps nil entries for null children so callers see the raw list length.
	Children []*Record

	keys    int
	invalid string
	// invalidField names the key invalid refers to, if any.
	invalidField string
}

// IsText reports whether the record is tagged as a text node.
func (r *Record) IsText() bool { return r.Type == schemas.WireTypeText }

// isNull mirrors the script contract where both null and an empty object mean "no node".
func (r *Record) isNull() bool { return r == nil || (r.keys == 0 && r.invalid == "") }

func (r *Record) summary() string {
	if r == nil {
		return "null"
	}
	var parts []string
	if r.Type != "" {
		parts = append(parts, fmt.Sprintf("type=%q", r.Type))
	}
	if r.TagName != nil {
		parts = append(parts, fmt.Sprintf("tagName=%q", *r.TagName))
	}
	if r.XPath != nil {
		parts = append(parts, fmt.Sprintf("xpath=%q", *r.XPath))
	}
	if r.Text != nil {
		parts = append(parts, fmt.Sprintf("text=%q", truncate(*r.Text, 64)))
	}
	parts = append(parts, fmt.Sprintf("keys=%d", r.keys), fmt.Sprintf("children=%d", len(r.Children)))
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// DecodeRecord parses the JSON returned by one extraction call. A JSON null yields a nil
// record. Records nested deeper than maxDepth are rejected.
func DecodeRecord(data []byte, maxDepth int) (*Record, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxTreeDepth
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ParseError{Path: "root", Reason: "extraction result is empty"}
	}
	// The iterator reports a truncated object or array as io.EOF, which is indistinguishable
	// from the normal end of a top-level scalar, so containers are checked up front. Scalars
	// go through read, which reports them as not being an object.
	if isContainer(data) && !json.ConfigCompatibleWithStandardLibrary.Valid(data) {
		return nil, &ParseError{Path: "root", Reason: "extraction result is not valid JSON", Record: truncate(string(data), 64)}
	}

	iter := json.ConfigCompatibleWithStandardLibrary.BorrowIterator(data)
	defer json.ConfigCompatibleWithStandardLibrary.ReturnIterator(iter)

	d := &recordDecoder{maxDepth: maxDepth}
	var rec *Record
	switch iter.WhatIsNext() {
	case json.NilValue:
		iter.ReadNil()
	case json.InvalidValue:
		return nil, &ParseError{Path: "root", Reason: "extraction result is not JSON"}
	default:
		rec = d.read(iter, 0)
	}
	if iter.Error != nil && !errors.Is(iter.Error, io.EOF) {
		return nil, &ParseError{Path: "root", Reason: fmt.Sprintf("invalid extraction JSON: %v", iter.Error)}
	}
	if d.err != nil {
		return nil, d.err
	}
	return rec, nil
}

type recordDecoder struct {
	maxDepth int
	err      *ParseError
}

func (d *recordDecoder) read(it *json.Iterator, depth int) *Record {
	rec := &Record{}
	if it.WhatIsNext() != json.ObjectValue {
		rec.invalid = fmt.Sprintf("record is a JSON %s, not an object", valueTypeName(it.WhatIsNext()))
		it.Skip()
		return rec
	}
	if depth > d.maxDepth {
		if d.err == nil {
			d.err = &ParseError{
				Path:   fmt.Sprintf("depth %d", depth),
				Reason: fmt.Sprintf("raw tree exceeds the supported depth of %d", d.maxDepth),
			}
		}
		it.Skip()
		return rec
	}

	it.ReadMapCB(func(it *json.Iterator, key string) bool {
		rec.keys++
		switch key {
		case "type":
			rec.Type = readString(it)
		case "text":
			rec.Text = ptr(readString(it))
		case "isVisible":
			rec.IsVisible = ptr(readBool(it))
		case "tagName":
			rec.TagName = ptr(readString(it))
		case "xpath":
			rec.XPath = ptr(readString(it))
		case "attributes":
			if err := rec.Attributes.UnmarshalJSON(it.SkipAndReturnBytes()); err != nil {
				rec.invalid, rec.invalidField = err.Error(), "attributes"
			}
		case "isInteractive":
			rec.IsInteractive = readBool(it)
		case "isTopElement":
			rec.IsTopElement = readBool(it)
		case "highlightIndex":
			idx, ok := readOptionalInt(it)
			if !ok {
				rec.invalid, rec.invalidField = "highlight index is not an integer", "highlightIndex"
			}
			rec.HighlightIndex = idx
		case "shadowRoot":
			rec.ShadowRoot = readBool(it)
		case "crossOriginIframe":
			rec.CrossOriginIframe = readBool(it)
		case "id":
			if it.WhatIsNext() == json.NilValue {
				it.ReadNil()
			} else {
				rec.FrameID = ptr(readString(it))
			}
		case "viewportCoordinates":
			rec.ViewportCoordinates = copyBytes(it.SkipAndReturnBytes())
		case "pageCoordinates":
			rec.PageCoordinates = copyBytes(it.SkipAndReturnBytes())
		case "viewport":
			rec.Viewport = copyBytes(it.SkipAndReturnBytes())
		case "children":
			rec.Children = d.readChildren(it, depth)
		default:
			it.Skip()
		}
		return true
	})
	return rec
}

func (d *recordDecoder) readChildren(it *json.Iterator, depth int) []*Record {
	if it.WhatIsNext() != json.ArrayValue {
		it.Skip()
		return nil
	}
	children := []*Record{}
	it.ReadArrayCB(func(it *json.Iterator) bool {
		if it.WhatIsNext() == json.NilValue {
			it.ReadNil()
			children = append(children, nil)
			return true
		}
		children = append(children, d.read(it, depth+1))
		return true
	})
	return children
}

func readString(it *json.Iterator) string {
	switch it.WhatIsNext() {
	case json.StringValue:
		return it.ReadString()
	case json.NilValue:
		it.ReadNil()
		return ""
	default:
		return it.ReadAny().ToString()
	}
}

func readBool(it *json.Iterator) bool {
	switch it.WhatIsNext() {
	case json.BoolValue:
		return it.ReadBool()
	case json.NilValue:
		it.ReadNil()
		return false
	default:
		return it.ReadAny().ToBool()
	}
}

// readOptionalInt reads an optional integer. Non-numbers read as absent; a number with a
// fractional part, or one outside the int range, reports ok=false.
func readOptionalInt(it *json.Iterator) (v *int, ok bool) {
	switch it.WhatIsNext() {
	case json.NilValue:
		it.ReadNil()
		return nil, true
	case json.NumberValue:
		f := it.ReadFloat64()
		if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
			return nil, false
		}
		return ptr(int(f)), true
	default:
		it.Skip()
		return nil, true
	}
}

func isContainer(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// IsEmptyResult reports whether an extraction result is a falsy scalar or an empty array:
// false, 0, "" or []. Frames that return one of these contribute nothing.
func IsEmptyResult(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0:
		return false
	case string(trimmed) == "false", string(trimmed) == `""`:
		return true
	case trimmed[0] == '[':
		inner := bytes.TrimSpace(trimmed[1:])
		return len(inner) == 1 && inner[0] == ']'
	case trimmed[0] == '-' || (trimmed[0] >= '0' && trimmed[0] <= '9'):
		f, err := strconv.ParseFloat(string(trimmed), 64)
		return err == nil && f == 0
	default:
		return false
	}
}

func valueTypeName(t json.ValueType) string {
	switch t {
	case json.StringValue:
		return "string"
	case json.NumberValue:
		return "number"
	case json.BoolValue:
		return "boolean"
	case json.ArrayValue:
		return "array"
	case json.ObjectValue:
		return "object"
	case json.NilValue:
		return "null"
	default:
		return "invalid value"
	}
}

func copyBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}

func ptr[T any](v T) *T { return &v }
