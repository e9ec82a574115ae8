// internal/browser/dom/interfaces.go
package dom

import (
	"context"
	"errors"

	"github.com/xkilldash9x/domscope/api/schemas"
)

// ErrFrameNotFound is returned by Page.Frame when no live frame matches the requested id,
// typically because the frame navigated away or was detached after extraction.
var ErrFrameNotFound = errors.New("frame not found")

// ScriptEvaluator runs the extraction script inside one execution context and returns the
// raw JSON value it produced.
type ScriptEvaluator interface {
	EvaluateExtraction(ctx context.Context, script string, params schemas.ExtractionParams) ([]byte, error)
}

// Page is the live page a Service is bound to. Evaluating on the Page itself targets the main
// document; Frame resolves the execution context of a single frame.
type Page interface {
	ScriptEvaluator
	Frame(ctx context.Context, frameID string) (ScriptEvaluator, error)
}
