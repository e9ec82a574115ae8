// internal/browser/session/cdp_executor.go
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/domscope/api/schemas"
	"github.com/xkilldash9x/domscope/internal/browser/dom"
)

// cdpEvaluator runs the extraction script in one execution context over CDP. It bridges the
// browser agnostic dom package with chromedp.
type cdpEvaluator struct {
	logger *zap.Logger
	// runActionsFunc points at the RunActions of the target that owns the context.
	runActionsFunc func(ctx context.Context, actions ...chromedp.Action) error
	// contextID selects an execution context, such as an isolated world inside a child
	// frame. Zero means the target's default context.
	contextID runtime.ExecutionContextID
	timeout   time.Duration
}

var _ dom.ScriptEvaluator = (*cdpEvaluator)(nil)

// evaluateParams configures runtime.Evaluate for a JSON result, awaiting a returned promise.
func (e *cdpEvaluator) evaluateParams(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	p = p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
	if e.contextID != 0 {
		p = p.WithContextID(e.contextID)
	}
	return p
}

// EvaluateExtraction calls the extraction function with params and returns its result as raw
// JSON. An undefined result is reported as null.
func (e *cdpEvaluator) EvaluateExtraction(ctx context.Context, script string, params schemas.ExtractionParams) ([]byte, error) {
	expression, err := dom.BuildInvocation(script, params)
	if err != nil {
		return nil, err
	}

	opCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var res []byte
	err = e.runActionsFunc(opCtx, chromedp.Evaluate(expression, &res, e.evaluateParams))
	if err != nil {
		if errors.Is(opCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			e.logger.Debug("Extraction script timed out.", zap.Duration("timeout", e.timeout))
			return nil, fmt.Errorf("extraction script timed out after %v: %w", e.timeout, opCtx.Err())
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("context error during extraction: %w", err)
		}
		return nil, fmt.Errorf("failed to evaluate extraction script: %w", err)
	}

	if len(res) == 0 {
		return []byte("null"), nil
	}
	return res, nil
}
