// internal/browser/session/cdp_executor_test.go
package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/domscope/api/schemas"
)

func TestCDPEvaluator_EvaluateParams(t *testing.T) {
	e := &cdpEvaluator{}
	p := e.evaluateParams(runtime.Evaluate("1"))
	assert.True(t, p.ReturnByValue)
	assert.True(t, p.AwaitPromise)
	assert.True(t, p.Silent)
	assert.Zero(t, p.ContextID)

	e.contextID = 42
	p = e.evaluateParams(runtime.Evaluate("1"))
	assert.Equal(t, runtime.ExecutionContextID(42), p.ContextID)
}

func TestCDPEvaluator_EvaluateExtraction(t *testing.T) {
	params := schemas.DefaultExtractionParams()

	t.Run("RunsOneAction", func(t *testing.T) {
		var calls int
		e := &cdpEvaluator{
			logger: zaptest.NewLogger(t),
			runActionsFunc: func(ctx context.Context, actions ...chromedp.Action) error {
				calls++
				assert.Len(t, actions, 1)
				return nil
			},
		}
		// The fake never fills the result, which reads as an undefined return value.
		raw, err := e.EvaluateExtraction(context.Background(), "() => undefined", params)
		require.NoError(t, err)
		assert.Equal(t, "null", string(raw))
		assert.Equal(t, 1, calls)
	})

	t.Run("EvaluationError", func(t *testing.T) {
		boom := errors.New("exception thrown")
		e := &cdpEvaluator{
			logger: zaptest.NewLogger(t),
			runActionsFunc: func(ctx context.Context, actions ...chromedp.Action) error {
				return boom
			},
		}
		_, err := e.EvaluateExtraction(context.Background(), "() => { throw 1 }", params)
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "failed to evaluate extraction script")
	})

	t.Run("Timeout", func(t *testing.T) {
		e := &cdpEvaluator{
			logger:  zaptest.NewLogger(t),
			timeout: 10 * time.Millisecond,
			runActionsFunc: func(ctx context.Context, actions ...chromedp.Action) error {
				<-ctx.Done()
				return ctx.Err()
			},
		}
		_, err := e.EvaluateExtraction(context.Background(), "() => new Promise(() => {})", params)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Contains(t, err.Error(), "timed out")
	})

	t.Run("CallerCanceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		e := &cdpEvaluator{
			logger:  zaptest.NewLogger(t),
			timeout: time.Minute,
			runActionsFunc: func(ctx context.Context, actions ...chromedp.Action) error {
				return ctx.Err()
			},
		}
		_, err := e.EvaluateExtraction(ctx, "() => null", params)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Contains(t, err.Error(), "context error")
	})
}
