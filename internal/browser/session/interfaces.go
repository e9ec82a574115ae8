// internal/browser/session/interfaces.go
package session

import (
	"context"

	"github.com/chromedp/chromedp"
)

// ActionExecutor runs chromedp actions against one target. The implementation combines the
// operational ctx with its own long lived target context so the actions can reach CDP.
type ActionExecutor interface {
	RunActions(ctx context.Context, actions ...chromedp.Action) error
}
