// internal/browser/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/domscope/api/schemas"
	"github.com/xkilldash9x/domscope/internal/browser/dom"
	"github.com/xkilldash9x/domscope/internal/config"
)

const (
	// isolatedWorldName names the world created inside in-process child frames so the
	// extraction script does not collide with page scripts.
	isolatedWorldName = "domscope"
	closeTimeout      = 5 * time.Second
)

// frameTarget is an attachment to an out-of-process iframe target.
type frameTarget struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Session is one Chrome tab driven over CDP. It is the live page a dom.Service extracts from.
type Session struct {
	id          string
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger
	browserCfg  config.BrowserConfig
	evalTimeout time.Duration

	mu           sync.Mutex
	frameTargets map[target.ID]*frameTarget
	closeOnce    sync.Once
}

var (
	_ dom.Page       = (*Session)(nil)
	_ ActionExecutor = (*Session)(nil)
)

// Launch starts a new Chrome instance according to cfg and opens a tab in it.
func Launch(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, ExecAllocatorOptions(cfg.Browser())...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Sugar().Debugf))

	s, err := NewSession(tabCtx, tabCancel, cfg, logger)
	if err != nil {
		tabCancel()
		allocCancel()
		return nil, err
	}
	s.allocCancel = allocCancel
	return s, nil
}

// NewSession wraps an existing chromedp tab context. The first action run on it starts the
// browser if it is not running yet, so NewSession does that eagerly to surface launch errors.
func NewSession(tabCtx context.Context, cancel context.CancelFunc, cfg config.Interface, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sessionID := uuid.NewString()
	s := &Session{
		id:           sessionID,
		ctx:          tabCtx,
		cancel:       cancel,
		logger:       logger.Named("session").With(zap.String("session_id", sessionID)),
		browserCfg:   cfg.Browser(),
		evalTimeout:  cfg.DOM().EvaluateTimeout,
		frameTargets: make(map[target.ID]*frameTarget),
	}

	var actions []chromedp.Action
	if w, h := viewportSize(s.browserCfg); w > 0 && h > 0 {
		actions = append(actions, chromedp.EmulateViewport(int64(w), int64(h)))
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return nil, fmt.Errorf("failed to start browser tab: %w", err)
	}

	s.logger.Debug("Browser session ready.")
	return s, nil
}

// ID returns the unique session identifier.
func (s *Session) ID() string {
	return s.id
}

// RunActions runs actions on the tab. ctx bounds the call; the tab context supplies the target.
func (s *Session) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads targetURL, waits for the body and then for the configured settle time.
func (s *Session) Navigate(ctx context.Context, targetURL string) error {
	navCtx := ctx
	if s.browserCfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, s.browserCfg.NavigationTimeout)
		defer cancel()
	}

	s.logger.Info("Navigating.", zap.String("url", targetURL))
	err := s.RunActions(navCtx,
		chromedp.Navigate(targetURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		if errors.Is(navCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("navigation to '%s' timed out after %v: %w", targetURL, s.browserCfg.NavigationTimeout, navCtx.Err())
		}
		return fmt.Errorf("failed to navigate to '%s': %w", targetURL, err)
	}

	if s.browserCfg.PostLoadWait > 0 {
		if err := s.RunActions(ctx, chromedp.Sleep(s.browserCfg.PostLoadWait)); err != nil {
			return fmt.Errorf("interrupted while waiting for the page to settle: %w", err)
		}
	}
	return nil
}

// EvaluateExtraction runs the extraction script in the main document.
func (s *Session) EvaluateExtraction(ctx context.Context, script string, params schemas.ExtractionParams) ([]byte, error) {
	return s.mainEvaluator().EvaluateExtraction(ctx, script, params)
}

func (s *Session) mainEvaluator() *cdpEvaluator {
	return &cdpEvaluator{
		logger:         s.logger.Named("cdp_evaluator"),
		runActionsFunc: s.RunActions,
		timeout:        s.evalTimeout,
	}
}

// Frame resolves the execution context of frameID. Out-of-process iframes are attached as
// their own targets; in-process frames get an isolated world. dom.ErrFrameNotFound is returned
// when neither exists.
func (s *Session) Frame(ctx context.Context, frameID string) (dom.ScriptEvaluator, error) {
	log := s.logger.With(zap.String("frame_id", frameID))

	ft, err := s.attachFrameTarget(ctx, frameID)
	if err != nil {
		return nil, err
	}
	if ft != nil {
		log.Debug("Evaluating in out-of-process frame target.")
		return &cdpEvaluator{
			logger:         log.Named("cdp_evaluator"),
			runActionsFunc: ft.runActions,
			timeout:        s.evalTimeout,
		}, nil
	}

	var tree *page.FrameTree
	err = s.RunActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		tree, err = page.GetFrameTree().Do(c)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read frame tree: %w", err)
	}

	frame := findFrame(tree, frameID)
	if frame == nil {
		return nil, fmt.Errorf("frame '%s': %w", frameID, dom.ErrFrameNotFound)
	}

	var contextID runtime.ExecutionContextID
	err = s.RunActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		contextID, err = page.CreateIsolatedWorld(frame.ID).WithWorldName(isolatedWorldName).Do(c)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create isolated world in frame '%s': %w", frameID, err)
	}

	log.Debug("Evaluating in isolated world of in-process frame.", zap.Int64("context_id", int64(contextID)))
	return &cdpEvaluator{
		logger:         log.Named("cdp_evaluator"),
		runActionsFunc: s.RunActions,
		contextID:      contextID,
		timeout:        s.evalTimeout,
	}, nil
}

// attachFrameTarget returns the attachment for an iframe target with frameID, or nil when the
// browser has no such target. Attachments are cached for the life of the session.
func (s *Session) attachFrameTarget(ctx context.Context, frameID string) (*frameTarget, error) {
	id := target.ID(frameID)

	s.mu.Lock()
	if ft, ok := s.frameTargets[id]; ok {
		s.mu.Unlock()
		return ft, nil
	}
	s.mu.Unlock()

	lookupCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	infos, err := chromedp.Targets(lookupCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to list browser targets: %w", err)
	}
	if !hasIframeTarget(infos, id) {
		return nil, nil
	}

	frameCtx, frameCancel := chromedp.NewContext(s.ctx, chromedp.WithTargetID(id))
	ft := &frameTarget{ctx: frameCtx, cancel: frameCancel}
	if err := ft.runActions(ctx); err != nil {
		frameCancel()
		return nil, fmt.Errorf("failed to attach to frame target '%s': %w", frameID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.frameTargets[id]; ok {
		// Another extraction attached first.
		frameCancel()
		return existing, nil
	}
	s.frameTargets[id] = ft
	return ft, nil
}

func (ft *frameTarget) runActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(ft.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func hasIframeTarget(infos []*target.Info, id target.ID) bool {
	for _, info := range infos {
		if info != nil && info.Type == "iframe" && info.TargetID == id {
			return true
		}
	}
	return false
}

// findFrame searches the frame tree for a frame whose id, or failing that name, equals frameID.
func findFrame(tree *page.FrameTree, frameID string) *cdp.Frame {
	if tree == nil || frameID == "" {
		return nil
	}
	var byName *cdp.Frame
	stack := []*page.FrameTree{tree}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node == nil || node.Frame == nil {
			continue
		}
		if string(node.Frame.ID) == frameID {
			return node.Frame
		}
		if byName == nil && node.Frame.Name == frameID {
			byName = node.Frame
		}
		for i := len(node.ChildFrames) - 1; i >= 0; i-- {
			stack = append(stack, node.ChildFrames[i])
		}
	}
	return byName
}

// Close detaches from frame targets, closes the browser and releases the allocator.
func (s *Session) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.logger.Debug("Closing session.")

		s.mu.Lock()
		for id, ft := range s.frameTargets {
			ft.cancel()
			delete(s.frameTargets, id)
		}
		s.mu.Unlock()

		// The tab context may already be canceled by the caller, so the graceful close runs
		// on a detached context with its own bound.
		closeCtx, cancel := context.WithTimeout(Detach(s.ctx), closeTimeout)
		defer cancel()
		if err := chromedp.Cancel(closeCtx); err != nil && !errors.Is(err, context.Canceled) {
			closeErr = fmt.Errorf("failed to close browser: %w", err)
		}
		s.cancel()
		if s.allocCancel != nil {
			s.allocCancel()
		}
	})
	return closeErr
}
