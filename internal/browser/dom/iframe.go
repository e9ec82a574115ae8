// internal/browser/dom/iframe.go
package dom

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/domscope/api/schemas"
)

// IframeOptions tunes cross-origin iframe resolution. The zero value behaves like the
// defaults: one pass, sequential extraction, no throttling.
type IframeOptions struct {
	// MaxPasses is how many discovery rounds run. Pass N+1 only searches subtrees spliced
	// in by pass N, which resolves nested cross-origin iframes one level per pass.
	MaxPasses int
	// Concurrency caps parallel frame extractions within a pass. Splicing stays sequential.
	Concurrency int
	// RateLimit caps frame evaluations per second. Zero disables throttling.
	RateLimit float64
}

func (o IframeOptions) normalized() IframeOptions {
	if o.MaxPasses < 1 {
		o.MaxPasses = 1
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.RateLimit < 0 {
		o.RateLimit = 0
	}
	return o
}

// ResolveStats summarizes one resolution run.
type ResolveStats struct {
	Passes     int
	Discovered int
	Spliced    int
	Skipped    int
}

// iframeResolver splices subtrees extracted from cross-origin frames into a reconstructed tree.
// It is created per request and never shared between goroutines; only the extraction calls
// fan out.
type iframeResolver struct {
	page     Page
	script   string
	maxDepth int
	opts     IframeOptions
	limiter  *rate.Limiter
	logger   *zap.Logger
}

func newIframeResolver(page Page, script string, maxDepth int, opts IframeOptions, logger *zap.Logger) *iframeResolver {
	opts = opts.normalized()
	r := &iframeResolver{
		page:     page,
		script:   script,
		maxDepth: maxDepth,
		opts:     opts,
		logger:   logger.Named("iframe_resolver"),
	}
	if opts.RateLimit > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return r
}

// findCrossOriginIframes collects, in pre-order, every element under root flagged as a
// cross-origin iframe.
func findCrossOriginIframes(root *schemas.ElementNode) []*schemas.ElementNode {
	var iframes []*schemas.ElementNode
	walkPreOrder(root, func(n schemas.Node) bool {
		switch n.Kind {
		case schemas.NodeKindElement:
			if n.Element.IsCrossOriginIframe {
				iframes = append(iframes, n.Element)
			}
		case schemas.NodeKindText:
		}
		return true
	})
	return iframes
}

// findIframeNode locates the element carrying frameID with a fresh search from root.
func findIframeNode(root *schemas.ElementNode, frameID string) *schemas.ElementNode {
	return findElement(root, func(el *schemas.ElementNode) bool {
		return el.FrameID != nil && *el.FrameID == frameID
	})
}

// splice makes subtree the only child of placeholder. Whatever the placeholder carried from
// its containing document is discarded.
func splice(placeholder, subtree *schemas.ElementNode) {
	subtree.Parent = placeholder
	placeholder.Children = []schemas.Node{schemas.NodeFromElement(subtree)}
}

// Resolve runs the configured number of discovery passes over root.
func (r *iframeResolver) Resolve(ctx context.Context, root *schemas.ElementNode, params schemas.ExtractionParams) (ResolveStats, error) {
	var stats ResolveStats
	scopes := []*schemas.ElementNode{root}

	for pass := 1; pass <= r.opts.MaxPasses && len(scopes) > 0; pass++ {
		var placeholders []*schemas.ElementNode
		for _, scope := range scopes {
			placeholders = append(placeholders, findCrossOriginIframes(scope)...)
		}
		stats.Passes = pass
		stats.Discovered += len(placeholders)

		subtrees, err := r.extractAll(ctx, placeholders, params)
		if err != nil {
			return stats, err
		}

		// Splicing is applied one placeholder at a time, in discovery order.
		var spliced []*schemas.ElementNode
		for i, iframe := range placeholders {
			subtree := subtrees[i]
			if subtree == nil {
				stats.Skipped++
				continue
			}
			target := findIframeNode(root, iframe.FrameIDValue())
			if target == nil {
				stats.Skipped++
				continue
			}
			splice(target, subtree)
			spliced = append(spliced, subtree)
			stats.Spliced++
		}
		scopes = spliced
	}

	// Emitted when the loop runs to completion, whether or not any frame was missing.
	r.logger.Debug("Iframe not found.",
		zap.Int("discovered", stats.Discovered),
		zap.Int("spliced", stats.Spliced),
		zap.Int("passes", stats.Passes))

	return stats, nil
}

// extractAll returns one subtree per placeholder, nil where the iframe contributes nothing.
func (r *iframeResolver) extractAll(ctx context.Context, placeholders []*schemas.ElementNode, params schemas.ExtractionParams) ([]*schemas.ElementNode, error) {
	subtrees := make([]*schemas.ElementNode, len(placeholders))
	if len(placeholders) == 0 {
		return subtrees, nil
	}

	if r.opts.Concurrency <= 1 {
		for i, iframe := range placeholders {
			subtree, err := r.extract(ctx, iframe, params)
			if err != nil {
				return nil, err
			}
			subtrees[i] = subtree
		}
		return subtrees, nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, iframe := range placeholders {
		g.Go(func() error {
			subtree, err := r.extract(gCtx, iframe, params)
			if err != nil {
				return err
			}
			// Each goroutine owns exactly one slot.
			subtrees[i] = subtree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return subtrees, nil
}

// extract evaluates the script inside the frame behind one placeholder and reconstructs the
// result. A nil subtree with a nil error means the iframe is skipped.
func (r *iframeResolver) extract(ctx context.Context, iframe *schemas.ElementNode, params schemas.ExtractionParams) (*schemas.ElementNode, error) {
	frameID := iframe.FrameIDValue()
	log := r.logger.With(zap.String("frame_id", frameID), zap.String("xpath", iframe.XPath))
	if frameID == "" {
		log.Debug("Cross-origin iframe has no frame id. Skipping.")
		return nil, nil
	}

	frame, err := r.page.Frame(ctx, frameID)
	if errors.Is(err, ErrFrameNotFound) {
		log.Debug("No live frame matches the cross-origin iframe. Skipping.")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve frame '%s': %w", frameID, err)
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting to evaluate frame '%s': %w", frameID, err)
		}
	}

	raw, err := frame.EvaluateExtraction(ctx, r.script, params)
	if err != nil {
		return nil, fmt.Errorf("extraction failed in frame '%s': %w", frameID, err)
	}

	if IsEmptyResult(raw) {
		log.Debug("Frame extraction returned an empty value. Skipping.", zap.ByteString("result", raw))
		return nil, nil
	}

	rec, err := DecodeRecord(raw, r.maxDepth)
	if err != nil {
		return nil, err
	}
	node, err := parseNode(rec, nil, fmt.Sprintf("frame[%s]", frameID))
	if err != nil {
		return nil, err
	}
	if node == nil {
		log.Debug("Frame extraction produced no node. Skipping.")
		return nil, nil
	}
	switch node.Kind {
	case schemas.NodeKindElement:
		log.Debug("Extracted cross-origin iframe content.", zap.String("tag", node.Element.TagName))
		return node.Element, nil
	case schemas.NodeKindText:
		log.Debug("Frame extraction produced a text node. Skipping.")
		return nil, nil
	default:
		return nil, fmt.Errorf("frame '%s' produced a node of unknown kind %s", frameID, node.Kind)
	}
}
