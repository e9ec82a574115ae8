// internal/browser/dom/service.go
package dom

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/domscope/api/schemas"
	"github.com/xkilldash9x/domscope/internal/config"
)

// Options tunes a Service. The zero value is usable.
type Options struct {
	MaxTreeDepth int
	Iframes      IframeOptions
}

// DefaultOptions returns the options a Service uses when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxTreeDepth: DefaultMaxTreeDepth,
		Iframes:      IframeOptions{MaxPasses: 1, Concurrency: 1},
	}
}

// OptionsFromConfig maps the dom configuration section onto service options.
func OptionsFromConfig(cfg config.DOMConfig) Options {
	return Options{
		MaxTreeDepth: cfg.MaxTreeDepth,
		Iframes: IframeOptions{
			MaxPasses:   cfg.Iframes.MaxPasses,
			Concurrency: cfg.Iframes.Concurrency,
			RateLimit:   cfg.Iframes.RateLimit,
		},
	}
}

// ParamsFromConfig maps the configured extraction defaults onto a parameter record.
func ParamsFromConfig(cfg config.ExtractionConfig) schemas.ExtractionParams {
	return schemas.ExtractionParams{
		DoHighlightElements: cfg.HighlightElements,
		FocusHighlightIndex: cfg.FocusElement,
		ViewportExpansion:   cfg.ViewportExpansion,
	}
}

// Service builds interactive snapshots of the single page it is bound to.
type Service struct {
	page   Page
	script string
	opts   Options
	logger *zap.Logger

	// xpathCache is reserved for element lookups by xpath. Nothing reads or writes it yet.
	xpathCache map[string]*schemas.ElementNode
}

// NewService binds a Service to page. script is the source of the in-page extraction function.
func NewService(logger *zap.Logger, page Page, script string, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxTreeDepth <= 0 {
		opts.MaxTreeDepth = DefaultMaxTreeDepth
	}
	opts.Iframes = opts.Iframes.normalized()
	return &Service{
		page:       page,
		script:     script,
		opts:       opts,
		logger:     logger.Named("dom_service"),
		xpathCache: make(map[string]*schemas.ElementNode),
	}
}

// GetInteractiveSnapshotDefault runs GetInteractiveSnapshot with highlighting on, no focused
// element and no viewport expansion.
func (s *Service) GetInteractiveSnapshotDefault(ctx context.Context) (*schemas.Snapshot, error) {
	return s.GetInteractiveSnapshot(ctx, schemas.DefaultExtractionParams())
}

// GetInteractiveSnapshot extracts the main document, reconstructs it, splices in cross-origin
// iframe content and indexes the highlighted elements. Any parse failure is fatal and no
// partial snapshot is returned.
func (s *Service) GetInteractiveSnapshot(ctx context.Context, params schemas.ExtractionParams) (*schemas.Snapshot, error) {
	snapshotID := uuid.NewString()
	log := s.logger.With(zap.String("snapshot_id", snapshotID))
	log.Debug("Extracting interactive snapshot.",
		zap.Bool("highlight", params.DoHighlightElements),
		zap.Int("focus", params.FocusHighlightIndex),
		zap.Int("viewport_expansion", params.ViewportExpansion))

	root, err := s.buildDOMTree(ctx, params)
	if err != nil {
		return nil, err
	}

	resolver := newIframeResolver(s.page, s.script, s.opts.MaxTreeDepth, s.opts.Iframes, log)
	stats, err := resolver.Resolve(ctx, root, params)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cross-origin iframes: %w", err)
	}

	selectorMap := BuildSelectorMap(root)
	log.Info("Interactive snapshot built.",
		zap.Int("indexed_elements", len(selectorMap)),
		zap.Int("iframes_discovered", stats.Discovered),
		zap.Int("iframes_spliced", stats.Spliced))

	return &schemas.Snapshot{
		ID:          snapshotID,
		Root:        root,
		SelectorMap: selectorMap,
	}, nil
}

// buildDOMTree runs the extraction script in the main document and reconstructs the result.
func (s *Service) buildDOMTree(ctx context.Context, params schemas.ExtractionParams) (*schemas.ElementNode, error) {
	raw, err := s.page.EvaluateExtraction(ctx, s.script, params)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate extraction script: %w", err)
	}
	rec, err := DecodeRecord(raw, s.opts.MaxTreeDepth)
	if err != nil {
		return nil, err
	}
	return ParseRoot(rec)
}
