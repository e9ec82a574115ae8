// cmd/snapshot.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/domscope/api/schemas"
	"github.com/xkilldash9x/domscope/internal/browser/dom"
	"github.com/xkilldash9x/domscope/internal/browser/session"
	"github.com/xkilldash9x/domscope/internal/config"
	"github.com/xkilldash9x/domscope/internal/observability"
)

// pageSession is the part of a browser session the snapshot command drives.
type pageSession interface {
	dom.Page
	Navigate(ctx context.Context, targetURL string) error
	Close() error
}

// sessionFactory opens a browser session. Tests replace it with a fake page.
type sessionFactory func(ctx context.Context, cfg config.Interface, logger *zap.Logger) (pageSession, error)

func launchSession(ctx context.Context, cfg config.Interface, logger *zap.Logger) (pageSession, error) {
	s, err := session.Launch(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// textAttributes are the attributes shown by the text format.
var textAttributes = []string{"type", "name", "role", "aria-label", "placeholder", "href", "value", "title"}

type snapshotFlags struct {
	highlight         bool
	focus             int
	viewportExpansion int
	script            string
	format            string
	output            string
	iframePasses      int
	iframeConcurrency int
	headful           bool
}

func newSnapshotCmd(newSession sessionFactory) *cobra.Command {
	var flags snapshotFlags

	snapshotCmd := &cobra.Command{
		Use:   "snapshot <url>",
		Short: "Loads a page and prints its interactive DOM snapshot",
		Long: `Loads the page in Chrome, runs the extraction script in the page and in every
cross-origin iframe, and prints the reconstructed tree with its selector map.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger().Named("snapshot")

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if err := applySnapshotFlags(cmd, cfg, flags); err != nil {
				return err
			}
			format := strings.ToLower(flags.format)
			if !isKnownFormat(format) {
				return fmt.Errorf("unknown output format '%s' (want json, html or text)", flags.format)
			}

			script, err := dom.LoadScript(cfg.DOM().ScriptPath)
			if err != nil {
				return fmt.Errorf("failed to load extraction script (set --script or dom.script_path): %w", err)
			}

			targetURL := normalizeURL(args[0])
			s, err := newSession(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to start browser session: %w", err)
			}
			defer func() {
				if err := s.Close(); err != nil {
					logger.Warn("Error while closing browser session.", zap.Error(err))
				}
			}()

			if err := s.Navigate(ctx, targetURL); err != nil {
				return err
			}

			svc := dom.NewService(logger, s, script, dom.OptionsFromConfig(cfg.DOM()))
			snapshot, err := svc.GetInteractiveSnapshot(ctx, dom.ParamsFromConfig(cfg.DOM().Extraction))
			if err != nil {
				return fmt.Errorf("failed to capture snapshot of '%s': %w", targetURL, err)
			}

			out, err := renderSnapshot(snapshot, format)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), flags.output, out, logger)
		},
	}

	f := snapshotCmd.Flags()
	f.BoolVar(&flags.highlight, "highlight", true, "Highlight indexed elements in the page. (Overrides config/env)")
	f.IntVar(&flags.focus, "focus", -1, "Highlight index to focus, -1 for none. (Overrides config/env)")
	f.IntVar(&flags.viewportExpansion, "viewport-expansion", 0, "Pixels around the viewport to include. (Overrides config/env)")
	f.StringVar(&flags.script, "script", "", "Path to the extraction script. (Overrides config/env)")
	f.StringVarP(&flags.format, "format", "f", "json", "Output format: json, html or text.")
	f.StringVarP(&flags.output, "output", "o", "", "Write the snapshot to this file instead of stdout.")
	f.IntVar(&flags.iframePasses, "iframe-passes", 1, "Passes over newly spliced subtrees for nested cross-origin iframes. (Overrides config/env)")
	f.IntVar(&flags.iframeConcurrency, "iframe-concurrency", 1, "Concurrent iframe extractions. (Overrides config/env)")
	f.BoolVar(&flags.headful, "headful", false, "Show the browser window.")
	return snapshotCmd
}

// applySnapshotFlags overrides configuration with the flags the user set explicitly.
func applySnapshotFlags(cmd *cobra.Command, cfg config.Interface, flags snapshotFlags) error {
	changed := cmd.Flags().Changed

	extraction := cfg.DOM().Extraction
	if changed("highlight") {
		extraction.HighlightElements = flags.highlight
	}
	if changed("focus") {
		extraction.FocusElement = flags.focus
	}
	if changed("viewport-expansion") {
		extraction.ViewportExpansion = flags.viewportExpansion
	}
	cfg.SetDOMExtraction(extraction)

	if changed("script") {
		cfg.SetDOMScriptPath(flags.script)
	}
	if changed("iframe-passes") {
		cfg.SetDOMIframePasses(flags.iframePasses)
	}
	if changed("iframe-concurrency") {
		cfg.SetDOMIframeConcurrency(flags.iframeConcurrency)
	}
	if changed("headful") {
		cfg.SetBrowserHeadless(!flags.headful)
	}

	domCfg := cfg.DOM()
	if err := domCfg.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot options: %w", err)
	}
	return nil
}

func isKnownFormat(format string) bool {
	switch format {
	case "json", "html", "text":
		return true
	}
	return false
}

// normalizeURL defaults a bare host to https.
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "://") || strings.HasPrefix(raw, "about:") || strings.HasPrefix(raw, "data:") {
		return raw
	}
	return "https://" + raw
}

func renderSnapshot(snapshot *schemas.Snapshot, format string) ([]byte, error) {
	switch format {
	case "json":
		out, err := dom.RenderJSON(snapshot, true)
		if err != nil {
			return nil, fmt.Errorf("failed to render snapshot json: %w", err)
		}
		return append(out, '\n'), nil
	case "html":
		out, err := dom.RenderHTML(snapshot.Root)
		if err != nil {
			return nil, err
		}
		return []byte(out + "\n"), nil
	case "text":
		return []byte(dom.ClickableElementsString(snapshot.Root, textAttributes...) + "\n"), nil
	default:
		return nil, fmt.Errorf("unknown output format '%s'", format)
	}
}

func writeOutput(stdout io.Writer, path string, out []byte, logger *zap.Logger) error {
	if path == "" {
		_, err := stdout.Write(out)
		return err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot to '%s': %w", path, err)
	}
	logger.Info("Snapshot written.", zap.String("path", path), zap.Int("bytes", len(out)))
	return nil
}
