// cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/domscope/api/schemas"
	"github.com/xkilldash9x/domscope/internal/browser/dom"
	"github.com/xkilldash9x/domscope/internal/config"
	"github.com/xkilldash9x/domscope/internal/observability"
)

// resetForTest isolates a command run from the caller's environment, working directory and
// the process wide logger.
func resetForTest(t *testing.T) {
	t.Helper()
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	t.Setenv("DOMSCOPE_LOGGER_LEVEL", "fatal")
	t.Setenv("DOMSCOPE_SCRIPT", "")
	t.Setenv("DOMSCOPE_CHROME", "")
	t.Chdir(t.TempDir())
}

func executeCommand(t *testing.T, root *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sampleRaw = `{"tagName":"body","xpath":"/html/body","isVisible":true,"children":[
	{"type":"TEXT_NODE","text":"Welcome","isVisible":true},
	{"tagName":"button","xpath":"/html/body/button","attributes":{"type":"submit"},"isVisible":true,
	 "isInteractive":true,"highlightIndex":0,"children":[{"type":"TEXT_NODE","text":"Go","isVisible":true}]}
]}`

// fakeSession stands in for a browser tab. The main document returns raw and no child frame
// can be found.
type fakeSession struct {
	mu        sync.Mutex
	raw       string
	evalErr   error
	navErr    error
	navigated []string
	params    []schemas.ExtractionParams
	closed    bool
	cfg       config.Interface
	launches  int
}

func (f *fakeSession) EvaluateExtraction(ctx context.Context, script string, params schemas.ExtractionParams) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = append(f.params, params)
	if f.evalErr != nil {
		return nil, f.evalErr
	}
	return []byte(f.raw), nil
}

func (f *fakeSession) Frame(ctx context.Context, frameID string) (dom.ScriptEvaluator, error) {
	return nil, dom.ErrFrameNotFound
}

func (f *fakeSession) Navigate(ctx context.Context, targetURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigated = append(f.navigated, targetURL)
	return f.navErr
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSession) factory() sessionFactory {
	return func(ctx context.Context, cfg config.Interface, logger *zap.Logger) (pageSession, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cfg = cfg
		f.launches++
		return f, nil
	}
}
