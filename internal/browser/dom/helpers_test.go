// internal/browser/dom/helpers_test.go
package dom

import (
	"context"
	"sync"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/domscope/api/schemas"
)

// raw is shorthand for building extraction records in tests.
type raw map[string]interface{}

func element(tag, xpath string, children ...interface{}) raw {
	if children == nil {
		children = []interface{}{}
	}
	return raw{"type": "ELEMENT_NODE", "tagName": tag, "xpath": xpath, "children": children}
}

func text(s string, visible bool) raw {
	return raw{"type": "TEXT_NODE", "text": s, "isVisible": visible}
}

func (r raw) with(key string, value interface{}) raw {
	r[key] = value
	return r
}

func crossOriginIframe(frameID, xpath string) raw {
	return element("iframe", xpath).with("crossOriginIframe", true).with("id", frameID)
}

func mustJSON(t testing.TB, v interface{}) []byte {
	t.Helper()
	// Sorted keys keep attribute order deterministic.
	data, err := json.ConfigCompatibleWithStandardLibrary.Marshal(v)
	require.NoError(t, err)
	return data
}

func mustParseRoot(t testing.TB, v interface{}) *schemas.ElementNode {
	t.Helper()
	rec, err := DecodeRecord(mustJSON(t, v), 0)
	require.NoError(t, err)
	root, err := ParseRoot(rec)
	require.NoError(t, err)
	return root
}

// fakeFrame returns a canned extraction result.
type fakeFrame struct {
	result []byte
	err    error
	// started, if set, is signaled when an evaluation begins; release gates its completion.
	started chan<- string
	release <-chan struct{}
	id      string
}

func (f *fakeFrame) EvaluateExtraction(ctx context.Context, _ string, _ schemas.ExtractionParams) ([]byte, error) {
	if f.started != nil {
		f.started <- f.id
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result, f.err
}

// fakePage is an in-memory Page recording every call it receives.
type fakePage struct {
	mu sync.Mutex

	main     []byte
	mainErr  error
	frames   map[string]*fakeFrame
	frameErr error

	scripts      []string
	params       []schemas.ExtractionParams
	frameLookups []string
}

func newFakePage(t testing.TB, main interface{}) *fakePage {
	return &fakePage{main: mustJSON(t, main), frames: map[string]*fakeFrame{}}
}

func (p *fakePage) addFrame(t testing.TB, id string, result interface{}) *fakeFrame {
	f := &fakeFrame{result: mustJSON(t, result), id: id}
	p.frames[id] = f
	return f
}

func (p *fakePage) EvaluateExtraction(_ context.Context, script string, params schemas.ExtractionParams) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts = append(p.scripts, script)
	p.params = append(p.params, params)
	return p.main, p.mainErr
}

func (p *fakePage) Frame(_ context.Context, frameID string) (ScriptEvaluator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frameLookups = append(p.frameLookups, frameID)
	if p.frameErr != nil {
		return nil, p.frameErr
	}
	f, ok := p.frames[frameID]
	if !ok {
		return nil, ErrFrameNotFound
	}
	return &recordingFrame{page: p, frame: f}, nil
}

// recordingFrame records params before delegating so tests can check they were passed through.
type recordingFrame struct {
	page  *fakePage
	frame *fakeFrame
}

func (r *recordingFrame) EvaluateExtraction(ctx context.Context, script string, params schemas.ExtractionParams) ([]byte, error) {
	r.page.mu.Lock()
	r.page.scripts = append(r.page.scripts, script)
	r.page.params = append(r.page.params, params)
	r.page.mu.Unlock()
	return r.frame.EvaluateExtraction(ctx, script, params)
}

// assertParentLinks checks that every non-root node is found by identity among its parent's
// children.
func assertParentLinks(t *testing.T, root *schemas.ElementNode) {
	t.Helper()
	walkPreOrder(root, func(n schemas.Node) bool {
		parent := n.Parent()
		if n.Kind == schemas.NodeKindElement && n.Element == root {
			require.Nil(t, parent, "root must not have a parent")
			return true
		}
		require.NotNil(t, parent)
		found := false
		for _, c := range parent.Children {
			if (c.Kind == schemas.NodeKindElement && c.Element == n.Element && n.Element != nil) ||
				(c.Kind == schemas.NodeKindText && c.Text == n.Text && n.Text != nil) {
				found = true
				break
			}
		}
		require.True(t, found, "node is not among its parent's children")
		return true
	})
}
