package harness

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/blockdoc/internal/block"
	"github.com/roach88/blockdoc/internal/render"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_AssertionFailuresReported(t *testing.T) {
	scenario := &Scenario{
		Name:        "failing",
		Description: "assertions that do not hold",
		Document:    "# BLOCKDOC v2\nblocks:\n  - type: text\n    text: a\n",
		Steps:       []Step{{Op: OpSave}},
		Assertions: []Assertion{
			{Type: AssertBlockCount, Count: 2},
			{Type: AssertTraceCount, Op: OpLoad, Count: 1},
		},
	}

	result, err := Run(context.Background(), scenario, t.TempDir())
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "assertion 0")
	assert.Contains(t, result.Errors[0], "2 blocks")
	assert.Contains(t, result.Errors[1], "load appears 0 times")
}

func TestRun_MalformedDocument(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_doc",
		Description: "document without header",
		Document:    "blocks: []\n",
		Steps:       []Step{{Op: OpSave}},
		Assertions:  []Assertion{{Type: AssertBlockCount}},
	}

	_, err := Run(context.Background(), scenario, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode document")
}

func TestRun_StepErrorStopsRun(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, textName), []byte("# BLOCKDOC v2\nblocks: [[[\n"), 0644))

	scenario := &Scenario{
		Name:        "bad_import",
		Description: "import of a malformed text file",
		Steps:       []Step{{Op: OpImport}, {Op: OpSave}},
		Assertions:  []Assertion{{Type: AssertBlockCount}},
	}

	_, err := Run(context.Background(), scenario, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps[0] import")
	assert.NoFileExists(t, filepath.Join(dir, relationalName))
}

func TestRun_LoadMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	scenario := &Scenario{
		Name:        "load_missing",
		Description: "loading before any save",
		Document:    "# BLOCKDOC v2\nblocks:\n  - type: latex\n    source: x\n",
		Steps:       []Step{{Op: OpLoad}},
		Assertions:  []Assertion{{Type: AssertBlockCount, Count: 0}},
	}

	result, err := Run(context.Background(), scenario, dir)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.NoFileExists(t, filepath.Join(dir, relationalName))
}

func TestRun_RenderWithoutInterpreter(t *testing.T) {
	scenario := &Scenario{
		Name:        "no_interpreter",
		Description: "render with no interpreter configured",
		Document:    "# BLOCKDOC v2\nblocks:\n  - type: pyimage\n    source: plot()\n",
		Renders:     map[string]RenderStub{"plot()": {Payload: "aGk="}},
		Steps:       []Step{{Op: OpRender}},
		Assertions: []Assertion{
			{Type: AssertRenderStatus, Index: 0, Status: StatusError, Error: render.ErrTextNoInterpreter},
		},
	}

	result, err := Run(context.Background(), scenario, t.TempDir())
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 1, result.Trace[0].Failed)
}

func TestRun_SourceEditMakesRenderStale(t *testing.T) {
	dir := t.TempDir()
	scenario := &Scenario{
		Name:        "edit",
		Description: "render, save, reload",
		Document:    "# BLOCKDOC v2\nblocks:\n  - type: pyimage\n    source: v1()\n    format: svg\n",
		Renders:     map[string]RenderStub{"v1()": {Payload: "<svg/>"}},
		Steps:       []Step{{Op: OpRender, Interpreter: "python3"}, {Op: OpSave}, {Op: OpLoad}},
		Assertions:  []Assertion{{Type: AssertRenderStatus, Status: StatusOK}},
	}

	result, err := Run(context.Background(), scenario, dir)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	rc := result.Document.Blocks[0].(*block.RenderedCode)
	assert.False(t, rc.Stale("python3"))
	assert.NotEmpty(t, rc.RenderedPath)
	assert.FileExists(t, rc.RenderedPath)

	rc.Source = "v2()"
	assert.True(t, rc.Stale("python3"))
}

func TestStubRenderer(t *testing.T) {
	r := &stubRenderer{stubs: map[string]RenderStub{
		"ok()":    {Payload: "<svg/>"},
		"bad()":   {Error: "boom"},
		"empty()": {},
	}}
	ctx := context.Background()

	res := r.Render(ctx, "ok()", "python3", block.FormatSVG)
	assert.True(t, res.OK())
	assert.Equal(t, block.RenderDigest("python3", block.FormatSVG, "ok()"), res.Digest)

	res = r.Render(ctx, "bad()", "python3", block.FormatSVG)
	assert.Equal(t, "boom", res.Error)
	assert.NotEmpty(t, res.Digest)

	res = r.Render(ctx, "empty()", "python3", block.FormatPNG)
	assert.Equal(t, render.ErrTextNoOutput, res.Error)

	res = r.Render(ctx, "missing()", "python3", block.FormatPNG)
	assert.Equal(t, render.ErrTextNoOutput, res.Error)

	res = r.Render(ctx, "ok()", "", block.FormatSVG)
	assert.Equal(t, render.ErrTextNoInterpreter, res.Error)

	res = r.Render(ctx, "ok()", "python3", block.Format("gif"))
	assert.Equal(t, block.RenderDigest("python3", block.FormatPNG, "ok()"), res.Digest)

	assert.Equal(t, 6, r.calls)
}
