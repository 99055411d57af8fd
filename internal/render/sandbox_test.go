package render

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/blockdoc/internal/block"
	"github.com/roach88/blockdoc/internal/logging"
	"github.com/roach88/blockdoc/internal/testutil"
	"github.com/roach88/blockdoc/internal/trail"
)

func newTestSandbox(t *testing.T) *Sandbox {
	t.Helper()
	return &Sandbox{TempDir: t.TempDir(), Logger: logging.Discard()}
}

func assertNoLeftovers(t *testing.T, sb *Sandbox) {
	t.Helper()
	entries, err := os.ReadDir(sb.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "render directory should be removed")
}

func TestRenderWithoutInterpreter(t *testing.T) {
	sb := newTestSandbox(t)

	res := sb.Render(context.Background(), "plot()", "", block.FormatPNG)

	assert.Equal(t, Result{
		Digest: block.RenderDigest("", block.FormatPNG, "plot()"),
		Error:  "interpreter not configured",
	}, res)
	assert.False(t, res.OK())
	assertNoLeftovers(t, sb)
}

func TestRenderPNGIsBase64(t *testing.T) {
	sb := newTestSandbox(t)
	interp := testutil.WritingInterpreter(t, "hello")

	res := sb.Render(context.Background(), "plot()", interp, block.FormatPNG)

	require.Empty(t, res.Error)
	assert.True(t, res.OK())
	assert.Equal(t, "aGVsbG8=", res.Payload)
	assert.Equal(t, block.RenderDigest(interp, block.FormatPNG, "plot()"), res.Digest)
	assertNoLeftovers(t, sb)
}

func TestRenderSVGIsText(t *testing.T) {
	sb := newTestSandbox(t)
	interp := testutil.WritingInterpreter(t, `<svg xmlns="http://www.w3.org/2000/svg"/>`)

	res := sb.Render(context.Background(), "plot()", interp, block.FormatSVG)

	require.Empty(t, res.Error)
	assert.Equal(t, `<svg xmlns="http://www.w3.org/2000/svg"/>`, res.Payload)
}

func TestRenderSVGRejectsInvalidUTF8(t *testing.T) {
	sb := newTestSandbox(t)
	interp := testutil.FakeInterpreter(t, `printf '\377\376' > "$BLOCKDOC_OUTPUT"`)

	res := sb.Render(context.Background(), "x", interp, block.FormatSVG)

	assert.Equal(t, ErrTextInvalidUTF8, res.Error)
	assert.Empty(t, res.Payload)
}

func TestRenderFailureUsesStderr(t *testing.T) {
	sb := newTestSandbox(t)
	interp := testutil.FailingInterpreter(t, "ignored", "boom\n", 1)

	res := sb.Render(context.Background(), "plot()", interp, block.FormatPNG)

	assert.Equal(t, Result{
		Digest: block.RenderDigest(interp, block.FormatPNG, "plot()"),
		Error:  "boom",
	}, res)
	assertNoLeftovers(t, sb)
}

func TestRenderFailureFallbacks(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		stderr string
		want   string
	}{
		{"stdout when stderr blank", "  printed  ", " \n", "printed"},
		{"generic when both blank", "", "", "render failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sb := newTestSandbox(t)
			interp := testutil.FailingInterpreter(t, tt.stdout, tt.stderr, 2)

			res := sb.Render(context.Background(), "x", interp, block.FormatPNG)

			assert.Equal(t, tt.want, res.Error)
			assert.NotEmpty(t, res.Digest)
		})
	}
}

func TestRenderNoOutput(t *testing.T) {
	sb := newTestSandbox(t)

	for _, body := range []string{"exit 0", `: > "$BLOCKDOC_OUTPUT"`} {
		interp := testutil.FakeInterpreter(t, body)
		res := sb.Render(context.Background(), "x", interp, block.FormatPNG)
		assert.Equal(t, "no output produced", res.Error, body)
		assert.Empty(t, res.Payload)
	}
	assertNoLeftovers(t, sb)
}

func TestRenderMissingInterpreterBinary(t *testing.T) {
	sb := newTestSandbox(t)
	missing := filepath.Join(t.TempDir(), "no-such-python")

	res := sb.Render(context.Background(), "x", missing, block.FormatPNG)

	assert.NotEmpty(t, res.Error)
	assert.Equal(t, block.RenderDigest(missing, block.FormatPNG, "x"), res.Digest)
}

func TestRenderUnknownFormatFallsBackToPNG(t *testing.T) {
	sb := newTestSandbox(t)
	interp := testutil.FakeInterpreter(t, `
case "$BLOCKDOC_OUTPUT" in
  *.png) printf '%s' "$BLOCKDOC_FORMAT" > "$BLOCKDOC_OUTPUT" ;;
esac`)

	res := sb.Render(context.Background(), "x", interp, block.Format("gif"))

	require.Empty(t, res.Error)
	assert.Equal(t, "cG5n", res.Payload) // base64("png")
	assert.Equal(t, block.RenderDigest(interp, block.FormatPNG, "x"), res.Digest)
}

func TestRenderDigestIsDeterministic(t *testing.T) {
	sb := newTestSandbox(t)
	ok := testutil.WritingInterpreter(t, "a")
	bad := testutil.FailingInterpreter(t, "", "boom", 1)

	for _, interp := range []string{ok, bad, ""} {
		first := sb.Render(context.Background(), "src", interp, block.FormatPNG)
		second := sb.Render(context.Background(), "src", interp, block.FormatPNG)
		assert.Equal(t, first.Digest, second.Digest)
		assert.Len(t, first.Digest, 64)
	}

	a := sb.Render(context.Background(), "src", ok, block.FormatPNG)
	b := sb.Render(context.Background(), "src", ok, block.FormatSVG)
	assert.NotEqual(t, a.Digest, b.Digest)
}

func TestRenderHarnessContract(t *testing.T) {
	sb := newTestSandbox(t)
	// The harness is the only argument and exposes __blockdoc__.
	interp := testutil.FakeInterpreter(t, `
[ $# -eq 1 ] || exit 3
[ -f "$1" ] || exit 4
grep -q __blockdoc__ "$1" || exit 6
cat "$BLOCKDOC_SOURCE" > "$BLOCKDOC_OUTPUT"`)

	res := sb.Render(context.Background(), "<svg>source</svg>", interp, block.FormatSVG)

	require.Empty(t, res.Error)
	assert.Equal(t, "<svg>source</svg>", res.Payload)
}

func TestRenderPassesExtraEnv(t *testing.T) {
	sb := newTestSandbox(t)
	sb.Env = []string{"BLOCKDOC_TEST_VALUE=42"}
	interp := testutil.FakeInterpreter(t, `printf '%s' "$BLOCKDOC_TEST_VALUE" > "$BLOCKDOC_OUTPUT"`)

	res := sb.Render(context.Background(), "x", interp, block.FormatSVG)

	assert.Equal(t, "42", res.Payload)
}

func TestRenderHonorsContextCancellation(t *testing.T) {
	sb := newTestSandbox(t)
	interp := testutil.FakeInterpreter(t, "exec sleep 30")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := sb.Render(ctx, "x", interp, block.FormatPNG)

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.NotEmpty(t, res.Error)
	assert.Empty(t, res.Payload)
	assertNoLeftovers(t, sb)
}

func TestRenderRecordsTrail(t *testing.T) {
	sb := newTestSandbox(t)
	sb.Trail = trail.New(10)
	interp := testutil.WritingInterpreter(t, "a")

	sb.Render(context.Background(), "x", interp, block.FormatPNG)
	sb.Render(context.Background(), "x", "", block.FormatPNG)

	require.Equal(t, 1, sb.Trail.Len())
	assert.Contains(t, sb.Trail.Tail(1)[0].Message, "render ")
}

func TestZeroSandbox(t *testing.T) {
	var sb Sandbox
	interp := testutil.WritingInterpreter(t, "a")

	res := sb.Render(context.Background(), "x", interp, block.FormatPNG)

	assert.Equal(t, "YQ==", res.Payload)
}

func TestResultApplyTo(t *testing.T) {
	b := &block.RenderedCode{
		Source:       "x",
		Format:       block.FormatPNG,
		RenderedData: "old",
		RenderedHash: "old-hash",
		RenderedPath: "/tmp/old.png",
	}

	Result{Digest: "new-hash", Error: "boom"}.ApplyTo(b)
	assert.Equal(t, &block.RenderedCode{
		Source:       "x",
		Format:       block.FormatPNG,
		RenderedHash: "new-hash",
		LastError:    "boom",
	}, b)

	Result{Digest: "h2", Payload: "data"}.ApplyTo(b)
	assert.Equal(t, "data", b.RenderedData)
	assert.Empty(t, b.LastError)
}

func TestRenderWithPython(t *testing.T) {
	python, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not on PATH")
	}
	sb := newTestSandbox(t)
	source := `
with open(__blockdoc__.renderer, "w", encoding="utf-8") as f:
    f.write("<svg>" + __blockdoc__.format + "</svg>")
`
	res := sb.Render(context.Background(), source, python, block.FormatSVG)
	require.Empty(t, res.Error)
	assert.Equal(t, "<svg>svg</svg>", res.Payload)

	res = sb.Render(context.Background(), "raise ValueError('nope')", python, block.FormatPNG)
	assert.Contains(t, res.Error, "ValueError: nope")
	assertNoLeftovers(t, sb)
}
