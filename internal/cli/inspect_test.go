package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"

	"github.com/roach88/blockdoc/internal/block"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestInspectTextGolden(t *testing.T) {
	doc := block.NewDocument("notes.docv", []block.Block{
		&block.Text{Text: "hello world\nsecond line"},
		&block.Image{Alt: "logo", MIME: "image/png", Data: bytes.Repeat([]byte{1}, 16)},
		&block.ThreeScene{Source: "scene.add(cube)"},
		&block.RenderedCode{Source: "plot()", Format: block.FormatSVG, RenderedData: "<svg/>"},
		&block.RenderedCode{Source: "broken(", LastError: "SyntaxError: bad\n  traceback"},
		&block.Math{Source: "x^2"},
		&block.Text{},
	})
	result := buildInspectResult(doc, "")
	result.SchemaVersion = 5

	var buf bytes.Buffer
	writeInspectText(&buf, result)
	newGoldie(t).Assert(t, "inspect_relational", buf.Bytes())
}

func TestInspectTextEmptyGolden(t *testing.T) {
	doc := block.NewDocument("notes.txt", nil)
	doc.TextFormat = true

	var buf bytes.Buffer
	writeInspectText(&buf, buildInspectResult(doc, ""))
	newGoldie(t).Assert(t, "inspect_text_empty", buf.Bytes())
}

func TestSummarizeStale(t *testing.T) {
	b := &block.RenderedCode{Source: "plot()", Format: block.FormatPNG, RenderedData: "x", RenderedHash: "old"}
	assert.Equal(t, "png, rendered, stale", summarize(b, "python3").Status)

	b.RenderedHash = block.RenderDigest("python3", block.FormatPNG, "plot()")
	assert.Equal(t, "png, rendered", summarize(b, "python3").Status)
	assert.Equal(t, "png, rendered", summarize(b, "").Status)
}

func TestImageSummary(t *testing.T) {
	tests := []struct {
		img  *block.Image
		want string
	}{
		{&block.Image{Path: "/tmp/cache/image-3.png", MIME: "image/png"}, "image-3.png (image/png)"},
		{&block.Image{}, "image"},
		{&block.Image{Alt: "chart", Data: []byte("abc")}, "chart (3 bytes)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, imageSummary(tt.img))
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("é", summaryWidth+5)
	got := truncate(long)
	assert.Equal(t, summaryWidth, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, "short", truncate("short"))
	assert.Equal(t, "(empty)", firstLine("\n  \n"))
	assert.Equal(t, "second", firstLine("\n  second\nthird"))
}
