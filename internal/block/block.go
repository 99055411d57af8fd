package block

import "strings"

// Kind is the persisted type tag of a block variant.
type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindThree    Kind = "three"
	KindRendered Kind = "pyimage"
	KindMath     Kind = "latex"
)

// AllKinds returns every variant tag in declaration order.
func AllKinds() []Kind {
	return []Kind{KindText, KindImage, KindThree, KindRendered, KindMath}
}

// Block is one content unit of a document.
//
// The interface is sealed: only the variants in this package implement it, so
// a type switch over *Text, *Image, *ThreeScene, *RenderedCode and *Math is
// exhaustive.
type Block interface {
	Kind() Kind
	isBlock()
}

// Text is literal UTF-8 content.
type Text struct {
	Text string `json:"text"`
}

// Image is an embedded image. Data may be empty when the image is sourced
// from a live filesystem path.
type Image struct {
	Path string `json:"path"`
	Data []byte `json:"data,omitempty"`
	MIME string `json:"mime,omitempty"`
	Alt  string `json:"alt,omitempty"`
}

// ThreeScene holds opaque 3D-scene script source.
type ThreeScene struct {
	Source string `json:"source"`
}

// RenderedCode is source executed by an external interpreter to produce an
// image. RenderedData holds the encoded output: SVG text for FormatSVG,
// base64 for FormatPNG.
type RenderedCode struct {
	Source       string `json:"source"`
	Format       Format `json:"format"`
	RenderedData string `json:"rendered_data,omitempty"`
	RenderedHash string `json:"rendered_hash,omitempty"`
	LastError    string `json:"last_error,omitempty"`

	// RenderedPath is derived on load from the media cache and never persisted.
	RenderedPath string `json:"-"`
}

// Math holds typeset math markup source.
type Math struct {
	Source string `json:"source"`
}

func (*Text) Kind() Kind         { return KindText }
func (*Image) Kind() Kind        { return KindImage }
func (*ThreeScene) Kind() Kind   { return KindThree }
func (*RenderedCode) Kind() Kind { return KindRendered }
func (*Math) Kind() Kind         { return KindMath }

func (*Text) isBlock()         {}
func (*Image) isBlock()        {}
func (*ThreeScene) isBlock()   {}
func (*RenderedCode) isBlock() {}
func (*Math) isBlock()         {}

// Stale reports whether the stored render hash no longer matches the digest
// of the block's current source, format and the given interpreter.
func (b *RenderedCode) Stale(interpreter string) bool {
	return b.RenderedHash != RenderDigest(interpreter, ParseFormat(string(b.Format)), b.Source)
}

// Format is the output format of a RenderedCode block.
type Format string

const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
)

// DefaultFormat is used for empty or unknown format tags.
const DefaultFormat = FormatPNG

// ParseFormat normalizes a format tag. Unknown values are coerced to
// DefaultFormat rather than rejected.
func ParseFormat(s string) Format {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatSVG:
		return FormatSVG
	case FormatPNG:
		return FormatPNG
	default:
		return DefaultFormat
	}
}

// Extension returns the file extension for rendered output, including the dot.
func (f Format) Extension() string {
	if f == FormatSVG {
		return ".svg"
	}
	return ".png"
}
