package block

// Document is an ordered block sequence bound to an optional backing file.
type Document struct {
	Blocks []Block

	// Path is the backing file, empty for an unsaved document.
	Path string

	// TextFormat is set when the document was read from the lightweight text
	// format. Saving back to the same Path keeps that format.
	TextFormat bool

	dirty bool
}

// NewDocument creates a clean document holding blocks.
func NewDocument(path string, blocks []Block) *Document {
	return &Document{Blocks: blocks, Path: path}
}

// Dirty reports whether the document changed since it was loaded or saved.
func (d *Document) Dirty() bool { return d.dirty }

// MarkDirty flags unsaved changes.
func (d *Document) MarkDirty() { d.dirty = true }

// ClearDirty is called after a successful load or save.
func (d *Document) ClearDirty() { d.dirty = false }

// SetPath rebinds the document to a new backing file.
func (d *Document) SetPath(path string) { d.Path = path }

// Append adds blocks to the end of the document and marks it dirty.
func (d *Document) Append(blocks ...Block) {
	d.Blocks = append(d.Blocks, blocks...)
	d.dirty = true
}

// RenderedBlocks returns the RenderedCode blocks in document order.
func (d *Document) RenderedBlocks() []*RenderedCode {
	var out []*RenderedCode
	for _, b := range d.Blocks {
		if rc, ok := b.(*RenderedCode); ok {
			out = append(out, rc)
		}
	}
	return out
}
