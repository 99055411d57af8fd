// Package textdoc reads and writes the lightweight text document format.
//
// A text document starts with the Header line; everything after it is a YAML
// mapping with a single "blocks" list. Each entry carries a "type" (the block
// kind) plus the fields of that kind. Image bytes are stored base64-encoded.
//
//	# BLOCKDOC v2
//	blocks:
//	  - type: text
//	    text: hello
//	  - type: pyimage
//	    source: plot()
//	    format: svg
package textdoc
