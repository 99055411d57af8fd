// Package docio loads and saves documents in either on-disk format.
//
// Load detects the format from the first line of the file: the text header
// routes to textdoc, anything else to the relational store. Save picks the
// format from the path alone: the text format only when writing a text
// document back to the file it was read from, the relational store for every
// other target.
package docio
