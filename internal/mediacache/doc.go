// Package mediacache materializes document media into a content-addressed
// on-disk cache.
//
// # Layout
//
//	<base>/blockdoc/sqlite/<16-hex digest of document path>/image-<id><ext>
//	<base>/blockdoc/sqlite/<16-hex digest of document path>/pyimage/pyimage-<16-hex digest><ext>
//
// The per-document root is derived from the document path alone, so a
// document's cache is always locatable without a registry and two documents
// never share a root.
//
// # Write-once
//
// A target file is written at most once. Payloads are written to a temporary
// file in the target directory and hard-linked into place; a link that fails
// because the target exists counts as success. Concurrent materializations of
// the same digest therefore never expose a partial file and never need a lock.
//
// # Failure
//
// Filesystem errors are not returned. Materialize methods return "" and the
// caller treats the media as not yet available.
package mediacache
