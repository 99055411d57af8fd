// Package block defines the in-memory block document: an ordered sequence of
// heterogeneous content units plus the render digest that keys their caches.
//
// This package contains type definitions only. Every other internal package
// imports block; block imports nothing internal.
//
// Key constraints:
//   - Block order in Document.Blocks is the only ordering signal
//   - The variant set is closed: Text, Image, ThreeScene, RenderedCode, Math
//   - Empty strings mean "absent" for optional fields
//   - RenderedCode staleness is detected by digest mismatch, never timestamps
package block
