// Package store persists block documents in a single SQLite file.
//
// A Store wraps one connection to one document file. Load and Save each run
// in a single transaction that first calls schema.Ensure, so any store of an
// earlier version is migrated before it is read or written.
//
// # Save
//
// Save is a full replace: every row of blocks and images is deleted and the
// in-memory sequence is reinserted with position = index. Image blocks whose
// payload cannot be resolved are soft-dropped: no row is written but the
// position still advances. Any database error rolls the whole save back.
//
// # Load
//
// Rows are read in position order and decoded by one closed switch over the
// block kinds. Rows that cannot be decoded (unknown type, missing image row)
// are skipped and logged rather than failing the load. Image and render
// payloads are materialized into the document's media cache.
//
// # Database Configuration
//
//   - WAL mode, synchronous=NORMAL, busy_timeout=5000, foreign_keys=ON
//   - One open connection; pragmas apply to it for its lifetime
//   - Driver "sqlite3" (mattn/go-sqlite3, cgo) or "sqlite" (modernc.org/sqlite)
package store
