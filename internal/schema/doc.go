// Package schema defines the relational layout of a block document store and
// brings stores of any earlier version up to CurrentVersion.
//
// # Version chain
//
//	0  legacy: blocks(id, position, type, text), no meta row, no type constraint
//	2  image_id FK, created_at/updated_at, type IN (text, image, three)
//	3  format, rendered_data, rendered_hash, error; type adds pyimage
//	4  type IN (text, three, pyimage, latex); image rows are dropped
//	5  type re-admits image, backed by the images table
//
// A store reporting version 1 takes the step to 2.
//
// # Migration steps
//
// Each pending step runs in the caller's transaction and replays one
// structural change: the live blocks table is renamed aside, recreated with
// the step's columns and CHECK constraint, the columns both tables share are
// copied forward for rows whose type survives, and the old table is dropped.
// Rows whose type the step no longer allows are dropped and counted in
// Result.Dropped. A dangling image_id is copied as NULL.
//
// Any failure aborts Ensure; rolling back the caller's transaction leaves the
// store at its last committed version.
package schema
