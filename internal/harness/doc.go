// Package harness runs document scenarios end to end.
//
// A scenario seeds a document, drives it through persistence and render
// operations, and checks the resulting document and operation trace.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: render_then_reload
//	description: "Renders survive a relational round trip"
//	driver: sqlite3
//	document: |
//	  # BLOCKDOC v2
//	  blocks:
//	    - type: pyimage
//	      source: plot()
//	      format: svg
//	renders:
//	  plot(): { payload: "<svg/>" }
//	steps:
//	  - op: render
//	    interpreter: /usr/bin/python3
//	  - op: save
//	  - op: load
//	assertions:
//	  - type: render_status
//	    index: 0
//	    status: ok
//
// The document field uses the text document format. Renders are stubbed by
// source text, so scenarios never start an interpreter.
//
// # Operations
//
//   - save: persist through the format dispatcher to a relational file
//   - load: reload the relational file
//   - export: write the text format
//   - import: reload the text file
//   - render: refresh stale renders (force re-renders everything)
//   - migrate: open the relational file and bring its schema up to date
//
// # Assertion Types
//
//   - block_count: the final document holds exactly count blocks
//   - block_kinds: the final document's kinds in order
//   - render_status: block index is ok, error or pending
//   - trace_order: operations appear in the given order
//   - trace_count: an operation appears exactly count times
//
// # Golden Traces
//
// RunWithGolden compares the trace against testdata/golden/<name>.golden.
// Traces carry no paths or timestamps, so they are stable across runs.
// Regenerate with:
//
//	go test ./internal/harness -update
package harness
