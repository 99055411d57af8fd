// Package render executes rendered-code blocks in an external interpreter.
//
// Each call gets its own temporary directory holding the user source and a
// small harness script. The interpreter is started as a separate process with
// the harness as its only argument; the harness exposes __blockdoc__ (output
// path and format) to the user code, which must write its artifact to
// __blockdoc__.renderer. User code never runs inside this process.
//
// Failures never surface as Go errors. They are reported in Result.Error so a
// caller can attach them to the block, and Result.Digest is always set so the
// caller can tell that this exact source, interpreter and format was already
// tried.
package render
