// Package soarls is the language backend for Soar agents written in the
// Tcl based agent language. It keeps the documents an editor has open,
// re-evaluates each agent from its entry point after edits settle and
// answers position based queries from the latest results.
//
// # Pipeline
//
// Analysis happens in three steps:
//
//  1. Parse: every document is parsed into a syntax tree with recovery, so
//     a tree and its parse diagnostics always exist.
//
//  2. Evaluate: starting at an entry point, top-level commands are run in
//     a fresh interpreter session. source, proc, set and sp are observed as
//     they execute, building the procedure and variable tables, the reverse
//     indexes of call sites and reads, and the list of productions.
//
//  3. Query: the [QueryBuilder] answers definition, references, hover,
//     completion and the other editor requests from the latest completed
//     analysis of every entry point containing the file.
//
// # Usage
//
//	w, err := soarls.New("path/to/agent")
//	if err != nil { ... }
//	defer w.Close()
//
//	w.Open(uri, text, 1)
//	if _, err := w.AnalyzeNow(ctx); err != nil { ... }
//
//	q := w.Query()
//	locs := q.Definition(uri, soarls.Position{Line: 10, Character: 4})
//
// # Entry points
//
// A soarAgents.json manifest in the workspace root lists the entry points.
// Each enabled entry point has its own debounced analysis. Without a
// manifest, the first document opened becomes the only entry point.
//
// # Scheduling
//
// Edits are applied to the document store immediately. An edit to a file in
// the active entry point's latest file set schedules a run after the
// configured debounce interval; further edits restart the interval. Only one
// run executes at a time, and queries never wait for it.
package soarls
