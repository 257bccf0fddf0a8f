// Package pipeline runs the two-stage link pipeline.
//
// The fetch stage downloads seed pages through a Fetcher with bounded
// parallelism and hands each successful page to the extract stage over a
// channel. The extract stage parses anchors, normalizes them against the page
// URL and streams the results to the caller. Each stage closes its outbound
// channel exactly once when it is done, so end of stream needs no sentinel.
//
// Failures never reach the output sequence. They are logged, counted in
// Prometheus and collected in the Report returned by Run.Wait.
package pipeline
