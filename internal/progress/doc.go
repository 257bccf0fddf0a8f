// Package progress carries run and fetch milestones from the pipeline to
// pluggable sinks. Emitters never block: a Hub buffers events, batches them on
// a background goroutine and forwards each batch to logging, Prometheus or a
// terminal progress bar.
package progress
