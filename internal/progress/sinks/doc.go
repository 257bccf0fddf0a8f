// Package sinks implements progress.Sink consumers: structured logs,
// Prometheus collectors and a terminal progress bar.
package sinks
