package pipeline

import (
	"slices"
	"sync"
	"time"
)

// recorder accumulates a Report while both stages write to it.
type recorder struct {
	mu     sync.Mutex
	report Report
}

func newRecorder(runID string, seeds int, started time.Time) *recorder {
	return &recorder{report: Report{RunID: runID, Seeds: seeds, Started: started}}
}

func (r *recorder) fetched() {
	r.mu.Lock()
	r.report.Fetched++
	r.mu.Unlock()
}

func (r *recorder) fetchFailed(f FetchFailure) {
	r.mu.Lock()
	r.report.FetchFailures = append(r.report.FetchFailures, f)
	r.mu.Unlock()
}

func (r *recorder) parseFailed() {
	r.mu.Lock()
	r.report.ParseFailures++
	r.mu.Unlock()
}

func (r *recorder) links(found, rejected, emitted int) {
	r.mu.Lock()
	r.report.LinksFound += found
	r.report.LinksRejected += rejected
	r.report.LinksEmitted += emitted
	r.mu.Unlock()
}

func (r *recorder) idleTimedOut() {
	r.mu.Lock()
	r.report.IdleTimedOut = true
	r.mu.Unlock()
}

// finish stamps the end of the run and returns a copy of the report.
func (r *recorder) finish(at time.Time, canceled bool) Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Finished = at
	r.report.Canceled = canceled && !r.report.IdleTimedOut
	out := r.report
	out.FetchFailures = slices.Clone(r.report.FetchFailures)
	return out
}
