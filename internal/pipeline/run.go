package pipeline

import (
	"iter"
	"slices"
	"sync/atomic"
)

// Run is one pass of a Pipeline over its seeds.
type Run struct {
	st       *runState
	out      <-chan string
	done     chan struct{}
	report   Report
	consumed atomic.Bool
}

// ID returns the run identifier.
func (r *Run) ID() string {
	return r.st.id.String()
}

// All yields normalized URLs as the extract stage produces them, then joins
// both stages. Breaking out of the loop aborts the run and still joins. Only
// the first call yields anything.
func (r *Run) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		if !r.consumed.CompareAndSwap(false, true) {
			return
		}
		defer r.Close()
		for link := range r.out {
			if !yield(link) {
				return
			}
		}
		<-r.done
	}
}

// Collect drains All into a slice.
func (r *Run) Collect() []string {
	return slices.Collect(r.All())
}

// Wait blocks until both stages have finished and returns the run report.
// Output nobody has claimed through All is discarded so the run can finish.
func (r *Run) Wait() Report {
	if r.consumed.CompareAndSwap(false, true) {
		for range r.out {
		}
	}
	<-r.done
	rep := r.report
	rep.FetchFailures = slices.Clone(r.report.FetchFailures)
	return rep
}

// Close aborts the run if it is still going and waits for both stages to
// exit. It is safe to call more than once.
func (r *Run) Close() {
	r.st.cancel()
	<-r.done
}
