package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/linkpipe/internal/progress"
)

// PrometheusSink derives run and fetch collectors from progress events.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsActive    prometheus.Gauge
	runDuration   *prometheus.HistogramVec
	runLinks      prometheus.Histogram

	fetches       *prometheus.CounterVec
	fetchBytes    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec

	active *runSet
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkpipe_runs_started_total",
			Help: "Pipeline runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkpipe_runs_completed_total",
			Help: "Pipeline runs finished, partitioned by outcome.",
		}, []string{"outcome"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "linkpipe_runs_active",
			Help: "Pipeline runs currently in flight.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "linkpipe_run_duration_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"outcome"}),
		runLinks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "linkpipe_run_links",
			Help:    "URLs emitted per finished run.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkpipe_fetches_total",
			Help: "Fetch completions partitioned by site and status class.",
		}, []string{"site", "status_class"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkpipe_fetch_bytes_total",
			Help: "Body bytes downloaded per site.",
		}, []string{"site"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "linkpipe_fetch_duration_seconds",
			Help:    "Fetch latency partitioned by status class.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"status_class"}),
		active: &runSet{ids: make(map[[16]byte]struct{})},
	}
	for _, c := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsActive,
		s.runDuration,
		s.runLinks,
		s.fetches,
		s.fetchBytes,
		s.fetchDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
			if s.active.add(evt.RunID) {
				s.runsActive.Inc()
			}
		case progress.StageRunDone:
			outcome := evt.Note
			if outcome == "" {
				outcome = progress.OutcomeComplete
			}
			s.runsCompleted.WithLabelValues(outcome).Inc()
			s.runDuration.WithLabelValues(outcome).Observe(evt.Dur.Seconds())
			s.runLinks.Observe(float64(evt.Links))
			if s.active.remove(evt.RunID) {
				s.runsActive.Dec()
			}
		case progress.StageFetchDone:
			s.observeFetch(evt)
		}
	}
	return nil
}

func (s *PrometheusSink) observeFetch(evt progress.Event) {
	site := evt.Site
	if site == "" {
		site = "unknown"
	}
	class := string(evt.StatusClass)
	s.fetches.WithLabelValues(site, class).Inc()
	if evt.Bytes > 0 {
		s.fetchBytes.WithLabelValues(site).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.fetchDuration.WithLabelValues(class).Observe(evt.Dur.Seconds())
	}
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runSet struct {
	mu  sync.Mutex
	ids map[[16]byte]struct{}
}

func (r *runSet) add(id [16]byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; ok {
		return false
	}
	r.ids[id] = struct{}{}
	return true
}

func (r *runSet) remove(id [16]byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; !ok {
		return false
	}
	delete(r.ids, id)
	return true
}
