package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkpipe/internal/progress"
)

// TestPrometheusSinkRecordsRunAndFetches ensures counters follow the run lifecycle.
func TestPrometheusSinkRecordsRunAndFetches(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart, Total: 2},
		{
			RunID:       runID,
			TS:          now,
			Stage:       progress.StageFetchDone,
			URL:         "http://a.example/blog/",
			Site:        "a.example",
			Bytes:       2048,
			StatusClass: progress.Status2xx,
			Dur:         150 * time.Millisecond,
		},
		{
			RunID:       runID,
			TS:          now,
			Stage:       progress.StageFetchDone,
			URL:         "http://b.example/missing",
			Site:        "b.example",
			StatusClass: progress.Status4xx,
			Dur:         20 * time.Millisecond,
		},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsActive))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.fetches.WithLabelValues("a.example", "2xx")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.fetches.WithLabelValues("b.example", "4xx")))
	require.InDelta(t, 2048.0, testutil.ToFloat64(sink.fetchBytes.WithLabelValues("a.example")), 1e-9)

	done := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunDone, Links: 3, Dur: time.Second, Note: progress.OutcomeComplete},
		{RunID: runID, TS: now, Stage: progress.StageRunDone, Links: 3, Dur: time.Second, Note: progress.OutcomeComplete},
	}
	require.NoError(t, sink.Consume(context.Background(), done))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues(progress.OutcomeComplete)))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsActive))
	require.Equal(t, 1, testutil.CollectAndCount(sink.runDuration, "linkpipe_run_duration_seconds"))
}

func TestPrometheusSinkDefaultsOutcome(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	evt := progress.Event{RunID: progress.UUIDToBytes(uuid.New()), TS: time.Now(), Stage: progress.StageRunDone}
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{evt}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues(progress.OutcomeComplete)))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsActive))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.ErrorContains(t, err, "register progress collector")
}
