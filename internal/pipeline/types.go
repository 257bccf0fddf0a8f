package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/linkpipe/internal/progress"
)

// ErrNoFetcher is returned by New when no Fetcher is supplied.
var ErrNoFetcher = errors.New("pipeline: fetcher is required")

// Page is the markup of one successfully fetched seed.
type Page struct {
	// URL is the seed that was requested; links are resolved against it.
	URL        string
	Body       string
	StatusCode int
	Duration   time.Duration
}

// Fetcher retrieves a single page. Implementations must be safe for
// concurrent use and return an error for anything but HTTP 200.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Clock supplies timestamps for reports and progress events.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// StatusError reports a response whose status was not 200.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// StatusCode extracts the HTTP status carried by err, or 0 when err holds no
// *StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// FetchFailure records one seed that produced no page.
type FetchFailure struct {
	URL string `json:"url"`
	// StatusCode is 0 when no response was received.
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error"`
	Err        error  `json:"-"`
}

// Report summarizes a finished run. It never alters what the output sequence
// yields.
type Report struct {
	RunID         string         `json:"run_id"`
	Seeds         int            `json:"seeds"`
	Fetched       int            `json:"fetched"`
	FetchFailures []FetchFailure `json:"fetch_failures,omitempty"`
	ParseFailures int            `json:"parse_failures"`
	LinksFound    int            `json:"links_found"`
	LinksRejected int            `json:"links_rejected"`
	LinksEmitted  int            `json:"links_emitted"`
	// IdleTimedOut is set when the extract stage stopped waiting for pages;
	// output may be truncated.
	IdleTimedOut bool      `json:"idle_timed_out"`
	Canceled     bool      `json:"canceled"`
	Started      time.Time `json:"started"`
	Finished     time.Time `json:"finished"`
}

// Duration is the wall time of the run.
func (r Report) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Outcome names how the run ended.
func (r Report) Outcome() string {
	switch {
	case r.IdleTimedOut:
		return progress.OutcomeIdleTimeout
	case r.Canceled:
		return progress.OutcomeCanceled
	default:
		return progress.OutcomeComplete
	}
}
