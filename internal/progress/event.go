package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage names the pipeline milestone an Event reports.
type Stage string

// Supported progress stages.
const (
	StageRunStart   Stage = "RUN_START"
	StageRunDone    Stage = "RUN_DONE"
	StageFetchStart Stage = "FETCH_START"
	StageFetchDone  Stage = "FETCH_DONE"
	StagePageDone   Stage = "PAGE_DONE"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Status classes recorded on fetch completions. StatusOther also covers
// transport failures where no response arrived.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Run outcomes carried in the Note of a RUN_DONE event.
const (
	OutcomeComplete    = "complete"
	OutcomeIdleTimeout = "idle_timeout"
	OutcomeCanceled    = "canceled"
)

// Event is one progress milestone of a pipeline run.
type Event struct {
	// RunID is the 16-byte UUID of the run.
	RunID [16]byte
	TS    time.Time
	Stage Stage
	// Site is the lowercase host of URL for fetch and page events.
	Site string
	URL  string
	// Bytes is the body size of a fetched page.
	Bytes int64
	// Links counts emitted URLs for page events and the run total on RUN_DONE.
	Links int64
	// Total is the seed count on RUN_START.
	Total       int64
	StatusClass StatusClass
	Dur         time.Duration
	// Note holds short context such as error text or the run outcome.
	Note string
}

// Validate rejects events that sinks cannot attribute.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageFetchStart, StagePageDone:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	case StageFetchDone:
		if e.URL == "" {
			return errors.New("fetch done requires url")
		}
		if e.StatusClass == "" {
			return errors.New("fetch done requires status class")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID returns the run ID as a uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	return [16]byte(id)
}

// ClassifyStatus groups HTTP status codes. Zero means no response.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
