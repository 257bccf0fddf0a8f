package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JakeFAU/linkpipe/internal/pipeline"
	"github.com/JakeFAU/linkpipe/internal/progress"
)

const (
	// DefaultHistorySize is the number of reports a RunHistory keeps.
	DefaultHistorySize = 256
	defaultRunLimit    = 50
	maxRunLimit        = 256
)

// RunHistory keeps the reports of the most recent runs in memory.
type RunHistory struct {
	mu      sync.RWMutex
	size    int
	reports []pipeline.Report // oldest first
}

// NewRunHistory returns a history holding at most size reports.
func NewRunHistory(size int) *RunHistory {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &RunHistory{size: size}
}

// Add records report, evicting the oldest entry when full.
func (h *RunHistory) Add(report pipeline.Report) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.reports) == h.size {
		copy(h.reports, h.reports[1:])
		h.reports = h.reports[:len(h.reports)-1]
	}
	h.reports = append(h.reports, report)
}

// Get returns the report of runID.
func (h *RunHistory) Get(runID string) (pipeline.Report, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for i := len(h.reports) - 1; i >= 0; i-- {
		if h.reports[i].RunID == runID {
			return h.reports[i], true
		}
	}
	return pipeline.Report{}, false
}

// List returns reports newest first, optionally filtered by outcome.
func (h *RunHistory) List(outcome string, limit, offset int) []pipeline.Report {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]pipeline.Report, 0, min(limit, len(h.reports)))
	skipped := 0
	for i := len(h.reports) - 1; i >= 0 && len(out) < limit; i-- {
		rep := h.reports[i]
		if outcome != "" && rep.Outcome() != outcome {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, rep)
	}
	return out
}

// listRuns handles GET /v1/runs?outcome=&limit=&offset=. It returns
// {"runs": [...]} newest first, or 400 for invalid filters.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	outcome, err := parseOutcome(r.URL.Query().Get("outcome"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"runs": s.history.List(outcome, limit, offset),
	})
}

// getRun handles GET /v1/runs/{run_id}. It returns {"report": {...}}, 400 for
// malformed IDs, or 404 when the run is unknown or has been evicted.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID, err := parseRunID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	report, ok := s.history.Get(runID.String())
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"report": report})
}

func parseRunID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "run_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("run_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid run_id")
	}
	return id, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseOutcome(input string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "":
		return "", nil
	case progress.OutcomeComplete:
		return progress.OutcomeComplete, nil
	case progress.OutcomeIdleTimeout, "idle":
		return progress.OutcomeIdleTimeout, nil
	case progress.OutcomeCanceled, "cancelled":
		return progress.OutcomeCanceled, nil
	default:
		return "", errors.New("invalid outcome")
	}
}
