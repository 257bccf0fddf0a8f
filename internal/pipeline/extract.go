package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkpipe/internal/extract"
	"github.com/JakeFAU/linkpipe/internal/metrics"
	"github.com/JakeFAU/linkpipe/internal/normalize"
	"github.com/JakeFAU/linkpipe/internal/progress"
)

// extractStage turns pages from in into normalized URLs on out. It returns
// when in is closed, when the run is canceled, or when no page arrives within
// the idle timeout. out is closed exactly once on return.
//
// An idle timeout ends the stage as if in had been closed, so a slow fetch
// stage can truncate the output. The run report flags it and the run is
// canceled so the fetch stage does not block on a reader that is gone.
func (p *Pipeline) extractStage(ctx context.Context, st *runState, in <-chan Page, out chan<- string) {
	defer close(out)

	var idle <-chan time.Time
	var timer *time.Timer
	if p.cfg.IdleTimeout > 0 {
		timer = time.NewTimer(p.cfg.IdleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case page, ok := <-in:
			if !ok {
				return
			}
			if !p.extractPage(ctx, st, page, out) {
				return
			}
			if timer != nil {
				timer.Reset(p.cfg.IdleTimeout)
			}
		case <-idle:
			st.rec.idleTimedOut()
			metrics.ObserveIdleTimeout()
			st.logger.Warn("extract stage idle timeout, output may be truncated",
				zap.Duration("idle_timeout", p.cfg.IdleTimeout))
			st.cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// extractPage emits every accepted link of page in anchor order. It returns
// false if the run was canceled mid-page.
func (p *Pipeline) extractPage(ctx context.Context, st *runState, page Page, out chan<- string) bool {
	ctx, span := p.tracer.Start(ctx, "pipeline.extract", trace.WithAttributes(attribute.String("url.full", page.URL)))
	defer span.End()

	refs, err := extract.Parse(page.Body)
	if err != nil {
		st.rec.parseFailed()
		metrics.ObserveParseFailure()
		st.logger.Warn("markup parse failed", zap.String("url", page.URL), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		p.emit(st, progress.Event{Stage: progress.StagePageDone, URL: page.URL, Site: metrics.SanitizeSite(page.URL), Note: err.Error()})
		return true
	}

	emitted, rejected := 0, 0
	completed := true
links:
	for _, ref := range refs {
		link, ok := normalize.Normalize(ref, page.URL)
		if !ok {
			rejected++
			continue
		}
		select {
		case out <- link:
			emitted++
		case <-ctx.Done():
			completed = false
			break links
		}
	}

	st.rec.links(len(refs), rejected, emitted)
	metrics.ObserveLinks(metrics.LinkEmitted, emitted)
	metrics.ObserveLinks(metrics.LinkRejected, rejected)
	span.SetAttributes(
		attribute.Int("linkpipe.links_found", len(refs)),
		attribute.Int("linkpipe.links_emitted", emitted),
	)
	p.emit(st, progress.Event{
		Stage: progress.StagePageDone,
		URL:   page.URL,
		Site:  metrics.SanitizeSite(page.URL),
		Links: int64(emitted),
	})
	return completed
}
