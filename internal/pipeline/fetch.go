package pipeline

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/linkpipe/internal/metrics"
	"github.com/JakeFAU/linkpipe/internal/progress"
)

// fetchStage fetches every seed with at most cfg.Concurrency requests in
// flight and sends successful pages to out in completion order. out is closed
// exactly once, after the last fetch has returned.
func (p *Pipeline) fetchStage(ctx context.Context, st *runState, seeds []string, out chan<- Page) {
	defer close(out)

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for _, seed := range seeds {
		if ctx.Err() != nil {
			st.logger.Debug("fetch stage stopped before all seeds were submitted", zap.Error(ctx.Err()))
			break
		}
		g.Go(func() error {
			p.fetchOne(ctx, st, seed, out)
			return nil
		})
	}
	// fetchOne reports failures through the run report, never the group.
	_ = g.Wait()
}

func (p *Pipeline) fetchOne(ctx context.Context, st *runState, seed string, out chan<- Page) {
	ctx, span := p.tracer.Start(ctx, "pipeline.fetch", trace.WithAttributes(attribute.String("url.full", seed)))
	defer span.End()

	site := metrics.SanitizeSite(seed)
	p.emit(st, progress.Event{Stage: progress.StageFetchStart, URL: seed, Site: site})

	metrics.IncFetchesInFlight()
	start := time.Now()
	page, err := p.fetcher.Fetch(ctx, seed)
	elapsed := time.Since(start)
	metrics.DecFetchesInFlight()

	if err == nil && page.StatusCode != http.StatusOK {
		err = &StatusError{URL: seed, StatusCode: page.StatusCode}
	}
	if err != nil {
		p.fetchFailed(ctx, st, seed, site, elapsed, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return
	}

	page.URL = seed
	if page.Duration == 0 {
		page.Duration = elapsed
	}
	st.rec.fetched()
	span.SetAttributes(
		attribute.Int("http.response.status_code", page.StatusCode),
		attribute.Int("http.response.body.size", len(page.Body)),
	)
	p.emit(st, progress.Event{
		Stage:       progress.StageFetchDone,
		URL:         seed,
		Site:        site,
		Bytes:       int64(len(page.Body)),
		StatusClass: progress.ClassifyStatus(page.StatusCode),
		Dur:         page.Duration,
	})

	select {
	case out <- page:
	case <-ctx.Done():
		st.logger.Debug("page dropped after cancellation", zap.String("url", seed))
	}
}

func (p *Pipeline) fetchFailed(ctx context.Context, st *runState, seed, site string, elapsed time.Duration, err error) {
	status := StatusCode(err)
	st.rec.fetchFailed(FetchFailure{
		URL:        seed,
		StatusCode: status,
		Error:      err.Error(),
		Err:        err,
	})

	fields := []zap.Field{zap.String("url", seed), zap.Duration("elapsed", elapsed), zap.Error(err)}
	if status != 0 {
		fields = append(fields, zap.Int("status_code", status))
	}
	if ctx.Err() != nil {
		st.logger.Debug("fetch aborted", fields...)
	} else {
		st.logger.Warn("fetch failed", fields...)
	}

	p.emit(st, progress.Event{
		Stage:       progress.StageFetchDone,
		URL:         seed,
		Site:        site,
		StatusClass: progress.ClassifyStatus(status),
		Dur:         elapsed,
		Note:        err.Error(),
	})
}
