package pipeline

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkpipe/internal/clock/system"
	idgen "github.com/JakeFAU/linkpipe/internal/id/uuid"
	"github.com/JakeFAU/linkpipe/internal/metrics"
	"github.com/JakeFAU/linkpipe/internal/progress"
)

const tracerName = "github.com/JakeFAU/linkpipe/internal/pipeline"

// Defaults applied by DefaultConfig.
const (
	DefaultConcurrency   = 5
	DefaultIdleTimeout   = 30 * time.Second
	DefaultHandoffBuffer = 16
	DefaultOutputBuffer  = 256
)

// Config tunes a Pipeline.
type Config struct {
	// Concurrency caps outstanding fetches. Zero selects DefaultConcurrency.
	Concurrency int
	// IdleTimeout ends the extract stage when no page arrives in time.
	// Zero disables it.
	IdleTimeout time.Duration
	// HandoffBuffer and OutputBuffer size the two stage channels.
	HandoffBuffer int
	OutputBuffer  int
}

// DefaultConfig returns the stock pipeline tuning.
func DefaultConfig() Config {
	return Config{
		Concurrency:   DefaultConcurrency,
		IdleTimeout:   DefaultIdleTimeout,
		HandoffBuffer: DefaultHandoffBuffer,
		OutputBuffer:  DefaultOutputBuffer,
	}
}

// Options carries optional collaborators. Nil fields get working defaults.
type Options struct {
	Logger  *zap.Logger
	Emitter progress.Emitter
	Clock   Clock
	IDs     IDGenerator
}

// Pipeline fetches seed pages and streams the links found on them. A Pipeline
// is safe for concurrent use; every Start begins an independent run.
type Pipeline struct {
	fetcher Fetcher
	cfg     Config
	logger  *zap.Logger
	emitter progress.Emitter
	clock   Clock
	ids     IDGenerator
	tracer  trace.Tracer
}

// New validates cfg and builds a Pipeline around fetcher.
func New(fetcher Fetcher, cfg Config, opts Options) (*Pipeline, error) {
	if fetcher == nil {
		return nil, ErrNoFetcher
	}
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("pipeline: concurrency must be >= 0, got %d", cfg.Concurrency)
	}
	if cfg.IdleTimeout < 0 {
		return nil, fmt.Errorf("pipeline: idle timeout must be >= 0, got %s", cfg.IdleTimeout)
	}
	if cfg.HandoffBuffer < 0 || cfg.OutputBuffer < 0 {
		return nil, fmt.Errorf("pipeline: channel buffers must be >= 0")
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Emitter == nil {
		opts.Emitter = progress.Nop{}
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.IDs == nil {
		opts.IDs = idgen.New()
	}
	metrics.Init()
	return &Pipeline{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  opts.Logger,
		emitter: opts.Emitter,
		clock:   opts.Clock,
		ids:     opts.IDs,
		tracer:  otel.Tracer(tracerName),
	}, nil
}

// runState is shared by the two stages of one run.
type runState struct {
	id     uuid.UUID
	logger *zap.Logger
	rec    *recorder
	cancel context.CancelFunc
}

// Start launches the fetch and extract stages for seeds and returns at once.
// The caller must drain Run.All, or call Run.Wait or Run.Close, to release the
// run.
func (p *Pipeline) Start(ctx context.Context, seeds []string) *Run {
	id := p.newRunID()
	seeds = slices.Clone(seeds)

	runCtx, cancel := context.WithCancel(ctx)
	runCtx, span := p.tracer.Start(runCtx, "pipeline.run", trace.WithAttributes(
		attribute.String("linkpipe.run_id", id.String()),
		attribute.Int("linkpipe.seeds", len(seeds)),
	))

	st := &runState{
		id:     id,
		logger: p.logger.With(zap.String("run_id", id.String())),
		rec:    newRecorder(id.String(), len(seeds), p.clock.Now()),
		cancel: cancel,
	}
	handoff := make(chan Page, p.cfg.HandoffBuffer)
	out := make(chan string, p.cfg.OutputBuffer)
	run := &Run{st: st, out: out, done: make(chan struct{})}

	p.emit(st, progress.Event{Stage: progress.StageRunStart, Total: int64(len(seeds))})
	st.logger.Info("pipeline run started",
		zap.Int("seeds", len(seeds)),
		zap.Int("concurrency", p.cfg.Concurrency),
		zap.Duration("idle_timeout", p.cfg.IdleTimeout),
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.fetchStage(runCtx, st, seeds, handoff)
	}()
	go func() {
		defer wg.Done()
		p.extractStage(runCtx, st, handoff, out)
	}()
	go func() {
		wg.Wait()
		report := st.rec.finish(p.clock.Now(), runCtx.Err() != nil)
		cancel()

		span.SetAttributes(
			attribute.Int("linkpipe.fetched", report.Fetched),
			attribute.Int("linkpipe.fetch_failures", len(report.FetchFailures)),
			attribute.Int("linkpipe.links_emitted", report.LinksEmitted),
			attribute.String("linkpipe.outcome", report.Outcome()),
		)
		span.End()
		p.emit(st, progress.Event{
			Stage: progress.StageRunDone,
			Links: int64(report.LinksEmitted),
			Dur:   report.Duration(),
			Note:  report.Outcome(),
		})
		st.logger.Info("pipeline run finished",
			zap.String("outcome", report.Outcome()),
			zap.Int("seeds", report.Seeds),
			zap.Int("fetched", report.Fetched),
			zap.Int("fetch_failures", len(report.FetchFailures)),
			zap.Int("parse_failures", report.ParseFailures),
			zap.Int("links_emitted", report.LinksEmitted),
			zap.Int("links_rejected", report.LinksRejected),
			zap.Duration("duration", report.Duration()),
		)
		run.report = report
		close(run.done)
	}()
	return run
}

// Run is shorthand for Start(ctx, seeds).All(). The run begins when iteration
// does.
func (p *Pipeline) Run(ctx context.Context, seeds []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for link := range p.Start(ctx, seeds).All() {
			if !yield(link) {
				return
			}
		}
	}
}

func (p *Pipeline) newRunID() uuid.UUID {
	id, err := p.ids.NewRawID()
	if err != nil {
		p.logger.Warn("run id generation failed, using random id", zap.Error(err))
		return uuid.New()
	}
	return id
}

func (p *Pipeline) emit(st *runState, evt progress.Event) {
	evt.RunID = progress.UUIDToBytes(st.id)
	evt.TS = p.clock.Now()
	p.emitter.Emit(evt)
}
