// Package app wires configuration into long-lived services: the fetcher, the
// pipeline, the progress hub and the clients behind each output destination.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkpipe/internal/config"
	collyfetcher "github.com/JakeFAU/linkpipe/internal/fetcher/colly"
	"github.com/JakeFAU/linkpipe/internal/fetcher/headless"
	"github.com/JakeFAU/linkpipe/internal/output/postgres"
	redisout "github.com/JakeFAU/linkpipe/internal/output/redis"
	"github.com/JakeFAU/linkpipe/internal/pipeline"
	"github.com/JakeFAU/linkpipe/internal/progress"
	"github.com/JakeFAU/linkpipe/internal/progress/sinks"
	"github.com/JakeFAU/linkpipe/internal/telemetry"
)

// App holds the services shared by every run. It is built once at startup
// and closed when the command exits.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	pipeline *pipeline.Pipeline
	hub      *progress.Hub
	tracer   *sdktrace.TracerProvider
	stdout   io.Writer

	fetcher  pipeline.Fetcher
	gcs      *storage.Client
	pubsub   *pubsub.Client
	postgres *postgres.Pool
	redis    *goredis.Client
}

type options struct {
	fetcher    pipeline.Fetcher
	registerer prometheus.Registerer
	stdout     io.Writer
	stderr     io.Writer
}

// Option customizes New.
type Option func(*options)

// WithFetcher replaces the fetcher selected by fetcher.mode.
func WithFetcher(f pipeline.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithRegisterer registers progress collectors somewhere other than the
// default Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithOutput redirects the "-" output file and the progress bar.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(o *options) {
		o.stdout = stdout
		o.stderr = stderr
	}
}

// New builds an App from cfg. It fails fast when any enabled destination
// cannot be reached; whatever was opened before the failure is closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	o := options{stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{cfg: cfg, logger: logger, stdout: o.stdout}
	defer func() {
		if err != nil {
			if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
				logger.Warn("cleanup after failed init", zap.Error(cerr))
			}
		}
	}()

	if cfg.Telemetry.Enabled {
		a.tracer, err = telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Exporter:    cfg.Telemetry.Exporter,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
	}

	a.fetcher = o.fetcher
	if a.fetcher == nil {
		if a.fetcher, err = newFetcher(cfg.Fetcher, cfg.Pipeline, logger); err != nil {
			return nil, err
		}
	}

	hubSinks, err := newSinks(cfg.Progress, logger, o.registerer, o.stderr)
	if err != nil {
		return nil, err
	}
	a.hub = progress.NewHub(progress.Config{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.MaxBatchEvents,
		FlushInterval:  cfg.Progress.FlushInterval,
		SinkTimeout:    cfg.Progress.SinkTimeout,
		Logger:         logger,
	}, hubSinks...)

	a.pipeline, err = pipeline.New(a.fetcher, pipeline.Config{
		Concurrency:   cfg.Pipeline.Concurrency,
		IdleTimeout:   cfg.Pipeline.IdleTimeout,
		HandoffBuffer: cfg.Pipeline.HandoffBuffer,
		OutputBuffer:  cfg.Pipeline.OutputBuffer,
	}, pipeline.Options{Logger: logger, Emitter: a.hub})
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	if err := a.openDestinations(ctx); err != nil {
		return nil, err
	}

	logger.Info("application services initialized",
		zap.String("fetcher", cfg.Fetcher.Mode),
		zap.Int("concurrency", cfg.Pipeline.Concurrency),
		zap.Bool("gcs", a.gcs != nil),
		zap.Bool("pubsub", a.pubsub != nil),
		zap.Bool("postgres", a.postgres != nil),
		zap.Bool("redis", a.redis != nil),
	)
	return a, nil
}

func newFetcher(cfg config.FetcherConfig, pcfg config.PipelineConfig, logger *zap.Logger) (pipeline.Fetcher, error) {
	switch cfg.Mode {
	case config.FetcherHeadless:
		if !cfg.Headless.Enabled {
			logger.Warn("headless fetcher selected but disabled, every fetch will fail")
			return headless.NewNoop(), nil
		}
		f, err := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.UserAgent,
			NavigationTimeout: cfg.Headless.NavTimeout,
			ExecPath:          cfg.Headless.ExecPath,
			Settle:            cfg.Headless.Settle,
			FollowRedirects:   cfg.FollowRedirects,
		})
		if err != nil {
			return nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		return f, nil
	default:
		return collyfetcher.New(collyfetcher.Config{
			UserAgent:       cfg.UserAgent,
			Timeout:         pcfg.FetchTimeout,
			FollowRedirects: cfg.FollowRedirects,
		}), nil
	}
}

func newSinks(cfg config.ProgressConfig, logger *zap.Logger, reg prometheus.Registerer, stderr io.Writer) ([]progress.Sink, error) {
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("init progress metrics: %w", err)
	}
	out := []progress.Sink{promSink}
	if cfg.Log {
		out = append(out, sinks.NewLogSink(logger))
	}
	if cfg.Bar {
		out = append(out, sinks.NewBarSink(stderr))
	}
	return out, nil
}

func (a *App) openDestinations(ctx context.Context) error {
	ocfg := a.cfg.Output
	var err error
	if ocfg.GCS.Enabled {
		if a.gcs, err = storage.NewClient(ctx); err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
	}
	if ocfg.PubSub.Enabled {
		if a.pubsub, err = pubsub.NewClient(ctx, ocfg.PubSub.ProjectID); err != nil {
			return fmt.Errorf("init pubsub client: %w", err)
		}
	}
	if ocfg.Postgres.Enabled {
		a.postgres, err = postgres.Open(ctx, postgres.Config{
			DSN:         ocfg.Postgres.DSN,
			Table:       ocfg.Postgres.Table,
			MaxConns:    ocfg.Postgres.MaxConns,
			CreateTable: ocfg.Postgres.CreateTable,
		})
		if err != nil {
			return fmt.Errorf("init postgres output: %w", err)
		}
	}
	if ocfg.Redis.Enabled {
		if a.redis, err = redisout.Connect(ctx, a.redisConfig()); err != nil {
			return fmt.Errorf("init redis output: %w", err)
		}
	}
	return nil
}

func (a *App) redisConfig() redisout.Config {
	r := a.cfg.Output.Redis
	return redisout.Config{Addr: r.Addr, Password: r.Password, DB: r.DB, Prefix: r.Prefix, TTL: r.TTL}
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Pipeline returns the shared pipeline.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// Ready reports whether the remote destinations still answer.
func (a *App) Ready(ctx context.Context) error {
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}
	return nil
}

// Close flushes progress sinks and releases every client. It joins the errors
// of the individual shutdowns.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close progress hub: %w", err))
		}
	}
	if c, ok := a.fetcher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close fetcher: %w", err))
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gcs client: %w", err))
		}
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pubsub client: %w", err))
		}
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis client: %w", err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
	}
	a.logger.Info("application services shut down")
	return errors.Join(errs...)
}
