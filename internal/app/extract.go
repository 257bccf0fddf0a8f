package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkpipe/internal/output"
	"github.com/JakeFAU/linkpipe/internal/output/file"
	gcsout "github.com/JakeFAU/linkpipe/internal/output/gcs"
	pubsubout "github.com/JakeFAU/linkpipe/internal/output/pubsub"
	redisout "github.com/JakeFAU/linkpipe/internal/output/redis"
	"github.com/JakeFAU/linkpipe/internal/pipeline"
)

// Result describes one finished extraction.
type Result struct {
	Report pipeline.Report
	// Written counts links delivered to every destination.
	Written int
	// Path is where the output file was written, or "-" for stdout.
	Path string
}

// Extract runs the pipeline over seeds and writes each link, in the order it
// is produced, to the output file and every enabled destination. outPath
// overrides output.file when non-empty.
//
// A write failure aborts the run. The report is still returned alongside the
// error.
func (a *App) Extract(ctx context.Context, seeds []string, outPath string) (Result, error) {
	if outPath == "" {
		outPath = a.cfg.Output.File
	}
	fw, err := file.New(outPath, a.stdout)
	if err != nil {
		return Result{}, err
	}

	run := a.pipeline.Start(ctx, seeds)
	writers, err := a.runWriters(ctx, run.ID())
	writers = append([]output.Writer{fw}, writers...)
	if err != nil {
		run.Close()
		return Result{Report: run.Wait(), Path: fw.Path()}, errors.Join(err, output.CloseAll(ctx, writers...))
	}

	written, drainErr := output.Drain(ctx, run.All(), writers...)
	report := run.Wait()
	// Destinations are finalized even when the caller has gone away.
	closeErr := output.CloseAll(context.WithoutCancel(ctx), writers...)

	res := Result{Report: report, Written: written, Path: fw.Path()}
	a.logger.Info("extraction finished",
		zap.String("run_id", report.RunID),
		zap.String("outcome", report.Outcome()),
		zap.Int("seeds", report.Seeds),
		zap.Int("fetch_failures", len(report.FetchFailures)),
		zap.Int("links_written", written),
		zap.String("output", res.Path),
		zap.Duration("duration", report.Duration()),
	)
	if err := errors.Join(drainErr, closeErr); err != nil {
		return res, fmt.Errorf("write links: %w", err)
	}
	return res, nil
}

// runWriters opens the per-run writers of every enabled remote destination.
// On error the writers opened so far are returned so they can be closed.
func (a *App) runWriters(ctx context.Context, runID string) ([]output.Writer, error) {
	ocfg := a.cfg.Output
	var writers []output.Writer
	if a.gcs != nil {
		w, err := gcsout.New(a.gcs, gcsout.Config{Bucket: ocfg.GCS.Bucket, Prefix: ocfg.GCS.Prefix}, runID)
		if err != nil {
			return writers, fmt.Errorf("open gcs writer: %w", err)
		}
		writers = append(writers, w)
	}
	if a.pubsub != nil {
		w, err := pubsubout.New(ctx, a.pubsub, pubsubout.Config{Topic: ocfg.PubSub.Topic}, runID)
		if err != nil {
			return writers, fmt.Errorf("open pubsub writer: %w", err)
		}
		writers = append(writers, w)
	}
	if a.postgres != nil {
		w, err := a.postgres.Writer(runID)
		if err != nil {
			return writers, fmt.Errorf("open postgres writer: %w", err)
		}
		writers = append(writers, w)
	}
	if a.redis != nil {
		w, err := redisout.New(a.redis, a.redisConfig(), runID)
		if err != nil {
			return writers, fmt.Errorf("open redis writer: %w", err)
		}
		writers = append(writers, w)
	}
	return writers, nil
}
