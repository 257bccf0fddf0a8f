package sinks

import (
	"context"
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/JakeFAU/linkpipe/internal/progress"
)

// BarSink renders fetch completions as a terminal progress bar.
type BarSink struct {
	bar   *progressbar.ProgressBar
	links int64
}

// NewBarSink draws to w. The bar is sized on the first RUN_START event.
func NewBarSink(w io.Writer) *BarSink {
	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("fetching"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return &BarSink{bar: bar}
}

// Consume advances the bar for each finished fetch.
func (s *BarSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.bar.ChangeMax64(evt.Total)
		case progress.StageFetchDone:
			if err := s.bar.Add(1); err != nil {
				return fmt.Errorf("advance progress bar: %w", err)
			}
		case progress.StagePageDone:
			s.links += evt.Links
			s.bar.Describe(fmt.Sprintf("fetching (%d links)", s.links))
		case progress.StageRunDone:
			if err := s.bar.Finish(); err != nil {
				return fmt.Errorf("finish progress bar: %w", err)
			}
		}
	}
	return nil
}

// Close completes the bar if the run never reported done.
func (s *BarSink) Close(context.Context) error {
	if s.bar.IsFinished() {
		return nil
	}
	if err := s.bar.Finish(); err != nil {
		return fmt.Errorf("finish progress bar: %w", err)
	}
	return nil
}
