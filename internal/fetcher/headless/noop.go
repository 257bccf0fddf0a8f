package headless

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/linkpipe/internal/pipeline"
)

// ErrUnavailable is returned by Noop.
var ErrUnavailable = errors.New("headless fetcher not configured")

// Noop implements pipeline.Fetcher but always fails. It stands in when
// headless mode is selected but disabled.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch returns ErrUnavailable.
func (Noop) Fetch(_ context.Context, url string) (pipeline.Page, error) {
	return pipeline.Page{}, fmt.Errorf("fetch %s: %w", url, ErrUnavailable)
}
