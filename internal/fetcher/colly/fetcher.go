// Package collyfetcher implements pipeline.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/linkpipe/internal/pipeline"
)

// DefaultTimeout bounds a single request when Config.Timeout is zero.
const DefaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// FollowRedirects lets the client chase 3xx responses. When false the
	// redirect itself is the result and fails the fetch.
	FollowRedirects bool
}

// Fetcher implements pipeline.Fetcher using the Colly collector. Only a 200
// response is a success.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. The collector backend is shared by every Fetch, so
// connection pooling spans the whole run.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := colly.NewCollector(colly.Async(false))
	// An empty value suppresses the header entirely.
	c.UserAgent = cfg.UserAgent
	// Pages are read whole; links near the end of large documents count.
	c.MaxBodySize = 0
	// Seeds are fetched as given, duplicates included.
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	// Error statuses come back through OnResponse so the code is kept.
	c.ParseHTTPErrorResponse = true
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	if !cfg.FollowRedirects {
		c.SetRedirectHandler(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		})
	}
	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP GET for url.
func (f *Fetcher) Fetch(ctx context.Context, url string) (pipeline.Page, error) {
	var (
		page     pipeline.Page
		fetchErr error
	)
	collector := f.buildCollector(ctx, time.Now(), &page, &fetchErr)
	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return pipeline.Page{}, err
	}
	if page.StatusCode != http.StatusOK {
		return pipeline.Page{}, &pipeline.StatusError{URL: url, StatusCode: page.StatusCode}
	}
	page.URL = url
	return page, nil
}

func (f *Fetcher) buildCollector(
	ctx context.Context,
	start time.Time,
	page *pipeline.Page,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	// The request carries ctx, so cancellation aborts it on the wire.
	collector.Context = ctx
	f.configureCollectorHooks(collector, start, page, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	page *pipeline.Page,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	})

	hooks.OnResponse(func(r *colly.Response) {
		*page = pipeline.Page{
			URL:        r.Request.URL.String(),
			Body:       string(r.Body),
			StatusCode: r.StatusCode,
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.Request != nil && r.StatusCode != 0 {
			*fetchErr = &pipeline.StatusError{URL: r.Request.URL.String(), StatusCode: r.StatusCode}
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("colly fetch canceled: %w", err)
	}
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("colly fetch canceled: %w", ctxErr)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
}
