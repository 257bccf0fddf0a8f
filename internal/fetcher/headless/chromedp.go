// Package headless fetches pages through a real browser so that anchors
// inserted by scripts are part of the markup handed to the extract stage.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/linkpipe/internal/pipeline"
)

// Defaults applied by NewChromedp.
const (
	DefaultNavigationTimeout = 45 * time.Second
	DefaultSettle            = 500 * time.Millisecond
)

// ErrNoDocumentStatus reports a navigation that finished without a document
// response, so there is no status to judge the page by.
var ErrNoDocumentStatus = errors.New("no document response status")

// Config controls the behavior of the headless fetcher.
type Config struct {
	// MaxParallel caps concurrent tabs. Zero leaves it to the pipeline.
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// ExecPath overrides the Chrome binary chromedp looks up.
	ExecPath string
	// Settle is how long scripts may keep mutating the DOM after body is
	// ready. Negative disables the wait.
	Settle time.Duration
	// FollowRedirects judges the page by its final document. When false the
	// first redirect status is the result and fails the fetch.
	FollowRedirects bool
}

// Fetcher implements pipeline.Fetcher using chromedp and headless Chrome.
// One browser serves every Fetch; each Fetch runs in its own tab.
type Fetcher struct {
	cfg  Config
	tabs chan struct{}

	allocCancel   context.CancelFunc
	browser       context.Context
	browserCancel context.CancelFunc
	startOnce     sync.Once
	startErr      error
}

// NewChromedp creates a headless fetcher backed by chromedp. The browser is
// started lazily on the first Fetch and shut down by Close.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = DefaultNavigationTimeout
	}
	if cfg.Settle == 0 {
		cfg.Settle = DefaultSettle
	}
	var tabs chan struct{}
	if cfg.MaxParallel > 0 {
		tabs = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	return &Fetcher{
		cfg:           cfg,
		tabs:          tabs,
		allocCancel:   allocCancel,
		browser:       browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (f *Fetcher) Close() error {
	f.browserCancel()
	f.allocCancel()
	return nil
}

// Fetch opens url in a new tab and returns the rendered DOM. The status of
// the document response must be 200.
func (f *Fetcher) Fetch(ctx context.Context, url string) (pipeline.Page, error) {
	if err := f.acquireTab(ctx); err != nil {
		return pipeline.Page{}, err
	}
	defer f.releaseTab()

	if err := f.start(); err != nil {
		return pipeline.Page{}, err
	}

	tabCtx, closeTab := chromedp.NewContext(f.browser)
	defer closeTab()
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()

	taskCtx, cancel := context.WithTimeout(tabCtx, f.navTimeout())
	defer cancel()

	doc := &documentStatus{followRedirects: f.cfg.FollowRedirects}
	chromedp.ListenTarget(taskCtx, doc.listen)

	start := time.Now()
	html, err := f.render(taskCtx, url)
	if err != nil {
		if ctx.Err() != nil {
			return pipeline.Page{}, fmt.Errorf("render %s: %w", url, ctx.Err())
		}
		return pipeline.Page{}, fmt.Errorf("render %s: %w", url, err)
	}

	status := doc.status()
	if status == 0 {
		return pipeline.Page{}, fmt.Errorf("render %s: %w", url, ErrNoDocumentStatus)
	}
	if status != http.StatusOK {
		return pipeline.Page{}, &pipeline.StatusError{URL: url, StatusCode: status}
	}
	return pipeline.Page{
		URL:        url,
		Body:       html,
		StatusCode: status,
		Duration:   time.Since(start),
	}, nil
}

// start launches the browser once. Running with no actions on the browser
// context allocates the process and its first target.
func (f *Fetcher) start() error {
	f.startOnce.Do(func() {
		if err := chromedp.Run(f.browser); err != nil {
			f.startErr = fmt.Errorf("start browser: %w", err)
		}
	})
	return f.startErr
}

// render returns the outer HTML of the document once body is ready and the
// settle delay has passed.
func (f *Fetcher) render(ctx context.Context, url string) (string, error) {
	var html string
	actions := []chromedp.Action{f.setup(), chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)}
	if f.cfg.Settle > 0 {
		actions = append(actions, chromedp.Sleep(f.cfg.Settle))
	}
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", err
	}
	return html, nil
}

// setup enables network events, which carry the document status, and applies
// the user agent.
func (f *Fetcher) setup() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network events: %w", err)
		}
		if f.cfg.UserAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("override user agent: %w", err)
		}
		return nil
	})
}

func (f *Fetcher) acquireTab(ctx context.Context) error {
	if f.tabs == nil {
		return nil
	}
	select {
	case f.tabs <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for browser tab: %w", ctx.Err())
	}
}

func (f *Fetcher) releaseTab() {
	if f.tabs != nil {
		<-f.tabs
	}
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return DefaultNavigationTimeout
}

// documentStatus keeps the status of the first document response, which
// belongs to the navigation itself rather than to a frame. Unless redirects
// are followed, a redirect seen before that response takes its place.
type documentStatus struct {
	followRedirects bool

	mu   sync.Mutex
	code int
}

func (d *documentStatus) listen(ev any) {
	var code int64
	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		if d.followRedirects || ev.Type != network.ResourceTypeDocument || ev.RedirectResponse == nil {
			return
		}
		code = ev.RedirectResponse.Status
	case *network.EventResponseReceived:
		if ev.Type != network.ResourceTypeDocument || ev.Response == nil {
			return
		}
		code = ev.Response.Status
	default:
		return
	}
	d.mu.Lock()
	if d.code == 0 {
		d.code = int(code)
	}
	d.mu.Unlock()
}

// status returns the captured status, or 0 when no document response was
// seen.
func (d *documentStatus) status() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.code
}
