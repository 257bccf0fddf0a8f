package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkpipe/internal/pipeline"
)

func TestNewChromedpDefaults(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	fetcher, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = fetcher.Close() })
	assert.Equal(t, 2, cap(fetcher.tabs))
	assert.Equal(t, DefaultNavigationTimeout, fetcher.cfg.NavigationTimeout)
	assert.Equal(t, DefaultSettle, fetcher.cfg.Settle)
	require.NotNil(t, fetcher.browser, "tabs share one browser context")

	unbounded, err := NewChromedp(Config{Settle: -1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = unbounded.Close() })
	assert.Nil(t, unbounded.tabs)
	assert.Negative(t, unbounded.cfg.Settle)
}

func TestNavTimeoutFallsBackToDefault(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{}
	assert.Equal(t, DefaultNavigationTimeout, fetcher.navTimeout())
	fetcher.cfg.NavigationTimeout = time.Second
	assert.Equal(t, time.Second, fetcher.navTimeout())
}

func TestAcquireTabHonorsContext(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{tabs: make(chan struct{}, 1)}
	require.NoError(t, fetcher.acquireTab(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, fetcher.acquireTab(ctx), context.DeadlineExceeded)

	fetcher.releaseTab()
	require.NoError(t, fetcher.acquireTab(context.Background()))
}

func TestFetchCanceledWhileWaitingForTab(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{tabs: make(chan struct{}, 1)}
	fetcher.tabs <- struct{}{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fetcher.Fetch(ctx, "http://a.example/")
	require.ErrorIs(t, err, context.Canceled)
}

func TestCloseStopsBrowser(t *testing.T) {
	t.Parallel()

	fetcher, err := NewChromedp(Config{})
	require.NoError(t, err)
	require.NoError(t, fetcher.Close())
	require.NoError(t, fetcher.Close())
	require.ErrorIs(t, fetcher.browser.Err(), context.Canceled)

	_, err = fetcher.Fetch(context.Background(), "http://a.example/")
	require.ErrorContains(t, err, "start browser")
	_, again := fetcher.Fetch(context.Background(), "http://a.example/")
	require.Equal(t, err, again, "the browser is started at most once")
}

func TestDocumentStatusKeepsFirstDocument(t *testing.T) {
	t.Parallel()

	doc := &documentStatus{}
	assert.Zero(t, doc.status())

	tests := []any{
		&network.EventResponseReceived{Type: network.ResourceTypeScript, Response: &network.Response{Status: 500}},
		&network.EventResponseReceived{Type: network.ResourceTypeDocument},
		&network.EventResponseReceived{Type: network.ResourceTypeDocument, Response: &network.Response{Status: 404}},
		&network.EventResponseReceived{Type: network.ResourceTypeDocument, Response: &network.Response{Status: 200}},
		"unrelated",
	}
	for _, ev := range tests {
		doc.listen(ev)
	}
	assert.Equal(t, http.StatusNotFound, doc.status())
}

func TestDocumentStatusRedirects(t *testing.T) {
	t.Parallel()

	events := []any{
		&network.EventRequestWillBeSent{Type: network.ResourceTypeDocument},
		&network.EventRequestWillBeSent{Type: network.ResourceTypeImage, RedirectResponse: &network.Response{Status: 302}},
		&network.EventRequestWillBeSent{Type: network.ResourceTypeDocument, RedirectResponse: &network.Response{Status: 301}},
		&network.EventResponseReceived{Type: network.ResourceTypeDocument, Response: &network.Response{Status: 200}},
	}

	tests := []struct {
		name   string
		follow bool
		want   int
	}{
		{name: "redirect fails the page", follow: false, want: http.StatusMovedPermanently},
		{name: "followed to the final document", follow: true, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc := &documentStatus{followRedirects: tt.follow}
			for _, ev := range events {
				doc.listen(ev)
			}
			assert.Equal(t, tt.want, doc.status())
		})
	}
}

func TestNoopFetcherError(t *testing.T) {
	t.Parallel()

	_, err := NewNoop().Fetch(context.Background(), "http://a.example/")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Zero(t, pipeline.StatusCode(err))
}
