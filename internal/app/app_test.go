package app

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/linkpipe/internal/config"
	collyfetcher "github.com/JakeFAU/linkpipe/internal/fetcher/colly"
	"github.com/JakeFAU/linkpipe/internal/fetcher/headless"
	pubsubout "github.com/JakeFAU/linkpipe/internal/output/pubsub"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Output.File = filepath.Join(t.TempDir(), "links.txt")
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config, opts ...Option) *App {
	t.Helper()
	opts = append([]Option{WithRegisterer(prometheus.NewRegistry())}, opts...)
	a, err := New(context.Background(), cfg, zap.NewNop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<a href="/b">b</a><a href="mailto:x@example.com">m</a><a href="https://other.example/x">x</a>`)
	})
	mux.HandleFunc("/missing", http.NotFound)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestExtractWritesOutputFile(t *testing.T) {
	site := newSite(t)
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	res, err := a.Extract(context.Background(), []string{site.URL + "/a", site.URL + "/missing"}, "")
	require.NoError(t, err)

	assert.Equal(t, cfg.Output.File, res.Path)
	assert.Equal(t, 2, res.Written)
	assert.Equal(t, 2, res.Report.Seeds)
	assert.Equal(t, 1, res.Report.Fetched)
	require.Len(t, res.Report.FetchFailures, 1)
	assert.Equal(t, http.StatusNotFound, res.Report.FetchFailures[0].StatusCode)

	data, err := os.ReadFile(cfg.Output.File)
	require.NoError(t, err)
	assert.Equal(t, site.URL+"/b\nhttps://other.example/x\n", string(data))
}

func TestExtractOutPathOverride(t *testing.T) {
	site := newSite(t)
	var stdout bytes.Buffer
	a := newTestApp(t, testConfig(t), WithOutput(&stdout, &bytes.Buffer{}))

	res, err := a.Extract(context.Background(), []string{site.URL + "/a"}, "-")
	require.NoError(t, err)
	assert.Equal(t, "-", res.Path)
	assert.Equal(t, site.URL+"/b\nhttps://other.example/x\n", stdout.String())
}

func TestExtractNoLinksStillCreatesFile(t *testing.T) {
	site := newSite(t)
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	res, err := a.Extract(context.Background(), []string{site.URL + "/missing"}, "")
	require.NoError(t, err)
	assert.Zero(t, res.Written)

	data, err := os.ReadFile(cfg.Output.File)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestExtractPublishesToPubSub(t *testing.T) {
	site := newSite(t)
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	_, err = client.CreateTopic(ctx, "links")
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.Output.PubSub = config.PubSubConfig{Enabled: true, ProjectID: "project-id", Topic: "links"}
	a := newTestApp(t, cfg)
	// The client normally comes from New; point it at the fake server instead.
	a.pubsub = client

	res, err := a.Extract(ctx, []string{site.URL + "/a"}, "")
	require.NoError(t, err)

	msgs := srv.Messages()
	require.Len(t, msgs, 2)
	got := []string{string(msgs[0].Data), string(msgs[1].Data)}
	assert.ElementsMatch(t, []string{site.URL + "/b", "https://other.example/x"}, got)
	for _, m := range msgs {
		assert.Equal(t, res.Report.RunID, m.Attributes[pubsubout.RunIDAttribute])
		assert.Equal(t, res.Report.RunID, m.OrderingKey)
	}
}

func TestExtractFailsWhenDestinationMissing(t *testing.T) {
	site := newSite(t)
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.Output.PubSub = config.PubSubConfig{Enabled: true, ProjectID: "project-id", Topic: "absent"}
	a := newTestApp(t, cfg)
	a.pubsub = client

	res, err := a.Extract(ctx, []string{site.URL + "/a"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
	assert.NotEmpty(t, res.Report.RunID)
}

func TestNewFetcherModes(t *testing.T) {
	t.Parallel()

	pcfg := config.PipelineConfig{FetchTimeout: 0}

	f, err := newFetcher(config.FetcherConfig{Mode: config.FetcherColly}, pcfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &collyfetcher.Fetcher{}, f)

	f, err = newFetcher(config.FetcherConfig{Mode: config.FetcherHeadless}, pcfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &headless.Noop{}, f)
	_, err = f.Fetch(context.Background(), "http://a.example/")
	require.ErrorIs(t, err, headless.ErrUnavailable)
}

func TestNewFailsOnBadPostgresDSN(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.Postgres = config.PostgresConfig{Enabled: true, DSN: "postgres://user@localhost:notaport/db"}

	_, err := New(context.Background(), cfg, zap.NewNop(), WithRegisterer(prometheus.NewRegistry()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init postgres output")
}

func TestReadyWithoutRemoteDestinations(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	require.NoError(t, a.Ready(context.Background()))
	assert.NotNil(t, a.Pipeline())
	assert.NotNil(t, a.Logger())
	assert.Equal(t, config.FetcherColly, a.Config().Fetcher.Mode)
}
