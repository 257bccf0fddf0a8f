package redis

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkpipe/internal/output"
)

type fakeClient struct {
	lists   map[string][]string
	expires map[string]time.Duration
	err     error
}

func newFakeClient() *fakeClient {
	return &fakeClient{lists: map[string][]string{}, expires: map[string]time.Duration{}}
}

func (f *fakeClient) RPush(ctx context.Context, key string, values ...any) *redis.IntCmd {
	if f.err != nil {
		cmd := redis.NewIntCmd(ctx)
		cmd.SetErr(f.err)
		return cmd
	}
	for _, v := range values {
		f.lists[key] = append(f.lists[key], v.(string))
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeClient) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.expires[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func TestWriterPushesInOrder(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	w, err := New(client, Config{Prefix: "links:", TTL: time.Hour}, "run-1")
	require.NoError(t, err)

	links := []string{"http://a.example/", "http://b.example/", "http://a.example/"}
	n, err := output.Drain(context.Background(), slices.Values(links), w)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, w.Close(context.Background()))

	assert.Equal(t, links, client.lists["links:run-1"])
	assert.Equal(t, time.Hour, client.expires["links:run-1"])
}

func TestWriterNoTTL(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	w, err := New(client, Config{}, "run-2")
	require.NoError(t, err)
	require.NoError(t, w.Close(context.Background()))
	assert.Empty(t, client.expires)
}

func TestWriterPushError(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.err = errors.New("READONLY")
	w, err := New(client, Config{}, "run-3")
	require.NoError(t, err)
	require.ErrorContains(t, w.Write(context.Background(), "http://a.example/"), "READONLY")
}

func TestKeyAndValidation(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultPrefix+":r", Key("", "r"))
	assert.Equal(t, "x:r", Key("x", "r"))

	_, err := New(nil, Config{}, "r")
	require.Error(t, err)
	_, err = New(newFakeClient(), Config{}, "")
	require.ErrorContains(t, err, "run id")

	_, err = Connect(context.Background(), Config{})
	require.ErrorContains(t, err, "addr is required")
}
