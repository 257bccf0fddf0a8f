package file

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkpipe/internal/output"
)

func TestWriterFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "links.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("stale\n"), 0o600))

	w, err := New(path, nil)
	require.NoError(t, err)
	assert.Equal(t, path, w.Path())

	ctx := context.Background()
	n, err := output.Drain(ctx, slices.Values([]string{"http://a.example/", "http://a.example/"}), w)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, w.Close(ctx))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://a.example/\nhttp://a.example/\n", string(got))
}

func TestWriterCreatesParents(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a", "b", "out.txt")
	w, err := New(path, nil)
	require.NoError(t, err)
	require.NoError(t, w.Close(context.Background()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestWriterStdout(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w, err := New(Stdout, &buf)
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), "http://b.example/"))
	assert.Empty(t, buf.String(), "buffered until close")
	require.NoError(t, w.Close(context.Background()))
	assert.Equal(t, "http://b.example/\n", buf.String())
}

func TestWriterDefaultPath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	w, err := New("", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPath, w.Path())
	require.NoError(t, w.Close(context.Background()))
	assert.FileExists(t, filepath.Join(dir, DefaultPath))
}

func TestWriterOpenError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	_, err := New(filepath.Join(blocker, "out.txt"), nil)
	require.Error(t, err)
}
