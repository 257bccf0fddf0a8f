package seeds

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "empty", input: "", want: nil},
		{name: "blank and comments", input: "\n  \n# header\n   # indented\n", want: nil},
		{
			name:  "trims and keeps order",
			input: "  http://b.example/ \nhttp://a.example/\r\n",
			want:  []string{"http://b.example/", "http://a.example/"},
		},
		{
			name:  "keeps duplicates",
			input: "http://a.example/\nhttp://a.example/",
			want:  []string{"http://a.example/", "http://a.example/"},
		},
		{
			name:  "fragment is not a comment",
			input: "http://a.example/#top",
			want:  []string{"http://a.example/#top"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Read(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadLineTooLong(t *testing.T) {
	t.Parallel()

	_, err := Read(strings.NewReader(strings.Repeat("a", maxLine+1)))
	require.ErrorContains(t, err, "read seeds")
}

func TestGather(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "seeds.txt")
	require.NoError(t, os.WriteFile(path, []byte("http://file.example/\n"), 0o600))

	got, err := Gather(strings.NewReader("http://stdin.example/\n"), []string{path, "-"}, []string{" http://flag.example/ ", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"http://file.example/", "http://stdin.example/", "http://flag.example/"}, got)
}

func TestGatherErrors(t *testing.T) {
	t.Parallel()

	_, err := Gather(strings.NewReader("# nothing\n"), []string{"-"}, nil)
	require.ErrorIs(t, err, ErrNoSeeds)

	_, err = Gather(nil, nil, nil)
	require.ErrorIs(t, err, ErrNoSeeds)

	_, err = Gather(nil, []string{filepath.Join(t.TempDir(), "missing.txt")}, nil)
	require.ErrorContains(t, err, "open seed file")
}
