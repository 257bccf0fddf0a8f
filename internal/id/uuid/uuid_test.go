package uuid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	idgen "github.com/JakeFAU/linkpipe/internal/id/uuid"
	"github.com/JakeFAU/linkpipe/internal/pipeline"
)

var _ pipeline.IDGenerator = idgen.New()

func TestNewRawIDIsOrderedV7(t *testing.T) {
	t.Parallel()

	gen := idgen.New()
	prev, err := gen.NewRawID()
	require.NoError(t, err)
	assert.EqualValues(t, 7, prev.Version())

	for range 100 {
		next, err := gen.NewRawID()
		require.NoError(t, err)
		require.NotEqual(t, prev, next)
		require.Less(t, prev.String(), next.String())
		prev = next
	}
}
