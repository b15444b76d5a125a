package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/memvec/distance"
)

func TestHashEmbedderDeterministic(t *testing.T) {
	ctx := context.Background()
	e := NewHash(64)

	a, err := e.Embed(ctx, []string{"the deploy runbook lives in ops"})
	require.NoError(t, err)
	b, err := e.Embed(ctx, []string{"the deploy runbook lives in ops"})
	require.NoError(t, err)

	// Bit-identical, not merely close.
	assert.Equal(t, a[0], b[0])
}

func TestHashEmbedderDimension(t *testing.T) {
	ctx := context.Background()
	e := NewHash(32)
	assert.Equal(t, 32, e.Dimension())

	vecs, err := e.Embed(ctx, []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, 32)
	}
}

func TestHashEmbedderNormalized(t *testing.T) {
	ctx := context.Background()
	e := NewHash(64)

	vecs, err := e.Embed(ctx, []string{"some text with several distinct tokens"})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, distance.Magnitude(vecs[0]), 1e-4)
}

func TestHashEmbedderEmptyText(t *testing.T) {
	ctx := context.Background()
	e := NewHash(16)

	vecs, err := e.Embed(ctx, []string{""})
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 16), vecs[0], "no tokens embeds to the zero vector")
}

func TestHashEmbedderCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	e := NewHash(64)

	a, err := e.Embed(ctx, []string{"Hello World"})
	require.NoError(t, err)
	b, err := e.Embed(ctx, []string{"hello world"})
	require.NoError(t, err)
	assert.Equal(t, a[0], b[0])
}

func TestHashEmbedderDistinctTexts(t *testing.T) {
	ctx := context.Background()
	e := NewHash(128)

	vecs, err := e.Embed(ctx, []string{"database migrations", "birthday party planning"})
	require.NoError(t, err)

	sim := distance.Dot(vecs[0], vecs[1])
	assert.Less(t, float64(sim), 0.9, "unrelated texts should not be near-identical")
}
