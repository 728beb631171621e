package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct{ calls int }

func (s *stubProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	s.calls++
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = []float64{float64(len(t))}
	}
	return out, nil
}

func (s *stubProvider) Model() string  { return "stub" }
func (s *stubProvider) Dimension() int { return 1 }

func TestEinoEmbedder(t *testing.T) {
	p := &stubProvider{}
	e := NewEinoEmbedder(p)

	vecs, err := e.EmbedStrings(context.Background(), []string{"ab", "abcd"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{2}, {4}}, vecs)

	vecs, err = e.EmbedStrings(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, "stub", e.Model())
}
