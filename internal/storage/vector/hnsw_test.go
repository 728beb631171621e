package vector

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHNSWFixture(t *testing.T) *HNSWStore {
	t.Helper()
	s := NewHNSWStore()
	require.NoError(t, s.Create(context.Background(), &Index{Name: "docs", Dimension: 3, Distance: "cosine"}))
	return s
}

func TestHNSWStore_SearchOrder(t *testing.T) {
	ctx := context.Background()
	s := newHNSWFixture(t)
	require.NoError(t, s.Upsert(ctx, "docs", []*Vector{
		{ID: "x", Values: []float64{1, 0, 0}},
		{ID: "y", Values: []float64{0, 1, 0}},
		{ID: "xy", Values: []float64{1, 1, 0}},
	}))

	results, err := s.Search(ctx, "docs", []float64{1, 0, 0}, &SearchOptions{TopK: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "x", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "xy", results[1].ID)
}

func TestHNSWStore_OverwriteAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newHNSWFixture(t)
	require.NoError(t, s.Upsert(ctx, "docs", []*Vector{{ID: "a", Values: []float64{1, 0, 0}}}))
	require.NoError(t, s.Upsert(ctx, "docs", []*Vector{{ID: "a", Values: []float64{0, 0, 1}}}))

	results, err := s.Search(ctx, "docs", []float64{0, 0, 1}, &SearchOptions{TopK: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)

	require.NoError(t, s.Delete(ctx, "docs", []string{"a", "never-existed"}))
	results, err = s.Search(ctx, "docs", []float64{0, 0, 1}, &SearchOptions{TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSWStore_FilterFallsBackToExactScan(t *testing.T) {
	ctx := context.Background()
	s := newHNSWFixture(t)
	var vecs []*Vector
	for i := 0; i < 40; i++ {
		vecs = append(vecs, &Vector{
			ID:       fmt.Sprintf("n%d", i),
			Values:   []float64{1, float64(i) / 100, 0},
			Metadata: map[string]string{"session_id": "noise"},
		})
	}
	vecs = append(vecs, &Vector{ID: "mine", Values: []float64{0, 0, 1}, Metadata: map[string]string{"session_id": "me"}})
	require.NoError(t, s.Upsert(ctx, "docs", vecs))

	results, err := s.Search(ctx, "docs", []float64{1, 0, 0}, &SearchOptions{TopK: 1, Filter: Filter{"session_id": {"me"}}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mine", results[0].ID)

	n, err := s.DeleteByFilter(ctx, "docs", Filter{"session_id": {"noise"}})
	require.NoError(t, err)
	assert.Equal(t, 40, n)
}

func TestHNSWStore_Closed(t *testing.T) {
	s := newHNSWFixture(t)
	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}
