package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"episode-finder/internal/models"
)

func TestKeyIsStable(t *testing.T) {
	a := Key{Query: strPtr("liberty"), Tags: []models.Tag{"b", "a"}, MinLength: intPtr(10)}
	b := Key{Query: strPtr("liberty"), Tags: []models.Tag{"a", "b"}, MinLength: intPtr(10)}
	assert.Equal(t, a.String(), b.String())

	assert.NotEqual(t, Key{}.String(), Key{Query: strPtr("")}.String())
	assert.NotEqual(t, Key{MinLength: intPtr(5)}.String(), Key{MaxLength: intPtr(5)}.String())
	assert.NotEqual(t, Key{Tags: []models.Tag{"a,b"}}.String(), Key{Tags: []models.Tag{"a", "b"}}.String())
}

func TestResultPage(t *testing.T) {
	engine := newCountingEngine(6)
	full := Result{Hits: engine.hits, TotalHits: 6}

	tests := []struct {
		name   string
		offset int
		limit  *int
		want   []string
	}{
		{name: "all", want: []string{"6", "5", "4", "3", "2", "1"}},
		{name: "limit", limit: intPtr(2), want: []string{"6", "5"}},
		{name: "offset", offset: 4, want: []string{"2", "1"}},
		{name: "offset and limit", offset: 1, limit: intPtr(2), want: []string{"5", "4"}},
		{name: "limit past end", offset: 5, limit: intPtr(10), want: []string{"1"}},
		{name: "offset past end", offset: 7, want: []string{}},
		{name: "zero limit", limit: intPtr(0), want: []string{}},
		{name: "negative offset", offset: -3, limit: intPtr(1), want: []string{"6"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := full.Page(tt.offset, tt.limit)
			assert.Equal(t, tt.want, hitNumbers(page))
			assert.Equal(t, 6, page.TotalHits)
		})
	}
}

func TestResultCacheStoresOnlyUnpagedResults(t *testing.T) {
	cache := NewResultCache(2)
	require.True(t, cache.Enabled())

	calls := 0
	fetch := func(_ context.Context, limit, offset int) (Result, error) {
		calls++
		return Result{Hits: newCountingEngine(3).hits, TotalHits: 3}, nil
	}

	ctx := context.Background()
	_, err := cache.Search(ctx, Key{Query: strPtr("a")}, intPtr(1), 0, fetch)
	require.NoError(t, err)
	assert.Equal(t, 0, cache.Len())

	_, err = cache.Search(ctx, Key{Query: strPtr("a")}, nil, 0, fetch)
	require.NoError(t, err)
	_, err = cache.Search(ctx, Key{Query: strPtr("b")}, nil, 0, fetch)
	require.NoError(t, err)
	_, err = cache.Search(ctx, Key{Query: strPtr("c")}, nil, 0, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len(), "least recently used entry is evicted")
	assert.Equal(t, 4, calls)

	_, err = cache.Search(ctx, Key{Query: strPtr("a")}, nil, 0, fetch)
	require.NoError(t, err)
	assert.Equal(t, 5, calls, "evicted key is fetched again")

	cache.Purge()
	assert.Equal(t, 0, cache.Len())
}

func TestDisabledResultCache(t *testing.T) {
	cache := NewResultCache(-1)
	assert.False(t, cache.Enabled())
	assert.Equal(t, 0, cache.Len())
	cache.Purge()
}
