package remote

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestColumnCache(t *testing.T) *ColumnCache {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewColumnCache(client)
}

func TestColumnCache_PutGet(t *testing.T) {
	cache := newTestColumnCache(t)
	ctx := context.Background()

	cols := map[string]int64{FieldName: 101, FieldStatus: 105}
	require.NoError(t, cache.Put(ctx, 42, cols))

	got, err := cache.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, cols, got)
}

func TestColumnCache_MissIsNotAnError(t *testing.T) {
	cache := newTestColumnCache(t)

	got, err := cache.Get(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestColumnCache_Invalidate(t *testing.T) {
	cache := newTestColumnCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, 42, map[string]int64{FieldName: 101}))
	require.NoError(t, cache.Invalidate(ctx, 42))

	got, err := cache.Get(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestColumnCache_KeysAreScopedPerSheet(t *testing.T) {
	cache := newTestColumnCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, 1, map[string]int64{FieldName: 101}))
	require.NoError(t, cache.Put(ctx, 2, map[string]int64{FieldName: 201}))

	one, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	two, err := cache.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(101), one[FieldName])
	assert.Equal(t, int64(201), two[FieldName])
}

func TestColumnCache_NilClientDisablesCaching(t *testing.T) {
	cache := NewColumnCache(nil)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, 1, map[string]int64{FieldName: 101}))
	got, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, cache.Invalidate(ctx, 1))
}
