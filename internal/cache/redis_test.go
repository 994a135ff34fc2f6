package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*miniredis.Miniredis, *RedisAdapter) {
	t.Helper()
	mr := miniredis.RunT(t)
	a, err := NewRedisAdapter("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return mr, a
}

func TestRedisAdapterRoundTrip(t *testing.T) {
	_, a := setup(t)
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, "k", []byte("v"), 0))
	got, err := a.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, a.Delete(ctx, "k"))
	_, err = a.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisAdapterTTL(t *testing.T) {
	mr, a := setup(t)
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, "leg", []byte("1"), time.Minute))
	mr.FastForward(2 * time.Minute)
	_, err := a.Get(ctx, "leg")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestJSONHelpers(t *testing.T) {
	_, a := setup(t)
	ctx := context.Background()

	type leg struct{ Km float64 }
	require.NoError(t, SetJSON(ctx, a, "j", leg{Km: 2.5}, 0))
	var out leg
	require.NoError(t, GetJSON(ctx, a, "j", &out))
	assert.Equal(t, 2.5, out.Km)
}

func TestPingAndBadURL(t *testing.T) {
	_, a := setup(t)
	require.NoError(t, a.Ping(context.Background()))

	_, err := NewRedisAdapter("://nope")
	assert.Error(t, err)
}
