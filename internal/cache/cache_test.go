package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := New("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r, mr
}

func TestNew_BadURL(t *testing.T) {
	_, err := New("not a url")
	assert.Error(t, err)
}

func TestGetSet(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()
	require.NoError(t, r.Ping(ctx))

	type item struct {
		Name string `json:"name"`
	}
	require.NoError(t, Set(ctx, r, "k", item{Name: "CNN"}, time.Minute))

	got, err := Get[item](ctx, r, "k")
	require.NoError(t, err)
	assert.Equal(t, "CNN", got.Name)

	mr.FastForward(2 * time.Minute)
	_, err = Get[item](ctx, r, "k")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestGet_Corrupt(t *testing.T) {
	r, mr := newTestRedis(t)
	require.NoError(t, mr.Set("k", "{not json"))
	_, err := Get[map[string]string](context.Background(), r, "k")
	assert.Error(t, err)
}

func TestDelAndDelPattern(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()
	for _, k := range []string{"runs:a", "runs:b", "run:1", "other"} {
		require.NoError(t, mr.Set(k, "1"))
	}

	require.NoError(t, DelPattern(ctx, r, "runs:*"))
	assert.False(t, mr.Exists("runs:a"))
	assert.False(t, mr.Exists("runs:b"))
	assert.True(t, mr.Exists("run:1"))

	require.NoError(t, Del(ctx, r, "run:1", "other"))
	require.NoError(t, Del(ctx, r))
	assert.False(t, mr.Exists("run:1"))
	assert.False(t, mr.Exists("other"))
}

func TestTryLock(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	unlock, err := TryLock(ctx, r, "lock:x", time.Minute)
	require.NoError(t, err)

	_, err = TryLock(ctx, r, "lock:x", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	unlock()
	assert.False(t, mr.Exists("lock:x"))

	unlock2, err := TryLock(ctx, r, "lock:x", time.Minute)
	require.NoError(t, err)
	unlock2()
}

func TestTryLock_UnlockDoesNotReleaseForeignLock(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	unlock, err := TryLock(ctx, r, "lock:y", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	unlock2, err := TryLock(ctx, r, "lock:y", time.Minute)
	require.NoError(t, err)
	defer unlock2()

	unlock()
	assert.True(t, mr.Exists("lock:y"))
}
