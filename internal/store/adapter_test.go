package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/action-engine/pkg/actions"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewAdapter(rdb)
}

func TestAdapterSetAndGet(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	err := a.Set(ctx, "j1", map[string]string{"state": string(actions.StatusPending)}, nil)
	require.NoError(t, err)

	v, err := a.Get(ctx, "j1", "state")
	require.NoError(t, err)
	assert.Equal(t, "PENDING", string(v))
}

func TestAdapterGetMissingFieldReturnsNil(t *testing.T) {
	a := newTestAdapter(t)
	v, err := a.Get(context.Background(), "nope", "state")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestAdapterSetMaintainsStateIndex(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, "j1", map[string]string{"state": string(actions.StatusPending)}, nil))

	n, err := a.StateCount(ctx, actions.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	src := actions.StatusPending
	require.NoError(t, a.Set(ctx, "j1", map[string]string{"state": string(actions.StatusRunning)}, &src))

	n, err = a.StateCount(ctx, actions.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = a.StateCount(ctx, actions.StatusRunning)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAdapterSetSameStateIsNoOpOnIndex(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, "j1", map[string]string{"state": string(actions.StatusRunning)}, nil))
	src := actions.StatusRunning
	require.NoError(t, a.Set(ctx, "j1", map[string]string{"state": string(actions.StatusRunning)}, &src))

	n, err := a.StateCount(ctx, actions.StatusRunning)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAdapterRandomSampleRespectsSize(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		jid := actions.JobID(string(rune('a' + i)))
		require.NoError(t, a.Set(ctx, jid, map[string]string{"state": string(actions.StatusRetry)}, nil))
	}

	sample, err := a.RandomSample(ctx, actions.StatusRetry, 3)
	require.NoError(t, err)
	assert.Len(t, sample, 3)
}

func TestAdapterRandomSampleDefaultSize(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.Set(ctx, "j1", map[string]string{"state": string(actions.StatusRetry)}, nil))

	sample, err := a.RandomSample(ctx, actions.StatusRetry, 0)
	require.NoError(t, err)
	assert.Len(t, sample, 1)
}

func TestLockAcquireAndReleaseNonBlocking(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	lock1 := a.Lock("j1")
	ok, err := lock1.Acquire(ctx, false)
	require.NoError(t, err)
	assert.True(t, ok)

	lock2 := a.Lock("j1")
	ok, err = lock2.Acquire(ctx, false)
	require.NoError(t, err)
	assert.False(t, ok, "second non-blocking acquire should fail while held")

	require.NoError(t, lock1.Release(ctx))

	ok, err = lock2.Acquire(ctx, false)
	require.NoError(t, err)
	assert.True(t, ok, "lock should be acquirable after release")
}

func TestLockReleaseOnlyWithMatchingToken(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	lock1 := a.Lock("j1")
	ok, err := lock1.Acquire(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)

	// A handle that never acquired has no token; releasing it must be a no-op.
	lock2 := a.Lock("j1")
	require.NoError(t, lock2.Release(ctx))

	// The original holder's lock must still be held.
	lock3 := a.Lock("j1")
	ok, err = lock3.Acquire(ctx, false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLockReleaseIdempotent(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	lock := a.Lock("j1")
	ok, err := lock.Acquire(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lock.Release(ctx))
	require.NoError(t, lock.Release(ctx))
}

func TestStateCountEmpty(t *testing.T) {
	a := newTestAdapter(t)
	n, err := a.StateCount(context.Background(), actions.StatusSuccess)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
