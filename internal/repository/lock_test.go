package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLocker_ExclusiveUntilReleased(t *testing.T) {
	mr, client := setupMiniredis(t)
	locker := NewRedisLocker(client)
	ctx := context.Background()

	lock, err := locker.TryLock(ctx, "submit:t1:u1", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:submit:t1:u1"))

	_, err = locker.TryLock(ctx, "submit:t1:u1", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, lock.Release(ctx))
	assert.False(t, mr.Exists("lock:submit:t1:u1"))

	again, err := locker.TryLock(ctx, "submit:t1:u1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestRedisLocker_StaleReleaseKeepsNewHolder(t *testing.T) {
	mr, client := setupMiniredis(t)
	locker := NewRedisLocker(client)
	ctx := context.Background()

	stale, err := locker.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	current, err := locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)

	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists("lock:k"))

	require.NoError(t, current.Release(ctx))
	assert.False(t, mr.Exists("lock:k"))
}

func TestLocalLocker(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	locker := NewLocalLocker()
	locker.clock = func() time.Time { return now }
	ctx := context.Background()

	first, err := locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)

	_, err = locker.TryLock(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	other, err := locker.TryLock(ctx, "other", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	now = now.Add(2 * time.Minute)
	second, err := locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)

	// The expired holder must not release the new one.
	require.NoError(t, first.Release(ctx))
	_, err = locker.TryLock(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, second.Release(ctx))
	_, err = locker.TryLock(ctx, "k", time.Minute)
	assert.NoError(t, err)
}
