package cache_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/chatwarden/warden/internal/cache"
	"github.com/chatwarden/warden/internal/setup/config"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupLockTest(t *testing.T) (*cache.ActorLock, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	cfg := &config.Moderation{
		LockTimeout:    1000,
		LockRetryDelay: 5,
	}

	return cache.NewActorLock(client, cfg, logger), mr
}

func TestLockAcquireAndRelease(t *testing.T) {
	t.Parallel()

	lock, _ := setupLockTest(t)
	ctx := t.Context()

	release, err := lock.Acquire(ctx, 1, 10)
	require.NoError(t, err)
	require.NotNil(t, release)

	// Held lease blocks a second acquisition through the retry
	_, err = lock.Acquire(ctx, 1, 10)
	assert.ErrorIs(t, err, cache.ErrLockContended)

	release()

	release2, err := lock.Acquire(ctx, 1, 10)
	require.NoError(t, err)
	release2()
}

func TestLockIsPerActorScope(t *testing.T) {
	t.Parallel()

	lock, _ := setupLockTest(t)
	ctx := t.Context()

	release1, err := lock.Acquire(ctx, 1, 10)
	require.NoError(t, err)
	defer release1()

	// Same actor in a different scope is a different lease
	release2, err := lock.Acquire(ctx, 1, 20)
	require.NoError(t, err)
	defer release2()

	// A different actor in the same scope is too
	release3, err := lock.Acquire(ctx, 2, 10)
	require.NoError(t, err)
	defer release3()
}

func TestLockExpiresOnItsOwn(t *testing.T) {
	t.Parallel()

	lock, mr := setupLockTest(t)
	ctx := t.Context()

	_, err := lock.Acquire(ctx, 1, 10)
	require.NoError(t, err)

	// Holder crashed; the lease lapses after its timeout
	mr.FastForward(2 * time.Second)

	release, err := lock.Acquire(ctx, 1, 10)
	require.NoError(t, err)
	release()
}

func TestLockReleaseIsOwnerOnly(t *testing.T) {
	t.Parallel()

	lock, mr := setupLockTest(t)
	ctx := t.Context()

	staleRelease, err := lock.Acquire(ctx, 1, 10)
	require.NoError(t, err)

	// The first lease expires and another decision takes over
	mr.FastForward(2 * time.Second)

	release, err := lock.Acquire(ctx, 1, 10)
	require.NoError(t, err)
	defer release()

	// The stale holder's release must not free the new holder's lease
	staleRelease()

	_, err = lock.Acquire(ctx, 1, 10)
	assert.ErrorIs(t, err, cache.ErrLockContended)
}
