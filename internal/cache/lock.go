package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chatwarden/warden/internal/setup/config"
	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// ErrLockContended indicates another decision holds the actor lease and the
// single retry was also lost. Callers surface this as a concurrent
// modification and retry the whole decision from a fresh bundle.
var ErrLockContended = errors.New("actor lock contended")

// releaseScript deletes the lease only if the caller still owns it, so a
// lease that expired and was re-acquired by another decision is never
// released by the original holder.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

// ActorLock serializes reputation transitions per (actor, scope). The lease
// is held only across the read-transition-write sequence and expires on its
// own if the holder crashes.
type ActorLock struct {
	client     rueidis.Client
	lease      time.Duration
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewActorLock creates the per-actor lease manager.
func NewActorLock(client rueidis.Client, cfg *config.Moderation, logger *zap.Logger) *ActorLock {
	return &ActorLock{
		client:     client,
		lease:      time.Duration(cfg.LockTimeout) * time.Millisecond,
		retryDelay: time.Duration(cfg.LockRetryDelay) * time.Millisecond,
		logger:     logger.Named("actor_lock"),
	}
}

// Acquire takes the lease for an actor, retrying once after a short delay on
// contention. Returns a release function on success and ErrLockContended
// when the retry also loses.
func (l *ActorLock) Acquire(ctx context.Context, actorID, scopeID uint64) (func(), error) {
	key := keyActorLock(actorID, scopeID)
	token := uuid.New().String()

	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(l.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		ok, err := l.client.Do(ctx,
			l.client.B().Set().Key(key).Value(token).Nx().Px(l.lease).Build(),
		).AsBool()
		if err != nil && !rueidis.IsRedisNil(err) {
			return nil, fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
		}

		if !ok {
			continue
		}

		release := func() {
			err := l.client.Do(context.Background(), l.client.B().Eval().
				Script(releaseScript).
				Numkeys(1).
				Key(key).
				Arg(token).
				Build()).Error()
			if err != nil {
				// The lease expires on its own; losing the early release
				// only delays the next decision by the remaining TTL.
				l.logger.Warn("Failed to release actor lock",
					zap.Uint64("actorID", actorID),
					zap.Uint64("scopeID", scopeID),
					zap.Error(err))
			}
		}

		return release, nil
	}

	return nil, ErrLockContended
}
