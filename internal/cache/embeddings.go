package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
)

// EventEmbedding pairs an event id with its embedding vector inside an
// actor's recent-embeddings window.
type EventEmbedding struct {
	EventID string    `json:"eventId"`
	Vector  []float64 `json:"vector"`
}

// AppendActorEmbedding appends an embedding to the actor's recent-embeddings
// window, trimming to the actor window limit. Idempotent by event id.
func (c *Cache) AppendActorEmbedding(ctx context.Context, actorID uint64, embedding *EventEmbedding) error {
	key := keyActorEmbeddings(actorID)

	existing, err := c.ActorEmbeddings(ctx, actorID)
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		return err
	}

	for _, e := range existing {
		if e.EventID == embedding.EventID {
			return nil
		}
	}

	payload, err := sonic.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding %s: %w", embedding.EventID, err)
	}

	cmds := make(rueidis.Commands, 0, 3)
	cmds = append(cmds, c.client.B().Rpush().Key(key).Element(string(payload)).Build())
	cmds = append(cmds, c.client.B().Ltrim().Key(key).Start(int64(-c.cfg.ActorWindowLimit)).Stop(-1).Build())

	if ttl := c.actorWindowTTL(); ttl > 0 {
		cmds = append(cmds, c.client.B().Expire().Key(key).Seconds(int64(ttl.Seconds())).Build())
	}

	for _, resp := range c.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
		}
	}

	return nil
}

// ActorEmbeddings returns the actor's recent-embeddings window, oldest first.
func (c *Cache) ActorEmbeddings(ctx context.Context, actorID uint64) ([]*EventEmbedding, error) {
	items, err := c.client.Do(ctx,
		c.client.B().Lrange().Key(keyActorEmbeddings(actorID)).Start(0).Stop(-1).Build(),
	).AsStrSlice()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrCacheMiss
		}

		return nil, fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
	}

	if len(items) == 0 {
		return nil, ErrCacheMiss
	}

	embeddings := make([]*EventEmbedding, 0, len(items))

	for _, item := range items {
		var embedding EventEmbedding
		if err := sonic.Unmarshal([]byte(item), &embedding); err != nil {
			continue
		}

		embeddings = append(embeddings, &embedding)
	}

	return embeddings, nil
}
