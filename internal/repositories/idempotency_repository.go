package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// IdempotencyRepositoryInterface reserves client idempotency keys. A
// reservation is scoped to one request so the same key on different
// requests never collides. The reservation holds a pending marker
// until the transition commits; Confirm swaps in the committed history
// entry id so replays can be told apart from attempts that died
// between the reservation and the commit.
type IdempotencyRepositoryInterface interface {
	// Reserve atomically claims (requestID, key). It returns false when
	// the key is already held.
	Reserve(ctx context.Context, requestID, key string, ttl time.Duration) (bool, error)
	// Confirm records the committed history entry id under the
	// reservation, keeping its TTL.
	Confirm(ctx context.Context, requestID, key, entryID string) error
	// Committed returns the entry id recorded by Confirm, or "" while
	// the reservation is still pending or already gone.
	Committed(ctx context.Context, requestID, key string) (string, error)
	// Release frees a reservation after a failed commit so the client
	// can retry with the same key.
	Release(ctx context.Context, requestID, key string) error
}

type idempotencyRepository struct {
	client *redis.Client
}

func NewIdempotencyRepository(client *redis.Client) IdempotencyRepositoryInterface {
	return &idempotencyRepository{client: client}
}

// pendingMarker is the value held between Reserve and Confirm.
const pendingMarker = "pending"

func idempotencyKey(requestID, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", requestID, key)
}

func (r *idempotencyRepository) Reserve(ctx context.Context, requestID, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, idempotencyKey(requestID, key), pendingMarker, ttl).Result()
}

func (r *idempotencyRepository) Confirm(ctx context.Context, requestID, key, entryID string) error {
	return r.client.Set(ctx, idempotencyKey(requestID, key), entryID, redis.KeepTTL).Err()
}

func (r *idempotencyRepository) Committed(ctx context.Context, requestID, key string) (string, error) {
	val, err := r.client.Get(ctx, idempotencyKey(requestID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if val == pendingMarker {
		return "", nil
	}
	return val, nil
}

func (r *idempotencyRepository) Release(ctx context.Context, requestID, key string) error {
	return r.client.Del(ctx, idempotencyKey(requestID, key)).Err()
}
