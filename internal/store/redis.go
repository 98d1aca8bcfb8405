package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/sreforge/debate-engine/internal/eventstream"
)

// RedisStore is the durable SessionStore backend (spec.md §6
// store.backend: "redis"), used when the process restarts and must
// resume sessions from where they left off (spec.md §4.2
// "Checkpointing", §8 scenario 3). Grounded on the teacher pack's
// github.com/redis/go-redis/v9 dependency; the teacher repo itself
// reaches for Redis as its session/cache layer, generalized here to
// checkpoint + event log storage.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a RedisStore from a redis:// URL.
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

func checkpointKey(sessionID string) string {
	return "sreforge:checkpoint:" + sessionID
}

func eventsKey(sessionID string) string {
	return "sreforge:events:" + sessionID
}

func (r *RedisStore) SaveCheckpoint(ctx context.Context, sessionID string, cp Checkpoint) error {
	b, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshalling checkpoint: %w", err)
	}
	return r.client.Set(ctx, checkpointKey(sessionID), b, 0).Err()
}

func (r *RedisStore) LoadCheckpoint(ctx context.Context, sessionID string) (Checkpoint, bool, error) {
	b, err := r.client.Get(ctx, checkpointKey(sessionID)).Bytes()
	if err == redis.Nil {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("loading checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(b, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("unmarshalling checkpoint: %w", err)
	}
	return cp, true, nil
}

// AppendEvent and LoadEventsSince satisfy eventstream.EventStore (and
// therefore SessionStore) with a plain synchronous context.Background
// call, matching the narrow two-method interface that package declares.
func (r *RedisStore) AppendEvent(sessionID string, e eventstream.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	return r.client.RPush(context.Background(), eventsKey(sessionID), b).Err()
}

func (r *RedisStore) LoadEventsSince(sessionID, cursor string) ([]eventstream.Event, error) {
	ctx := context.Background()
	raw, err := r.client.LRange(ctx, eventsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}

	all := make([]eventstream.Event, 0, len(raw))
	for _, s := range raw {
		var e eventstream.Event
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, fmt.Errorf("unmarshalling event: %w", err)
		}
		all = append(all, e)
	}

	if cursor == "" {
		return all, nil
	}
	for i, e := range all {
		if e.EventID == cursor {
			return all[i+1:], nil
		}
	}
	return all, nil
}

// Close releases the underlying Redis client connections.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
