// Package push stores Web Push subscriptions per user and delivers
// notifications through VAPID. This is the push-token registry boundary:
// register on login, clear on logout, look up at dispatch time.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix  = "push:subs:"
	maxSubsPerUser  = 10
	subscriptionTTL = 30 * 24 * time.Hour
)

// Registry keeps per-user push subscriptions keyed by endpoint.
type Registry interface {
	Register(ctx context.Context, userID string, sub *webpush.Subscription) error
	// Clear removes one subscription by endpoint, or all of the user's
	// subscriptions when endpoint is empty.
	Clear(ctx context.Context, userID, endpoint string) error
	List(ctx context.Context, userID string) ([]webpush.Subscription, error)
	Close() error
}

// RedisRegistry stores subscriptions in a Redis hash per user with a sliding
// TTL, capped per user so a forgotten device cannot grow the set unbounded.
type RedisRegistry struct {
	cli *redis.Client
}

func NewRedisRegistry(ctx context.Context, url string) (*RedisRegistry, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("push redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("push redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("push redis ping: %w", err)
	}
	return &RedisRegistry{cli: cli}, nil
}

func (r *RedisRegistry) Close() error { return r.cli.Close() }

func (r *RedisRegistry) Register(ctx context.Context, userID string, sub *webpush.Subscription) error {
	key := redisKeyPrefix + userID
	n, err := r.cli.HLen(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("push register hlen: %w", err)
	}
	exists, err := r.cli.HExists(ctx, key, sub.Endpoint).Result()
	if err != nil {
		return fmt.Errorf("push register hexists: %w", err)
	}
	if !exists && n >= maxSubsPerUser {
		return fmt.Errorf("push register: subscription limit reached for user %s", userID)
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("push register marshal: %w", err)
	}
	if err := r.cli.HSet(ctx, key, sub.Endpoint, data).Err(); err != nil {
		return fmt.Errorf("push register hset: %w", err)
	}
	r.cli.Expire(ctx, key, subscriptionTTL)
	return nil
}

func (r *RedisRegistry) Clear(ctx context.Context, userID, endpoint string) error {
	key := redisKeyPrefix + userID
	if endpoint == "" {
		if err := r.cli.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("push clear: %w", err)
		}
		return nil
	}
	if err := r.cli.HDel(ctx, key, endpoint).Err(); err != nil {
		return fmt.Errorf("push clear: %w", err)
	}
	return nil
}

func (r *RedisRegistry) List(ctx context.Context, userID string) ([]webpush.Subscription, error) {
	vals, err := r.cli.HGetAll(ctx, redisKeyPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("push list: %w", err)
	}
	subs := make([]webpush.Subscription, 0, len(vals))
	for _, raw := range vals {
		var sub webpush.Subscription
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			// Malformed entries are dropped at read time; they were written
			// by an older client and cannot be delivered to anyway.
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// MemoryRegistry backs tests and -dev mode.
type MemoryRegistry struct {
	mu   sync.Mutex
	subs map[string]map[string]webpush.Subscription
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{subs: make(map[string]map[string]webpush.Subscription)}
}

func (r *MemoryRegistry) Close() error { return nil }

func (r *MemoryRegistry) Register(ctx context.Context, userID string, sub *webpush.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byEndpoint, ok := r.subs[userID]
	if !ok {
		byEndpoint = make(map[string]webpush.Subscription)
		r.subs[userID] = byEndpoint
	}
	if _, exists := byEndpoint[sub.Endpoint]; !exists && len(byEndpoint) >= maxSubsPerUser {
		return fmt.Errorf("push register: subscription limit reached for user %s", userID)
	}
	byEndpoint[sub.Endpoint] = *sub
	return nil
}

func (r *MemoryRegistry) Clear(ctx context.Context, userID, endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if endpoint == "" {
		delete(r.subs, userID)
		return nil
	}
	delete(r.subs[userID], endpoint)
	return nil
}

func (r *MemoryRegistry) List(ctx context.Context, userID string) ([]webpush.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]webpush.Subscription, 0, len(r.subs[userID]))
	for _, sub := range r.subs[userID] {
		out = append(out, sub)
	}
	return out, nil
}
