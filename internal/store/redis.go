package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"st-telemetry/gateway/internal/config"
	"st-telemetry/gateway/internal/domain"
)

// stateTTL bounds how long a stale latest-value hash survives after the
// pipeline stops feeding it.
const stateTTL = 30 * time.Second

// RedisStore holds the live side of the system: the latest value per PID for
// dashboard reads, a pub/sub channel for out-of-band alert delivery, and the
// API-key table consulted by the authenticator.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Client() *redis.Client {
	return r.client
}

// UpdateState writes the latest value for each PID of a session into one
// hash and refreshes its TTL, in a single pipeline round trip.
func (r *RedisStore) UpdateState(ctx context.Context, readings []domain.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	sessionID := readings[0].SessionID
	stateKey := fmt.Sprintf("session:%s:state", sessionID)

	fields := make(map[string]interface{}, len(readings))
	for _, rd := range readings {
		payload, err := json.Marshal(map[string]interface{}{
			"value":     rd.Value,
			"unit":      rd.Unit,
			"timestamp": rd.Timestamp.Unix(),
		})
		if err != nil {
			return fmt.Errorf("failed to marshal state for %s: %w", rd.PID, err)
		}
		fields[rd.PID] = payload
	}

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, stateKey, fields)
	pipe.Expire(ctx, stateKey, stateTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// GetState returns the latest raw state entries for a session, keyed by PID.
func (r *RedisStore) GetState(ctx context.Context, sessionID string) (map[string]string, error) {
	key := fmt.Sprintf("session:%s:state", sessionID)
	vals, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get state failed: %w", err)
	}
	return vals, nil
}

// PublishAlert pushes one alert event onto the session's pub/sub channel.
func (r *RedisStore) PublishAlert(ctx context.Context, e domain.AlertEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	channel := fmt.Sprintf("session:%s:alerts", e.SessionID)
	return r.client.Publish(ctx, channel, payload).Err()
}

// GetAPIKey resolves an API key to its owner. Empty string means unknown key.
func (r *RedisStore) GetAPIKey(ctx context.Context, apiKey string) (string, error) {
	key := fmt.Sprintf("gateway:auth:%s", apiKey)
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get api key failed: %w", err)
	}
	return val, nil
}
