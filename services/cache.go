package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"prediction-ledger-api/config"
)

const (
	// EventsChannel carries scored and reconciled events to live subscribers.
	EventsChannel = "ledger:events"

	pingAttempts = 5
)

var ErrCacheMiss = errors.New("cache miss")

// CacheService is a Redis-backed cache and event bus. A service without a
// client turns every call into a no-op so the API keeps working when Redis
// is down.
type CacheService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCacheService(cfg config.RedisConfig, log *zap.Logger) (*CacheService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ttl := time.Duration(cfg.CacheTTL) * time.Second

	var lastErr error
	for i := 0; i < pingAttempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		lastErr = client.Ping(ctx).Err()
		cancel()
		if lastErr == nil {
			return &CacheService{client: client, ttl: ttl}, nil
		}
		log.Warn("redis ping failed", zap.Int("attempt", i+1), zap.Int("of", pingAttempts), zap.Error(lastErr))
		time.Sleep(2 * time.Second)
	}

	_ = client.Close()
	return &CacheService{ttl: ttl}, errors.Wrapf(lastErr, "redis ping failed after %d attempts", pingAttempts)
}

// NewCacheServiceWithClient wraps an existing client; nil disables caching.
func NewCacheServiceWithClient(client *redis.Client, ttl time.Duration) *CacheService {
	return &CacheService{client: client, ttl: ttl}
}

func (s *CacheService) Client() *redis.Client {
	return s.client
}

func (s *CacheService) Available() bool {
	return s != nil && s.client != nil
}

func (s *CacheService) TTL() time.Duration {
	return s.ttl
}

func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) error {
	if !s.Available() {
		return ErrCacheMiss
	}
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), dest)
}

func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Available() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

func (s *CacheService) Delete(ctx context.Context, key string) error {
	if !s.Available() {
		return nil
	}
	return s.client.Del(ctx, key).Err()
}

func (s *CacheService) Publish(ctx context.Context, channel string, message interface{}) error {
	if !s.Available() {
		return nil
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, channel, data).Err()
}

// Subscribe returns nil when Redis is unavailable.
func (s *CacheService) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	if !s.Available() {
		return nil
	}
	return s.client.Subscribe(ctx, channel)
}

func (s *CacheService) Close() error {
	if !s.Available() {
		return nil
	}
	return s.client.Close()
}
