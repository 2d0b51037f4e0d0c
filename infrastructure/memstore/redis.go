package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/agent-runtime/domain/memory"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Address is the Redis server address (host:port).
	Address string

	// Password for authentication (optional).
	Password string

	// DB selects the Redis database index.
	DB int

	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration

	// KeyPrefix is prepended to all keys.
	KeyPrefix string
}

// DefaultRedisConfig returns a Config with sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Address:     "localhost:6379",
		DialTimeout: 5 * time.Second,
		KeyPrefix:   "agentmem:",
	}
}

// Redis is a Redis-backed memory.Store. Values are stored under prefixed
// keys; an index set tracks membership so Search can rank client-side.
type Redis struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisFromClient(client, cfg.KeyPrefix), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, keyPrefix string) *Redis {
	return &Redis{client: client, keyPrefix: keyPrefix}
}

func (s *Redis) valueKey(key string) string {
	return s.keyPrefix + "v:" + key
}

func (s *Redis) indexKey() string {
	return s.keyPrefix + "index"
}

// Put stores value under key and records it in the index set.
func (s *Redis) Put(ctx context.Context, key string, value json.RawMessage) error {
	if key == "" {
		return memory.ErrEmptyKey
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.valueKey(key), []byte(value), 0)
	pipe.SAdd(ctx, s.indexKey(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put %q: %w", key, err)
	}
	return nil
}

// Get retrieves the value for key.
func (s *Redis) Get(ctx context.Context, key string) (json.RawMessage, error) {
	if key == "" {
		return nil, memory.ErrEmptyKey
	}
	data, err := s.client.Get(ctx, s.valueKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, memory.ErrNotFound
		}
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}
	return json.RawMessage(data), nil
}

// Search fetches every indexed value and ranks by token overlap with
// query. Suitable for modest working sets; large corpora belong in a
// vector store behind the same interface.
func (s *Redis) Search(ctx context.Context, query string, topK int) ([]memory.Scored, error) {
	if topK <= 0 {
		return nil, nil
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis search index: %w", err)
	}
	sort.Strings(keys)

	var scored []memory.Scored
	for _, key := range keys {
		data, err := s.client.Get(ctx, s.valueKey(key)).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("redis search get %q: %w", key, err)
		}
		score := overlapScore(terms, string(data))
		if score > 0 {
			scored = append(scored, memory.Scored{Key: key, Value: data, Score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// Close releases the underlying client.
func (s *Redis) Close() error {
	return s.client.Close()
}

var _ memory.Store = (*Redis)(nil)
