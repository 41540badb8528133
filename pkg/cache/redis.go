package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/colorwerkz/metacache/pkg/observability"
)

const (
	// redisConnectTimeout bounds the initial ping.
	redisConnectTimeout = 5 * time.Second

	// redisOperationTimeout bounds each Size lookup, which carries no
	// caller context.
	redisOperationTimeout = 2 * time.Second

	// redisKeyPrefix namespaces metacache entries in a shared Redis.
	redisKeyPrefix = "metacache:"
)

// RedisConfig holds connection settings for a Redis-backed hot tier.
type RedisConfig struct {
	Addr         string        `yaml:"addr" json:"addr" mapstructure:"addr"`
	Password     string        `yaml:"password" json:"password" mapstructure:"password"`
	DB           int           `yaml:"db" json:"db" mapstructure:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" mapstructure:"write_timeout"`
}

// RedisTier is a Redis-backed hot tier. Capacity bounding and LRU eviction
// are delegated to the server (maxmemory with an LRU policy); Size reports
// the keyspace size of the selected database.
type RedisTier struct {
	client *redis.Client
	logger observability.Logger
}

// NewRedisTier connects to Redis and verifies the connection.
func NewRedisTier(cfg RedisConfig, logger observability.Logger) (*RedisTier, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = redisConnectTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("redis hot tier connected", map[string]interface{}{
		"addr": cfg.Addr,
		"db":   cfg.DB,
	})

	return &RedisTier{client: client, logger: logger}, nil
}

// Get returns the stored bytes or ErrNotFound.
func (t *RedisTier) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := t.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Set stores value under key with the given TTL. A zero ttl stores without
// expiry; the entry then leaves only via server-side eviction or deletion.
func (t *RedisTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return t.client.Set(ctx, redisKeyPrefix+key, value, ttl).Err()
}

// Delete removes key.
func (t *RedisTier) Delete(ctx context.Context, key string) error {
	return t.client.Del(ctx, redisKeyPrefix+key).Err()
}

// Size returns the keyspace size of the selected database, or 0 if the
// lookup fails. The count includes any non-metacache keys sharing the
// database.
func (t *RedisTier) Size() int {
	ctx, cancel := context.WithTimeout(context.Background(), redisOperationTimeout)
	defer cancel()

	n, err := t.client.DBSize(ctx).Result()
	if err != nil {
		t.logger.Warn("redis dbsize failed", map[string]interface{}{
			"error": err.Error(),
		})
		return 0
	}
	return int(n)
}

// Close releases the client connection. The Redis server itself is an
// externally owned resource.
func (t *RedisTier) Close() error {
	return t.client.Close()
}
