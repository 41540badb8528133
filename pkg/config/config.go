// Package config loads metacache settings from environment variables with
// sensible defaults, mirroring how the surrounding services configure their
// cache layers.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/colorwerkz/metacache/pkg/cache"
)

// Config represents the full metacache configuration.
type Config struct {
	// Hot tier
	L1Backend  string            `yaml:"l1_backend" json:"l1_backend"` // "memory" or "redis"
	L1Capacity int               `yaml:"l1_capacity" json:"l1_capacity"`
	L1TTL      time.Duration     `yaml:"l1_ttl" json:"l1_ttl"`
	L1Timeout  time.Duration     `yaml:"l1_timeout" json:"l1_timeout"`
	Redis      cache.RedisConfig `yaml:"redis" json:"redis"`

	// Cold tier
	SQLDriver string        `yaml:"sql_driver" json:"sql_driver"` // "sqlite3" or "postgres"
	SQLDSN    string        `yaml:"sql_dsn" json:"sql_dsn"`
	L2Timeout time.Duration `yaml:"l2_timeout" json:"l2_timeout"`

	// Expected-latency hints
	L1Latency      time.Duration `yaml:"l1_latency" json:"l1_latency"`
	L2Latency      time.Duration `yaml:"l2_latency" json:"l2_latency"`
	ComputeLatency time.Duration `yaml:"compute_latency" json:"compute_latency"`

	// Logging
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// Load reads configuration from METACACHE_* environment variables, applying
// defaults for anything unset.
func Load() *Config {
	return &Config{
		L1Backend:  getEnvString("METACACHE_L1_BACKEND", "memory"),
		L1Capacity: getEnvInt("METACACHE_L1_CAPACITY", 1000),
		L1TTL:      getEnvDuration("METACACHE_L1_TTL", 0), // 0 = LRU eviction only
		L1Timeout:  getEnvDuration("METACACHE_L1_TIMEOUT", cache.DefaultL1Timeout),

		Redis: cache.RedisConfig{
			Addr:     getEnvString("METACACHE_REDIS_ADDR", "localhost:6379"),
			Password: getEnvString("METACACHE_REDIS_PASSWORD", ""),
			DB:       getEnvInt("METACACHE_REDIS_DB", 0),
		},

		SQLDriver: getEnvString("METACACHE_SQL_DRIVER", "sqlite3"),
		SQLDSN:    getEnvString("METACACHE_SQL_DSN", "metacache.db"),
		L2Timeout: getEnvDuration("METACACHE_L2_TIMEOUT", cache.DefaultL2Timeout),

		L1Latency:      getEnvDuration("METACACHE_L1_LATENCY", cache.DefaultL1Latency),
		L2Latency:      getEnvDuration("METACACHE_L2_LATENCY", cache.DefaultL2Latency),
		ComputeLatency: getEnvDuration("METACACHE_COMPUTE_LATENCY", cache.DefaultComputeLatency),

		LogLevel: getEnvString("METACACHE_LOG_LEVEL", "info"),
	}
}

// ManagerConfig derives the cache.ManagerConfig slice of this configuration.
func (c *Config) ManagerConfig() cache.ManagerConfig {
	return cache.ManagerConfig{
		L1Capacity:     c.L1Capacity,
		L1TTL:          c.L1TTL,
		L1Timeout:      c.L1Timeout,
		L2Timeout:      c.L2Timeout,
		L1Latency:      c.L1Latency,
		L2Latency:      c.L2Latency,
		ComputeLatency: c.ComputeLatency,
	}
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
