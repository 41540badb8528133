package config

import (
	"fmt"

	"github.com/colorwerkz/metacache/pkg/cache"
	"github.com/colorwerkz/metacache/pkg/observability"
)

// BuildManager constructs the tiers named by this configuration and a
// manager over them. The returned closer releases the tier handles; the
// backends themselves (Redis server, database) stay externally owned.
func (c *Config) BuildManager(logger observability.Logger) (*cache.Manager, func() error, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	var l1 cache.HotTier
	var closeL1 func() error
	switch c.L1Backend {
	case "", "memory":
		l1 = cache.NewMemoryTier(c.L1Capacity, c.L1TTL)
	case "redis":
		tier, err := cache.NewRedisTier(c.Redis, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("build l1: %w", err)
		}
		l1 = tier
		closeL1 = tier.Close
	default:
		return nil, nil, fmt.Errorf("build l1: unknown backend %q", c.L1Backend)
	}

	l2, err := cache.NewSQLTier(c.SQLDriver, c.SQLDSN, logger)
	if err != nil {
		if closeL1 != nil {
			_ = closeL1()
		}
		return nil, nil, fmt.Errorf("build l2: %w", err)
	}

	mc := c.ManagerConfig()
	mc.Logger = logger

	mgr, err := cache.NewManager(l1, l2, mc)
	if err != nil {
		if closeL1 != nil {
			_ = closeL1()
		}
		_ = l2.Close()
		return nil, nil, err
	}

	closer := func() error {
		var first error
		if closeL1 != nil {
			first = closeL1()
		}
		if err := l2.Close(); err != nil && first == nil {
			first = err
		}
		return first
	}
	return mgr, closer, nil
}
