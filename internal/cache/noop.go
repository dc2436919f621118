package cache

import (
	"context"
	"time"
)

// NoOpCache is the fallback when Redis is not configured or unreachable:
// every lookup is a miss and writes are dropped.
type NoOpCache struct{}

func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

func (c *NoOpCache) GetQueryResult(ctx context.Context, key string) (*QueryResult, error) {
	return nil, nil
}

func (c *NoOpCache) SetQueryResult(ctx context.Context, key string, result *QueryResult, ttl time.Duration) error {
	return nil
}

func (c *NoOpCache) InvalidateQueries(ctx context.Context) error {
	return nil
}

func (c *NoOpCache) Close() error {
	return nil
}
