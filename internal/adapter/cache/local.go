package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wizmogmbh/ivy-gateway/internal/ports"
)

type localEntry struct {
	value    string
	deadline int64
}

func (e localEntry) expired(now int64) bool {
	return e.deadline > 0 && e.deadline <= now
}

// LocalCache is the in-process fallback for the tenant config cache when
// Redis is not configured. Only correct for single-instance deployments:
// Invalidate on one instance is invisible to any other.
type LocalCache struct {
	mu      sync.RWMutex
	entries map[string]localEntry
	log     *zap.Logger
	done    chan struct{}
	once    sync.Once
}

// NewLocalCache starts a janitor goroutine that sweeps expired entries at the
// given interval; Close stops it.
func NewLocalCache(sweepInterval time.Duration, log *zap.Logger) ports.Cache {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	c := &LocalCache{
		entries: make(map[string]localEntry),
		log:     log,
		done:    make(chan struct{}),
	}
	go c.janitor(sweepInterval)

	log.Info("Local in-memory cache initialized",
		zap.Duration("sweep_interval", sweepInterval),
	)
	return c
}

func (c *LocalCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || entry.expired(time.Now().UnixNano()) {
		return "", ports.ErrCacheMiss
	}
	return entry.value, nil
}

func (c *LocalCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	str, err := stringify(value)
	if err != nil {
		return err
	}

	entry := localEntry{value: str}
	if expiration > 0 {
		entry.deadline = time.Now().Add(expiration).UnixNano()
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) Ping() error { return nil }

func (c *LocalCache) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// stringify mirrors go-redis argument handling so both backends accept the
// same value types.
func stringify(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to marshal cache value: %w", err)
		}
		return string(raw), nil
	}
}

func (c *LocalCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

func (c *LocalCache) sweep() {
	now := time.Now().UnixNano()

	c.mu.Lock()
	swept := 0
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
			swept++
		}
	}
	c.mu.Unlock()

	if swept > 0 {
		c.log.Debug("cache sweep removed expired entries", zap.Int("count", swept))
	}
}
