// Package cache cache kết quả đọc nặng (nearest-per-category): Redis khi có cấu hình, ngược lại trong bộ nhớ.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache lưu giá trị JSON theo khoá với TTL
type Cache interface {
	// Get giải mã giá trị vào dst; hit = false khi không có hoặc đã hết hạn
	Get(ctx context.Context, key string, dst any) (hit bool, err error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Close() error
}

// Connect tạo Redis client từ URL "redis://..." hoặc host:port
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opt, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: addr})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// RedisCache Cache trên Redis, khoá có tiền tố riêng
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache tạo cache Redis
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

// Get đọc và giải mã JSON
func (c *RedisCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode cache %s: %w", key, err)
	}
	return true, nil
}

// Set mã hoá JSON và ghi với TTL
func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache %s: %w", key, err)
	}
	return c.client.Set(ctx, c.prefix+key, data, ttl).Err()
}

// Close đóng client
func (c *RedisCache) Close() error {
	return c.client.Close()
}

type memoryItem struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache Cache trong bộ nhớ, dọn mục hết hạn định kỳ
type MemoryCache struct {
	items    map[string]memoryItem
	mu       sync.RWMutex
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemoryCache tạo cache bộ nhớ; cleanup <= 0 tắt vòng dọn dẹp
func NewMemoryCache(cleanup time.Duration) *MemoryCache {
	c := &MemoryCache{
		items:    make(map[string]memoryItem),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	if cleanup > 0 {
		go c.cleanupLoop(cleanup)
	}
	return c
}

// Get đọc giá trị còn hạn
func (c *MemoryCache) Get(_ context.Context, key string, dst any) (bool, error) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(item.expiresAt) {
		return false, nil
	}
	if err := json.Unmarshal(item.data, dst); err != nil {
		return false, fmt.Errorf("decode cache %s: %w", key, err)
	}
	return true, nil
}

// Set lưu bản JSON của value, các lần đọc sau không chia sẻ con trỏ với caller
func (c *MemoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache %s: %w", key, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = memoryItem{data: data, expiresAt: c.now().Add(ttl)}
	return nil
}

// Close dừng vòng dọn dẹp
func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() { close(c.stopChan) })
	return nil
}

func (c *MemoryCache) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := c.now()
			c.mu.Lock()
			for k, item := range c.items {
				if !now.Before(item.expiresAt) {
					delete(c.items, k)
				}
			}
			c.mu.Unlock()
		case <-c.stopChan:
			return
		}
	}
}

var (
	_ Cache = (*RedisCache)(nil)
	_ Cache = (*MemoryCache)(nil)
)
