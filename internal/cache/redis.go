// Package cache provides an optional Redis cache for adapter lookups that
// are expensive to repeat per message (avatar URLs, resolved user profiles).
//
// Graceful fallback: if Redis is unavailable, operations silently return
// zero values instead of blocking the relay path.
package cache

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes.
const (
	KeyAvatar  = "avatar:"  // avatar:{platform}:{userID} → profile picture URL
	KeyProfile = "profile:" // profile:{platform}:{userID} → display name
)

// DefaultTTL bounds how long cached profile data is trusted.
const DefaultTTL = 6 * time.Hour

// Config holds Redis connection settings.
type Config struct {
	URL      string // redis://host:port
	Password string
	DB       int
}

var (
	client    *redis.Client
	connected bool
	mu        sync.RWMutex
)

// Init initializes the Redis connection. Returns true if connected.
func Init(cfg Config) bool {
	if cfg.URL == "" {
		return false
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		log.Printf("[Cache] invalid redis URL: %v", err)
		return false
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.DB
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.MaxRetries = 3

	c := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Ping(ctx).Err(); err != nil {
		log.Printf("[Cache] redis connection failed: %v", err)
		return false
	}

	mu.Lock()
	client = c
	connected = true
	mu.Unlock()

	log.Println("[Cache] redis connected")
	return true
}

// Close closes the Redis connection.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if client != nil {
		client.Close()
		client = nil
		connected = false
	}
}

// IsAvailable checks if Redis is connected.
func IsAvailable() bool {
	mu.RLock()
	defer mu.RUnlock()
	return connected && client != nil
}

func get() *redis.Client {
	mu.RLock()
	defer mu.RUnlock()
	if connected {
		return client
	}
	return nil
}

// Get reads a string value. Returns "" when unavailable or missing.
func Get(ctx context.Context, key string) string {
	c := get()
	if c == nil {
		return ""
	}
	val, err := c.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[Cache] get failed (%s): %v", key, err)
		}
		return ""
	}
	return val
}

// Set writes a string value with TTL. Returns false on failure.
func Set(ctx context.Context, key, value string, ttl time.Duration) bool {
	c := get()
	if c == nil {
		return false
	}
	if err := c.Set(ctx, key, value, ttl).Err(); err != nil {
		log.Printf("[Cache] set failed (%s): %v", key, err)
		return false
	}
	return true
}

// AvatarKey returns the cache key for a user's avatar URL on one platform.
func AvatarKey(platform, userID string) string {
	return fmt.Sprintf("%s%s:%s", KeyAvatar, platform, userID)
}

// ProfileKey returns the cache key for a user's display profile on one platform.
func ProfileKey(platform, userID string) string {
	return fmt.Sprintf("%s%s:%s", KeyProfile, platform, userID)
}
