package cache

import (
	"context"
	"os"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/axonlabs/axonfit/internal/domain/axon"
)

// DefaultTTL bounds how long a trained bundle stays retrievable without
// re-training. Zero disables expiry.
const DefaultTTL = 24 * time.Hour

type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, val []byte, ttl time.Duration)
}

type memory struct {
	mu sync.Mutex
	m  map[string]item
}

type item struct {
	b   []byte
	exp time.Time
}

// New returns the in-process cache.
func New() Cache { return &memory{m: make(map[string]item)} }

func (c *memory) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok {
		return nil, false
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(c.m, key)
		return nil, false
	}
	return e.b, true
}

func (c *memory) Set(key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := item{b: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	c.m[key] = e
}

// Redis adapter when REDIS_ADDR is set; memory otherwise.
type redisCache struct{ r *redis.Client }

func NewAuto() Cache {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return &redisCache{r: redis.NewClient(&redis.Options{Addr: addr})}
	}
	return New()
}

func (r *redisCache) Get(key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	v, err := r.r.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return v, true
}

func (r *redisCache) Set(key string, val []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = r.r.Set(ctx, key, val, ttl).Err()
}

// Bundles is the typed layer for trained model bundles, keyed by bundle ID.
type Bundles struct {
	c   Cache
	ttl time.Duration
}

// NewBundles wraps a byte cache for bundle storage.
func NewBundles(c Cache, ttl time.Duration) *Bundles {
	return &Bundles{c: c, ttl: ttl}
}

// Put stores an encoded bundle under its ID.
func (b *Bundles) Put(bundle *axon.Bundle) error {
	data, err := bundle.Encode()
	if err != nil {
		return err
	}
	b.c.Set("bundle:"+bundle.ID, data, b.ttl)
	return nil
}

// Get retrieves and decodes a bundle by ID.
func (b *Bundles) Get(id string) (*axon.Bundle, bool) {
	data, ok := b.c.Get("bundle:" + id)
	if !ok {
		return nil, false
	}
	bundle, err := axon.DecodeBundle(data)
	if err != nil {
		return nil, false
	}
	return bundle, true
}
