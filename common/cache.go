package common

import (
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	DefaultExpiration = 5 * time.Minute
	cleanupInterval   = 10 * time.Minute
)

// CacheRepository defines a minimal interface for a key/value cache.
// The values are stored as raw []byte, which you can marshal/unmarshal
// from JSON or other formats as needed.
type CacheRepository interface {
	Get(key string) (value []byte, found bool)
	Set(key string, value []byte, expiration time.Duration)
	Delete(key string)
}

var _ CacheRepository = (*cacheStore)(nil)

type cacheStore struct {
	cache *cache.Cache
}

// NewCacheStore returns an in-process CacheRepository. A non-positive
// defaultExpiration falls back to DefaultExpiration.
func NewCacheStore(defaultExpiration time.Duration) CacheRepository {
	if defaultExpiration <= 0 {
		defaultExpiration = DefaultExpiration
	}
	return &cacheStore{
		cache: cache.New(defaultExpiration, cleanupInterval),
	}
}

func (c *cacheStore) Get(key string) ([]byte, bool) {
	value, found := c.cache.Get(key)
	if found {
		return value.([]byte), true
	}
	return nil, false
}

func (c *cacheStore) Delete(key string) {
	c.cache.Delete(key)
}

// Set stores value; a zero expiration uses the store default.
func (c *cacheStore) Set(key string, value []byte, expiration time.Duration) {
	if expiration == 0 {
		expiration = cache.DefaultExpiration
	}
	c.cache.Set(key, value, expiration)
}
