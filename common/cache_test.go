package common_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/guarzo/substream/common"
)

func TestCacheRepository(t *testing.T) {
	cache := common.NewCacheStore(time.Hour)

	// 1) Set + Get
	cache.Set("foo", []byte("bar"), time.Hour)
	val, found := cache.Get("foo")
	if !found {
		t.Error("expected 'foo' to be in cache, not found")
	}
	if string(val) != "bar" {
		t.Errorf("expected 'bar', got %s", string(val))
	}

	// 2) Delete
	cache.Delete("foo")
	_, found = cache.Get("foo")
	if found {
		t.Error("expected 'foo' to be deleted, but still found")
	}
}

func TestCacheRepository_Expiry(t *testing.T) {
	cache := common.NewCacheStore(time.Hour)

	cache.Set("short", []byte("x"), 10*time.Millisecond)
	cache.Set("default", []byte("y"), 0)

	assert.Eventually(t, func() bool {
		_, found := cache.Get("short")
		return !found
	}, time.Second, 5*time.Millisecond)

	_, found := cache.Get("default")
	assert.True(t, found)
}
