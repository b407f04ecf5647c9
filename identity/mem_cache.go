package identity

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type MemCache struct {
	logCache *expirable.LRU[string, string]
}

func NewMemCache(size int, ttl time.Duration) *MemCache {
	return &MemCache{
		logCache: expirable.NewLRU[string, string](size, nil, ttl),
	}
}

func (mc *MemCache) GetLog(did string) (string, bool) {
	return mc.logCache.Get(did)
}

func (mc *MemCache) PutLog(did string, log string) error {
	mc.logCache.Add(did, log)
	return nil
}

func (mc *MemCache) BustLog(did string) error {
	mc.logCache.Remove(did)
	return nil
}
