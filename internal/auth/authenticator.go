package auth

import (
	"context"
	"sync"
	"time"

	"st-telemetry/gateway/internal/config"
	"st-telemetry/gateway/internal/store"
)

type cacheEntry struct {
	owner     string
	expiresAt time.Time
}

// Authenticator validates API keys in three levels: static config keys, a
// local TTL cache, then redis. With no static keys and no redis configured
// it accepts everything, which is the development default.
type Authenticator struct {
	localCache sync.Map
	redis      *store.RedisStore
	ttl        time.Duration
	staticKeys map[string]bool
}

func NewAuthenticator(cfg *config.Config, redis *store.RedisStore) *Authenticator {
	staticKeys := make(map[string]bool, len(cfg.ValidAPIKeys))
	for _, k := range cfg.ValidAPIKeys {
		if k != "" {
			staticKeys[k] = true
		}
	}

	return &Authenticator{
		redis:      redis,
		ttl:        time.Duration(cfg.AuthCacheTTLSeconds) * time.Second,
		staticKeys: staticKeys,
	}
}

// Enabled reports whether any key source is configured. When false, the
// transport skips auth entirely.
func (a *Authenticator) Enabled() bool {
	return len(a.staticKeys) > 0 || a.redis != nil
}

// Validate checks the cheapest source first: static keys, then the local
// cache, then redis. A redis hit is cached for the configured TTL.
func (a *Authenticator) Validate(ctx context.Context, apiKey string) bool {
	if apiKey == "" {
		return false
	}
	if a.staticKeys[apiKey] {
		return true
	}
	if a.cachedValid(apiKey) {
		return true
	}
	return a.lookupRedis(ctx, apiKey)
}

func (a *Authenticator) cachedValid(apiKey string) bool {
	raw, ok := a.localCache.Load(apiKey)
	if !ok {
		return false
	}
	entry := raw.(cacheEntry)
	if time.Now().After(entry.expiresAt) {
		a.localCache.Delete(apiKey)
		return false
	}
	return true
}

func (a *Authenticator) lookupRedis(ctx context.Context, apiKey string) bool {
	if a.redis == nil {
		return false
	}
	owner, err := a.redis.GetAPIKey(ctx, apiKey)
	if err != nil || owner == "" {
		return false
	}
	a.localCache.Store(apiKey, cacheEntry{
		owner:     owner,
		expiresAt: time.Now().Add(a.ttl),
	})
	return true
}
