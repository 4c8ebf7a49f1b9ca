package access

import (
	"context"
)

// RequestCache is the request-scoped read-through cache for access rule
// values, keyed by entity identifier and property key. It is owned by a
// single request worker and never shared across concurrent requests, so it
// needs no locking. It is invalidated alongside every successful flag
// mutation and discarded at the transaction boundary.
type RequestCache struct {
	values map[requestCacheKey]any
}

type requestCacheKey struct {
	entityID string
	key      string
}

// NewRequestCache creates an empty cache.
func NewRequestCache() *RequestCache {
	return &RequestCache{values: make(map[requestCacheKey]any)}
}

// Get returns a cached value.
func (c *RequestCache) Get(entityID, key string) (any, bool) {
	if c == nil {
		return nil, false
	}

	value, ok := c.values[requestCacheKey{entityID, key}]

	return value, ok
}

// Put stores a value.
func (c *RequestCache) Put(entityID, key string, value any) {
	if c == nil {
		return
	}

	c.values[requestCacheKey{entityID, key}] = value
}

// Invalidate drops the cached value for one entity property.
func (c *RequestCache) Invalidate(entityID, key string) {
	if c == nil {
		return
	}

	delete(c.values, requestCacheKey{entityID, key})
}

// InvalidateEntity drops every cached value of the entity.
func (c *RequestCache) InvalidateEntity(entityID string) {
	if c == nil {
		return
	}

	for k := range c.values {
		if k.entityID == entityID {
			delete(c.values, k)
		}
	}
}

// requestCacheContextKey is an unexported key type to prevent forgery.
type requestCacheContextKey struct{}

// WithRequestCache installs a fresh request cache on the context. Called
// once per inbound request.
func WithRequestCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestCacheContextKey{}, NewRequestCache())
}

// CacheFromContext returns the request cache, nil if absent. All cache
// methods tolerate a nil receiver, so callers use the result directly.
func CacheFromContext(ctx context.Context) *RequestCache {
	cache, _ := ctx.Value(requestCacheContextKey{}).(*RequestCache)
	return cache
}
