package codeintel

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
)

// Cached memoises successful collaborator answers. Negative results and
// errors are never cached.
type Cached struct {
	next  Service
	cache *cache.Cache

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCached wraps next with a TTL cache
func NewCached(next Service, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cached{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Flush drops every cached answer. Called after builds change the code.
func (c *Cached) Flush() {
	n := c.cache.ItemCount()
	c.cache.Flush()
	if n > 0 {
		log.Printf("🗑️  [CODEINTEL] Flushed %d cached results", n)
	}
}

// Stats returns cache hit and miss counts
func (c *Cached) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func lookup[T any](c *Cached, key string, load func() (T, error)) (T, error) {
	if v, ok := c.cache.Get(key); ok {
		if typed, ok := v.(T); ok {
			c.hits.Add(1)
			return typed, nil
		}
	}
	c.misses.Add(1)
	v, err := load()
	if err != nil {
		return v, err
	}
	c.cache.Set(key, v, cache.DefaultExpiration)
	return v, nil
}

// SearchSymbols implements Service
func (c *Cached) SearchSymbols(ctx context.Context, q SearchQuery) ([]Symbol, error) {
	key := fmt.Sprintf("search|%s|%s|%d", q.Query, q.Kind, q.Limit)
	return lookup(c, key, func() ([]Symbol, error) { return c.next.SearchSymbols(ctx, q) })
}

// GoToDefinition implements Service
func (c *Cached) GoToDefinition(ctx context.Context, pos Position) (*Symbol, error) {
	key := fmt.Sprintf("def|%s|%d|%d", pos.File, pos.Line, pos.Column)
	return lookup(c, key, func() (*Symbol, error) { return c.next.GoToDefinition(ctx, pos) })
}

// FindReferences implements Service
func (c *Cached) FindReferences(ctx context.Context, pos Position, includeDeclaration bool) (*References, error) {
	key := fmt.Sprintf("refs|%s|%d|%d|%t", pos.File, pos.Line, pos.Column, includeDeclaration)
	return lookup(c, key, func() (*References, error) { return c.next.FindReferences(ctx, pos, includeDeclaration) })
}

// Outline implements Service
func (c *Cached) Outline(ctx context.Context, file string) ([]*Symbol, error) {
	return lookup(c, "outline|"+file, func() ([]*Symbol, error) { return c.next.Outline(ctx, file) })
}

// SemanticInfo implements Service
func (c *Cached) SemanticInfo(ctx context.Context, pos Position) (*SemanticInfo, error) {
	key := fmt.Sprintf("sem|%s|%d|%d", pos.File, pos.Line, pos.Column)
	return lookup(c, key, func() (*SemanticInfo, error) { return c.next.SemanticInfo(ctx, pos) })
}
