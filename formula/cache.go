package formula

import (
	"context"
	"sync"
)

// =============================================================================
// CACHING RESOLVER - Per-run memoisation of resolution
// =============================================================================

type cacheKey struct {
	Type     Type
	Category Category
	AsOf     string
	Override FormulaID
}

// CachingResolver memoises successful resolutions. Create one per payroll
// run: formulas rarely change mid-run, and thousands of employees share the
// same handful of lookups. Errors are not cached.
type CachingResolver struct {
	next Resolver

	mu      sync.RWMutex
	entries map[cacheKey]Formula
}

func NewCachingResolver(next Resolver) *CachingResolver {
	return &CachingResolver{
		next:    next,
		entries: make(map[cacheKey]Formula),
	}
}

func (c *CachingResolver) Resolve(ctx context.Context, t Type, cat Category, asOf Date, override FormulaID) (*Formula, error) {
	k := cacheKey{Type: t, Category: cat, AsOf: asOf.String(), Override: override}

	c.mu.RLock()
	f, ok := c.entries[k]
	c.mu.RUnlock()
	if ok {
		return &f, nil
	}

	resolved, err := c.next.Resolve(ctx, t, cat, asOf, override)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[k] = *resolved
	c.mu.Unlock()

	out := *resolved
	return &out, nil
}

// Len returns the number of cached resolutions.
func (c *CachingResolver) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
