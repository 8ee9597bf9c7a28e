// Package distance is the read-through, write-through distance cache that
// sits in front of the routing provider.
package distance

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/pkordes/lesson-invoices/backend/internal/domain"
)

// Provider computes a fresh distance. *geo.Client satisfies it.
type Provider interface {
	Distance(ctx context.Context, origin, destination string) (float64, error)
}

// MatrixProvider is implemented by providers that can resolve many pairs in
// one request.
type MatrixProvider interface {
	DistanceMatrix(ctx context.Context, pairs []domain.AddressPair) (map[domain.AddressPair]float64, error)
}

// Options tune a single lookup.
type Options struct {
	// SkipCache bypasses every tier read; the fresh value is still written through.
	SkipCache bool
}

// Cache coordinates the tiers, fastest first, and the provider.
type Cache struct {
	tiers    []Tier
	provider Provider
	logger   *slog.Logger
	group    singleflight.Group
}

// NewCache builds a Cache over tiers ordered fastest first.
func NewCache(provider Provider, logger *slog.Logger, tiers ...Tier) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{tiers: tiers, provider: provider, logger: logger}
}

// Distance returns the distance in kilometres between two addresses.
//
// Identical addresses (after normalisation) are 0 without consulting the
// provider. Otherwise tiers are read in order; a hit is copied into every
// faster tier. A miss asks the provider and writes the value into all tiers
// before returning. Tier write failures are logged, not returned.
func (c *Cache) Distance(ctx context.Context, origin, destination string, opts Options) (float64, error) {
	pair := domain.AddressPair{Origin: origin, Destination: destination}
	if pair.SameAddress() {
		c.writeThrough(ctx, len(c.tiers), origin, destination, 0)
		return 0, nil
	}

	if !opts.SkipCache {
		for i, t := range c.tiers {
			km, ok, err := t.Get(ctx, origin, destination)
			if err != nil {
				c.logger.Warn("distance tier read failed", "tier", t.Name(), "error", err)
				continue
			}
			if ok {
				c.writeThrough(ctx, i, origin, destination, km)
				return km, nil
			}
		}
	}

	key := memKey(origin, destination)
	if opts.SkipCache {
		key = "skip|" + key
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		km, err := c.provider.Distance(ctx, origin, destination)
		if err != nil {
			return 0.0, err
		}
		c.writeThrough(ctx, len(c.tiers), origin, destination, km)
		return km, nil
	})
	if err != nil {
		return 0, fmt.Errorf("distance.Cache.Distance: %w", err)
	}
	return v.(float64), nil
}

// writeThrough stores km in tiers[0:upto].
func (c *Cache) writeThrough(ctx context.Context, upto int, origin, destination string, km float64) {
	for _, t := range c.tiers[:upto] {
		if err := t.Put(ctx, origin, destination, km); err != nil {
			c.logger.Warn("distance tier write failed", "tier", t.Name(), "error", err)
		}
	}
}

// Warm resolves every uncached pair with one matrix request when the provider
// supports it, and writes the results through. Pairs the matrix cannot
// resolve are left for Distance to fetch individually.
func (c *Cache) Warm(ctx context.Context, pairs []domain.AddressPair) error {
	mp, ok := c.provider.(MatrixProvider)
	if !ok {
		return nil
	}

	var missing []domain.AddressPair
	seen := map[string]bool{}
	for _, p := range pairs {
		if p.SameAddress() || seen[memKey(p.Origin, p.Destination)] || seen[memKey(p.Destination, p.Origin)] {
			continue
		}
		seen[memKey(p.Origin, p.Destination)] = true
		if !c.cached(ctx, p) {
			missing = append(missing, p)
		}
	}
	if len(missing) < 2 {
		return nil
	}

	got, err := mp.DistanceMatrix(ctx, missing)
	if err != nil {
		return fmt.Errorf("distance.Cache.Warm: %w", err)
	}
	for p, km := range got {
		c.writeThrough(ctx, len(c.tiers), p.Origin, p.Destination, km)
	}
	c.logger.Debug("distance cache warmed", "requested", len(missing), "resolved", len(got))
	return nil
}

func (c *Cache) cached(ctx context.Context, p domain.AddressPair) bool {
	for _, t := range c.tiers {
		if _, ok, err := t.Get(ctx, p.Origin, p.Destination); err == nil && ok {
			return true
		}
	}
	return false
}

// counter is implemented by tiers that can report their size.
type counter interface {
	Count(ctx context.Context) (int, error)
}

// Size returns the entry count of the most durable tier that can report one.
func (c *Cache) Size(ctx context.Context) (int, error) {
	for i := len(c.tiers) - 1; i >= 0; i-- {
		if ct, ok := c.tiers[i].(counter); ok {
			n, err := ct.Count(ctx)
			if err != nil {
				return 0, fmt.Errorf("distance.Cache.Size: %s: %w", c.tiers[i].Name(), err)
			}
			return n, nil
		}
	}
	return 0, nil
}

// Clear empties every tier.
func (c *Cache) Clear(ctx context.Context) error {
	for _, t := range c.tiers {
		if err := t.Clear(ctx); err != nil {
			return fmt.Errorf("distance.Cache.Clear: %s: %w", t.Name(), err)
		}
	}
	return nil
}
