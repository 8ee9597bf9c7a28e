package distance

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pkordes/lesson-invoices/backend/internal/domain"
)

// Tier is one level of the distance cache. Get returns ok=false on a miss;
// an error means the tier itself failed.
type Tier interface {
	Name() string
	Get(ctx context.Context, origin, destination string) (km float64, ok bool, err error)
	Put(ctx context.Context, origin, destination string, km float64) error
	Clear(ctx context.Context) error
}

// MemoryTier is the process-local tier. Keys are "origin|destination" of the
// normalised addresses; lookups check both orders.
type MemoryTier struct {
	mu      sync.RWMutex
	entries map[string]float64
}

// NewMemoryTier returns an empty MemoryTier.
func NewMemoryTier() *MemoryTier {
	return &MemoryTier{entries: map[string]float64{}}
}

func memKey(origin, destination string) string {
	return domain.NormalizeAddress(origin) + "|" + domain.NormalizeAddress(destination)
}

func (m *MemoryTier) Name() string { return "memory" }

func (m *MemoryTier) Get(_ context.Context, origin, destination string) (float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if km, ok := m.entries[memKey(origin, destination)]; ok {
		return km, true, nil
	}
	km, ok := m.entries[memKey(destination, origin)]
	return km, ok, nil
}

func (m *MemoryTier) Put(_ context.Context, origin, destination string, km float64) error {
	m.mu.Lock()
	m.entries[memKey(origin, destination)] = km
	m.mu.Unlock()
	return nil
}

func (m *MemoryTier) Clear(context.Context) error {
	m.mu.Lock()
	m.entries = map[string]float64{}
	m.mu.Unlock()
	return nil
}

// Len returns the number of entries held.
func (m *MemoryTier) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryTier) Count(context.Context) (int, error) { return m.Len(), nil }

// Store is the subset of repo.DistanceRepo the durable tier needs.
type Store interface {
	Get(ctx context.Context, origin, destination string) (float64, error)
	Put(ctx context.Context, origin, destination string, km float64) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// StoreTier adapts a durable Store to the Tier interface.
type StoreTier struct {
	store Store
}

// NewStoreTier wraps store.
func NewStoreTier(store Store) *StoreTier {
	return &StoreTier{store: store}
}

func (s *StoreTier) Name() string { return "store" }

func (s *StoreTier) Get(ctx context.Context, origin, destination string) (float64, bool, error) {
	km, err := s.store.Get(ctx, origin, destination)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("distance.StoreTier.Get: %w", err)
	}
	return km, true, nil
}

func (s *StoreTier) Put(ctx context.Context, origin, destination string, km float64) error {
	if err := s.store.Put(ctx, origin, destination, km); err != nil {
		return fmt.Errorf("distance.StoreTier.Put: %w", err)
	}
	return nil
}

func (s *StoreTier) Clear(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("distance.StoreTier.Clear: %w", err)
	}
	return nil
}

func (s *StoreTier) Count(ctx context.Context) (int, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("distance.StoreTier.Count: %w", err)
	}
	return n, nil
}
