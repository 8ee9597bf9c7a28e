package distance_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/lesson-invoices/backend/internal/distance"
	"github.com/pkordes/lesson-invoices/backend/internal/domain"
)

// ---- mocks -----------------------------------------------------------------

type mockProvider struct {
	distanceFn func(ctx context.Context, origin, destination string) (float64, error)
	calls      atomic.Int32
}

var _ distance.Provider = (*mockProvider)(nil)

func (m *mockProvider) Distance(ctx context.Context, origin, destination string) (float64, error) {
	m.calls.Add(1)
	return m.distanceFn(ctx, origin, destination)
}

type mockMatrixProvider struct {
	mockProvider
	matrixFn func(ctx context.Context, pairs []domain.AddressPair) (map[domain.AddressPair]float64, error)
}

var _ distance.MatrixProvider = (*mockMatrixProvider)(nil)

func (m *mockMatrixProvider) DistanceMatrix(ctx context.Context, pairs []domain.AddressPair) (map[domain.AddressPair]float64, error) {
	return m.matrixFn(ctx, pairs)
}

// mapStore is an in-memory distance.Store keyed by normalised unordered pair.
type mapStore struct {
	mu      sync.Mutex
	entries map[string]float64
}

var _ distance.Store = (*mapStore)(nil)

func newMapStore() *mapStore { return &mapStore{entries: map[string]float64{}} }

func (s *mapStore) key(o, d string) string {
	return domain.NormalizeAddress(o) + "|" + domain.NormalizeAddress(d)
}

func (s *mapStore) Get(_ context.Context, o, d string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if km, ok := s.entries[s.key(o, d)]; ok {
		return km, nil
	}
	if km, ok := s.entries[s.key(d, o)]; ok {
		return km, nil
	}
	return 0, domain.ErrNotFound
}

func (s *mapStore) Put(_ context.Context, o, d string, km float64) error {
	s.mu.Lock()
	s.entries[s.key(o, d)] = km
	s.mu.Unlock()
	return nil
}

func (s *mapStore) Clear(context.Context) error {
	s.mu.Lock()
	s.entries = map[string]float64{}
	s.mu.Unlock()
	return nil
}

func (s *mapStore) Count(context.Context) (int, error) { return s.len(), nil }

func (s *mapStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func fixed(km float64) func(context.Context, string, string) (float64, error) {
	return func(context.Context, string, string) (float64, error) { return km, nil }
}

func newCache(p distance.Provider) (*distance.Cache, *distance.MemoryTier, *mapStore) {
	mem := distance.NewMemoryTier()
	store := newMapStore()
	return distance.NewCache(p, slog.New(slog.NewTextHandler(io.Discard, nil)), mem, distance.NewStoreTier(store)), mem, store
}

// ---- Distance --------------------------------------------------------------

func TestCache_Symmetry_NoSecondProviderCall(t *testing.T) {
	p := &mockProvider{distanceFn: fixed(8.4)}
	c, _, _ := newCache(p)
	ctx := context.Background()

	ab, err := c.Distance(ctx, "A St", "B Rd", distance.Options{})
	require.NoError(t, err)
	ba, err := c.Distance(ctx, "B Rd", "A St", distance.Options{})
	require.NoError(t, err)

	assert.Equal(t, ab, ba)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestCache_SameAddress_ZeroWithoutProvider(t *testing.T) {
	p := &mockProvider{distanceFn: fixed(99)}
	c, mem, store := newCache(p)

	km, err := c.Distance(context.Background(), "1 Home St", "  1 home st ", distance.Options{})

	require.NoError(t, err)
	assert.Zero(t, km)
	assert.Zero(t, p.calls.Load())
	assert.Equal(t, 1, mem.Len(), "zero is written through")
	assert.Equal(t, 1, store.len())
}

func TestCache_MissWritesThroughAllTiers(t *testing.T) {
	p := &mockProvider{distanceFn: fixed(3.2)}
	c, mem, store := newCache(p)

	_, err := c.Distance(context.Background(), "A", "B", distance.Options{})

	require.NoError(t, err)
	assert.Equal(t, 1, mem.Len())
	km, err := store.Get(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 3.2, km)
}

func TestCache_StoreHitBackfillsMemory(t *testing.T) {
	p := &mockProvider{distanceFn: fixed(1)}
	c, mem, store := newCache(p)
	require.NoError(t, store.Put(context.Background(), "A", "B", 5.5))

	km, err := c.Distance(context.Background(), "B", "A", distance.Options{})

	require.NoError(t, err)
	assert.Equal(t, 5.5, km)
	assert.Zero(t, p.calls.Load())
	assert.Equal(t, 1, mem.Len())
}

func TestCache_SkipCache_BypassesReadsButWrites(t *testing.T) {
	p := &mockProvider{distanceFn: fixed(7)}
	c, _, store := newCache(p)
	require.NoError(t, store.Put(context.Background(), "A", "B", 5.5))

	km, err := c.Distance(context.Background(), "A", "B", distance.Options{SkipCache: true})

	require.NoError(t, err)
	assert.Equal(t, 7.0, km)
	assert.Equal(t, int32(1), p.calls.Load())
	stored, err := store.Get(context.Background(), "A", "B")
	require.NoError(t, err)
	assert.Equal(t, 7.0, stored, "fresh value overwrites the stale one")
}

func TestCache_ProviderErrorNotCached(t *testing.T) {
	p := &mockProvider{distanceFn: func(context.Context, string, string) (float64, error) {
		return 0, domain.ErrGeocode
	}}
	c, mem, store := newCache(p)

	_, err := c.Distance(context.Background(), "A", "B", distance.Options{})

	assert.ErrorIs(t, err, domain.ErrGeocode)
	assert.Zero(t, mem.Len())
	assert.Zero(t, store.len())
}

func TestCache_ConcurrentMissesCollapse(t *testing.T) {
	release := make(chan struct{})
	p := &mockProvider{distanceFn: func(context.Context, string, string) (float64, error) {
		<-release
		return 4, nil
	}}
	c, _, _ := newCache(p)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km, err := c.Distance(context.Background(), "A", "B", distance.Options{})
			assert.NoError(t, err)
			assert.Equal(t, 4.0, km)
		}()
	}
	// Give the goroutines a moment to pile up behind the first call.
	for p.calls.Load() == 0 {
		runtime.Gosched()
	}
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, p.calls.Load(), int32(5))
	assert.GreaterOrEqual(t, p.calls.Load(), int32(1))
}

// ---- Warm and Clear --------------------------------------------------------

func TestCache_Warm_UsesMatrixForMissingPairs(t *testing.T) {
	var requested []domain.AddressPair
	p := &mockMatrixProvider{
		mockProvider: mockProvider{distanceFn: fixed(100)},
		matrixFn: func(_ context.Context, pairs []domain.AddressPair) (map[domain.AddressPair]float64, error) {
			requested = pairs
			out := map[domain.AddressPair]float64{}
			for i, pr := range pairs {
				out[pr] = float64(i + 1)
			}
			return out, nil
		},
	}
	c, mem, _ := newCache(p)
	ctx := context.Background()
	require.NoError(t, mem.Put(ctx, "H", "C1", 2.5))

	err := c.Warm(ctx, []domain.AddressPair{
		{Origin: "H", Destination: "C1"},  // cached
		{Origin: "C1", Destination: "C2"}, // missing
		{Origin: "C2", Destination: "H"},  // missing
		{Origin: "H", Destination: "C2"},  // reverse of previous
		{Origin: "C2", Destination: "c2"}, // same address
	})
	require.NoError(t, err)

	assert.Len(t, requested, 2)
	km, err := c.Distance(ctx, "C2", "C1", distance.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, km)
	assert.Zero(t, p.calls.Load(), "warmed pairs need no single lookups")
}

func TestCache_Warm_WithoutMatrixIsNoop(t *testing.T) {
	p := &mockProvider{distanceFn: fixed(1)}
	c, _, _ := newCache(p)

	err := c.Warm(context.Background(), []domain.AddressPair{{Origin: "A", Destination: "B"}, {Origin: "B", Destination: "C"}})

	require.NoError(t, err)
	assert.Zero(t, p.calls.Load())
}

func TestCache_Warm_MatrixErrorReturned(t *testing.T) {
	p := &mockMatrixProvider{
		mockProvider: mockProvider{distanceFn: fixed(1)},
		matrixFn: func(context.Context, []domain.AddressPair) (map[domain.AddressPair]float64, error) {
			return nil, errors.New("boom")
		},
	}
	c, _, _ := newCache(p)

	err := c.Warm(context.Background(), []domain.AddressPair{{Origin: "A", Destination: "B"}, {Origin: "B", Destination: "C"}})

	assert.Error(t, err)
}

func TestCache_Clear(t *testing.T) {
	p := &mockProvider{distanceFn: fixed(2)}
	c, mem, store := newCache(p)
	ctx := context.Background()
	_, err := c.Distance(ctx, "A", "B", distance.Options{})
	require.NoError(t, err)

	require.NoError(t, c.Clear(ctx))

	assert.Zero(t, mem.Len())
	assert.Zero(t, store.len())
	_, err = c.Distance(ctx, "A", "B", distance.Options{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestCache_Size_ReportsDurableTier(t *testing.T) {
	c, mem, _ := newCache(&mockProvider{distanceFn: fixed(5)})
	ctx := context.Background()

	_, err := c.Distance(ctx, "A", "B", distance.Options{})
	require.NoError(t, err)
	_, err = c.Distance(ctx, "A", "C", distance.Options{})
	require.NoError(t, err)
	require.NoError(t, mem.Clear(ctx))

	n, err := c.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "counted from the store, not the emptied memory tier")
}
