package route_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/lesson-invoices/backend/internal/distance"
	"github.com/pkordes/lesson-invoices/backend/internal/domain"
	"github.com/pkordes/lesson-invoices/backend/internal/route"
)

// ---- mocks -----------------------------------------------------------------

type mockDistances struct {
	distanceFn func(ctx context.Context, origin, destination string, opts distance.Options) (float64, error)
	warmFn     func(ctx context.Context, pairs []domain.AddressPair) error
	calls      []string
}

var _ route.Distances = (*mockDistances)(nil)

func (m *mockDistances) Distance(ctx context.Context, origin, destination string, opts distance.Options) (float64, error) {
	m.calls = append(m.calls, origin+">"+destination)
	return m.distanceFn(ctx, origin, destination, opts)
}

func (m *mockDistances) Warm(ctx context.Context, pairs []domain.AddressPair) error {
	if m.warmFn == nil {
		return nil
	}
	return m.warmFn(ctx, pairs)
}

type mockAddresses struct {
	home    string
	clients map[string]string
}

var _ route.AddressBook = (*mockAddresses)(nil)

func (m *mockAddresses) HomeAddress(context.Context) (string, error) { return m.home, nil }

func (m *mockAddresses) ClientAddress(_ context.Context, client string) (string, error) {
	return m.clients[client], nil
}

type mockStore struct {
	batches [][]domain.KilometerUpdate
	single  map[uuid.UUID]float64
}

var _ route.KilometerStore = (*mockStore)(nil)

func (m *mockStore) SetKilometers(_ context.Context, id uuid.UUID, km float64) error {
	if m.single == nil {
		m.single = map[uuid.UUID]float64{}
	}
	m.single[id] = km
	return nil
}

func (m *mockStore) SetKilometersBatch(_ context.Context, updates []domain.KilometerUpdate) error {
	m.batches = append(m.batches, updates)
	return nil
}

// ---- fixtures --------------------------------------------------------------

// table is a symmetric distance table keyed "a|b".
func table(entries map[string]float64) func(context.Context, string, string, distance.Options) (float64, error) {
	return func(_ context.Context, o, d string, _ distance.Options) (float64, error) {
		if o == d {
			return 0, nil
		}
		if km, ok := entries[o+"|"+d]; ok {
			return km, nil
		}
		if km, ok := entries[d+"|"+o]; ok {
			return km, nil
		}
		return 0, errors.New("no route " + o + " " + d)
	}
}

func lesson(day int, client string) domain.Row {
	r := domain.NewRow()
	r.Set("Lesson Date", domain.DateValue(time.Date(2024, 1, day, 9, 0, 0, 0, time.UTC)))
	r.Set("Client Name", domain.StringValue(client))
	return r
}

func stored(r domain.Row) domain.Row {
	r.ID = uuid.New()
	r.FileID = uuid.New()
	return r
}

func km(t *testing.T, r domain.Row) float64 {
	t.Helper()
	require.NotNil(t, r.Kilometers, "kilometers should be set")
	return *r.Kilometers
}

var book = &mockAddresses{
	home:    "H",
	clients: map[string]string{"C1": "C1 addr", "C2": "C2 addr", "C3": "C3 addr"},
}

var dists = map[string]float64{
	"H|C1 addr":       10,
	"C1 addr|C2 addr": 4,
	"C2 addr|H":       12,
	"H|C3 addr":       7.25,
	"C1 addr|C3 addr": 3,
}

func newCalc(d *mockDistances, store *mockStore) *route.Calculator {
	var ks route.KilometerStore
	if store != nil {
		ks = store
	}
	return route.NewCalculator(d, book, ks, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// ---- ComputeRoutes ---------------------------------------------------------

func TestComputeRoutes_TwoClientDay(t *testing.T) {
	d := &mockDistances{distanceFn: table(dists)}
	rows := []domain.Row{lesson(5, "C1"), lesson(5, "C2")}

	res, err := newCalc(d, nil).ComputeRoutes(context.Background(), rows, nil)

	require.NoError(t, err)
	assert.Nil(t, res.Warnings)
	assert.Equal(t, 10.0, km(t, res.Rows[0]), "home -> C1")
	assert.Equal(t, 16.0, km(t, res.Rows[1]), "C1 -> C2 plus C2 -> home")
	assert.Nil(t, rows[0].Kilometers, "input rows are not mutated")
}

func TestComputeRoutes_EachDayStartsFromHome(t *testing.T) {
	d := &mockDistances{distanceFn: table(dists)}
	rows := []domain.Row{lesson(5, "C1"), lesson(6, "C1")}

	res, err := newCalc(d, nil).ComputeRoutes(context.Background(), rows, nil)

	require.NoError(t, err)
	assert.Equal(t, 20.0, km(t, res.Rows[0]))
	assert.Equal(t, 20.0, km(t, res.Rows[1]))
	assert.Equal(t, []string{"H>C1 addr", "C1 addr>H", "H>C1 addr", "C1 addr>H"}, d.calls)
}

func TestComputeRoutes_RoundsToOneDecimal(t *testing.T) {
	d := &mockDistances{distanceFn: table(dists)}

	res, err := newCalc(d, nil).ComputeRoutes(context.Background(), []domain.Row{lesson(5, "C3")}, nil)

	require.NoError(t, err)
	assert.Equal(t, 14.5, km(t, res.Rows[0]))
}

func TestComputeRoutes_StoredValueKeptAndAdvances(t *testing.T) {
	d := &mockDistances{distanceFn: table(dists)}
	first := lesson(5, "C1")
	prior := 42.0
	first.Kilometers = &prior
	rows := []domain.Row{first, lesson(5, "C3")}

	res, err := newCalc(d, nil).ComputeRoutes(context.Background(), rows, nil)

	require.NoError(t, err)
	assert.Equal(t, 42.0, km(t, res.Rows[0]))
	assert.Equal(t, 10.3, km(t, res.Rows[1]), "C1 -> C3 plus C3 -> home")
	assert.NotContains(t, d.calls, "H>C1 addr")
}

func TestComputeRoutes_ClientWithoutAddress(t *testing.T) {
	d := &mockDistances{distanceFn: table(dists)}
	rows := []domain.Row{lesson(5, "C1"), lesson(5, "Nobody"), lesson(5, "C2")}

	res, err := newCalc(d, nil).ComputeRoutes(context.Background(), rows, nil)

	require.NoError(t, err)
	require.NotNil(t, res.Warnings)
	assert.Len(t, res.Warnings.Errors, 1)
	assert.Contains(t, res.Warnings.Error(), "Nobody")
	assert.Equal(t, 10.0, km(t, res.Rows[0]))
	assert.Equal(t, 0.0, km(t, res.Rows[1]))
	assert.Equal(t, 16.0, km(t, res.Rows[2]), "route continues from C1")
}

func TestComputeRoutes_FailedLegDegrades(t *testing.T) {
	d := &mockDistances{distanceFn: func(ctx context.Context, o, dst string, opts distance.Options) (float64, error) {
		if dst == "C2 addr" {
			return 0, domain.ErrRoute
		}
		return table(dists)(ctx, o, dst, opts)
	}}
	rows := []domain.Row{lesson(5, "C1"), lesson(5, "C2")}

	res, err := newCalc(d, nil).ComputeRoutes(context.Background(), rows, nil)

	require.NoError(t, err)
	require.NotNil(t, res.Warnings)
	assert.ErrorIs(t, res.Warnings, domain.ErrRoute)
	assert.Equal(t, 20.0, km(t, res.Rows[0]), "C1 becomes the last routed stop")
	assert.Equal(t, 0.0, km(t, res.Rows[1]))
}

func TestComputeRoutes_FailedReturnLegKeepsOutbound(t *testing.T) {
	d := &mockDistances{distanceFn: func(ctx context.Context, o, dst string, opts distance.Options) (float64, error) {
		if dst == "H" {
			return 0, domain.ErrRateLimited
		}
		return table(dists)(ctx, o, dst, opts)
	}}

	res, err := newCalc(d, nil).ComputeRoutes(context.Background(), []domain.Row{lesson(5, "C1")}, nil)

	require.NoError(t, err)
	assert.ErrorIs(t, res.Warnings, domain.ErrRateLimited)
	assert.Equal(t, 10.0, km(t, res.Rows[0]))
}

func TestComputeRoutes_ConfigErrorHaltsProviderCalls(t *testing.T) {
	d := &mockDistances{distanceFn: func(context.Context, string, string, distance.Options) (float64, error) {
		return 0, domain.ErrConfig
	}}
	rows := []domain.Row{lesson(5, "C1"), lesson(5, "C2"), lesson(6, "C3")}

	res, err := newCalc(d, nil).ComputeRoutes(context.Background(), rows, nil)

	require.NoError(t, err)
	assert.ErrorIs(t, res.Warnings, domain.ErrConfig)
	assert.Len(t, d.calls, 1)
	for _, r := range res.Rows {
		assert.Equal(t, 0.0, km(t, r))
	}
}

func TestComputeRoutes_MissingHome(t *testing.T) {
	d := &mockDistances{distanceFn: table(dists)}
	prior := 3.0
	r := lesson(5, "C1")
	r.Kilometers = &prior
	calc := route.NewCalculator(d, &mockAddresses{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	res, err := calc.ComputeRoutes(context.Background(), []domain.Row{r, lesson(5, "C2")}, nil)

	require.NoError(t, err)
	assert.ErrorIs(t, res.Warnings, domain.ErrConfig)
	assert.Equal(t, 3.0, km(t, res.Rows[0]))
	assert.Equal(t, 0.0, km(t, res.Rows[1]))
	assert.Empty(t, d.calls)
}

func TestComputeRoutes_UndatedRowsPassThrough(t *testing.T) {
	d := &mockDistances{distanceFn: table(dists)}
	undated := domain.NewRow()
	undated.Set("Lesson Date", domain.StringValue("TBC"))
	undated.Set("Client Name", domain.StringValue("C1"))

	res, err := newCalc(d, nil).ComputeRoutes(context.Background(), []domain.Row{undated}, nil)

	require.NoError(t, err)
	assert.Nil(t, res.Rows[0].Kilometers)
	assert.Empty(t, d.calls)
}

func TestComputeRoutes_PersistsFreshValuesPerDay(t *testing.T) {
	d := &mockDistances{distanceFn: table(dists)}
	store := &mockStore{}
	rows := []domain.Row{stored(lesson(5, "C1")), stored(lesson(5, "C2")), lesson(6, "C3"), stored(lesson(7, "C1"))}

	var progress []int
	res, err := newCalc(d, store).ComputeRoutes(context.Background(), rows, func(done, total int) {
		assert.Equal(t, 3, total)
		progress = append(progress, done)
	})

	require.NoError(t, err)
	assert.Nil(t, res.Warnings)
	assert.Equal(t, []int{1, 2, 3}, progress)
	require.Len(t, store.batches, 2, "day 6 has no stored rows")
	assert.Equal(t, []domain.KilometerUpdate{
		{RowID: rows[0].ID, Kilometers: 10},
		{RowID: rows[1].ID, Kilometers: 16},
	}, store.batches[0])
	assert.Equal(t, rows[3].ID, store.batches[1][0].RowID)
}

func TestComputeRoutes_WarmsWithDayLegs(t *testing.T) {
	var warmed []domain.AddressPair
	d := &mockDistances{
		distanceFn: table(dists),
		warmFn: func(_ context.Context, pairs []domain.AddressPair) error {
			warmed = pairs
			return nil
		},
	}

	_, err := newCalc(d, nil).ComputeRoutes(context.Background(), []domain.Row{lesson(5, "C1"), lesson(5, "C2")}, nil)

	require.NoError(t, err)
	assert.Equal(t, []domain.AddressPair{
		{Origin: "H", Destination: "C1 addr"},
		{Origin: "C1 addr", Destination: "C2 addr"},
		{Origin: "C2 addr", Destination: "H"},
	}, warmed)
}

func TestComputeRoutes_WarmSkipsLegsIntoStoredRows(t *testing.T) {
	var warmed []domain.AddressPair
	d := &mockDistances{
		distanceFn: table(dists),
		warmFn: func(_ context.Context, pairs []domain.AddressPair) error {
			warmed = pairs
			return nil
		},
	}
	first := lesson(5, "C1")
	prior := 42.0
	first.Kilometers = &prior

	_, err := newCalc(d, nil).ComputeRoutes(context.Background(), []domain.Row{first, lesson(5, "C3")}, nil)

	require.NoError(t, err)
	assert.Equal(t, []domain.AddressPair{
		{Origin: "C1 addr", Destination: "C3 addr"},
		{Origin: "C3 addr", Destination: "H"},
	}, warmed)
}

func TestComputeRoutes_WarmSkipsReturnAfterStoredLastStop(t *testing.T) {
	var warmed []domain.AddressPair
	d := &mockDistances{
		distanceFn: table(dists),
		warmFn: func(_ context.Context, pairs []domain.AddressPair) error {
			warmed = pairs
			return nil
		},
	}
	last := lesson(5, "C2")
	prior := 9.0
	last.Kilometers = &prior

	_, err := newCalc(d, nil).ComputeRoutes(context.Background(), []domain.Row{lesson(5, "C1"), last}, nil)

	require.NoError(t, err)
	assert.Equal(t, []domain.AddressPair{{Origin: "H", Destination: "C1 addr"}}, warmed)
}

// countingProvider is a routing provider that only counts calls.
type countingProvider struct {
	single, matrix int
}

func (p *countingProvider) Distance(context.Context, string, string) (float64, error) {
	p.single++
	return 1, nil
}

func (p *countingProvider) DistanceMatrix(_ context.Context, pairs []domain.AddressPair) (map[domain.AddressPair]float64, error) {
	p.matrix++
	out := make(map[domain.AddressPair]float64, len(pairs))
	for _, pr := range pairs {
		out[pr] = 1
	}
	return out, nil
}

func TestComputeRoutes_AllStoredMakesNoProviderCalls(t *testing.T) {
	provider := &countingProvider{}
	cache := distance.NewCache(provider, slog.New(slog.NewTextHandler(io.Discard, nil)), distance.NewMemoryTier())
	calc := route.NewCalculator(cache, book, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	a, b := lesson(5, "C1"), lesson(5, "C2")
	kmA, kmB := 8.0, 9.0
	a.Kilometers, b.Kilometers = &kmA, &kmB

	res, err := calc.ComputeRoutes(context.Background(), []domain.Row{a, b}, nil)

	require.NoError(t, err)
	assert.Zero(t, provider.single)
	assert.Zero(t, provider.matrix)
	assert.Equal(t, 8.0, km(t, res.Rows[0]))
	assert.Equal(t, 9.0, km(t, res.Rows[1]))
}

// ---- RefreshRow ------------------------------------------------------------

func TestRefreshRow_SkipsCacheAndPersists(t *testing.T) {
	var opts []distance.Options
	d := &mockDistances{distanceFn: func(ctx context.Context, o, dst string, op distance.Options) (float64, error) {
		opts = append(opts, op)
		return table(dists)(ctx, o, dst, op)
	}}
	store := &mockStore{}
	prior := 99.0
	row := stored(lesson(5, "C3"))
	row.Kilometers = &prior

	got, err := newCalc(d, store).RefreshRow(context.Background(), row)

	require.NoError(t, err)
	assert.Equal(t, 14.5, km(t, got))
	assert.Equal(t, 14.5, store.single[row.ID])
	for _, o := range opts {
		assert.True(t, o.SkipCache)
	}
}

func TestRefreshRow_Errors(t *testing.T) {
	d := &mockDistances{distanceFn: table(dists)}

	_, err := newCalc(d, nil).RefreshRow(context.Background(), lesson(5, "Nobody"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	noHome := route.NewCalculator(d, &mockAddresses{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err = noHome.RefreshRow(context.Background(), lesson(5, "C1"))
	assert.ErrorIs(t, err, domain.ErrConfig)

	failing := &mockDistances{distanceFn: func(context.Context, string, string, distance.Options) (float64, error) {
		return 0, domain.ErrGeocode
	}}
	_, err = newCalc(failing, nil).RefreshRow(context.Background(), lesson(5, "C1"))
	assert.ErrorIs(t, err, domain.ErrGeocode)
	assert.True(t, strings.Contains(err.Error(), "outbound"))
}

func TestRound(t *testing.T) {
	assert.Equal(t, 10.3, route.Round(10.25))
	assert.Equal(t, 0.0, route.Round(0.04))
}
