// Package route computes per-row driving distances for a day of lessons:
// home to the first client, client to client in spreadsheet order, and the
// last client back home.
package route

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/pkordes/lesson-invoices/backend/internal/distance"
	"github.com/pkordes/lesson-invoices/backend/internal/domain"
)

// Distances is the subset of *distance.Cache the calculator uses.
type Distances interface {
	Distance(ctx context.Context, origin, destination string, opts distance.Options) (float64, error)
	Warm(ctx context.Context, pairs []domain.AddressPair) error
}

// AddressBook resolves the home and client addresses. Unset addresses are "".
type AddressBook interface {
	HomeAddress(ctx context.Context) (string, error)
	ClientAddress(ctx context.Context, client string) (string, error)
}

// KilometerStore persists computed distances.
type KilometerStore interface {
	SetKilometers(ctx context.Context, rowID uuid.UUID, km float64) error
	SetKilometersBatch(ctx context.Context, updates []domain.KilometerUpdate) error
}

// Progress is called after each day is finished with the number of days done
// and the total.
type Progress func(done, total int)

// Result is the outcome of ComputeRoutes. Warnings collects every leg or
// address problem; it is nil when the run was clean.
type Result struct {
	Rows     []domain.Row
	Warnings *multierror.Error
}

// Calculator is the day-route calculator.
type Calculator struct {
	distances Distances
	addresses AddressBook
	store     KilometerStore
	logger    *slog.Logger
}

// NewCalculator wires a Calculator. store may be nil to skip persistence.
func NewCalculator(distances Distances, addresses AddressBook, store KilometerStore, logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{distances: distances, addresses: addresses, store: store, logger: logger}
}

// stop is one row of a day together with its resolved client address.
type stop struct {
	idx     int
	address string
}

// ComputeRoutes fills in kilometres for every dated row.
//
// Rows are grouped by the calendar date of their date column and each day is
// routed from home in row order. A row that already has a positive distance
// keeps it. Failures never abort the batch: the affected row gets 0 (or the
// outbound part when only the return leg failed) and a warning is recorded.
// Fresh positive values of stored rows are persisted per day.
//
// The returned error is reserved for failures reading the address book.
func (c *Calculator) ComputeRoutes(ctx context.Context, rows []domain.Row, progress Progress) (Result, error) {
	out := make([]domain.Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	res := Result{Rows: out}

	home, err := c.addresses.HomeAddress(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("route.Calculator.ComputeRoutes: %w", err)
	}
	if home == "" {
		for i := range out {
			setKm(&out[i], out[i].KilometersOrZero())
		}
		res.Warnings = multierror.Append(res.Warnings, fmt.Errorf("home address not set: %w", domain.ErrConfig))
		return res, nil
	}

	days, order := groupByDay(out)
	plans := make(map[time.Time][]stop, len(days))
	var pairs []domain.AddressPair
	for _, day := range order {
		stops, warns := c.resolveStops(ctx, out, days[day])
		if err := warns.ErrorOrNil(); err != nil {
			res.Warnings = multierror.Append(res.Warnings, warns.Errors...)
		}
		plans[day] = stops
		pairs = append(pairs, legs(home, out, stops)...)
	}

	if err := c.distances.Warm(ctx, pairs); err != nil {
		// Individual lookups below still run and report their own failures.
		c.logger.Warn("distance warm-up failed", "error", err)
	}

	halted := false
	for n, day := range order {
		if ctx.Err() != nil {
			res.Warnings = multierror.Append(res.Warnings, ctx.Err())
			break
		}
		updates := c.routeDay(ctx, home, out, plans[day], &halted, &res)
		if c.store != nil && len(updates) > 0 {
			if err := c.store.SetKilometersBatch(ctx, updates); err != nil {
				res.Warnings = multierror.Append(res.Warnings, fmt.Errorf("%s: save distances: %w", day.Format(time.DateOnly), err))
			}
		}
		if progress != nil {
			progress(n+1, len(order))
		}
	}

	if res.Warnings != nil {
		for _, w := range res.Warnings.Errors {
			c.logger.Warn("route warning", "warning", w.Error())
		}
	}
	return res, nil
}

// resolveStops looks up the address of each row of a day. Rows without a
// usable address get their stored value (or 0) and a warning and are left
// out of the route.
func (c *Calculator) resolveStops(ctx context.Context, rows []domain.Row, idxs []int) ([]stop, *multierror.Error) {
	var (
		stops []stop
		warns *multierror.Error
	)
	for _, i := range idxs {
		client := rows[i].ClientName()
		addr := ""
		if client != "" {
			a, err := c.addresses.ClientAddress(ctx, client)
			if err != nil {
				warns = multierror.Append(warns, fmt.Errorf("%s: %w", client, err))
			}
			addr = a
		}
		if addr == "" {
			setKm(&rows[i], rows[i].KilometersOrZero())
			warns = multierror.Append(warns, fmt.Errorf("no address for client %q: %w", client, domain.ErrValidation))
			continue
		}
		stops = append(stops, stop{idx: i, address: addr})
	}
	return stops, warns
}

// legs lists the pairs a day will look up, for the matrix warm-up. It follows
// the walk in routeDay: stops with a stored distance need no lookup but still
// move the position, and the return leg is needed only when the last stop is
// computed fresh.
func legs(home string, rows []domain.Row, stops []stop) []domain.AddressPair {
	var out []domain.AddressPair
	prev := home
	lastFresh := false
	for _, s := range stops {
		lastFresh = rows[s.idx].KilometersOrZero() <= 0
		if lastFresh {
			out = append(out, domain.AddressPair{Origin: prev, Destination: s.address})
		}
		prev = s.address
	}
	if lastFresh {
		out = append(out, domain.AddressPair{Origin: prev, Destination: home})
	}
	return out
}

// routeDay walks one day's stops. halted is set once the provider reports a
// configuration error so no further calls are made for the batch.
func (c *Calculator) routeDay(ctx context.Context, home string, rows []domain.Row, stops []stop, halted *bool, res *Result) []domain.KilometerUpdate {
	var (
		prev      = home
		lastFresh = -1
		lastAny   = -1
		fresh     = map[int]float64{}
	)

	for _, s := range stops {
		row := &rows[s.idx]
		if stored := row.KilometersOrZero(); stored > 0 {
			prev = s.address
			lastAny = s.idx
			continue
		}
		if *halted {
			setKm(row, 0)
			continue
		}
		km, err := c.distances.Distance(ctx, prev, s.address, distance.Options{})
		if err != nil {
			setKm(row, 0)
			res.Warnings = multierror.Append(res.Warnings, fmt.Errorf("%s -> %s: %w", prev, s.address, err))
			if errors.Is(err, domain.ErrConfig) {
				*halted = true
			}
			continue
		}
		fresh[s.idx] = km
		prev = s.address
		lastFresh, lastAny = s.idx, s.idx
	}

	if lastFresh >= 0 && lastFresh == lastAny && !*halted {
		back, err := c.distances.Distance(ctx, prev, home, distance.Options{})
		if err != nil {
			res.Warnings = multierror.Append(res.Warnings, fmt.Errorf("%s -> home: %w", prev, err))
			if errors.Is(err, domain.ErrConfig) {
				*halted = true
			}
		} else {
			fresh[lastFresh] += back
		}
	}

	idxs := make([]int, 0, len(fresh))
	for i := range fresh {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)

	var updates []domain.KilometerUpdate
	for _, i := range idxs {
		km := Round(fresh[i])
		setKm(&rows[i], km)
		if rows[i].Persisted() && km > 0 {
			updates = append(updates, domain.KilometerUpdate{RowID: rows[i].ID, Kilometers: km})
		}
	}
	return updates
}

// groupByDay returns row indexes per calendar date and the dates in order of
// first appearance. Rows without a date are not grouped.
func groupByDay(rows []domain.Row) (map[time.Time][]int, []time.Time) {
	days := map[time.Time][]int{}
	var order []time.Time
	for i, r := range rows {
		d, ok := r.LessonDate()
		if !ok {
			continue
		}
		if _, seen := days[d]; !seen {
			order = append(order, d)
		}
		days[d] = append(days[d], i)
	}
	return days, order
}

// Round rounds km to one decimal place.
func Round(km float64) float64 {
	return math.Round(km*10) / 10
}

func setKm(r *domain.Row, km float64) {
	r.Kilometers = &km
}
