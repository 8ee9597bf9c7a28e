package route

import (
	"context"
	"fmt"

	"github.com/pkordes/lesson-invoices/backend/internal/distance"
	"github.com/pkordes/lesson-invoices/backend/internal/domain"
)

// RefreshRow recomputes one row as a home -> client -> home round trip,
// bypassing cached distances. The fresh value is written through the cache
// and, for stored rows, persisted. Unlike ComputeRoutes every failure is
// returned.
func (c *Calculator) RefreshRow(ctx context.Context, row domain.Row) (domain.Row, error) {
	home, err := c.addresses.HomeAddress(ctx)
	if err != nil {
		return domain.Row{}, fmt.Errorf("route.Calculator.RefreshRow: %w", err)
	}
	if home == "" {
		return domain.Row{}, fmt.Errorf("route.Calculator.RefreshRow: home address not set: %w", domain.ErrConfig)
	}

	client := row.ClientName()
	if client == "" {
		return domain.Row{}, fmt.Errorf("route.Calculator.RefreshRow: row has no client: %w", domain.ErrValidation)
	}
	addr, err := c.addresses.ClientAddress(ctx, client)
	if err != nil {
		return domain.Row{}, fmt.Errorf("route.Calculator.RefreshRow: %w", err)
	}
	if addr == "" {
		return domain.Row{}, fmt.Errorf("route.Calculator.RefreshRow: no address for client %q: %w", client, domain.ErrValidation)
	}

	skip := distance.Options{SkipCache: true}
	out, err := c.distances.Distance(ctx, home, addr, skip)
	if err != nil {
		return domain.Row{}, fmt.Errorf("route.Calculator.RefreshRow: outbound: %w", err)
	}
	back, err := c.distances.Distance(ctx, addr, home, skip)
	if err != nil {
		return domain.Row{}, fmt.Errorf("route.Calculator.RefreshRow: return: %w", err)
	}

	updated := row.Clone()
	setKm(&updated, Round(out+back))
	if c.store != nil && updated.Persisted() {
		if err := c.store.SetKilometers(ctx, updated.ID, *updated.Kilometers); err != nil {
			return domain.Row{}, fmt.Errorf("route.Calculator.RefreshRow: %w", err)
		}
	}
	return updated, nil
}
