package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pkordes/lesson-invoices/backend/internal/domain"
)

// DistanceRepo is the durable tier of the distance cache.
// Addresses are stored normalized; callers may pass them in any case or spacing.
type DistanceRepo interface {
	// Get returns the cached distance between two addresses in either order.
	// Returns domain.ErrNotFound if neither direction is cached.
	Get(ctx context.Context, origin, destination string) (float64, error)

	// Put stores or overwrites the distance for origin -> destination.
	Put(ctx context.Context, origin, destination string, km float64) error

	// Clear removes every cached distance.
	Clear(ctx context.Context) error

	// Count returns the number of cached entries.
	Count(ctx context.Context) (int, error)
}

// pgDistanceRepo is the Postgres implementation of DistanceRepo.
type pgDistanceRepo struct {
	db db
}

// NewDistanceRepo constructs a DistanceRepo backed by the provided db connection.
func NewDistanceRepo(db db) DistanceRepo {
	return &pgDistanceRepo{db: db}
}

func (r *pgDistanceRepo) Get(ctx context.Context, origin, destination string) (float64, error) {
	const q = `
		SELECT distance_km FROM distance_cache
		WHERE (origin = @o AND destination = @d) OR (origin = @d AND destination = @o)
		ORDER BY (origin = @o) DESC
		LIMIT 1`

	var km float64
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{
		"o": domain.NormalizeAddress(origin),
		"d": domain.NormalizeAddress(destination),
	}).Scan(&km)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("repo.DistanceRepo.Get: %w", domain.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("repo.DistanceRepo.Get: %w: %w", domain.ErrStore, err)
	}
	return km, nil
}

func (r *pgDistanceRepo) Put(ctx context.Context, origin, destination string, km float64) error {
	const q = `
		INSERT INTO distance_cache (origin, destination, distance_km)
		VALUES (@o, @d, @km)
		ON CONFLICT (origin, destination)
		DO UPDATE SET distance_km = EXCLUDED.distance_km, created_at = now()`

	_, err := r.db.Exec(ctx, q, pgx.NamedArgs{
		"o":  domain.NormalizeAddress(origin),
		"d":  domain.NormalizeAddress(destination),
		"km": km,
	})
	if err != nil {
		return fmt.Errorf("repo.DistanceRepo.Put: %w: %w", domain.ErrStore, err)
	}
	return nil
}

func (r *pgDistanceRepo) Clear(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM distance_cache`); err != nil {
		return fmt.Errorf("repo.DistanceRepo.Clear: %w: %w", domain.ErrStore, err)
	}
	return nil
}

func (r *pgDistanceRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM distance_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("repo.DistanceRepo.Count: %w: %w", domain.ErrStore, err)
	}
	return n, nil
}
