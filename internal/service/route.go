package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pkordes/lesson-invoices/backend/internal/domain"
	"github.com/pkordes/lesson-invoices/backend/internal/repo"
	"github.com/pkordes/lesson-invoices/backend/internal/route"
)

// RouteCalculator is the subset of *route.Calculator the service uses.
type RouteCalculator interface {
	ComputeRoutes(ctx context.Context, rows []domain.Row, progress route.Progress) (route.Result, error)
	RefreshRow(ctx context.Context, row domain.Row) (domain.Row, error)
}

// CacheClearer empties the distance cache. *distance.Cache satisfies it.
type CacheClearer interface {
	Size(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// RouteSummary reports a route computation over the stored rows.
type RouteSummary struct {
	Rows     int      `json:"rows"`
	Routed   int      `json:"routed"`
	Warnings []string `json:"warnings"`
}

// RouteService runs the day-route calculator over stored rows.
type RouteService struct {
	repo   repo.InvoiceRepo
	calc   RouteCalculator
	cache  CacheClearer
	logger *slog.Logger
}

// NewRouteService constructs a RouteService.
func NewRouteService(r repo.InvoiceRepo, calc RouteCalculator, cache CacheClearer, logger *slog.Logger) *RouteService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RouteService{repo: r, calc: calc, cache: cache, logger: logger}
}

// ComputeAll loads every stored row and computes missing distances.
// Leg failures are reported as warnings, not as an error.
func (s *RouteService) ComputeAll(ctx context.Context) (RouteSummary, error) {
	agg, err := s.repo.AllRows(ctx)
	if err != nil {
		return RouteSummary{}, fmt.Errorf("service.RouteService.ComputeAll: %w", err)
	}

	res, err := s.calc.ComputeRoutes(ctx, agg.Rows, func(done, total int) {
		s.logger.Debug("route progress", "days_done", done, "days_total", total)
	})
	if err != nil {
		return RouteSummary{}, fmt.Errorf("service.RouteService.ComputeAll: %w", err)
	}

	sum := RouteSummary{Rows: len(res.Rows), Warnings: []string{}}
	for _, r := range res.Rows {
		if r.KilometersOrZero() > 0 {
			sum.Routed++
		}
	}
	if res.Warnings != nil {
		for _, w := range res.Warnings.Errors {
			sum.Warnings = append(sum.Warnings, w.Error())
		}
	}
	return sum, nil
}

// RefreshRow recomputes one stored row, bypassing cached distances.
func (s *RouteService) RefreshRow(ctx context.Context, id uuid.UUID) (domain.Row, error) {
	row, err := s.repo.GetRow(ctx, id)
	if err != nil {
		return domain.Row{}, fmt.Errorf("service.RouteService.RefreshRow: %w", err)
	}
	updated, err := s.calc.RefreshRow(ctx, row)
	if err != nil {
		return domain.Row{}, fmt.Errorf("service.RouteService.RefreshRow: %w", err)
	}
	return updated, nil
}

// ClearCache empties the memory and durable distance tiers. Row kilometres
// are kept.
func (s *RouteService) ClearCache(ctx context.Context) error {
	n, err := s.cache.Size(ctx)
	if err != nil {
		s.logger.Warn("count distance cache", "error", err)
	}
	if err := s.cache.Clear(ctx); err != nil {
		return fmt.Errorf("service.RouteService.ClearCache: %w", err)
	}
	s.logger.Info("distance cache cleared", "entries", n)
	return nil
}
