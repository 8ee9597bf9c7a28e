package geo

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter gates outbound provider calls. *rate.Limiter satisfies it.
// A single Limiter must be shared by every caller of one provider account.
type Limiter interface {
	Wait(ctx context.Context) error
}

// NewLimiter allows one request per minInterval with no bursting.
// A non-positive interval disables limiting.
func NewLimiter(minInterval time.Duration) *rate.Limiter {
	if minInterval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(minInterval), 1)
}
