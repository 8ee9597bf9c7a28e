// Package geo talks to an OpenRouteService-compatible routing provider:
// address geocoding, point-to-point driving distance and distance matrices.
// Every outbound request passes through a shared Limiter and is retried on
// throttling and transport failures.
package geo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/pkordes/lesson-invoices/backend/internal/domain"
)

// Config holds the provider connection settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Profile     string
	MaxAttempts int
	Backoff     time.Duration
	Timeout     time.Duration
}

const (
	DefaultBaseURL = "https://api.openrouteservice.org"
	DefaultProfile = "driving-car"
)

// Client is the routing provider client. It is safe for concurrent use.
type Client struct {
	http    *resty.Client
	cfg     Config
	limiter Limiter
	logger  *slog.Logger

	mu     sync.Mutex
	coords map[string]domain.Coordinates
}

// NewClient builds a Client. A nil limiter means no rate limiting.
func NewClient(cfg Config, limiter Limiter, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Profile == "" {
		cfg.Profile = DefaultProfile
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if limiter == nil {
		limiter = NewLimiter(0)
	}
	if logger == nil {
		logger = slog.Default()
	}

	h := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json, application/geo+json").
		SetHeader("Authorization", cfg.APIKey)

	return &Client{
		http:    h,
		cfg:     cfg,
		limiter: limiter,
		logger:  logger,
		coords:  map[string]domain.Coordinates{},
	}
}

func (c *Client) checkConfig() error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return fmt.Errorf("routing api key not configured: %w", domain.ErrConfig)
	}
	return nil
}

type geocodeResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// Geocode resolves an address to coordinates. Results are memoised per
// normalised address for the life of the Client.
func (c *Client) Geocode(ctx context.Context, address string) (domain.Coordinates, error) {
	if err := c.checkConfig(); err != nil {
		return domain.Coordinates{}, fmt.Errorf("geo.Client.Geocode: %w", err)
	}
	key := domain.NormalizeAddress(address)
	if key == "" {
		return domain.Coordinates{}, fmt.Errorf("geo.Client.Geocode: empty address: %w", domain.ErrGeocode)
	}

	c.mu.Lock()
	pt, ok := c.coords[key]
	c.mu.Unlock()
	if ok {
		return pt, nil
	}

	var out geocodeResponse
	_, err := c.send(ctx, func() *resty.Request {
		return c.http.R().
			SetQueryParams(map[string]string{"text": strings.TrimSpace(address), "size": "1"}).
			SetResult(&out)
	}, http.MethodGet, "/geocode/search")
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("geo.Client.Geocode: %q: %w", address, asGeocodeErr(err))
	}
	if len(out.Features) == 0 || len(out.Features[0].Geometry.Coordinates) < 2 {
		return domain.Coordinates{}, fmt.Errorf("geo.Client.Geocode: %q: no match: %w", address, domain.ErrGeocode)
	}

	lnglat := out.Features[0].Geometry.Coordinates
	pt = domain.Coordinates{Lat: lnglat[1], Lng: lnglat[0]}

	c.mu.Lock()
	c.coords[key] = pt
	c.mu.Unlock()
	return pt, nil
}

// asGeocodeErr maps plain HTTP failures of the geocoder onto ErrGeocode while
// keeping throttling and cancellation errors as they are.
func asGeocodeErr(err error) error {
	var se *statusError
	if errors.As(err, &se) {
		return fmt.Errorf("%w: %w", domain.ErrGeocode, err)
	}
	return err
}

type directionsResponse struct {
	Features []struct {
		Properties struct {
			Summary struct {
				Distance *float64 `json:"distance"`
			} `json:"summary"`
		} `json:"properties"`
	} `json:"features"`
}

// Route returns the driving distance in kilometres between two points.
func (c *Client) Route(ctx context.Context, from, to domain.Coordinates) (float64, error) {
	if err := c.checkConfig(); err != nil {
		return 0, fmt.Errorf("geo.Client.Route: %w", err)
	}

	var out directionsResponse
	_, err := c.send(ctx, func() *resty.Request {
		return c.http.R().
			SetPathParam("profile", c.cfg.Profile).
			SetQueryParams(map[string]string{"start": lngLat(from), "end": lngLat(to)}).
			SetResult(&out)
	}, http.MethodGet, "/v2/directions/{profile}")
	if err != nil {
		return 0, fmt.Errorf("geo.Client.Route: %w", asRouteErr(err))
	}
	if len(out.Features) == 0 || out.Features[0].Properties.Summary.Distance == nil {
		return 0, fmt.Errorf("geo.Client.Route: no route found: %w", domain.ErrRoute)
	}
	return metersToKm(*out.Features[0].Properties.Summary.Distance), nil
}

func asRouteErr(err error) error {
	var se *statusError
	if errors.As(err, &se) {
		return fmt.Errorf("%w: %w", domain.ErrRoute, err)
	}
	return err
}

// Distance geocodes both addresses and routes between them.
func (c *Client) Distance(ctx context.Context, origin, destination string) (float64, error) {
	if err := c.checkConfig(); err != nil {
		return 0, fmt.Errorf("geo.Client.Distance: %w", err)
	}
	from, err := c.Geocode(ctx, origin)
	if err != nil {
		return 0, fmt.Errorf("geo.Client.Distance: %w", err)
	}
	to, err := c.Geocode(ctx, destination)
	if err != nil {
		return 0, fmt.Errorf("geo.Client.Distance: %w", err)
	}
	km, err := c.Route(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("geo.Client.Distance: %w", err)
	}
	return km, nil
}

type matrixRequest struct {
	Locations [][2]float64 `json:"locations"`
	Metrics   []string     `json:"metrics"`
	Units     string       `json:"units"`
}

type matrixResponse struct {
	Distances [][]*float64 `json:"distances"`
}

// metersToKm converts a provider distance, always requested in metres.
func metersToKm(m float64) float64 { return m / 1000 }

// Matrix returns the full distance matrix in kilometres between points.
// Unreachable cells are nil.
func (c *Client) Matrix(ctx context.Context, points []domain.Coordinates) ([][]*float64, error) {
	if err := c.checkConfig(); err != nil {
		return nil, fmt.Errorf("geo.Client.Matrix: %w", err)
	}
	if len(points) < 2 {
		return nil, fmt.Errorf("geo.Client.Matrix: need at least two points: %w", domain.ErrValidation)
	}

	body := matrixRequest{Metrics: []string{"distance"}, Units: "m"}
	for _, p := range points {
		body.Locations = append(body.Locations, [2]float64{p.Lng, p.Lat})
	}

	var out matrixResponse
	_, err := c.send(ctx, func() *resty.Request {
		return c.http.R().
			SetPathParam("profile", c.cfg.Profile).
			SetHeader("Content-Type", "application/json").
			SetBody(body).
			SetResult(&out)
	}, http.MethodPost, "/v2/matrix/{profile}")
	if err != nil {
		return nil, fmt.Errorf("geo.Client.Matrix: %w", asRouteErr(err))
	}
	if len(out.Distances) != len(points) {
		return nil, fmt.Errorf("geo.Client.Matrix: got %d rows for %d points: %w", len(out.Distances), len(points), domain.ErrRoute)
	}
	for _, row := range out.Distances {
		for j, m := range row {
			if m != nil {
				km := metersToKm(*m)
				row[j] = &km
			}
		}
	}
	return out.Distances, nil
}

// DistanceMatrix resolves many address pairs with one matrix request.
// Pairs whose addresses cannot be geocoded, or that have no route, are left
// out of the result; callers fall back to Distance for them.
func (c *Client) DistanceMatrix(ctx context.Context, pairs []domain.AddressPair) (map[domain.AddressPair]float64, error) {
	if err := c.checkConfig(); err != nil {
		return nil, fmt.Errorf("geo.Client.DistanceMatrix: %w", err)
	}

	index := map[string]int{}
	var points []domain.Coordinates
	for _, p := range pairs {
		for _, addr := range []string{p.Origin, p.Destination} {
			key := domain.NormalizeAddress(addr)
			if _, ok := index[key]; ok {
				continue
			}
			pt, err := c.Geocode(ctx, addr)
			if errors.Is(err, domain.ErrGeocode) {
				index[key] = -1
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("geo.Client.DistanceMatrix: %w", err)
			}
			index[key] = len(points)
			points = append(points, pt)
		}
	}

	out := map[domain.AddressPair]float64{}
	if len(points) < 2 {
		return out, nil
	}
	m, err := c.Matrix(ctx, points)
	if err != nil {
		return nil, fmt.Errorf("geo.Client.DistanceMatrix: %w", err)
	}
	for _, p := range pairs {
		i := index[domain.NormalizeAddress(p.Origin)]
		j := index[domain.NormalizeAddress(p.Destination)]
		if i < 0 || j < 0 || j >= len(m[i]) || m[i][j] == nil {
			continue
		}
		out[p] = *m[i][j]
	}
	return out, nil
}

func lngLat(p domain.Coordinates) string {
	return fmt.Sprintf("%g,%g", p.Lng, p.Lat)
}
