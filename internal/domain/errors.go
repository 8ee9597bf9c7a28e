package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by repo and service functions when the requested
// resource does not exist in the database.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned by service functions when input fails business
// rule validation (e.g. unknown resolve decision, empty address).
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrParse is returned by the spreadsheet ingestor when an upload cannot be
// read as an invoice sheet. It is scoped to one file: sibling files in the
// same upload are still processed.
var ErrParse = errors.New("parse error")

// ErrConfig signals missing configuration the user can fix: the routing
// credential or the home address. Distance computation degrades to zero
// kilometres instead of failing when it sees this error.
var ErrConfig = errors.New("configuration error")

// ErrGeocode is returned when the routing provider cannot resolve an address
// to coordinates.
var ErrGeocode = errors.New("geocode error")

// ErrRoute is returned when the routing provider returns no route between two
// points.
var ErrRoute = errors.New("route error")

// ErrRateLimited is returned when the provider still answers 429 after all
// retry attempts. errors.Is(err, ErrRoute) is true for it.
var ErrRateLimited = fmt.Errorf("rate limit exceeded: %w", ErrRoute)

// ErrStore wraps any failure of a durable-store transaction. The transaction
// has been rolled back when this is returned.
var ErrStore = errors.New("store error")
