package domain

import (
	"strings"
	"time"
)

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// AddressPair is an origin/destination pair. Distance is symmetric, so the
// pair is unordered for lookup purposes.
type AddressPair struct {
	Origin      string
	Destination string
}

// Reverse returns the pair with origin and destination swapped.
func (p AddressPair) Reverse() AddressPair {
	return AddressPair{Origin: p.Destination, Destination: p.Origin}
}

// SameAddress reports whether origin and destination are the same place
// after trimming and case folding.
func (p AddressPair) SameAddress() bool {
	return NormalizeAddress(p.Origin) == NormalizeAddress(p.Destination)
}

// DistanceEntry is one cached point-to-point distance.
type DistanceEntry struct {
	Origin      string
	Destination string
	Kilometers  float64
	CreatedAt   time.Time
}

// NormalizeAddress trims and lower-cases an address so cosmetic differences
// do not defeat the distance cache.
func NormalizeAddress(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
