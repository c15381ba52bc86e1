package geo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bereal-backend/internal/models"

	geocoding "github.com/codingsince1985/geo-golang"
	"github.com/codingsince1985/geo-golang/openstreetmap"
)

const (
	unknownCity  = "Unknown City"
	unknownState = "Unknown State"

	defaultMaxInFlight = 8
)

var (
	// ErrNoPlace is returned when the geocoder has no result for a coordinate
	ErrNoPlace = errors.New("no place found for location")
	// ErrGeocoderBusy is returned while every backend lookup slot is taken
	ErrGeocoderBusy = errors.New("too many reverse geocoding lookups in flight")
)

// Geocoder resolves a coordinate to a place
type Geocoder interface {
	ReverseGeocode(ctx context.Context, loc models.Location) (*models.Place, error)
}

// NominatimGeocoder reverse geocodes against an OpenStreetMap Nominatim endpoint
type NominatimGeocoder struct {
	backend geocoding.Geocoder
	timeout time.Duration

	// A slot is held until the backend returns, even after the caller gave up
	inFlight chan struct{}
}

// NewNominatimGeocoder creates a geocoder. An empty url uses the public
// endpoint. At most maxInFlight lookups run at once; 0 means 8.
func NewNominatimGeocoder(url string, timeout time.Duration, maxInFlight int) *NominatimGeocoder {
	backend := openstreetmap.Geocoder()
	if url != "" {
		backend = openstreetmap.GeocoderWithURL(url)
	}
	return newGeocoder(backend, timeout, maxInFlight)
}

func newGeocoder(backend geocoding.Geocoder, timeout time.Duration, maxInFlight int) *NominatimGeocoder {
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	return &NominatimGeocoder{
		backend:  backend,
		timeout:  timeout,
		inFlight: make(chan struct{}, maxInFlight),
	}
}

type reverseResult struct {
	addr *geocoding.Address
	err  error
}

// ReverseGeocode returns the city and region for loc. Missing parts are
// filled with "Unknown City" and "Unknown State".
func (g *NominatimGeocoder) ReverseGeocode(ctx context.Context, loc models.Location) (*models.Place, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	select {
	case g.inFlight <- struct{}{}:
	default:
		return nil, ErrGeocoderBusy
	}

	// The backend has no context support, so the call is abandoned on cancel.
	// It still ends within geocoding.DefaultTimeout and frees its slot then.
	done := make(chan reverseResult, 1)
	go func() {
		defer func() { <-g.inFlight }()
		addr, err := g.backend.ReverseGeocode(loc.Latitude, loc.Longitude)
		done <- reverseResult{addr: addr, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("reverse geocoding canceled: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("reverse geocoding failed: %w", res.err)
		}
		if res.addr == nil {
			return nil, ErrNoPlace
		}
		return placeFromAddress(res.addr), nil
	}
}

func placeFromAddress(addr *geocoding.Address) *models.Place {
	place := &models.Place{City: addr.City, Region: addr.State}
	if place.City == "" {
		place.City = unknownCity
	}
	if place.Region == "" {
		place.Region = unknownState
	}
	return place
}
