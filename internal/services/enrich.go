package services

import (
	"context"
	"sync"
	"time"

	"bereal-backend/internal/geo"
	"bereal-backend/internal/metrics"
	"bereal-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// enrichment resolves a post's location and place in the background. Its
// results are read, never required, when the record is built.
type enrichment struct {
	done chan struct{}

	mu       sync.Mutex
	location *models.Location
	place    *models.Place
}

// startEnrichment extracts GPS coordinates from the raw image and reverse
// geocodes the effective location (explicit first, then extracted).
func startEnrichment(ctx context.Context, geocoder geo.Geocoder, data []byte, explicit *models.Location) *enrichment {
	e := &enrichment{done: make(chan struct{})}

	go func() {
		defer close(e.done)

		extracted, err := geo.ExtractCoordinates(data)
		if err != nil {
			metrics.EnrichmentTotal.WithLabelValues("metadata", "absent").Inc()
			log.Debug().Err(err).Msg("No location in image metadata")
		} else {
			metrics.EnrichmentTotal.WithLabelValues("metadata", "found").Inc()
			e.mu.Lock()
			e.location = extracted
			e.mu.Unlock()
		}

		target := explicit
		if target == nil {
			target = extracted
		}
		if target == nil || geocoder == nil {
			return
		}

		place, err := geocoder.ReverseGeocode(ctx, *target)
		if err != nil {
			metrics.EnrichmentTotal.WithLabelValues("geocode", "failed").Inc()
			log.Warn().Err(err).
				Float64("latitude", target.Latitude).
				Float64("longitude", target.Longitude).
				Msg("Reverse geocoding failed")
			return
		}
		metrics.EnrichmentTotal.WithLabelValues("geocode", "found").Inc()
		e.mu.Lock()
		e.place = place
		e.mu.Unlock()
	}()

	return e
}

// wait blocks until enrichment finishes, max elapses or ctx ends, then
// returns whatever has resolved so far.
func (e *enrichment) wait(ctx context.Context, max time.Duration) (*models.Location, *models.Place) {
	if max > 0 {
		timer := time.NewTimer(max)
		defer timer.Stop()
		select {
		case <-e.done:
		case <-timer.C:
		case <-ctx.Done():
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.location, e.place
}
