package geo

import (
	"bytes"
	"errors"
	"fmt"

	"bereal-backend/internal/models"

	"github.com/rwcarlsen/goexif/exif"
)

// ErrNoCoordinates is returned when an image carries no usable GPS metadata
var ErrNoCoordinates = errors.New("image has no gps coordinates")

// ExtractCoordinates reads the GPS position embedded in an image's EXIF block
func ExtractCoordinates(data []byte) (*models.Location, error) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCoordinates, err)
	}

	lat, lon, err := x.LatLong()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCoordinates, err)
	}

	loc := models.Location{Latitude: lat, Longitude: lon}
	if !loc.Valid() {
		return nil, fmt.Errorf("%w: out of range %f,%f", ErrNoCoordinates, lat, lon)
	}
	return &loc, nil
}
