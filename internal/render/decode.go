package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
)

// DefaultMaxPixels bounds decoded images at roughly a 48MP photo
const DefaultMaxPixels = 50_000_000

// ErrImageTooLarge is returned for images whose header declares more pixels
// than the caller allows.
var ErrImageTooLarge = errors.New("image dimensions exceed the allowed size")

// Decode reads the image header first and refuses to allocate a raster
// larger than maxPixels. maxPixels <= 0 means DefaultMaxPixels.
func Decode(data []byte, maxPixels int) (image.Image, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("failed to decode image: invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}
