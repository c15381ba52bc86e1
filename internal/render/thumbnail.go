// Package render turns stored post images into thumbnails and streams them
// into reusable client display slots.
package render

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const thumbnailQuality = 75

// Thumbnail decodes an image and re-encodes it as a JPEG no larger than
// maxSide on its longest edge. Smaller images keep their size. Images over
// maxPixels are rejected before decoding.
func Thumbnail(data []byte, maxSide, maxPixels int) ([]byte, error) {
	src, err := Decode(data, maxPixels)
	if err != nil {
		return nil, err
	}

	dst := src
	b := src.Bounds()
	if w, h := b.Dx(), b.Dy(); maxSide > 0 && (w > maxSide || h > maxSide) {
		nw, nh := fit(w, h, maxSide)
		scaled := image.NewRGBA(image.Rect(0, 0, nw, nh))
		xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), src, b, xdraw.Src, nil)
		dst = scaled
	}

	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, dst, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// ThumbnailFunc adapts Thumbnail for use as a slot processor
func ThumbnailFunc(maxSide, maxPixels int) func([]byte) ([]byte, error) {
	return func(data []byte) ([]byte, error) {
		return Thumbnail(data, maxSide, maxPixels)
	}
}

func fit(w, h, maxSide int) (int, int) {
	if w >= h {
		nh := h * maxSide / w
		if nh < 1 {
			nh = 1
		}
		return maxSide, nh
	}
	nw := w * maxSide / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxSide
}
