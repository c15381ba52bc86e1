// Package testutil provides image fixtures and in-memory stores for tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/require"
)

// DMS is a coordinate in whole degrees, minutes and seconds
type DMS [3]uint32

// PlainJPEG encodes a small JPEG without any metadata
func PlainJPEG(t testing.TB, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, G: 40, A: 255})
	}
	buf := &bytes.Buffer{}
	require.NoError(t, jpeg.Encode(buf, img, nil))
	return buf.Bytes()
}

// WithGPS inserts an EXIF APP1 segment carrying a GPS position right after
// the SOI marker of jpegData.
func WithGPS(t testing.TB, jpegData []byte, latRef string, lat DMS, lonRef string, lon DMS) []byte {
	t.Helper()
	require.True(t, len(jpegData) >= 2 && jpegData[0] == 0xFF && jpegData[1] == 0xD8, "not a JPEG")

	tiff := gpsTIFF(t, latRef, lat, lonRef, lon)

	out := &bytes.Buffer{}
	out.Write(jpegData[:2])
	out.Write([]byte{0xFF, 0xE1})
	segLen := uint16(2 + 6 + len(tiff))
	out.Write([]byte{byte(segLen >> 8), byte(segLen)})
	out.WriteString("Exif\x00\x00")
	out.Write(tiff)
	out.Write(jpegData[2:])
	return out.Bytes()
}

// gpsTIFF builds a little-endian TIFF block whose IFD0 only points at a GPS IFD
func gpsTIFF(t testing.TB, latRef string, lat DMS, lonRef string, lon DMS) []byte {
	le := binary.LittleEndian
	buf := &bytes.Buffer{}
	write := func(v any) { require.NoError(t, binary.Write(buf, le, v)) }

	const (
		ifd0Offset = 8
		gpsOffset  = ifd0Offset + 2 + 12 + 4
		dataOffset = gpsOffset + 2 + 4*12 + 4
	)

	buf.WriteString("II")
	write(uint16(42))
	write(uint32(ifd0Offset))

	write(uint16(1))
	write([]uint16{0x8825, 4})
	write([]uint32{1, gpsOffset})
	write(uint32(0))

	ascii := func(s string) uint32 {
		var b [4]byte
		copy(b[:], s)
		return le.Uint32(b[:])
	}

	write(uint16(4))
	write([]uint16{0x0001, 2})
	write([]uint32{2, ascii(latRef)})
	write([]uint16{0x0002, 5})
	write([]uint32{3, dataOffset})
	write([]uint16{0x0003, 2})
	write([]uint32{2, ascii(lonRef)})
	write([]uint16{0x0004, 5})
	write([]uint32{3, dataOffset + 24})
	write(uint32(0))

	for _, v := range append(lat[:], lon[:]...) {
		write([]uint32{v, 1})
	}
	return buf.Bytes()
}

// PNGHeader returns a PNG that stops after its IHDR chunk. It declares w x h
// pixels without carrying any image data.
func PNGHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 2 // truecolor

	buf := &bytes.Buffer{}
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	binary.Write(buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}
