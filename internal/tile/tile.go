// Package tile converts between SNES 4bpp planar tile data and images.
package tile

import "errors"

const (
	// Size is the width and height of a tile in pixels.
	Size = 8
	// BytesPerTile is the size of a 4bpp tile.
	BytesPerTile = 32
	// PixelsPerTile is the number of pixels in a tile.
	PixelsPerTile = Size * Size
	// DefaultTilesPerRow is the sheet width used for extracted sprites.
	DefaultTilesPerRow = 16
)

var (
	// ErrNoTiles is returned when the data does not contain a single complete tile.
	ErrNoTiles = errors.New("no complete tile in data")
	// ErrImageSize is returned for images whose size is not a multiple of the tile size.
	ErrImageSize = errors.New("image size is not a multiple of 8")
)

// Decode converts a 32 byte 4bpp tile into 64 colour indices in row order.
// Bitplanes 0 and 1 are interleaved in the first 16 bytes, bitplanes 2 and 3
// in the second 16 bytes.
func Decode(data []byte) [PixelsPerTile]uint8 {
	var pixels [PixelsPerTile]uint8
	for y := range Size {
		p0 := data[y*2]
		p1 := data[y*2+1]
		p2 := data[16+y*2]
		p3 := data[16+y*2+1]
		for x := range Size {
			bit := uint(7 - x)
			value := (p0>>bit)&1 |
				((p1>>bit)&1)<<1 |
				((p2>>bit)&1)<<2 |
				((p3>>bit)&1)<<3
			pixels[y*Size+x] = value
		}
	}
	return pixels
}

// Encode converts 64 colour indices into a 32 byte 4bpp tile.
// Only the lower 4 bits of every index are used.
func Encode(pixels [PixelsPerTile]uint8) []byte {
	data := make([]byte, BytesPerTile)
	for y := range Size {
		var p0, p1, p2, p3 byte
		for x := range Size {
			value := pixels[y*Size+x]
			bit := uint(7 - x)
			p0 |= (value & 1) << bit
			p1 |= ((value >> 1) & 1) << bit
			p2 |= ((value >> 2) & 1) << bit
			p3 |= ((value >> 3) & 1) << bit
		}
		data[y*2] = p0
		data[y*2+1] = p1
		data[16+y*2] = p2
		data[16+y*2+1] = p3
	}
	return data
}

// Count returns the number of complete tiles in data and the number of
// trailing bytes that do not form a complete tile.
func Count(data []byte) (tiles, extra int) {
	return len(data) / BytesPerTile, len(data) % BytesPerTile
}
