package tile

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
)

// PaletteSize is the size of a 16 colour BGR555 palette in bytes.
const PaletteSize = 32

// BGR555ToColor converts a SNES colour word into an RGBA colour.
// The 5 bit channels are expanded to 8 bits by replicating the high bits.
func BGR555ToColor(value uint16) color.RGBA {
	expand := func(c uint16) uint8 {
		c &= 0x1F
		return uint8(c<<3 | c>>2)
	}
	return color.RGBA{
		R: expand(value),
		G: expand(value >> 5),
		B: expand(value >> 10),
		A: 0xFF,
	}
}

// ColorToBGR555 converts a colour into a SNES colour word.
func ColorToBGR555(c color.Color) uint16 {
	rgba := color.RGBAModel.Convert(c).(color.RGBA)
	r := uint16(rgba.R >> 3)
	g := uint16(rgba.G >> 3)
	b := uint16(rgba.B >> 3)
	return b<<10 | g<<5 | r
}

// DecodePalette converts 32 bytes of little endian BGR555 words into a 16
// colour palette. Colour 0 is transparent on the SNES and keeps alpha 0.
func DecodePalette(data []byte) (color.Palette, error) {
	if len(data) < PaletteSize {
		return nil, fmt.Errorf("palette data has %d bytes, expected %d", len(data), PaletteSize)
	}

	palette := make(color.Palette, 16)
	for i := range palette {
		c := BGR555ToColor(binary.LittleEndian.Uint16(data[i*2:]))
		if i == 0 {
			c.A = 0
			c.R, c.G, c.B = 0, 0, 0
		}
		palette[i] = c
	}
	return palette, nil
}

// EncodePalette converts a palette into BGR555 words. Missing entries are
// written as black.
func EncodePalette(palette color.Palette) []byte {
	data := make([]byte, PaletteSize)
	for i := range min(len(palette), 16) {
		binary.LittleEndian.PutUint16(data[i*2:], ColorToBGR555(palette[i]))
	}
	return data
}

// ReadPalettes decodes the palettes with the given indices from a palette
// table that starts at offset in data.
func ReadPalettes(data []byte, offset int, indices []int) (map[int]color.Palette, error) {
	palettes := make(map[int]color.Palette, len(indices))
	for _, index := range indices {
		start := offset + index*PaletteSize
		if index < 0 || start < 0 || start+PaletteSize > len(data) {
			return nil, fmt.Errorf("palette %d at 0x%X is outside of data", index, start)
		}
		palette, err := DecodePalette(data[start : start+PaletteSize])
		if err != nil {
			return nil, fmt.Errorf("decoding palette %d: %w", index, err)
		}
		palettes[index] = palette
	}
	return palettes, nil
}

// WithPalette returns a copy of the sheet that uses the given palette.
func WithPalette(sheet *image.Paletted, palette color.Palette) *image.Paletted {
	img := image.NewPaletted(sheet.Rect, palette)
	copy(img.Pix, sheet.Pix)
	return img
}
