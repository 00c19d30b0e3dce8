package tile

import (
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func TestDecode(t *testing.T) {
	data := make([]byte, BytesPerTile)
	data[0] = 0x80  // plane 0, row 0, pixel 0
	data[1] = 0x80  // plane 1, row 0, pixel 0
	data[16] = 0x01 // plane 2, row 0, pixel 7
	data[31] = 0xFF // plane 3, row 7

	pixels := Decode(data)
	assert.Equal(t, uint8(3), pixels[0])
	assert.Equal(t, uint8(4), pixels[7])
	for x := range Size {
		assert.Equal(t, uint8(8), pixels[7*Size+x])
	}
	assert.Equal(t, uint8(0), pixels[Size])
}

func TestEncodeDecode(t *testing.T) {
	var pixels [PixelsPerTile]uint8
	for i := range pixels {
		pixels[i] = uint8(i*7) & 0x0F
	}
	data := Encode(pixels)
	assert.Equal(t, BytesPerTile, len(data))
	assert.Equal(t, pixels, Decode(data))
}

func TestCount(t *testing.T) {
	tests := []struct {
		size  int
		tiles int
		extra int
	}{
		{size: 0, tiles: 0, extra: 0},
		{size: 32, tiles: 1, extra: 0},
		{size: 100, tiles: 3, extra: 4},
	}

	for _, tt := range tests {
		tiles, extra := Count(make([]byte, tt.size))
		assert.Equal(t, tt.tiles, tiles)
		assert.Equal(t, tt.extra, extra)
	}
}

func TestDecodeSheet(t *testing.T) {
	data := make([]byte, 20*BytesPerTile+5)
	for i := range 20 {
		data[i*BytesPerTile] = 0xFF // row 0 of every tile uses colour 1
	}

	img, extra, err := DecodeSheet(data, 16)
	assert.NoError(t, err)
	assert.Equal(t, 5, extra)
	assert.Equal(t, 128, img.Bounds().Dx())
	assert.Equal(t, 16, img.Bounds().Dy())
	assert.Equal(t, uint8(1), img.ColorIndexAt(0, 0))
	assert.Equal(t, uint8(1), img.ColorIndexAt(3*Size+2, Size))
	assert.Equal(t, uint8(0), img.ColorIndexAt(3*Size+2, Size+1))
	assert.Equal(t, color.Gray{Y: 17}, img.Palette[1])

	small, _, err := DecodeSheet(data[:2*BytesPerTile], 16)
	assert.NoError(t, err)
	assert.Equal(t, 16, small.Bounds().Dx())

	_, _, err = DecodeSheet(data[:10], 16)
	assert.True(t, errors.Is(err, ErrNoTiles))
}

func TestEncodeImage(t *testing.T) {
	data := make([]byte, 4*BytesPerTile)
	for i := range data {
		data[i] = byte(i * 31)
	}

	sheet, _, err := DecodeSheet(data, 2)
	assert.NoError(t, err)

	encoded, err := EncodeImage(sheet)
	assert.NoError(t, err)
	assert.Equal(t, data, encoded)

	gray := image.NewGray(sheet.Bounds())
	for y := range sheet.Bounds().Dy() {
		for x := range sheet.Bounds().Dx() {
			gray.SetGray(x, y, color.Gray{Y: sheet.ColorIndexAt(x, y) * 17})
		}
	}
	encoded, err = EncodeImage(gray)
	assert.NoError(t, err)
	assert.Equal(t, data, encoded)

	_, err = EncodeImage(image.NewGray(image.Rect(0, 0, 12, 8)))
	assert.True(t, errors.Is(err, ErrImageSize))
}

func TestThumbnail(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 128, 64))
	thumb := Thumbnail(img, 32)
	assert.Equal(t, 32, thumb.Bounds().Dx())
	assert.Equal(t, 16, thumb.Bounds().Dy())

	tall := Thumbnail(image.NewGray(image.Rect(0, 0, 8, 64)), 128)
	assert.Equal(t, 16, tall.Bounds().Dx())
	assert.Equal(t, 128, tall.Bounds().Dy())
}

func TestPNG(t *testing.T) {
	data := make([]byte, 2*BytesPerTile)
	data[0] = 0xAA
	data[17] = 0x0F
	sheet, _, err := DecodeSheet(data, 16)
	assert.NoError(t, err)

	path := filepath.Join(t.TempDir(), "sheet.png")
	assert.NoError(t, WritePNG(path, sheet))

	img, err := ReadPNG(path)
	assert.NoError(t, err)
	encoded, err := EncodeImage(img)
	assert.NoError(t, err)
	assert.Equal(t, data, encoded)

	_, err = ReadPNG(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestBGR555(t *testing.T) {
	tests := []struct {
		name  string
		value uint16
		color color.RGBA
	}{
		{name: "black", value: 0x0000, color: color.RGBA{A: 0xFF}},
		{name: "white", value: 0x7FFF, color: color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}},
		{name: "red", value: 0x001F, color: color.RGBA{R: 0xFF, A: 0xFF}},
		{name: "green", value: 0x03E0, color: color.RGBA{G: 0xFF, A: 0xFF}},
		{name: "blue", value: 0x7C00, color: color.RGBA{B: 0xFF, A: 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := BGR555ToColor(tt.value)
			assert.Equal(t, tt.color, c)
			assert.Equal(t, tt.value, ColorToBGR555(c))
		})
	}
}

func TestReadPalettes(t *testing.T) {
	data := make([]byte, 0x100)
	// palette 2, colour 1 is pure red
	data[0x40+2*PaletteSize+2] = 0x1F

	palettes, err := ReadPalettes(data, 0x40, []int{0, 2})
	assert.NoError(t, err)
	assert.Equal(t, 2, len(palettes))
	assert.Equal(t, color.Color(color.RGBA{R: 0xFF, A: 0xFF}), palettes[2][1])
	assert.Equal(t, color.Color(color.RGBA{}), palettes[2][0])

	encoded := EncodePalette(palettes[2])
	assert.Equal(t, data[0x80:0x80+PaletteSize], encoded)

	_, err = ReadPalettes(data, 0xF0, []int{1})
	assert.Error(t, err)
}

func TestWithPalette(t *testing.T) {
	sheet, _, err := DecodeSheet(make([]byte, BytesPerTile), 16)
	assert.NoError(t, err)

	palette := make(color.Palette, 16)
	for i := range palette {
		palette[i] = color.RGBA{R: uint8(i), A: 0xFF}
	}
	colored := WithPalette(sheet, palette)
	assert.Equal(t, sheet.Pix, colored.Pix)
	assert.Equal(t, color.Color(color.RGBA{A: 0xFF}), colored.At(0, 0))
}
