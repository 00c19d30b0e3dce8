package tile

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"golang.org/x/image/draw"
)

// GrayscalePalette returns the 16 level grayscale palette used for sheets
// without colour information. Index i maps to the gray value i*17.
func GrayscalePalette() color.Palette {
	palette := make(color.Palette, 16)
	for i := range palette {
		palette[i] = color.Gray{Y: uint8(i * 17)}
	}
	return palette
}

// DecodeSheet arranges the tiles of data into a sheet that is tilesPerRow
// tiles wide. Trailing bytes that do not form a complete tile are ignored,
// their count is returned so callers can report it.
func DecodeSheet(data []byte, tilesPerRow int) (*image.Paletted, int, error) {
	if tilesPerRow <= 0 {
		tilesPerRow = DefaultTilesPerRow
	}
	count, extra := Count(data)
	if count == 0 {
		return nil, extra, ErrNoTiles
	}

	columns := min(count, tilesPerRow)
	rows := (count + tilesPerRow - 1) / tilesPerRow
	img := image.NewPaletted(image.Rect(0, 0, columns*Size, rows*Size), GrayscalePalette())

	for i := range count {
		pixels := Decode(data[i*BytesPerTile : (i+1)*BytesPerTile])
		originX := (i % tilesPerRow) * Size
		originY := (i / tilesPerRow) * Size
		for y := range Size {
			row := img.PixOffset(originX, originY+y)
			copy(img.Pix[row:row+Size], pixels[y*Size:(y+1)*Size])
		}
	}
	return img, extra, nil
}

// EncodeImage converts an image into 4bpp tile data, reading tiles left to
// right and top to bottom. Paletted images contribute their colour indices,
// all other images are converted to grayscale and quantised to 16 levels.
func EncodeImage(img image.Image) ([]byte, error) {
	bounds := img.Bounds()
	if bounds.Dx()%Size != 0 || bounds.Dy()%Size != 0 || bounds.Empty() {
		return nil, fmt.Errorf("encoding %dx%d image: %w", bounds.Dx(), bounds.Dy(), ErrImageSize)
	}

	index := pixelIndexer(img)
	columns := bounds.Dx() / Size
	rows := bounds.Dy() / Size
	data := make([]byte, 0, columns*rows*BytesPerTile)

	for ty := range rows {
		for tx := range columns {
			var pixels [PixelsPerTile]uint8
			for y := range Size {
				for x := range Size {
					px := bounds.Min.X + tx*Size + x
					py := bounds.Min.Y + ty*Size + y
					pixels[y*Size+x] = index(px, py)
				}
			}
			data = append(data, Encode(pixels)...)
		}
	}
	return data, nil
}

func pixelIndexer(img image.Image) func(x, y int) uint8 {
	if paletted, ok := img.(*image.Paletted); ok {
		return func(x, y int) uint8 {
			return paletted.ColorIndexAt(x, y) & 0x0F
		}
	}
	return func(x, y int) uint8 {
		gray := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
		return gray.Y / 17
	}
}

// Thumbnail scales img to fit into a maxSize square, keeping the aspect
// ratio. Nearest neighbour sampling keeps pixel art edges sharp.
func Thumbnail(img image.Image, maxSize int) *image.RGBA {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width >= height {
		height = max(1, height*maxSize/max(1, width))
		width = maxSize
	} else {
		width = max(1, width*maxSize/max(1, height))
		height = maxSize
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}

// WritePNG writes img as PNG file.
func WritePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file '%s': %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encoding png: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing file: %w", err)
	}
	return nil
}

// ReadPNG reads a PNG file.
func ReadPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file '%s': %w", path, err)
	}
	defer func() { _ = f.Close() }()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding png '%s': %w", path, err)
	}
	return img, nil
}
