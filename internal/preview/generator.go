package preview

import (
	"fmt"
	"time"

	"github.com/semmlerino/spritepal/internal/extractor"
	"github.com/semmlerino/spritepal/internal/rom"
	"github.com/semmlerino/spritepal/internal/tile"
)

// Generator creates previews of the sprites of a ROM image.
type Generator struct {
	extractor *extractor.Extractor
	rom       *rom.Image
	names     map[int]string
}

// NewGenerator returns a generator for the ROM image. names maps known
// sprite offsets to sprite names and may be nil.
func NewGenerator(ext *extractor.Extractor, img *rom.Image, names map[int]string) *Generator {
	return &Generator{
		extractor: ext,
		rom:       img,
		names:     names,
	}
}

// ROMHash returns the hash of the ROM the previews are generated for.
func (g *Generator) ROMHash() string {
	return g.rom.Hash()
}

// Key returns the cache key of the preview at offset.
func (g *Generator) Key(offset int) string {
	return Key(g.rom.Path(), offset)
}

// Generate decompresses the sprite at offset.
func (g *Generator) Generate(offset int) (*Data, error) {
	if err := g.rom.ValidateOffset(offset); err != nil {
		return nil, err
	}

	result, err := g.extractor.FindCompressedSprite(g.rom.Data(), offset, 0)
	if err != nil {
		return nil, err
	}

	count, _ := tile.Count(result.Data)
	if count == 0 {
		return nil, fmt.Errorf("preview at 0x%X: %w", offset, tile.ErrNoTiles)
	}
	columns := min(count, tile.DefaultTilesPerRow)
	rows := (count + tile.DefaultTilesPerRow - 1) / tile.DefaultTilesPerRow

	name := g.names[offset]
	if name == "" {
		name = fmt.Sprintf("sprite_%06X", offset)
	}

	return &Data{
		Offset:         offset,
		TileData:       result.Data,
		Width:          columns * tile.Size,
		Height:         rows * tile.Size,
		SpriteName:     name,
		GeneratedAt:    time.Now(),
		ROMHash:        g.rom.Hash(),
		CompressedSize: result.CompressedSize,
		CacheKey:       g.Key(offset),
		Metadata: map[string]string{
			"tile_count": fmt.Sprint(count),
			"original":   fmt.Sprint(result.OriginalSize),
		},
	}, nil
}
