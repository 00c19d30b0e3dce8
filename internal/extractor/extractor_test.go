package extractor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
	"github.com/semmlerino/spritepal/internal/rom/romtest"
	"github.com/semmlerino/spritepal/internal/romcache"
	"github.com/semmlerino/spritepal/internal/sprite/spritetest"
	"github.com/semmlerino/spritepal/internal/spriteconfig"
	"github.com/semmlerino/spritepal/internal/tile"
)

const (
	spriteOffset  = 0x40000
	paletteOffset = 0x50000
)

const testConfig = `{
  "games": {
    "SPRITE TEST": {
      "checksums": {"USA": "0x0001"},
      "palette_offset": "0x50000",
      "sprites": {
        "hero": {"offset": "0x40000", "estimated_size": 2048, "palette_indices": [1, 2]}
      }
    }
  }
}`

func testROM(t *testing.T) ([]byte, []int) {
	t.Helper()
	return spritetest.ROM(romtest.Options{Size: 0x80000, Title: "SPRITE TEST"},
		spritetest.Sprite{Offset: spriteOffset, Tiles: 64})
}

func writeTestROM(t *testing.T, data []byte) string {
	t.Helper()
	path := romtest.WriteFile(t, "game.sfc", data)
	past := time.Now().Add(-time.Hour)
	assert.NoError(t, os.Chtimes(path, past, past))
	return path
}

func newTestExtractor(t *testing.T, cache *romcache.Cache) *Extractor {
	t.Helper()
	logger := log.NewTestLogger(t)
	cfg, err := spriteconfig.Parse(logger, []byte(testConfig))
	assert.NoError(t, err)
	return New(logger, cfg, cache)
}

func TestFindCompressedSprite(t *testing.T) {
	data, sizes := testROM(t)
	e := newTestExtractor(t, nil)

	result, err := e.FindCompressedSprite(data, spriteOffset, 0)
	assert.NoError(t, err)
	assert.Equal(t, spriteOffset, result.Offset)
	assert.Equal(t, 64*tile.BytesPerTile, len(result.Data))
	assert.Equal(t, sizes[0], result.CompressedSize)
	assert.Equal(t, 64, result.TileCount())
	assert.Equal(t, 0, result.ExtraBytes())

	truncated, err := e.FindCompressedSprite(data, spriteOffset, 1024)
	assert.NoError(t, err)
	assert.Equal(t, 1024, len(truncated.Data))
	assert.Equal(t, 2048, truncated.OriginalSize)
	assert.Equal(t, spritetest.Tiles(32, 0), truncated.Data)

	_, err = e.FindCompressedSprite(data, 0x60000, 0)
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestFindCompressedSpriteWithFallback(t *testing.T) {
	data, _ := testROM(t)
	e := newTestExtractor(t, nil)

	result, err := e.FindCompressedSpriteWithFallback(data, 0x60000, []int{0x61000, spriteOffset}, 0)
	assert.NoError(t, err)
	assert.Equal(t, spriteOffset, result.Offset)

	_, err = e.FindCompressedSpriteWithFallback(data, 0x60000, []int{0x61000}, 0)
	assert.True(t, errors.Is(err, ErrNoValidSprite))
}

func TestExtract(t *testing.T) {
	data, sizes := testROM(t)
	romPath := writeTestROM(t, data)
	e := newTestExtractor(t, nil)

	base := filepath.Join(t.TempDir(), "out", "hero")
	info, err := e.Extract(romPath, spriteOffset, base, "hero")
	assert.NoError(t, err)

	assert.Equal(t, "rom", info.SourceType)
	assert.Equal(t, "game.sfc", info.ROMSource)
	assert.Equal(t, "0x40000", info.ROMOffset)
	assert.Equal(t, sizes[0], info.CompressedSize)
	assert.Equal(t, 64, info.TileCount)
	assert.Equal(t, 2048, info.ExtractionSize)
	assert.Equal(t, "SPRITE TEST", info.ROMTitle)
	assert.True(t, info.ROMPalettesUsed)
	assert.Equal(t, 2, info.PaletteCount)
	assert.Equal(t, []string{base + "_pal1.pal.json", base + "_pal2.pal.json"}, info.PaletteFiles)

	img, err := tile.ReadPNG(base + ".png")
	assert.NoError(t, err)
	assert.Equal(t, 128, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())

	meta, err := ReadMetadata(base + ".metadata.json")
	assert.NoError(t, err)
	assert.Equal(t, info.ROMOffset, meta.ROMOffset)
	assert.Equal(t, info.CompressedSize, meta.CompressedSize)
	assert.Equal(t, info.ROMChecksum, meta.ROMChecksum)

	palette, err := ReadPaletteFile(base + "_pal1.pal.json")
	assert.NoError(t, err)
	assert.Equal(t, 16, len(palette))
	r, g, b, a := palette[1].RGBA()
	assert.Equal(t, uint32(0xFFFF), r&g&b&a)
	_, _, _, a = palette[0].RGBA()
	assert.Equal(t, uint32(0), a)
}

func TestExtract_UnknownSprite(t *testing.T) {
	data, _ := testROM(t)
	romPath := writeTestROM(t, data)
	e := newTestExtractor(t, nil)

	base := filepath.Join(t.TempDir(), "sprite")
	info, err := e.Extract(romPath, spriteOffset, base, "")
	assert.NoError(t, err)
	assert.False(t, info.ROMPalettesUsed)
	assert.Equal(t, 0, info.PaletteCount)

	_, err = os.Stat(base + "_pal1.pal.json")
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = e.Extract(romPath, len(data)+1, base, "")
	assert.Error(t, err)
}

func TestKnownSpriteLocations(t *testing.T) {
	data, _ := testROM(t)
	romPath := writeTestROM(t, data)
	cache := romcache.New(log.NewTestLogger(t), romcache.Options{Dir: t.TempDir()})
	e := newTestExtractor(t, cache)

	locations, err := e.KnownSpriteLocations(romPath)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(locations))
	assert.Equal(t, spriteOffset, locations["hero"].Offset)

	cached, ok := cache.GetSpriteLocations(romPath)
	assert.True(t, ok)
	assert.Equal(t, locations, cached)

	again, err := e.KnownSpriteLocations(romPath)
	assert.NoError(t, err)
	assert.Equal(t, locations, again)
}
