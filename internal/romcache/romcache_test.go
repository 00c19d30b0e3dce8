package romcache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
)

func newTestCache(t *testing.T) (*Cache, string) {
	t.Helper()

	dir := t.TempDir()
	romPath := filepath.Join(dir, "game.sfc")
	assert.NoError(t, os.WriteFile(romPath, []byte("rom data"), 0o644))

	// rom file must not be newer than the cache files written by the test
	past := time.Now().Add(-time.Hour)
	assert.NoError(t, os.Chtimes(romPath, past, past))

	cache := New(log.NewTestLogger(t), Options{Dir: filepath.Join(dir, "cache")})
	assert.True(t, cache.Enabled())
	return cache, romPath
}

func TestSpriteLocations(t *testing.T) {
	cache, romPath := newTestCache(t)

	_, ok := cache.GetSpriteLocations(romPath)
	assert.False(t, ok)

	locations := map[string]SpritePointer{
		"kirby": NewSpritePointer(0x1B0000),
	}
	assert.NoError(t, cache.SaveSpriteLocations(romPath, locations))

	loaded, ok := cache.GetSpriteLocations(romPath)
	assert.True(t, ok)
	assert.Equal(t, locations, loaded)
	assert.Equal(t, uint8(0x1B), loaded["kirby"].Bank)
	assert.Equal(t, uint16(0x0000), loaded["kirby"].Address)
}

func TestROMInfo(t *testing.T) {
	cache, romPath := newTestCache(t)

	info := ROMInfo{Title: "KIRBY SUPER DELUXE", Checksum: 0x1234, Complement: 0xEDCB, MapMode: "lorom"}
	assert.NoError(t, cache.SaveROMInfo(romPath, info))

	loaded, ok := cache.GetROMInfo(romPath)
	assert.True(t, ok)
	assert.Equal(t, info, *loaded)
}

func TestCacheInvalidation(t *testing.T) {
	cache, romPath := newTestCache(t)
	assert.NoError(t, cache.SaveROMInfo(romPath, ROMInfo{Title: "A"}))

	// touching the rom makes it newer than the cache file
	future := time.Now().Add(time.Hour)
	assert.NoError(t, os.Chtimes(romPath, future, future))
	_, ok := cache.GetROMInfo(romPath)
	assert.False(t, ok)
}

func TestCacheExpiration(t *testing.T) {
	cache, romPath := newTestCache(t)
	assert.NoError(t, cache.SaveROMInfo(romPath, ROMInfo{Title: "A"}))

	hash, err := cache.ROMHash(romPath)
	assert.NoError(t, err)
	old := time.Now().Add(-31 * 24 * time.Hour)
	assert.NoError(t, os.Chtimes(cache.filePath(hash, typeROMInfo), old, old))

	_, ok := cache.GetROMInfo(romPath)
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Clear(30))
	assert.Equal(t, 0, cache.Stats().TotalFiles)
}

func TestPartialScanResults(t *testing.T) {
	cache, romPath := newTestCache(t)
	params := ScanParams{Start: 0xC0000, End: 0xF0000, Step: 0x100}

	found := []FoundSprite{{Offset: 0xC1000, TileCount: 64, Quality: 0.9, Alignment: "perfect"}}
	assert.NoError(t, cache.SavePartialScanResults(romPath, params, found, 0xC8000, false))

	progress, ok := cache.GetPartialScanResults(romPath, params)
	assert.True(t, ok)
	assert.Equal(t, found, progress.FoundSprites)
	assert.Equal(t, 0xC8000, progress.CurrentOffset)
	assert.False(t, progress.Completed)
	assert.Equal(t, 1, progress.TotalFound)
	assert.Equal(t, ScanRange{Start: 0xC0000, End: 0xF0000, Step: 0x100}, progress.ScanRange)

	_, ok = cache.GetPartialScanResults(romPath, ScanParams{Start: 0, End: 0x100, Step: 1})
	assert.False(t, ok)

	assert.Equal(t, 1, cache.ClearScanProgress(romPath))
	_, ok = cache.GetPartialScanResults(romPath, params)
	assert.False(t, ok)
}

func TestScanID(t *testing.T) {
	a := ScanID(ScanParams{Start: 1, End: 2, Step: 3})
	b := ScanID(ScanParams{Start: 1, End: 2, Step: 3})
	c := ScanID(ScanParams{Start: 1, End: 2, Step: 4})
	assert.Equal(t, 16, len(a))
	assert.Equal(t, a, b)
	assert.True(t, a != c)
}

func TestROMHash(t *testing.T) {
	cache, romPath := newTestCache(t)

	first, err := cache.ROMHash(romPath)
	assert.NoError(t, err)
	assert.Equal(t, 64, len(first))

	second, err := cache.ROMHash(romPath)
	assert.NoError(t, err)
	assert.Equal(t, first, second)

	assert.NoError(t, os.WriteFile(romPath, []byte("changed rom data"), 0o644))
	changed, err := cache.ROMHash(romPath)
	assert.NoError(t, err)
	assert.True(t, first != changed)

	missing, err := cache.ROMHash(romPath + ".missing")
	assert.NoError(t, err)
	assert.Equal(t, 64, len(missing))
}

func TestStatsAndClear(t *testing.T) {
	cache, romPath := newTestCache(t)
	assert.NoError(t, cache.SaveROMInfo(romPath, ROMInfo{Title: "A"}))
	assert.NoError(t, cache.SaveSpriteLocations(romPath, map[string]SpritePointer{}))
	assert.NoError(t, cache.SavePartialScanResults(romPath, ScanParams{Step: 1}, nil, 0, true))

	stats := cache.Stats()
	assert.True(t, stats.DirExists)
	assert.Equal(t, 3, stats.TotalFiles)
	assert.Equal(t, 1, stats.ROMInfo)
	assert.Equal(t, 1, stats.SpriteLocations)
	assert.Equal(t, 1, stats.ScanProgress)
	assert.True(t, stats.TotalBytes > 0)

	assert.Equal(t, 3, cache.Clear(0))
	assert.Equal(t, 0, cache.Stats().TotalFiles)
}

func TestDisabled(t *testing.T) {
	cache := New(log.NewTestLogger(t), Options{Dir: t.TempDir(), Disabled: true})
	assert.False(t, cache.Enabled())

	err := cache.SaveROMInfo("game.sfc", ROMInfo{})
	assert.True(t, errors.Is(err, ErrDisabled))
	_, ok := cache.GetROMInfo("game.sfc")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Clear(0))
}

func TestLoadCorrupt(t *testing.T) {
	cache, romPath := newTestCache(t)
	hash, err := cache.ROMHash(romPath)
	assert.NoError(t, err)

	file := cache.filePath(hash, typeROMInfo)
	assert.NoError(t, os.WriteFile(file, []byte("{broken"), 0o644))
	_, ok := cache.GetROMInfo(romPath)
	assert.False(t, ok)

	assert.NoError(t, os.WriteFile(file, []byte(`{"version":"0.1","rom_info":{"title":"A"}}`), 0o644))
	_, ok = cache.GetROMInfo(romPath)
	assert.False(t, ok)
}
