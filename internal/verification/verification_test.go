package verification

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
	"github.com/semmlerino/spritepal/internal/hal"
	"github.com/semmlerino/spritepal/internal/rom"
	"github.com/semmlerino/spritepal/internal/rom/romtest"
	"github.com/semmlerino/spritepal/internal/sprite/spritetest"
)

const offset = 0x40000

type fixture struct {
	originalPath string
	injected     *rom.Image
	injection    Injection
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	data, sizes := spritetest.ROM(romtest.Options{Size: 0x80000, Title: "VERIFY"},
		spritetest.Sprite{Offset: offset, Tiles: 32})
	originalPath := romtest.WriteFile(t, "original.sfc", data)

	tiles := make([]byte, 32*32)
	compressed, err := hal.Compress(tiles, false)
	assert.NoError(t, err)

	injected := rom.FromBytes(data).Clone()
	assert.NoError(t, injected.WriteAt(offset, compressed))
	assert.NoError(t, injected.Fill(offset+len(compressed), sizes[0]-len(compressed), 0xFF))
	_, err = injected.UpdateChecksum()
	assert.NoError(t, err)

	return fixture{
		originalPath: originalPath,
		injected:     injected,
		injection:    Injection{Offset: offset, Tiles: tiles, OriginalSize: sizes[0]},
	}
}

func (f fixture) save(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "injected.sfc")
	assert.NoError(t, f.injected.Save(path))
	return path
}

func TestVerifyInjection(t *testing.T) {
	f := newFixture(t)
	err := VerifyInjection(log.NewTestLogger(t), f.originalPath, f.save(t), f.injection)
	assert.NoError(t, err)
}

func TestVerifyInjection_Checksum(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.injected.WriteAt(0x100, []byte{0x12}))

	err := VerifyInjection(log.NewTestLogger(t), f.originalPath, f.save(t), f.injection)
	assert.True(t, errors.Is(err, ErrChecksum))
}

func TestVerifyInjection_OutsideChange(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.injected.WriteAt(0x100, []byte{0x12, 0x34}))
	_, err := f.injected.UpdateChecksum()
	assert.NoError(t, err)

	err = VerifyInjection(log.NewTestLogger(t), f.originalPath, f.save(t), f.injection)
	assert.ErrorContains(t, err, "comparing ROM data: 2 offset mismatches")
}

func TestVerifyInjection_WrongTiles(t *testing.T) {
	f := newFixture(t)
	f.injection.Tiles = spritetest.Tiles(32, 0)

	err := VerifyInjection(log.NewTestLogger(t), f.originalPath, f.save(t), f.injection)
	assert.ErrorContains(t, err, "differ")
}

func TestCheckBufferEqual(t *testing.T) {
	logger := log.NewTestLogger(t)
	none := func(int) bool { return false }

	assert.NoError(t, checkBufferEqual(logger, []byte{1, 2, 3}, []byte{1, 2, 3}, none))
	assert.ErrorContains(t, checkBufferEqual(logger, []byte{1, 2}, []byte{1}, none), "mismatched lengths")
	assert.ErrorContains(t, checkBufferEqual(logger, []byte{1, 2, 3}, []byte{0, 2, 0}, none), "2 offset mismatches")

	ignoreFirst := func(offset int) bool { return offset == 0 }
	assert.ErrorContains(t, checkBufferEqual(logger, []byte{1, 2, 3}, []byte{0, 2, 0}, ignoreFirst), "1 offset mismatches")
}
