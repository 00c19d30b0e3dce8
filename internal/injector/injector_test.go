package injector

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
	"github.com/semmlerino/spritepal/internal/extractor"
	"github.com/semmlerino/spritepal/internal/hal"
	"github.com/semmlerino/spritepal/internal/rom"
	"github.com/semmlerino/spritepal/internal/rom/romtest"
	"github.com/semmlerino/spritepal/internal/sprite/spritetest"
	"github.com/semmlerino/spritepal/internal/tile"
	"github.com/semmlerino/spritepal/internal/verification"
)

const (
	spriteOffset = 0x40000
	smallOffset  = 0x44000
)

func testROM(t *testing.T) string {
	t.Helper()
	data, _ := spritetest.ROM(romtest.Options{Size: 0x80000, Title: "INJECT TEST"},
		spritetest.Sprite{Offset: spriteOffset, Tiles: 64},
		spritetest.Sprite{Offset: smallOffset, Tiles: 16, Seed: 3},
	)
	return romtest.WriteFile(t, "game.sfc", data)
}

func writeSheet(t *testing.T, data []byte) string {
	t.Helper()
	sheet, _, err := tile.DecodeSheet(data, tile.DefaultTilesPerRow)
	assert.NoError(t, err)
	path := filepath.Join(t.TempDir(), "sprite.png")
	assert.NoError(t, tile.WritePNG(path, sheet))
	return path
}

func TestInject(t *testing.T) {
	romPath := testROM(t)
	logger := log.NewTestLogger(t)
	inj := New(logger, nil)

	spritePNG := writeSheet(t, make([]byte, 64*tile.BytesPerTile))
	outPath := filepath.Join(t.TempDir(), "out.sfc")

	stats, err := inj.Inject(context.Background(), Params{
		SpritePNG: spritePNG,
		ROMIn:     romPath,
		ROMOut:    outPath,
		Offset:    spriteOffset,
	})
	assert.NoError(t, err)
	assert.Equal(t, spriteOffset, stats.Offset)
	assert.Equal(t, 2048, stats.UncompressedSize)
	assert.True(t, stats.NewSize < stats.OriginalSize)
	assert.Equal(t, stats.OriginalSize-stats.NewSize, stats.SavedBytes)
	assert.Equal(t, "standard", stats.Mode)
	assert.Equal(t, outPath, stats.OutputPath)

	out, err := rom.Load(outPath)
	assert.NoError(t, err)
	header, err := out.Header()
	assert.NoError(t, err)
	assert.Equal(t, stats.Checksum, header.Checksum)

	result, err := hal.Decompress(out.Data(), spriteOffset)
	assert.NoError(t, err)
	assert.Equal(t, stats.Tiles, result.Data)

	padded, err := out.Slice(spriteOffset+stats.NewSize, stats.SavedBytes)
	assert.NoError(t, err)
	for _, b := range padded {
		assert.Equal(t, byte(0xFF), b)
	}

	err = verification.VerifyInjection(logger, romPath, outPath, verification.Injection{
		Offset:       spriteOffset,
		Tiles:        stats.Tiles,
		OriginalSize: stats.OriginalSize,
	})
	assert.NoError(t, err)
}

func TestInject_RoundTrip(t *testing.T) {
	romPath := testROM(t)
	logger := log.NewTestLogger(t)

	base := filepath.Join(t.TempDir(), "hero")
	_, err := extractor.New(logger, nil, nil).Extract(romPath, spriteOffset, base, "")
	assert.NoError(t, err)

	outPath := filepath.Join(t.TempDir(), "out.sfc")
	stats, err := New(logger, nil).Inject(context.Background(), Params{
		SpritePNG: base + ".png",
		ROMIn:     romPath,
		ROMOut:    outPath,
	})
	assert.NoError(t, err)
	assert.Equal(t, spriteOffset, stats.Offset)
	assert.Equal(t, spritetest.Tiles(64, 0), stats.Tiles)
	assert.Equal(t, stats.OriginalSize, stats.NewSize)
	assert.Equal(t, 0, stats.SavedBytes)

	original, err := os.ReadFile(romPath)
	assert.NoError(t, err)
	injected, err := os.ReadFile(outPath)
	assert.NoError(t, err)
	assert.Equal(t, original, injected)
}

func TestInject_Errors(t *testing.T) {
	romPath := testROM(t)
	inj := New(log.NewTestLogger(t), nil)

	rng := rand.New(rand.NewSource(1))
	noise := make([]byte, 64*tile.BytesPerTile)
	_, _ = rng.Read(noise)
	noisePNG := writeSheet(t, noise)

	tests := []struct {
		name   string
		params Params
		target error
	}{
		{
			name:   "too large",
			params: Params{SpritePNG: noisePNG, ROMIn: romPath, ROMOut: romPath + ".out", Offset: smallOffset},
			target: ErrCompressedTooLarge,
		},
		{
			name:   "offset out of range",
			params: Params{SpritePNG: noisePNG, ROMIn: romPath, Offset: 0x100000},
			target: rom.ErrOffsetOutOfRange,
		},
		{
			name:   "no offset",
			params: Params{SpritePNG: noisePNG, ROMIn: romPath},
			target: ErrNoOffset,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := inj.Inject(context.Background(), tt.params)
			assert.True(t, errors.Is(err, tt.target))
		})
	}

	_, err := os.Stat(romPath + ".out")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestInject_Backup(t *testing.T) {
	romPath := testROM(t)
	logger := log.NewTestLogger(t)
	backups := NewBackupManager(logger, filepath.Join(t.TempDir(), "backups"), 2)
	original, err := os.ReadFile(romPath)
	assert.NoError(t, err)

	stats, err := New(logger, backups).Inject(context.Background(), Params{
		SpritePNG: writeSheet(t, make([]byte, 64*tile.BytesPerTile)),
		ROMIn:     romPath,
		Offset:    spriteOffset,
		Backup:    true,
	})
	assert.NoError(t, err)
	assert.Equal(t, romPath, stats.OutputPath)

	backup, err := os.ReadFile(stats.BackupPath)
	assert.NoError(t, err)
	assert.Equal(t, original, backup)

	assert.NoError(t, backups.Restore(stats.BackupPath, romPath))
	restored, err := os.ReadFile(romPath)
	assert.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestBackupManager(t *testing.T) {
	romPath := testROM(t)
	backups := NewBackupManager(log.NewTestLogger(t), "", 2)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	backups.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}

	var created []string
	for range 3 {
		path, err := backups.Create(romPath)
		assert.NoError(t, err)
		created = append(created, path)
	}
	assert.Equal(t, filepath.Join(filepath.Dir(romPath), DefaultBackupDirName), filepath.Dir(created[0]))
	assert.Equal(t, "game_backup_20240501_120001_000000.sfc", filepath.Base(created[0]))

	list, err := backups.List(romPath)
	assert.NoError(t, err)
	assert.Equal(t, []string{created[2], created[1]}, list)

	_, err = os.Stat(created[0])
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
