package rom

import (
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/semmlerino/spritepal/internal/mapper"
	"github.com/semmlerino/spritepal/internal/rom/romtest"
)

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name       string
		opts       romtest.Options
		wantMode   mapper.Mode
		wantOffset int
		wantSMC    int
	}{
		{
			name:       "lorom",
			opts:       romtest.Options{Title: "KIRBY SUPER DELUXE"},
			wantMode:   mapper.LoROM,
			wantOffset: LoROMHeaderOffset,
		},
		{
			name:       "hirom",
			opts:       romtest.Options{Title: "HIROM GAME", HiROM: true},
			wantMode:   mapper.HiROM,
			wantOffset: HiROMHeaderOffset,
		},
		{
			name:       "lorom with copier header",
			opts:       romtest.Options{Title: "KIRBY SUPER DELUXE", SMC: true},
			wantMode:   mapper.LoROM,
			wantOffset: LoROMHeaderOffset + SMCHeaderSize,
			wantSMC:    SMCHeaderSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := romtest.Build(tt.opts)
			header, err := ParseHeader(data)
			assert.NoError(t, err)
			assert.Equal(t, tt.opts.Title, header.Title)
			assert.Equal(t, tt.wantMode, header.Mode)
			assert.Equal(t, tt.wantOffset, header.HeaderOffset)
			assert.Equal(t, tt.wantSMC, header.SMCOffset)
			assert.True(t, header.ChecksumValid())
		})
	}
}

func TestParseHeader_Invalid(t *testing.T) {
	_, err := ParseHeader(make([]byte, 0x10000))
	assert.True(t, errors.Is(err, ErrNoHeader))

	_, err = ParseHeader(make([]byte, 16))
	assert.True(t, errors.Is(err, ErrNoHeader))
}

func TestDecodeTitle(t *testing.T) {
	tests := []struct {
		name     string
		raw      []byte
		expected string
	}{
		{name: "ascii", raw: []byte("SUPER MARIOWORLD     "), expected: "SUPER MARIOWORLD"},
		{name: "half width katakana", raw: []byte{0xB6, 0xB0, 0xCB, 0xDE, 0x20}, expected: "ｶｰﾋﾞ"},
		{name: "nul padding", raw: []byte{'A', 'B', 0, 0}, expected: "AB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DecodeTitle(tt.raw))
		})
	}
}

func TestChecksum(t *testing.T) {
	data := romtest.Build(romtest.Options{Title: "CHECKSUM TEST"})
	img := FromBytes(data)
	header, err := img.Header()
	assert.NoError(t, err)

	checksum, complement := CalculateChecksum(data, 0)
	assert.Equal(t, header.Checksum, checksum)
	assert.Equal(t, uint16(0xFFFF), checksum^complement)

	assert.NoError(t, img.WriteAt(0x1000, []byte{0x12, 0x34, 0x56}))
	updated, err := img.UpdateChecksum()
	assert.NoError(t, err)
	assert.True(t, checksum != updated)

	header, err = img.Header()
	assert.NoError(t, err)
	assert.Equal(t, updated, header.Checksum)
	assert.True(t, header.ChecksumValid())

	recalculated, _ := CalculateChecksum(img.Data(), 0)
	assert.Equal(t, updated, recalculated)
}

func TestImageAccess(t *testing.T) {
	img := FromBytes([]byte{1, 2, 3, 4, 5, 6, 7, 8})

	b, err := img.Slice(2, 3)
	assert.NoError(t, err)
	assert.Equal(t, []byte{3, 4, 5}, b)

	_, err = img.Slice(6, 4)
	assert.True(t, errors.Is(err, ErrOffsetOutOfRange))

	tail, err := img.Tail(5, 100)
	assert.NoError(t, err)
	assert.Equal(t, []byte{6, 7, 8}, tail)

	assert.Error(t, img.ValidateOffset(8))
	assert.Error(t, img.ValidateOffset(-1))
	assert.NoError(t, img.ValidateOffset(7))

	clone := img.Clone()
	assert.NoError(t, clone.Fill(0, 2, 0xFF))
	assert.Equal(t, byte(1), img.Data()[0])
	assert.Equal(t, byte(0xFF), clone.Data()[0])
	assert.True(t, img.Hash() != clone.Hash())
}

func TestDetectSMCHeader(t *testing.T) {
	assert.Equal(t, 512, DetectSMCHeader(0x80200))
	assert.Equal(t, 0, DetectSMCHeader(0x80000))
}

func TestLoad(t *testing.T) {
	data := romtest.Build(romtest.Options{Title: "LOAD TEST", SMC: true})
	path := romtest.WriteFile(t, "game.smc", data)

	img, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, path, img.Path())
	assert.Equal(t, SMCHeaderSize, img.SMCOffset())
	assert.Equal(t, 64, len(img.Hash()))

	_, err = Load(path + ".missing")
	assert.Error(t, err)
}
