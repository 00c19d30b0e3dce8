package detector

import (
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
	"github.com/semmlerino/spritepal/internal/mapper"
	"github.com/semmlerino/spritepal/internal/options"
	"github.com/semmlerino/spritepal/internal/rom"
	"github.com/semmlerino/spritepal/internal/rom/romtest"
)

func TestDetect(t *testing.T) {
	logger := log.NewTestLogger(t)
	d := New(logger)

	loROM := rom.FromBytes(romtest.Build(romtest.Options{Size: 0x10000, Title: "LOROM"}))
	hiROM := rom.FromBytes(romtest.Build(romtest.Options{Size: 0x10000, Title: "HIROM", HiROM: true}))
	noHeader := rom.FromBytes(make([]byte, 0x10000))

	tests := []struct {
		name     string
		mapOpt   string
		img      *rom.Image
		wantMode mapper.Mode
	}{
		{
			name:     "detect LoROM header",
			img:      loROM,
			wantMode: mapper.LoROM,
		},
		{
			name:     "detect HiROM header",
			img:      hiROM,
			wantMode: mapper.HiROM,
		},
		{
			name:     "explicit mapping overrides header",
			mapOpt:   "hirom",
			img:      loROM,
			wantMode: mapper.HiROM,
		},
		{
			name:     "invalid mapping uses header",
			mapOpt:   "sa1",
			img:      hiROM,
			wantMode: mapper.HiROM,
		},
		{
			name:     "no header defaults to LoROM",
			img:      noHeader,
			wantMode: mapper.LoROM,
		},
		{
			name:     "explicit mapping without header",
			mapOpt:   "exhirom",
			img:      noHeader,
			wantMode: mapper.ExHiROM,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := options.Program{
				Parameters: options.Parameters{Input: "game.sfc"},
				Flags:      options.Flags{Map: tt.mapOpt},
			}
			m := d.Detect(opts, tt.img)
			assert.Equal(t, tt.wantMode, m.Mode())
		})
	}
}

func TestDetect_MapperTranslation(t *testing.T) {
	d := New(log.NewTestLogger(t))
	img := rom.FromBytes(romtest.Build(romtest.Options{Size: 0x10000, Title: "LOROM"}))

	m := d.Detect(options.Program{}, img)
	offset, err := m.ToFileOffset(mapper.NewPointer(0x80, 0x8000))
	assert.NoError(t, err)
	assert.Equal(t, 0, offset)
}
