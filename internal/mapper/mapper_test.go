package mapper

import (
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func TestToFileOffset(t *testing.T) {
	tests := []struct {
		name     string
		mode     Mode
		smc      int
		pointer  Pointer
		expected int
	}{
		{
			name:     "lorom first bank",
			mode:     LoROM,
			pointer:  NewPointer(0x00, 0x8000),
			expected: 0,
		},
		{
			name:     "lorom fastrom mirror",
			mode:     LoROM,
			pointer:  NewPointer(0x81, 0x9234),
			expected: 0x9234,
		},
		{
			name:     "lorom with copier header",
			mode:     LoROM,
			smc:      512,
			pointer:  NewPointer(0x02, 0x8010),
			expected: 0x10010 + 512,
		},
		{
			name:     "hirom bank c0",
			mode:     HiROM,
			pointer:  NewPointer(0xC3, 0x1234),
			expected: 0x31234,
		},
		{
			name:     "hirom lower mirror",
			mode:     HiROM,
			pointer:  NewPointer(0x03, 0x9234),
			expected: 0x39234,
		},
		{
			name:     "exhirom upper area",
			mode:     ExHiROM,
			pointer:  NewPointer(0x40, 0x0010),
			expected: 0x400010,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.mode, 0x800000, tt.smc, false)
			offset, err := m.ToFileOffset(tt.pointer)
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, offset)
		})
	}
}

func TestToFileOffset_Unmapped(t *testing.T) {
	tests := []struct {
		name    string
		mode    Mode
		pointer Pointer
	}{
		{name: "lorom low half", mode: LoROM, pointer: NewPointer(0x00, 0x2100)},
		{name: "lorom work ram", mode: LoROM, pointer: NewPointer(0x7E, 0x8000)},
		{name: "hirom io area", mode: HiROM, pointer: NewPointer(0x00, 0x4200)},
		{name: "beyond rom size", mode: HiROM, pointer: NewPointer(0xFF, 0xFFFF)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.mode, 0x100000, 0, false)
			_, err := m.ToFileOffset(tt.pointer)
			assert.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnmappedAddress))
		})
	}
}

func TestToPointer_RoundTrip(t *testing.T) {
	for _, mode := range []Mode{LoROM, HiROM, ExHiROM} {
		m := New(mode, 0x600000, 512, true)
		for _, offset := range []int{512, 0x8000 + 512, 0x12345 + 512, 0x3FFFFF + 512} {
			if mode == LoROM && offset-512 >= maxLoROMSize {
				continue
			}
			p, err := m.ToPointer(offset)
			assert.NoError(t, err, mode.String())

			back, err := m.ToFileOffset(p)
			assert.NoError(t, err, mode.String())
			assert.Equal(t, offset, back, mode.String())
		}
	}
}

func TestToPointer_LoROMFastROM(t *testing.T) {
	m := New(LoROM, 0x200000, 0, true)
	p, err := m.ToPointer(0x10000)
	assert.NoError(t, err)
	assert.Equal(t, uint8(0x82), p.Bank())
	assert.Equal(t, uint16(0x8000), p.Address())

	_, err = m.ToPointer(0x200000)
	assert.True(t, errors.Is(err, ErrUnmappedAddress))
}

func TestModeFromString(t *testing.T) {
	mode, err := ModeFromString("HiROM")
	assert.NoError(t, err)
	assert.Equal(t, HiROM, mode)
	assert.Equal(t, "hirom", mode.String())

	_, err = ModeFromString("sa1")
	assert.Error(t, err)
}

func TestParsePointer(t *testing.T) {
	tests := []struct {
		input    string
		expected Pointer
	}{
		{input: "$C0:1234", expected: 0xC01234},
		{input: "C0:1234", expected: 0xC01234},
		{input: "$C01234", expected: 0xC01234},
		{input: "0x7F8000", expected: 0x7F8000},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p, err := ParsePointer(tt.input)
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, p)
		})
	}

	_, err := ParsePointer("zz:1234")
	assert.Error(t, err)
	assert.Equal(t, "$C0:1234", Pointer(0xC01234).String())
}

func TestSplitOffset(t *testing.T) {
	bank, addr := SplitOffset(0x1A2B3C)
	assert.Equal(t, uint8(0x1A), bank)
	assert.Equal(t, uint16(0x2B3C), addr)
}
