// Package mapper translates between SNES CPU addresses and ROM file offsets.
package mapper

import (
	"errors"
	"fmt"
	"strings"
)

// Mode is the cartridge memory mapping scheme.
type Mode uint8

// supported mapping schemes.
const (
	LoROM Mode = iota
	HiROM
	ExHiROM
)

const (
	loROMBankSize   = 0x8000
	hiROMBankSize   = 0x10000
	maxLoROMSize    = 0x400000
	maxHiROMSize    = 0x400000
	maxExHiROMSize  = 0x7E0000
	exHiROMUpperLow = 0x400000
)

// ErrUnmappedAddress is returned for CPU addresses that do not map to ROM.
var ErrUnmappedAddress = errors.New("address is not mapped to ROM")

var modeNames = map[Mode]string{
	LoROM:   "lorom",
	HiROM:   "hirom",
	ExHiROM: "exhirom",
}

// String returns the lower case name of the mapping mode.
func (m Mode) String() string {
	name, ok := modeNames[m]
	if !ok {
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
	return name
}

// ModeFromString parses a mapping mode name.
func ModeFromString(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for mode, name := range modeNames {
		if name == s {
			return mode, nil
		}
	}
	return LoROM, fmt.Errorf("unsupported mapping mode '%s'", s)
}

// Mapper converts addresses for a single ROM layout.
type Mapper struct {
	mode      Mode
	fastROM   bool
	romSize   int // size of the ROM data without copier header
	smcOffset int
}

// New creates a new mapper. The romSize excludes any copier header, which
// is passed separately as smcOffset.
func New(mode Mode, romSize, smcOffset int, fastROM bool) *Mapper {
	return &Mapper{
		mode:      mode,
		fastROM:   fastROM,
		romSize:   romSize,
		smcOffset: smcOffset,
	}
}

// Mode returns the mapping mode of the mapper.
func (m *Mapper) Mode() Mode {
	return m.mode
}

// ToFileOffset converts a CPU address to an offset in the ROM file,
// including the copier header.
func (m *Mapper) ToFileOffset(p Pointer) (int, error) {
	offset, err := m.toROMOffset(p.Bank(), p.Address())
	if err != nil {
		return 0, err
	}
	if offset >= m.romSize {
		return 0, fmt.Errorf("address %s maps to offset 0x%X beyond ROM size 0x%X: %w",
			p, offset, m.romSize, ErrUnmappedAddress)
	}
	return offset + m.smcOffset, nil
}

// ToPointer converts an offset in the ROM file to a CPU address.
func (m *Mapper) ToPointer(fileOffset int) (Pointer, error) {
	offset := fileOffset - m.smcOffset
	if offset < 0 || offset >= m.romSize {
		return 0, fmt.Errorf("file offset 0x%X outside of ROM data: %w", fileOffset, ErrUnmappedAddress)
	}

	switch m.mode {
	case LoROM:
		if offset >= maxLoROMSize {
			return 0, fmt.Errorf("offset 0x%X too large for lorom: %w", offset, ErrUnmappedAddress)
		}
		bank := uint8(offset / loROMBankSize)
		if m.fastROM || bank >= 0x7E {
			bank |= 0x80
		}
		return NewPointer(bank, uint16(0x8000|offset%loROMBankSize)), nil

	case HiROM:
		if offset >= maxHiROMSize {
			return 0, fmt.Errorf("offset 0x%X too large for hirom: %w", offset, ErrUnmappedAddress)
		}
		return NewPointer(uint8(0xC0|offset>>16), uint16(offset&0xFFFF)), nil

	case ExHiROM:
		if offset < exHiROMUpperLow {
			return NewPointer(uint8(0xC0|offset>>16), uint16(offset&0xFFFF)), nil
		}
		if offset >= maxExHiROMSize {
			return 0, fmt.Errorf("offset 0x%X too large for exhirom: %w", offset, ErrUnmappedAddress)
		}
		upper := offset - exHiROMUpperLow
		return NewPointer(uint8(0x40|upper>>16), uint16(upper&0xFFFF)), nil

	default:
		return 0, fmt.Errorf("unsupported mapping mode %s", m.mode)
	}
}

func (m *Mapper) toROMOffset(bank uint8, addr uint16) (int, error) {
	switch m.mode {
	case LoROM:
		// banks 00-3F and 80-BF only map ROM into the upper half
		if bank&0x7F < 0x40 && addr < 0x8000 {
			return 0, fmt.Errorf("address $%02X:%04X: %w", bank, addr, ErrUnmappedAddress)
		}
		if bank == 0x7E || bank == 0x7F {
			return 0, fmt.Errorf("address $%02X:%04X is work RAM: %w", bank, addr, ErrUnmappedAddress)
		}
		return int(bank&0x7F)*loROMBankSize + int(addr&0x7FFF), nil

	case HiROM:
		if bank >= 0xC0 || (bank >= 0x40 && bank < 0x7E) {
			return int(bank&0x3F)<<16 | int(addr), nil
		}
		if addr < 0x8000 || bank == 0x7E || bank == 0x7F {
			return 0, fmt.Errorf("address $%02X:%04X: %w", bank, addr, ErrUnmappedAddress)
		}
		return int(bank&0x3F)<<16 | int(addr), nil

	case ExHiROM:
		switch {
		case bank >= 0xC0:
			return int(bank&0x3F)<<16 | int(addr), nil
		case bank >= 0x40 && bank < 0x7E:
			return exHiROMUpperLow + (int(bank&0x3F)<<16 | int(addr)), nil
		case addr >= 0x8000 && bank >= 0x80:
			return int(bank&0x3F)<<16 | int(addr), nil
		case addr >= 0x8000 && bank < 0x40:
			return exHiROMUpperLow + (int(bank)<<16 | int(addr)), nil
		}
		return 0, fmt.Errorf("address $%02X:%04X: %w", bank, addr, ErrUnmappedAddress)

	default:
		return 0, fmt.Errorf("unsupported mapping mode %s", m.mode)
	}
}

// BankSize returns the size of a ROM bank in the file for the mode.
func (m *Mapper) BankSize() int {
	if m.mode == LoROM {
		return loROMBankSize
	}
	return hiROMBankSize
}
