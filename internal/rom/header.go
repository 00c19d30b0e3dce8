package rom

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/semmlerino/spritepal/internal/mapper"
	"golang.org/x/text/encoding/japanese"
)

// header locations relative to the start of the ROM data.
const (
	LoROMHeaderOffset   = 0x7FC0
	HiROMHeaderOffset   = 0xFFC0
	ExHiROMHeaderOffset = 0x40FFC0

	HeaderSize = 32
	titleSize  = 21

	checksumComplementOffset = 28
	checksumOffset           = 30
)

// ErrNoHeader is returned when no location contains a valid internal header.
var ErrNoHeader = errors.New("could not find valid SNES ROM header")

// Header is the internal SNES cartridge header.
type Header struct {
	Title              string
	MapMode            uint8
	CartridgeType      uint8
	ROMSize            uint8
	SRAMSize           uint8
	Country            uint8
	License            uint8
	Version            uint8
	ChecksumComplement uint16
	Checksum           uint16

	SMCOffset    int         // size of the copier header in front of the ROM data
	HeaderOffset int         // absolute file offset of the header
	Mode         mapper.Mode // mapping mode derived from the header location
	FastROM      bool
}

var headerCandidates = []struct {
	offset int
	mode   mapper.Mode
}{
	{offset: LoROMHeaderOffset, mode: mapper.LoROM},
	{offset: HiROMHeaderOffset, mode: mapper.HiROM},
	{offset: ExHiROMHeaderOffset, mode: mapper.ExHiROM},
}

// ParseHeader searches the known header locations and returns the first
// header whose checksum and complement are consistent.
func ParseHeader(data []byte) (*Header, error) {
	smc := DetectSMCHeader(len(data))

	for _, candidate := range headerCandidates {
		start := smc + candidate.offset
		if start+HeaderSize > len(data) {
			continue
		}

		raw := data[start : start+HeaderSize]
		complement := binary.LittleEndian.Uint16(raw[checksumComplementOffset:])
		checksum := binary.LittleEndian.Uint16(raw[checksumOffset:])
		if checksum^complement != 0xFFFF {
			continue
		}

		return &Header{
			Title:              DecodeTitle(raw[:titleSize]),
			MapMode:            raw[21],
			CartridgeType:      raw[22],
			ROMSize:            raw[23],
			SRAMSize:           raw[24],
			Country:            raw[25],
			License:            raw[26],
			Version:            raw[27],
			ChecksumComplement: complement,
			Checksum:           checksum,
			SMCOffset:          smc,
			HeaderOffset:       start,
			Mode:               candidate.mode,
			FastROM:            raw[21]&0x10 != 0,
		}, nil
	}

	return nil, ErrNoHeader
}

// DecodeTitle decodes a header title. Titles use JIS X 0201, which maps
// to the single byte subset of Shift JIS.
func DecodeTitle(raw []byte) string {
	decoded, err := japanese.ShiftJIS.NewDecoder().Bytes(raw)
	if err != nil || strings.ContainsRune(string(decoded), unicode.ReplacementChar) {
		decoded = asciiOnly(raw)
	}
	title := strings.Map(func(r rune) rune {
		if r == 0 || !unicode.IsPrint(r) {
			return ' '
		}
		return r
	}, string(decoded))
	return strings.TrimSpace(title)
}

func asciiOnly(raw []byte) []byte {
	out := make([]byte, 0, len(raw))
	for _, b := range raw {
		if b >= 0x20 && b < 0x7F {
			out = append(out, b)
		} else {
			out = append(out, ' ')
		}
	}
	return out
}

// ROMSizeBytes returns the ROM size declared by the header.
func (h *Header) ROMSizeBytes() int {
	if h.ROMSize == 0 || h.ROMSize > 15 {
		return 0
	}
	return 1024 << h.ROMSize
}

// ChecksumValid reports whether checksum and complement are consistent.
func (h *Header) ChecksumValid() bool {
	return h.Checksum^h.ChecksumComplement == 0xFFFF
}

// Mapper returns an address mapper for the ROM layout described by the header.
func (h *Header) Mapper(fileSize int) *mapper.Mapper {
	return mapper.New(h.Mode, fileSize-h.SMCOffset, h.SMCOffset, h.FastROM)
}

// String returns a short description of the header.
func (h *Header) String() string {
	return fmt.Sprintf("%s (%s, checksum 0x%04X)", h.Title, h.Mode, h.Checksum)
}
