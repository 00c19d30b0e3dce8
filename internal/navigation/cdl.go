package navigation

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
)

// CDLFlag is the access flag of a ROM byte in a code data log.
type CDLFlag uint8

// code data log flags.
const (
	CDLCode          CDLFlag = 0x01
	CDLData          CDLFlag = 0x02
	CDLJumpTarget    CDLFlag = 0x04
	CDLSubEntryPoint CDLFlag = 0x08
)

var cdlMagic = []byte("CDLv2")

const cdlHeaderSize = 9 // magic and CRC32 of the ROM

// ErrCDLMismatch is returned for code data logs that were recorded for a
// different ROM.
var ErrCDLMismatch = errors.New("code data log does not match ROM")

// CodeDataLog holds the access flags of all ROM bytes recorded by the
// emulator.
type CodeDataLog struct {
	Flags []CDLFlag
	CRC32 uint32 // 0 for logs without header
}

// ParseCodeDataLog parses a code data log. Logs starting with a CDLv2
// header carry the CRC32 of the ROM, which is checked against romData if it
// is not nil. Logs without header consist of the flags only.
func ParseCodeDataLog(data, romData []byte) (*CodeDataLog, error) {
	cdl := &CodeDataLog{}

	if bytes.HasPrefix(data, cdlMagic) {
		if len(data) < cdlHeaderSize {
			return nil, fmt.Errorf("code data log header truncated: %d bytes", len(data))
		}
		cdl.CRC32 = binary.LittleEndian.Uint32(data[len(cdlMagic):cdlHeaderSize])
		data = data[cdlHeaderSize:]

		if romData != nil {
			if crc := crc32.ChecksumIEEE(romData); crc != cdl.CRC32 {
				return nil, fmt.Errorf("%w: log CRC 0x%08X, ROM CRC 0x%08X", ErrCDLMismatch, cdl.CRC32, crc)
			}
		}
	}

	cdl.Flags = make([]CDLFlag, len(data))
	for i, b := range data {
		cdl.Flags[i] = CDLFlag(b)
	}
	return cdl, nil
}

// LoadCodeDataLog reads and parses a code data log file.
func LoadCodeDataLog(path string, romData []byte) (*CodeDataLog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading code data log: %w", err)
	}
	return ParseCodeDataLog(data, romData)
}

// flagsIn returns the combined flags of the range [start, end).
func (c *CodeDataLog) flagsIn(start, end int) CDLFlag {
	var flags CDLFlag
	for i := max(start, 0); i < min(end, len(c.Flags)); i++ {
		flags |= c.Flags[i]
	}
	return flags
}

// ApplyCodeDataLog marks the locations whose sprite data was read as data
// or executed as code by the emulator. It returns the number of marked
// locations.
func (m *RegionMap) ApplyCodeDataLog(cdl *CodeDataLog) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	marked := 0
	for i := range m.locations {
		loc := &m.locations[i]
		end := max(loc.End(), loc.Offset+1)
		flags := cdl.flagsIn(loc.Offset, end)

		if flags&CDLData != 0 {
			loc.SetType(DataAccess)
		}
		if flags&(CDLCode|CDLJumpTarget|CDLSubEntryPoint) != 0 {
			loc.SetType(CodeAccess)
		}
		if flags != 0 {
			marked++
		}
	}
	if marked > 0 {
		m.version++
	}
	return marked
}
