// Package romtest builds synthetic SNES ROM images for tests.
package romtest

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// Options control the generated ROM.
type Options struct {
	Size   int    // size of the ROM data without copier header
	Title  string // header title, padded to 21 bytes
	HiROM  bool   // place the header at 0xFFC0 instead of 0x7FC0
	SMC    bool   // prepend a 512 byte copier header
	Filler byte   // value used for unused space
}

// Build returns a ROM image with a consistent internal header and checksum.
func Build(opts Options) []byte {
	if opts.Size == 0 {
		opts.Size = 0x80000
	}
	smc := 0
	if opts.SMC {
		smc = 512
	}

	data := make([]byte, smc+opts.Size)
	for i := smc; i < len(data); i++ {
		data[i] = opts.Filler
	}

	headerOffset := smc + 0x7FC0
	mapMode := byte(0x20)
	if opts.HiROM {
		headerOffset = smc + 0xFFC0
		mapMode = 0x21
	}

	title := []byte(opts.Title)
	for i := range 21 {
		data[headerOffset+i] = ' '
		if i < len(title) {
			data[headerOffset+i] = title[i]
		}
	}
	data[headerOffset+21] = mapMode
	data[headerOffset+23] = 0x09
	data[headerOffset+25] = 0x01
	data[headerOffset+26] = 0x33

	// seed a consistent pair so the checksum words always sum to 0xFFFF
	binary.LittleEndian.PutUint16(data[headerOffset+28:], 0xFFFF)
	binary.LittleEndian.PutUint16(data[headerOffset+30:], 0x0000)
	FixChecksum(data, smc, headerOffset)
	return data
}

// FixChecksum recalculates and stores the checksum of the ROM data.
func FixChecksum(data []byte, smc, headerOffset int) {
	var sum uint32
	payload := data[smc:]
	for i := 0; i < len(payload); i += 2 {
		word := uint32(payload[i])
		if i+1 < len(payload) {
			word |= uint32(payload[i+1]) << 8
		}
		sum = (sum + word) & 0xFFFF
	}
	binary.LittleEndian.PutUint16(data[headerOffset+28:], uint16(sum)^0xFFFF)
	binary.LittleEndian.PutUint16(data[headerOffset+30:], uint16(sum))
}

// WriteFile writes data to a file in a test temp directory and returns its path.
func WriteFile(t *testing.T, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing test file: %v", err)
	}
	return path
}
