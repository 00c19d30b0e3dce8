// Package dmatrace loads ROM offsets recorded by emulator DMA trace scripts
// and verifies them against the sprite decompressor.
package dmatrace

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/semmlerino/spritepal/internal/spriteconfig"
)

// MaxOffset is the exclusive upper bound of accepted trace offsets, the
// largest SNES ROM size.
const MaxOffset = 0x800000

// ErrUnknownFormat is returned for trace files that contain neither a
// rom_offsets list nor a unique_rom_offsets object.
var ErrUnknownFormat = errors.New("unknown trace file format")

// Trace is a ROM offset that was the source of DMA transfers.
type Trace struct {
	Offset int
	Hits   int // number of recorded transfers
}

type traceFile struct {
	ROMOffsets       []json.RawMessage          `json:"rom_offsets"`
	UniqueROMOffsets map[string]json.RawMessage `json:"unique_rom_offsets"`
}

type traceEntry struct {
	Offset spriteconfig.Value `json:"offset"`
	Count  int                `json:"count"`
}

// Load reads the trace file at path.
func Load(path string) ([]Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trace file: %w", err)
	}
	traces, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing trace file '%s': %w", path, err)
	}
	return traces, nil
}

// Parse decodes trace data. Two formats are supported: a rom_offsets list of
// numbers or objects with an offset field, and a unique_rom_offsets object
// keyed by decimal or hex offset. Offsets outside of the ROM address range
// are dropped, duplicates are merged and the result is sorted by offset.
func Parse(data []byte) ([]Trace, error) {
	var file traceFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decoding trace data: %w", err)
	}

	hits := map[int]int{}
	switch {
	case file.ROMOffsets != nil:
		for _, raw := range file.ROMOffsets {
			entry, err := decodeEntry(raw)
			if err != nil {
				return nil, err
			}
			addTrace(hits, int(entry.Offset), max(entry.Count, 1))
		}

	case file.UniqueROMOffsets != nil:
		for key, raw := range file.UniqueROMOffsets {
			offset, err := spriteconfig.ParseValue(key)
			if err != nil {
				continue
			}
			addTrace(hits, int(offset), max(decodeCount(raw), 1))
		}

	default:
		return nil, ErrUnknownFormat
	}

	traces := make([]Trace, 0, len(hits))
	for _, offset := range slices.Sorted(maps.Keys(hits)) {
		traces = append(traces, Trace{Offset: offset, Hits: hits[offset]})
	}
	return traces, nil
}

func addTrace(hits map[int]int, offset, count int) {
	if offset < 0 || offset >= MaxOffset {
		return
	}
	hits[offset] += count
}

func decodeEntry(raw json.RawMessage) (traceEntry, error) {
	var entry traceEntry
	if err := json.Unmarshal(raw, &entry); err == nil {
		return entry, nil
	}
	if err := json.Unmarshal(raw, &entry.Offset); err != nil {
		return traceEntry{}, fmt.Errorf("decoding trace entry: %w", err)
	}
	return entry, nil
}

// decodeCount returns the transfer count of a unique_rom_offsets value,
// which is either a number or an object with a count field.
func decodeCount(raw json.RawMessage) int {
	var count int
	if err := json.Unmarshal(raw, &count); err == nil {
		return count
	}
	var entry traceEntry
	if err := json.Unmarshal(raw, &entry); err == nil {
		return entry.Count
	}
	return 0
}

// Offsets returns the offsets of the traces.
func Offsets(traces []Trace) []int {
	offsets := make([]int, len(traces))
	for i, t := range traces {
		offsets[i] = t.Offset
	}
	return offsets
}
