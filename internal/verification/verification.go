// Package verification verifies that an injected ROM contains the injected
// sprite and is otherwise unchanged.
package verification

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/retroenv/retrogolib/log"
	"github.com/semmlerino/spritepal/internal/hal"
	"github.com/semmlerino/spritepal/internal/rom"
)

const maxLoggedDiffs = 10

// ErrChecksum is returned when the header checksum does not match the data.
var ErrChecksum = errors.New("checksum mismatch")

// Injection describes the sprite written into a ROM.
type Injection struct {
	Offset       int
	Tiles        []byte // uncompressed tile data
	OriginalSize int    // compressed size of the replaced sprite
}

// VerifyInjection checks that the injected ROM file has a valid checksum,
// decompresses to the injected tiles at the offset and differs from the
// original ROM file only in the space of the replaced sprite and the
// checksum words.
func VerifyInjection(logger *log.Logger, originalPath, injectedPath string, inj Injection) error {
	original, err := rom.Load(originalPath)
	if err != nil {
		return fmt.Errorf("loading original ROM: %w", err)
	}
	injected, err := rom.Load(injectedPath)
	if err != nil {
		return fmt.Errorf("loading injected ROM: %w", err)
	}

	header, err := injected.Header()
	if err != nil {
		return fmt.Errorf("reading injected ROM header: %w", err)
	}
	checksum, _ := rom.CalculateChecksum(injected.Data(), header.SMCOffset)
	if !header.ChecksumValid() || checksum != header.Checksum {
		return fmt.Errorf("header 0x%04X, calculated 0x%04X: %w", header.Checksum, checksum, ErrChecksum)
	}

	result, err := hal.Decompress(injected.Data(), inj.Offset)
	if err != nil {
		return fmt.Errorf("decompressing injected sprite: %w", err)
	}
	if !bytes.Equal(result.Data, inj.Tiles) {
		return fmt.Errorf("injected sprite at 0x%X decompresses to %d bytes that differ from the %d injected bytes",
			inj.Offset, len(result.Data), len(inj.Tiles))
	}

	checksumStart := header.HeaderOffset + 28
	ignore := func(offset int) bool {
		if offset >= inj.Offset && offset < inj.Offset+inj.OriginalSize {
			return true
		}
		return offset >= checksumStart && offset < checksumStart+4
	}
	if err := checkBufferEqual(logger, original.Data(), injected.Data(), ignore); err != nil {
		return fmt.Errorf("comparing ROM data: %w", err)
	}
	return nil
}

func checkBufferEqual(logger *log.Logger, input, output []byte, ignore func(offset int) bool) error {
	if len(input) != len(output) {
		return fmt.Errorf("mismatched lengths, %d != %d", len(input), len(output))
	}

	var diffs uint64
	for i := range input {
		if input[i] == output[i] || ignore(i) {
			continue
		}

		diffs++
		if diffs <= maxLoggedDiffs {
			logger.Warn("Offset mismatch",
				log.Hex("offset", i),
				log.Hex("expected", input[i]),
				log.Hex("got", output[i]))
		}
	}
	if diffs == 0 {
		return nil
	}
	return fmt.Errorf("%d offset mismatches", diffs)
}
