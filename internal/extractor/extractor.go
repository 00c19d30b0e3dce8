// Package extractor decompresses sprites from ROM images and writes them as
// PNG sheets with palette and metadata files.
package extractor

import (
	"errors"
	"fmt"

	"github.com/retroenv/retrogolib/log"
	"github.com/semmlerino/spritepal/internal/hal"
	"github.com/semmlerino/spritepal/internal/romcache"
	"github.com/semmlerino/spritepal/internal/sprite"
	"github.com/semmlerino/spritepal/internal/spriteconfig"
	"github.com/semmlerino/spritepal/internal/tile"
)

const (
	// DefaultMaxSpriteSize limits the decompressed data if no expected size
	// is known.
	DefaultMaxSpriteSize = 32768
	// MaxExtraBytes is the number of bytes beyond the last complete tile
	// that a usable sprite may have.
	MaxExtraBytes = 8
)

// ErrNoData is returned when decompression produced no data.
var ErrNoData = errors.New("decompression produced no data")

// ErrTooLarge is returned when the decompressed data exceeds the maximum
// sprite size.
var ErrTooLarge = errors.New("decompressed data too large")

// ErrNoValidSprite is returned when none of the tried offsets contains a
// usable sprite.
var ErrNoValidSprite = errors.New("no valid sprite found")

// Result of a sprite decompression.
type Result struct {
	Offset         int
	Data           []byte
	CompressedSize int // bytes consumed by the decoder
	OriginalSize   int // decompressed size before truncation
}

// ExtraBytes returns the number of bytes beyond the last complete tile.
func (r *Result) ExtraBytes() int {
	_, extra := tile.Count(r.Data)
	return extra
}

// TileCount returns the number of complete tiles.
func (r *Result) TileCount() int {
	count, _ := tile.Count(r.Data)
	return count
}

// Extractor finds and extracts compressed sprites.
type Extractor struct {
	logger *log.Logger
	config *spriteconfig.Config
	cache  *romcache.Cache
}

// New returns an extractor. The sprite config and the cache are optional.
func New(logger *log.Logger, config *spriteconfig.Config, cache *romcache.Cache) *Extractor {
	if config == nil {
		config = spriteconfig.New(logger, "")
	}
	return &Extractor{
		logger: logger,
		config: config,
		cache:  cache,
	}
}

// Config returns the sprite configuration used by the extractor.
func (e *Extractor) Config() *spriteconfig.Config {
	return e.config
}

// FindCompressedSprite decompresses the sprite at offset. The data is
// truncated to expectedSize, or to DefaultMaxSpriteSize if expectedSize is
// 0. When the truncated data does not look like sprite graphics, the full
// decompressed block is searched for a matching window.
func (e *Extractor) FindCompressedSprite(romData []byte, offset, expectedSize int) (*Result, error) {
	if expectedSize <= 0 {
		expectedSize = DefaultMaxSpriteSize
	}

	decompressed, err := hal.Decompress(romData, offset)
	if err != nil {
		return nil, fmt.Errorf("decompressing sprite at 0x%X: %w", offset, err)
	}
	full := decompressed.Data
	if len(full) == 0 {
		return nil, fmt.Errorf("sprite at 0x%X: %w", offset, ErrNoData)
	}
	if len(full) > sprite.MaxDecompressedLen {
		return nil, fmt.Errorf("sprite at 0x%X decompresses to %d bytes: %w", offset, len(full), ErrTooLarge)
	}

	result := &Result{
		Offset:         offset,
		Data:           full,
		CompressedSize: decompressed.CompressedSize,
		OriginalSize:   len(full),
	}

	switch {
	case len(full) > expectedSize:
		result.Data = full[:expectedSize]
		if !sprite.ValidateData(result.Data) {
			e.logger.Debug("Truncated data failed sprite validation, searching decompressed block",
				log.Hex("offset", offset),
				log.Int("size", len(full)))

			if found := sprite.FindInData(full, expectedSize); found >= 0 {
				e.logger.Debug("Found sprite data inside decompressed block", log.Int("position", found))
				result.Data = full[found : found+expectedSize]
			}
		}

	case len(full) < expectedSize:
		e.logger.Debug("Decompressed data is smaller than expected",
			log.Hex("offset", offset),
			log.Int("size", len(full)),
			log.Int("expected", expectedSize))
	}

	if extra := result.ExtraBytes(); extra != 0 {
		e.logger.Debug("Decompressed data is not tile aligned",
			log.Hex("offset", offset),
			log.Int("size", len(result.Data)),
			log.Int("extra", extra))
	}
	return result, nil
}

// FindCompressedSpriteWithFallback tries the primary offset and then every
// fallback offset. The first result with at most MaxExtraBytes misaligned
// bytes is returned.
func (e *Extractor) FindCompressedSpriteWithFallback(romData []byte, primary int, fallbacks []int,
	expectedSize int) (*Result, error) {

	offsets := append([]int{primary}, fallbacks...)
	var lastErr error

	for _, offset := range offsets {
		result, err := e.FindCompressedSprite(romData, offset, expectedSize)
		if err != nil {
			lastErr = err
			e.logger.Debug("Offset failed", log.Hex("offset", offset), log.Err(err))
			continue
		}

		if extra := result.ExtraBytes(); extra > MaxExtraBytes {
			lastErr = fmt.Errorf("sprite at 0x%X has %d misaligned bytes", offset, extra)
			continue
		}

		if offset != primary {
			e.logger.Info("Using fallback offset",
				log.Hex("primary", primary),
				log.Hex("offset", offset))
		}
		return result, nil
	}

	if lastErr == nil {
		lastErr = ErrNoValidSprite
	}
	return nil, fmt.Errorf("trying %d offsets: %w", len(offsets), errors.Join(ErrNoValidSprite, lastErr))
}
