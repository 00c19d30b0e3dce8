// Package injector writes edited sprite images back into ROM images.
package injector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/retroenv/retrogolib/log"
	"github.com/semmlerino/spritepal/internal/extractor"
	"github.com/semmlerino/spritepal/internal/hal"
	"github.com/semmlerino/spritepal/internal/rom"
	"github.com/semmlerino/spritepal/internal/spriteconfig"
	"github.com/semmlerino/spritepal/internal/tile"
)

// ErrCompressedTooLarge is returned when the compressed sprite does not fit
// into the space of the original sprite.
var ErrCompressedTooLarge = errors.New("compressed sprite is larger than the original")

// ErrNoOffset is returned when no offset was given and no metadata file
// provides one.
var ErrNoOffset = errors.New("no injection offset")

const padding = 0xFF

// Params configure an injection.
type Params struct {
	SpritePNG    string
	ROMIn        string
	ROMOut       string // empty overwrites ROMIn
	Offset       int    // 0 reads the offset from the metadata file
	MetadataPath string // empty uses <sprite>.metadata.json
	Fast         bool
	Backup       bool
}

// Stats describe a finished injection.
type Stats struct {
	Offset           int
	OriginalSize     int
	NewSize          int
	UncompressedSize int
	Ratio            float64 // new compressed size relative to the uncompressed size
	SavedBytes       int     // space freed compared to the original
	Mode             string
	Checksum         uint16
	Duration         time.Duration
	BackupPath       string
	OutputPath       string
	Tiles            []byte // injected uncompressed tile data
}

// Injector compresses sprite images and writes them into ROMs.
type Injector struct {
	logger  *log.Logger
	backups *BackupManager
}

// New returns an injector. The backup manager is only required for
// injections that request a backup.
func New(logger *log.Logger, backups *BackupManager) *Injector {
	return &Injector{
		logger:  logger,
		backups: backups,
	}
}

// Inject compresses the sprite image and writes it at the offset of the
// ROM. The new data must not be larger than the compressed original, the
// remaining space of the original is padded with 0xFF. The checksum of the
// output ROM is updated.
func (i *Injector) Inject(ctx context.Context, p Params) (*Stats, error) {
	started := time.Now()

	offset, err := resolveOffset(p)
	if err != nil {
		return nil, err
	}

	img, err := rom.Load(p.ROMIn)
	if err != nil {
		return nil, err
	}
	if err := img.ValidateOffset(offset); err != nil {
		return nil, err
	}

	stats := &Stats{
		Offset:     offset,
		Mode:       "standard",
		OutputPath: p.ROMOut,
	}
	if p.Fast {
		stats.Mode = "fast"
	}
	if stats.OutputPath == "" {
		stats.OutputPath = p.ROMIn
	}

	if p.Backup {
		if i.backups == nil {
			return nil, errors.New("backup requested without backup manager")
		}
		stats.BackupPath, err = i.backups.Create(p.ROMIn)
		if err != nil {
			return nil, err
		}
	}

	if _, err := img.Header(); err != nil {
		return nil, fmt.Errorf("reading ROM header: %w", err)
	}

	sprite, err := tile.ReadPNG(p.SpritePNG)
	if err != nil {
		return nil, err
	}
	stats.Tiles, err = tile.EncodeImage(sprite)
	if err != nil {
		return nil, fmt.Errorf("converting sprite image: %w", err)
	}
	stats.UncompressedSize = len(stats.Tiles)

	original, err := hal.Decompress(img.Data(), offset)
	if err != nil {
		return nil, fmt.Errorf("reading original sprite: %w", err)
	}
	stats.OriginalSize = original.CompressedSize

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("injection cancelled: %w", err)
	}

	compressed, err := hal.Compress(stats.Tiles, p.Fast)
	if err != nil {
		return nil, fmt.Errorf("compressing sprite: %w", err)
	}
	stats.NewSize = len(compressed)
	if stats.NewSize > stats.OriginalSize {
		return nil, fmt.Errorf("%d bytes compressed, %d bytes available: %w",
			stats.NewSize, stats.OriginalSize, ErrCompressedTooLarge)
	}
	stats.SavedBytes = stats.OriginalSize - stats.NewSize
	if stats.UncompressedSize > 0 {
		stats.Ratio = float64(stats.NewSize) / float64(stats.UncompressedSize)
	}

	out := img.Clone()
	if err := out.WriteAt(offset, compressed); err != nil {
		return nil, err
	}
	if err := out.Fill(offset+stats.NewSize, stats.SavedBytes, padding); err != nil {
		return nil, err
	}

	stats.Checksum, err = out.UpdateChecksum()
	if err != nil {
		return nil, fmt.Errorf("updating checksum: %w", err)
	}

	if err := out.Save(stats.OutputPath); err != nil {
		return nil, err
	}
	stats.Duration = time.Since(started)

	i.logger.Info("Injected sprite",
		log.Hex("offset", offset),
		log.String("output", stats.OutputPath),
		log.Int("original_size", stats.OriginalSize),
		log.Int("new_size", stats.NewSize),
		log.Int("saved", stats.SavedBytes),
		log.Uint16("checksum", stats.Checksum),
		log.Stringer("duration", stats.Duration))
	return stats, nil
}

// resolveOffset returns the offset of the parameters or the offset stored
// in the metadata file written by the extraction.
func resolveOffset(p Params) (int, error) {
	if p.Offset != 0 {
		return p.Offset, nil
	}

	path := p.MetadataPath
	if path == "" {
		path = strings.TrimSuffix(p.SpritePNG, ".png") + ".metadata.json"
		if _, err := os.Stat(path); err != nil {
			return 0, fmt.Errorf("sprite '%s': %w", p.SpritePNG, ErrNoOffset)
		}
	}

	info, err := extractor.ReadMetadata(path)
	if err != nil {
		return 0, err
	}
	offset, err := spriteconfig.ParseValue(info.ROMOffset)
	if err != nil {
		return 0, fmt.Errorf("parsing metadata offset: %w", err)
	}
	return int(offset), nil
}
