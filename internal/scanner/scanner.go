// Package scanner searches ROM images for HAL compressed sprite graphics.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrogolib/set"
	"github.com/semmlerino/spritepal/internal/extractor"
	"github.com/semmlerino/spritepal/internal/rom"
	"github.com/semmlerino/spritepal/internal/romcache"
	"github.com/semmlerino/spritepal/internal/sprite"
)

const (
	// DefaultStep is the distance between probed offsets of a full scan.
	DefaultStep = 0x100
	// FineStep is the distance between probed offsets around a known offset.
	FineStep = 0x20
	// DefaultSearchRange is the distance from the base offset searched by
	// FindBestOffsets in both directions.
	DefaultSearchRange = 0x1000
	// MaxBestOffsets is the maximum number of results of FindBestOffsets.
	MaxBestOffsets = 5

	progressInterval = 50
)

// Result is a sprite found by a scan.
type Result = romcache.FoundSprite

// Params define the range of a scan.
type Params struct {
	Start   int `validate:"gte=0"`
	End     int `validate:"gtfield=Start"`
	Step    int `validate:"gte=1"`
	Workers int `validate:"gte=1,lte=64"`
}

// DefaultParams returns parameters that scan the whole ROM.
func DefaultParams(romSize int) Params {
	return Params{
		Start:   0,
		End:     romSize,
		Step:    DefaultStep,
		Workers: 4,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the parameter constraints.
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid scan parameters: %w", err)
	}
	return nil
}

func (p Params) cacheParams() romcache.ScanParams {
	return romcache.ScanParams{Start: p.Start, End: p.End, Step: p.Step}
}

// Scanner probes ROM offsets for compressed sprites.
type Scanner struct {
	logger    *log.Logger
	extractor *extractor.Extractor
	cache     *romcache.Cache
}

// New returns a scanner. The cache is optional and enables resuming scans.
func New(logger *log.Logger, ext *extractor.Extractor, cache *romcache.Cache) *Scanner {
	return &Scanner{
		logger:    logger,
		extractor: ext,
		cache:     cache,
	}
}

// Probe decompresses the data at offset and returns the found sprite if
// the result is a usable sprite: at least MinSpriteTiles tiles and no more
// than MaxExtraBytes trailing bytes.
func Probe(ext *extractor.Extractor, data []byte, offset int) (Result, bool) {
	result, err := ext.FindCompressedSprite(data, offset, 0)
	if err != nil {
		return Result{}, false
	}

	tiles := result.TileCount()
	extra := result.ExtraBytes()
	if extra > extractor.MaxExtraBytes || tiles < sprite.MinSpriteTiles {
		return Result{}, false
	}

	alignment := "perfect"
	if extra > 0 {
		alignment = fmt.Sprintf("%d extra bytes", extra)
	}
	return Result{
		Offset:           offset,
		CompressedSize:   result.CompressedSize,
		DecompressedSize: result.OriginalSize,
		TileCount:        tiles,
		Alignment:        alignment,
		Quality:          sprite.AssessQuality(result.Data),
	}, true
}

// Scan probes the range of the ROM file for sprites. Progress is stored in
// the cache so that an interrupted scan continues where it stopped, and a
// completed scan of the same range returns the stored result. The results
// are sorted by descending quality. On cancellation the results found so far
// are returned together with the context error.
func (s *Scanner) Scan(ctx context.Context, romPath string, params Params) ([]Result, error) {
	img, err := rom.Load(romPath)
	if err != nil {
		return nil, err
	}

	params.End = min(params.End, img.Size())
	if params.Workers == 0 {
		params.Workers = 1
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	start := params.Start
	var found []Result

	if progress, ok := s.cachedProgress(romPath, params); ok {
		if progress.Completed {
			s.logger.Info("Using cached scan results", log.Int("sprites", len(progress.FoundSprites)))
			return progress.FoundSprites, nil
		}
		found = progress.FoundSprites
		start = max(start, progress.CurrentOffset)
		s.logger.Info("Resuming scan",
			log.Hex("offset", start),
			log.Int("sprites", len(found)))
	}

	s.logger.Info("Scanning ROM",
		log.Hex("start", start),
		log.Hex("end", params.End),
		log.Hex("step", params.Step))

	data := img.Data()
	probed := 0
	for offset := start; offset < params.End; offset += params.Step {
		if err := ctx.Err(); err != nil {
			s.saveProgress(romPath, params, found, offset, false)
			return sortByQuality(found), fmt.Errorf("scan stopped at 0x%X: %w", offset, err)
		}

		if result, ok := Probe(s.extractor, data, offset); ok {
			s.logger.Debug("Found sprite",
				log.Hex("offset", offset),
				log.Int("tiles", result.TileCount),
				log.String("quality", fmt.Sprintf("%.2f", result.Quality)))
			found = append(found, result)
		}

		probed++
		if probed%progressInterval == 0 {
			s.saveProgress(romPath, params, found, offset+params.Step, false)
		}
	}

	found = sortByQuality(found)
	s.saveProgress(romPath, params, found, params.End, true)
	s.logger.Info("Scan finished", log.Int("sprites", len(found)))
	return found, nil
}

// FindBestOffsets probes the area of searchRange bytes around base in fine
// steps and returns up to MaxBestOffsets results with a quality of at least
// QualityThreshold, best first.
func (s *Scanner) FindBestOffsets(ctx context.Context, romPath string, base, searchRange int) ([]Result, error) {
	img, err := rom.Load(romPath)
	if err != nil {
		return nil, err
	}
	if err := img.ValidateOffset(base); err != nil {
		return nil, err
	}
	if searchRange <= 0 {
		searchRange = DefaultSearchRange
	}

	start := max(0, base-searchRange)
	end := min(img.Size(), base+searchRange)

	offsets := []int{base}
	for offset := start; offset < end; offset += FineStep {
		offsets = append(offsets, offset)
	}

	data := img.Data()
	visited := set.New[int]()
	var found []Result

	for _, offset := range offsets {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("searching near 0x%X: %w", base, err)
		}
		if visited.Contains(offset) {
			continue
		}
		visited.Add(offset)

		result, ok := Probe(s.extractor, data, offset)
		if ok && result.Quality >= sprite.QualityThreshold {
			found = append(found, result)
		}
	}

	found = sortByQuality(found)
	if len(found) > MaxBestOffsets {
		found = found[:MaxBestOffsets]
	}
	s.logger.Debug("Searched for best offsets",
		log.Hex("base", base),
		log.Int("probed", len(visited)),
		log.Int("found", len(found)))
	return found, nil
}

func (s *Scanner) cachedProgress(romPath string, params Params) (*romcache.ScanProgress, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.GetPartialScanResults(romPath, params.cacheParams())
}

func (s *Scanner) saveProgress(romPath string, params Params, found []Result, offset int, completed bool) {
	if s.cache == nil {
		return
	}
	err := s.cache.SavePartialScanResults(romPath, params.cacheParams(), found, offset, completed)
	if err != nil && !errors.Is(err, romcache.ErrDisabled) {
		s.logger.Warn("Failed to save scan progress", log.Err(err))
	}
}

// sortByQuality sorts by descending quality, equal qualities by offset.
func sortByQuality(results []Result) []Result {
	slices.SortStableFunc(results, func(a, b Result) int {
		switch {
		case a.Quality > b.Quality:
			return -1
		case a.Quality < b.Quality:
			return 1
		default:
			return a.Offset - b.Offset
		}
	})
	return results
}
