// Package region analyses ROM areas: it tells empty areas apart from data
// and groups found sprites into navigable regions.
package region

import (
	"fmt"

	"github.com/semmlerino/spritepal/internal/sprite"
)

const maxPatternPeriod = 16

// Config holds the thresholds of the empty region detection.
type Config struct {
	EntropyThreshold float64 // bits per byte below which data is low entropy
	ZeroThreshold    float64 // share of zero bytes that makes a region empty
	PatternThreshold float64 // pattern score from which data counts as structured
	MaxUniqueBytes   int     // unique byte count up to which data can be empty
	RegionSize       int     // size of the regions of a ROM scan
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		EntropyThreshold: 0.5,
		ZeroThreshold:    0.9,
		PatternThreshold: 0.8,
		MaxUniqueBytes:   4,
		RegionSize:       256,
	}
}

// Analysis is the result of analysing one region.
type Analysis struct {
	Offset         int
	Size           int
	Empty          bool
	Entropy        float64
	ZeroPercentage float64 // share of zero bytes, 0 to 1
	UniqueBytes    int
	PatternScore   float64
	Reason         string
}

// Range is a half open range of ROM offsets.
type Range struct {
	Start int
	End   int
}

// Size returns the number of bytes of the range.
func (r Range) Size() int {
	return r.End - r.Start
}

// EmptyDetector finds empty ROM areas.
type EmptyDetector struct {
	config Config
}

// NewEmptyDetector returns a detector with the given thresholds.
func NewEmptyDetector(config Config) *EmptyDetector {
	if config.RegionSize <= 0 {
		config.RegionSize = DefaultConfig().RegionSize
	}
	return &EmptyDetector{config: config}
}

// Config returns the thresholds of the detector.
func (d *EmptyDetector) Config() Config {
	return d.config
}

// AnalyzeRegion analyses data that starts at the given ROM offset.
func (d *EmptyDetector) AnalyzeRegion(data []byte, offset int) Analysis {
	a := Analysis{
		Offset: offset,
		Size:   len(data),
	}
	if len(data) == 0 {
		a.Empty = true
		a.Reason = "no data"
		return a
	}

	var counts [256]int
	for _, b := range data {
		counts[b]++
	}
	for _, count := range counts {
		if count > 0 {
			a.UniqueBytes++
		}
	}
	a.ZeroPercentage = float64(counts[0]) / float64(len(data))
	a.Entropy = sprite.Entropy(data)
	a.PatternScore = PatternScore(data)

	switch {
	case a.UniqueBytes == 1:
		a.Empty = true
		if data[0] == 0 {
			a.Reason = "zero-filled"
		} else {
			a.Reason = fmt.Sprintf("filled with 0x%02X", data[0])
		}

	case a.ZeroPercentage >= d.config.ZeroThreshold:
		a.Empty = true
		a.Reason = "mostly zeros"

	case a.Entropy < d.config.EntropyThreshold &&
		a.UniqueBytes <= d.config.MaxUniqueBytes &&
		a.PatternScore < d.config.PatternThreshold:
		a.Empty = true
		a.Reason = "low entropy"

	case a.PatternScore >= d.config.PatternThreshold:
		a.Reason = "repeating pattern"

	default:
		a.Reason = "data"
	}
	return a
}

// PatternScore returns the highest share of bytes that equal the byte one
// period earlier, for periods 1 to 16. Repeating data scores close to 1,
// random data close to 0.
func PatternScore(data []byte) float64 {
	best := 0.0
	for period := 1; period <= maxPatternPeriod && period < len(data); period++ {
		matches := 0
		for i := period; i < len(data); i++ {
			if data[i] == data[i-period] {
				matches++
			}
		}
		best = max(best, float64(matches)/float64(len(data)-period))
	}
	return best
}

// ScanROM analyses the ROM data between start and end in regions of the
// configured size.
func (d *EmptyDetector) ScanROM(data []byte, start, end int) []Analysis {
	start = max(0, start)
	end = min(end, len(data))

	var analyses []Analysis
	for offset := start; offset < end; offset += d.config.RegionSize {
		regionEnd := min(offset+d.config.RegionSize, end)
		analyses = append(analyses, d.AnalyzeRegion(data[offset:regionEnd], offset))
	}
	return analyses
}

// FindNonEmpty returns the ranges of the ROM data that contain data, with
// adjacent non empty regions merged.
func (d *EmptyDetector) FindNonEmpty(data []byte, start, end int) []Range {
	var ranges []Range
	for _, a := range d.ScanROM(data, start, end) {
		if a.Empty {
			continue
		}
		if n := len(ranges); n > 0 && ranges[n-1].End == a.Offset {
			ranges[n-1].End = a.Offset + a.Size
			continue
		}
		ranges = append(ranges, Range{Start: a.Offset, End: a.Offset + a.Size})
	}
	return ranges
}

// SkipEmpty returns the start of the first non empty region at or after
// offset, or len(data) if only empty regions follow.
func (d *EmptyDetector) SkipEmpty(data []byte, offset int) int {
	for offset < len(data) {
		end := min(offset+d.config.RegionSize, len(data))
		if !d.AnalyzeRegion(data[offset:end], offset).Empty {
			return offset
		}
		offset = end
	}
	return len(data)
}
