// Package sprite implements heuristics that tell decompressed sprite
// graphics apart from other data.
package sprite

import (
	"bytes"
	"math"

	"github.com/semmlerino/spritepal/internal/tile"
)

// Thresholds of the quality assessment.
const (
	MinSpriteTiles     = 16
	TypicalSpriteMin   = 32
	TypicalSpriteMax   = 256
	LargeSpriteMax     = 1024
	MaxAlignmentError  = 16
	QualityThreshold   = 0.5
	QualityBonus       = 0.15
	MaxDecompressedLen = 65536

	entropySample   = 4096
	tileSample      = 50
	patternSample   = 1024
	validateSample  = 10
	embeddedMinSize = 16 * 1024
	embeddedWindow  = 8 * 1024
	searchLimit     = 0x2000
)

var embeddedOffsets = []int{512, 1024, 2048, 4096}

var commonOffsets = []int{0, 0x100, 0x200, 0x400, 0x800, 0x1000}

// Entropy returns the Shannon entropy of data in bits per byte (0 to 8).
func Entropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}

	var counts [256]int
	for _, b := range data {
		counts[b]++
	}

	entropy := 0.0
	total := float64(len(data))
	for _, count := range counts {
		if count == 0 {
			continue
		}
		p := float64(count) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// ValidTile reports whether a 32 byte tile looks like 4bpp graphics: it is
// neither blank nor full, at least one plane pair varies and at least two
// rows have overlapping bits between the low and high plane pairs.
func ValidTile(data []byte) bool {
	if len(data) != tile.BytesPerTile {
		return false
	}

	zero := make([]byte, tile.BytesPerTile)
	full := bytes.Repeat([]byte{0xFF}, tile.BytesPerTile)
	if bytes.Equal(data, zero) || bytes.Equal(data, full) {
		return false
	}

	validPlanes := 0
	if planePairVaries(data[:16]) {
		validPlanes++
	}
	if planePairVaries(data[16:]) {
		validPlanes++
	}

	correlated := 0
	for row := range tile.Size {
		p0, p1 := data[row*2], data[row*2+1]
		p2, p3 := data[16+row*2], data[16+row*2+1]
		if p0&p2 != 0 || p1&p3 != 0 {
			correlated++
		}
	}

	return validPlanes >= 1 && correlated >= 2
}

func planePairVaries(data []byte) bool {
	zeros, ones := 0, 0
	for _, b := range data {
		switch b {
		case 0x00:
			zeros++
		case 0xFF:
			ones++
		}
	}
	limit := len(data) - 1
	return zeros < limit && ones < limit
}

// HasTileCharacteristics reports whether at least two of the four bitplanes
// of a tile contain varied rows.
func HasTileCharacteristics(data []byte) bool {
	if len(data) != tile.BytesPerTile {
		return false
	}

	varied := 0
	for _, start := range []int{0, 1, 16, 17} {
		allZero, allFull := true, true
		for row := range tile.Size {
			b := data[start+row*2]
			allZero = allZero && b == 0x00
			allFull = allFull && b == 0xFF
		}
		if !allZero && !allFull {
			varied++
		}
	}
	return varied >= 2
}

// ValidateData reports whether data is tile aligned and at least 60% of the
// first tiles have 4bpp characteristics.
func ValidateData(data []byte) bool {
	if len(data) == 0 || len(data)%tile.BytesPerTile != 0 {
		return false
	}

	count := len(data) / tile.BytesPerTile
	checked := min(validateSample, count)
	valid := 0
	for i := range checked {
		if HasTileCharacteristics(data[i*tile.BytesPerTile : (i+1)*tile.BytesPerTile]) {
			valid++
		}
	}
	return float64(valid)/float64(checked) >= 0.6
}

// HasGraphicsPatterns reports whether adjacent tiles are similar without
// being identical, which is typical for sprite sheets.
func HasGraphicsPatterns(data []byte) bool {
	if len(data) < 2*tile.BytesPerTile {
		return false
	}

	matches := 0
	limit := min(len(data)-2*tile.BytesPerTile, patternSample)
	for i := 0; i < limit; i += tile.BytesPerTile {
		first := data[i : i+tile.BytesPerTile]
		second := data[i+tile.BytesPerTile : i+2*tile.BytesPerTile]
		similar := 0
		for j := range tile.BytesPerTile {
			if first[j] == second[j] {
				similar++
			}
		}
		if similar >= 4 && similar <= 28 {
			matches++
		}
	}
	return matches >= 2
}

// AssessQuality scores decompressed data from 0.0 to 1.0 by how much it
// resembles 4bpp sprite graphics.
func AssessQuality(data []byte) float64 {
	return assessQuality(data, true)
}

func assessQuality(data []byte, checkEmbedded bool) float64 {
	size := len(data)
	if size == 0 || size > MaxDecompressedLen {
		return 0
	}

	score := 0.0
	extra := size % tile.BytesPerTile
	switch {
	case extra == 0:
		score += 0.2
	case extra > MaxAlignmentError:
		return 0
	case extra <= 8:
		score += 0.1
	}

	count := size / tile.BytesPerTile
	switch {
	case count >= TypicalSpriteMin && count <= TypicalSpriteMax:
		score += 0.2
	case count >= MinSpriteTiles && count <= LargeSpriteMax:
		score += 0.1
	case count < MinSpriteTiles:
		score *= 0.5
	default:
		return 0
	}

	entropy := Entropy(data[:min(entropySample, size)])
	switch {
	case entropy >= 2 && entropy <= 6:
		score += 0.2
	case entropy < 1 || entropy > 7:
		score *= 0.5
	}

	score = applyTileValidity(data, count, score)

	if HasGraphicsPatterns(data) {
		score += 0.1
	}

	if checkEmbedded && score < QualityThreshold && size > embeddedMinSize {
		for _, offset := range embeddedOffsets {
			if offset+embeddedWindow > size {
				continue
			}
			embedded := assessQuality(data[offset:offset+embeddedWindow], false)
			if embedded > score {
				return min(embedded, 1.0)
			}
		}
	}

	return min(score, 1.0)
}

func applyTileValidity(data []byte, count int, score float64) float64 {
	checked := min(tileSample, count)
	if checked == 0 {
		return score * 0.5
	}

	valid := 0
	for i := range checked {
		if ValidTile(data[i*tile.BytesPerTile : (i+1)*tile.BytesPerTile]) {
			valid++
		}
	}

	ratio := float64(valid) / float64(checked)
	switch {
	case ratio >= 0.8:
		return score + 0.3
	case ratio >= 0.5:
		return score + QualityBonus
	case ratio < 0.3:
		return score * 0.5
	}
	return score
}

// FindInData searches data for a window of size bytes that passes
// ValidateData. Common alignment points are tried first, then every tile
// boundary below 0x2000. It returns -1 if no window matches.
func FindInData(data []byte, size int) int {
	maxOffset := len(data) - size
	if size <= 0 || maxOffset < 0 {
		return -1
	}

	for _, offset := range commonOffsets {
		if offset > maxOffset {
			break
		}
		if ValidateData(data[offset : offset+size]) {
			return offset
		}
	}

	for offset := 0; offset < min(maxOffset, searchLimit); offset += tile.BytesPerTile {
		if ValidateData(data[offset : offset+size]) {
			return offset
		}
	}
	return -1
}
