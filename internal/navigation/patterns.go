package navigation

import (
	"maps"
	"math"
	"slices"
)

const (
	patternBucketSize    = 0x10000
	maxCommonValues      = 10
	minAlignmentShare    = 0.3
	highDensityThreshold = 0.1
)

var alignments = []int{0x10, 0x20, 0x40, 0x80, 0x100, 0x200, 0x400, 0x800, 0x1000}

// Frequency is a value and the number of its occurrences.
type Frequency struct {
	Value int
	Count int
}

// Alignment is an offset alignment shared by many sprites.
type Alignment struct {
	Alignment int
	Count     int
	Share     float64 // share of all sprites, 0 to 1
}

// SpacingPattern describes the distances between consecutive sprites.
type SpacingPattern struct {
	CommonDistances []Frequency
	MeanDistance    float64
	MedianDistance  float64
	Alignments      []Alignment
	Confidence      float64
}

// SizePattern describes the sizes of the sprites.
type SizePattern struct {
	CommonSizes          []Frequency
	MeanCompressedSize   float64
	MeanDecompressedSize float64
	MeanTileCount        float64
	MeanCompressionRatio float64
	Confidence           float64
}

// BucketPattern describes the sprites of one 64KB bucket.
type BucketPattern struct {
	Start   int
	End     int
	Sprites int
	Density float64 // share of the bucket covered by compressed sprite data
	AvgSize float64
}

// RegionPattern describes how sprites are spread over the ROM.
type RegionPattern struct {
	Buckets     []BucketPattern // buckets with at least 2 sprites
	HighDensity []int           // start offsets of buckets with a density above 0.1
	Confidence  float64
}

// Analysis is the result of a pattern analysis of a region map.
type Analysis struct {
	Spacing    SpacingPattern
	Sizes      SizePattern
	Regions    RegionPattern
	Confidence float64
}

// bucket returns the bucket pattern that starts at offset.
func (p RegionPattern) bucket(start int) (BucketPattern, bool) {
	for _, b := range p.Buckets {
		if b.Start == start {
			return b, true
		}
	}
	return BucketPattern{}, false
}

// Analyze detects patterns in the sprite locations of the map.
func Analyze(m *RegionMap) Analysis {
	locations := m.All()
	a := Analysis{
		Spacing: analyzeSpacing(locations),
		Sizes:   analyzeSizes(locations),
		Regions: analyzeRegions(locations),
	}
	a.Confidence = (a.Spacing.Confidence + a.Sizes.Confidence + a.Regions.Confidence) / 3
	return a
}

func analyzeSpacing(locations []Location) SpacingPattern {
	var p SpacingPattern
	if len(locations) < 2 {
		return p
	}

	var distances []int
	for i := 1; i < len(locations); i++ {
		if distance := locations[i].Offset - locations[i-1].End(); distance >= 0 {
			distances = append(distances, distance)
		}
	}
	if len(distances) == 0 {
		return p
	}

	p.CommonDistances = mostCommon(distances, maxCommonValues)
	p.MeanDistance = mean(distances)
	p.MedianDistance = median(distances)

	for _, alignment := range alignments {
		count := 0
		for _, loc := range locations {
			if loc.Offset%alignment == 0 {
				count++
			}
		}
		share := float64(count) / float64(len(locations))
		if share > minAlignmentShare {
			p.Alignments = append(p.Alignments, Alignment{Alignment: alignment, Count: count, Share: share})
		}
	}

	// consistent spacing gives a high confidence
	if len(distances) >= 3 && p.MeanDistance > 0 {
		variation := stdev(distances) / p.MeanDistance
		p.Confidence = min(max(0, 1-variation), 1)
	}
	return p
}

func analyzeSizes(locations []Location) SizePattern {
	var p SizePattern
	if len(locations) == 0 {
		return p
	}

	var compressed, decompressed, tiles []int
	var ratios float64
	for _, loc := range locations {
		compressed = append(compressed, loc.CompressedSize)
		decompressed = append(decompressed, loc.DecompressedSize)
		tiles = append(tiles, loc.TileCount)
		ratios += loc.CompressionRatio()
	}

	p.CommonSizes = mostCommon(compressed, maxCommonValues)
	p.MeanCompressedSize = mean(compressed)
	p.MeanDecompressedSize = mean(decompressed)
	p.MeanTileCount = mean(tiles)
	p.MeanCompressionRatio = ratios / float64(len(locations))

	if len(compressed) >= 3 {
		p.Confidence = float64(p.CommonSizes[0].Count) / float64(len(compressed))
	}
	return p
}

func analyzeRegions(locations []Location) RegionPattern {
	var p RegionPattern
	if len(locations) == 0 {
		return p
	}

	buckets := map[int][]Location{}
	for _, loc := range locations {
		start := loc.Offset / patternBucketSize * patternBucketSize
		buckets[start] = append(buckets[start], loc)
	}

	var densities []float64
	for _, start := range slices.Sorted(maps.Keys(buckets)) {
		bucketLocations := buckets[start]
		if len(bucketLocations) < 2 {
			continue
		}

		total := 0
		for _, loc := range bucketLocations {
			total += loc.CompressedSize
		}
		b := BucketPattern{
			Start:   start,
			End:     start + patternBucketSize,
			Sprites: len(bucketLocations),
			Density: float64(total) / patternBucketSize,
			AvgSize: float64(total) / float64(len(bucketLocations)),
		}
		p.Buckets = append(p.Buckets, b)
		densities = append(densities, b.Density)
		if b.Density > highDensityThreshold {
			p.HighDensity = append(p.HighDensity, start)
		}
	}

	switch {
	case len(densities) == 0:
	case len(densities) == 1:
		p.Confidence = 0.5
	default:
		avg := meanFloat(densities)
		if avg > 0 {
			p.Confidence = min(max(0, 1-stdevFloat(densities)/avg), 1)
		}
	}
	return p
}

// mostCommon returns up to n values sorted by descending count, values with
// the same count in ascending order.
func mostCommon(values []int, n int) []Frequency {
	counts := map[int]int{}
	for _, v := range values {
		counts[v]++
	}

	frequencies := make([]Frequency, 0, len(counts))
	for value, count := range counts {
		frequencies = append(frequencies, Frequency{Value: value, Count: count})
	}
	slices.SortFunc(frequencies, func(a, b Frequency) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return a.Value - b.Value
	})
	if len(frequencies) > n {
		frequencies = frequencies[:n]
	}
	return frequencies
}

func toFloats(values []int) []float64 {
	floats := make([]float64, len(values))
	for i, v := range values {
		floats[i] = float64(v)
	}
	return floats
}

func mean(values []int) float64 {
	return meanFloat(toFloats(values))
}

func meanFloat(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return float64(sorted[mid])
	}
	return float64(sorted[mid-1]+sorted[mid]) / 2
}

func stdev(values []int) float64 {
	return stdevFloat(toFloats(values))
}

// stdevFloat returns the sample standard deviation.
func stdevFloat(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	avg := meanFloat(values)
	var sum float64
	for _, v := range values {
		sum += (v - avg) * (v - avg)
	}
	return math.Sqrt(sum / float64(len(values)-1))
}
