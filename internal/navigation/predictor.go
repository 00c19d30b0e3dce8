package navigation

import (
	"fmt"
)

// Prediction weights of the pattern sources.
const (
	spacingWeight   = 0.3
	sizeWeight      = 0.2
	regionWeight    = 0.25
	alignmentWeight = 0.15
)

// DefaultMaxPredictions is the default number of predicted offsets.
const DefaultMaxPredictions = 10

const (
	maxSpacingPredictions = 5
	maxSizePredictions    = 3
	maxBucketDistance     = 3
	minRegionGap          = 100
	sizeSearchRange       = 0x10000
	sizeGapMargin         = 1.2
)

// Predict returns likely sprite offsets after the current offset based on
// the patterns of the map, sorted by descending confidence.
func Predict(current int, m *RegionMap, a Analysis, maxPredictions int) []SuggestedOffset {
	if maxPredictions <= 0 {
		maxPredictions = DefaultMaxPredictions
	}

	var predictions []SuggestedOffset
	predictions = append(predictions, predictBySpacing(current, a.Spacing)...)
	predictions = append(predictions, predictByRegions(current, m, a.Regions)...)
	predictions = append(predictions, predictByAlignment(current, a.Spacing.Alignments)...)
	predictions = append(predictions, predictBySizeGaps(current, m, a.Sizes)...)

	romSize := m.ROMSize()
	valid := predictions[:0]
	for _, p := range predictions {
		if p.Offset >= 0 && (romSize == 0 || p.Offset < romSize) {
			valid = append(valid, p)
		}
	}

	ranked := Rank(valid)
	if len(ranked) > maxPredictions {
		ranked = ranked[:maxPredictions]
	}
	return ranked
}

func predictBySpacing(current int, p SpacingPattern) []SuggestedOffset {
	total := 0
	for _, f := range p.CommonDistances {
		total += f.Count
	}

	var predictions []SuggestedOffset
	for _, f := range p.CommonDistances[:min(maxSpacingPredictions, len(p.CommonDistances))] {
		weight := float64(f.Count) / float64(total)
		predictions = append(predictions, SuggestedOffset{
			Offset:      current + f.Value,
			Confidence:  p.Confidence * weight * spacingWeight,
			Reason:      ReasonPatternMatch,
			Description: fmt.Sprintf("spacing of %d bytes seen %d times", f.Value, f.Count),
		})
	}
	return predictions
}

func predictByRegions(current int, m *RegionMap, p RegionPattern) []SuggestedOffset {
	currentBucket := current / patternBucketSize

	var predictions []SuggestedOffset
	for _, start := range p.HighDensity {
		bucketDistance := abs(start/patternBucketSize - currentBucket)
		if bucketDistance > maxBucketDistance {
			continue
		}
		b, ok := p.bucket(start)
		if !ok {
			continue
		}

		distanceFactor := max(0.1, 1-float64(bucketDistance)*0.2)
		for _, gap := range gaps(m.InRange(b.Start, b.End), minRegionGap) {
			predictions = append(predictions, SuggestedOffset{
				Offset:      gap.Start + gap.Size()/2,
				Confidence:  p.Confidence * distanceFactor * b.Density * regionWeight,
				Reason:      ReasonPatternMatch,
				Description: fmt.Sprintf("gap in high density region 0x%06X", b.Start),
			})
		}
	}
	return predictions
}

func predictByAlignment(current int, alignments []Alignment) []SuggestedOffset {
	var predictions []SuggestedOffset
	for _, a := range alignments {
		predictions = append(predictions, SuggestedOffset{
			Offset:      (current/a.Alignment + 1) * a.Alignment,
			Confidence:  a.Share * alignmentWeight,
			Reason:      ReasonPatternMatch,
			Description: fmt.Sprintf("0x%X alignment shared by %d sprites", a.Alignment, a.Count),
		})
	}
	return predictions
}

func predictBySizeGaps(current int, m *RegionMap, p SizePattern) []SuggestedOffset {
	sizes := p.CommonSizes[:min(maxSizePredictions, len(p.CommonSizes))]
	total := 0
	for _, f := range p.CommonSizes {
		total += f.Count
	}

	var predictions []SuggestedOffset
	nearby := m.InRange(max(0, current-sizeSearchRange), current+sizeSearchRange)
	for _, gap := range gaps(nearby, 1) {
		for _, f := range sizes {
			if f.Value <= 0 || float64(gap.Size()) < float64(f.Value)*sizeGapMargin {
				continue
			}

			weight := float64(f.Count) / float64(total)
			fit := min(1, float64(gap.Size())/float64(2*f.Value))
			predictions = append(predictions, SuggestedOffset{
				Offset:      gap.Start,
				Confidence:  weight * fit * sizeWeight,
				Reason:      ReasonPatternMatch,
				Description: fmt.Sprintf("gap fits common size of %d bytes", f.Value),
			})
			break
		}
	}
	return predictions
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
