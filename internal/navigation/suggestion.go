package navigation

import (
	"slices"
)

// Reason names the source of an offset suggestion.
type Reason string

// suggestion reasons.
const (
	ReasonScanResult   Reason = "scan_result"
	ReasonPatternMatch Reason = "pattern_match"
	ReasonUserHistory  Reason = "user_history"
	ReasonDMATrace     Reason = "dma_trace"
)

// SuggestedOffset is a ROM offset that likely contains a sprite.
type SuggestedOffset struct {
	Offset      int     `json:"offset"`
	Confidence  float64 `json:"confidence"`
	Reason      Reason  `json:"reason"`
	SpriteName  string  `json:"sprite_name,omitempty"`
	Description string  `json:"description,omitempty"`
}

// ScanSuggestions returns the locations of the map that were found by a
// scan as suggestions.
func ScanSuggestions(m *RegionMap) []SuggestedOffset {
	var suggestions []SuggestedOffset
	for _, loc := range m.All() {
		if !loc.IsType(FromScan) {
			continue
		}
		suggestions = append(suggestions, SuggestedOffset{
			Offset:     loc.Offset,
			Confidence: loc.Confidence,
			Reason:     ReasonScanResult,
			SpriteName: loc.Name,
		})
	}
	return suggestions
}

// Rank merges the suggestions of all sources. For every offset the
// suggestion with the highest confidence is kept. The result is sorted by
// descending confidence.
func Rank(sources ...[]SuggestedOffset) []SuggestedOffset {
	best := map[int]SuggestedOffset{}
	for _, suggestions := range sources {
		for _, s := range suggestions {
			if existing, ok := best[s.Offset]; ok && existing.Confidence >= s.Confidence {
				continue
			}
			best[s.Offset] = s
		}
	}

	ranked := make([]SuggestedOffset, 0, len(best))
	for _, s := range best {
		ranked = append(ranked, s)
	}
	sortSuggestions(ranked)
	return ranked
}

func sortSuggestions(suggestions []SuggestedOffset) {
	slices.SortFunc(suggestions, func(a, b SuggestedOffset) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		default:
			return a.Offset - b.Offset
		}
	})
}
