package region

// Type is the kind of graphics a region contains.
type Type string

// Region types.
const (
	Unknown     Type = "unknown"
	Characters  Type = "characters"
	Backgrounds Type = "backgrounds"
	Effects     Type = "effects"
	Discovered  Type = "discovered"
)

// Maximum sprite counts of character and background regions.
const (
	maxHeaderSprites = 50
	maxMainSprites   = 200
)

const highQuality = 0.7

type rule struct {
	typ        Type
	minSprites int
	maxSprites int
	minDensity float64
	maxDensity float64
	minSize    int
	maxSize    int
}

// Score weights of the classification criteria.
const (
	countWeight   = 0.3
	densityWeight = 0.3
	sizeWeight    = 0.2
	qualityWeight = 0.2
)

var rules = []rule{
	{
		typ:        Characters,
		minSprites: 4,
		maxSprites: maxHeaderSprites,
		minDensity: 0.5,
		maxDensity: 2.0,
		minSize:    0x2000,
		maxSize:    DefaultGapThreshold,
	},
	{
		typ:        Backgrounds,
		minSprites: 10,
		maxSprites: maxMainSprites,
		minDensity: 1.0,
		maxDensity: 5.0,
		minSize:    DefaultMinRegionSize * 4,
		maxSize:    0x20000,
	},
	{
		typ:        Effects,
		minSprites: 1,
		maxSprites: 20,
		minDensity: 0.1,
		maxDensity: 1.0,
		minSize:    DefaultMinRegionSize,
		maxSize:    DefaultMinRegionSize * 8,
	},
}

// Classify returns the most likely type of the region and the confidence
// of the classification. Unknown is returned if no rule matches at all.
func Classify(region *Region) (Type, float64) {
	best := Unknown
	bestScore := 0.0

	for _, r := range rules {
		score := 0.0
		if count := len(region.Sprites); count >= r.minSprites && count <= r.maxSprites {
			score += countWeight
		}
		if region.Density >= r.minDensity && region.Density <= r.maxDensity {
			score += densityWeight
		}
		if size := region.Size(); size >= r.minSize && size <= r.maxSize {
			score += sizeWeight
		}
		if region.AverageQuality > highQuality {
			score += qualityWeight
		}

		if score > bestScore {
			best = r.typ
			bestScore = score
		}
	}
	return best, bestScore
}

// ClassifyAll sets type and confidence of all regions.
func ClassifyAll(regions []*Region) {
	for _, region := range regions {
		region.Type, region.Confidence = Classify(region)
	}
}
