package region

import (
	"slices"

	"github.com/retroenv/retrogolib/set"
)

// Change describes how a discovered sprite changed the regions.
type Change int

// Region changes.
const (
	NoChange Change = iota
	AddedToRegion
	ExpandedRegion
	CreatedRegion
)

func (c Change) String() string {
	switch c {
	case NoChange:
		return "none"
	case AddedToRegion:
		return "added"
	case ExpandedRegion:
		return "expanded"
	case CreatedRegion:
		return "created"
	default:
		return "unknown"
	}
}

// UpdateManager adds sprites that are discovered while browsing to the
// regions of a detector.
type UpdateManager struct {
	detector *SpriteDetector
	known    set.Set[int]
}

// NewUpdateManager returns a manager for the regions of the detector.
func NewUpdateManager(detector *SpriteDetector) *UpdateManager {
	known := set.New[int]()
	for _, region := range detector.regions {
		for _, s := range region.Sprites {
			known.Add(s.Offset)
		}
	}
	return &UpdateManager{
		detector: detector,
		known:    known,
	}
}

// Add adds a discovered sprite. A sprite inside a region is added to it, a
// sprite within the gap threshold of a region expands the nearest region,
// any other sprite creates a new region. Known sprites are ignored.
func (m *UpdateManager) Add(s Sprite) Change {
	if m.known.Contains(s.Offset) {
		return NoChange
	}
	m.known.Add(s.Offset)

	if region, ok := m.detector.FindRegion(s.Offset); ok {
		region.addSprite(s)
		return AddedToRegion
	}

	var nearest *Region
	distance := 0
	for _, region := range m.detector.regions {
		d := min(abs(s.Offset-region.Start), abs(s.Offset-region.End))
		if nearest == nil || d < distance {
			nearest = region
			distance = d
		}
	}

	if nearest != nil && distance < m.detector.opts.GapThreshold {
		if s.Offset < nearest.Start {
			nearest.Start = s.Offset
		} else {
			nearest.End = s.Offset + m.detector.opts.MinRegionSize
		}
		nearest.addSprite(s)
		return ExpandedRegion
	}

	region := &Region{
		Start: s.Offset,
		End:   s.Offset + m.detector.opts.MinRegionSize,
		Type:  Discovered,
	}
	region.addSprite(s)

	regions := append(m.detector.regions, region)
	slices.SortFunc(regions, func(a, b *Region) int {
		return a.Start - b.Start
	})
	renumber(regions)
	m.detector.regions = regions
	return CreatedRegion
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
