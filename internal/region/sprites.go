package region

import (
	"fmt"
	"slices"

	"github.com/retroenv/retrogolib/log"
)

// Default values of the sprite region detection.
const (
	DefaultGapThreshold  = 0x10000
	DefaultMinRegionSize = 0x1000
	DefaultMinSprites    = 2
)

// Sprite is a found sprite with its quality score.
type Sprite struct {
	Offset  int
	Quality float64
}

// Region is a contiguous ROM area that contains sprites.
type Region struct {
	ID             int
	Start          int
	End            int
	Sprites        []Sprite
	AverageQuality float64
	Density        float64 // sprites per KB
	Type           Type
	Confidence     float64
	Name           string // optional user defined name
}

// Size returns the number of bytes of the region.
func (r *Region) Size() int {
	return r.End - r.Start
}

// Center returns the offset in the middle of the region.
func (r *Region) Center() int {
	return (r.Start + r.End) / 2
}

// Contains returns whether the offset lies within the region. The end is
// inclusive as it is padding after the last sprite.
func (r *Region) Contains(offset int) bool {
	return offset >= r.Start && offset <= r.End
}

// Description returns a human readable summary of the region.
func (r *Region) Description() string {
	if r.Name != "" {
		return fmt.Sprintf("%s (Region %d)", r.Name, r.ID+1)
	}
	return fmt.Sprintf("Region %d: 0x%06X-0x%06X (%d sprites)", r.ID+1, r.Start, r.End, len(r.Sprites))
}

// QualityCategory returns high, medium or low depending on the average
// sprite quality.
func (r *Region) QualityCategory() string {
	switch {
	case r.AverageQuality > 0.8:
		return "high"
	case r.AverageQuality > 0.5:
		return "medium"
	default:
		return "low"
	}
}

func (r *Region) addSprite(s Sprite) {
	r.Sprites = append(r.Sprites, s)
	r.update()
}

// update recalculates the derived statistics of the region.
func (r *Region) update() {
	var sum float64
	for _, s := range r.Sprites {
		sum += s.Quality
	}
	r.AverageQuality = 0
	if len(r.Sprites) > 0 {
		r.AverageQuality = sum / float64(len(r.Sprites))
	}
	r.Density = 0
	if size := r.Size(); size > 0 {
		r.Density = float64(len(r.Sprites)) / (float64(size) / 1024)
	}
}

// DetectorOptions configure a sprite region detector.
type DetectorOptions struct {
	GapThreshold  int  // maximum distance between sprites of one region
	MinRegionSize int  // minimum size of a region, also the padding after the last sprite
	MinSprites    int  // minimum number of sprites of a region
	MergeSmall    bool // merge small regions into their next neighbour
}

// DefaultDetectorOptions returns the default detection options.
func DefaultDetectorOptions() DetectorOptions {
	return DetectorOptions{
		GapThreshold:  DefaultGapThreshold,
		MinRegionSize: DefaultMinRegionSize,
		MinSprites:    DefaultMinSprites,
		MergeSmall:    true,
	}
}

// SpriteDetector groups found sprites into regions.
type SpriteDetector struct {
	logger  *log.Logger
	opts    DetectorOptions
	regions []*Region
}

// NewSpriteDetector returns a new sprite region detector.
func NewSpriteDetector(logger *log.Logger, opts DetectorOptions) *SpriteDetector {
	defaults := DefaultDetectorOptions()
	if opts.GapThreshold <= 0 {
		opts.GapThreshold = defaults.GapThreshold
	}
	if opts.MinRegionSize <= 0 {
		opts.MinRegionSize = defaults.MinRegionSize
	}
	if opts.MinSprites <= 0 {
		opts.MinSprites = defaults.MinSprites
	}
	return &SpriteDetector{
		logger: logger,
		opts:   opts,
	}
}

// Regions returns the currently detected regions sorted by start offset.
func (d *SpriteDetector) Regions() []*Region {
	return d.regions
}

// Detect groups the sprites into regions and replaces the previously
// detected regions. Sprites are part of the same region while the distance
// to the previous sprite is at most the gap threshold.
func (d *SpriteDetector) Detect(sprites []Sprite) []*Region {
	sorted := slices.Clone(sprites)
	slices.SortFunc(sorted, func(a, b Sprite) int {
		return a.Offset - b.Offset
	})

	var regions []*Region
	var group []Sprite
	flush := func() {
		if len(group) == 0 {
			return
		}
		region := d.newRegion(group)
		if d.valid(region) {
			regions = append(regions, region)
		}
		group = nil
	}

	for i, s := range sorted {
		if i > 0 && s.Offset-sorted[i-1].Offset > d.opts.GapThreshold {
			flush()
		}
		group = append(group, s)
	}
	flush()

	if d.opts.MergeSmall {
		regions = d.mergeSmall(regions)
	}
	renumber(regions)
	d.regions = regions

	d.logger.Debug("Detected sprite regions",
		log.Int("regions", len(regions)),
		log.Int("sprites", len(sprites)))
	return regions
}

func (d *SpriteDetector) newRegion(sprites []Sprite) *Region {
	region := &Region{
		Start:   sprites[0].Offset,
		End:     sprites[len(sprites)-1].Offset + d.opts.MinRegionSize,
		Sprites: sprites,
		Type:    Unknown,
	}
	region.update()
	return region
}

func (d *SpriteDetector) valid(region *Region) bool {
	return len(region.Sprites) >= d.opts.MinSprites && region.Size() >= d.opts.MinRegionSize
}

// mergeSmall merges regions smaller than twice the minimum region size with
// their next neighbour if it starts within the gap threshold.
func (d *SpriteDetector) mergeSmall(regions []*Region) []*Region {
	if len(regions) <= 1 {
		return regions
	}

	var merged []*Region
	for i := 0; i < len(regions); i++ {
		current := regions[i]
		if i+1 < len(regions) &&
			current.Size() < 2*d.opts.MinRegionSize &&
			regions[i+1].Start-current.End < d.opts.GapThreshold {

			next := regions[i+1]
			sprites := append(slices.Clone(current.Sprites), next.Sprites...)
			merged = append(merged, d.newRegion(sprites))
			i++
			continue
		}
		merged = append(merged, current)
	}
	return merged
}

// FindRegion returns the region that contains the offset.
func (d *SpriteDetector) FindRegion(offset int) (*Region, bool) {
	for _, region := range d.regions {
		if region.Contains(offset) {
			return region, true
		}
	}
	return nil, false
}

// Direction is the search direction of NearestSprite.
type Direction int

// Search directions.
const (
	Backward Direction = -1
	Forward  Direction = 1
)

// NearestSprite returns the offset of the closest sprite after the offset
// when searching forward, or before it when searching backward.
func (d *SpriteDetector) NearestSprite(offset int, dir Direction) (int, bool) {
	var offsets []int
	for _, region := range d.regions {
		for _, s := range region.Sprites {
			offsets = append(offsets, s.Offset)
		}
	}
	slices.Sort(offsets)

	if dir == Backward {
		for _, o := range slices.Backward(offsets) {
			if o < offset {
				return o, true
			}
		}
		return 0, false
	}

	for _, o := range offsets {
		if o > offset {
			return o, true
		}
	}
	return 0, false
}

func renumber(regions []*Region) {
	for i, region := range regions {
		region.ID = i
	}
}
