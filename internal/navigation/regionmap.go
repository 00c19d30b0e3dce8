package navigation

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync"
)

// DefaultDensityBucket is the default bucket size of density maps.
const DefaultDensityBucket = 0x10000

// Neighbour is a location found by a nearest neighbour search.
type Neighbour struct {
	Location Location
	Distance int
}

// Gap is a ROM range between two known sprites.
type Gap struct {
	Start int
	End   int
}

// Size returns the number of bytes of the gap.
func (g Gap) Size() int {
	return g.End - g.Start
}

// Statistics summarizes a region map.
type Statistics struct {
	Sprites  int
	Coverage float64 // share of the ROM covered by compressed sprite data
	Regions  map[RegionType]int
}

// RegionMap is a set of sprite locations sorted by offset. It is safe for
// concurrent use.
type RegionMap struct {
	mu        sync.RWMutex
	romSize   int
	locations []Location // sorted by offset
	version   int
}

// NewRegionMap returns an empty map for a ROM of the given size.
func NewRegionMap(romSize int) *RegionMap {
	return &RegionMap{romSize: romSize}
}

// ROMSize returns the size of the ROM the map belongs to.
func (m *RegionMap) ROMSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.romSize
}

// search returns the index of the location at offset, or the index where
// it would be inserted.
func (m *RegionMap) search(offset int) (int, bool) {
	return slices.BinarySearchFunc(m.locations, offset, func(l Location, offset int) int {
		return l.Offset - offset
	})
}

// Add adds a location. An existing location at the same offset is only
// replaced by a location with a higher confidence, its sources are kept.
// It returns whether the map changed.
func (m *RegionMap) Add(loc Location) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if loc.Region == "" {
		loc.Region = RegionUnknown
	}

	i, found := m.search(loc.Offset)
	if found {
		existing := m.locations[i]
		if existing.Confidence >= loc.Confidence {
			return false
		}
		loc.SetType(existing.Sources)
		m.locations[i] = loc
	} else {
		m.locations = slices.Insert(m.locations, i, loc)
	}
	m.version++
	return true
}

// Update applies the function to the location at offset and returns
// whether the location exists.
func (m *RegionMap) Update(offset int, fn func(loc *Location)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, found := m.search(offset)
	if !found {
		return false
	}
	fn(&m.locations[i])
	m.version++
	return true
}

// Remove removes the location at offset and returns whether it existed.
func (m *RegionMap) Remove(offset int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, found := m.search(offset)
	if !found {
		return false
	}
	m.locations = slices.Delete(m.locations, i, i+1)
	m.version++
	return true
}

// Get returns the location at offset.
func (m *RegionMap) Get(offset int) (Location, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, found := m.search(offset)
	if !found {
		return Location{}, false
	}
	return m.locations[i], true
}

// Len returns the number of locations.
func (m *RegionMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.locations)
}

// All returns a copy of all locations sorted by offset.
func (m *RegionMap) All() []Location {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.locations)
}

// InRange returns the locations with offsets in [start, end).
func (m *RegionMap) InRange(start, end int) []Location {
	m.mu.RLock()
	defer m.mu.RUnlock()

	first, _ := m.search(start)
	last, _ := m.search(end)
	return slices.Clone(m.locations[first:last])
}

// ByRegion returns the locations of the given region type.
func (m *RegionMap) ByRegion(region RegionType) []Location {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var locations []Location
	for _, loc := range m.locations {
		if loc.Region == region {
			locations = append(locations, loc)
		}
	}
	return locations
}

// Nearest returns up to count locations closest to the offset, sorted by
// distance. A maxDistance of 0 does not limit the distance.
func (m *RegionMap) Nearest(offset, count, maxDistance int) []Neighbour {
	m.mu.RLock()
	defer m.mu.RUnlock()

	within := func(distance int) bool {
		return maxDistance <= 0 || distance <= maxDistance
	}

	idx, _ := m.search(offset)
	var candidates []Neighbour
	for i := idx - 1; i >= 0 && len(candidates) < 2*count; i-- {
		distance := offset - m.locations[i].Offset
		if !within(distance) {
			break
		}
		candidates = append(candidates, Neighbour{Location: m.locations[i], Distance: distance})
	}
	for i := idx; i < len(m.locations) && len(candidates) < 4*count; i++ {
		distance := m.locations[i].Offset - offset
		if !within(distance) {
			break
		}
		candidates = append(candidates, Neighbour{Location: m.locations[i], Distance: distance})
	}

	slices.SortStableFunc(candidates, func(a, b Neighbour) int {
		if a.Distance != b.Distance {
			return a.Distance - b.Distance
		}
		return a.Location.Offset - b.Location.Offset
	})
	if len(candidates) > count {
		candidates = candidates[:count]
	}
	return candidates
}

// Gaps returns the ranges of at least minSize bytes between the end of a
// sprite and the start of the next one.
func (m *RegionMap) Gaps(minSize int) []Gap {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return gaps(m.locations, minSize)
}

func gaps(locations []Location, minSize int) []Gap {
	var result []Gap
	for i := 1; i < len(locations); i++ {
		gap := Gap{Start: locations[i-1].End(), End: locations[i].Offset}
		if gap.Size() > 0 && gap.Size() >= minSize {
			result = append(result, gap)
		}
	}
	return result
}

// Density returns the number of sprites per bucket, keyed by bucket start.
func (m *RegionMap) Density(bucketSize int) map[int]int {
	if bucketSize <= 0 {
		bucketSize = DefaultDensityBucket
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	density := map[int]int{}
	for _, loc := range m.locations {
		density[loc.Offset/bucketSize*bucketSize]++
	}
	return density
}

// Statistics returns a summary of the map.
func (m *RegionMap) Statistics() Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Statistics{
		Sprites: len(m.locations),
		Regions: map[RegionType]int{},
	}
	covered := 0
	for _, loc := range m.locations {
		covered += loc.CompressedSize
		stats.Regions[loc.Region]++
	}
	if m.romSize > 0 {
		stats.Coverage = float64(covered) / float64(m.romSize)
	}
	return stats
}

// Version returns a counter that changes with every modification.
func (m *RegionMap) Version() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// Clear removes all locations.
func (m *RegionMap) Clear() {
	m.mu.Lock()
	m.locations = nil
	m.version++
	m.mu.Unlock()
}

type regionMapFile struct {
	Version   int                `json:"version"`
	ROMSize   int                `json:"rom_size"`
	Sprites   []Location         `json:"sprites"`
	Regions   map[RegionType]int `json:"region_distribution"`
	Coverage  float64            `json:"coverage_ratio"`
	Locations int                `json:"total_sprites"`
}

// MarshalJSON encodes the map with its statistics.
func (m *RegionMap) MarshalJSON() ([]byte, error) {
	stats := m.Statistics()

	m.mu.RLock()
	file := regionMapFile{
		Version:   m.version,
		ROMSize:   m.romSize,
		Sprites:   m.locations,
		Regions:   stats.Regions,
		Coverage:  stats.Coverage,
		Locations: stats.Sprites,
	}
	data, err := json.Marshal(file)
	m.mu.RUnlock()
	return data, err
}

// UnmarshalJSON decodes a map encoded by MarshalJSON.
func (m *RegionMap) UnmarshalJSON(data []byte) error {
	var file regionMapFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}

	locations := slices.Clone(file.Sprites)
	slices.SortFunc(locations, func(a, b Location) int {
		return a.Offset - b.Offset
	})
	locations = slices.CompactFunc(locations, func(a, b Location) bool {
		return a.Offset == b.Offset
	})

	m.mu.Lock()
	m.romSize = file.ROMSize
	m.locations = locations
	m.version = file.Version
	m.mu.Unlock()
	return nil
}

// Save writes the map to a JSON file.
func (m *RegionMap) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding region map: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing region map: %w", err)
	}
	return nil
}

// LoadRegionMap reads a map written by Save.
func LoadRegionMap(path string) (*RegionMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading region map: %w", err)
	}
	m := &RegionMap{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("decoding region map: %w", err)
	}
	return m, nil
}
