// Package navigation keeps track of known sprite locations of a ROM and
// suggests offsets that likely contain further sprites.
package navigation

// SourceType defines how a sprite location was found and how it was
// accessed.
type SourceType uint8

// location sources.
const (
	UnknownSource SourceType = 0
	FromScan      SourceType = 1 << iota
	FromTrace                // reported by a DMA trace of the emulator
	FromConfig               // known sprite location of the game configuration
	FromUser
	Visited    // opened by the user
	CodeAccess // marked as executed code by a code data log
	DataAccess // marked as read data by a code data log
)

// RegionType classifies the ROM area a sprite is located in.
type RegionType string

// region types.
const (
	RegionUnknown      RegionType = "unknown"
	RegionCompressed   RegionType = "compressed"
	RegionUncompressed RegionType = "uncompressed"
	RegionHighDensity  RegionType = "high_density"
	RegionSparse       RegionType = "sparse"
	RegionPaletteData  RegionType = "palette_data"
)

// Location is a known sprite location.
type Location struct {
	Offset           int               `json:"offset"`
	CompressedSize   int               `json:"compressed_size"`
	DecompressedSize int               `json:"decompressed_size"`
	TileCount        int               `json:"tile_count"`
	Confidence       float64           `json:"confidence"`
	Region           RegionType        `json:"region_type"`
	Sources          SourceType        `json:"sources"`
	Name             string            `json:"name,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// End returns the offset after the compressed sprite data.
func (l *Location) End() int {
	return l.Offset + l.CompressedSize
}

// CompressionRatio returns the decompressed size per compressed byte.
func (l *Location) CompressionRatio() float64 {
	if l.CompressedSize == 0 {
		return 0
	}
	return float64(l.DecompressedSize) / float64(l.CompressedSize)
}

// IsType returns whether the location has the given source.
func (l *Location) IsType(typ SourceType) bool {
	return l.Sources&typ != 0
}

// SetType sets the given source of the location.
func (l *Location) SetType(typ SourceType) {
	l.Sources |= typ
}

// ClearType unsets the given source of the location.
func (l *Location) ClearType(typ SourceType) {
	mask := ^(typ)
	l.Sources &= mask
}
