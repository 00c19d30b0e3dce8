// Package preview generates sprite previews for ROM offsets and caches them
// in memory and on disk.
package preview

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	"time"

	"github.com/semmlerino/spritepal/internal/tile"
)

// Priority of a preview request, lower values are served first.
type Priority int

// Request priorities.
const (
	Urgent Priority = iota
	High
	Normal
	Low
)

var priorityNames = map[Priority]string{
	Urgent: "urgent",
	High:   "high",
	Normal: "normal",
	Low:    "low",
}

// String implements the fmt.Stringer interface.
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Data is the preview of the sprite at a ROM offset.
type Data struct {
	Offset         int               `json:"offset"`
	TileData       []byte            `json:"-"`
	Width          int               `json:"width"`
	Height         int               `json:"height"`
	SpriteName     string            `json:"sprite_name"`
	GeneratedAt    time.Time         `json:"generated_at"`
	ROMHash        string            `json:"rom_hash"`
	CompressedSize int               `json:"compressed_size"`
	CacheKey       string            `json:"cache_key"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// SizeBytes returns the approximate memory used by the preview: the RGBA
// image plus the raw tile data.
func (d *Data) SizeBytes() int {
	return d.Width*d.Height*4 + len(d.TileData)
}

// Image decodes the tile data into a grayscale sheet.
func (d *Data) Image() (*image.Paletted, error) {
	img, _, err := tile.DecodeSheet(d.TileData, tile.DefaultTilesPerRow)
	if err != nil {
		return nil, fmt.Errorf("decoding preview at 0x%X: %w", d.Offset, err)
	}
	return img, nil
}

// BatchData holds the previews of a range of offsets.
type BatchData struct {
	Start    int
	End      int
	Step     int
	Previews map[int]*Data
}

// Key returns the cache key of the preview of offset in the ROM file.
func Key(romPath string, offset int) string {
	sum := md5.Sum([]byte(romPath))
	return fmt.Sprintf("%s_%08x", hex.EncodeToString(sum[:])[:8], offset)
}
