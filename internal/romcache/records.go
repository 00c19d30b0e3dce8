package romcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/retroenv/retrogolib/log"
	"github.com/semmlerino/spritepal/internal/mapper"
)

// SpritePointer is a known sprite location in a ROM.
type SpritePointer struct {
	Offset         int    `json:"offset"`
	Bank           uint8  `json:"bank"`
	Address        uint16 `json:"address"`
	CompressedSize int    `json:"compressed_size,omitempty"`
	OffsetVariants []int  `json:"offset_variants,omitempty"`
}

// NewSpritePointer returns the pointer for a file offset.
func NewSpritePointer(offset int) SpritePointer {
	bank, addr := mapper.SplitOffset(offset)
	return SpritePointer{
		Offset:  offset,
		Bank:    bank,
		Address: addr,
	}
}

// ROMInfo is the cached header information of a ROM.
type ROMInfo struct {
	Title        string `json:"title"`
	Checksum     uint16 `json:"checksum"`
	Complement   uint16 `json:"checksum_complement"`
	MapMode      string `json:"map_mode"`
	FastROM      bool   `json:"fast_rom"`
	ROMSize      int    `json:"rom_size"`
	SMCOffset    int    `json:"smc_offset"`
	HeaderOffset int    `json:"header_offset"`
}

// FoundSprite is a sprite found by a ROM scan.
type FoundSprite struct {
	Offset           int     `json:"offset"`
	CompressedSize   int     `json:"compressed_size"`
	DecompressedSize int     `json:"decompressed_size"`
	TileCount        int     `json:"tile_count"`
	Alignment        string  `json:"alignment"`
	Quality          float64 `json:"quality"`
}

// ScanParams identify a scan for resuming.
type ScanParams struct {
	Start int
	End   int
	Step  int
}

// ScanRange is the scanned range stored with the progress.
type ScanRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
	Step  int `json:"step"`
}

// ScanProgress is the state of a possibly incomplete scan.
type ScanProgress struct {
	FoundSprites  []FoundSprite `json:"found_sprites"`
	CurrentOffset int           `json:"current_offset"`
	LastUpdated   time.Time     `json:"last_updated"`
	Completed     bool          `json:"completed"`
	TotalFound    int           `json:"total_found"`
	ScanRange     ScanRange     `json:"scan_range"`
}

func (p ScanParams) asMap() map[string]int {
	return map[string]int{
		"start_offset": p.Start,
		"end_offset":   p.End,
		"step":         p.Step,
	}
}

// ScanID returns the identifier of a scan: the first 16 hex characters of
// the sha256 of the parameters encoded as JSON with sorted keys.
func ScanID(params ScanParams) string {
	// encoding/json sorts map keys
	data, _ := json.Marshal(params.asMap())
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

// SaveSpriteLocations stores the known sprite locations of a ROM.
func (c *Cache) SaveSpriteLocations(romPath string, locations map[string]SpritePointer) error {
	doc, romHash, err := c.newDocument(romPath)
	if err != nil {
		return err
	}
	doc.SpriteLocations = locations
	return c.save(c.filePath(romHash, typeSpriteLocations), doc)
}

// GetSpriteLocations returns the cached sprite locations of a ROM.
func (c *Cache) GetSpriteLocations(romPath string) (map[string]SpritePointer, bool) {
	doc, ok := c.get(romPath, typeSpriteLocations)
	if !ok || doc.SpriteLocations == nil {
		return nil, false
	}
	return doc.SpriteLocations, true
}

// SaveROMInfo stores the header information of a ROM.
func (c *Cache) SaveROMInfo(romPath string, info ROMInfo) error {
	doc, romHash, err := c.newDocument(romPath)
	if err != nil {
		return err
	}
	doc.ROMInfo = &info
	return c.save(c.filePath(romHash, typeROMInfo), doc)
}

// GetROMInfo returns the cached header information of a ROM.
func (c *Cache) GetROMInfo(romPath string) (*ROMInfo, bool) {
	doc, ok := c.get(romPath, typeROMInfo)
	if !ok || doc.ROMInfo == nil {
		return nil, false
	}
	return doc.ROMInfo, true
}

// SavePartialScanResults stores the progress of a scan.
func (c *Cache) SavePartialScanResults(romPath string, params ScanParams, found []FoundSprite,
	currentOffset int, completed bool) error {

	doc, romHash, err := c.newDocument(romPath)
	if err != nil {
		return err
	}

	if found == nil {
		found = []FoundSprite{}
	}
	doc.ScanParams = params.asMap()
	doc.ScanProgress = &ScanProgress{
		FoundSprites:  found,
		CurrentOffset: currentOffset,
		LastUpdated:   time.Now(),
		Completed:     completed,
		TotalFound:    len(found),
		ScanRange: ScanRange{
			Start: params.Start,
			End:   params.End,
			Step:  params.Step,
		},
	}

	cacheFile := c.filePath(romHash, typeScanProgress+ScanID(params))
	if err := c.save(cacheFile, doc); err != nil {
		return fmt.Errorf("saving scan progress: %w", err)
	}
	return nil
}

// GetPartialScanResults returns the stored progress of a scan.
func (c *Cache) GetPartialScanResults(romPath string, params ScanParams) (*ScanProgress, bool) {
	doc, ok := c.get(romPath, typeScanProgress+ScanID(params))
	if !ok || doc.ScanProgress == nil {
		return nil, false
	}
	return doc.ScanProgress, true
}

// ClearScanProgress removes stored scan progress, either of a single ROM or
// of all ROMs if romPath is empty. It returns the number of removed files.
func (c *Cache) ClearScanProgress(romPath string) int {
	if !c.enabled {
		return 0
	}

	pattern := "*_" + typeScanProgress + "*.json"
	if romPath != "" {
		romHash, err := c.ROMHash(romPath)
		if err != nil {
			c.logger.Warn("Failed to hash ROM", log.String("path", romPath), log.Err(err))
			return 0
		}
		pattern = romHash + "_" + typeScanProgress + "*.json"
	}

	return c.removeMatching(pattern, func(_ os.FileInfo) bool { return true })
}
