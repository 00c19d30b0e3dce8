package extractor

import (
	"encoding/json"
	"fmt"
	"image/color"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/retroenv/retrogolib/log"
	"github.com/semmlerino/spritepal/internal/rom"
	"github.com/semmlerino/spritepal/internal/romcache"
	"github.com/semmlerino/spritepal/internal/tile"
)

// Info describes an extraction. It is written as metadata file next to the
// extracted image.
type Info struct {
	SourceType      string `json:"source_type"`
	ROMSource       string `json:"rom_source"`
	ROMOffset       string `json:"rom_offset"`
	SpriteName      string `json:"sprite_name"`
	CompressedSize  int    `json:"compressed_size"`
	TileCount       int    `json:"tile_count"`
	ExtractionSize  int    `json:"extraction_size"`
	ROMTitle        string `json:"rom_title"`
	ROMChecksum     string `json:"rom_checksum"`
	ROMPalettesUsed bool   `json:"rom_palettes_used"`
	PaletteCount    int    `json:"palette_count"`

	ImagePath    string   `json:"-"`
	MetadataPath string   `json:"-"`
	PaletteFiles []string `json:"-"`
}

type metadataFile struct {
	Extraction Info `json:"extraction"`
}

// paletteFile is the JSON layout of an extracted palette.
type paletteFile struct {
	FormatVersion string        `json:"format_version"`
	Source        paletteSource `json:"source"`
	Palette       paletteData   `json:"palette"`
}

type paletteSource struct {
	Type   string `json:"type"`
	ROM    string `json:"rom"`
	Offset string `json:"offset"`
	Index  int    `json:"index"`
}

type paletteData struct {
	Name       string   `json:"name"`
	Colors     [][3]int `json:"colors"`
	ColorCount int      `json:"color_count"`
}

const paletteFormatVersion = "1.0"

// Extract decompresses the sprite at offset of the ROM file and writes
// <outputBase>.png, <outputBase>.metadata.json and, if the game
// configuration defines ROM palettes for the sprite,
// <outputBase>_pal<N>.pal.json files.
func (e *Extractor) Extract(romPath string, offset int, outputBase, spriteName string) (*Info, error) {
	img, err := rom.Load(romPath)
	if err != nil {
		return nil, err
	}
	if err := img.ValidateOffset(offset); err != nil {
		return nil, err
	}

	header, err := img.Header()
	if err != nil {
		return nil, fmt.Errorf("reading ROM header: %w", err)
	}

	expectedSize := 0
	gameName, _, gameFound := e.config.MatchGame(header.Title, header.Checksum)
	if spriteName != "" {
		if s, ok := e.config.GameSprites(header.Title, header.Checksum)[spriteName]; ok {
			expectedSize = s.EstimatedSize
		}
	}

	result, err := e.FindCompressedSprite(img.Data(), offset, expectedSize)
	if err != nil {
		return nil, err
	}

	sheet, _, err := tile.DecodeSheet(result.Data, tile.DefaultTilesPerRow)
	if err != nil {
		return nil, fmt.Errorf("decoding tiles: %w", err)
	}

	if dir := filepath.Dir(outputBase); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}

	info := &Info{
		SourceType:     "rom",
		ROMSource:      filepath.Base(romPath),
		ROMOffset:      fmt.Sprintf("0x%X", offset),
		SpriteName:     spriteName,
		CompressedSize: result.CompressedSize,
		TileCount:      result.TileCount(),
		ExtractionSize: len(result.Data),
		ROMTitle:       header.Title,
		ROMChecksum:    fmt.Sprintf("0x%04X", header.Checksum),
		ImagePath:      outputBase + ".png",
		MetadataPath:   outputBase + ".metadata.json",
	}

	if err := tile.WritePNG(info.ImagePath, sheet); err != nil {
		return nil, err
	}

	if gameFound && spriteName != "" {
		if err := e.extractPalettes(img, gameName, spriteName, outputBase, info); err != nil {
			e.logger.Warn("Failed to extract ROM palettes", log.String("sprite", spriteName), log.Err(err))
		}
	}

	if err := writeJSON(info.MetadataPath, metadataFile{Extraction: *info}); err != nil {
		return nil, err
	}

	e.logger.Info("Extracted sprite",
		log.Hex("offset", offset),
		log.String("output", info.ImagePath),
		log.Int("tiles", info.TileCount),
		log.Int("compressed_size", info.CompressedSize),
		log.Int("palettes", info.PaletteCount))
	return info, nil
}

func (e *Extractor) extractPalettes(img *rom.Image, gameName, spriteName, outputBase string, info *Info) error {
	paletteOffset, indices, ok := e.config.PaletteConfig(gameName, spriteName)
	if !ok {
		return nil
	}

	palettes, err := tile.ReadPalettes(img.Data(), paletteOffset, indices)
	if err != nil {
		return err
	}

	for _, index := range slices.Sorted(maps.Keys(palettes)) {
		path := fmt.Sprintf("%s_pal%d.pal.json", outputBase, index)
		doc := paletteFile{
			FormatVersion: paletteFormatVersion,
			Source: paletteSource{
				Type:   "rom",
				ROM:    info.ROMSource,
				Offset: fmt.Sprintf("0x%X", paletteOffset+index*tile.PaletteSize),
				Index:  index,
			},
			Palette: paletteData{
				Name:       fmt.Sprintf("%s palette %d", spriteName, index),
				Colors:     paletteColors(palettes[index]),
				ColorCount: len(palettes[index]),
			},
		}
		if err := writeJSON(path, doc); err != nil {
			return err
		}
		info.PaletteFiles = append(info.PaletteFiles, path)
	}

	info.ROMPalettesUsed = len(info.PaletteFiles) > 0
	info.PaletteCount = len(info.PaletteFiles)
	return nil
}

// ReadMetadata reads a metadata file written by Extract.
func ReadMetadata(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading metadata file: %w", err)
	}
	var doc metadataFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding metadata file '%s': %w", path, err)
	}
	doc.Extraction.MetadataPath = path
	return &doc.Extraction, nil
}

// ReadPaletteFile reads a palette file written by Extract.
func ReadPaletteFile(path string) (color.Palette, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading palette file: %w", err)
	}
	var doc paletteFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding palette file '%s': %w", path, err)
	}

	palette := make(color.Palette, 0, len(doc.Palette.Colors))
	for i, c := range doc.Palette.Colors {
		alpha := uint8(0xFF)
		if i == 0 {
			alpha = 0
		}
		palette = append(palette, color.RGBA{R: uint8(c[0]), G: uint8(c[1]), B: uint8(c[2]), A: alpha})
	}
	return palette, nil
}

// KnownSpriteLocations returns the configured sprite locations for the game
// in the ROM file. Results are cached per ROM.
func (e *Extractor) KnownSpriteLocations(romPath string) (map[string]romcache.SpritePointer, error) {
	if e.cache != nil {
		if locations, ok := e.cache.GetSpriteLocations(romPath); ok {
			e.logger.Debug("Using cached sprite locations", log.Int("count", len(locations)))
			return locations, nil
		}
	}

	img, err := rom.Load(romPath)
	if err != nil {
		return nil, err
	}
	header, err := img.Header()
	if err != nil {
		return nil, fmt.Errorf("reading ROM header: %w", err)
	}

	sprites := e.config.GameSprites(header.Title, header.Checksum)
	locations := make(map[string]romcache.SpritePointer, len(sprites))
	for name, s := range sprites {
		pointer := romcache.NewSpritePointer(s.Offset)
		pointer.OffsetVariants = s.OffsetVariants
		locations[name] = pointer
	}

	if e.cache != nil && e.cache.Enabled() {
		if err := e.cache.SaveSpriteLocations(romPath, locations); err != nil {
			e.logger.Warn("Failed to cache sprite locations", log.Err(err))
		}
	}
	return locations, nil
}

func paletteColors(palette color.Palette) [][3]int {
	colors := make([][3]int, 0, len(palette))
	for _, c := range palette {
		rgba := color.RGBAModel.Convert(c).(color.RGBA)
		colors = append(colors, [3]int{int(rgba.R), int(rgba.G), int(rgba.B)})
	}
	return colors
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
