// Package spriteconfig loads the known sprite locations of games from a JSON
// configuration file.
package spriteconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/retroenv/retrogolib/log"
)

// DefaultEstimatedSize is used for sprite entries without an estimated size.
const DefaultEstimatedSize = 8192

// Sprite is a resolved sprite location of a game.
type Sprite struct {
	Name           string
	Offset         int
	Description    string
	Compressed     bool
	EstimatedSize  int
	PaletteIndices []int
	OffsetVariants []int
}

type document struct {
	Games map[string]*game `json:"games"`
}

type game struct {
	Checksums     map[string]Value           `json:"checksums,omitempty"`
	PaletteOffset *Value                     `json:"palette_offset,omitempty"`
	Sprites       map[string]json.RawMessage `json:"sprites"`
}

type entry struct {
	Offset         Value              `json:"offset"                    validate:"gte=0,lt=16777216"`
	Description    string             `json:"description,omitempty"`
	Compressed     *bool              `json:"compressed,omitempty"`
	EstimatedSize  int                `json:"estimated_size,omitempty"  validate:"gte=0,lte=65536"`
	PaletteIndices []int              `json:"palette_indices,omitempty" validate:"dive,gte=0,lte=15"`
	OffsetVariants map[string][]Value `json:"offset_variants,omitempty"`
}

// Config holds the sprite location configuration of all known games.
type Config struct {
	logger   *log.Logger
	path     string
	validate *validator.Validate

	mu  sync.RWMutex
	doc document
}

// New returns an empty configuration that is saved to path.
func New(logger *log.Logger, path string) *Config {
	return &Config{
		logger:   logger,
		path:     path,
		validate: validator.New(),
		doc:      document{Games: map[string]*game{}},
	}
}

// Load reads the configuration file at path. A missing file results in an
// empty configuration.
func Load(logger *log.Logger, path string) (*Config, error) {
	c := New(logger, path)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("Sprite config not found", log.String("path", path))
			return c, nil
		}
		return nil, fmt.Errorf("reading sprite config: %w", err)
	}

	if err := c.parse(data); err != nil {
		return nil, fmt.Errorf("parsing sprite config '%s': %w", path, err)
	}
	logger.Debug("Loaded sprite config", log.String("path", path), log.Int("games", len(c.doc.Games)))
	return c, nil
}

// Parse creates a configuration from JSON data.
func Parse(logger *log.Logger, data []byte) (*Config, error) {
	c := New(logger, "")
	if err := c.parse(data); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) parse(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decoding json: %w", err)
	}
	if doc.Games == nil {
		doc.Games = map[string]*game{}
	}

	for name, g := range doc.Games {
		if g == nil {
			return fmt.Errorf("game '%s' has no configuration", name)
		}
		for spriteName, raw := range g.Sprites {
			if isMetadataKey(spriteName) {
				continue
			}
			if _, err := c.decodeEntry(raw); err != nil {
				return fmt.Errorf("sprite '%s' of game '%s': %w", spriteName, name, err)
			}
		}
	}

	c.doc = doc
	return nil
}

func (c *Config) decodeEntry(raw json.RawMessage) (*entry, error) {
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decoding entry: %w", err)
	}
	if err := c.validate.Struct(e); err != nil {
		return nil, fmt.Errorf("validating entry: %w", err)
	}
	return &e, nil
}

// MatchGame selects the game configuration for a ROM. A checksum match is
// preferred over a title match.
func (c *Config) MatchGame(title string, checksum uint16) (name, version string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var byTitle []string
	for _, gameName := range c.gameNames() {
		g := c.doc.Games[gameName]
		if name == "" {
			for _, v := range sortedKeys(g.Checksums) {
				if uint16(g.Checksums[v]) == checksum && int(g.Checksums[v]) <= 0xFFFF {
					name, version = gameName, v
					break
				}
			}
		}
		if titleMatches(gameName, title) {
			byTitle = append(byTitle, gameName)
		}
	}

	switch {
	case name != "":
		if !slices.Contains(byTitle, name) {
			c.logger.Warn("ROM checksum matches game but title does not",
				log.String("game", name),
				log.String("title", title),
				log.Hex("checksum", checksum))
		}
		return name, version, true

	case len(byTitle) > 0:
		c.logger.Warn("No checksum match, using title match",
			log.String("game", byTitle[0]),
			log.Hex("checksum", checksum))
		return byTitle[0], "", true

	default:
		return "", "", false
	}
}

// GameSprites returns the sprite locations for a ROM identified by its
// header title and checksum.
func (c *Config) GameSprites(title string, checksum uint16) map[string]Sprite {
	name, version, ok := c.MatchGame(title, checksum)
	if !ok {
		c.logger.Debug("No sprite configuration found for ROM",
			log.String("title", title),
			log.Hex("checksum", checksum))
		return map[string]Sprite{}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sprites(name, version)
}

// AllKnownSprites returns the sprite locations of all configured games.
func (c *Config) AllKnownSprites() map[string]map[string]Sprite {
	c.mu.RLock()
	defer c.mu.RUnlock()

	all := make(map[string]map[string]Sprite, len(c.doc.Games))
	for name := range c.doc.Games {
		all[name] = c.sprites(name, "")
	}
	return all
}

func (c *Config) sprites(gameName, version string) map[string]Sprite {
	g := c.doc.Games[gameName]
	sprites := make(map[string]Sprite, len(g.Sprites))

	for spriteName, raw := range g.Sprites {
		if isMetadataKey(spriteName) {
			continue
		}
		e, err := c.decodeEntry(raw)
		if err != nil {
			c.logger.Warn("Skipping invalid sprite entry", log.String("sprite", spriteName), log.Err(err))
			continue
		}

		s := Sprite{
			Name:           spriteName,
			Offset:         int(e.Offset),
			Description:    e.Description,
			Compressed:     e.Compressed == nil || *e.Compressed,
			EstimatedSize:  e.EstimatedSize,
			PaletteIndices: e.PaletteIndices,
		}
		if s.EstimatedSize == 0 {
			s.EstimatedSize = DefaultEstimatedSize
		}
		if version != "" {
			for _, v := range e.OffsetVariants[version] {
				s.OffsetVariants = append(s.OffsetVariants, int(v))
			}
		}
		sprites[spriteName] = s
	}
	return sprites
}

// PaletteConfig returns the palette table offset of a game and the palette
// indices used by one of its sprites.
func (c *Config) PaletteConfig(gameName, spriteName string) (offset int, indices []int, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	g, found := c.doc.Games[gameName]
	if !found || g.PaletteOffset == nil {
		return 0, nil, false
	}
	raw, found := g.Sprites[spriteName]
	if !found {
		return 0, nil, false
	}
	e, err := c.decodeEntry(raw)
	if err != nil || len(e.PaletteIndices) == 0 {
		return 0, nil, false
	}
	return int(*g.PaletteOffset), e.PaletteIndices, true
}

// AddCustomSprite adds or replaces a sprite location of a game. The change
// is kept in memory until Save is called.
func (c *Config) AddCustomSprite(gameName string, s Sprite) error {
	compressed := s.Compressed
	e := entry{
		Offset:         Value(s.Offset),
		Description:    s.Description,
		Compressed:     &compressed,
		EstimatedSize:  s.EstimatedSize,
		PaletteIndices: s.PaletteIndices,
	}
	if e.EstimatedSize == 0 {
		e.EstimatedSize = DefaultEstimatedSize
	}
	if err := c.validate.Struct(e); err != nil {
		return fmt.Errorf("validating sprite '%s': %w", s.Name, err)
	}

	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding sprite '%s': %w", s.Name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.doc.Games[gameName]
	if !ok {
		g = &game{}
		c.doc.Games[gameName] = g
	}
	if g.Sprites == nil {
		g.Sprites = map[string]json.RawMessage{}
	}
	g.Sprites[s.Name] = raw

	c.logger.Info("Added custom sprite",
		log.String("game", gameName),
		log.String("sprite", s.Name),
		log.Hex("offset", s.Offset))
	return nil
}

// Save writes the configuration to path, or to the path it was loaded from
// if path is empty.
func (c *Config) Save(path string) error {
	if path == "" {
		path = c.path
	}
	if path == "" {
		return errors.New("no output path for sprite config")
	}

	c.mu.RLock()
	data, err := json.MarshalIndent(c.doc, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encoding sprite config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing sprite config '%s': %w", path, err)
	}
	return nil
}

func (c *Config) gameNames() []string {
	return sortedKeys(c.doc.Games)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func isMetadataKey(name string) bool {
	return strings.HasPrefix(name, "_")
}

// titleEquivalents lists title fragments of regional releases that share
// sprite locations.
var titleEquivalents = [][2]string{
	{"SUPER STAR", "FUN PAK"},
	{"SUPER DELUXE", "FUN PAK"},
}

func titleMatches(gameName, title string) bool {
	gameUpper := strings.ToUpper(gameName)
	titleUpper := strings.ToUpper(title)

	if strings.Contains(titleUpper, gameUpper) {
		return true
	}
	if !strings.Contains(gameUpper, "KIRBY") || !strings.Contains(titleUpper, "KIRBY") {
		return false
	}

	for _, pair := range titleEquivalents {
		if strings.Contains(gameUpper, pair[0]) && strings.Contains(titleUpper, pair[1]) ||
			strings.Contains(gameUpper, pair[1]) && strings.Contains(titleUpper, pair[0]) {
			return true
		}
	}
	return false
}
