package spriteconfig

import (
	"path/filepath"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
)

const testConfig = `{
  "games": {
    "KIRBY SUPER STAR": {
      "checksums": {"USA": "0x8A5C", "PAL": "35000"},
      "palette_offset": "0x100000",
      "sprites": {
        "_note": "offsets are file offsets",
        "kirby_normal": {
          "offset": "0x200000",
          "description": "Kirby main sprites",
          "estimated_size": 8192,
          "palette_indices": [8, 9],
          "offset_variants": {"PAL": ["0x200100", "2097664"]}
        },
        "enemies": {"offset": 2162688, "compressed": false}
      }
    },
    "KIRBY DREAM LAND 3": {
      "checksums": {"USA": 4660},
      "sprites": {
        "kirby": {"offset": "0x300000"}
      }
    }
  }
}`

func TestMatchGame(t *testing.T) {
	logger := log.NewTestLogger(t)
	cfg, err := Parse(logger, []byte(testConfig))
	assert.NoError(t, err)

	tests := []struct {
		name     string
		title    string
		checksum uint16
		game     string
		version  string
		found    bool
	}{
		{name: "checksum hex", title: "KIRBY SUPER STAR", checksum: 0x8A5C, game: "KIRBY SUPER STAR", version: "USA", found: true},
		{name: "checksum decimal", title: "KIRBY'S FUN PAK", checksum: 35000, game: "KIRBY SUPER STAR", version: "PAL", found: true},
		{name: "checksum beats title", title: "KIRBY SUPER STAR", checksum: 0x1234, game: "KIRBY DREAM LAND 3", version: "USA", found: true},
		{name: "title only", title: "kirby dream land 3", checksum: 1, game: "KIRBY DREAM LAND 3", found: true},
		{name: "equivalent title", title: "KIRBY'S FUN PAK", checksum: 1, game: "KIRBY SUPER STAR", found: true},
		{name: "unknown", title: "SUPER METROID", checksum: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			game, version, found := cfg.MatchGame(tt.title, tt.checksum)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.game, game)
			assert.Equal(t, tt.version, version)
		})
	}
}

func TestGameSprites(t *testing.T) {
	cfg, err := Parse(log.NewTestLogger(t), []byte(testConfig))
	assert.NoError(t, err)

	sprites := cfg.GameSprites("KIRBY SUPER STAR", 35000)
	assert.Equal(t, 2, len(sprites))

	kirby := sprites["kirby_normal"]
	assert.Equal(t, 0x200000, kirby.Offset)
	assert.Equal(t, "Kirby main sprites", kirby.Description)
	assert.True(t, kirby.Compressed)
	assert.Equal(t, 8192, kirby.EstimatedSize)
	assert.Equal(t, []int{8, 9}, kirby.PaletteIndices)
	assert.Equal(t, []int{0x200100, 0x200200}, kirby.OffsetVariants)

	enemies := sprites["enemies"]
	assert.Equal(t, 0x210000, enemies.Offset)
	assert.False(t, enemies.Compressed)
	assert.Equal(t, DefaultEstimatedSize, enemies.EstimatedSize)

	usa := cfg.GameSprites("KIRBY SUPER STAR", 0x8A5C)
	assert.Equal(t, 0, len(usa["kirby_normal"].OffsetVariants))

	assert.Equal(t, 0, len(cfg.GameSprites("SUPER METROID", 1)))
}

func TestAllKnownSprites(t *testing.T) {
	cfg, err := Parse(log.NewTestLogger(t), []byte(testConfig))
	assert.NoError(t, err)

	all := cfg.AllKnownSprites()
	assert.Equal(t, 2, len(all))
	assert.Equal(t, 2, len(all["KIRBY SUPER STAR"]))
	assert.Equal(t, 0x300000, all["KIRBY DREAM LAND 3"]["kirby"].Offset)
}

func TestPaletteConfig(t *testing.T) {
	cfg, err := Parse(log.NewTestLogger(t), []byte(testConfig))
	assert.NoError(t, err)

	offset, indices, ok := cfg.PaletteConfig("KIRBY SUPER STAR", "kirby_normal")
	assert.True(t, ok)
	assert.Equal(t, 0x100000, offset)
	assert.Equal(t, []int{8, 9}, indices)

	_, _, ok = cfg.PaletteConfig("KIRBY SUPER STAR", "enemies")
	assert.False(t, ok)
	_, _, ok = cfg.PaletteConfig("KIRBY DREAM LAND 3", "kirby")
	assert.False(t, ok)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "malformed json", data: `{"games": `},
		{name: "negative offset", data: `{"games": {"A": {"sprites": {"s": {"offset": -5}}}}}`},
		{name: "bad hex", data: `{"games": {"A": {"sprites": {"s": {"offset": "0xZZ"}}}}}`},
		{name: "palette index out of range", data: `{"games": {"A": {"sprites": {"s": {"offset": 1, "palette_indices": [16]}}}}}`},
		{name: "estimated size too large", data: `{"games": {"A": {"sprites": {"s": {"offset": 1, "estimated_size": 70000}}}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(log.NewTestLogger(t), []byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestAddCustomSpriteAndSave(t *testing.T) {
	logger := log.NewTestLogger(t)
	path := filepath.Join(t.TempDir(), "sprite_locations.json")

	cfg, err := Load(logger, path)
	assert.NoError(t, err)
	assert.Equal(t, 0, len(cfg.AllKnownSprites()))

	err = cfg.AddCustomSprite("MY GAME", Sprite{Name: "hero", Offset: 0x1234, Compressed: true})
	assert.NoError(t, err)
	err = cfg.AddCustomSprite("MY GAME", Sprite{Name: "bad", Offset: 1, PaletteIndices: []int{99}})
	assert.Error(t, err)
	assert.NoError(t, cfg.Save(""))

	loaded, err := Load(logger, path)
	assert.NoError(t, err)
	sprites := loaded.GameSprites("MY GAME", 0)
	assert.Equal(t, 1, len(sprites))
	assert.Equal(t, 0x1234, sprites["hero"].Offset)
	assert.Equal(t, DefaultEstimatedSize, sprites["hero"].EstimatedSize)

	assert.Error(t, New(logger, "").Save(""))
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		input    string
		expected Value
		err      bool
	}{
		{input: "0x1F", expected: 0x1F},
		{input: "0X20", expected: 0x20},
		{input: "42", expected: 42},
		{input: " 7 ", expected: 7},
		{input: "0xG", err: true},
		{input: "abc", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := ParseValue(tt.input)
			if tt.err {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}
}
