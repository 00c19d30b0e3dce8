package sprite

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/semmlerino/spritepal/internal/sprite/spritetest"
	"github.com/semmlerino/spritepal/internal/tile"
)

func TestEntropy(t *testing.T) {
	uniform := make([]byte, 256)
	for i := range uniform {
		uniform[i] = byte(i)
	}

	tests := []struct {
		name     string
		data     []byte
		expected float64
	}{
		{name: "empty", data: nil, expected: 0},
		{name: "single value", data: bytes.Repeat([]byte{7}, 100), expected: 0},
		{name: "two values", data: []byte{0, 1, 0, 1}, expected: 1},
		{name: "uniform", data: uniform, expected: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Entropy(tt.data))
		})
	}
}

func TestValidTile(t *testing.T) {
	good := spritetest.Tiles(1, 0)

	correlated := make([]byte, tile.BytesPerTile)
	for r := range tile.Size {
		correlated[r*2] = 0x10
		correlated[16+r*2] = 0x30
	}

	uncorrelated := make([]byte, tile.BytesPerTile)
	for r := range tile.Size {
		uncorrelated[r*2] = 0x0F
		uncorrelated[16+r*2] = 0xF0
	}

	tests := []struct {
		name     string
		data     []byte
		expected bool
	}{
		{name: "sprite tile", data: good, expected: true},
		{name: "blank", data: make([]byte, tile.BytesPerTile), expected: false},
		{name: "full", data: bytes.Repeat([]byte{0xFF}, tile.BytesPerTile), expected: false},
		{name: "short", data: good[:16], expected: false},
		{name: "correlated planes", data: correlated, expected: true},
		{name: "disjoint planes", data: uncorrelated, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidTile(tt.data))
		})
	}
}

func TestHasTileCharacteristics(t *testing.T) {
	assert.True(t, HasTileCharacteristics(spritetest.Tiles(1, 3)))
	assert.False(t, HasTileCharacteristics(make([]byte, tile.BytesPerTile)))

	onePlane := make([]byte, tile.BytesPerTile)
	onePlane[0] = 0x12
	assert.False(t, HasTileCharacteristics(onePlane))

	onePlane[17] = 0x34
	assert.True(t, HasTileCharacteristics(onePlane))
}

func TestValidateData(t *testing.T) {
	data := spritetest.Tiles(20, 0)
	assert.True(t, ValidateData(data))
	assert.False(t, ValidateData(data[:len(data)-1]))
	assert.False(t, ValidateData(nil))
	assert.False(t, ValidateData(make([]byte, 640)))
}

func TestHasGraphicsPatterns(t *testing.T) {
	assert.True(t, HasGraphicsPatterns(spritetest.Tiles(8, 0)))
	assert.False(t, HasGraphicsPatterns(make([]byte, 256)))
	assert.False(t, HasGraphicsPatterns(make([]byte, 32)))
}

func TestAssessQuality(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	random := make([]byte, 64*tile.BytesPerTile)
	rng.Read(random)

	tests := []struct {
		name string
		data []byte
		min  float64
		max  float64
	}{
		{name: "empty", data: nil, min: 0, max: 0},
		{name: "too large", data: make([]byte, MaxDecompressedLen+32), min: 0, max: 0},
		{name: "misaligned", data: append(spritetest.Tiles(64, 0), make([]byte, 20)...), min: 0, max: 0},
		{name: "typical sprite", data: spritetest.Tiles(64, 0), min: 1.0, max: 1.0},
		{name: "small sprite", data: spritetest.Tiles(20, 1), min: 0.85, max: 0.95},
		{name: "zero filled", data: make([]byte, 64*tile.BytesPerTile), min: 0, max: 0.15},
		{name: "random", data: random, min: 0.3, max: 0.6},
		{name: "too many tiles", data: spritetest.Tiles(LargeSpriteMax+1, 0)[:LargeSpriteMax*tile.BytesPerTile+32], min: 0, max: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := AssessQuality(tt.data)
			assert.True(t, score >= tt.min-1e-9 && score <= tt.max+1e-9, "score", score)
		})
	}
}

func TestAssessQuality_Embedded(t *testing.T) {
	data := make([]byte, 20*1024)
	copy(data[2048:], spritetest.Tiles(256, 0))

	direct := assessQuality(data, false)
	assert.True(t, direct < QualityThreshold)
	assert.True(t, AssessQuality(data) > direct)
}

func TestFindInData(t *testing.T) {
	data := make([]byte, 0x3000)
	copy(data[0x400:], spritetest.Tiles(32, 0))
	assert.Equal(t, 0x400, FindInData(data, 32*tile.BytesPerTile))

	// common offsets are out of range, the tile boundary scan finds the
	// first window where 60% of the sampled tiles are sprite data
	shifted := make([]byte, 1024+0xE0)
	copy(shifted[0xA0:], spritetest.Tiles(32, 0))
	assert.Equal(t, 0x20, FindInData(shifted, 32*tile.BytesPerTile))

	assert.Equal(t, -1, FindInData(make([]byte, 0x3000), 1024))
	assert.Equal(t, -1, FindInData(data, 0x4000))
}
