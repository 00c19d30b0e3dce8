package similarity

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
)

func gradient(inverted bool) image.Image {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			v := uint8(x * 4)
			if inverted {
				v = 255 - v
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func solid(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := range 4 {
		for x := range 4 {
			img.Set(x, y, c)
		}
	}
	return img
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(log.NewTestLogger(t))
	e.Index(0x1000, gradient(false), map[string]string{"name": "walk1"})
	e.Index(0x2000, gradient(false), map[string]string{"name": "walk2"})
	e.Index(0x3000, gradient(true), nil)
	e.Index(0x8000, gradient(true), nil)
	return e
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 0, Distance(0xFF, 0xFF))
	assert.Equal(t, 2, Distance(0b1011, 0b0001))
	assert.Equal(t, 64, Distance(0, ^uint64(0)))
}

func TestColorHistogram(t *testing.T) {
	hist := ColorHistogram(solid(color.RGBA{R: 255, A: 255}))
	assert.Equal(t, 1.0/3, hist[15])
	assert.Equal(t, 1.0/3, hist[16])
	assert.Equal(t, 1.0/3, hist[32])
	assert.Equal(t, 0.0, hist[0])

	assert.True(t, hist.Intersection(hist) > 0.999)
	blue := ColorHistogram(solid(color.RGBA{B: 255, A: 255}))
	// only the empty green channel matches
	assert.True(t, hist.Intersection(blue) < 0.34)
}

func TestHashes(t *testing.T) {
	normal := Compute(gradient(false))
	inverted := Compute(gradient(true))

	assert.True(t, Similarity(normal, normal) > 0.999)
	assert.True(t, Distance(normal.Average, inverted.Average) > 56)
	assert.True(t, Distance(normal.Difference, inverted.Difference) > 40)
	assert.True(t, Similarity(normal, inverted) < 0.5)
}

func TestEngine_FindSimilar(t *testing.T) {
	e := newTestEngine(t)
	assert.Equal(t, 4, e.Len())
	assert.Equal(t, []int{0x1000, 0x2000, 0x3000, 0x8000}, e.Offsets())

	matches, err := e.FindSimilar(0x1000, DefaultThreshold, DefaultMaxResults)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(matches))
	assert.Equal(t, 0x2000, matches[0].Offset)
	assert.Equal(t, 0, matches[0].Distance)
	assert.Equal(t, "walk2", matches[0].Metadata["name"])

	_, err = e.FindSimilar(0x5000, DefaultThreshold, DefaultMaxResults)
	assert.True(t, errors.Is(err, ErrNotIndexed))

	matches = e.FindSimilarImage(gradient(false), DefaultThreshold, DefaultMaxResults)
	assert.Equal(t, 2, len(matches))
	assert.Equal(t, 0x1000, matches[0].Offset)
	assert.Equal(t, 0x2000, matches[1].Offset)

	matches = e.FindSimilarImage(gradient(false), 0, 3)
	assert.Equal(t, 3, len(matches))
	assert.True(t, matches[0].Similarity >= matches[2].Similarity)
}

func TestEngine_Groups(t *testing.T) {
	e := newTestEngine(t)
	e.Index(0x9000, solid(color.RGBA{R: 255, A: 255}), nil)

	groups := e.Groups(DefaultGroupThreshold, 2)
	assert.Equal(t, [][]int{{0x1000, 0x2000}, {0x3000, 0x8000}}, groups)

	groups = e.Groups(DefaultGroupThreshold, 1)
	assert.Equal(t, 3, len(groups))
}

func TestEngine_Animations(t *testing.T) {
	e := newTestEngine(t)
	animations := e.Animations(DefaultAnimationProximity, DefaultAnimationThreshold)
	assert.Equal(t, [][]int{{0x1000, 0x2000}, {0x3000, 0x8000}}, animations)

	animations = e.Animations(0x1000, DefaultAnimationThreshold)
	assert.Equal(t, [][]int{{0x1000, 0x2000}}, animations)
}

func TestEngine_ExportImport(t *testing.T) {
	e := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "index.json")
	assert.NoError(t, e.Export(path))

	imported := NewEngine(log.NewTestLogger(t))
	assert.NoError(t, imported.Import(path))
	assert.Equal(t, e.Offsets(), imported.Offsets())

	matches, err := imported.FindSimilar(0x1000, DefaultThreshold, DefaultMaxResults)
	assert.NoError(t, err)
	assert.Equal(t, 0x2000, matches[0].Offset)
	assert.Equal(t, "walk1", imported.hashes[0x1000].Metadata["name"])

	bad := filepath.Join(t.TempDir(), "bad.json")
	assert.NoError(t, os.WriteFile(bad, []byte(`{"version": 99, "hash_size": 8}`), 0o644))
	err = imported.Import(bad)
	assert.True(t, errors.Is(err, ErrUnsupportedVersion))
	assert.Equal(t, 4, imported.Len())
}
