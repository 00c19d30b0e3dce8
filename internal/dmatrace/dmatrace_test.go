package dmatrace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
	"github.com/semmlerino/spritepal/internal/extractor"
	"github.com/semmlerino/spritepal/internal/navigation"
	"github.com/semmlerino/spritepal/internal/rom"
	"github.com/semmlerino/spritepal/internal/rom/romtest"
	"github.com/semmlerino/spritepal/internal/sprite/spritetest"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Trace
	}{
		{
			name:  "rom offsets",
			input: `{"rom_offsets": [4096, {"offset": "0x2000"}, {"offset": 4096, "count": 3}, -5, 8388608]}`,
			expected: []Trace{
				{Offset: 0x1000, Hits: 4},
				{Offset: 0x2000, Hits: 1},
			},
		},
		{
			name:  "unique rom offsets",
			input: `{"unique_rom_offsets": {"0x3000": 7, "4096": {"count": 2}, "bad": 1, "0x900000": 1}}`,
			expected: []Trace{
				{Offset: 0x1000, Hits: 2},
				{Offset: 0x3000, Hits: 7},
			},
		},
		{
			name:     "empty list",
			input:    `{"rom_offsets": []}`,
			expected: []Trace{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			traces, err := Parse([]byte(tt.input))
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, traces)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte(`{"offsets": [1]}`))
	assert.True(t, errors.Is(err, ErrUnknownFormat))

	_, err = Parse([]byte(`not json`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"rom_offsets": [true]}`))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.json")
	assert.NoError(t, os.WriteFile(path, []byte(`{"rom_offsets": [512, 256]}`), 0o644))

	traces, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, []int{256, 512}, Offsets(traces))

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCandidates(t *testing.T) {
	candidates := Candidates(0x10008, 0x20000, 0)

	offsets := map[int]Adjustment{}
	for _, c := range candidates {
		_, ok := offsets[c.Offset]
		assert.False(t, ok, "duplicate candidate")
		offsets[c.Offset] = c.Adjustment
	}

	assert.Equal(t, Direct, candidates[0].Adjustment)
	assert.Equal(t, 0x10008, candidates[0].Offset)
	assert.Equal(t, Aligned, offsets[0x10000])
	assert.Equal(t, Aligned, offsets[0x10010])
	assert.Equal(t, Aligned, offsets[0x10200])
	assert.Equal(t, Banking, offsets[0x08008])
	assert.Equal(t, Banking, offsets[0x18008])
	_, ok := offsets[0x20008]
	assert.False(t, ok, "offset outside of the ROM")
}

func TestCandidates_SMC(t *testing.T) {
	candidates := Candidates(0x1000, 0x80200, 512)
	assert.Equal(t, Direct, candidates[0].Adjustment)
	assert.Equal(t, SMCHeader, candidates[1].Adjustment)
	assert.Equal(t, 0x1200, candidates[1].Offset)
}

func testImage(opts romtest.Options, sprites ...spritetest.Sprite) *rom.Image {
	opts.Size = 0x80000
	data, _ := spritetest.ROM(opts, sprites...)
	return rom.FromBytes(data)
}

func newTestDiagnoser(t *testing.T) *Diagnoser {
	t.Helper()
	logger := log.NewTestLogger(t)
	return NewDiagnoser(logger, extractor.New(logger, nil, nil))
}

func TestDiagnose(t *testing.T) {
	img := testImage(romtest.Options{Title: "TRACE TEST"},
		spritetest.Sprite{Offset: 0x40000, Tiles: 64},
	)
	d := newTestDiagnoser(t)

	t.Run("direct", func(t *testing.T) {
		diagnosis := d.Diagnose(img, 0x40000)
		best, ok := diagnosis.Best()
		assert.True(t, ok)
		assert.Equal(t, Direct, best.Adjustment)
		assert.Equal(t, 64, best.Sprite.TileCount)
		assert.Equal(t, best.Sprite.Quality, best.Confidence)
		assert.Equal(t, "traced offset is correct", diagnosis.Recommendation())
	})

	t.Run("aligned", func(t *testing.T) {
		diagnosis := d.Diagnose(img, 0x3FFF8)
		best, ok := diagnosis.Best()
		assert.True(t, ok)
		assert.Equal(t, Aligned, best.Adjustment)
		assert.Equal(t, 0x40000, best.Offset)
		assert.Equal(t, best.Sprite.Quality*0.8, best.Confidence)
		assert.Equal(t, "use offset 0x040000 instead of 0x03FFF8 (aligned up to 0x10)", diagnosis.Recommendation())
	})

	t.Run("not found", func(t *testing.T) {
		diagnosis := d.Diagnose(img, 0x60000)
		_, ok := diagnosis.Best()
		assert.False(t, ok)
		assert.Empty(t, diagnosis.Findings)
	})
}

func TestDiagnose_SMC(t *testing.T) {
	img := testImage(romtest.Options{Title: "TRACE TEST", SMC: true},
		spritetest.Sprite{Offset: 0x40200, Tiles: 32},
	)
	assert.Equal(t, 512, img.SMCOffset())

	diagnosis := newTestDiagnoser(t).Diagnose(img, 0x40000)
	best, ok := diagnosis.Best()
	assert.True(t, ok)
	assert.Equal(t, SMCHeader, best.Adjustment)
	assert.Equal(t, 0x40200, best.Offset)
	assert.Equal(t, "add the copier header size to the traced offsets", diagnosis.Recommendation())
}

func TestSuggest(t *testing.T) {
	img := testImage(romtest.Options{Title: "TRACE TEST"},
		spritetest.Sprite{Offset: 0x40000, Tiles: 64},
		spritetest.Sprite{Offset: 0x44000, Tiles: 20, Seed: 1},
	)
	d := newTestDiagnoser(t)
	traces := []Trace{
		{Offset: 0x3FFF8, Hits: 1},
		{Offset: 0x40000, Hits: 5},
		{Offset: 0x44000, Hits: 2},
		{Offset: 0x60000, Hits: 1},
	}

	suggestions, err := d.Suggest(context.Background(), img, traces)
	assert.NoError(t, err)
	assert.Len(t, suggestions, 2)

	found := map[int]navigation.SuggestedOffset{}
	for _, s := range suggestions {
		assert.Equal(t, navigation.ReasonDMATrace, s.Reason)
		found[s.Offset] = s
	}
	assert.Equal(t, "DMA trace 0x040000, traced offset", found[0x40000].Description)
	assert.True(t, found[0x44000].Confidence > 0)
	assert.True(t, suggestions[0].Confidence >= suggestions[1].Confidence)

	report, err := d.Validate(context.Background(), img, traces)
	assert.NoError(t, err)
	assert.Equal(t, 4, report.Traces)
	assert.Equal(t, 2, report.Valid)
	assert.Equal(t, 1, report.Adjusted)
	assert.Equal(t, 3, len(report.High)+len(report.Medium)+len(report.Low))
}

func TestSuggest_Cancel(t *testing.T) {
	img := testImage(romtest.Options{Title: "TRACE TEST"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestDiagnoser(t).Suggest(ctx, img, []Trace{{Offset: 0x1000, Hits: 1}})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestCandidates_NoSMC(t *testing.T) {
	candidates := Candidates(0x1000, 0x80000, 0)
	assert.Equal(t, SMCHeader, candidates[1].Adjustment)
	assert.Equal(t, 0xE00, candidates[1].Offset)
}
