package fileprocessor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
	"github.com/semmlerino/spritepal/internal/options"
)

func TestGetFilesToProcess(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.sfc", "a.sfc", "notes.txt"} {
		assert.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte{0}, 0o644))
	}

	tests := []struct {
		name    string
		opts    options.Program
		want    []string
		wantErr bool
	}{
		{
			name: "single input",
			opts: options.Program{Parameters: options.Parameters{Input: "game.sfc"}},
			want: []string{"game.sfc"},
		},
		{
			name: "batch pattern sorted",
			opts: options.Program{Parameters: options.Parameters{Batch: filepath.Join(dir, "*.sfc")}},
			want: []string{filepath.Join(dir, "a.sfc"), filepath.Join(dir, "b.sfc")},
		},
		{
			name:    "batch without matches",
			opts:    options.Program{Parameters: options.Parameters{Batch: filepath.Join(dir, "*.smc")}},
			wantErr: true,
		},
		{
			name:    "invalid pattern",
			opts:    options.Program{Parameters: options.Parameters{Batch: "[.sfc"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := GetFilesToProcess(&tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, files)
		})
	}
}

func TestGenerateOutputFilename(t *testing.T) {
	tests := []struct {
		input  string
		offset int
		want   string
	}{
		{input: "game.sfc", offset: 0x200000, want: "game_200000.png"},
		{input: "roms/Kirby Super Star.smc", offset: 0x1A, want: "roms/Kirby Super Star_00001A.png"},
		{input: "noext", offset: 0, want: "noext_000000.png"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateOutputFilename(tt.input, tt.offset))
		})
	}
}

func TestPrintBanner(t *testing.T) {
	logger := log.NewTestLogger(t)
	PrintBanner(logger, options.Program{}, "1.0.0", "abcdef1234", "2026-01-01")
	PrintBanner(logger, options.Program{Flags: options.Flags{Quiet: true}}, "1.0.0", "", "")
}
