// Package fileprocessor handles file selection and output naming
package fileprocessor

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/retroenv/retrogolib/buildinfo"
	"github.com/retroenv/retrogolib/log"
	"github.com/semmlerino/spritepal/internal/options"
)

// GetFilesToProcess returns list of files to process based on options
func GetFilesToProcess(opts *options.Program) ([]string, error) {
	if opts.Batch == "" {
		return []string{opts.Input}, nil
	}

	matches, err := filepath.Glob(opts.Batch)
	if err != nil {
		return nil, fmt.Errorf("globbing batch pattern: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no files match batch pattern '%s'", opts.Batch)
	}
	slices.Sort(matches)
	return matches, nil
}

// GenerateOutputBase generates the output base name for a sprite of the
// input file, the input path without extension followed by the offset.
func GenerateOutputBase(inputFile string, offset int) string {
	ext := filepath.Ext(inputFile)
	return fmt.Sprintf("%s_%06X", strings.TrimSuffix(inputFile, ext), offset)
}

// GenerateOutputFilename generates the PNG filename for a sprite of the
// input file.
func GenerateOutputFilename(inputFile string, offset int) string {
	return GenerateOutputBase(inputFile, offset) + ".png"
}

// PrintBanner prints application version information
func PrintBanner(logger *log.Logger, opts options.Program, version, commit, date string) {
	if opts.Quiet {
		return
	}

	logger.Info("spritepal - SNES sprite editor",
		log.String("version", buildinfo.Version(version, commit, date)))
}
