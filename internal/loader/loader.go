// Package loader handles ROM file loading operations.
package loader

import (
	"fmt"

	"github.com/semmlerino/spritepal/internal/navigation"
	"github.com/semmlerino/spritepal/internal/options"
	"github.com/semmlerino/spritepal/internal/rom"
)

// Loader handles loading ROM files from disk.
type Loader struct{}

// New creates a new ROM loader.
func New() *Loader {
	return &Loader{}
}

// Load loads the ROM image of the input file.
// Returns the image and an optional Code/Data Log if specified.
func (l *Loader) Load(opts options.Program) (*rom.Image, *navigation.CodeDataLog, error) {
	img, err := rom.Load(opts.Input)
	if err != nil {
		return nil, nil, fmt.Errorf("loading ROM: %w", err)
	}
	if img.Size() == 0 {
		return nil, nil, fmt.Errorf("ROM file %s is empty", opts.Input)
	}

	if opts.CodeDataLog == "" {
		return img, nil, nil
	}
	cdl, err := navigation.LoadCodeDataLog(opts.CodeDataLog, img.Data())
	if err != nil {
		return nil, nil, fmt.Errorf("loading CDL file %s: %w", opts.CodeDataLog, err)
	}
	return img, cdl, nil
}
