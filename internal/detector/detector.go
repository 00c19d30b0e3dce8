// Package detector handles ROM mapping detection.
package detector

import (
	"github.com/retroenv/retrogolib/log"
	"github.com/semmlerino/spritepal/internal/mapper"
	"github.com/semmlerino/spritepal/internal/options"
	"github.com/semmlerino/spritepal/internal/rom"
)

// Detector handles mapping mode detection from options and ROM headers.
type Detector struct {
	logger *log.Logger
}

// New creates a new mapping detector.
func New(logger *log.Logger) *Detector {
	return &Detector{
		logger: logger,
	}
}

// Detect determines the address mapper of the image. An explicitly
// specified mapping mode takes precedence, otherwise the mode of the
// internal ROM header is used. Images without a valid header fall back
// to LoROM.
func (d *Detector) Detect(opts options.Program, img *rom.Image) *mapper.Mapper {
	smc := img.SMCOffset()
	header, headerErr := img.Header()

	if opts.Map != "" {
		mode, err := mapper.ModeFromString(opts.Map)
		if err == nil {
			fastROM := headerErr == nil && header.FastROM
			return mapper.New(mode, img.Size()-smc, smc, fastROM)
		}
		d.logger.Warn("Ignoring invalid mapping mode", log.String("map", opts.Map), log.Err(err))
	}

	if headerErr != nil {
		d.logger.Warn("No valid ROM header found, assuming LoROM",
			log.String("file", opts.Input),
			log.Err(headerErr))
		return mapper.New(mapper.LoROM, img.Size()-smc, smc, false)
	}

	d.logger.Debug("Auto-detected mapping",
		log.Stringer("mode", header.Mode),
		log.String("file", opts.Input))
	return header.Mapper(img.Size())
}
