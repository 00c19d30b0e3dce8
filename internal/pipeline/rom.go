package pipeline

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/retroenv/retrogolib/log"
	"github.com/semmlerino/spritepal/internal/fileprocessor"
	"github.com/semmlerino/spritepal/internal/injector"
	"github.com/semmlerino/spritepal/internal/romcache"
	"github.com/semmlerino/spritepal/internal/verification"
)

func (p *Pipeline) runInfo(s *session) error {
	p.printf("File:     %s\n", s.opts.Input)
	p.printf("Size:     %d bytes\n", s.img.Size())
	if smc := s.img.SMCOffset(); smc > 0 {
		p.printf("Copier:   %d byte header\n", smc)
	}
	p.printf("Mapping:  %s\n", s.mapper.Mode())

	if s.header == nil {
		p.printf("Header:   not found\n")
		return nil
	}

	h := s.header
	p.printf("Title:    %s\n", h.Title)
	p.printf("Header:   0x%06X\n", h.HeaderOffset)
	p.printf("FastROM:  %t\n", h.FastROM)
	p.printf("ROM size: %d KB\n", h.ROMSizeBytes()/1024)
	p.printf("Checksum: 0x%04X (complement 0x%04X, valid %t)\n", h.Checksum, h.ChecksumComplement, h.ChecksumValid())

	if name, version, ok := s.config.MatchGame(h.Title, h.Checksum); ok {
		p.printf("Game:     %s %s\n", name, version)
	}

	locations, err := s.ext.KnownSpriteLocations(s.opts.Input)
	if err != nil {
		return fmt.Errorf("reading known sprite locations: %w", err)
	}
	for _, name := range slices.Sorted(maps.Keys(locations)) {
		loc := locations[name]
		p.printf("  %-24s 0x%06X  $%02X:%04X\n", name, loc.Offset, loc.Bank, loc.Address)
	}

	if !s.cache.Enabled() {
		return nil
	}
	info := romcache.ROMInfo{
		Title:        h.Title,
		Checksum:     h.Checksum,
		Complement:   h.ChecksumComplement,
		MapMode:      h.Mode.String(),
		FastROM:      h.FastROM,
		ROMSize:      s.img.Size(),
		SMCOffset:    h.SMCOffset,
		HeaderOffset: h.HeaderOffset,
	}
	if err := s.cache.SaveROMInfo(s.opts.Input, info); err != nil {
		p.logger.Warn("Failed to cache ROM info", log.Err(err))
	}
	return nil
}

func (p *Pipeline) runExtract(s *session) error {
	offset, name, err := s.offset()
	if err != nil {
		return err
	}

	outputBase := s.opts.Output
	if outputBase == "" {
		outputBase = fileprocessor.GenerateOutputBase(s.opts.Input, offset)
	}

	info, err := s.ext.Extract(s.opts.Input, offset, outputBase, name)
	if err != nil {
		return fmt.Errorf("extracting sprite at 0x%06X: %w", offset, err)
	}

	p.printf("Extracted %d tiles from 0x%06X (%d compressed bytes)\n", info.TileCount, offset, info.CompressedSize)
	p.printf("  image:    %s\n", info.ImagePath)
	p.printf("  metadata: %s\n", info.MetadataPath)
	for _, path := range info.PaletteFiles {
		p.printf("  palette:  %s\n", path)
	}
	return nil
}

func (p *Pipeline) runInject(ctx context.Context, s *session) error {
	params := injector.Params{
		SpritePNG:    s.opts.Sprite,
		ROMIn:        s.opts.Input,
		ROMOut:       s.opts.Output,
		MetadataPath: s.opts.Metadata,
		Fast:         s.opts.Fast,
		Backup:       s.opts.Backup,
	}
	if s.opts.Offset != "" {
		offset, err := s.parseOffset(s.opts.Offset)
		if err != nil {
			return err
		}
		params.Offset = offset
	}

	backups := injector.NewBackupManager(p.logger, p.settings.BackupDir, p.settings.MaxBackups)
	stats, err := injector.New(p.logger, backups).Inject(ctx, params)
	if err != nil {
		return fmt.Errorf("injecting sprite: %w", err)
	}

	original := stats.BackupPath
	if original == "" && stats.OutputPath != s.opts.Input {
		original = s.opts.Input
	}
	if original == "" {
		p.logger.Warn("Skipping verification, no copy of the original ROM available")
	} else {
		inj := verification.Injection{
			Offset:       stats.Offset,
			Tiles:        stats.Tiles,
			OriginalSize: stats.OriginalSize,
		}
		if err := verification.VerifyInjection(p.logger, original, stats.OutputPath, inj); err != nil {
			return fmt.Errorf("verifying injection: %w", err)
		}
	}

	p.printf("Injected %d bytes at 0x%06X (%s compression)\n", stats.NewSize, stats.Offset, stats.Mode)
	p.printf("  original size: %d bytes, saved %d bytes\n", stats.OriginalSize, stats.SavedBytes)
	p.printf("  ratio:         %.1f%%\n", stats.Ratio*100)
	p.printf("  checksum:      0x%04X\n", stats.Checksum)
	p.printf("  output:        %s\n", stats.OutputPath)
	if stats.BackupPath != "" {
		p.printf("  backup:        %s\n", stats.BackupPath)
	}
	return nil
}
