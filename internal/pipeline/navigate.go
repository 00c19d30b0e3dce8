package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/retroenv/retrogolib/log"
	"github.com/semmlerino/spritepal/internal/dmatrace"
	"github.com/semmlerino/spritepal/internal/navigation"
	"github.com/semmlerino/spritepal/internal/options"
	"github.com/semmlerino/spritepal/internal/preview"
	"github.com/semmlerino/spritepal/internal/region"
	"github.com/semmlerino/spritepal/internal/scanner"
)

// maxNeighbourDistance limits the nearest known sprites listed by the
// navigate command.
const maxNeighbourDistance = 0x10000

func (p *Pipeline) runTrace(ctx context.Context, s *session) error {
	traces, err := dmatrace.Load(s.opts.TraceFile)
	if err != nil {
		return err
	}
	if len(traces) == 0 {
		p.printf("No traced offsets inside the ROM range\n")
		return nil
	}

	diagnoser := dmatrace.NewDiagnoser(p.logger, s.ext)
	report, err := diagnoser.Validate(ctx, s.img, traces)
	if err != nil {
		return err
	}
	p.printf("%d traced offsets: %d valid, %d need adjustment, %d without sprite\n",
		report.Traces, report.Valid, report.Adjusted, report.Traces-report.Valid-report.Adjusted)
	p.printf("  confidence: %d high, %d medium, %d low\n", len(report.High), len(report.Medium), len(report.Low))

	if s.opts.Debug {
		for _, trace := range traces {
			diagnosis := diagnoser.Diagnose(s.img, trace.Offset)
			p.printf("  0x%06X (%d hits): %s\n", trace.Offset, trace.Hits, diagnosis.Recommendation())
		}
	}

	suggestions, err := diagnoser.Suggest(ctx, s.img, traces)
	if err != nil {
		return err
	}

	m, err := p.regionMap(s)
	if err != nil {
		return err
	}
	for _, suggestion := range suggestions {
		result, ok := scanner.Probe(s.ext, s.img.Data(), suggestion.Offset)
		if !ok {
			continue
		}
		loc := resultLocation(result, navigation.FromTrace)
		loc.Confidence = suggestion.Confidence
		loc.Metadata = map[string]string{"trace": suggestion.Description}
		if !m.Add(loc) {
			m.Update(loc.Offset, func(existing *navigation.Location) {
				existing.SetType(navigation.FromTrace)
			})
		}
	}
	if err := p.saveRegionMap(s, m); err != nil {
		return err
	}

	p.printSuggestions(suggestions, s.opts.Count)
	return nil
}

func historyKey(romHash string) string {
	return "history_" + romHash
}

func (p *Pipeline) runNavigate(ctx context.Context, s *session) error {
	m, err := p.knownSprites(ctx, s)
	if err != nil {
		return err
	}
	nav, err := p.navigationCache(s.cache)
	if err != nil {
		return err
	}

	history := navigation.NewHistory(navigation.DefaultHistorySize)
	if nav != nil {
		var visits []navigation.Visit
		if nav.Get(historyKey(s.img.Hash()), &visits) {
			history.Restore(visits)
		}
	}

	current := 0
	if s.opts.Offset != "" || s.opts.Sprite != "" {
		if current, _, err = s.offset(); err != nil {
			return err
		}
		if err := s.img.ValidateOffset(current); err != nil {
			return err
		}
		history.Visit(current)
	} else if visits := history.Visits(); len(visits) > 0 {
		current = visits[len(visits)-1].Offset
	}
	history.MarkVisited(m)

	analysis := navigation.Analyze(m)
	p.printf("Current offset 0x%06X, %d known sprites, pattern confidence %.2f\n",
		current, m.Len(), analysis.Confidence)

	neighbours := m.Nearest(current, s.opts.Count, maxNeighbourDistance)
	for _, n := range neighbours {
		p.printf("  near 0x%06X  %+d bytes  %s\n", n.Location.Offset, n.Location.Offset-current, n.Location.Name)
	}

	detector := region.NewSpriteDetector(p.logger, region.DefaultDetectorOptions())
	detector.Detect(regionSprites(m.All()))
	if prev, ok := detector.NearestSprite(current, region.Backward); ok {
		p.printf("  previous sprite 0x%06X\n", prev)
	}
	if next, ok := detector.NearestSprite(current, region.Forward); ok {
		p.printf("  next sprite     0x%06X\n", next)
	}

	suggestions := navigation.Rank(
		navigation.Predict(current, m, analysis, s.opts.Count),
		history.Suggestions(s.opts.Count),
		navigation.ScanSuggestions(m),
	)
	p.printSuggestions(suggestions, s.opts.Count)

	if nav == nil {
		return nil
	}
	if err := nav.Put(historyKey(s.img.Hash()), history.Visits()); err != nil {
		return fmt.Errorf("saving navigation history: %w", err)
	}
	return p.saveRegionMap(s, m)
}

func (p *Pipeline) printSuggestions(suggestions []navigation.SuggestedOffset, count int) {
	for i, suggestion := range suggestions {
		if i == count {
			break
		}
		p.printf("  0x%06X  %.2f  %-13s %s%s\n", suggestion.Offset, suggestion.Confidence,
			suggestion.Reason, suggestion.SpriteName, suggestion.Description)
	}
}

func (p *Pipeline) runCache(opts options.Program) error {
	cache := p.romCache(opts)
	stats := cache.Stats()
	p.printf("Cache directory: %s\n", stats.Dir)
	if !stats.Enabled {
		p.printf("Cache is disabled\n")
		return nil
	}
	p.printf("  %d files, %d bytes\n", stats.TotalFiles, stats.TotalBytes)
	p.printf("  %d sprite locations, %d ROM infos, %d scans\n", stats.SpriteLocations, stats.ROMInfo, stats.ScanProgress)

	if !opts.Clear {
		return nil
	}

	removed := cache.Clear(0)

	nav, err := p.navigationCache(cache)
	if err != nil {
		return err
	}
	if err := nav.Clear(); err != nil {
		return fmt.Errorf("clearing navigation cache: %w", err)
	}
	indexes, err := filepath.Glob(filepath.Join(cache.Dir(), navigationDir, "similarity_*.json"))
	if err != nil {
		return fmt.Errorf("listing similarity indexes: %w", err)
	}
	for _, path := range indexes {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing similarity index: %w", err)
		}
	}

	disk, err := preview.NewDiskCache(p.logger, filepath.Join(cache.Dir(), previewDir), 0)
	if err != nil {
		return err
	}
	if err := disk.Clear(); err != nil {
		return err
	}

	p.logger.Info("Cleared caches", log.Int("rom_cache_files", removed))
	p.printf("Cleared %d ROM cache files, the navigation cache and the preview cache\n", removed)
	return nil
}
