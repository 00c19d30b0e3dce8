package pipeline

import (
	"context"
	"fmt"
	"slices"

	"github.com/retroenv/retrogolib/log"
	"github.com/semmlerino/spritepal/internal/navigation"
	"github.com/semmlerino/spritepal/internal/region"
	"github.com/semmlerino/spritepal/internal/scanner"
)

// highDensity is the sprites per KB of a region above which its sprites
// are marked as high density locations.
const highDensity = 0.25

// minGapSize is the smallest gap between known sprites that is listed.
const minGapSize = 0x1000

func (s *session) scanParams() (scanner.Params, error) {
	start, end, err := s.scanRange()
	if err != nil {
		return scanner.Params{}, err
	}
	params := scanner.Params{
		Start:   start,
		End:     end,
		Step:    s.opts.Step,
		Workers: s.opts.Workers,
	}
	if err := params.Validate(); err != nil {
		return scanner.Params{}, err
	}
	return params, nil
}

func (p *Pipeline) runScan(ctx context.Context, s *session) error {
	params, err := s.scanParams()
	if err != nil {
		return err
	}

	results, err := scanner.New(p.logger, s.ext, s.cache).Scan(ctx, s.opts.Input, params)
	if err != nil {
		return fmt.Errorf("scanning ROM: %w", err)
	}
	results = slices.DeleteFunc(results, func(r scanner.Result) bool {
		return r.Quality < s.opts.MinQuality
	})

	p.printResults(results, s.spriteNames())

	m, err := p.updateRegionMap(s, results)
	if err != nil {
		return err
	}
	stats := m.Statistics()
	p.printf("%d known sprite locations, %.2f%% of the ROM covered\n", stats.Sprites, stats.Coverage*100)
	return nil
}

func (p *Pipeline) runFind(ctx context.Context, s *session) error {
	base, _, err := s.offset()
	if err != nil {
		return err
	}

	results, err := scanner.New(p.logger, s.ext, s.cache).FindBestOffsets(ctx, s.opts.Input, base, s.opts.Range)
	if err != nil {
		return fmt.Errorf("searching around 0x%06X: %w", base, err)
	}
	if len(results) == 0 {
		p.printf("No sprite found within 0x%X bytes of 0x%06X\n", s.opts.Range, base)
		return nil
	}
	p.printResults(results, s.spriteNames())
	return nil
}

func (p *Pipeline) runBest(ctx context.Context, s *session) error {
	params, err := s.scanParams()
	if err != nil {
		return err
	}

	finder := scanner.NewParallelFinder(p.logger, s.ext, 0)
	progress := func(done, total int) {
		p.logger.Debug("Scan progress", log.Int("done", done), log.Int("total", total))
	}
	results, err := finder.Find(ctx, s.img.Data(), params, progress)
	if err != nil {
		return fmt.Errorf("scanning ROM: %w", err)
	}

	slices.SortStableFunc(results, func(a, b scanner.Result) int {
		switch {
		case a.Quality > b.Quality:
			return -1
		case a.Quality < b.Quality:
			return 1
		default:
			return a.Offset - b.Offset
		}
	})
	if len(results) > s.opts.Count {
		results = results[:s.opts.Count]
	}
	p.printResults(results, s.spriteNames())
	return nil
}

func (p *Pipeline) runRegions(ctx context.Context, s *session) error {
	start, end, err := s.scanRange()
	if err != nil {
		return err
	}

	empty := region.NewEmptyDetector(region.DefaultConfig())
	nonEmpty := empty.FindNonEmpty(s.img.Data(), start, end)
	used := 0
	for _, r := range nonEmpty {
		used += r.Size()
	}
	p.printf("%d non-empty ranges, %d of %d bytes used\n", len(nonEmpty), used, end-start)

	m, err := p.knownSprites(ctx, s)
	if err != nil {
		return err
	}

	detector := region.NewSpriteDetector(p.logger, region.DefaultDetectorOptions())
	regions := detector.Detect(regionSprites(m.InRange(start, end)))
	region.ClassifyAll(regions)
	for _, r := range regions {
		p.printf("0x%06X-0x%06X  %-12s %3d sprites  %.2f/KB  quality %s (%.2f)\n",
			r.Start, r.End, r.Type, len(r.Sprites), r.Density, r.QualityCategory(), r.Confidence)
	}

	for _, gap := range m.Gaps(minGapSize) {
		if gap.End <= start || gap.Start >= end {
			continue
		}
		p.printf("gap 0x%06X-0x%06X  %d bytes\n", gap.Start, gap.End, gap.Size())
	}
	return nil
}

func (p *Pipeline) printResults(results []scanner.Result, names map[int]string) {
	for _, r := range results {
		p.printf("0x%06X  %4d tiles  %5d bytes  quality %.2f  %-6s %s\n",
			r.Offset, r.TileCount, r.CompressedSize, r.Quality, r.Alignment, names[r.Offset])
	}
	p.printf("%d sprites\n", len(results))
}

func regionSprites(locations []navigation.Location) []region.Sprite {
	sprites := make([]region.Sprite, 0, len(locations))
	for _, loc := range locations {
		sprites = append(sprites, region.Sprite{Offset: loc.Offset, Quality: loc.Confidence})
	}
	return sprites
}

// regionMap returns the cached region map of the ROM or an empty map.
func (p *Pipeline) regionMap(s *session) (*navigation.RegionMap, error) {
	nav, err := p.navigationCache(s.cache)
	if err != nil {
		return nil, err
	}
	if nav != nil {
		if m, ok := nav.GetRegionMap(s.img.Hash()); ok {
			return m, nil
		}
	}
	return navigation.NewRegionMap(s.img.Size()), nil
}

// knownSprites returns the region map of the ROM. A ROM without cached
// sprite locations is scanned first.
func (p *Pipeline) knownSprites(ctx context.Context, s *session) (*navigation.RegionMap, error) {
	m, err := p.regionMap(s)
	if err != nil || m.Len() > 0 {
		return m, err
	}

	params, err := s.scanParams()
	if err != nil {
		return nil, err
	}
	p.logger.Info("No known sprite locations, scanning ROM")
	results, err := scanner.NewParallelFinder(p.logger, s.ext, 0).Find(ctx, s.img.Data(), params, nil)
	if err != nil {
		return nil, fmt.Errorf("scanning ROM: %w", err)
	}
	return p.updateRegionMap(s, results)
}

func (p *Pipeline) saveRegionMap(s *session, m *navigation.RegionMap) error {
	nav, err := p.navigationCache(s.cache)
	if err != nil || nav == nil {
		return err
	}
	if err := nav.PutRegionMap(s.img.Hash(), m); err != nil {
		return fmt.Errorf("saving region map: %w", err)
	}
	return nil
}

// updateRegionMap adds scan results and the configured sprites of the game
// to the region map of the ROM and stores it.
func (p *Pipeline) updateRegionMap(s *session, results []scanner.Result) (*navigation.RegionMap, error) {
	m, err := p.regionMap(s)
	if err != nil {
		return nil, err
	}

	sprites := make([]region.Sprite, 0, len(results))
	for _, r := range results {
		sprites = append(sprites, region.Sprite{Offset: r.Offset, Quality: r.Quality})
	}
	detector := region.NewSpriteDetector(p.logger, region.DefaultDetectorOptions())
	detector.Detect(sprites)

	names := s.spriteNames()
	for _, r := range results {
		loc := resultLocation(r, navigation.FromScan)
		loc.Name = names[r.Offset]
		loc.Region = navigation.RegionCompressed
		if reg, ok := detector.FindRegion(r.Offset); ok {
			loc.Region = navigation.RegionSparse
			if reg.Density >= highDensity {
				loc.Region = navigation.RegionHighDensity
			}
		}
		m.Add(loc)
	}

	for name, sprite := range s.sprites {
		if s.img.ValidateOffset(sprite.Offset) != nil {
			continue
		}
		loc := navigation.Location{
			Offset:     sprite.Offset,
			Confidence: 1,
			Region:     navigation.RegionUnknown,
			Sources:    navigation.FromConfig,
			Name:       name,
		}
		if r, ok := scanner.Probe(s.ext, s.img.Data(), sprite.Offset); ok {
			loc = resultLocation(r, navigation.FromConfig)
			loc.Confidence = 1
			loc.Name = name
			loc.Region = navigation.RegionCompressed
		} else if !sprite.Compressed {
			loc.Region = navigation.RegionUncompressed
		}
		if !m.Add(loc) {
			m.Update(sprite.Offset, func(existing *navigation.Location) {
				existing.SetType(navigation.FromConfig)
				existing.Name = name
			})
		}
	}

	if s.cdl != nil {
		marked := m.ApplyCodeDataLog(s.cdl)
		p.logger.Debug("Applied code data log", log.Int("locations", marked))
	}

	if err := p.saveRegionMap(s, m); err != nil {
		return nil, err
	}
	return m, nil
}

func resultLocation(r scanner.Result, source navigation.SourceType) navigation.Location {
	return navigation.Location{
		Offset:           r.Offset,
		CompressedSize:   r.CompressedSize,
		DecompressedSize: r.DecompressedSize,
		TileCount:        r.TileCount,
		Confidence:       r.Quality,
		Sources:          source,
	}
}
