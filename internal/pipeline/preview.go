package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/retroenv/retrogolib/log"
	"github.com/semmlerino/spritepal/internal/fileprocessor"
	"github.com/semmlerino/spritepal/internal/preview"
	"github.com/semmlerino/spritepal/internal/similarity"
	"github.com/semmlerino/spritepal/internal/tile"
)

// thumbnailSize is the maximum width and height of preview images.
const thumbnailSize = 256

// newOrchestrator returns a preview orchestrator for the session ROM that
// uses the memory cache and, if the ROM cache is enabled, the disk cache.
func (p *Pipeline) newOrchestrator(s *session) *preview.Orchestrator {
	opts := preview.Options{
		Workers: p.settings.PreviewWorkers,
		Memory:  preview.NewMemoryCache(p.settings.PreviewMemoryMB * 1024 * 1024),
	}

	if s.cache.Enabled() {
		maxAge := time.Duration(p.settings.PreviewDiskHours) * time.Hour
		disk, err := preview.NewDiskCache(p.logger, filepath.Join(s.cache.Dir(), previewDir), maxAge)
		if err != nil {
			p.logger.Warn("Preview disk cache not available", log.Err(err))
		} else {
			if removed := disk.Cleanup(); removed > 0 {
				p.logger.Debug("Removed expired previews", log.Int("count", removed))
			}
			opts.Disk = disk
		}
	}

	gen := preview.NewGenerator(s.ext, s.img, s.spriteNames())
	return preview.NewOrchestrator(p.logger, gen, opts)
}

func (p *Pipeline) runPreview(ctx context.Context, s *session) error {
	orchestrator := p.newOrchestrator(s)
	defer orchestrator.Close()

	if s.opts.Offset == "" && s.opts.Sprite == "" {
		return p.warmPreviews(ctx, s, orchestrator)
	}

	offset, _, err := s.offset()
	if err != nil {
		return err
	}
	data, err := orchestrator.Get(ctx, offset, preview.Urgent)
	if err != nil {
		return fmt.Errorf("generating preview at 0x%06X: %w", offset, err)
	}
	img, err := data.Image()
	if err != nil {
		return fmt.Errorf("decoding preview: %w", err)
	}

	path := s.opts.Output
	if path == "" {
		path = fileprocessor.GenerateOutputFilename(s.opts.Input, offset)
	}
	if err := tile.WritePNG(path, tile.Thumbnail(img, thumbnailSize)); err != nil {
		return err
	}

	p.printf("Preview of 0x%06X %s: %dx%d pixels, %d compressed bytes\n",
		offset, data.SpriteName, data.Width, data.Height, data.CompressedSize)
	p.printf("  image: %s\n", path)
	return nil
}

func (p *Pipeline) warmPreviews(ctx context.Context, s *session, orchestrator *preview.Orchestrator) error {
	start, end, err := s.scanRange()
	if err != nil {
		return err
	}
	if s.opts.End == "" {
		end = min(end, start+s.opts.Count*s.opts.Step)
	}

	batch, err := orchestrator.Warm(ctx, start, end, s.opts.Step)
	if err != nil {
		return err
	}

	m := orchestrator.Metrics()
	p.printf("Warmed %d previews in 0x%06X-0x%06X\n", len(batch.Previews), batch.Start, batch.End)
	p.printf("  hits: %d last, %d memory, %d disk, %d misses, %d errors, hit rate %.1f%%\n",
		m.LastHits, m.MemoryHits, m.DiskHits, m.Misses, m.Errors, m.HitRate*100)
	p.printf("  generation: %s average, %s p99\n", m.AvgGeneration, m.P99Generation)
	return nil
}

func (p *Pipeline) similarityIndexPath(s *session) string {
	if !s.cache.Enabled() {
		return ""
	}
	return filepath.Join(s.cache.Dir(), navigationDir, "similarity_"+s.img.Hash()+".json")
}

// similarityEngine returns the similarity index of all known sprites of the
// ROM, imported from the cache if it was built before.
func (p *Pipeline) similarityEngine(ctx context.Context, s *session, orchestrator *preview.Orchestrator) (*similarity.Engine, error) {
	engine := similarity.NewEngine(p.logger)
	path := p.similarityIndexPath(s)
	if path != "" {
		err := engine.Import(path)
		switch {
		case err == nil:
			return engine, nil
		case !errors.Is(err, os.ErrNotExist):
			p.logger.Warn("Rebuilding similarity index", log.Err(err))
		}
	}

	m, err := p.knownSprites(ctx, s)
	if err != nil {
		return nil, err
	}
	for _, loc := range m.All() {
		if err := p.indexSprite(ctx, engine, orchestrator, loc.Offset, loc.Name); err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			p.logger.Debug("Skipping sprite", log.Hex("offset", loc.Offset), log.Err(err))
		}
	}

	if path != "" {
		if err := engine.Export(path); err != nil {
			p.logger.Warn("Failed to save similarity index", log.Err(err))
		}
	}
	return engine, nil
}

func (p *Pipeline) indexSprite(ctx context.Context, engine *similarity.Engine, orchestrator *preview.Orchestrator,
	offset int, name string) error {

	data, err := orchestrator.Get(ctx, offset, preview.Normal)
	if err != nil {
		return err
	}
	img, err := data.Image()
	if err != nil {
		return err
	}

	var metadata map[string]string
	if name != "" {
		metadata = map[string]string{"name": name}
	}
	engine.Index(offset, img, metadata)
	return nil
}

func (p *Pipeline) runSimilar(ctx context.Context, s *session) error {
	offset, name, err := s.offset()
	if err != nil {
		return err
	}

	orchestrator := p.newOrchestrator(s)
	defer orchestrator.Close()

	engine, err := p.similarityEngine(ctx, s, orchestrator)
	if err != nil {
		return err
	}

	matches, err := engine.FindSimilar(offset, s.opts.Threshold, s.opts.Count)
	if errors.Is(err, similarity.ErrNotIndexed) {
		if err = p.indexSprite(ctx, engine, orchestrator, offset, name); err != nil {
			return fmt.Errorf("indexing sprite at 0x%06X: %w", offset, err)
		}
		matches, err = engine.FindSimilar(offset, s.opts.Threshold, s.opts.Count)
	}
	if err != nil {
		return err
	}

	p.printf("%d sprites similar to 0x%06X\n", len(matches), offset)
	for _, match := range matches {
		p.printf("  0x%06X  %.1f%%  distance %2d  %s\n",
			match.Offset, match.Similarity*100, match.Distance, match.Metadata["name"])
	}

	for i, group := range engine.Groups(similarity.DefaultGroupThreshold, 2) {
		p.printf("group %d: %s\n", i+1, formatOffsets(group))
	}
	for i, animation := range engine.Animations(similarity.DefaultAnimationProximity, similarity.DefaultAnimationThreshold) {
		p.printf("animation %d: %s\n", i+1, formatOffsets(animation))
	}
	return nil
}

func formatOffsets(offsets []int) string {
	s := ""
	for i, offset := range offsets {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("0x%06X", offset)
	}
	return s
}
