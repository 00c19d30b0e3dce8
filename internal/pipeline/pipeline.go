// Package pipeline runs the commands of the program on a ROM file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/retroenv/retrogolib/log"
	"github.com/semmlerino/spritepal/internal/config"
	"github.com/semmlerino/spritepal/internal/detector"
	"github.com/semmlerino/spritepal/internal/extractor"
	"github.com/semmlerino/spritepal/internal/loader"
	"github.com/semmlerino/spritepal/internal/mapper"
	"github.com/semmlerino/spritepal/internal/navigation"
	"github.com/semmlerino/spritepal/internal/options"
	"github.com/semmlerino/spritepal/internal/rom"
	"github.com/semmlerino/spritepal/internal/romcache"
	"github.com/semmlerino/spritepal/internal/spriteconfig"
)

// Cache subdirectories of the ROM cache directory.
const (
	navigationDir = "navigation"
	previewDir    = "previews"
)

// Pipeline runs the commands of the program.
type Pipeline struct {
	logger   *log.Logger
	settings config.Settings
	out      io.Writer
	detector *detector.Detector
	loader   *loader.Loader
}

// New creates a new pipeline that prints command results to out.
func New(logger *log.Logger, settings config.Settings, out io.Writer) *Pipeline {
	return &Pipeline{
		logger:   logger,
		settings: settings,
		out:      out,
		detector: detector.New(logger),
		loader:   loader.New(),
	}
}

// session holds the loaded state of one ROM file.
type session struct {
	opts    options.Program
	img     *rom.Image
	header  *rom.Header // nil for images without valid header
	mapper  *mapper.Mapper
	cdl     *navigation.CodeDataLog
	config  *spriteconfig.Config
	cache   *romcache.Cache
	ext     *extractor.Extractor
	sprites map[string]spriteconfig.Sprite
}

// Execute runs the command of the options.
func (p *Pipeline) Execute(ctx context.Context, opts options.Program) error {
	if opts.Command == options.Cache {
		return p.runCache(opts)
	}

	img, cdl, err := p.loader.Load(opts)
	if err != nil {
		return err
	}

	s, err := p.newSession(opts, img, cdl)
	if err != nil {
		return err
	}

	switch opts.Command {
	case options.Info:
		return p.runInfo(s)
	case options.Extract:
		return p.runExtract(s)
	case options.Scan:
		return p.runScan(ctx, s)
	case options.Find:
		return p.runFind(ctx, s)
	case options.Best:
		return p.runBest(ctx, s)
	case options.Inject:
		return p.runInject(ctx, s)
	case options.Preview:
		return p.runPreview(ctx, s)
	case options.Regions:
		return p.runRegions(ctx, s)
	case options.Similar:
		return p.runSimilar(ctx, s)
	case options.Trace:
		return p.runTrace(ctx, s)
	case options.Navigate:
		return p.runNavigate(ctx, s)
	default:
		return fmt.Errorf("unsupported command: %s", opts.Command)
	}
}

func (p *Pipeline) newSession(opts options.Program, img *rom.Image, cdl *navigation.CodeDataLog) (*session, error) {
	configPath := opts.Config
	if configPath == "" {
		configPath = p.settings.SpriteConfig
	}
	cfg, err := spriteconfig.Load(p.logger, configPath)
	if err != nil {
		return nil, err
	}

	cache := p.romCache(opts)
	s := &session{
		opts:    opts,
		img:     img,
		mapper:  p.detector.Detect(opts, img),
		cdl:     cdl,
		config:  cfg,
		cache:   cache,
		ext:     extractor.New(p.logger, cfg, cache),
		sprites: map[string]spriteconfig.Sprite{},
	}

	header, err := img.Header()
	if err == nil {
		s.header = header
		s.sprites = cfg.GameSprites(header.Title, header.Checksum)
	}
	return s, nil
}

func (p *Pipeline) romCache(opts options.Program) *romcache.Cache {
	return romcache.New(p.logger, romcache.Options{
		Dir:            p.settings.CacheDir,
		Disabled:       !p.settings.CacheEnabled || opts.NoCache,
		ExpirationDays: p.settings.ExpirationDays,
	})
}

// navigationCache opens the navigation cache of the ROM cache directory. It
// returns nil if caching is disabled.
func (p *Pipeline) navigationCache(cache *romcache.Cache) (*navigation.Cache, error) {
	if !cache.Enabled() {
		return nil, nil
	}
	nav, err := navigation.NewCache(p.logger, filepath.Join(cache.Dir(), navigationDir), p.settings.NavigationEntries)
	if err != nil {
		return nil, fmt.Errorf("opening navigation cache: %w", err)
	}
	return nav, nil
}

// offset resolves the offset option or the configured offset of the named
// sprite. Addresses in $BB:AAAA form are translated by the mapper.
func (s *session) offset() (int, string, error) {
	if s.opts.Offset != "" {
		offset, err := s.parseOffset(s.opts.Offset)
		return offset, "", err
	}

	if s.opts.Sprite != "" {
		sprite, ok := s.sprites[s.opts.Sprite]
		if !ok {
			return 0, "", fmt.Errorf("sprite '%s' is not configured for this ROM", s.opts.Sprite)
		}
		return sprite.Offset, sprite.Name, nil
	}
	return 0, "", errors.New("missing offset")
}

func (s *session) parseOffset(value string) (int, error) {
	if strings.HasPrefix(value, "$") {
		pointer, err := mapper.ParsePointer(value)
		if err != nil {
			return 0, fmt.Errorf("invalid address: %w", err)
		}
		offset, err := s.mapper.ToFileOffset(pointer)
		if err != nil {
			return 0, fmt.Errorf("translating address %s: %w", value, err)
		}
		return offset, nil
	}

	v, err := spriteconfig.ParseValue(value)
	if err != nil {
		return 0, fmt.Errorf("invalid offset: %w", err)
	}
	return int(v), nil
}

// scanRange returns the start and end options, the end defaults to the ROM
// size.
func (s *session) scanRange() (int, int, error) {
	start, end := 0, s.img.Size()
	var err error
	if s.opts.Start != "" {
		if start, err = s.parseOffset(s.opts.Start); err != nil {
			return 0, 0, err
		}
	}
	if s.opts.End != "" {
		if end, err = s.parseOffset(s.opts.End); err != nil {
			return 0, 0, err
		}
	}
	end = min(end, s.img.Size())
	if start >= end {
		return 0, 0, fmt.Errorf("scan start 0x%X is not before end 0x%X", start, end)
	}
	return start, end, nil
}

// spriteNames maps the offsets of the configured sprites to their names.
func (s *session) spriteNames() map[int]string {
	names := make(map[int]string, len(s.sprites))
	for name, sprite := range s.sprites {
		names[sprite.Offset] = name
	}
	return names
}

func (p *Pipeline) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}
