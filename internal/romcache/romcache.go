// Package romcache persists expensive per ROM results like sprite locations
// and scan progress as JSON documents keyed by the ROM content hash.
package romcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/retroenv/retrogolib/log"
)

const (
	// Version of the cache document format.
	Version = "1.0"
	// DirName is the name of the default cache directory in the home directory.
	DirName = ".spritepal_rom_cache"
	// DefaultExpirationDays is the age after which cache entries are ignored.
	DefaultExpirationDays = 30

	loadRetries = 3
	loadBackoff = 10 * time.Millisecond
)

// document types.
const (
	typeSpriteLocations = "sprite_locations"
	typeROMInfo         = "rom_info"
	typeScanProgress    = "scan_progress_"
)

// ErrDisabled is returned by operations on a disabled cache.
var ErrDisabled = errors.New("rom cache is disabled")

// Options configure a cache.
type Options struct {
	Dir            string // empty uses ~/.spritepal_rom_cache
	Disabled       bool
	ExpirationDays int // 0 uses DefaultExpirationDays
}

// Cache is a JSON file cache for ROM related data. It is safe for
// concurrent use.
type Cache struct {
	logger     *log.Logger
	dir        string
	enabled    bool
	expiration time.Duration

	mu     sync.Mutex
	hashes map[hashKey]string
}

type hashKey struct {
	path    string
	modTime int64
	size    int64
}

type document struct {
	Version         string                   `json:"version"`
	ROMPath         string                   `json:"rom_path"`
	ROMHash         string                   `json:"rom_hash"`
	CachedAt        time.Time                `json:"cached_at"`
	SpriteLocations map[string]SpritePointer `json:"sprite_locations,omitempty"`
	ROMInfo         *ROMInfo                 `json:"rom_info,omitempty"`
	ScanParams      map[string]int           `json:"scan_params,omitempty"`
	ScanProgress    *ScanProgress            `json:"scan_progress,omitempty"`
}

// New creates a cache. If the cache directory can not be created or is not
// writable, a directory in the system temp directory is tried before the
// cache gets disabled.
func New(logger *log.Logger, opts Options) *Cache {
	c := &Cache{
		logger:     logger,
		dir:        opts.Dir,
		enabled:    !opts.Disabled,
		expiration: time.Duration(DefaultExpirationDays) * 24 * time.Hour,
		hashes:     map[hashKey]string{},
	}
	if opts.ExpirationDays > 0 {
		c.expiration = time.Duration(opts.ExpirationDays) * 24 * time.Hour
	}

	if c.dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		c.dir = filepath.Join(home, DirName)
	}

	if !c.enabled {
		logger.Debug("ROM cache is disabled")
		return c
	}

	if err := prepareDir(c.dir); err != nil {
		fallback := filepath.Join(os.TempDir(), DirName)
		logger.Warn("Failed to set up cache directory, using fallback",
			log.String("dir", c.dir),
			log.String("fallback", fallback),
			log.Err(err))

		if err := prepareDir(fallback); err != nil {
			logger.Error("Failed to set up fallback cache directory", log.Err(err))
			c.enabled = false
			return c
		}
		c.dir = fallback
	}

	logger.Debug("ROM cache directory", log.String("dir", c.dir))
	return c
}

// prepareDir creates the directory and verifies that it is writable.
func prepareDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.CreateTemp(dir, ".write_test_*")
	if err != nil {
		return fmt.Errorf("testing write access: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("removing write test file: %w", err)
	}
	return nil
}

// Enabled returns whether the cache stores and returns data.
func (c *Cache) Enabled() bool {
	return c.enabled
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// ROMHash returns the sha256 hex digest of the ROM file. Hashes are
// memoised by path, modification time and size. A file that does not exist
// is hashed by its absolute path.
func (c *Cache) ROMHash(romPath string) (string, error) {
	abs, err := filepath.Abs(romPath)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			sum := sha256.Sum256([]byte("nonexistent_" + abs))
			return hex.EncodeToString(sum[:]), nil
		}
		return "", fmt.Errorf("reading file info: %w", err)
	}

	key := hashKey{path: abs, modTime: info.ModTime().UnixNano(), size: info.Size()}
	c.mu.Lock()
	hash, ok := c.hashes[key]
	c.mu.Unlock()
	if ok {
		return hash, nil
	}

	f, err := os.Open(abs)
	if err != nil {
		return "", fmt.Errorf("opening rom file: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing rom file: %w", err)
	}
	hash = hex.EncodeToString(h.Sum(nil))

	c.mu.Lock()
	c.hashes[key] = hash
	c.mu.Unlock()
	return hash, nil
}

func (c *Cache) filePath(romHash, cacheType string) string {
	return filepath.Join(c.dir, romHash+"_"+cacheType+".json")
}

// valid checks that the cache file exists, is not expired and is newer than
// the ROM file.
func (c *Cache) valid(cacheFile, romPath string) bool {
	info, err := os.Stat(cacheFile)
	if err != nil {
		return false
	}
	if time.Since(info.ModTime()) > c.expiration {
		return false
	}

	romInfo, err := os.Stat(romPath)
	if err != nil {
		return errors.Is(err, os.ErrNotExist)
	}
	return !romInfo.ModTime().After(info.ModTime())
}

// save writes the document to a temporary file in the cache directory and
// renames it to the target name.
func (c *Cache) save(cacheFile string, doc *document) error {
	if !c.enabled {
		return ErrDisabled
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(cacheFile), filepath.Base(cacheFile)+".tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpName, cacheFile)
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing cache file '%s': %w", cacheFile, err)
	}
	return nil
}

// load reads a document, retrying on missing or partially written files.
func (c *Cache) load(cacheFile string) (*document, error) {
	var lastErr error
	for attempt := range loadRetries {
		data, err := os.ReadFile(cacheFile)
		if err == nil {
			var doc document
			if err = json.Unmarshal(data, &doc); err == nil {
				return &doc, nil
			}
		}

		var syntaxErr *json.SyntaxError
		if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &syntaxErr) {
			return nil, fmt.Errorf("loading cache file '%s': %w", cacheFile, err)
		}
		lastErr = err
		if attempt < loadRetries-1 {
			time.Sleep(loadBackoff << attempt)
		}
	}
	return nil, fmt.Errorf("loading cache file '%s' after %d attempts: %w", cacheFile, loadRetries, lastErr)
}

// get loads the document of the given type if it is valid for the ROM.
func (c *Cache) get(romPath, cacheType string) (*document, bool) {
	if !c.enabled {
		return nil, false
	}

	romHash, err := c.ROMHash(romPath)
	if err != nil {
		c.logger.Warn("Failed to hash ROM", log.String("path", romPath), log.Err(err))
		return nil, false
	}

	cacheFile := c.filePath(romHash, cacheType)
	if !c.valid(cacheFile, romPath) {
		return nil, false
	}

	doc, err := c.load(cacheFile)
	if err != nil {
		c.logger.Warn("Failed to load cache file", log.Err(err))
		return nil, false
	}
	if doc.Version != Version {
		return nil, false
	}
	return doc, true
}

func (c *Cache) newDocument(romPath string) (*document, string, error) {
	if !c.enabled {
		return nil, "", ErrDisabled
	}

	romHash, err := c.ROMHash(romPath)
	if err != nil {
		return nil, "", err
	}
	abs, err := filepath.Abs(romPath)
	if err != nil {
		return nil, "", fmt.Errorf("resolving path: %w", err)
	}

	return &document{
		Version:  Version,
		ROMPath:  abs,
		ROMHash:  romHash,
		CachedAt: time.Now(),
	}, romHash, nil
}

// Stats describes the cache contents.
type Stats struct {
	Dir             string
	Enabled         bool
	DirExists       bool
	TotalFiles      int
	TotalBytes      int64
	SpriteLocations int
	ROMInfo         int
	ScanProgress    int
}

// Stats returns file counts per document type and the total size.
func (c *Cache) Stats() Stats {
	stats := Stats{Dir: c.dir, Enabled: c.enabled}
	if !c.enabled {
		return stats
	}

	files, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return stats
	}
	_, err = os.Stat(c.dir)
	stats.DirExists = err == nil

	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		stats.TotalFiles++
		stats.TotalBytes += info.Size()

		name := filepath.Base(file)
		switch {
		case strings.HasSuffix(name, "_"+typeSpriteLocations+".json"):
			stats.SpriteLocations++
		case strings.HasSuffix(name, "_"+typeROMInfo+".json"):
			stats.ROMInfo++
		case strings.Contains(name, "_"+typeScanProgress):
			stats.ScanProgress++
		}
	}
	return stats
}

// Clear removes cache files. With olderThanDays > 0 only files whose
// modification time is older are removed. It returns the number of removed
// files.
func (c *Cache) Clear(olderThanDays int) int {
	if !c.enabled {
		return 0
	}

	var cutoff time.Time
	if olderThanDays > 0 {
		cutoff = time.Now().Add(-time.Duration(olderThanDays) * 24 * time.Hour)
	}

	return c.removeMatching("*.json", func(info os.FileInfo) bool {
		return cutoff.IsZero() || info.ModTime().Before(cutoff)
	})
}

func (c *Cache) removeMatching(pattern string, filter func(os.FileInfo) bool) int {
	files, err := filepath.Glob(filepath.Join(c.dir, pattern))
	if err != nil {
		c.logger.Warn("Failed to list cache files", log.Err(err))
		return 0
	}

	removed := 0
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil || !filter(info) {
			continue
		}
		if err := os.Remove(file); err == nil {
			removed++
		}
	}
	return removed
}
