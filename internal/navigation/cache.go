package navigation

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/retroenv/retrogolib/log"
)

// DefaultCacheEntries is the default maximum number of cache entries.
const DefaultCacheEntries = 5000

const (
	indexFileName  = "index.json"
	cacheExtension = ".json.gz"
	regionMapKind  = "regionmap"
)

type cacheEntry struct {
	LastAccess time.Time `json:"last_access"`
	Size       int64     `json:"size"`
}

// Cache stores navigation data as gzip compressed JSON files. An index file
// tracks the last access of every entry, the least recently used entries
// are evicted once the cache holds more than the maximum number of entries.
type Cache struct {
	logger     *log.Logger
	dir        string
	maxEntries int
	now        func() time.Time

	mu    sync.Mutex
	index map[string]cacheEntry
}

// NewCache opens the cache in the directory and creates it if needed.
func NewCache(logger *log.Logger, dir string, maxEntries int) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating navigation cache directory: %w", err)
	}

	c := &Cache{
		logger:     logger,
		dir:        dir,
		maxEntries: maxEntries,
		now:        time.Now,
		index:      map[string]cacheEntry{},
	}
	c.loadIndex()
	return c, nil
}

func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.dir, key+cacheExtension)
}

func (c *Cache) loadIndex() {
	data, err := os.ReadFile(filepath.Join(c.dir, indexFileName))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("Reading navigation cache index failed", log.Err(err))
		}
		return
	}
	if err := json.Unmarshal(data, &c.index); err != nil {
		c.logger.Warn("Navigation cache index is corrupt", log.Err(err))
		c.index = nil
	}
	if c.index == nil {
		c.index = map[string]cacheEntry{}
	}
}

func (c *Cache) saveIndex() error {
	data, err := json.MarshalIndent(c.index, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding navigation cache index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(c.dir, indexFileName), data, 0o644); err != nil {
		return fmt.Errorf("writing navigation cache index: %w", err)
	}
	return nil
}

// Len returns the number of cache entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// Put stores the JSON encoding of the value under the key.
func (c *Cache) Put(key string, value any) error {
	file, err := os.Create(c.entryPath(key))
	if err != nil {
		return fmt.Errorf("creating navigation cache entry: %w", err)
	}

	writer := gzip.NewWriter(file)
	encodeErr := json.NewEncoder(writer).Encode(value)
	closeErr := writer.Close()
	fileErr := file.Close()
	if err := errors.Join(encodeErr, closeErr, fileErr); err != nil {
		_ = os.Remove(c.entryPath(key))
		return fmt.Errorf("writing navigation cache entry %s: %w", key, err)
	}

	info, err := os.Stat(c.entryPath(key))
	if err != nil {
		return fmt.Errorf("reading navigation cache entry size: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.index[key] = cacheEntry{LastAccess: c.now(), Size: info.Size()}
	c.evict()
	return c.saveIndex()
}

// evict removes the least recently used entries above the maximum.
func (c *Cache) evict() {
	if len(c.index) <= c.maxEntries {
		return
	}

	keys := make([]string, 0, len(c.index))
	for key := range c.index {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b string) int {
		return c.index[a].LastAccess.Compare(c.index[b].LastAccess)
	})

	for _, key := range keys[:len(keys)-c.maxEntries] {
		delete(c.index, key)
		if err := os.Remove(c.entryPath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("Removing navigation cache entry failed", log.String("key", key), log.Err(err))
		}
		c.logger.Debug("Evicted navigation cache entry", log.String("key", key))
	}
}

// Get decodes the value stored under the key into value. It returns false
// if the key is not cached or the entry can not be read.
func (c *Cache) Get(key string, value any) bool {
	c.mu.Lock()
	_, ok := c.index[key]
	c.mu.Unlock()
	if !ok {
		return false
	}

	file, err := os.Open(c.entryPath(key))
	if err != nil {
		c.Remove(key)
		return false
	}
	defer func() { _ = file.Close() }()

	reader, err := gzip.NewReader(file)
	if err != nil {
		c.logger.Debug("Navigation cache entry is corrupt", log.String("key", key), log.Err(err))
		c.Remove(key)
		return false
	}
	defer func() { _ = reader.Close() }()

	if err := json.NewDecoder(reader).Decode(value); err != nil {
		c.logger.Debug("Navigation cache entry is corrupt", log.String("key", key), log.Err(err))
		c.Remove(key)
		return false
	}

	c.mu.Lock()
	if entry, ok := c.index[key]; ok {
		entry.LastAccess = c.now()
		c.index[key] = entry
	}
	c.mu.Unlock()
	return true
}

// Remove deletes the entry of the key.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.index, key)
	_ = os.Remove(c.entryPath(key))
	if err := c.saveIndex(); err != nil {
		c.logger.Warn("Saving navigation cache index failed", log.Err(err))
	}
}

// Flush writes the access times of the index to disk.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveIndex()
}

// Clear removes all entries.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for key := range c.index {
		if err := os.Remove(c.entryPath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	c.index = map[string]cacheEntry{}
	errs = append(errs, c.saveIndex())
	return errors.Join(errs...)
}

func regionMapKey(romHash string) string {
	return regionMapKind + "_" + romHash
}

// PutRegionMap stores the region map of the ROM with the given hash.
func (c *Cache) PutRegionMap(romHash string, m *RegionMap) error {
	return c.Put(regionMapKey(romHash), m)
}

// GetRegionMap returns the cached region map of the ROM with the given
// hash.
func (c *Cache) GetRegionMap(romHash string) (*RegionMap, bool) {
	m := &RegionMap{}
	if !c.Get(regionMapKey(romHash), m) {
		return nil, false
	}
	return m, true
}
