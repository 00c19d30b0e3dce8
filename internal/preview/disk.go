package preview

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/retroenv/retrogolib/log"
)

const (
	// DefaultDiskMaxAge is the age after which disk cache entries expire.
	DefaultDiskMaxAge = 24 * time.Hour

	diskExtension  = ".pvw"
	lengthFieldLen = 4
)

var (
	// ErrCorruptEntry is returned for cache files that can not be decoded.
	ErrCorruptEntry = errors.New("corrupt preview cache entry")
	// ErrStaleEntry is returned for cache entries of a different ROM.
	ErrStaleEntry = errors.New("preview cache entry belongs to a different ROM")
)

// DiskCache persists previews as one file per key. A file contains the
// little endian length of the JSON metadata, the metadata and the zlib
// compressed tile data.
type DiskCache struct {
	logger *log.Logger
	dir    string
	maxAge time.Duration
}

// NewDiskCache returns a disk cache in dir. Entries older than maxAge are
// treated as missing, 0 uses DefaultDiskMaxAge.
func NewDiskCache(logger *log.Logger, dir string, maxAge time.Duration) (*DiskCache, error) {
	if maxAge <= 0 {
		maxAge = DefaultDiskMaxAge
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating preview cache directory: %w", err)
	}
	return &DiskCache{
		logger: logger,
		dir:    dir,
		maxAge: maxAge,
	}, nil
}

func (c *DiskCache) path(key string) string {
	return filepath.Join(c.dir, key+diskExtension)
}

// Put writes the preview to its cache file.
func (c *DiskCache) Put(data *Data) error {
	encoded, err := encodeEntry(data)
	if err != nil {
		return err
	}

	path := c.path(data.CacheKey)
	tmp, err := os.CreateTemp(c.dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("creating preview cache file: %w", err)
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(encoded)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing preview cache file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("renaming preview cache file: %w", err)
	}
	return nil
}

// Get reads the preview of the key. Expired entries and entries whose ROM
// hash does not match romHash are removed and reported as missing.
func (c *DiskCache) Get(key, romHash string) (*Data, bool) {
	path := c.path(key)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if time.Since(info.ModTime()) > c.maxAge {
		c.remove(path)
		return nil, false
	}

	encoded, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	data, err := decodeEntry(encoded)
	if err == nil && romHash != "" && data.ROMHash != romHash {
		err = ErrStaleEntry
	}
	if err != nil {
		c.logger.Debug("Dropping preview cache entry", log.String("key", key), log.Err(err))
		c.remove(path)
		return nil, false
	}
	return data, true
}

// Cleanup removes all expired entries and returns the number of removed
// files.
func (c *DiskCache) Cleanup() int {
	files, err := filepath.Glob(filepath.Join(c.dir, "*"+diskExtension))
	if err != nil {
		return 0
	}

	removed := 0
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil || time.Since(info.ModTime()) <= c.maxAge {
			continue
		}
		if os.Remove(file) == nil {
			removed++
		}
	}
	return removed
}

// Clear removes all entries.
func (c *DiskCache) Clear() error {
	files, err := filepath.Glob(filepath.Join(c.dir, "*"+diskExtension))
	if err != nil {
		return fmt.Errorf("listing preview cache files: %w", err)
	}
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			return fmt.Errorf("removing preview cache file: %w", err)
		}
	}
	return nil
}

func (c *DiskCache) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("Failed to remove preview cache file", log.String("path", path), log.Err(err))
	}
}

func encodeEntry(data *Data) ([]byte, error) {
	metadata, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding preview metadata: %w", err)
	}

	var buf bytes.Buffer
	var length [lengthFieldLen]byte
	binary.LittleEndian.PutUint32(length[:], uint32(len(metadata)))
	buf.Write(length[:])
	buf.Write(metadata)

	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data.TileData); err != nil {
		return nil, fmt.Errorf("compressing tile data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compressing tile data: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeEntry(encoded []byte) (*Data, error) {
	if len(encoded) < lengthFieldLen {
		return nil, ErrCorruptEntry
	}
	length := int(binary.LittleEndian.Uint32(encoded))
	if length > len(encoded)-lengthFieldLen {
		return nil, fmt.Errorf("metadata length %d: %w", length, ErrCorruptEntry)
	}

	var data Data
	metadata := encoded[lengthFieldLen : lengthFieldLen+length]
	if err := json.Unmarshal(metadata, &data); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", errors.Join(ErrCorruptEntry, err))
	}

	r, err := zlib.NewReader(bytes.NewReader(encoded[lengthFieldLen+length:]))
	if err != nil {
		return nil, fmt.Errorf("opening tile data: %w", errors.Join(ErrCorruptEntry, err))
	}
	defer func() { _ = r.Close() }()

	data.TileData, err = io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading tile data: %w", errors.Join(ErrCorruptEntry, err))
	}
	return &data, nil
}
