package similarity

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
)

const indexVersion = 1

// ErrUnsupportedVersion is returned when importing an index file of an
// unknown version.
var ErrUnsupportedVersion = errors.New("unsupported similarity index version")

type indexFile struct {
	Version  int         `json:"version"`
	HashSize int         `json:"hash_size"`
	Sprites  []indexItem `json:"sprites"`
}

type indexItem struct {
	Offset     int               `json:"offset"`
	Average    uint64            `json:"average_hash"`
	Difference uint64            `json:"difference_hash"`
	Histogram  Histogram         `json:"histogram"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Export writes the index to a JSON file.
func (e *Engine) Export(path string) error {
	file := indexFile{
		Version:  indexVersion,
		HashSize: hashSize,
	}

	e.mu.RLock()
	for _, offset := range slices.Sorted(maps.Keys(e.hashes)) {
		hash := e.hashes[offset]
		file.Sprites = append(file.Sprites, indexItem{
			Offset:     offset,
			Average:    hash.Average,
			Difference: hash.Difference,
			Histogram:  hash.Histogram,
			Metadata:   hash.Metadata,
		})
	}
	e.mu.RUnlock()

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding similarity index: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing similarity index: %w", err)
	}
	return nil
}

// Import replaces the index with the content of a JSON file written by
// Export.
func (e *Engine) Import(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading similarity index: %w", err)
	}

	var file indexFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("decoding similarity index: %w", err)
	}
	if file.Version != indexVersion || file.HashSize != hashSize {
		return fmt.Errorf("%w: version %d hash size %d", ErrUnsupportedVersion, file.Version, file.HashSize)
	}

	hashes := make(map[int]Hash, len(file.Sprites))
	for _, item := range file.Sprites {
		hashes[item.Offset] = Hash{
			Offset:     item.Offset,
			Average:    item.Average,
			Difference: item.Difference,
			Histogram:  item.Histogram,
			Metadata:   item.Metadata,
		}
	}

	e.mu.Lock()
	e.hashes = hashes
	e.mu.Unlock()
	return nil
}
