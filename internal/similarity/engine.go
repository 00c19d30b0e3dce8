package similarity

import (
	"errors"
	"fmt"
	"image"
	"maps"
	"slices"
	"sync"

	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrogolib/set"
)

// Default search parameters.
const (
	DefaultThreshold          = 0.8
	DefaultMaxResults         = 10
	DefaultGroupThreshold     = 0.85
	DefaultAnimationThreshold = 0.9
	DefaultAnimationProximity = 0x10000
)

// ErrNotIndexed is returned for searches by offset of a sprite that was not
// indexed.
var ErrNotIndexed = errors.New("sprite not indexed")

// Match is a sprite found by a similarity search.
type Match struct {
	Offset     int
	Similarity float64
	Distance   int // differing bits of the average hashes
	Metadata   map[string]string
}

// Engine is an index of sprite fingerprints that supports similarity
// searches. It is safe for concurrent use.
type Engine struct {
	logger *log.Logger

	mu     sync.RWMutex
	hashes map[int]Hash
}

// NewEngine returns an empty engine.
func NewEngine(logger *log.Logger) *Engine {
	return &Engine{
		logger: logger,
		hashes: map[int]Hash{},
	}
}

// Index calculates and stores the fingerprints of the sprite image at the
// offset. An existing entry for the offset is replaced.
func (e *Engine) Index(offset int, img image.Image, metadata map[string]string) Hash {
	hash := Compute(img)
	hash.Offset = offset
	hash.Metadata = metadata

	e.mu.Lock()
	e.hashes[offset] = hash
	e.mu.Unlock()

	e.logger.Debug("Indexed sprite", log.Hex("offset", offset))
	return hash
}

// Len returns the number of indexed sprites.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.hashes)
}

// Offsets returns the indexed offsets in ascending order.
func (e *Engine) Offsets() []int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Sorted(maps.Keys(e.hashes))
}

// FindSimilar returns the indexed sprites that are similar to the sprite at
// the offset, sorted by descending similarity.
func (e *Engine) FindSimilar(offset int, threshold float64, maxResults int) ([]Match, error) {
	e.mu.RLock()
	target, ok := e.hashes[offset]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("sprite at 0x%X: %w", offset, ErrNotIndexed)
	}
	return e.search(target, true, threshold, maxResults), nil
}

// FindSimilarImage returns the indexed sprites that are similar to the
// image, sorted by descending similarity.
func (e *Engine) FindSimilarImage(img image.Image, threshold float64, maxResults int) []Match {
	return e.search(Compute(img), false, threshold, maxResults)
}

func (e *Engine) search(target Hash, indexed bool, threshold float64, maxResults int) []Match {
	e.mu.RLock()
	var matches []Match
	for offset, hash := range e.hashes {
		if indexed && offset == target.Offset {
			continue
		}

		similarity := Similarity(target, hash)
		if similarity < threshold {
			continue
		}
		matches = append(matches, Match{
			Offset:     offset,
			Similarity: similarity,
			Distance:   Distance(target.Average, hash.Average),
			Metadata:   hash.Metadata,
		})
	}
	e.mu.RUnlock()

	slices.SortFunc(matches, func(a, b Match) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		default:
			return a.Offset - b.Offset
		}
	})
	if maxResults > 0 && len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches
}

// Groups returns groups of sprites that are connected by a chain of
// similarities of at least the threshold. Groups with less than minSize
// sprites are omitted. The groups are sorted by descending size, the
// offsets within a group ascending.
func (e *Engine) Groups(threshold float64, minSize int) [][]int {
	processed := set.New[int]()
	var groups [][]int

	for _, offset := range e.Offsets() {
		if processed.Contains(offset) {
			continue
		}
		processed.Add(offset)

		group := []int{offset}
		queue := []int{offset}
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]

			matches, err := e.FindSimilar(current, threshold, 0)
			if err != nil {
				continue
			}
			for _, m := range matches {
				if processed.Contains(m.Offset) {
					continue
				}
				processed.Add(m.Offset)
				group = append(group, m.Offset)
				queue = append(queue, m.Offset)
			}
		}

		if len(group) >= minSize {
			slices.Sort(group)
			groups = append(groups, group)
		}
	}

	slices.SortStableFunc(groups, func(a, b []int) int {
		return len(b) - len(a)
	})
	e.logger.Debug("Found sprite groups", log.Int("groups", len(groups)))
	return groups
}

// Animations returns sequences of sprites that follow each other within the
// proximity and are similar to their predecessor.
func (e *Engine) Animations(proximity int, threshold float64) [][]int {
	offsets := e.Offsets()
	processed := set.New[int]()
	var animations [][]int

	for i, offset := range offsets {
		if processed.Contains(offset) {
			continue
		}

		animation := []int{offset}
		current := offset
		for _, next := range offsets[i+1:] {
			if next-current > proximity {
				break
			}
			if e.similar(current, next, threshold) {
				animation = append(animation, next)
				current = next
				processed.Add(next)
			}
		}

		if len(animation) >= 2 {
			animations = append(animations, animation)
		}
	}

	e.logger.Debug("Found animation sequences", log.Int("animations", len(animations)))
	return animations
}

func (e *Engine) similar(a, b int, threshold float64) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Similarity(e.hashes[a], e.hashes[b]) >= threshold
}
