package navigation

import (
	"slices"
	"sync"
	"time"

	"github.com/retroenv/retrogolib/set"
)

// DefaultHistorySize is the default number of remembered visits.
const DefaultHistorySize = 100

const (
	historyConfidence = 0.5
	historyDecay      = 0.9
)

// Visit is an offset opened by the user.
type Visit struct {
	Offset int       `json:"offset"`
	At     time.Time `json:"at"`
}

// History records the offsets visited by the user. It is safe for
// concurrent use.
type History struct {
	mu      sync.Mutex
	visits  []Visit // oldest first
	visited set.Set[int]
	size    int
	now     func() time.Time
}

// NewHistory returns a history that remembers the given number of visits.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{
		visited: set.New[int](),
		size:    size,
		now:     time.Now,
	}
}

// Visit records a visit of the offset.
func (h *History) Visit(offset int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.visits = append(h.visits, Visit{Offset: offset, At: h.now()})
	if len(h.visits) > h.size {
		h.visits = slices.Delete(h.visits, 0, len(h.visits)-h.size)
	}
	h.visited.Add(offset)
}

// Restore adds previously saved visits, oldest first.
func (h *History) Restore(visits []Visit) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, visit := range visits {
		h.visits = append(h.visits, visit)
		h.visited.Add(visit.Offset)
	}
	if len(h.visits) > h.size {
		h.visits = slices.Delete(h.visits, 0, len(h.visits)-h.size)
	}
}

// Visited returns whether the offset was ever visited.
func (h *History) Visited(offset int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.visited.Contains(offset)
}

// Visits returns the remembered visits, oldest first.
func (h *History) Visits() []Visit {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.visits)
}

// Suggestions returns up to n recently visited offsets. The most recently
// visited offset has the highest confidence.
func (h *History) Suggestions(n int) []SuggestedOffset {
	h.mu.Lock()
	defer h.mu.Unlock()

	seen := set.New[int]()
	var suggestions []SuggestedOffset
	confidence := historyConfidence
	for _, visit := range slices.Backward(h.visits) {
		if len(suggestions) == n {
			break
		}
		if seen.Contains(visit.Offset) {
			continue
		}
		seen.Add(visit.Offset)

		suggestions = append(suggestions, SuggestedOffset{
			Offset:     visit.Offset,
			Confidence: confidence,
			Reason:     ReasonUserHistory,
		})
		confidence *= historyDecay
	}
	return suggestions
}

// MarkVisited sets the visited source of all visited locations of the map.
func (h *History) MarkVisited(m *RegionMap) int {
	h.mu.Lock()
	offsets := make([]int, 0, len(h.visited))
	for offset := range h.visited {
		offsets = append(offsets, offset)
	}
	h.mu.Unlock()

	marked := 0
	for _, offset := range offsets {
		if m.Update(offset, func(loc *Location) { loc.SetType(Visited) }) {
			marked++
		}
	}
	return marked
}
