package preview

import (
	"slices"
	"sync"
	"time"
)

const metricsWindow = 1000

// Tier names the source that served a preview.
type Tier string

// Cache tiers in lookup order.
const (
	TierLast      Tier = "L1"
	TierMemory    Tier = "L2"
	TierDisk      Tier = "L3"
	TierGenerated Tier = "generated"
)

// MetricsSnapshot is a copy of the orchestrator counters.
type MetricsSnapshot struct {
	LastHits      int
	MemoryHits    int
	DiskHits      int
	Misses        int
	Errors        int
	Cancellations int
	HitRate       float64 // share of requests served from a cache tier
	AvgGeneration time.Duration
	P99Generation time.Duration
}

type metrics struct {
	mu            sync.Mutex
	hits          map[Tier]int
	misses        int
	errors        int
	cancellations int
	durations     []time.Duration // ring buffer of the last generation times
	next          int
}

func newMetrics() *metrics {
	return &metrics{
		hits:      map[Tier]int{},
		durations: make([]time.Duration, 0, metricsWindow),
	}
}

func (m *metrics) hit(tier Tier) {
	m.mu.Lock()
	m.hits[tier]++
	m.mu.Unlock()
}

func (m *metrics) miss() {
	m.mu.Lock()
	m.misses++
	m.mu.Unlock()
}

func (m *metrics) failed() {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
}

func (m *metrics) cancelled(count int) {
	m.mu.Lock()
	m.cancellations += count
	m.mu.Unlock()
}

func (m *metrics) generated(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.durations) < metricsWindow {
		m.durations = append(m.durations, d)
		return
	}
	m.durations[m.next] = d
	m.next = (m.next + 1) % metricsWindow
}

func (m *metrics) snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := MetricsSnapshot{
		LastHits:      m.hits[TierLast],
		MemoryHits:    m.hits[TierMemory],
		DiskHits:      m.hits[TierDisk],
		Misses:        m.misses,
		Errors:        m.errors,
		Cancellations: m.cancellations,
	}

	hits := s.LastHits + s.MemoryHits + s.DiskHits
	if total := hits + s.Misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}

	if len(m.durations) > 0 {
		sorted := slices.Clone(m.durations)
		slices.Sort(sorted)

		var sum time.Duration
		for _, d := range sorted {
			sum += d
		}
		s.AvgGeneration = sum / time.Duration(len(sorted))
		s.P99Generation = sorted[len(sorted)*99/100]
	}
	return s
}
