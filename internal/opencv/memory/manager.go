// Package memory accounts for the OpenCV Mats a segmentation session allocates so
// leaks show up when the session ends.
package memory

import (
	"sort"
	"sync"
	"time"
)

type AllocationRecord struct {
	ID        uint64
	Tag       string
	Size      int64
	CreatedAt time.Time
}

type Stats struct {
	TotalAllocated int64
	TotalReleased  int64
	ActiveMats     int64
	PeakMats       int64
}

// Manager implements safe.MemoryTracker.
type Manager struct {
	allocations map[uint64]AllocationRecord
	mu          sync.Mutex
	stats       Stats
}

func NewManager() *Manager {
	return &Manager{
		allocations: make(map[uint64]AllocationRecord),
	}
}

func (m *Manager) TrackAllocation(id uint64, size int64, tag string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.allocations[id] = AllocationRecord{ID: id, Tag: tag, Size: size, CreatedAt: time.Now()}
	m.stats.TotalAllocated += size
	m.stats.ActiveMats++
	if m.stats.ActiveMats > m.stats.PeakMats {
		m.stats.PeakMats = m.stats.ActiveMats
	}
}

func (m *Manager) TrackDeallocation(id uint64, tag string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.allocations[id]
	if !ok {
		return
	}
	delete(m.allocations, id)
	m.stats.TotalReleased += record.Size
	m.stats.ActiveMats--
}

func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Outstanding returns the allocations not yet released, oldest first.
func (m *Manager) Outstanding() []AllocationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]AllocationRecord, 0, len(m.allocations))
	for _, r := range m.allocations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
