package model

import "sync"

// Store is the pattern/arrangement store the scheduler reads from and feeds
// recorded hits back into. Snapshots are advisory: they are consistent as of
// the call and may change between ticks.
type Store interface {
	Snapshot() *Snapshot
	AppendHit(patternID string, hit Hit, maxHits int) bool
}

// MemoryStore is a Store holding one snapshot in memory. Readers get the
// current snapshot pointer; writers replace it, so a snapshot handed out is
// never mutated afterwards.
type MemoryStore struct {
	mu   sync.RWMutex
	snap *Snapshot
}

func NewMemoryStore(snap *Snapshot) *MemoryStore {
	if snap == nil {
		snap = &Snapshot{Tempo: 120}
	}
	return &MemoryStore{snap: snap}
}

func (m *MemoryStore) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// Replace swaps in a new snapshot.
func (m *MemoryStore) Replace(snap *Snapshot) {
	m.mu.Lock()
	m.snap = snap
	m.mu.Unlock()
}

// AppendHit appends hit to the pattern and evicts the oldest hits beyond
// maxHits (0 = unbounded). It reports false if the pattern does not exist.
func (m *MemoryStore) AppendHit(patternID string, hit Hit, maxHits int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.snap.Clone()
	p, ok := next.Pattern(patternID)
	if !ok {
		return false
	}
	p.Hits = append(p.Hits, hit)
	if maxHits > 0 && len(p.Hits) > maxHits {
		p.Hits = append([]Hit(nil), p.Hits[len(p.Hits)-maxHits:]...)
	}
	m.snap = next
	return true
}
