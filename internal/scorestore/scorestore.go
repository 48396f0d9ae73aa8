// Package scorestore persists finished performances: the final aggregate
// score of each session, keyed by song, so players can see their history and
// best runs.
package scorestore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Performance is the persisted record of one completed session. Score is the
// session total accumulated over every scored segment; the accuracy, timing,
// and pitch fields are the per-segment averages.
type Performance struct {
	ID           int64     `json:"id"`
	SongID       string    `json:"songId"`
	Score        int       `json:"score"`
	Accuracy     int       `json:"accuracy"`
	Timing       int       `json:"timing"`
	Pitch        int       `json:"pitch"`
	BestStreak   int       `json:"bestStreak"`
	PerfectNotes int       `json:"perfectNotes"`
	Segments     int       `json:"segments"`
	SungAt       time.Time `json:"sungAt"`
}

// Store persists performances. Implementations must be safe for concurrent
// use.
type Store interface {
	// Save records a finished performance and fills in its assigned ID.
	Save(ctx context.Context, p *Performance) error

	// BySong returns up to limit performances for songID, best score first.
	BySong(ctx context.Context, songID string, limit int) ([]Performance, error)

	// Recent returns up to limit performances across all songs, newest first.
	Recent(ctx context.Context, limit int) ([]Performance, error)

	// Close releases the underlying storage.
	Close() error
}

// MemoryStore is an in-process [Store] for tests and database-less runs.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	perfs  []Performance
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (m *MemoryStore) Save(_ context.Context, p *Performance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.nextID
	m.nextID++
	if p.SungAt.IsZero() {
		p.SungAt = time.Now()
	}
	m.perfs = append(m.perfs, *p)
	return nil
}

func (m *MemoryStore) BySong(_ context.Context, songID string, limit int) ([]Performance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Performance
	for _, p := range m.perfs {
		if p.SongID == songID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Recent(_ context.Context, limit int) ([]Performance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Performance, len(m.perfs))
	copy(out, m.perfs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SungAt.After(out[j].SungAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
