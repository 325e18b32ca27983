package archive

import (
	"context"
	"sync"

	"voicedesk/agent/internal/session"
)

// Memory keeps the most recent snapshots in process. It is used when no
// Redis address is configured.
type Memory struct {
	mu    sync.RWMutex
	snaps map[string]session.Snapshot
	order []string
	max   int
}

func NewMemory(max int) *Memory {
	if max <= 0 {
		max = 200
	}
	return &Memory{snaps: make(map[string]session.Snapshot), max: max}
}

func (m *Memory) Save(ctx context.Context, snap session.Snapshot) error {
	if snap.ID == "" {
		return ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snaps[snap.ID]; !ok {
		m.order = append(m.order, snap.ID)
	}
	m.snaps[snap.ID] = snap
	// Cap total snapshots to avoid unbounded growth
	if l := len(m.order); l > m.max {
		for _, id := range m.order[:l-m.max] {
			delete(m.snaps, id)
		}
		m.order = append([]string(nil), m.order[l-m.max:]...)
	}
	metricOps.WithLabelValues("save", "ok").Inc()
	return nil
}

func (m *Memory) Load(ctx context.Context, id string) (session.Snapshot, error) {
	if id == "" {
		return session.Snapshot{}, ErrInvalidID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[id]
	if !ok {
		metricOps.WithLabelValues("load", "miss").Inc()
		return session.Snapshot{}, ErrNotFound
	}
	metricOps.WithLabelValues("load", "ok").Inc()
	return snap, nil
}

func (m *Memory) Ping(context.Context) error { return nil }
