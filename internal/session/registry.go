package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

type Registry struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	historyCap int
}

func NewRegistry(historyCap int) *Registry {
	return &Registry{
		sessions:   make(map[string]*Session),
		historyCap: historyCap,
	}
}

// Create registers a new session with a fresh id.
func (r *Registry) Create() *Session {
	s := newSession(uuid.NewString(), r.historyCap, time.Now())
	r.mu.Lock()
	r.sessions[s.ID] = s
	gaugeSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()
	metricSessionsCreated.Inc()
	return s
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete unregisters and closes the session. Unknown ids are ignored.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	gaugeSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()
	if ok {
		s.Close()
	}
}

// List returns a snapshot of the live sessions.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// UpdateContext replaces the dynamic context of session id.
func (r *Registry) UpdateContext(id, content string) (uint64, error) {
	s, err := r.Get(id)
	if err != nil {
		return 0, err
	}
	return s.ReplaceContext(content), nil
}
