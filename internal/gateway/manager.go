package gateway

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/lk2023060901/space-gateway-go/internal/wire"
	"github.com/lk2023060901/space-gateway-go/pkg/metrics"
	"github.com/lk2023060901/space-gateway-go/pkg/util/merr"
)

// SessionManager tracks every live session of the process and hands out
// session ids. Range iterates over a snapshot so callbacks may add or
// remove sessions freely.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[uint64]*Session

	nextID atomic.Uint64
}

// NewSessionManager creates an empty manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[uint64]*Session),
	}
}

// NextID allocates a process-unique session id.
func (m *SessionManager) NextID() uint64 {
	return m.nextID.Inc()
}

// Add registers a session.
func (m *SessionManager) Add(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID()]; ok {
		return merr.WrapErrSessionDuplicate(s.ID())
	}
	m.sessions[s.ID()] = s
	metrics.ConnectedSessions.Inc()
	return nil
}

// Remove unregisters a session. Removing twice is a no-op.
func (m *SessionManager) Remove(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return
	}
	delete(m.sessions, id)
	metrics.ConnectedSessions.Dec()
}

// Get returns the session with the given id.
func (m *SessionManager) Get(id uint64) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, merr.WrapErrSessionNotFound(id)
	}
	return s, nil
}

// Len returns the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Range calls fn for every session in a point-in-time snapshot, stopping
// early when fn returns false.
func (m *SessionManager) Range(fn func(s *Session) bool) {
	m.mu.RLock()
	snapshot := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		snapshot = append(snapshot, s)
	}
	m.mu.RUnlock()

	for _, s := range snapshot {
		if !fn(s) {
			return
		}
	}
}

// FindByUUID returns every session of the member with the given uuid.
func (m *SessionManager) FindByUUID(uuid string) []*Session {
	var found []*Session
	m.Range(func(s *Session) bool {
		if s.UUID() == uuid {
			found = append(found, s)
		}
		return true
	})
	return found
}

// BroadcastRoom emits msg to every session of the given room.
func (m *SessionManager) BroadcastRoom(playURI string, msg wire.ServerMessage) {
	m.Range(func(s *Session) bool {
		if s.PlayURI() == playURI {
			s.Emit(msg)
		}
		return true
	})
}

// BroadcastWorld emits msg to every session of the given world.
func (m *SessionManager) BroadcastWorld(world string, msg wire.ServerMessage) {
	m.Range(func(s *Session) bool {
		if s.World() == world {
			s.Emit(msg)
		}
		return true
	})
}
