package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"webchat-backend/internal/config"
	"webchat-backend/internal/logger"
	"webchat-backend/models"
)

// Manager owns every live session. Sessions exist only in process
// memory; an expired or deleted session is gone along with its index
// and history.
type Manager struct {
	mu       sync.RWMutex
	cfg      *config.Config
	sessions map[string]*ChatbotSession
}

func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*ChatbotSession),
	}
}

// Create makes a new session. The patch overlays process defaults;
// fields absent from the request keep the default, while an explicit
// zero (say temperature 0.0) is kept as sent. A nil patch means pure
// defaults.
func (m *Manager) Create(patch *models.SessionConfigPatch) (*ChatbotSession, error) {
	settings := patch.Apply(DefaultSettings(m.cfg))
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	s := NewChatbotSession(uuid.NewString(), m.cfg, settings)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	logger.Info("session created", "session_id", s.ID, "provider", settings.Provider)
	return s, nil
}

// Get returns the session or nil when unknown.
func (m *Manager) Get(id string) *ChatbotSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Delete removes a session. Returns false when the ID was unknown.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep drops sessions idle longer than ttl and returns how many were
// removed.
func (m *Manager) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if s.LastActivity().Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		logger.Info("expired sessions swept", "removed", removed, "remaining", len(m.sessions))
	}
	return removed
}
