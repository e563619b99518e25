package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zipcast/zipcast/internal/forecast"
	"github.com/zipcast/zipcast/internal/geolocation"
	"github.com/zipcast/zipcast/internal/weather"
)

// ErrSessionNotFound is returned when a session id is unknown or expired.
var ErrSessionNotFound = errors.New("session not found")

// DefaultIdleTTL is how long an untouched session is kept.
const DefaultIdleTTL = 30 * time.Minute

// ManagerConfig holds configuration for the session manager.
type ManagerConfig struct {
	Provider   weather.Provider
	Locator    geolocation.Locator
	Aggregator *forecast.Aggregator

	// IdleTTL is how long a session survives without access.
	// Default: 30 minutes
	IdleTTL time.Duration

	Logger zerolog.Logger
	Now    func() time.Time
}

// Session is a live coordinator addressed by id.
type Session struct {
	*Coordinator

	ID        string
	CreatedAt time.Time

	lastAccess time.Time
}

// Manager keeps the live sessions in memory.
type Manager struct {
	cfg ManagerConfig

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a new session manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Aggregator == nil {
		cfg.Aggregator = forecast.NewAggregator(forecast.AggregatorConfig{})
	}

	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session with the given initial units.
func (m *Manager) Create(units weather.UnitSystem) *Session {
	id := uuid.New().String()
	now := m.cfg.Now()

	s := &Session{
		Coordinator: NewCoordinator(CoordinatorConfig{
			Provider:   m.cfg.Provider,
			Locator:    m.cfg.Locator,
			Aggregator: m.cfg.Aggregator,
			Units:      units,
			Logger:     m.cfg.Logger.With().Str("session_id", id).Logger(),
			Now:        m.cfg.Now,
		}),
		ID:         id,
		CreatedAt:  now,
		lastAccess: now,
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.cfg.Logger.Debug().Str("session_id", id).Msg("session created")
	return s
}

// Get returns the session with the given id and marks it as used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.lastAccess = m.cfg.Now()
	return s, nil
}

// Delete ends a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// EvictIdle removes sessions that have not been accessed within the idle TTL
// and returns how many were removed.
func (m *Manager) EvictIdle() int {
	cutoff := m.cfg.Now().Add(-m.cfg.IdleTTL)

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, s := range m.sessions {
		if s.lastAccess.Before(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}
	return evicted
}

// Run sweeps idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = m.cfg.IdleTTL / 2
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.EvictIdle(); n > 0 {
				m.cfg.Logger.Info().Int("evicted", n).Int("remaining", m.Len()).Msg("evicted idle sessions")
			}
		}
	}
}
