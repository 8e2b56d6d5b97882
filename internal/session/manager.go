// Package session manages per-user sandbox databases. Every session owns a
// private in-memory DuckDB, so DDL and data in one session are invisible to
// every other.
package session

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"

	"sqlflow/internal/domain"
	"sqlflow/internal/engine"
)

// Manager creates, looks up, and reaps sessions. It implements
// domain.Sessions.
type Manager struct {
	logger *slog.Logger
	ttl    time.Duration
	seed   *Seed

	mu       sync.Mutex
	sessions map[string]*session
	done     chan struct{}
	closed   bool
}

// session is one live sandbox. The RWMutex gives visualizations a stable
// snapshot: reads share the lease, DDL/DML takes it exclusively.
type session struct {
	db       *sql.DB
	engine   *engine.DuckDB
	mu       sync.RWMutex
	lastUsed time.Time
}

var _ domain.Sessions = (*Manager)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets the idle time after which a session is reaped.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

// WithSeed seeds every new session with the given schema.
func WithSeed(seed *Seed) Option {
	return func(m *Manager) { m.seed = seed }
}

// NewManager creates a session manager and starts its reaper.
func NewManager(logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		logger:   logger,
		ttl:      30 * time.Minute,
		sessions: make(map[string]*session),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	go m.reap()
	return m
}

// Create opens a new session and returns its ID.
func (m *Manager) Create(ctx context.Context) (string, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return "", domain.ErrExecution("open session database: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return "", domain.ErrExecution("open session database: %v", err)
	}

	if m.seed != nil {
		if err := m.seed.Apply(ctx, db); err != nil {
			_ = db.Close()
			return "", err
		}
	}

	id := uuid.NewString()
	s := &session{db: db, engine: engine.New(db), lastUsed: time.Now()}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		_ = db.Close()
		return "", domain.ErrExecution("session manager is shut down")
	}
	m.sessions[id] = s

	m.logger.Info("session created", "session_id", id)
	return id, nil
}

// Acquire leases a session's engine. A readonly lease is shared; a write
// lease is exclusive. The returned release func must be called exactly once.
func (m *Manager) Acquire(ctx context.Context, sessionID string, readonly bool) (domain.Engine, domain.ReleaseFunc, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		s.lastUsed = time.Now()
	}
	m.mu.Unlock()
	if !ok {
		return nil, nil, domain.ErrNotFound("session %q not found", sessionID)
	}

	if readonly {
		s.mu.RLock()
		return s.engine, s.mu.RUnlock, nil
	}
	s.mu.Lock()
	return s.engine, s.mu.Unlock, nil
}

// Delete closes a session and frees its database.
func (m *Manager) Delete(sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if !ok {
		return domain.ErrNotFound("session %q not found", sessionID)
	}

	m.closeSession(sessionID, s)
	return nil
}

// Close shuts the manager down, closing every session.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.done)
	sessions := m.sessions
	m.sessions = map[string]*session{}
	m.mu.Unlock()

	for id, s := range sessions {
		m.closeSession(id, s)
	}
}

func (m *Manager) closeSession(id string, s *session) {
	// Wait for in-flight leases before tearing the database down.
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Close(); err != nil {
		m.logger.Warn("closing session database", "session_id", id, "error", err)
	}
	m.logger.Info("session closed", "session_id", id)
}

// reap drops sessions idle past the TTL.
func (m *Manager) reap() {
	interval := m.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-m.ttl)
		m.mu.Lock()
		var expired []string
		for id, s := range m.sessions {
			if s.lastUsed.Before(cutoff) {
				expired = append(expired, id)
			}
		}
		stale := make(map[string]*session, len(expired))
		for _, id := range expired {
			stale[id] = m.sessions[id]
			delete(m.sessions, id)
		}
		m.mu.Unlock()

		for id, s := range stale {
			m.logger.Info("session expired", "session_id", id)
			m.closeSession(id, s)
		}
	}
}
