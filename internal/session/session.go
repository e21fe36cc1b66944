// Package session holds the per-login practice context: which subject and
// filter the user is working on and the question currently on screen.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ibpractice/backend/internal/metrics"
	"github.com/ibpractice/backend/internal/models"
)

// Context is a snapshot of one session. Selection is cleared whenever the
// subject or filter changes and on logout.
type Context struct {
	ID        string           `json:"id"`
	UserID    int64            `json:"user_id"`
	Subject   string           `json:"subject,omitempty"`
	Filter    models.Filter    `json:"filter"`
	Selection *models.Question `json:"selection,omitempty"`
	StartedAt time.Time        `json:"started_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Manager owns the open sessions. A session lives for ttl after Start,
// matching the lifetime of the token issued with it.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Context
	ttl      time.Duration
	now      func() time.Time
}

func NewManager(ttl time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*Context),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Start opens a fresh session for userID and drops any that have expired.
func (m *Manager) Start(userID int64) Context {
	now := m.now()
	c := &Context{
		ID:        uuid.NewString(),
		UserID:    userID,
		Filter:    models.RandomFilter(),
		StartedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	m.mu.Lock()
	m.sweepLocked(now)
	m.sessions[c.ID] = c
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.SetActiveSessions(n)
	return *c
}

func (m *Manager) Get(id string) (Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.lookupLocked(id)
	if err != nil {
		return Context{}, err
	}
	return *c, nil
}

// Sweep removes expired sessions and returns how many were dropped.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	dropped := m.sweepLocked(m.now())
	n := len(m.sessions)
	m.mu.Unlock()

	if dropped > 0 {
		metrics.SetActiveSessions(n)
	}
	return dropped
}

// Reap sweeps every interval until ctx is done.
func (m *Manager) Reap(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func (m *Manager) sweepLocked(now time.Time) int {
	dropped := 0
	for id, c := range m.sessions {
		if !now.Before(c.ExpiresAt) {
			delete(m.sessions, id)
			dropped++
		}
	}
	return dropped
}

// lookupLocked treats an expired session as missing and forgets it.
func (m *Manager) lookupLocked(id string) (*Context, error) {
	c, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	if !m.now().Before(c.ExpiresAt) {
		delete(m.sessions, id)
		return nil, models.ErrSessionNotFound
	}
	return c, nil
}

// Alive reports whether id belongs to userID and has not ended.
func (m *Manager) Alive(id string, userID int64) bool {
	c, err := m.Get(id)
	return err == nil && c.UserID == userID
}

// End drops the session and everything cached in it.
func (m *Manager) End(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.SetActiveSessions(n)
}

// Use points the session at subject and filter. The cached selection
// survives only if neither changed.
func (m *Manager) Use(id, subject string, filter models.Filter) (Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.lookupLocked(id)
	if err != nil {
		return Context{}, err
	}
	filter = filter.Normalize()
	if c.Subject != subject || !c.Filter.Equal(filter) {
		c.Subject = subject
		c.Filter = filter
		c.Selection = nil
	}
	return *c, nil
}

// SetSelection caches q as the question on screen for the session's
// current subject and filter.
func (m *Manager) SetSelection(id string, q *models.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.lookupLocked(id)
	if err != nil {
		return err
	}
	c.Selection = q
	return nil
}

func (m *Manager) ClearSelection(id string) error {
	return m.SetSelection(id, nil)
}

// Active returns the number of sessions held, including expired ones not yet swept.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
