// Package lock provides the per-source mutual exclusion that keeps
// concurrent triggers from scraping the same county twice in parallel.
package lock

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrRefused is returned when the source is already locked. Callers treat
// this as a successful no-op: the in-flight run already covers the intent.
var ErrRefused = eris.New("lock: source already locked")

// ErrNotHeld is returned when releasing a lock that is not held by the
// given token.
var ErrNotHeld = eris.New("lock: not held by token")

// SourceLock describes the current holder of a source's lock.
type SourceLock struct {
	SourceID    int64
	HolderToken string
	AcquiredAt  time.Time
}

// Manager is a keyed lock table mapping source IDs to lock state. Locks
// held longer than MaxAge are reclaimed on the next acquisition attempt so
// a crashed run cannot starve a source forever.
type Manager struct {
	mu     sync.Mutex
	held   map[int64]SourceLock
	maxAge time.Duration
	now    func() time.Time
}

// DefaultMaxAge bounds how long a lock survives without release.
const DefaultMaxAge = 30 * time.Minute

// NewManager creates a lock manager. maxAge <= 0 selects DefaultMaxAge.
func NewManager(maxAge time.Duration) *Manager {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Manager{
		held:   make(map[int64]SourceLock),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// TryAcquire attempts to lock a source without blocking. It returns a
// holder token on success and ErrRefused if the source is already locked
// by a non-expired holder.
func (m *Manager) TryAcquire(sourceID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if cur, ok := m.held[sourceID]; ok {
		if now.Sub(cur.AcquiredAt) < m.maxAge {
			return "", ErrRefused
		}
		zap.L().Warn("lock: reclaiming expired lock",
			zap.Int64("source_id", sourceID),
			zap.Time("acquired_at", cur.AcquiredAt),
		)
	}

	token := uuid.New().String()
	m.held[sourceID] = SourceLock{SourceID: sourceID, HolderToken: token, AcquiredAt: now}
	return token, nil
}

// Release frees the lock if token matches the current holder. Releasing
// with a stale token (for example after expiry reclamation) returns
// ErrNotHeld without disturbing the active holder.
func (m *Manager) Release(sourceID int64, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.held[sourceID]
	if !ok || cur.HolderToken != token {
		return ErrNotHeld
	}
	delete(m.held, sourceID)
	return nil
}

// Holder reports the current lock state for a source.
func (m *Manager) Holder(sourceID int64) (SourceLock, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.held[sourceID]
	return cur, ok
}
