// internal/store/memory.go
//
// In-memory registry of live game sessions.
// Sessions are not safe for concurrent use, so every access goes through
// Do, which holds that session's own lock for the whole callback. This is
// the single-owner queue hosts need when requests arrive on many goroutines.
//
// Characteristics:
//   - Map lookups guarded by an RWMutex; per-session work by a Mutex.
//   - Idle sessions can be swept; state is lost on restart.

package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robalobadob/memory/internal/game"
)

// ErrNotFound is returned for unknown game IDs.
var ErrNotFound = errors.New("game not found")

// Store defines the registry hosts use.
type Store interface {
	// Save registers s under id, replacing any previous session.
	Save(ctx context.Context, id string, s *game.Session) error

	// Do runs fn with exclusive access to the session.
	Do(ctx context.Context, id string, fn func(s *game.Session)) error

	// Delete forgets a session.
	Delete(ctx context.Context, id string) error

	// Sweep drops sessions untouched for longer than idle and returns how many.
	Sweep(ctx context.Context, idle time.Duration) int
}

type entry struct {
	mu      sync.Mutex
	session *game.Session
	touched time.Time
}

type memory struct {
	mu    sync.RWMutex
	games map[string]*entry
	now   func() time.Time
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore() Store {
	return &memory{games: make(map[string]*entry), now: time.Now}
}

func (m *memory) Save(ctx context.Context, id string, s *game.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[id] = &entry{session: s, touched: m.now()}
	return nil
}

func (m *memory) Do(ctx context.Context, id string, fn func(s *game.Session)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	e, ok := m.games[id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.session)
	e.touched = m.now()
	return nil
}

func (m *memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[id]; !ok {
		return ErrNotFound
	}
	delete(m.games, id)
	return nil
}

func (m *memory) Sweep(ctx context.Context, idle time.Duration) int {
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.games {
		e.mu.Lock()
		stale := e.touched.Before(cutoff)
		e.mu.Unlock()
		if stale {
			delete(m.games, id)
			n++
		}
	}
	return n
}
