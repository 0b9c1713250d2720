// internal/store/memory.go
//
// In-memory implementation of the Store interface.
// This is a lightweight persistence layer used for single-process deployments
// and tests, or when durability is not required.
//
// Characteristics:
//   - Matches are stored as JSON blobs keyed by ID, so callers get value
//     semantics identical to the Redis implementation.
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - TTLs are enforced lazily on read.
//   - State is lost when the process restarts.

package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/harshbaid-13/WordArena/internal/game"
)

type entry struct {
	raw      []byte
	deadline time.Time
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu       sync.RWMutex
	matches  map[string]entry
	claims   map[string]entry
	matchTTL time.Duration
	claimTTL time.Duration
}

// NewMemoryStore constructs an in-memory Store with the given match TTL.
// A non-positive ttl falls back to DefaultMatchTTL.
func NewMemoryStore(ttl time.Duration) Store {
	if ttl <= 0 {
		ttl = DefaultMatchTTL
	}
	return &memory{
		matches:  make(map[string]entry),
		claims:   make(map[string]entry),
		matchTTL: ttl,
		claimTTL: DefaultClaimTTL,
	}
}

func (m *memory) SaveMatch(ctx context.Context, g *game.Match) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matches[g.ID] = entry{raw: raw, deadline: time.Now().Add(m.matchTTL)}
	return nil
}

func (m *memory) GetMatch(ctx context.Context, id string) (*game.Match, error) {
	m.mu.RLock()
	e, ok := m.matches[id]
	m.mu.RUnlock()
	if !ok || time.Now().After(e.deadline) {
		return nil, ErrNotFound
	}
	var g game.Match
	if err := json.Unmarshal(e.raw, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (m *memory) DeleteMatch(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.matches, id)
	delete(m.claims, id)
	return nil
}

func (m *memory) TryClaimWinner(ctx context.Context, matchID, playerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.claims[matchID]; ok && time.Now().Before(e.deadline) {
		return false, nil
	}
	raw, err := json.Marshal(WinClaim{PlayerID: playerID, ClaimedAt: time.Now().UnixMilli()})
	if err != nil {
		return false, err
	}
	m.claims[matchID] = entry{raw: raw, deadline: time.Now().Add(m.claimTTL)}
	return true, nil
}

func (m *memory) ReadWinner(ctx context.Context, matchID string) (*WinClaim, error) {
	m.mu.RLock()
	e, ok := m.claims[matchID]
	m.mu.RUnlock()
	if !ok || time.Now().After(e.deadline) {
		return nil, nil
	}
	var c WinClaim
	if err := json.Unmarshal(e.raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
