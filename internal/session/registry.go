// internal/session/registry.go
//
// Player-id ↔ connection handle registry.
//
// A player may transiently hold multiple handles during reconnection; delivery
// to a player broadcasts to every handle currently associated. Registration is
// explicit (the client identifies itself after connect). The registry is
// process-local; multi-process deployments coordinate through the state store
// only.

package session

import (
	"sync"
)

// Handle is one live client connection able to receive events.
type Handle interface {
	// Send delivers a named event with a JSON-serializable payload.
	// Implementations must not block indefinitely.
	Send(event string, payload any)
}

// Registry maps player ids to their active connection handles.
type Registry struct {
	mu       sync.RWMutex
	byPlayer map[string]map[Handle]struct{}
	byHandle map[Handle]string
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byPlayer: make(map[string]map[Handle]struct{}),
		byHandle: make(map[Handle]string),
	}
}

// Register binds h to playerID. A handle previously bound to another player is
// rebound.
func (r *Registry) Register(playerID string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byHandle[h]; ok && prev != playerID {
		delete(r.byPlayer[prev], h)
		if len(r.byPlayer[prev]) == 0 {
			delete(r.byPlayer, prev)
		}
	}
	r.byHandle[h] = playerID
	set, ok := r.byPlayer[playerID]
	if !ok {
		set = make(map[Handle]struct{})
		r.byPlayer[playerID] = set
	}
	set[h] = struct{}{}
}

// Unregister removes h and reports the player it belonged to plus the number
// of handles that player still holds. Returns ("", 0) for unknown handles.
func (r *Registry) Unregister(h Handle) (playerID string, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	playerID, ok := r.byHandle[h]
	if !ok {
		return "", 0
	}
	delete(r.byHandle, h)
	set := r.byPlayer[playerID]
	delete(set, h)
	if len(set) == 0 {
		delete(r.byPlayer, playerID)
		return playerID, 0
	}
	return playerID, len(set)
}

// PlayerOf returns the player bound to h, if any.
func (r *Registry) PlayerOf(h Handle) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byHandle[h]
	return id, ok
}

// IsConnected reports whether playerID has at least one live handle.
func (r *Registry) IsConnected(playerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byPlayer[playerID]) > 0
}

// Send broadcasts an event to every handle associated with playerID.
// Unknown players are ignored.
func (r *Registry) Send(playerID, event string, payload any) {
	r.mu.RLock()
	handles := make([]Handle, 0, len(r.byPlayer[playerID]))
	for h := range r.byPlayer[playerID] {
		handles = append(handles, h)
	}
	r.mu.RUnlock()
	for _, h := range handles {
		h.Send(event, payload)
	}
}
