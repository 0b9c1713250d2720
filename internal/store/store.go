// internal/store/store.go
//
// Live match state storage.
//
// The store is the serialization point for all match mutations: the engine
// reads a match, mutates it, and writes it back. Simultaneous correct guesses
// are arbitrated by the win-claim primitive, which is first-writer-wins across
// all concurrent callers.
//
// Implementations may be backed by memory (this package) or Redis.
// Values carry a time-to-live; an expired match behaves as missing.

package store

import (
	"context"
	"errors"
	"time"

	"github.com/harshbaid-13/WordArena/internal/game"
)

// ErrNotFound is returned when a match is absent or its TTL has lapsed.
var ErrNotFound = errors.New("store: match not found")

// DefaultMatchTTL bounds how long a live match may exist.
const DefaultMatchTTL = time.Hour

// DefaultClaimTTL bounds how long a win claim stays readable.
const DefaultClaimTTL = 5 * time.Minute

// WinClaim records the first player to claim victory for a match.
type WinClaim struct {
	PlayerID  string `json:"playerId"`
	ClaimedAt int64  `json:"claimedAt"` // unix millis
}

// Store defines the persistence interface for live match state.
type Store interface {
	// SaveMatch persists or updates a match, refreshing its TTL.
	SaveMatch(ctx context.Context, m *game.Match) error

	// GetMatch retrieves a match by ID.
	// Returns ErrNotFound if the match is missing or expired.
	GetMatch(ctx context.Context, id string) (*game.Match, error)

	// DeleteMatch removes a match and its win claim.
	DeleteMatch(ctx context.Context, id string) error

	// TryClaimWinner atomically records playerID as the winner of matchID.
	// Returns true exactly once per matchID across all concurrent callers.
	TryClaimWinner(ctx context.Context, matchID, playerID string) (bool, error)

	// ReadWinner returns the recorded claim, or nil if none exists.
	ReadWinner(ctx context.Context, matchID string) (*WinClaim, error)
}
