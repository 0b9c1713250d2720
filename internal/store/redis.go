// internal/store/redis.go
//
// Redis implementation of the Store interface.
//
// Matches are stored as JSON blobs under "match:<id>" with a TTL; win claims
// live under "match:<id>:winner" and are written with SET NX, which gives the
// first-writer-wins guarantee across processes. Redis is the sole coordination
// point between engine instances in multi-process deployments.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/harshbaid-13/WordArena/internal/game"
)

type redisStore struct {
	rdb      *redis.Client
	matchTTL time.Duration
	claimTTL time.Duration
}

// NewRedisStore connects to url and returns a Redis-backed Store.
// A non-positive ttl falls back to DefaultMatchTTL.
func NewRedisStore(url string, ttl time.Duration) (Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultMatchTTL
	}
	return &redisStore{rdb: rdb, matchTTL: ttl, claimTTL: DefaultClaimTTL}, nil
}

func matchKey(id string) string  { return "match:" + id }
func winnerKey(id string) string { return "match:" + id + ":winner" }

func (s *redisStore) SaveMatch(ctx context.Context, g *game.Match) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, matchKey(g.ID), raw, s.matchTTL).Err()
}

func (s *redisStore) GetMatch(ctx context.Context, id string) (*game.Match, error) {
	raw, err := s.rdb.Get(ctx, matchKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var g game.Match
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *redisStore) DeleteMatch(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, matchKey(id), winnerKey(id)).Err()
}

func (s *redisStore) TryClaimWinner(ctx context.Context, matchID, playerID string) (bool, error) {
	raw, err := json.Marshal(WinClaim{PlayerID: playerID, ClaimedAt: time.Now().UnixMilli()})
	if err != nil {
		return false, err
	}
	return s.rdb.SetNX(ctx, winnerKey(matchID), raw, s.claimTTL).Result()
}

func (s *redisStore) ReadWinner(ctx context.Context, matchID string) (*WinClaim, error) {
	raw, err := s.rdb.Get(ctx, winnerKey(matchID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var c WinClaim
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
