// internal/matchmaking/queue.go
//
// Rating-indexed matchmaking queue.
//
// Pairing protocol: on enqueue, immediately look for any entry whose rating is
// within ±InitialBand. If none, the player stays queued and a background loop
// retries every RetryInterval with a tolerance band that grows linearly from
// InitialBand to MaxBand over WaitBudget. Once WaitBudget elapses without a
// pairing, a synthetic opponent is spawned at a difficulty selected by the
// player's rating.
//
// Two paired players are atomically removed from the queue before any match is
// created. Entries whose connection has vanished are dropped at retry time via
// the liveness check, so a dead socket is never returned as an opponent.

package matchmaking

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harshbaid-13/WordArena/internal/bot"
	"github.com/harshbaid-13/WordArena/internal/game"
)

// Defaults for the pairing protocol.
const (
	DefaultInitialBand   = 100
	DefaultMaxBand       = 400
	DefaultWaitBudget    = 15 * time.Second
	DefaultRetryInterval = 2 * time.Second
)

// Entry is one queued player.
type Entry struct {
	PlayerID    string
	DisplayName string
	Rating      int
	EnqueuedAt  time.Time
}

// Config tunes the pairing protocol.
type Config struct {
	InitialBand   int
	MaxBand       int
	WaitBudget    time.Duration
	RetryInterval time.Duration
}

// DefaultConfig returns the standard pairing parameters.
func DefaultConfig() Config {
	return Config{
		InitialBand:   DefaultInitialBand,
		MaxBand:       DefaultMaxBand,
		WaitBudget:    DefaultWaitBudget,
		RetryInterval: DefaultRetryInterval,
	}
}

// Hooks connect the queue to its collaborators.
type Hooks struct {
	// Live reports whether a queued player still has a connection.
	Live func(playerID string) bool
	// OnPair is invoked with both entries already removed from the queue.
	OnPair func(a, b Entry)
	// OnBotSpawn is invoked when WaitBudget elapses for an entry.
	OnBotSpawn func(e Entry, difficulty game.Difficulty, botRating int)
}

// Queue is the matchmaking queue. Entries are owned by the queue between
// Enqueue and removal.
type Queue struct {
	mu      sync.Mutex
	entries map[string]*Entry
	order   []string // retry scan order (FIFO)
	cfg     Config
	hooks   Hooks
	log     zerolog.Logger
	stop    chan struct{}
	stopped sync.Once
}

// New constructs a Queue; call Start to begin the retry loop.
func New(cfg Config, hooks Hooks, log zerolog.Logger) *Queue {
	if cfg.InitialBand <= 0 {
		cfg.InitialBand = DefaultInitialBand
	}
	if cfg.MaxBand < cfg.InitialBand {
		cfg.MaxBand = DefaultMaxBand
	}
	if cfg.WaitBudget <= 0 {
		cfg.WaitBudget = DefaultWaitBudget
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	return &Queue{
		entries: make(map[string]*Entry),
		cfg:     cfg,
		hooks:   hooks,
		log:     log.With().Str("component", "matchmaking").Logger(),
		stop:    make(chan struct{}),
	}
}

// Start launches the retry loop.
func (q *Queue) Start() {
	go q.loop()
}

// Stop halts the retry loop. Queued entries stay in the queue.
func (q *Queue) Stop() {
	q.stopped.Do(func() { close(q.stop) })
}

// Enqueue adds a player and immediately attempts a pairing at the initial
// band. Re-enqueueing a queued player resets their wait clock.
func (q *Queue) Enqueue(e Entry) {
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now()
	}

	q.mu.Lock()
	q.remove(e.PlayerID)
	q.entries[e.PlayerID] = &e
	q.order = append(q.order, e.PlayerID)

	opp := q.findOpponent(&e, q.cfg.InitialBand)
	var pair [2]Entry
	paired := false
	if opp != nil {
		pair = [2]Entry{e, *opp}
		q.remove(e.PlayerID)
		q.remove(opp.PlayerID)
		paired = true
	}
	q.mu.Unlock()

	if paired {
		q.log.Info().Str("a", pair[0].PlayerID).Str("b", pair[1].PlayerID).Msg("paired on enqueue")
		q.hooks.OnPair(pair[0], pair[1])
	} else {
		q.log.Debug().Str("player", e.PlayerID).Int("rating", e.Rating).Msg("queued")
	}
}

// Cancel removes a player's entry and halts their retry schedule.
// Reports whether an entry was present.
func (q *Queue) Cancel(playerID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.entries[playerID]
	q.remove(playerID)
	return ok
}

// Len reports the number of queued players.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// loop drives periodic retries with the expanding band and the bot fallback.
func (q *Queue) loop() {
	ticker := time.NewTicker(q.cfg.RetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			q.retry()
		}
	}
}

type pairAction struct{ a, b Entry }
type spawnAction struct {
	e          Entry
	difficulty game.Difficulty
	rating     int
}

// retry scans queued entries in FIFO order, pruning dead connections,
// expanding each entry's band by elapsed wait, and spawning bots for entries
// past the wait budget.
func (q *Queue) retry() {
	now := time.Now()
	var pairs []pairAction
	var spawns []spawnAction

	q.mu.Lock()
	for _, id := range append([]string{}, q.order...) {
		e, ok := q.entries[id]
		if !ok {
			continue
		}
		if q.hooks.Live != nil && !q.hooks.Live(id) {
			q.remove(id)
			q.log.Debug().Str("player", id).Msg("dropped stale entry")
			continue
		}
		elapsed := now.Sub(e.EnqueuedAt)
		if elapsed >= q.cfg.WaitBudget {
			d := bot.DifficultyForRating(e.Rating)
			spawns = append(spawns, spawnAction{e: *e, difficulty: d, rating: bot.RatingFor(d)})
			q.remove(id)
			continue
		}
		if opp := q.findOpponent(e, q.band(elapsed)); opp != nil {
			pairs = append(pairs, pairAction{a: *e, b: *opp})
			q.remove(e.PlayerID)
			q.remove(opp.PlayerID)
		}
	}
	q.mu.Unlock()

	for _, p := range pairs {
		q.log.Info().Str("a", p.a.PlayerID).Str("b", p.b.PlayerID).Msg("paired on retry")
		q.hooks.OnPair(p.a, p.b)
	}
	for _, s := range spawns {
		q.log.Info().Str("player", s.e.PlayerID).Str("difficulty", string(s.difficulty)).Msg("bot spawn")
		q.hooks.OnBotSpawn(s.e, s.difficulty, s.rating)
	}
}

// band returns the tolerance band after elapsed queue time: linear growth
// from InitialBand to MaxBand over WaitBudget.
func (q *Queue) band(elapsed time.Duration) int {
	if elapsed >= q.cfg.WaitBudget {
		return q.cfg.MaxBand
	}
	growth := float64(q.cfg.MaxBand-q.cfg.InitialBand) * (float64(elapsed) / float64(q.cfg.WaitBudget))
	return q.cfg.InitialBand + int(growth)
}

// findOpponent returns the closest-rated live entry within band, or nil.
// Caller holds q.mu.
func (q *Queue) findOpponent(e *Entry, band int) *Entry {
	var best *Entry
	bestGap := band + 1
	for id, cand := range q.entries {
		if id == e.PlayerID {
			continue
		}
		if q.hooks.Live != nil && !q.hooks.Live(id) {
			continue
		}
		gap := cand.Rating - e.Rating
		if gap < 0 {
			gap = -gap
		}
		if gap <= band && gap < bestGap {
			best, bestGap = cand, gap
		}
	}
	return best
}

// remove deletes an entry and its order slot. Caller holds q.mu.
func (q *Queue) remove(playerID string) {
	delete(q.entries, playerID)
	for i, id := range q.order {
		if id == playerID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}
