// internal/match/engine.go
//
// Match engine: owns every live match, each driven by its own actor.
//
// The engine creates matches (human vs human from a queue pairing, human vs
// synthetic on a bot-spawn signal), routes inbound commands to the right
// actor, and tracks which match each player is in so disconnects can be
// attributed. All match state mutations happen inside the actor through the
// state store's read-modify-write discipline; the store's win claim is the
// only cross-process coordination point.

package match

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harshbaid-13/WordArena/internal/bot"
	"github.com/harshbaid-13/WordArena/internal/game"
	"github.com/harshbaid-13/WordArena/internal/rating"
	"github.com/harshbaid-13/WordArena/internal/session"
	"github.com/harshbaid-13/WordArena/internal/store"
	"github.com/harshbaid-13/WordArena/internal/words"
)

// DefaultGraceWindow is how long a disconnected player may be away before a
// human opponent wins by forfeit.
const DefaultGraceWindow = 10 * time.Second

// Participant identifies one human side of a new match.
type Participant struct {
	ID          string
	DisplayName string
	Rating      int
}

// Engine manages all live match actors in this process.
type Engine struct {
	store    store.Store
	sessions *session.Registry
	ratings  *rating.Service
	log      zerolog.Logger
	grace    time.Duration

	mu       sync.Mutex
	actors   map[string]*actor
	byPlayer map[string]string // playerID → matchID
}

// NewEngine constructs an Engine. A non-positive grace falls back to
// DefaultGraceWindow.
func NewEngine(st store.Store, sessions *session.Registry, ratings *rating.Service, grace time.Duration, log zerolog.Logger) *Engine {
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	return &Engine{
		store:    st,
		sessions: sessions,
		ratings:  ratings,
		log:      log.With().Str("component", "match").Logger(),
		grace:    grace,
		actors:   make(map[string]*actor),
		byPlayer: make(map[string]string),
	}
}

// CreateHumanMatch starts a match between two paired players and pushes
// game:start to both sides.
func (e *Engine) CreateHumanMatch(ctx context.Context, a, b Participant) (string, error) {
	m := newMatch(words.RandomAnswer())
	m.Players[a.ID] = &game.PlayerSlot{ID: a.ID, DisplayName: a.DisplayName, RatingAtStart: a.Rating, Guesses: []game.GuessRecord{}}
	m.Players[b.ID] = &game.PlayerSlot{ID: b.ID, DisplayName: b.DisplayName, RatingAtStart: b.Rating, Guesses: []game.GuessRecord{}}

	if err := e.store.SaveMatch(ctx, m); err != nil {
		return "", err
	}
	e.spawnActor(m, nil)

	e.sessions.Send(a.ID, EventGameStart, StartPayload{GameID: m.ID, Opponent: OpponentInfo{Username: b.DisplayName, Elo: b.Rating}})
	e.sessions.Send(b.ID, EventGameStart, StartPayload{GameID: m.ID, Opponent: OpponentInfo{Username: a.DisplayName, Elo: a.Rating}})
	e.log.Info().Str("match", m.ID).Str("a", a.ID).Str("b", b.ID).Msg("match created")
	return m.ID, nil
}

// CreateBotMatch starts a match between a human and a synthetic opponent and
// schedules the bot's first guess.
func (e *Engine) CreateBotMatch(ctx context.Context, human Participant, difficulty game.Difficulty, botRating int) (string, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	botID := "bot:" + uuid.NewString()

	m := newMatch(words.RandomAnswer())
	m.Players[human.ID] = &game.PlayerSlot{ID: human.ID, DisplayName: human.DisplayName, RatingAtStart: human.Rating, Guesses: []game.GuessRecord{}}
	m.Players[botID] = &game.PlayerSlot{
		ID:                  botID,
		DisplayName:         bot.DisplayName(rng),
		RatingAtStart:       botRating,
		Guesses:             []game.GuessRecord{},
		IsSynthetic:         true,
		SyntheticDifficulty: difficulty,
	}

	if err := e.store.SaveMatch(ctx, m); err != nil {
		return "", err
	}
	botState := bot.NewState(difficulty, m.Target)
	a := e.spawnActor(m, &botState)
	a.scheduleBotTick()

	botSlot := m.Players[botID]
	e.sessions.Send(human.ID, EventGameStart, StartPayload{GameID: m.ID, Opponent: OpponentInfo{Username: botSlot.DisplayName, Elo: botRating, IsBot: true}})
	e.log.Info().Str("match", m.ID).Str("player", human.ID).Str("difficulty", string(difficulty)).Msg("bot match created")
	return m.ID, nil
}

// SubmitGuess routes a guess into the match's actor.
func (e *Engine) SubmitGuess(matchID, playerID, word string) {
	if a := e.actor(matchID); a != nil {
		a.post(guessCmd{playerID: playerID, word: word})
		return
	}
	e.missingMatch(matchID, playerID)
}

// Forfeit routes an explicit forfeit into the match's actor.
func (e *Engine) Forfeit(matchID, playerID string) {
	if a := e.actor(matchID); a != nil {
		a.post(forfeitCmd{playerID: playerID})
		return
	}
	e.missingMatch(matchID, playerID)
}

// Rejoin re-associates a returning player with their active match and replays
// their view of it.
func (e *Engine) Rejoin(matchID, playerID string) {
	if a := e.actor(matchID); a != nil {
		a.post(rejoinCmd{playerID: playerID})
		return
	}
	e.sessions.Send(playerID, EventGameNotFound, NotFoundPayload{GameID: matchID})
}

// PlayerDisconnected starts the forfeit grace timer for the player's active
// match, if any.
func (e *Engine) PlayerDisconnected(playerID string) {
	e.mu.Lock()
	matchID, ok := e.byPlayer[playerID]
	a := e.actors[matchID]
	e.mu.Unlock()
	if ok && a != nil {
		a.post(disconnectCmd{playerID: playerID})
	}
}

// PlayerReconnected cancels any pending grace timer for the player.
func (e *Engine) PlayerReconnected(playerID string) {
	e.mu.Lock()
	matchID, ok := e.byPlayer[playerID]
	a := e.actors[matchID]
	e.mu.Unlock()
	if ok && a != nil {
		a.post(reconnectCmd{playerID: playerID})
	}
}

// ActiveMatchOf returns the live match id a player is in, if any.
func (e *Engine) ActiveMatchOf(playerID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.byPlayer[playerID]
	return id, ok
}

// Shutdown stops every actor without finishing its match.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	actors := make([]*actor, 0, len(e.actors))
	for _, a := range e.actors {
		actors = append(actors, a)
	}
	e.mu.Unlock()
	for _, a := range actors {
		a.stop()
	}
}

// newMatch builds an active match shell around a target word.
func newMatch(target string) *game.Match {
	return &game.Match{
		ID:        uuid.NewString(),
		Target:    target,
		Status:    game.StatusActive,
		StartedAt: time.Now().UnixMilli(),
		Players:   make(map[string]*game.PlayerSlot, 2),
		Replay:    []game.ReplayEvent{},
	}
}

func (e *Engine) actor(matchID string) *actor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.actors[matchID]
}

func (e *Engine) spawnActor(m *game.Match, botState *bot.State) *actor {
	a := &actor{
		engine:   e,
		matchID:  m.ID,
		cmds:     make(chan command, 32),
		done:     make(chan struct{}),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		botState: botState,
		graces:   make(map[string]*time.Timer),
		log:      e.log.With().Str("match", m.ID).Logger(),
	}
	if botState != nil {
		a.botID = m.BotSlot().ID
	}

	e.mu.Lock()
	e.actors[m.ID] = a
	for id, slot := range m.Players {
		if !slot.IsSynthetic {
			e.byPlayer[id] = m.ID
		}
	}
	e.mu.Unlock()

	go a.run()
	return a
}

// release removes a finished actor and its player index entries.
func (e *Engine) release(a *actor, playerIDs []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.actors[a.matchID] == a {
		delete(e.actors, a.matchID)
	}
	for _, id := range playerIDs {
		if e.byPlayer[id] == a.matchID {
			delete(e.byPlayer, id)
		}
	}
}

// missingMatch reports the right error for a command against a match with no
// live actor: finished matches are not active, unknown ones are not found.
func (e *Engine) missingMatch(matchID, playerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	m, err := e.store.GetMatch(ctx, matchID)
	if err == nil && m.Status == game.StatusFinished {
		e.sessions.Send(playerID, EventGuessInvalid, InvalidPayload{Error: ErrCodeMatchNotActive})
		return
	}
	e.sessions.Send(playerID, EventGameNotFound, NotFoundPayload{GameID: matchID})
}
