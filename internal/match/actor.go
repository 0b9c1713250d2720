// internal/match/actor.go
//
// Per-match actor.
//
// A single goroutine drives each match: guesses, bot ticks, forfeits,
// disconnects, and rejoins all arrive as commands on one channel and are
// handled sequentially, so no locks guard match state. Every mutation goes
// read-modify-write through the state store; simultaneous correct guesses
// (possible across processes) are arbitrated by the store's win claim.
//
// Timers (bot pacing, disconnect grace) fire by posting commands back onto
// the channel and are cancelled when the match reaches a terminal state.

package match

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harshbaid-13/WordArena/internal/bot"
	"github.com/harshbaid-13/WordArena/internal/game"
	"github.com/harshbaid-13/WordArena/internal/store"
	"github.com/harshbaid-13/WordArena/internal/words"
)

const storeTimeout = 3 * time.Second

type command interface{}

type guessCmd struct {
	playerID string
	word     string
}
type botTickCmd struct{}
type scheduleBotCmd struct{}
type forfeitCmd struct{ playerID string }
type disconnectCmd struct{ playerID string }
type reconnectCmd struct{ playerID string }
type rejoinCmd struct{ playerID string }
type graceExpiredCmd struct{ playerID string }

type actor struct {
	engine  *Engine
	matchID string
	cmds    chan command
	done    chan struct{}
	once    sync.Once
	rng     *rand.Rand
	log     zerolog.Logger

	botState *bot.State
	botID    string
	botTimer *time.Timer

	graces   map[string]*time.Timer
	finished bool
}

func (a *actor) run() {
	for {
		select {
		case <-a.done:
			return
		case cmd := <-a.cmds:
			a.handle(cmd)
		}
	}
}

// post enqueues a command unless the actor has stopped.
func (a *actor) post(cmd command) {
	select {
	case <-a.done:
	case a.cmds <- cmd:
	}
}

func (a *actor) stop() {
	a.once.Do(func() {
		a.cancelTimers()
		close(a.done)
	})
}

func (a *actor) handle(cmd command) {
	if a.finished {
		return
	}
	switch c := cmd.(type) {
	case guessCmd:
		a.handleGuess(c.playerID, c.word)
	case botTickCmd:
		a.botTimer = nil
		a.handleBotTick()
	case scheduleBotCmd:
		a.ensureBotTick(0)
	case forfeitCmd:
		a.handleForfeit(c.playerID)
	case disconnectCmd:
		a.handleDisconnect(c.playerID)
	case reconnectCmd:
		a.cancelGrace(c.playerID)
	case rejoinCmd:
		a.handleRejoin(c.playerID)
	case graceExpiredCmd:
		a.handleGraceExpired(c.playerID)
	}
}

// scheduleBotTick is callable from outside the actor goroutine.
func (a *actor) scheduleBotTick() {
	a.post(scheduleBotCmd{})
}

// ----------------------------- guess pipeline ------------------------------

func (a *actor) handleGuess(playerID, word string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	human := playerID != a.botID

	m, err := a.loadMatch(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Live state TTL lapsed; the match can no longer accept guesses.
			a.rejectGuess(human, playerID, ErrCodeMatchNotActive)
			a.teardown(nil)
			return
		}
		a.internalError(human, playerID, err)
		return
	}

	if m.Status != game.StatusActive {
		a.rejectGuess(human, playerID, ErrCodeMatchNotActive)
		return
	}
	slot := m.Slot(playerID)
	if slot == nil {
		a.rejectGuess(human, playerID, ErrCodeNotYourMatch)
		return
	}
	if len(slot.Guesses) >= game.MaxGuesses {
		a.rejectGuess(human, playerID, ErrCodeNoGuessesRemaining)
		return
	}
	word = strings.ToUpper(strings.TrimSpace(word))
	if len(word) != game.WordLength || !words.IsValidGuess(word) {
		a.rejectGuess(human, playerID, ErrCodeInvalidGuess)
		return
	}

	eval := game.Evaluate(word, m.Target)
	now := time.Now().UnixMilli()
	if n := len(slot.Guesses); n > 0 && now <= slot.Guesses[n-1].Timestamp {
		now = slot.Guesses[n-1].Timestamp + 1
	}
	rec := game.GuessRecord{Word: word, Ordinal: len(slot.Guesses) + 1, Timestamp: now, Evaluation: eval}
	slot.Guesses = append(slot.Guesses, rec)
	m.Replay = append(m.Replay, game.ReplayEvent{Type: "guess", PlayerID: playerID, Timestamp: now, Word: word})

	correct := game.AllGreen(eval)
	reason := ""
	if correct {
		won, err := a.claimWinner(ctx, playerID)
		if err != nil {
			a.internalError(human, playerID, err)
			return
		}
		if won {
			m.WinnerID = playerID
		} else {
			claim, _ := a.engine.store.ReadWinner(ctx, a.matchID)
			if claim != nil {
				m.WinnerID = claim.PlayerID
			} else {
				m.WinnerID = playerID
			}
		}
		m.Status = game.StatusFinished
		m.EndedAt = now
		reason = ReasonSolved
	} else if m.BothExhausted() {
		m.Status = game.StatusFinished
		m.EndedAt = now
		reason = ReasonExhausted
	}

	if err := a.saveMatch(ctx, m); err != nil {
		a.internalError(human, playerID, err)
		return
	}

	// Full result to the guesser, masked copy to the opponent. Both are
	// emitted before this handler returns.
	if human {
		a.engine.sessions.Send(playerID, EventGuessResult, GuessResultPayload{
			Word:             word,
			Colors:           game.ColorStrings(eval),
			GuessNumber:      rec.Ordinal,
			IsCorrect:        correct,
			RemainingGuesses: game.MaxGuesses - rec.Ordinal,
		})
	}
	if opp := m.Opponent(playerID); opp != nil && !opp.IsSynthetic {
		a.engine.sessions.Send(opp.ID, EventOpponentGuess, MaskedGuess{
			Colors:      game.ColorStrings(eval),
			GuessNumber: rec.Ordinal,
		})
	}

	if !human && a.botState != nil {
		next := a.botState.Advance(word, game.Pattern(word, m.Target))
		a.botState = &next
	}

	if m.Status == game.StatusFinished {
		a.finish(m, reason)
		return
	}
	if a.botState != nil && len(m.Players[a.botID].Guesses) < game.MaxGuesses {
		a.ensureBotTick(bot.PacingDelay(a.botState.Difficulty, a.rng))
	}
}

func (a *actor) rejectGuess(human bool, playerID, code string) {
	if !human {
		a.log.Warn().Str("code", code).Msg("bot guess rejected")
		return
	}
	a.engine.sessions.Send(playerID, EventGuessInvalid, InvalidPayload{Error: code})
}

func (a *actor) internalError(human bool, playerID string, err error) {
	a.log.Error().Err(err).Msg("guess processing failed")
	if human {
		a.engine.sessions.Send(playerID, EventError, ErrorPayload{Message: ErrCodeInternal})
	}
}

// ------------------------------- bot ticks ---------------------------------

func (a *actor) handleBotTick() {
	if a.botState == nil {
		return
	}
	guess := bot.NextGuess(*a.botState, a.rng)
	a.handleGuess(a.botID, guess)
}

// ensureBotTick schedules the next bot guess unless one is already pending.
// A zero delay samples the difficulty's pacing window.
func (a *actor) ensureBotTick(delay time.Duration) {
	if a.botState == nil || a.finished || a.botTimer != nil {
		return
	}
	if delay <= 0 {
		delay = bot.PacingDelay(a.botState.Difficulty, a.rng)
	}
	a.botTimer = time.AfterFunc(delay, func() { a.post(botTickCmd{}) })
}

// ------------------------- forfeit and disconnects -------------------------

func (a *actor) handleForfeit(playerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	m, err := a.loadMatch(ctx)
	if err != nil {
		a.teardown(nil)
		return
	}
	if m.Status != game.StatusActive {
		return
	}
	slot := m.Slot(playerID)
	if slot == nil || slot.IsSynthetic {
		return
	}
	opp := m.Opponent(playerID)

	now := time.Now().UnixMilli()
	m.Replay = append(m.Replay, game.ReplayEvent{Type: "forfeit", PlayerID: playerID, Timestamp: now})
	m.WinnerID = opp.ID
	m.Status = game.StatusFinished
	m.EndedAt = now

	if err := a.saveMatch(ctx, m); err != nil {
		a.log.Error().Err(err).Msg("persist forfeit")
		return
	}
	a.log.Info().Str("player", playerID).Msg("forfeit")
	a.finish(m, ReasonForfeit)
}

func (a *actor) handleDisconnect(playerID string) {
	if a.botState != nil {
		// Bot matches never forfeit on human disconnect; the player may
		// rejoin within the state TTL.
		a.log.Debug().Str("player", playerID).Msg("disconnect during bot match, continuing")
		return
	}
	if _, pending := a.graces[playerID]; pending {
		return
	}
	a.graces[playerID] = time.AfterFunc(a.engine.grace, func() {
		a.post(graceExpiredCmd{playerID: playerID})
	})
	a.log.Debug().Str("player", playerID).Dur("grace", a.engine.grace).Msg("grace timer started")
}

func (a *actor) handleGraceExpired(playerID string) {
	delete(a.graces, playerID)
	if a.engine.sessions.IsConnected(playerID) {
		return
	}
	a.handleForfeit(playerID)
}

func (a *actor) cancelGrace(playerID string) {
	if t, ok := a.graces[playerID]; ok {
		t.Stop()
		delete(a.graces, playerID)
	}
}

// --------------------------------- rejoin ----------------------------------

func (a *actor) handleRejoin(playerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	m, err := a.loadMatch(ctx)
	if err != nil || m.Status != game.StatusActive {
		a.engine.sessions.Send(playerID, EventGameNotFound, NotFoundPayload{GameID: a.matchID})
		return
	}
	slot := m.Slot(playerID)
	if slot == nil || slot.IsSynthetic {
		a.engine.sessions.Send(playerID, EventGameNotFound, NotFoundPayload{GameID: a.matchID})
		return
	}
	a.cancelGrace(playerID)

	opp := m.Opponent(playerID)
	a.engine.sessions.Send(playerID, EventGameRejoined, RejoinedPayload{
		GameID:           m.ID,
		Guesses:          guessViews(slot),
		OpponentProgress: maskedViews(opp),
		Opponent:         OpponentInfo{Username: opp.DisplayName, Elo: opp.RatingAtStart, IsBot: opp.IsSynthetic},
	})

	if opp.IsSynthetic && len(opp.Guesses) < game.MaxGuesses {
		a.ensureBotTick(0)
	}
	a.log.Info().Str("player", playerID).Msg("rejoined")
}

// ------------------------------ termination --------------------------------

// finish commits ratings and emits game:end to each human player. A rating
// commit failure still reports the match as finished, with a zero delta.
func (a *actor) finish(m *game.Match, reason string) {
	a.cancelTimers()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	deltas, err := a.engine.ratings.CommitMatch(ctx, m)
	if err != nil {
		a.log.Error().Err(err).Msg("rating commit failed")
		deltas = nil
	}

	var humanIDs []string
	for id, slot := range m.Players {
		if slot.IsSynthetic {
			continue
		}
		humanIDs = append(humanIDs, id)

		result := "draw"
		switch m.WinnerID {
		case "":
		case id:
			result = "win"
		default:
			result = "loss"
		}
		opp := m.Opponent(id)
		payload := EndPayload{
			GameID:     m.ID,
			Result:     result,
			Reason:     reason,
			TargetWord: m.Target,
			Opponent:   EndOpponent{Username: opp.DisplayName, Guesses: guessViews(opp)},
			MyGuesses:  guessViews(slot),
			NewElo:     slot.RatingAtStart,
		}
		if d, ok := deltas[id]; ok {
			payload.EloChange = d.Change()
			payload.NewElo = d.After
		}
		a.engine.sessions.Send(id, EventGameEnd, payload)
	}

	a.log.Info().Str("winner", m.WinnerID).Str("reason", reason).Msg("match finished")
	a.teardown(humanIDs)
}

// teardown retires the actor.
func (a *actor) teardown(humanIDs []string) {
	a.finished = true
	if humanIDs == nil {
		a.engine.mu.Lock()
		for id, mid := range a.engine.byPlayer {
			if mid == a.matchID {
				humanIDs = append(humanIDs, id)
			}
		}
		a.engine.mu.Unlock()
	}
	a.engine.release(a, humanIDs)
	a.stop()
}

func (a *actor) cancelTimers() {
	if a.botTimer != nil {
		a.botTimer.Stop()
		a.botTimer = nil
	}
	for id, t := range a.graces {
		t.Stop()
		delete(a.graces, id)
	}
}

// ------------------------------ store access -------------------------------

// loadMatch reads the match, retrying once on transient failure.
func (a *actor) loadMatch(ctx context.Context) (*game.Match, error) {
	m, err := a.engine.store.GetMatch(ctx, a.matchID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		m, err = a.engine.store.GetMatch(ctx, a.matchID)
	}
	return m, err
}

// saveMatch writes the match, retrying once on transient failure.
func (a *actor) saveMatch(ctx context.Context, m *game.Match) error {
	if err := a.engine.store.SaveMatch(ctx, m); err != nil {
		return a.engine.store.SaveMatch(ctx, m)
	}
	return nil
}

// claimWinner invokes the store's first-writer-wins primitive, retrying once.
func (a *actor) claimWinner(ctx context.Context, playerID string) (bool, error) {
	won, err := a.engine.store.TryClaimWinner(ctx, a.matchID, playerID)
	if err != nil {
		won, err = a.engine.store.TryClaimWinner(ctx, a.matchID, playerID)
	}
	return won, err
}
