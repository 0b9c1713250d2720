// internal/rating/service.go
//
// Transactional rating commit.
//
// CommitMatch derives new ratings exclusively from the RatingAtStart values
// captured at match creation, then applies the whole result (both user rows
// and the match history row) in a single transaction: either every mutation
// lands or none does.
//
// Human vs human: both ratings move with K=32. Human vs synthetic: only the
// human's rating moves, with K=16; the history row records the bot side with a
// NULL id and its fixed table rating as both pre and post. In a draw the
// history row carries both players' pre/post pairs with NULL winner/loser ids.

package rating

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/harshbaid-13/WordArena/internal/game"
)

// Delta is the rating movement for one human player.
type Delta struct {
	PlayerID string
	Before   int
	After    int
}

// Change returns After − Before.
func (d Delta) Change() int { return d.After - d.Before }

// Service commits match results to the persistent store.
type Service struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewService constructs a Service writing through db.
func NewService(db *sql.DB, log zerolog.Logger) *Service {
	return &Service{db: db, log: log.With().Str("component", "rating").Logger()}
}

// CommitMatch applies the rating update for a finished match and returns the
// per-player deltas keyed by player id. Synthetic players get no entry.
func (s *Service) CommitMatch(ctx context.Context, m *game.Match) (map[string]Delta, error) {
	if m.Status != game.StatusFinished {
		return nil, fmt.Errorf("rating: match %s not finished", m.ID)
	}

	replay, err := json.Marshal(m.Replay)
	if err != nil {
		return nil, fmt.Errorf("rating: marshal replay: %w", err)
	}

	botSlot := m.BotSlot()
	if botSlot != nil {
		return s.commitBotMatch(ctx, m, botSlot, replay)
	}
	return s.commitHumanMatch(ctx, m, replay)
}

func (s *Service) commitHumanMatch(ctx context.Context, m *game.Match, replay []byte) (map[string]Delta, error) {
	var a, b *game.PlayerSlot
	for _, slot := range m.Players {
		if a == nil {
			a = slot
		} else {
			b = slot
		}
	}

	var winner, loser *game.PlayerSlot
	draw := m.WinnerID == ""
	if !draw {
		winner = m.Players[m.WinnerID]
		loser = m.Opponent(m.WinnerID)
	} else {
		// Column assignment only; neither id is recorded as winner or loser.
		winner, loser = a, b
	}

	sw, sl := ScoreWin, ScoreLoss
	if draw {
		sw, sl = ScoreDraw, ScoreDraw
	}
	deltas := map[string]Delta{
		winner.ID: {PlayerID: winner.ID, Before: winner.RatingAtStart, After: Next(winner.RatingAtStart, loser.RatingAtStart, sw, KBase)},
		loser.ID:  {PlayerID: loser.ID, Before: loser.RatingAtStart, After: Next(loser.RatingAtStart, winner.RatingAtStart, sl, KBase)},
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("rating: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if draw {
		for _, d := range deltas {
			if err := bumpUser(tx, d.PlayerID, d.After, "games_played = games_played + 1"); err != nil {
				return nil, err
			}
		}
	} else {
		if err := bumpUser(tx, winner.ID, deltas[winner.ID].After, "wins = wins + 1, games_played = games_played + 1"); err != nil {
			return nil, err
		}
		if err := bumpUser(tx, loser.ID, deltas[loser.ID].After, "losses = losses + 1, games_played = games_played + 1"); err != nil {
			return nil, err
		}
	}

	var winnerID, loserID any
	if !draw {
		winnerID, loserID = winner.ID, loser.ID
	}
	if err := insertHistory(tx, m, replay, winnerID, loserID,
		deltas[winner.ID].Before, deltas[winner.ID].After,
		deltas[loser.ID].Before, deltas[loser.ID].After,
		false, ""); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("rating: commit: %w", err)
	}
	s.log.Debug().Str("match", m.ID).Str("winner", m.WinnerID).Msg("ratings committed")
	return deltas, nil
}

func (s *Service) commitBotMatch(ctx context.Context, m *game.Match, botSlot *game.PlayerSlot, replay []byte) (map[string]Delta, error) {
	human := m.Opponent(botSlot.ID)
	botRating := botSlot.RatingAtStart

	var score Score
	var counters string
	switch m.WinnerID {
	case human.ID:
		score, counters = ScoreWin, "wins = wins + 1, games_played = games_played + 1"
	case "":
		score, counters = ScoreDraw, "games_played = games_played + 1"
	default:
		score, counters = ScoreLoss, "losses = losses + 1, games_played = games_played + 1"
	}

	delta := Delta{
		PlayerID: human.ID,
		Before:   human.RatingAtStart,
		After:    Next(human.RatingAtStart, botRating, score, KBot),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("rating: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := bumpUser(tx, human.ID, delta.After, counters); err != nil {
		return nil, err
	}

	// The bot side is recorded with a NULL id and its fixed rating as both
	// pre and post.
	var winnerID, loserID any
	wBefore, wAfter, lBefore, lAfter := delta.Before, delta.After, botRating, botRating
	switch m.WinnerID {
	case human.ID:
		winnerID = human.ID
	case "":
		// draw: human stays in the winner columns, neither id is set
	default:
		loserID = human.ID
		wBefore, wAfter, lBefore, lAfter = botRating, botRating, delta.Before, delta.After
	}
	if err := insertHistory(tx, m, replay, winnerID, loserID,
		wBefore, wAfter, lBefore, lAfter, true, botSlot.SyntheticDifficulty); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("rating: commit: %w", err)
	}
	s.log.Debug().Str("match", m.ID).Int("after", delta.After).Msg("bot match rating committed")
	return map[string]Delta{human.ID: delta}, nil
}

func bumpUser(tx *sql.Tx, id string, elo int, counters string) error {
	res, err := tx.Exec(`UPDATE users SET elo=?, `+counters+` WHERE id=?`, elo, id)
	if err != nil {
		return fmt.Errorf("rating: update user %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rating: user %s not found", id)
	}
	return nil
}

func insertHistory(tx *sql.Tx, m *game.Match, replay []byte,
	winnerID, loserID any, wBefore, wAfter, lBefore, lAfter int,
	isBot bool, botDifficulty game.Difficulty) error {
	var diff any
	if isBot {
		diff = string(botDifficulty)
	}
	_, err := tx.Exec(`INSERT INTO matches
		(id, winner_id, loser_id, winner_elo_before, winner_elo_after,
		 loser_elo_before, loser_elo_after, target_word, replay_log,
		 duration_ms, is_bot_match, bot_difficulty, played_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, winnerID, loserID, wBefore, wAfter, lBefore, lAfter,
		m.Target, string(replay), m.EndedAt-m.StartedAt, isBot, diff,
		time.UnixMilli(m.EndedAt).UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("rating: insert match row: %w", err)
	}
	return nil
}
