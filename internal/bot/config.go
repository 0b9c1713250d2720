// internal/bot/config.go
//
// Difficulty configuration for the synthetic opponent.
//
// Each difficulty tunes how the guess selector behaves:
//   - TopN: size of the entropy-ranked shortlist a guess is drawn from.
//     Zero means no ranking at all (uniform pick from the pool).
//   - CommonFilter: restrict candidates to the curated common-word subset.
//   - EarliestSolve: the first ordinal at which the bot is allowed to play a
//     word that could be the solution.
//   - PacingMin/PacingMax: window for the human-like submission delay.
//   - Noise: amplitude of the random perturbation added to entropy scores.
//   - WasteChance: probability of deliberately playing an information-only
//     word instead of the selected guess.

package bot

import (
	"time"

	"github.com/harshbaid-13/WordArena/internal/game"
)

// Config is one difficulty's behavior profile.
type Config struct {
	TopN          int
	CommonFilter  bool
	EarliestSolve int
	PacingMin     time.Duration
	PacingMax     time.Duration
	Noise         float64
	WasteChance   float64
}

var configs = map[game.Difficulty]Config{
	game.DifficultyEasy: {
		TopN:          0,
		CommonFilter:  true,
		EarliestSolve: 4,
		PacingMin:     30 * time.Second,
		PacingMax:     35 * time.Second,
		Noise:         0.20,
		WasteChance:   0.20,
	},
	game.DifficultyMedium: {
		TopN:          20,
		CommonFilter:  true,
		EarliestSolve: 3,
		PacingMin:     22 * time.Second,
		PacingMax:     30 * time.Second,
		Noise:         0.10,
		WasteChance:   0.10,
	},
	game.DifficultyHard: {
		TopN:          5,
		CommonFilter:  false,
		EarliestSolve: 2,
		PacingMin:     18 * time.Second,
		PacingMax:     22 * time.Second,
		Noise:         0.05,
		WasteChance:   0,
	},
	game.DifficultyImpossible: {
		TopN:          1,
		CommonFilter:  false,
		EarliestSolve: 1,
		PacingMin:     10 * time.Second,
		PacingMax:     20 * time.Second,
		Noise:         0,
		WasteChance:   0,
	},
}

// ConfigFor returns the behavior profile for a difficulty.
// Unknown difficulties fall back to medium.
func ConfigFor(d game.Difficulty) Config {
	if cfg, ok := configs[d]; ok {
		return cfg
	}
	return configs[game.DifficultyMedium]
}
