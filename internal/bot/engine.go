// internal/bot/engine.go
//
// Guess selection for the synthetic opponent.
//
// The selector is difficulty-parameterized (see config.go) and runs in five
// stages: opener shortcut, common-word filtering, endgame shortcut,
// entropy-ranked shortlist, and waste-word substitution. The caller owns the
// *rand.Rand; each match actor seeds its own.

package bot

import (
	"math/rand"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/harshbaid-13/WordArena/internal/game"
	"github.com/harshbaid-13/WordArena/internal/words"
)

// samplePoolSize bounds how many extra valid guesses are mixed into the
// entropy pool for diversity.
const samplePoolSize = 500

// wastePoolSize bounds the shortlist a waste word is sampled from.
const wastePoolSize = 50

type scoredWord struct {
	word  string
	score float64
}

// NextGuess selects the synthetic opponent's next guess for state s.
// Every returned word is a member of the valid-guess list.
func NextGuess(s State, rng *rand.Rand) string {
	cfg := ConfigFor(s.Difficulty)
	n := s.GuessCount + 1

	// Opening book: easy plays a random common word, everyone else an opener.
	if n == 1 && len(s.Constraints) == 0 {
		if s.Difficulty == game.DifficultyEasy {
			if common := words.CommonWords(); len(common) > 0 {
				return common[rng.Intn(len(common))]
			}
		}
		return words.Openers[rng.Intn(len(words.Openers))]
	}

	candidates := s.Remaining
	if cfg.CommonFilter {
		if filtered := filterCommon(candidates); len(filtered) > 0 {
			candidates = filtered
		}
	}

	// Endgame shortcut once solving is permitted.
	if n >= cfg.EarliestSolve {
		switch len(candidates) {
		case 1:
			return candidates[0]
		case 2:
			return candidates[rng.Intn(2)]
		}
	}

	chosen := pickByEntropy(s, candidates, cfg, rng)

	// Waste substitution keeps the bot from solving too early and adds
	// human-looking exploration guesses.
	if (n < cfg.EarliestSolve && contains(s.Remaining, chosen)) || (cfg.WasteChance > 0 && rng.Float64() < cfg.WasteChance) {
		if w := wasteWord(s.Constraints, rng); w != "" {
			return w
		}
	}
	return chosen
}

// pickByEntropy builds the candidate pool, scores it, and draws from the
// difficulty's shortlist.
func pickByEntropy(s State, candidates []string, cfg Config, rng *rand.Rand) string {
	pool := lo.Uniq(append(append([]string{}, candidates...), lo.Samples(words.ValidGuesses(), samplePoolSize)...))
	if len(pool) == 0 {
		valid := words.ValidGuesses()
		return valid[rng.Intn(len(valid))]
	}

	// Easy skips the ranking entirely: uniform pick, common words first.
	if cfg.TopN <= 0 {
		if cfg.CommonFilter {
			if common := filterCommon(pool); len(common) > 0 {
				return common[rng.Intn(len(common))]
			}
		}
		return pool[rng.Intn(len(pool))]
	}

	scored := make([]scoredWord, 0, len(pool))
	for _, w := range pool {
		score := EntropyScore(w, s.Remaining)
		if cfg.Noise > 0 {
			score += cfg.Noise * (rng.Float64() - 0.5)
		}
		scored = append(scored, scoredWord{word: w, score: score})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	top := scored
	if len(top) > cfg.TopN {
		top = top[:cfg.TopN]
	}
	if cfg.TopN == 1 {
		return top[0].word
	}

	// Post-hoc common preference inside the shortlist.
	if cfg.CommonFilter {
		commonTop := make([]scoredWord, 0, len(top))
		for _, sw := range top {
			if words.IsCommon(sw.word) {
				commonTop = append(commonTop, sw)
			}
		}
		if len(commonTop) > 0 {
			top = commonTop
		}
	}
	return top[rng.Intn(len(top))].word
}

// wasteWord picks an information-only guess: a constraint-consistent valid
// word with many distinct letters. Returns "" if none qualifies.
func wasteWord(cs []Constraint, rng *rand.Rand) string {
	var pool []string
	for _, w := range words.ValidGuesses() {
		if Consistent(w, cs) {
			pool = append(pool, w)
		}
	}
	if len(pool) == 0 {
		return ""
	}
	sort.Slice(pool, func(i, j int) bool { return distinctLetters(pool[i]) > distinctLetters(pool[j]) })
	if len(pool) > wastePoolSize {
		pool = pool[:wastePoolSize]
	}
	return pool[rng.Intn(len(pool))]
}

// PacingDelay samples the human-like delay before the bot submits.
func PacingDelay(d game.Difficulty, rng *rand.Rand) time.Duration {
	cfg := ConfigFor(d)
	window := cfg.PacingMax - cfg.PacingMin
	if window <= 0 {
		return cfg.PacingMin
	}
	return cfg.PacingMin + time.Duration(rng.Int63n(int64(window)))
}

func filterCommon(list []string) []string {
	var out []string
	for _, w := range list {
		if words.IsCommon(w) {
			out = append(out, w)
		}
	}
	return out
}

func contains(list []string, w string) bool {
	for _, x := range list {
		if x == w {
			return true
		}
	}
	return false
}
