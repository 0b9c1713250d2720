// internal/bot/identities.go
//
// Rating-based difficulty selection and synthetic player identities.

package bot

import (
	"math/rand"

	"github.com/harshbaid-13/WordArena/internal/game"
)

// botNames are display names assigned to synthetic opponents.
var botNames = []string{
	"Lexa", "Verba", "Quill", "Glyph", "Sylla",
	"Vowel", "Ditto", "Rebus", "Tilde", "Cipher",
}

// DifficultyForRating maps a human player's rating to the difficulty of the
// synthetic opponent spawned against them.
func DifficultyForRating(rating int) game.Difficulty {
	switch {
	case rating < 900:
		return game.DifficultyEasy
	case rating < 1200:
		return game.DifficultyMedium
	case rating < 1500:
		return game.DifficultyHard
	default:
		return game.DifficultyImpossible
	}
}

// RatingFor returns the fixed rating a synthetic opponent plays at.
func RatingFor(d game.Difficulty) int {
	switch d {
	case game.DifficultyEasy:
		return 800
	case game.DifficultyMedium:
		return 1100
	case game.DifficultyHard:
		return 1400
	default:
		return 1800
	}
}

// DisplayName picks a synthetic display name.
func DisplayName(rng *rand.Rand) string {
	return botNames[rng.Intn(len(botNames))]
}
