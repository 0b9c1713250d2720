// internal/game/evaluate.go
//
// Guess evaluation for the duel engine.
// Responsibilities:
//   - Score guesses using the classic two-pass algorithm.
//   - Encode evaluations as compact pattern strings ("G"/"Y"/"X") for the
//     synthetic opponent's constraint matching.
//
// Notes:
//   - Words are expected uppercase; callers normalize at the boundary.
//   - The two-pass scheme handles duplicate letters correctly: a letter is
//     marked non-grey at most min(countInGuess, countInTarget) times.

package game

// Evaluate scores a guess against the target word.
//
// Pass 1:
//   - Mark exact matches green and consume those target positions.
//
// Pass 2:
//   - For each non-green guess letter: if there is remaining count for that
//     letter, mark yellow and decrement the count; otherwise grey.
func Evaluate(guess, target string) []Color {
	n := len(guess)
	res := make([]Color, n)

	// Letter frequency for the non-green target positions (A–Z).
	var counts [26]int

	for i := 0; i < n; i++ {
		if guess[i] == target[i] {
			res[i] = ColorGreen
		} else {
			counts[target[i]-'A']++
		}
	}

	for i := 0; i < n; i++ {
		if res[i] == ColorGreen {
			continue
		}
		j := int(guess[i] - 'A')
		if j >= 0 && j < 26 && counts[j] > 0 {
			res[i] = ColorYellow
			counts[j]--
		} else {
			res[i] = ColorGrey
		}
	}
	return res
}

// AllGreen reports whether every position is green.
func AllGreen(eval []Color) bool {
	for _, c := range eval {
		if c != ColorGreen {
			return false
		}
	}
	return true
}

// Pattern returns the evaluation of guess against target flattened to a
// five-character string over {G,Y,X}.
func Pattern(guess, target string) string {
	eval := Evaluate(guess, target)
	buf := make([]byte, len(eval))
	for i, c := range eval {
		switch c {
		case ColorGreen:
			buf[i] = 'G'
		case ColorYellow:
			buf[i] = 'Y'
		default:
			buf[i] = 'X'
		}
	}
	return string(buf)
}

// ColorStrings converts an evaluation to its wire literals.
func ColorStrings(eval []Color) []string {
	out := make([]string, len(eval))
	for i, c := range eval {
		out[i] = c.String()
	}
	return out
}
