// internal/bot/state.go
//
// Synthetic opponent game state.
//
// State is a value updated by pure transitions: the match actor owns the
// current value and replaces it after each guess. No locks are needed because
// a single worker drives each match.

package bot

import (
	"github.com/harshbaid-13/WordArena/internal/game"
	"github.com/harshbaid-13/WordArena/internal/words"
)

// Constraint is one observed (guess, pattern) pair.
type Constraint struct {
	Guess   string
	Pattern string // five chars over {G,Y,X}
}

// State tracks what the synthetic opponent knows mid-match.
type State struct {
	Difficulty  game.Difficulty
	Target      string
	Remaining   []string // answers still consistent with all constraints
	Constraints []Constraint
	GuessCount  int
}

// NewState builds the initial state for a match against target.
func NewState(d game.Difficulty, target string) State {
	return State{
		Difficulty: d,
		Target:     target,
		Remaining:  words.Answers(),
	}
}

// Advance returns the state after observing the pattern for guess:
// the constraint is appended and the remaining answers are filtered
// through it.
func (s State) Advance(guess, pattern string) State {
	next := State{
		Difficulty:  s.Difficulty,
		Target:      s.Target,
		Constraints: append(append([]Constraint{}, s.Constraints...), Constraint{Guess: guess, Pattern: pattern}),
		GuessCount:  s.GuessCount + 1,
	}
	next.Remaining = make([]string, 0, len(s.Remaining))
	for _, w := range s.Remaining {
		if game.Pattern(guess, w) == pattern {
			next.Remaining = append(next.Remaining, w)
		}
	}
	return next
}

// Consistent reports whether answer matches every constraint in cs.
func Consistent(answer string, cs []Constraint) bool {
	for _, c := range cs {
		if game.Pattern(c.Guess, answer) != c.Pattern {
			return false
		}
	}
	return true
}
