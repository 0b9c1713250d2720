// internal/bot/entropy.go
//
// Shannon entropy scoring for candidate guesses.
//
// A candidate partitions the remaining answers by the pattern each answer
// would produce against it; the entropy of that partition is the expected
// information gain of playing the candidate. Higher is better.

package bot

import (
	"math"

	"github.com/harshbaid-13/WordArena/internal/game"
)

// EntropyScore computes H(g) = −Σ (|bucket|/|R|)·log₂(|bucket|/|R|) over the
// pattern partition of remaining induced by candidate g.
func EntropyScore(g string, remaining []string) float64 {
	if len(remaining) == 0 {
		return 0
	}
	buckets := make(map[string]int)
	for _, ans := range remaining {
		buckets[game.Pattern(g, ans)]++
	}
	total := float64(len(remaining))
	var h float64
	for _, n := range buckets {
		p := float64(n) / total
		h -= p * math.Log2(p)
	}
	return h
}

// distinctLetters counts the unique letters in w.
func distinctLetters(w string) int {
	var seen [26]bool
	n := 0
	for i := 0; i < len(w); i++ {
		j := w[i] - 'A'
		if j < 26 && !seen[j] {
			seen[j] = true
			n++
		}
	}
	return n
}
