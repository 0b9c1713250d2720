// internal/words/words.go
//
// Word list management for the duel server.
//
// Responsibilities:
//   - Load answer and valid-guess lists from environment-provided JSON files
//     or fall back to embedded defaults.
//   - Maintain sets for quick lookups (answers only, answers∪guesses).
//   - Supply utility functions like RandomAnswer, IsValidGuess, IsAnswer.
//   - Expose the curated common-word subset and the opener set used by the
//     synthetic opponent.
//
// Word lists:
//   - "answers": canonical solutions (exactly 5 letters).
//   - "valid guesses": acceptable guesses (always includes answers).
//   - "common": curated human-friendly subset of valid guesses.
//
// Initialization behavior (Init):
//   1. If WORDS_ANSWERS_FILE and WORDS_ALLOWED_FILE are both set,
//      load answers from the first and valid guesses from the second.
//   2. If only WORDS_ALLOWED_FILE is set, use it for both.
//   3. If neither is set, fall back to the embedded defaults.
//
// Environment variables:
//   WORDS_ANSWERS_FILE=/path/to/answers.json
//   WORDS_ALLOWED_FILE=/path/to/valid_guesses.json
//
// Constraints:
//   • Words must be 5 alphabetic letters.
//   • Lists are stored uppercase in memory; lookups are case-insensitive.
//   • Initialization is run once (sync.Once).

package words

import (
	"crypto/rand"
	_ "embed"
	"encoding/json"
	"errors"
	"math/big"
	"os"
	"strings"
	"sync"
)

//go:embed answers.json
var embeddedAnswers []byte

//go:embed valid_guesses.json
var embeddedGuesses []byte

//go:embed common_words.json
var embeddedCommon []byte

// Openers are precomputed high-entropy first guesses used by the synthetic
// opponent on non-easy difficulties.
var Openers = []string{"SALET", "CRANE", "SLATE", "TRACE", "CRATE"}

var (
	initOnce   sync.Once
	answers    []string            // canonical answers, uppercase
	validList  []string            // answers ∪ guesses, uppercase
	common     []string            // curated common subset
	validSet   map[string]struct{} // answers ∪ guesses
	answersSet map[string]struct{} // answers only
	commonSet  map[string]struct{}
	initialErr error
)

// Init loads word lists exactly once.
// Returns an error if the answers list ends up empty.
func Init() error {
	initOnce.Do(func() {
		var ansList, allowList []string

		answersPath := os.Getenv("WORDS_ANSWERS_FILE")
		allowedPath := os.Getenv("WORDS_ALLOWED_FILE")

		switch {
		case answersPath != "" && allowedPath != "":
			var err error
			ansList, err = readWordFile(answersPath)
			if err != nil {
				initialErr = err
				return
			}
			allowList, err = readWordFile(allowedPath)
			if err != nil {
				initialErr = err
				return
			}

		case answersPath == "" && allowedPath != "":
			var err error
			allowList, err = readWordFile(allowedPath)
			if err != nil {
				initialErr = err
				return
			}
			ansList = allowList

		default:
			ansList = parseJSONList(embeddedAnswers)
			allowList = parseJSONList(embeddedGuesses)
			if len(allowList) == 0 {
				allowList = ansList
			}
		}

		answers = ansList
		answersSet = toSet(ansList)

		// Valid guesses always include every answer.
		validSet = toSet(ansList)
		for _, w := range allowList {
			validSet[w] = struct{}{}
		}
		validList = make([]string, 0, len(validSet))
		for w := range validSet {
			validList = append(validList, w)
		}

		common = parseJSONList(embeddedCommon)
		commonSet = toSet(common)

		if len(answers) == 0 {
			initialErr = errors.New("words: answers list is empty")
		}
	})
	return initialErr
}

// readWordFile loads a JSON array of words from a file,
// uppercases, and keeps only valid 5-letter alphabetic words.
func readWordFile(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := parseJSONList(raw)
	if len(out) == 0 {
		return nil, errors.New("words: no valid words in " + path)
	}
	return out, nil
}

// parseJSONList decodes a JSON array of strings into a slice of
// uppercase 5-letter words, dropping anything malformed.
func parseJSONList(raw []byte) []string {
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	var out []string
	for _, w := range list {
		w = strings.ToUpper(strings.TrimSpace(w))
		if len(w) == 5 && isAlpha(w) {
			out = append(out, w)
		}
	}
	return out
}

// toSet converts a list of strings into a lookup set.
func toSet(list []string) map[string]struct{} {
	m := make(map[string]struct{}, len(list))
	for _, w := range list {
		m[w] = struct{}{}
	}
	return m
}

// isAlpha reports whether s is all uppercase ASCII letters.
func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// RandomAnswer returns a cryptographically random answer from the answers list.
// If answers are not loaded yet or empty, falls back to "CRANE".
func RandomAnswer() string {
	if len(answers) == 0 {
		return "CRANE"
	}
	nBig, _ := rand.Int(rand.Reader, big.NewInt(int64(len(answers))))
	return answers[nBig.Int64()]
}

// IsValidGuess reports whether w is a valid guess (answers ∪ guesses).
func IsValidGuess(w string) bool {
	_, ok := validSet[strings.ToUpper(w)]
	return ok
}

// IsAnswer reports whether w is an answer word.
func IsAnswer(w string) bool {
	_, ok := answersSet[strings.ToUpper(w)]
	return ok
}

// IsCommon reports whether w belongs to the curated common subset.
func IsCommon(w string) bool {
	_, ok := commonSet[strings.ToUpper(w)]
	return ok
}

// Answers returns a copy of the answers list.
func Answers() []string {
	out := make([]string, len(answers))
	copy(out, answers)
	return out
}

// ValidGuesses returns a copy of the full valid-guess list.
func ValidGuesses() []string {
	out := make([]string, len(validList))
	copy(out, validList)
	return out
}

// CommonWords returns a copy of the common-word subset.
func CommonWords() []string {
	out := make([]string, len(common))
	copy(out, common)
	return out
}

// Stats returns counts of loaded words: (answers, valid guesses).
func Stats() (answersCount int, validCount int) {
	return len(answers), len(validSet)
}
