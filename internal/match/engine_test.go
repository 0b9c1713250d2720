package match

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/harshbaid-13/WordArena/internal/game"
	"github.com/harshbaid-13/WordArena/internal/rating"
	"github.com/harshbaid-13/WordArena/internal/session"
	"github.com/harshbaid-13/WordArena/internal/store"
	"github.com/harshbaid-13/WordArena/internal/words"
)

type recorded struct {
	event   string
	payload any
}

type fakeHandle struct {
	mu     sync.Mutex
	events []recorded
}

func (f *fakeHandle) Send(event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recorded{event: event, payload: payload})
}

// last returns the most recent payload for event.
func (f *fakeHandle) last(event string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].event == event {
			return f.events[i].payload, true
		}
	}
	return nil, false
}

func (f *fakeHandle) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.event == event {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	schema := `
	CREATE TABLE users (
		id TEXT PRIMARY KEY, username TEXT NOT NULL UNIQUE, password_hash TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT '', elo INTEGER NOT NULL DEFAULT 1200,
		wins INTEGER NOT NULL DEFAULT 0, losses INTEGER NOT NULL DEFAULT 0,
		games_played INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE matches (
		id TEXT PRIMARY KEY, winner_id TEXT, loser_id TEXT,
		winner_elo_before INTEGER NOT NULL, winner_elo_after INTEGER NOT NULL,
		loser_elo_before INTEGER NOT NULL, loser_elo_after INTEGER NOT NULL,
		target_word TEXT NOT NULL, replay_log TEXT NOT NULL, duration_ms INTEGER NOT NULL,
		is_bot_match INTEGER NOT NULL DEFAULT 0, bot_difficulty TEXT, played_at TEXT NOT NULL
	);
	INSERT INTO users (id, username) VALUES ('p1', 'alice'), ('p2', 'bob');`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

type fixture struct {
	engine   *Engine
	store    store.Store
	sessions *session.Registry
	h1, h2   *fakeHandle
}

func newFixture(t *testing.T, grace time.Duration) *fixture {
	t.Helper()
	if err := words.Init(); err != nil {
		t.Fatalf("words.Init: %v", err)
	}
	st := store.NewMemoryStore(time.Minute)
	sessions := session.NewRegistry()
	ratings := rating.NewService(testDB(t), zerolog.Nop())
	engine := NewEngine(st, sessions, ratings, grace, zerolog.Nop())
	t.Cleanup(engine.Shutdown)

	f := &fixture{engine: engine, store: st, sessions: sessions, h1: &fakeHandle{}, h2: &fakeHandle{}}
	sessions.Register("p1", f.h1)
	sessions.Register("p2", f.h2)
	return f
}

func (f *fixture) startMatch(t *testing.T) (string, string) {
	t.Helper()
	id, err := f.engine.CreateHumanMatch(context.Background(),
		Participant{ID: "p1", DisplayName: "alice", Rating: 1200},
		Participant{ID: "p2", DisplayName: "bob", Rating: 1200})
	if err != nil {
		t.Fatalf("CreateHumanMatch: %v", err)
	}
	m, err := f.store.GetMatch(context.Background(), id)
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	return id, m.Target
}

// wrongWords returns n valid answers that are not the target.
func wrongWords(t *testing.T, target string, n int) []string {
	t.Helper()
	var out []string
	for _, w := range words.Answers() {
		if w != target {
			out = append(out, w)
		}
		if len(out) == n {
			return out
		}
	}
	t.Fatal("not enough words")
	return nil
}

func TestWinFlowAndRatings(t *testing.T) {
	f := newFixture(t, time.Second)
	id, target := f.startMatch(t)

	if f.h1.count(EventGameStart) != 1 || f.h2.count(EventGameStart) != 1 {
		t.Fatal("both players should receive game:start")
	}

	f.engine.SubmitGuess(id, "p1", target)
	waitFor(t, "game:end", func() bool { return f.h1.count(EventGameEnd) == 1 && f.h2.count(EventGameEnd) == 1 })

	p, _ := f.h1.last(EventGuessResult)
	res := p.(GuessResultPayload)
	if !res.IsCorrect || res.GuessNumber != 1 || res.RemainingGuesses != 5 {
		t.Errorf("guess result = %+v", res)
	}
	for _, c := range res.Colors {
		if c != "green" {
			t.Errorf("winning guess color %q, want green", c)
		}
	}

	p, _ = f.h1.last(EventGameEnd)
	end1 := p.(EndPayload)
	if end1.Result != "win" || end1.Reason != ReasonSolved || end1.TargetWord != target {
		t.Errorf("winner end = %+v", end1)
	}
	if end1.NewElo != 1216 || end1.EloChange != 16 {
		t.Errorf("winner rating = (%d, %+d), want (1216, +16)", end1.NewElo, end1.EloChange)
	}

	p, _ = f.h2.last(EventGameEnd)
	end2 := p.(EndPayload)
	if end2.Result != "loss" || end2.NewElo != 1184 || end2.EloChange != -16 {
		t.Errorf("loser end = %+v", end2)
	}

	m, err := f.store.GetMatch(context.Background(), id)
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	if m.Status != game.StatusFinished || m.WinnerID != "p1" || m.EndedAt < m.StartedAt {
		t.Errorf("stored match = status=%s winner=%s", m.Status, m.WinnerID)
	}
}

func TestGuessAfterFinishRejected(t *testing.T) {
	f := newFixture(t, time.Second)
	id, target := f.startMatch(t)

	f.engine.SubmitGuess(id, "p1", target)
	waitFor(t, "game:end", func() bool { return f.h1.count(EventGameEnd) == 1 })

	f.engine.SubmitGuess(id, "p2", target)
	waitFor(t, "rejection", func() bool { return f.h2.count(EventGuessInvalid) == 1 })
	p, _ := f.h2.last(EventGuessInvalid)
	if p.(InvalidPayload).Error != ErrCodeMatchNotActive {
		t.Errorf("code = %s, want MATCH_NOT_ACTIVE", p.(InvalidPayload).Error)
	}
}

func TestInvalidGuessesLeaveStateUntouched(t *testing.T) {
	f := newFixture(t, time.Second)
	id, _ := f.startMatch(t)

	cases := []struct {
		player string
		word   string
		code   string
	}{
		{"p1", "ZZZZZ", ErrCodeInvalidGuess},
		{"p1", "CAT", ErrCodeInvalidGuess},
		{"px", "CRANE", ErrCodeNotYourMatch},
	}
	f.sessions.Register("px", &fakeHandle{})
	for _, c := range cases {
		f.engine.SubmitGuess(id, c.player, c.word)
	}
	waitFor(t, "rejections", func() bool { return f.h1.count(EventGuessInvalid) == 2 })

	p, _ := f.h1.last(EventGuessInvalid)
	if p.(InvalidPayload).Error != ErrCodeInvalidGuess {
		t.Errorf("code = %s", p.(InvalidPayload).Error)
	}

	m, _ := f.store.GetMatch(context.Background(), id)
	if len(m.Players["p1"].Guesses) != 0 || len(m.Replay) != 0 {
		t.Error("rejected guesses must not mutate state")
	}
}

func TestQuotaExhaustedRejected(t *testing.T) {
	f := newFixture(t, time.Second)
	id, target := f.startMatch(t)

	for _, w := range wrongWords(t, target, 6) {
		f.engine.SubmitGuess(id, "p1", w)
	}
	waitFor(t, "six results", func() bool { return f.h1.count(EventGuessResult) == 6 })

	f.engine.SubmitGuess(id, "p1", wrongWords(t, target, 7)[6])
	waitFor(t, "quota rejection", func() bool { return f.h1.count(EventGuessInvalid) == 1 })
	p, _ := f.h1.last(EventGuessInvalid)
	if p.(InvalidPayload).Error != ErrCodeNoGuessesRemaining {
		t.Errorf("code = %s, want NO_GUESSES_REMAINING", p.(InvalidPayload).Error)
	}
}

func TestDraw(t *testing.T) {
	f := newFixture(t, time.Second)
	id, target := f.startMatch(t)

	misses := wrongWords(t, target, 6)
	for _, w := range misses {
		f.engine.SubmitGuess(id, "p1", w)
	}
	for _, w := range misses {
		f.engine.SubmitGuess(id, "p2", w)
	}
	waitFor(t, "draw end", func() bool { return f.h1.count(EventGameEnd) == 1 && f.h2.count(EventGameEnd) == 1 })

	for _, h := range []*fakeHandle{f.h1, f.h2} {
		p, _ := h.last(EventGameEnd)
		end := p.(EndPayload)
		if end.Result != "draw" || end.Reason != ReasonExhausted {
			t.Errorf("end = %+v, want draw/exhausted", end)
		}
		if end.EloChange != 0 || end.NewElo != 1200 {
			t.Errorf("draw rating = (%d, %+d), want (1200, 0)", end.NewElo, end.EloChange)
		}
	}

	m, _ := f.store.GetMatch(context.Background(), id)
	if m.WinnerID != "" {
		t.Errorf("draw stored winner %q", m.WinnerID)
	}
}

func TestOpponentViewIsMasked(t *testing.T) {
	f := newFixture(t, time.Second)
	id, target := f.startMatch(t)

	guess := "SLATE"
	if target == guess {
		guess = "CRANE"
	}
	f.engine.SubmitGuess(id, "p1", guess)
	waitFor(t, "masked event", func() bool { return f.h2.count(EventOpponentGuess) == 1 })

	p, _ := f.h2.last(EventOpponentGuess)
	masked := p.(MaskedGuess)
	if len(masked.Colors) != 5 || masked.GuessNumber != 1 {
		t.Errorf("masked = %+v", masked)
	}
	raw, err := json.Marshal(masked)
	if err != nil {
		t.Fatalf("marshal masked: %v", err)
	}
	if strings.Contains(string(raw), guess) {
		t.Errorf("masked payload leaks the word: %s", raw)
	}
	for _, letter := range strings.Split(guess, "") {
		if strings.Contains(string(raw), `"`+letter+`"`) {
			t.Errorf("masked payload leaks letter %s: %s", letter, raw)
		}
	}
}

func TestWinClaimAdoption(t *testing.T) {
	f := newFixture(t, time.Second)
	id, target := f.startMatch(t)

	// Another process already claimed the win for p2.
	if ok, err := f.store.TryClaimWinner(context.Background(), id, "p2"); err != nil || !ok {
		t.Fatalf("pre-claim failed: %v %v", ok, err)
	}

	f.engine.SubmitGuess(id, "p1", target)
	waitFor(t, "game:end", func() bool { return f.h1.count(EventGameEnd) == 1 })

	m, _ := f.store.GetMatch(context.Background(), id)
	if m.WinnerID != "p2" {
		t.Errorf("winner = %s, want race winner p2", m.WinnerID)
	}
	// The losing racer's guess is still a legal, recorded guess.
	if len(m.Players["p1"].Guesses) != 1 {
		t.Error("race loser's guess should be recorded")
	}
	p, _ := f.h1.last(EventGameEnd)
	if p.(EndPayload).Result != "loss" {
		t.Errorf("race loser result = %s, want loss", p.(EndPayload).Result)
	}
}

func TestForfeit(t *testing.T) {
	f := newFixture(t, time.Second)
	id, _ := f.startMatch(t)

	f.engine.Forfeit(id, "p1")
	waitFor(t, "forfeit end", func() bool { return f.h2.count(EventGameEnd) == 1 })

	p, _ := f.h2.last(EventGameEnd)
	end := p.(EndPayload)
	if end.Result != "win" || end.Reason != ReasonForfeit {
		t.Errorf("opponent end = %+v", end)
	}

	m, _ := f.store.GetMatch(context.Background(), id)
	if m.WinnerID != "p2" {
		t.Errorf("winner = %s, want p2", m.WinnerID)
	}
	var sawForfeit bool
	for _, ev := range m.Replay {
		if ev.Type == "forfeit" && ev.PlayerID == "p1" {
			sawForfeit = true
		}
	}
	if !sawForfeit {
		t.Error("replay log should record the forfeit")
	}
}

func TestDisconnectGraceForfeit(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond)
	id, _ := f.startMatch(t)

	f.sessions.Unregister(f.h1)
	f.engine.PlayerDisconnected("p1")

	waitFor(t, "grace forfeit", func() bool { return f.h2.count(EventGameEnd) == 1 })
	m, _ := f.store.GetMatch(context.Background(), id)
	if m.WinnerID != "p2" {
		t.Errorf("winner = %s, want p2 by forfeit", m.WinnerID)
	}
}

func TestReconnectWithinGraceAvoidsForfeit(t *testing.T) {
	f := newFixture(t, 150*time.Millisecond)
	id, _ := f.startMatch(t)

	f.sessions.Unregister(f.h1)
	f.engine.PlayerDisconnected("p1")

	time.Sleep(50 * time.Millisecond)
	f.sessions.Register("p1", f.h1)
	f.engine.PlayerReconnected("p1")

	time.Sleep(300 * time.Millisecond)
	m, _ := f.store.GetMatch(context.Background(), id)
	if m.Status != game.StatusActive {
		t.Errorf("match status = %s, want active after reconnect", m.Status)
	}
	if f.h2.count(EventGameEnd) != 0 {
		t.Error("no game:end should have been sent")
	}
}

func TestRejoinReplaysMaskedHistory(t *testing.T) {
	f := newFixture(t, time.Second)
	id, target := f.startMatch(t)

	misses := wrongWords(t, target, 2)
	f.engine.SubmitGuess(id, "p1", misses[0])
	f.engine.SubmitGuess(id, "p2", misses[1])
	waitFor(t, "guesses", func() bool {
		return f.h1.count(EventGuessResult) == 1 && f.h2.count(EventGuessResult) == 1
	})

	f.engine.Rejoin(id, "p1")
	waitFor(t, "rejoined", func() bool { return f.h1.count(EventGameRejoined) == 1 })

	p, _ := f.h1.last(EventGameRejoined)
	re := p.(RejoinedPayload)
	if re.GameID != id {
		t.Errorf("gameId = %s", re.GameID)
	}
	if len(re.Guesses) != 1 || re.Guesses[0].Word != misses[0] {
		t.Errorf("own guesses = %+v", re.Guesses)
	}
	if len(re.OpponentProgress) != 1 {
		t.Fatalf("opponent progress = %+v", re.OpponentProgress)
	}
	raw, _ := json.Marshal(re.OpponentProgress)
	if strings.Contains(string(raw), misses[1]) {
		t.Errorf("rejoin payload leaks opponent word: %s", raw)
	}
	if re.Opponent.Username != "bob" {
		t.Errorf("opponent = %+v", re.Opponent)
	}
}

func TestRejoinUnknownMatch(t *testing.T) {
	f := newFixture(t, time.Second)
	f.engine.Rejoin("missing", "p1")
	waitFor(t, "notfound", func() bool { return f.h1.count(EventGameNotFound) == 1 })
}

func TestBotMatchCreation(t *testing.T) {
	f := newFixture(t, time.Second)
	id, err := f.engine.CreateBotMatch(context.Background(),
		Participant{ID: "p1", DisplayName: "alice", Rating: 1350},
		game.DifficultyHard, 1400)
	if err != nil {
		t.Fatalf("CreateBotMatch: %v", err)
	}

	p, ok := f.h1.last(EventGameStart)
	if !ok {
		t.Fatal("no game:start")
	}
	start := p.(StartPayload)
	if !start.Opponent.IsBot || start.Opponent.Elo != 1400 {
		t.Errorf("opponent = %+v", start.Opponent)
	}

	m, err := f.store.GetMatch(context.Background(), id)
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	botSlot := m.BotSlot()
	if botSlot == nil || botSlot.SyntheticDifficulty != game.DifficultyHard || botSlot.RatingAtStart != 1400 {
		t.Errorf("bot slot = %+v", botSlot)
	}
	if m.Players["p1"].IsSynthetic {
		t.Error("human slot marked synthetic")
	}
}

func TestBotMatchSurvivesDisconnect(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)
	id, err := f.engine.CreateBotMatch(context.Background(),
		Participant{ID: "p1", DisplayName: "alice", Rating: 1000},
		game.DifficultyMedium, 1100)
	if err != nil {
		t.Fatalf("CreateBotMatch: %v", err)
	}

	f.sessions.Unregister(f.h1)
	f.engine.PlayerDisconnected("p1")
	time.Sleep(150 * time.Millisecond)

	m, _ := f.store.GetMatch(context.Background(), id)
	if m.Status != game.StatusActive {
		t.Errorf("bot match status = %s, want active after disconnect", m.Status)
	}
}

func TestActiveMatchOf(t *testing.T) {
	f := newFixture(t, time.Second)
	id, target := f.startMatch(t)

	if got, ok := f.engine.ActiveMatchOf("p1"); !ok || got != id {
		t.Errorf("ActiveMatchOf = (%s, %v)", got, ok)
	}
	f.engine.SubmitGuess(id, "p1", target)
	waitFor(t, "game:end", func() bool { return f.h1.count(EventGameEnd) == 1 })
	waitFor(t, "index cleared", func() bool {
		_, ok := f.engine.ActiveMatchOf("p1")
		return !ok
	})
}
