package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/harshbaid-13/WordArena/internal/match"
	"github.com/harshbaid-13/WordArena/internal/matchmaking"
	"github.com/harshbaid-13/WordArena/internal/rating"
	"github.com/harshbaid-13/WordArena/internal/session"
	"github.com/harshbaid-13/WordArena/internal/store"
)

type fixture struct {
	gw       *Gateway
	sessions *session.Registry
	queue    *matchmaking.Queue
}

// newFixture wires a Gateway to real collaborators: an in-memory state
// store, an idle queue, and stubbed token verification. The queue's retry
// loop is never started; only synchronous paths run.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	sessions := session.NewRegistry()
	queue := matchmaking.New(matchmaking.DefaultConfig(), matchmaking.Hooks{}, zerolog.Nop())
	engine := match.NewEngine(store.NewMemoryStore(time.Minute), sessions,
		rating.NewService(db, zerolog.Nop()), time.Second, zerolog.Nop())
	t.Cleanup(engine.Shutdown)

	verify := func(token string) (string, string, error) {
		if token == "good" {
			return "p1", "alice", nil
		}
		return "", "", errors.New("bad token")
	}
	lookup := func(_ context.Context, id string) (string, int, error) {
		if id == "p1" {
			return "alice", 1234, nil
		}
		return "", 0, errors.New("unknown user")
	}

	return &fixture{
		gw:       New(sessions, queue, engine, verify, lookup, zerolog.Nop()),
		sessions: sessions,
		queue:    queue,
	}
}

// guest returns a connection that failed (or skipped) handshake auth.
func (f *fixture) guest() *client {
	return &client{gw: f.gw, send: make(chan Message, sendBuffer)}
}

// authed returns a connection whose handshake token resolved to p1/alice.
func (f *fixture) authed() *client {
	c := f.guest()
	c.userID, c.username, c.authed = "p1", "alice", true
	return c
}

func recv(t *testing.T, c *client, want string) Message {
	t.Helper()
	select {
	case msg := <-c.send:
		if msg.Type != want {
			t.Fatalf("event = %s, want %s (data: %s)", msg.Type, want, msg.Data)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", want)
	}
	return Message{}
}

func errorMessage(t *testing.T, msg Message) string {
	t.Helper()
	var p match.ErrorPayload
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return p.Message
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestGuestsAreGatedFromPlay(t *testing.T) {
	f := newFixture(t)
	c := f.guest()

	gated := []string{
		EventRegister,
		EventMatchmakingStart,
		EventMatchmakingCancel,
		EventGameGuess,
		EventGameForfeit,
		EventGameRejoin,
	}
	for _, event := range gated {
		f.gw.route(c, Message{Type: event})
		if got := errorMessage(t, recv(t, c, EventError)); got != ErrCodeNotAuthenticated {
			t.Errorf("%s: error = %q, want NOT_AUTHENTICATED", event, got)
		}
	}
	if f.queue.Len() != 0 {
		t.Error("guest should not reach the queue")
	}
}

func TestRegisterBindsIdentity(t *testing.T) {
	f := newFixture(t)
	c := f.authed()

	f.gw.route(c, Message{Type: EventRegister})
	if !f.sessions.IsConnected("p1") {
		t.Fatal("register should bind the handle to p1")
	}
	// The rating is refreshed from the authoritative lookup, not the client.
	if _, _, elo, _, bound := c.identity(); elo != 1234 || !bound {
		t.Errorf("identity after register = (elo=%d, bound=%v)", elo, bound)
	}
}

func TestMatchmakingStartAndCancel(t *testing.T) {
	f := newFixture(t)
	c := f.authed()
	f.gw.route(c, Message{Type: EventRegister})

	f.gw.route(c, Message{Type: EventMatchmakingStart})
	recv(t, c, EventSearching)
	if f.queue.Len() != 1 {
		t.Fatalf("queue len = %d, want 1", f.queue.Len())
	}

	f.gw.route(c, Message{Type: EventMatchmakingCancel})
	recv(t, c, EventCancelled)
	if f.queue.Len() != 0 {
		t.Errorf("queue len = %d after cancel, want 0", f.queue.Len())
	}
}

func TestGuessOnUnknownMatch(t *testing.T) {
	f := newFixture(t)
	c := f.authed()
	f.gw.route(c, Message{Type: EventRegister})

	f.gw.route(c, Message{Type: EventGameGuess, Data: raw(t, guessReq{GameID: "missing", Guess: "CRANE"})})
	recv(t, c, match.EventGameNotFound)
}

func TestMalformedPayloadsRejected(t *testing.T) {
	f := newFixture(t)
	c := f.authed()
	f.gw.route(c, Message{Type: EventRegister})

	cases := []Message{
		{Type: EventGameGuess, Data: json.RawMessage(`{"guess"`)},
		{Type: EventGameGuess, Data: raw(t, guessReq{Guess: "CRANE"})}, // no gameId
		{Type: EventGameForfeit, Data: json.RawMessage(`[]`)},
	}
	for _, msg := range cases {
		f.gw.route(c, msg)
		recv(t, c, EventError)
	}
}

func TestUnknownEventType(t *testing.T) {
	f := newFixture(t)
	c := f.guest()
	f.gw.route(c, Message{Type: "bogus"})
	if got := errorMessage(t, recv(t, c, EventError)); got != "unknown event: bogus" {
		t.Errorf("error = %q", got)
	}
}

func TestRejoinBindsAndReportsUnknownMatch(t *testing.T) {
	f := newFixture(t)
	c := f.authed()

	f.gw.route(c, Message{Type: EventGameRejoin, Data: raw(t, gameRef{GameID: "gone"})})
	recv(t, c, match.EventGameNotFound)
	// Rejoin implies binding this handle even when the match is gone.
	if !f.sessions.IsConnected("p1") {
		t.Error("rejoin should bind the handle to p1")
	}
}

func TestBearerTokenFromQuery(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=abc123", nil)
	if got := bearerToken(r); got != "abc123" {
		t.Errorf("token = %q, want abc123", got)
	}
}

func TestBearerTokenFromHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer xyz789")
	if got := bearerToken(r); got != "xyz789" {
		t.Errorf("token = %q, want xyz789", got)
	}

	r.Header.Set("Authorization", "bearer lower1")
	if got := bearerToken(r); got != "lower1" {
		t.Errorf("token = %q, want lower1", got)
	}
}

func TestBearerTokenAbsent(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	if got := bearerToken(r); got != "" {
		t.Errorf("token = %q, want empty", got)
	}
}

func TestQueryTokenWinsOverHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=fromquery", nil)
	r.Header.Set("Authorization", "Bearer fromheader")
	if got := bearerToken(r); got != "fromquery" {
		t.Errorf("token = %q, want fromquery", got)
	}
}
