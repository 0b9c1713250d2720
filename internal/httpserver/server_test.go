package httpserver

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	schema := `
	CREATE TABLE users (
		id TEXT PRIMARY KEY, username TEXT NOT NULL UNIQUE, password_hash TEXT NOT NULL,
		created_at TEXT NOT NULL, elo INTEGER NOT NULL DEFAULT 1200,
		wins INTEGER NOT NULL DEFAULT 0, losses INTEGER NOT NULL DEFAULT 0,
		games_played INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE matches (
		id TEXT PRIMARY KEY, winner_id TEXT, loser_id TEXT,
		winner_elo_before INTEGER NOT NULL, winner_elo_after INTEGER NOT NULL,
		loser_elo_before INTEGER NOT NULL, loser_elo_after INTEGER NOT NULL,
		target_word TEXT NOT NULL, replay_log TEXT NOT NULL, duration_ms INTEGER NOT NULL,
		is_bot_match INTEGER NOT NULL DEFAULT 0, bot_difficulty TEXT, played_at TEXT NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return New(db)
}

func postJSON(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSignupLoginAndToken(t *testing.T) {
	s := testServer(t)

	rec := postJSON(t, s, "/auth/signup", map[string]string{"username": "alice", "password": "secret123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("signup status = %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Elo      int    `json:"elo"`
		Token    string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode signup: %v", err)
	}
	if created.Elo != 1200 {
		t.Errorf("new user elo = %d, want 1200", created.Elo)
	}
	if created.Token == "" {
		t.Fatal("signup should return a token")
	}

	// The token resolves back to the same identity.
	id, username, err := s.VerifyToken(created.Token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if id != created.ID || username != "alice" {
		t.Errorf("verified identity = (%s, %s)", id, username)
	}

	// Duplicate usernames are rejected.
	rec = postJSON(t, s, "/auth/signup", map[string]string{"username": "alice", "password": "secret123"})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate signup status = %d, want 409", rec.Code)
	}

	// Login with the right password works, wrong password fails.
	rec = postJSON(t, s, "/auth/login", map[string]string{"username": "alice", "password": "secret123"})
	if rec.Code != http.StatusOK {
		t.Errorf("login status = %d", rec.Code)
	}
	rec = postJSON(t, s, "/auth/login", map[string]string{"username": "alice", "password": "wrong-password"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad login status = %d, want 401", rec.Code)
	}
}

func TestSignupValidation(t *testing.T) {
	s := testServer(t)
	cases := []map[string]string{
		{"username": "ab", "password": "secret123"},       // too short
		{"username": "alice", "password": "short"},        // weak password
		{"username": "bad name!", "password": "secret12"}, // bad chars
	}
	for _, c := range cases {
		if rec := postJSON(t, s, "/auth/signup", c); rec.Code != http.StatusBadRequest {
			t.Errorf("signup %v status = %d, want 400", c, rec.Code)
		}
	}
}

func TestStatsRequiresAuth(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/stats/me", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestStatsWithBearer(t *testing.T) {
	s := testServer(t)
	rec := postJSON(t, s, "/auth/signup", map[string]string{"username": "alice", "password": "secret123"})
	var created struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	req := httptest.NewRequest(http.MethodGet, "/stats/me", nil)
	req.Header.Set("Authorization", "Bearer "+created.Token)
	rec2 := httptest.NewRecorder()
	s.Router().ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec2.Code, rec2.Body.String())
	}
	var stats struct {
		Elo         int `json:"elo"`
		GamesPlayed int `json:"gamesPlayed"`
	}
	if err := json.Unmarshal(rec2.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Elo != 1200 || stats.GamesPlayed != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestLeaderboard(t *testing.T) {
	s := testServer(t)
	for _, u := range []string{"alice", "bob", "carol"} {
		postJSON(t, s, "/auth/signup", map[string]string{"username": u, "password": "secret123"})
	}
	if _, err := s.db.Exec(`UPDATE users SET elo=1500 WHERE username='bob'`); err != nil {
		t.Fatalf("bump bob: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/leaderboard", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var rows []struct {
		Username string `json:"username"`
		Elo      int    `json:"elo"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode leaderboard: %v", err)
	}
	if len(rows) != 3 || rows[0].Username != "bob" || rows[0].Elo != 1500 {
		t.Errorf("leaderboard = %+v", rows)
	}
}
