// internal/gateway/gateway.go
//
// Realtime gateway: authenticated websocket handler wiring matchmaking and
// the match engine to connected clients.
//
// Each connection is authenticated at handshake via an opaque bearer token
// (query parameter or Authorization header). Unauthenticated connections are
// permitted but cannot start matchmaking or submit guesses. Inbound events
// are routed by type; outbound delivery goes through the session registry so
// every handle a player holds receives the event.

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/harshbaid-13/WordArena/internal/match"
	"github.com/harshbaid-13/WordArena/internal/matchmaking"
	"github.com/harshbaid-13/WordArena/internal/session"
)

// Client → server event names.
const (
	EventRegister          = "register"
	EventMatchmakingStart  = "matchmaking:start"
	EventMatchmakingCancel = "matchmaking:cancel"
	EventGameGuess         = "game:guess"
	EventGameForfeit       = "game:forfeit"
	EventGameRejoin        = "game:rejoin"
)

// Server → client matchmaking event names. Game events live in the match
// package.
const (
	EventSearching = "matchmaking:searching"
	EventCancelled = "matchmaking:cancelled"
	EventError     = "error"
)

// ErrCodeNotAuthenticated is surfaced when a guest tries a gated action.
const ErrCodeNotAuthenticated = "NOT_AUTHENTICATED"

// TokenVerifier resolves an opaque bearer token to a player identity.
type TokenVerifier func(token string) (id, username string, err error)

// UserLookup fetches the authoritative display name and rating for a player.
type UserLookup func(ctx context.Context, id string) (username string, elo int, err error)

// Gateway handles websocket connections.
type Gateway struct {
	sessions *session.Registry
	queue    *matchmaking.Queue
	engine   *match.Engine
	verify   TokenVerifier
	lookup   UserLookup
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// New constructs a Gateway.
func New(sessions *session.Registry, queue *matchmaking.Queue, engine *match.Engine,
	verify TokenVerifier, lookup UserLookup, log zerolog.Logger) *Gateway {
	return &Gateway{
		sessions: sessions,
		queue:    queue,
		engine:   engine,
		verify:   verify,
		lookup:   lookup,
		log:      log.With().Str("component", "gateway").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS upgrades the connection and runs the read loop.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn().Err(err).Msg("upgrade failed")
		return
	}

	c := &client{gw: g, conn: conn, send: make(chan Message, sendBuffer)}

	// Handshake authentication. Failure leaves the connection in guest mode.
	if token := bearerToken(r); token != "" {
		if id, username, err := g.verify(token); err == nil {
			c.mu.Lock()
			c.userID, c.username, c.authed = id, username, true
			c.mu.Unlock()
		} else {
			g.log.Debug().Err(err).Msg("handshake token rejected")
		}
	}

	go c.writePump()
	g.readPump(c)
}

// readPump reads frames until the socket drops, routing each by type.
func (g *Gateway) readPump(c *client) {
	defer func() {
		if playerID, remaining := g.sessions.Unregister(c); playerID != "" && remaining == 0 {
			g.queue.Cancel(playerID)
			g.engine.PlayerDisconnected(playerID)
			g.log.Debug().Str("player", playerID).Msg("last handle disconnected")
		}
		c.shutdown()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.Send(EventError, match.ErrorPayload{Message: "malformed message"})
			continue
		}
		g.route(c, msg)
	}
}

func (g *Gateway) route(c *client, msg Message) {
	switch msg.Type {
	case EventRegister:
		g.handleRegister(c)
	case EventMatchmakingStart:
		g.handleMatchmakingStart(c)
	case EventMatchmakingCancel:
		g.handleMatchmakingCancel(c)
	case EventGameGuess:
		g.handleGuess(c, msg.Data)
	case EventGameForfeit:
		g.handleForfeit(c, msg.Data)
	case EventGameRejoin:
		g.handleRejoin(c, msg.Data)
	default:
		c.Send(EventError, match.ErrorPayload{Message: "unknown event: " + msg.Type})
	}
}

// handleRegister binds the authenticated identity to this connection.
// The identity comes from the handshake token; the register payload's fields
// are advisory only.
func (g *Gateway) handleRegister(c *client) {
	id, _, _, authed, _ := c.identity()
	if !authed {
		c.Send(EventError, match.ErrorPayload{Message: ErrCodeNotAuthenticated})
		return
	}

	// Refresh the authoritative rating at bind time.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if username, elo, err := g.lookup(ctx, id); err == nil {
		c.mu.Lock()
		c.username, c.elo = username, elo
		c.mu.Unlock()
	} else {
		g.log.Warn().Err(err).Str("player", id).Msg("user lookup failed on register")
	}

	c.bind()
	g.sessions.Register(id, c)
	g.engine.PlayerReconnected(id)
	g.log.Debug().Str("player", id).Msg("registered")
}

func (g *Gateway) handleMatchmakingStart(c *client) {
	id, username, elo, _, bound := c.identity()
	if !bound {
		c.Send(EventError, match.ErrorPayload{Message: ErrCodeNotAuthenticated})
		return
	}
	if _, busy := g.engine.ActiveMatchOf(id); busy {
		c.Send(EventError, match.ErrorPayload{Message: "already in a match"})
		return
	}
	// Ack before enqueueing: an instant pairing emits game:start from
	// inside Enqueue.
	g.sessions.Send(id, EventSearching, struct{}{})
	g.queue.Enqueue(matchmaking.Entry{PlayerID: id, DisplayName: username, Rating: elo})
}

func (g *Gateway) handleMatchmakingCancel(c *client) {
	id, _, _, _, bound := c.identity()
	if !bound {
		c.Send(EventError, match.ErrorPayload{Message: ErrCodeNotAuthenticated})
		return
	}
	g.queue.Cancel(id)
	g.sessions.Send(id, EventCancelled, struct{}{})
}

type guessReq struct {
	GameID string `json:"gameId"`
	Guess  string `json:"guess"`
}
type gameRef struct {
	GameID string `json:"gameId"`
}

func (g *Gateway) handleGuess(c *client, data json.RawMessage) {
	id, _, _, _, bound := c.identity()
	if !bound {
		c.Send(EventError, match.ErrorPayload{Message: ErrCodeNotAuthenticated})
		return
	}
	var req guessReq
	if err := json.Unmarshal(data, &req); err != nil || req.GameID == "" {
		c.Send(EventError, match.ErrorPayload{Message: "malformed guess"})
		return
	}
	g.engine.SubmitGuess(req.GameID, id, req.Guess)
}

func (g *Gateway) handleForfeit(c *client, data json.RawMessage) {
	id, _, _, _, bound := c.identity()
	if !bound {
		c.Send(EventError, match.ErrorPayload{Message: ErrCodeNotAuthenticated})
		return
	}
	var req gameRef
	if err := json.Unmarshal(data, &req); err != nil || req.GameID == "" {
		c.Send(EventError, match.ErrorPayload{Message: "malformed forfeit"})
		return
	}
	g.engine.Forfeit(req.GameID, id)
}

func (g *Gateway) handleRejoin(c *client, data json.RawMessage) {
	id, _, _, authed, _ := c.identity()
	if !authed {
		c.Send(EventError, match.ErrorPayload{Message: ErrCodeNotAuthenticated})
		return
	}
	var req gameRef
	if err := json.Unmarshal(data, &req); err != nil || req.GameID == "" {
		c.Send(EventError, match.ErrorPayload{Message: "malformed rejoin"})
		return
	}
	// Rejoin implies (re)binding this handle to the identity.
	c.bind()
	g.sessions.Register(id, c)
	g.engine.PlayerReconnected(id)
	g.engine.Rejoin(req.GameID, id)
}

// bearerToken extracts the handshake token from the query string or the
// Authorization header.
func bearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	return ""
}
