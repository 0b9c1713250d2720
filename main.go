package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/harshbaid-13/WordArena/internal/game"
	"github.com/harshbaid-13/WordArena/internal/gateway"
	"github.com/harshbaid-13/WordArena/internal/httpserver"
	"github.com/harshbaid-13/WordArena/internal/match"
	"github.com/harshbaid-13/WordArena/internal/matchmaking"
	"github.com/harshbaid-13/WordArena/internal/rating"
	"github.com/harshbaid-13/WordArena/internal/session"
	"github.com/harshbaid-13/WordArena/internal/store"
	"github.com/harshbaid-13/WordArena/internal/words"
)

func main() {
	_ = godotenv.Load()
	if lvl, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	if err := words.Init(); err != nil {
		log.Fatal().Err(err).Msg("failed to load word lists")
	}

	db, err := openDB(getEnv("PERSISTENT_STORE_URL", "./data/wordarena.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	if err := migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	matchTTL := envDur("MATCH_TTL_MS", store.DefaultMatchTTL)
	var st store.Store
	if url := os.Getenv("STATE_STORE_URL"); url != "" {
		st, err = store.NewRedisStore(url, matchTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("connect state store")
		}
		log.Info().Msg("using redis state store")
	} else {
		st = store.NewMemoryStore(matchTTL)
		log.Info().Msg("using in-memory state store")
	}

	sessions := session.NewRegistry()
	ratings := rating.NewService(db, log.Logger)
	engine := match.NewEngine(st, sessions, ratings, envDur("DISCONNECT_GRACE_MS", match.DefaultGraceWindow), log.Logger)

	queueCfg := matchmaking.Config{
		InitialBand: envInt("INITIAL_BAND", matchmaking.DefaultInitialBand),
		MaxBand:     envInt("MAX_BAND", matchmaking.DefaultMaxBand),
		WaitBudget:  envDur("MATCHMAKING_WAIT_BUDGET_MS", matchmaking.DefaultWaitBudget),
	}
	queue := matchmaking.New(queueCfg, matchmaking.Hooks{
		Live: sessions.IsConnected,
		OnPair: func(a, b matchmaking.Entry) {
			_, err := engine.CreateHumanMatch(context.Background(),
				match.Participant{ID: a.PlayerID, DisplayName: a.DisplayName, Rating: a.Rating},
				match.Participant{ID: b.PlayerID, DisplayName: b.DisplayName, Rating: b.Rating})
			if err != nil {
				log.Error().Err(err).Msg("create match from pairing")
				sessions.Send(a.PlayerID, match.EventError, match.ErrorPayload{Message: match.ErrCodeInternal})
				sessions.Send(b.PlayerID, match.EventError, match.ErrorPayload{Message: match.ErrCodeInternal})
			}
		},
		OnBotSpawn: func(e matchmaking.Entry, difficulty game.Difficulty, botRating int) {
			_, err := engine.CreateBotMatch(context.Background(),
				match.Participant{ID: e.PlayerID, DisplayName: e.DisplayName, Rating: e.Rating},
				difficulty, botRating)
			if err != nil {
				log.Error().Err(err).Msg("create bot match")
				sessions.Send(e.PlayerID, match.EventError, match.ErrorPayload{Message: match.ErrCodeInternal})
			}
		},
	}, log.Logger)
	queue.Start()
	defer queue.Stop()

	srv := httpserver.New(db)
	gw := gateway.New(sessions, queue, engine, srv.VerifyToken, srv.LookupUser, log.Logger)
	srv.MountWS(gw.HandleWS)

	port := getEnv("SERVER_PORT", "8080")
	log.Info().Str("port", port).Msg("starting wordarena server")
	if err := srv.Start(":" + port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// envDur reads a millisecond-valued env var as a duration.
func envDur(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Millisecond
		}
	}
	return def
}
