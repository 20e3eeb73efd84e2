package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"duel/internal/config"
	"duel/internal/db"
	"duel/internal/handle/game"
	"duel/internal/session"
	"duel/internal/utils"
	"duel/internal/websocket"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	utils.InitLogger("duel", cfg.LogLevel)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	recorders, leaderboard := openRecorders(cfg)
	defer func() {
		if err := recorders.Close(); err != nil {
			log.Errorf("Error closing recorders: %v", err)
		}
	}()

	registry := session.NewRegistry()
	opts := []game.Option{game.WithRelayKinds(cfg.RelayKinds...)}
	if recorders.Len() > 0 {
		opts = append(opts, game.WithRecorder(recorders))
	}
	service := game.NewMatchmakingService(settingsFrom(cfg.Game), registry, opts...)

	wsOpts := websocket.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		JWTSecret:      cfg.JWTSecret,
		InputRate:      cfg.Game.InputRate,
		InputBurst:     cfg.Game.InputBurst,
	}
	if leaderboard != nil {
		wsOpts.Leaderboard = leaderboard
	}
	router := websocket.NewRouter(websocket.NewServer(registry, service, wsOpts))

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.WSHost, strconv.Itoa(cfg.WSPort)),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Server running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP shutdown: %v", err)
	}
	service.Shutdown()
}

func settingsFrom(g config.GameConfig) game.Settings {
	s := game.DefaultSettings()
	s.TickInterval = g.TickInterval
	s.RankedGrace = g.RankedGrace
	s.EarlyPairDelay = g.EarlyPairDelay
	s.ReelDuration = g.ReelDuration
	s.ProgressGain = g.ProgressGain
	s.ProgressDecay = g.ProgressDecay
	s.TapReward = g.TapReward
	s.TapPenalty = g.TapPenalty
	s.BotReelHitChance = g.BotReelHitChance
	s.BotStruggleAccuracy = g.BotStruggleAccuracy
	return s
}

// openRecorders connects every configured backend. A backend that cannot be
// reached is logged and skipped; the engine runs without it.
func openRecorders(cfg *config.ConfigStruct) (*db.MultiRecorder, *db.RedisLeaderboard) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var recorders []db.Recorder
	var leaderboard *db.RedisLeaderboard

	if cfg.MySQLEnabled() {
		if conn, err := db.OpenMySQL(ctx, cfg); err != nil {
			log.Errorf("MySQL disabled: %v", err)
		} else {
			rec := db.NewMySQLRecorder(conn)
			if err := rec.EnsureSchema(ctx); err != nil {
				log.Errorf("MySQL schema: %v", err)
			}
			recorders = append(recorders, rec)
		}
	}

	if cfg.MongoEnabled() {
		if database, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB); err != nil {
			log.Errorf("MongoDB disabled: %v", err)
		} else {
			recorders = append(recorders, db.NewMongoRecorder(database))
		}
	}

	if cfg.RedisEnabled() {
		if cli, err := db.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword); err != nil {
			log.Errorf("Redis disabled: %v", err)
		} else {
			leaderboard = db.NewRedisLeaderboard(cli)
			recorders = append(recorders, leaderboard)
		}
	}

	if cfg.NatsEnabled() {
		if pub, err := db.ConnectNats(cfg.NatsURL, cfg.NatsSubject); err != nil {
			log.Errorf("NATS disabled: %v", err)
		} else {
			recorders = append(recorders, pub)
		}
	}

	return db.NewMultiRecorder(recorders...), leaderboard
}
