package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/e-kose/FT-PINPON-sub000/auth"
	"github.com/e-kose/FT-PINPON-sub000/configs"
	"github.com/e-kose/FT-PINPON-sub000/crypto"
	"github.com/e-kose/FT-PINPON-sub000/domain"
	"github.com/e-kose/FT-PINPON-sub000/game"
	"github.com/e-kose/FT-PINPON-sub000/logger"
	"github.com/e-kose/FT-PINPON-sub000/migrations"
	"github.com/e-kose/FT-PINPON-sub000/outcomes"
	"github.com/e-kose/FT-PINPON-sub000/storage"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// pingInterval stays under the socket's pong deadline.
const pingInterval = 50 * time.Second

const readinessTimeout = 2 * time.Second

// ReadinessCheck is an outcome backend /ready has to reach.
type ReadinessCheck interface {
	Ping(ctx context.Context) error
}

func CreateServer(allowedOrigins []string, checks ...ReadinessCheck) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.SetTrustedProxies([]string{"127.0.0.1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"})
	r.GET("/health", func(ctx *gin.Context) { ctx.String(200, "healthy") })
	r.GET("/ready", func(ctx *gin.Context) {
		pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), readinessTimeout)
		defer cancel()
		for _, check := range checks {
			if err := check.Ping(pingCtx); err != nil {
				log.Warn().Err(err).Msg("readiness check failed")
				ctx.String(http.StatusServiceUnavailable, "unavailable")
				return
			}
		}
		ctx.String(http.StatusOK, "ready")
	})

	r.Use(func(ctx *gin.Context) {
		origin := ctx.Request.Header.Get("Origin")

		if slices.Contains(allowedOrigins, origin) {
			ctx.Next()
			return
		}
		ctx.String(http.StatusForbidden, "forbidden origin")
		ctx.Abort()
	})

	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Authorization",
			"Upgrade",
			"Connection",
			"Sec-WebSocket-Key",
			"Sec-WebSocket-Version",
			"Sec-WebSocket-Extensions",
			"Sec-WebSocket-Protocol",
		},
	}))

	return r
}

// Engine is the game stack wired around a single hub.
type Engine struct {
	Gateway     *game.Gateway
	Coordinator *game.Coordinator
	Recorder    *game.Recorder
}

func NewEngine(cfg configs.GameConfig, sink domain.OutcomeSink) *Engine {
	settings := game.SettingsFromConfig(cfg)
	idGen := game.NewIdGen()
	tickerGen := game.NewTickerGen()
	clock := game.NewClock()

	hub := game.NewHub(logger.Component("hub"))
	registry := game.NewRegistry(settings, idGen, &tickerGen, hub, game.NewRandom(), logger.Component("registry"))
	matchmaking := game.NewMatchmaking(registry, clock, logger.Component("matchmaking"))
	recorder := game.NewRecorder(sink, 5*time.Second, logger.Component("recorder"))
	coordinator := game.NewCoordinator(registry, hub, recorder, idGen, clock, cfg.TournamentRetention, logger.Component("tournaments"))

	return &Engine{
		Gateway:     game.NewGateway(hub, registry, matchmaking, coordinator, recorder, logger.Component("gateway")),
		Coordinator: coordinator,
		Recorder:    recorder,
	}
}

// Routes mounts the game endpoints on r.
func Routes(r *gin.Engine, cfg configs.Config, engine *Engine, verifier auth.TokenVerifier, users game.UserGetter) {
	authHandler := auth.NewAuthHandler(verifier, logger.Component("auth"))
	gameHandler := game.NewGameHandler(engine.Gateway, users, cfg.Server.AllowedOrigins, cfg.Game.InputRate, cfg.Game.InputBurst, logger.Component("handler"))

	r.GET("/stats", func(ctx *gin.Context) { ctx.JSON(http.StatusOK, engine.Gateway.Stats()) })
	r.GET(cfg.Server.WebsocketPath, authHandler.RequireAuthMiddleware(cfg.Auth.TrollTime), gameHandler.ConnectHandler)
}

// usernameFromId stands in for the users table when no database is configured.
type usernameFromId struct{}

func (usernameFromId) GetUserById(_ context.Context, id string) (domain.User, error) {
	return domain.User{Id: id, Username: id}, nil
}

func serve(cfg configs.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sinks := []domain.OutcomeSink{outcomes.NewLogSink(logger.Component("outcomes"))}
	var checks []ReadinessCheck
	var users game.UserGetter = usernameFromId{}

	if cfg.Postgres.URL != "" {
		if err := migrations.Migrate(cfg.Postgres.URL); err != nil {
			return err
		}
		pgRepo, err := storage.NewPostgresRepo(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pgRepo.Close()
		sinks = append(sinks, pgRepo)
		checks = append(checks, pgRepo)
		users = pgRepo
	} else {
		log.Warn().Msg("POSTGRES_URL not set, outcomes are only logged")
	}

	if cfg.Redis.URL != "" {
		publisher, err := outcomes.NewRedisPublisher(cfg.Redis.URL, cfg.Redis.Channel)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
		checks = append(checks, publisher)
	}

	engine := NewEngine(cfg.Game, outcomes.NewFanout(sinks...))

	janitor, err := game.NewJanitor(engine.Coordinator, game.NewClock(), cfg.Game.JanitorInterval, logger.Component("janitor"))
	if err != nil {
		return err
	}
	janitor.Start()
	defer janitor.Stop()

	pingTicker := game.NewTickerGen()
	go engine.Gateway.PingLoop(ctx, &pingTicker, pingInterval)

	r := CreateServer(cfg.Server.AllowedOrigins, checks...)
	Routes(r, cfg, engine, crypto.NewJWTManager(cfg.Auth.JWTKey, cfg.Auth.TokenAge), users)

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: r}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()
	log.Info().Str("addr", cfg.Server.Addr).Msg("server started")

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("SIGTERM or SIGINT received, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := engine.Gateway.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("game shutdown")
	}
	log.Info().Msg("shut down")
	return nil
}

func main() {
	Execute()
}
