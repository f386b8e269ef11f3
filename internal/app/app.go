package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/abeloskyyy/answer/internal/config"
	"github.com/abeloskyyy/answer/internal/logging"
	"github.com/abeloskyyy/answer/internal/metrics"
	"github.com/abeloskyyy/answer/internal/mode"
	"github.com/abeloskyyy/answer/internal/presence"
	"github.com/abeloskyyy/answer/internal/room"
	"github.com/abeloskyyy/answer/internal/server"
	ws "github.com/abeloskyyy/answer/pkg/http/ws"
)

// Application aggregates shared infrastructure (cache, HTTP server, hub).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	redis *redis.Client
	http  *http.Server
}

// New bootstraps config, logger, optional Redis and the HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env)
	logger.Info().Msg("starting application bootstrap")

	var redisClient *redis.Client
	var directory presence.Directory
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		directory = presence.NewRedisDirectory(redisClient, logger)
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("presence directory backed by redis")
	} else {
		directory = presence.NewMemoryDirectory()
		logger.Info().Msg("presence directory kept in-process")
	}

	m := metrics.New(nil)
	wsHub := ws.NewHub(logger)
	modes := mode.NewRegistry()
	rooms := room.NewRegistry(logger)

	roomSvc := room.NewService(rooms, modes, wsHub, m, room.Config{
		MaxPlayers:        cfg.Game.MaxPlayers,
		DefaultRounds:     cfg.Game.DefaultRounds,
		DefaultRoundTime:  cfg.Game.DefaultRoundTime,
		DefaultDifficulty: cfg.Game.DefaultDifficulty,
		StartCountdown:    cfg.Game.StartCountdown,
		ResultsDelay:      cfg.Game.ResultsDelay,
		DisconnectGrace:   cfg.Game.DisconnectGrace,
	}, logger)

	relay := presence.NewRelay(directory, wsHub, presence.LogNotifier{Logger: logger}, m, logger)
	roomHandler := room.NewHandler(roomSvc, wsHub, directory, relay, logger)

	apiServer := server.NewHTTPServer(cfg, logger, roomHandler.HandleWebSocket)

	return &Application{
		cfg:    cfg,
		logger: logger,
		redis:  redisClient,
		http:   apiServer,
	}, nil
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error().Err(err).Msg("redis shutdown error")
		}
	}

	a.logger.Info().Msg("shutdown complete")
	return nil
}
