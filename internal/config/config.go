package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"answer-server"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Redis Redis
	Game  Game
}

// Redis configures the optional presence directory backend. An empty Addr
// keeps the directory in-process.
type Redis struct {
	Addr     string `env:"REDIS_ADDR"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// Game groups gameplay defaults and server-enforced timing budgets.
type Game struct {
	MaxPlayers        int           `env:"ROOM_MAX_PLAYERS" envDefault:"20"`
	DefaultRounds     int           `env:"DEFAULT_ROUNDS" envDefault:"5"`
	DefaultRoundTime  int           `env:"DEFAULT_SECONDS_PER_ROUND" envDefault:"15"`
	DefaultDifficulty string        `env:"DEFAULT_DIFFICULTY" envDefault:"normal"`
	StartCountdown    time.Duration `env:"START_COUNTDOWN" envDefault:"3200ms"`
	ResultsDelay      time.Duration `env:"RESULTS_DELAY" envDefault:"5s"`
	DisconnectGrace   time.Duration `env:"DISCONNECT_GRACE" envDefault:"40s"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
