// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cliparse

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

type Config struct {
	Port         int           `env:"PORT" env-default:"3318"`
	DatabaseURL  string        `env:"DATABASE_URL"`
	DatabaseType string        `env:"DATABASE_TYPE" env-default:"sqlite"`
	JWTSecret    string        `env:"JWT_SECRET"`
	TokenTTL     time.Duration `env:"TOKEN_TTL" env-default:"5h"`
	Env          string        `env:"ENV" env-default:"local"`

	// LiveBreakdown adds per-option counts to answer-update events.
	LiveBreakdown bool `env:"LIVE_BREAKDOWN" env-default:"false"`
	CloseRetries  int  `env:"CLOSE_RETRIES" env-default:"3"`

	CORSOrigin string `env:"CORS_ORIGIN" env-default:"*"`
}

// ParseFlags builds the config from the environment and lets command-line
// flags override it.
func ParseFlags(args []string) (Config, error) {
	var flags Config

	fs := flag.NewFlagSet("livepoll", flag.ContinueOnError)

	// Network config (can be CLI args or env)
	fs.IntVar(&flags.Port, "p", 0, "Server port")
	fs.StringVar(&flags.DatabaseURL, "d", "", "Database URL")
	fs.StringVar(&flags.DatabaseType, "t", "", "Database type (sqlite or postgres)")
	fs.StringVar(&flags.Env, "env", "", "Environment (local, dev, prod)")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&flags.JWTSecret, "jwt-secret", "", "Token signing secret (prefer env)")

	fs.BoolVar(&flags.LiveBreakdown, "live-breakdown", false, "Include per-option counts in answer updates")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read environment: %w", err)
	}

	// Flags win over the environment, but only when given.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "p":
			cfg.Port = flags.Port
		case "d":
			cfg.DatabaseURL = flags.DatabaseURL
		case "t":
			cfg.DatabaseType = flags.DatabaseType
		case "env":
			cfg.Env = flags.Env
		case "jwt-secret":
			cfg.JWTSecret = flags.JWTSecret
		case "live-breakdown":
			cfg.LiveBreakdown = flags.LiveBreakdown
		}
	})

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("database URL required (use -d or DATABASE_URL env)")
	}

	// Secrets - MUST be provided
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET required")
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.TokenTTL <= 0 {
		return Config{}, errors.New("TOKEN_TTL must be positive")
	}
	if cfg.CloseRetries < 0 {
		return Config{}, errors.New("CLOSE_RETRIES must not be negative")
	}

	return cfg, nil
}
