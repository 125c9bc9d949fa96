package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the server reads from the environment. RedisAddr
// may be empty, in which case the hub runs single-node without pub/sub
// fan-out.
type Config struct {
	Addr      string `env:"ADDR" envDefault:":8080"`
	DSN       string `env:"DB_DSN,required"`
	JWTSecret string `env:"JWT_SECRET,required"`
	RedisAddr string `env:"REDIS_ADDR"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
