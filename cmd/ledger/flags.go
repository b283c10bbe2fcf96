package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
)

type Config struct {
	Address            string        `env:"RUN_ADDRESS" envDefault:"localhost:8080"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"INFO"`
	DatabaseConnection string        `env:"DATABASE_URI"`
	JWTSecret          string        `env:"JWT_SECRET" envDefault:"dontexposethis"`
	JWTTTL             time.Duration `env:"JWT_TTL" envDefault:"24h"`
	HashKey            string        `env:"HASH_KEY"`
	SalaryWorkers      int           `env:"SALARY_WORKERS" envDefault:"4"`
	RejectedRetention  time.Duration `env:"REJECTED_RETENTION" envDefault:"720h"`
}

func NewConfig() (*Config, error) {
	// Missing .env is fine, real env vars still apply.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("ENV JWT_SECRET must be set")
	}

	address := flag.String("a", cfg.Address, "{Host:port} for server")
	loglevel := flag.String("l", cfg.LogLevel, "Log level for server")
	databaseConnection := flag.String("d", cfg.DatabaseConnection, "Database connection string")
	jwtTTL := flag.Duration("t", cfg.JWTTTL, "TTL for JWT token(e.g. 24h; 30m )")
	hashKey := flag.String("k", cfg.HashKey, "Key for request body signing")
	salaryWorkers := flag.Int("w", cfg.SalaryWorkers, "Size of salary payout worker pool")
	rejectedRetention := flag.Duration("r", cfg.RejectedRetention, "How long rejected withdrawal requests are kept")

	flag.Parse()

	cfg.Address = *address
	cfg.LogLevel = *loglevel
	cfg.DatabaseConnection = *databaseConnection
	cfg.JWTTTL = *jwtTTL
	cfg.HashKey = *hashKey
	cfg.SalaryWorkers = *salaryWorkers
	cfg.RejectedRetention = *rejectedRetention

	return cfg, nil
}
