// Package config reads the loader's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds everything a run needs.
type Config struct {
	Neo4j Neo4jConfig

	MetaFile    string `env:"BOOKGRAPH_META_FILE" envDefault:"meta_Books_1k.json.gz"`
	ReviewsFile string `env:"BOOKGRAPH_REVIEWS_FILE" envDefault:"Books_5_1k.json.gz"`

	// LogMode is "prod" for JSON logs, anything else for development output.
	LogMode       string `env:"LOG_MODE" envDefault:"dev"`
	ProgressEvery int    `env:"PROGRESS_EVERY" envDefault:"100"`
}

// Neo4jConfig holds connection settings. The password is only checked by
// Validate, so runs that never connect do not need one.
type Neo4jConfig struct {
	URI         string        `env:"NEO4J_URI" envDefault:"neo4j://localhost:7687"`
	User        string        `env:"NEO4J_USER" envDefault:"neo4j"`
	Password    string        `env:"NEO4J_PWD"`
	Database    string        `env:"NEO4J_DATABASE" envDefault:"neo4j"`
	Timeout     time.Duration `env:"NEO4J_TIMEOUT" envDefault:"10s"`
	MaxPoolSize int           `env:"NEO4J_MAX_POOL_SIZE" envDefault:"0"`
}

// Load reads dotenv (when present, never overriding variables already set)
// and parses the environment.
func Load(dotenv ...string) (*Config, error) {
	if err := godotenv.Load(dotenv...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}
	return Parse()
}

// Parse reads the configuration from the process environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.ProgressEvery < 1 {
		return nil, fmt.Errorf("PROGRESS_EVERY must be positive, got %d", cfg.ProgressEvery)
	}
	return cfg, nil
}

// Validate reports settings that make a connection impossible.
func (c Neo4jConfig) Validate() error {
	if c.Password == "" {
		return errors.New("NEO4J_PWD is not set")
	}
	if c.URI == "" {
		return errors.New("NEO4J_URI is empty")
	}
	return nil
}
