package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/ehr/fhirindex/internal/platform/db"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	DBSchema    string `mapstructure:"DB_SCHEMA"`

	IndexWorkers              int     `mapstructure:"INDEX_WORKERS"`
	IndexMinParamsPerResource float64 `mapstructure:"INDEX_MIN_PARAMS_PER_RESOURCE"`
	IndexDanglingRefs         bool    `mapstructure:"INDEX_DANGLING_REFS"`
	IndexLiveResolution       bool    `mapstructure:"INDEX_LIVE_RESOLUTION"`
	IndexSkipUnchanged        bool    `mapstructure:"INDEX_SKIP_UNCHANGED"`
	IndexNDJSONPath           string  `mapstructure:"INDEX_NDJSON_PATH"`

	RedisURL      string        `mapstructure:"REDIS_URL"`
	RedisCacheTTL time.Duration `mapstructure:"REDIS_CACHE_TTL"`

	Neo4jURI      string `mapstructure:"NEO4J_URI"`
	Neo4jUser     string `mapstructure:"NEO4J_USER"`
	Neo4jPassword string `mapstructure:"NEO4J_PASSWORD"`
	Neo4jDatabase string `mapstructure:"NEO4J_DATABASE"`

	MetricsEnabled bool          `mapstructure:"METRICS_ENABLED"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_SCHEMA",
	"INDEX_WORKERS", "INDEX_MIN_PARAMS_PER_RESOURCE", "INDEX_DANGLING_REFS",
	"INDEX_LIVE_RESOLUTION", "INDEX_SKIP_UNCHANGED", "INDEX_NDJSON_PATH",
	"REDIS_URL", "REDIS_CACHE_TTL",
	"NEO4J_URI", "NEO4J_USER", "NEO4J_PASSWORD", "NEO4J_DATABASE",
	"METRICS_ENABLED", "BODY_LIMIT", "REQUEST_TIMEOUT",
}

// Load reads the environment and an optional .env file, applies defaults and
// validates the result. DATABASE_URL is checked by RequireDatabase so that
// file-only commands run without one.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_SCHEMA", "fhir_index")
	v.SetDefault("INDEX_WORKERS", 8)
	v.SetDefault("INDEX_MIN_PARAMS_PER_RESOURCE", 1.0)
	v.SetDefault("INDEX_DANGLING_REFS", true)
	v.SetDefault("REDIS_CACHE_TTL", "10m")
	v.SetDefault("NEO4J_USER", "neo4j")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("BODY_LIMIT", "2M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	for _, k := range keys {
		v.BindEnv(k)
	}

	// The .env file is optional.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks value ranges. It does not require any backing service.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be at least 1, got %d", c.DBMaxConns)
	}
	if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS (%d), got %d", c.DBMaxConns, c.DBMinConns)
	}
	if c.DBSchema != "" && !db.ValidSchema(c.DBSchema) {
		return fmt.Errorf("DB_SCHEMA %q is not a valid schema name", c.DBSchema)
	}
	if c.IndexWorkers < 1 || c.IndexWorkers > 256 {
		return fmt.Errorf("INDEX_WORKERS must be between 1 and 256, got %d", c.IndexWorkers)
	}
	if c.IndexMinParamsPerResource < 0 {
		return fmt.Errorf("INDEX_MIN_PARAMS_PER_RESOURCE must not be negative, got %v", c.IndexMinParamsPerResource)
	}
	if c.RedisURL != "" && c.RedisCacheTTL <= 0 {
		return fmt.Errorf("REDIS_CACHE_TTL must be positive when REDIS_URL is set")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	return nil
}

// RequireDatabase reports a missing DATABASE_URL for commands that need one.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// Level is the parsed LOG_LEVEL; Validate guarantees it parses.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
