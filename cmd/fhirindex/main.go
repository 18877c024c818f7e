package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/fhirindex/internal/config"
	"github.com/ehr/fhirindex/internal/domain/resource"
	"github.com/ehr/fhirindex/internal/domain/searchindex"
	"github.com/ehr/fhirindex/internal/platform/cache"
	"github.com/ehr/fhirindex/internal/platform/db"
	"github.com/ehr/fhirindex/internal/platform/fhir"
	"github.com/ehr/fhirindex/internal/platform/graph"
	"github.com/ehr/fhirindex/internal/platform/metrics"
)

// errUnhealthy marks a run that finished but produced an index failing the
// params-per-resource check.
var errUnhealthy = errors.New("index unhealthy")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "fhirindex",
		Short:         "FHIR search parameter and reference indexer",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(reindexCmd())
	rootCmd.AddCommand(indexCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(migrateCmd())
	return rootCmd
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out})
	} else {
		logger = zerolog.New(out)
	}
	return logger.Level(cfg.Level()).With().Timestamp().Logger()
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	return db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		Schema:          cfg.DBSchema,
		ApplicationName: "fhirindex",
	})
}

// app is the wired index service and the resources it holds open.
type app struct {
	svc     *searchindex.Service
	src     resource.Source
	metrics *metrics.Metrics
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp wires the Postgres index over the stored resources, with the
// optional Redis resolution cache and Neo4j mirror. ndjson, when set,
// replaces the resource table as the reindex source.
func buildApp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, ndjson string, logger zerolog.Logger) (*app, error) {
	a := &app{}
	pgSource := resource.NewPGSource(pool)
	a.src = pgSource
	if ndjson != "" {
		a.src = resource.NewNDJSONSource(ndjson)
	}

	var index fhir.ResourceIndex = resource.NewLiveIndex(pgSource)
	if cfg.RedisURL != "" {
		rdb, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		index = cache.NewRedisIndex(rdb, index, cfg.RedisCacheTTL, logger)
		logger.Info().Dur("ttl", cfg.RedisCacheTTL).Msg("redis resolution cache enabled")
	}

	opts := searchindex.Options{
		Index:                index,
		PersistDangling:      cfg.IndexDanglingRefs,
		MinParamsPerResource: cfg.IndexMinParamsPerResource,
	}

	if cfg.MetricsEnabled {
		a.metrics = metrics.New()
		opts.Recorder = searchindex.NewMetricsRecorder(a.metrics, cfg.IndexMinParamsPerResource)
	}

	if cfg.Neo4jURI != "" {
		mirror, err := graph.NewMirror(ctx, graph.Config{
			URI:      cfg.Neo4jURI,
			User:     cfg.Neo4jUser,
			Password: cfg.Neo4jPassword,
			Database: cfg.Neo4jDatabase,
		}, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = mirror.Close(context.Background()) })
		if err := mirror.EnsureSchema(ctx); err != nil {
			logger.Warn().Err(err).Msg("neo4j constraint not created")
		}
		opts.Mirror = mirror
		logger.Info().Str("uri", cfg.Neo4jURI).Msg("neo4j reference mirror enabled")
	}

	a.svc = searchindex.NewService(searchindex.NewRepo(pool), fhir.DefaultRegistry(), opts, logger)
	return a, nil
}

func batchDefaults(cfg *config.Config) searchindex.BatchOptions {
	return searchindex.BatchOptions{
		Workers:        cfg.IndexWorkers,
		LiveResolution: cfg.IndexLiveResolution,
		SkipUnchanged:  cfg.IndexSkipUnchanged,
	}
}

func printJSON(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
