package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/fhirindex/internal/config"
	"github.com/ehr/fhirindex/internal/domain/searchindex"
	"github.com/ehr/fhirindex/internal/platform/db"
	"github.com/ehr/fhirindex/internal/platform/fhir"
	"github.com/ehr/fhirindex/internal/platform/middleware"
	"github.com/ehr/fhirindex/migrations"
)

const version = "0.3.0"

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the index admin and query server",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")
			return runServer(migrate)
		},
	}
	cmd.Flags().Bool("migrate", false, "Apply pending migrations before serving")
	return cmd
}

func runServer(migrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

	if migrate {
		n, err := db.EnsureSchema(ctx, pool, cfg.DBSchema, migrations.Files)
		if err != nil {
			return err
		}
		logger.Info().Int("applied", n).Msg("migrations applied")
	}

	a, err := buildApp(ctx, cfg, pool, cfg.IndexNDJSONPath, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to wire index service")
		return err
	}
	defer a.Close()

	jobs := searchindex.NewJobManager(a.svc, a.src)
	e := newServer(cfg, a, jobs, logger)
	e.GET("/health/db", db.HealthHandler(pool, cfg.DBSchema))

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("registry", a.svc.Registry().Version()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	for _, job := range jobs.List() {
		if job.Status == searchindex.JobRunning {
			_ = jobs.Cancel(job.ID)
			logger.Info().Str("job_id", job.ID).Msg("reindex job cancelled")
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer builds the echo instance without binding a database, so the
// route table can be exercised against any repository.
func newServer(cfg *config.Config, a *app, jobs *searchindex.JobManager, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	if a.metrics != nil {
		e.Use(a.metrics.Middleware())
	}
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/metrics"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":   "ok",
			"version":  version,
			"registry": a.svc.Registry().Version(),
		})
	})
	if a.metrics != nil {
		e.GET("/metrics", a.metrics.Handler())
	}

	fhir.NewSearchParameterHandler(fhir.NewSearchParameterStore(a.svc.Registry())).RegisterRoutes(e.Group("/fhir"))

	h := searchindex.NewHandler(a.svc, jobs, a.src, batchDefaults(cfg))
	h.RegisterRoutes(e.Group("/admin"), e.Group("/index"))
	return e
}

