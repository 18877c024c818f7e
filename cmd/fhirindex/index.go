package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ehr/fhirindex/internal/config"
	"github.com/ehr/fhirindex/internal/domain/resource"
	"github.com/ehr/fhirindex/internal/domain/searchindex"
	"github.com/ehr/fhirindex/internal/platform/fhir"
)

func reindexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the index from every stored resource",
		Long: "Rebuild the index from the resource table, or from an NDJSON file or directory\n" +
			"with --ndjson. Exits non-zero when the params-per-resource check fails.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			ndjson, _ := cmd.Flags().GetString("ndjson")
			if ndjson == "" {
				ndjson = cfg.IndexNDJSONPath
			}
			a, err := buildApp(ctx, cfg, pool, ndjson, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := batchDefaults(cfg)
			if cmd.Flags().Changed("workers") {
				opts.Workers, _ = cmd.Flags().GetInt("workers")
			}
			if cmd.Flags().Changed("live") {
				opts.LiveResolution, _ = cmd.Flags().GetBool("live")
			}
			if cmd.Flags().Changed("skip-unchanged") {
				opts.SkipUnchanged, _ = cmd.Flags().GetBool("skip-unchanged")
			}

			result, err := a.svc.ReindexAll(ctx, a.src, opts)
			if result != nil {
				if perr := printJSON(cmd.OutOrStdout(), result); perr != nil {
					return perr
				}
			}
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
			if !result.Healthy(cfg.IndexMinParamsPerResource) {
				return errUnhealthy
			}
			return nil
		},
	}
	cmd.Flags().String("ndjson", "", "NDJSON file or directory to read resources from")
	cmd.Flags().Int("workers", 0, "Concurrent indexing workers (default INDEX_WORKERS)")
	cmd.Flags().Bool("live", false, "Resolve references against stored resources instead of the batch")
	cmd.Flags().Bool("skip-unchanged", false, "Skip resources whose content is already indexed")
	return cmd
}

func indexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index <file>",
		Short: "Index a single FHIR resource JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			a, err := buildApp(ctx, cfg, pool, "", logger)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.svc.IndexResource(ctx, raw, "")
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}

// checkReport is the output of a dry run.
type checkReport struct {
	Batch  *searchindex.BatchResult  `json:"batch"`
	Health *searchindex.HealthReport `json:"health"`
}

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <ndjson>",
		Short: "Index an NDJSON export in memory and report index health",
		Long: "Runs the full extraction pipeline over an NDJSON file or directory without a\n" +
			"database, then prints the batch result and health report. Exits non-zero when\n" +
			"the index would be unhealthy.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())
			workers, _ := cmd.Flags().GetInt("workers")
			if workers <= 0 {
				workers = cfg.IndexWorkers
			}

			svc := searchindex.NewService(searchindex.NewMemoryRepo(), fhir.DefaultRegistry(), searchindex.Options{
				PersistDangling:      cfg.IndexDanglingRefs,
				MinParamsPerResource: cfg.IndexMinParamsPerResource,
			}, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			report, err := runCheck(ctx, svc, resource.NewNDJSONSource(args[0]), workers)
			if report != nil {
				if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
					return perr
				}
			}
			if err != nil {
				return err
			}
			if !report.Health.Healthy || !report.Batch.Healthy(cfg.IndexMinParamsPerResource) {
				return errUnhealthy
			}
			return nil
		},
	}
	cmd.Flags().Int("workers", 0, "Concurrent indexing workers (default INDEX_WORKERS)")
	return cmd
}

func runCheck(ctx context.Context, svc *searchindex.Service, src resource.Source, workers int) (*checkReport, error) {
	result, err := svc.ReindexAll(ctx, src, searchindex.BatchOptions{Workers: workers})
	if err != nil {
		if result != nil {
			return &checkReport{Batch: result}, fmt.Errorf("check: %w", err)
		}
		return nil, fmt.Errorf("check: %w", err)
	}
	health, err := svc.Health(ctx)
	if err != nil {
		return nil, err
	}
	return &checkReport{Batch: result, Health: health}, nil
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report index health; exits non-zero when unhealthy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := searchindex.NewService(searchindex.NewRepo(pool), fhir.DefaultRegistry(), searchindex.Options{
				MinParamsPerResource: cfg.IndexMinParamsPerResource,
			}, logger)
			report, err := svc.Health(ctx)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.Healthy {
				return errUnhealthy
			}
			return nil
		},
	}
}
