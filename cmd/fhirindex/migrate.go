package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/ehr/fhirindex/internal/config"
	"github.com/ehr/fhirindex/internal/platform/db"
	"github.com/ehr/fhirindex/migrations"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the index schema",
	}
	cmd.PersistentFlags().String("schema", "", "Target schema (default DB_SCHEMA)")
	cmd.PersistentFlags().String("dir", "", "Read migrations from a directory instead of the built-in set")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Create the schema if needed and apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrations(cmd, func(ctx context.Context, pool *pgxpool.Pool, files fs.FS, schema string) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
				n, err := db.EnsureSchema(ctx, pool, schema, files)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", n)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrations(cmd, func(ctx context.Context, pool *pgxpool.Pool, files fs.FS, schema string) error {
				statuses, err := db.NewMigrator(pool, files).Status(ctx, schema)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Migration status for schema: %s\n", schema)
				fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				for _, s := range statuses {
					status, appliedAt := "pending", ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	})

	return cmd
}

func withMigrations(cmd *cobra.Command, fn func(context.Context, *pgxpool.Pool, fs.FS, string) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	schema, _ := cmd.Flags().GetString("schema")
	if schema == "" {
		schema = cfg.DBSchema
	}
	if !db.ValidSchema(schema) {
		return fmt.Errorf("invalid schema name: %q", schema)
	}

	var files fs.FS = migrations.Files
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		files = os.DirFS(dir)
	}

	ctx := context.Background()
	// No search_path pinning: the target schema may not exist yet.
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: "fhirindex-migrate",
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, pool, files, schema)
}
