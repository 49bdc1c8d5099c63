package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinic/frontdesk/internal/config"
	"github.com/clinic/frontdesk/internal/domain/scheduling"
	"github.com/clinic/frontdesk/internal/platform/db"
	"github.com/clinic/frontdesk/internal/platform/localstore"
	"github.com/clinic/frontdesk/migrations"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "frontdesk-server",
		Short:        "Clinic front desk slot scheduler",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(gridCmd())
	root.AddCommand(localstoreCmd())
	return root
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	logger := zerolog.New(out).Level(cfg.Level()).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).Level(cfg.Level()).With().Timestamp().Logger()
	}
	return logger
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the front desk API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cfg, newLogger(cfg, os.Stdout))
		},
	}
}

func openMigrator(ctx context.Context, cfg *config.Config) (*db.Migrator, func(), error) {
	if !cfg.UsePostgres() {
		return nil, nil, errors.New("DATABASE_URL is required for migrations")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	m, err := db.NewMigrator(pool, migrations.FS, cfg.DBSchema)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return m, pool.Close, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			m, closeFn, err := openMigrator(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Running migrations on schema: %s\n", cfg.DBSchema)
			count, err := m.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(out, "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			m, closeFn, err := openMigrator(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := m.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), cfg.DBSchema, statuses)
			return nil
		},
	})

	return cmd
}

func printMigrationStatus(out io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(out, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func gridCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grid",
		Short: "Print the daily slot grid",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			gc, err := cfg.GridConfig()
			if err != nil {
				return err
			}
			grid, err := scheduling.NewGrid(gc)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range grid.Slots() {
				fmt.Fprintf(out, "%3d  %s\n", s.Index, s.Label)
			}
			fmt.Fprintf(out, "%d slots of %d minutes\n", grid.Len(), gc.SlotMinutes)
			return nil
		},
	}
}

func openLocalStore(cmd *cobra.Command) (*localstore.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return localstore.Open(cfg.LocalStoreDir, newLogger(cfg, cmd.ErrOrStderr()))
}

func localstoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "localstore",
		Short: "Inspect or clear the local fallback store",
	}

	usage := &cobra.Command{
		Use:   "usage",
		Short: "Report the space used by each local document",
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := openLocalStore(cmd)
			if err != nil {
				return err
			}
			u, err := docs.Usage()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(u)
			}
			for _, d := range u.Breakdown {
				fmt.Fprintf(out, "%-50s %s\n", d.Name, d.SizeFormatted)
			}
			fmt.Fprintf(out, "%-50s %s\n", "total", u.TotalFormatted)
			return nil
		},
	}
	usage.Flags().Bool("json", false, "Print the report as JSON")
	cmd.AddCommand(usage)

	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete every local schedule and patient document",
		RunE: func(cmd *cobra.Command, args []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return errors.New("refusing to delete local data without --yes")
			}
			docs, err := openLocalStore(cmd)
			if err != nil {
				return err
			}
			n, err := docs.Purge("")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d document(s).\n", n)
			return nil
		},
	}
	purge.Flags().Bool("yes", false, "Confirm deletion of all local data")
	cmd.AddCommand(purge)

	return cmd
}
