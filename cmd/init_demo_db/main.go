package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"napolihr/bootstrap"
	"napolihr/config"
	"napolihr/db"
	"napolihr/logging"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	defaultDBPath       = "napoli_hr.db"
	defaultProbeTimeout = 5 * time.Second
)

func main() {
	var dbPath string
	var reset bool

	rootCmd := &cobra.Command{
		Use:   "init_demo_db",
		Short: "Create a local SQLite Napoli HR database with the default seed data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return initDemoDB(cmd.Context(), dbPath, reset)
		},
		SilenceUsage: true,
	}
	rootCmd.Flags().StringVar(&dbPath, "db", defaultDBPath, "Path to SQLite database file")
	rootCmd.Flags().BoolVar(&reset, "reset", true, "Drop existing tables before seeding")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initDemoDB(ctx context.Context, dbPath string, reset bool) error {
	log, err := logging.New(config.FormatConsole, "info")
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cfg := config.DBConfig{Driver: config.DriverSQLite, DSN: dbPath}
	gdb, err := db.Open(cfg, log, "info")
	if err != nil {
		return err
	}
	if sqlDB, err := gdb.DB(); err == nil {
		defer func() { _ = sqlDB.Close() }()
	}

	store := db.NewSQLStore(gdb)
	opts := bootstrap.Options{
		RunID:              uuid.NewString(),
		ResetSchema:        reset,
		OrganizationPolicy: config.OrganizationEnsure,
		ProbeTimeout:       defaultProbeTimeout,
		Password:           "password123",
		BcryptCost:         4,
	}
	report, err := bootstrap.New(store, bootstrap.NoopWaiter{}, opts, log.With(zap.String("run_id", opts.RunID)), nil).Run(ctx)
	if err != nil {
		return err
	}
	report.Summary(log)

	users, err := store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tNAME\tROLES\tACTIVE")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", u.Email, u.Name, strings.Join(u.RoleNames(), ","), u.IsActive)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	log.Info("demo database initialized", zap.String("path", dbPath))
	return nil
}
