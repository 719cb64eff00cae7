package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"napolihr/bootstrap"
	"napolihr/config"
	"napolihr/db"
	"napolihr/logging"
	"napolihr/metrics"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	exitOK          = 0
	exitSetupFailed = 1

	completionMarker = "DATABASE SETUP COMPLETE"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout))
}

// execute runs the command and returns the process exit code. Every outcome
// line, including config and logger failures, is written to out.
func execute(args []string, out io.Writer) int {
	var cfgFile string
	var logLevel string
	code := exitOK

	rootCmd := &cobra.Command{
		Use:   "bootstrap [flags] [-- server command...]",
		Short: "Wait for the database, reset its schema, seed it, then start the server",
		Long: `bootstrap prepares the Napoli HR database on every container start.
It waits for the database to accept connections, drops and recreates the
application tables and seeds the default company, roles and accounts.
When a server command follows "--" it replaces this process once setup
succeeds; a failed setup never starts the server.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, serverArgs []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				code = exitSetupFailed
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			code = run(cmd.Context(), cfg, serverArgs, out)
			return nil
		},
	}
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "path to config file (YAML)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(out, "❌ bootstrap: %v\n", err)
		if code == exitOK {
			code = exitSetupFailed
		}
	}
	return code
}

func run(ctx context.Context, cfg *config.Config, serverArgs []string, out io.Writer) int {
	log, err := logging.NewWithWriter(out, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(out, "❌ bootstrap: %v\n", err)
		return exitSetupFailed
	}
	defer func() { _ = log.Sync() }()

	runID := uuid.NewString()
	log = log.With(zap.String("run_id", runID), zap.String("environment", cfg.Environment))
	log.Info("starting database setup", cfg.LogFields()...)

	if cfg.DB.Driver == config.DriverSQLite && cfg.Bootstrap.ResetSchema && cfg.Bootstrap.MaxBackups > 0 {
		if _, err := db.Backup(cfg.DB.DSN, cfg.Bootstrap.BackupDir, cfg.Bootstrap.MaxBackups, log); err != nil {
			log.Error("database backup failed, refusing to reset schema", zap.Error(err))
			return exitSetupFailed
		}
	}

	gdb, err := db.Open(cfg.DB, log, cfg.Log.Level)
	if err != nil {
		log.Error("failed to prepare database connection", zap.Error(err))
		return exitSetupFailed
	}
	sqlDB, err := gdb.DB()
	if err == nil {
		defer func() { _ = sqlDB.Close() }()
	}

	var waiter bootstrap.Waiter = bootstrap.NoopWaiter{}
	if cfg.DB.Networked() {
		waiter = &bootstrap.TCPWaiter{
			Address:     cfg.DB.Address(),
			Interval:    cfg.Bootstrap.WaitInterval,
			Timeout:     cfg.Bootstrap.WaitTimeout,
			DialTimeout: cfg.Bootstrap.DialTimeout,
			Logger:      log,
		}
	}

	m := metrics.New()
	seq := bootstrap.New(db.NewSQLStore(gdb), waiter, bootstrap.OptionsFromConfig(cfg, runID), log, m)
	report, runErr := seq.Run(ctx)
	report.Summary(log)

	if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		log.Warn("failed to write metrics", zap.Error(err))
	}

	if runErr != nil {
		log.Error("database setup failed, server will not start", zap.String("state", string(report.State)))
		return report.State.ExitCode()
	}
	log.Info(completionMarker)

	if len(serverArgs) == 0 {
		return exitOK
	}
	if sqlDB != nil {
		_ = sqlDB.Close()
	}
	log.Info("starting server", zap.Strings("command", serverArgs))
	_ = log.Sync()
	if err := handoff(serverArgs); err != nil {
		log.Error("failed to start server", zap.Error(err))
		return exitSetupFailed
	}
	return exitOK
}
