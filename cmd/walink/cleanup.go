package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/walink/internal/app"
	"github.com/foxzi/walink/internal/repository"
	"github.com/foxzi/walink/internal/retention"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete click events past the retention window",
	RunE:  runCleanup,
}

var (
	cleanupDays   int
	cleanupDryRun bool
)

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "Delete click events older than N days (default: analytics.retention_days)")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be deleted without actually deleting")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	days := cleanupDays
	if days == 0 {
		days = cfg.Analytics.RetentionDays
	}
	if days < 1 {
		return fmt.Errorf("--days must be positive, got %d", days)
	}

	cleaner := retention.NewCleaner(
		repository.NewClickRepository(database),
		repository.NewSessionRepository(database),
		app.RetentionConfig(cfg.Analytics),
		app.SetupLogger(cfg.Logging, os.Stderr),
	)

	res, err := cleaner.RunOnce(cmd.Context(), time.Duration(days)*24*time.Hour, cleanupDryRun)
	if err != nil {
		return fmt.Errorf("failed to cleanup click events: %w", err)
	}

	out := cmd.OutOrStdout()
	if res.DryRun {
		fmt.Fprintln(out, "Dry run mode - no data will be deleted")
		fmt.Fprintf(out, "Click events older than %d days: %d\n", days, res.Clicks)
		return nil
	}

	fmt.Fprintf(out, "Click events older than %d days deleted: %d\n", days, res.Clicks)
	fmt.Fprintf(out, "Expired sessions deleted: %d\n", res.Sessions)
	fmt.Fprintln(out, "\nCleanup completed")
	return nil
}
