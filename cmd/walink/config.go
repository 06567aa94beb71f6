package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxzi/walink/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Configuration is valid")
	fmt.Fprintf(out, "  Listen address: %s\n", cfg.Server.ListenAddr)
	fmt.Fprintf(out, "  Base URL: %s\n", cfg.Server.BaseURL)
	fmt.Fprintf(out, "  TLS: %v\n", cfg.HasTLS())
	fmt.Fprintf(out, "  Database path: %s\n", cfg.Database.Path)
	fmt.Fprintf(out, "  State path: %s\n", cfg.Database.StatePath)
	fmt.Fprintf(out, "  Default strategy: %s\n", cfg.Rotation.DefaultStrategy)
	fmt.Fprintf(out, "  Click retention: %d days\n", cfg.Analytics.RetentionDays)
	fmt.Fprintf(out, "  API key: %v\n", cfg.Auth.APIKey != "")
	fmt.Fprintf(out, "  Rate limiting: %v\n", cfg.RateLimit.Enabled)
	fmt.Fprintf(out, "  Metrics: %v\n", cfg.Metrics.Enabled)
	fmt.Fprintf(out, "  Click events: %v\n", cfg.Events.Enabled)

	return nil
}
