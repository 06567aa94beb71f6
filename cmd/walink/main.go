package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foxzi/walink/internal/config"
	"github.com/foxzi/walink/internal/db"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const defaultConfigFile = "/etc/walink/walink.yaml"

var configFile string

var rootCmd = &cobra.Command{
	Use:   "walink",
	Short: "Walink - WhatsApp agent link rotator",
	Long: `Walink publishes one public link per group of WhatsApp agents and
routes every click to the next agent by round-robin, random or weighted
rotation, recording each click for analytics.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "walink %s (built %s)\n", version, buildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", defaultConfigFile, "Path to configuration file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(analyticsCmd)
	rootCmd.AddCommand(ratelimitCmd)
	rootCmd.AddCommand(tlsCmd)
}

// openDatabase loads the configuration and opens the migrated database
func openDatabase() (*config.Config, *db.DB, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, nil, err
	}
	return cfg, database, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
