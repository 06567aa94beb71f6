package main

import (
	"github.com/spf13/cobra"

	"github.com/foxzi/walink/internal/app"
	"github.com/foxzi/walink/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the link rotator",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	a, err := app.New(cmd.Context(), cfg, version)
	if err != nil {
		return err
	}

	return a.Run(cmd.Context())
}
