package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/walink/internal/app"
	"github.com/foxzi/walink/internal/config"
	"github.com/foxzi/walink/internal/ratelimit"
)

var ratelimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Click rate limit commands",
}

var ratelimitShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show configured click limits",
	RunE:  runRatelimitShow,
}

var ratelimitStatsCmd = &cobra.Command{
	Use:   "stats <global|group|ip> [key]",
	Short: "Show persisted counters for a limit key (server must be stopped)",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runRatelimitStats,
}

func init() {
	ratelimitCmd.AddCommand(ratelimitShowCmd)
	ratelimitCmd.AddCommand(ratelimitStatsCmd)
}

func runRatelimitShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	return printLimits(cmd.OutOrStdout(), cfg.RateLimit)
}

func printLimits(out io.Writer, rl config.RateLimitConfig) error {
	fmt.Fprintln(out, "Click Rate Limiting")
	fmt.Fprintln(out, "===================")
	fmt.Fprintf(out, "Enabled: %v\n\n", rl.Enabled)

	if !rl.Enabled {
		fmt.Fprintln(out, "Rate limiting is disabled")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LEVEL\tCLICKS/HOUR\tCLICKS/DAY")
	fmt.Fprintln(w, "-----\t-----------\t----------")

	levels := []struct {
		name string
		v    *config.LimitValues
	}{
		{"Global", rl.Global},
		{"Per Group", rl.PerGroup},
		{"Per IP", rl.PerIP},
	}
	for _, l := range levels {
		if l.v == nil {
			fmt.Fprintf(w, "%s\t-\t-\n", l.name)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", l.name, limitString(l.v.ClicksPerHour), limitString(l.v.ClicksPerDay))
	}

	return w.Flush()
}

func limitString(n int) string {
	if n == 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", n)
}

func runRatelimitStats(cmd *cobra.Command, args []string) error {
	level := ratelimit.Level(args[0])
	switch level {
	case ratelimit.LevelGlobal, ratelimit.LevelGroup, ratelimit.LevelIP:
	default:
		return fmt.Errorf("invalid level %q (must be global, group or ip)", args[0])
	}

	key := ""
	if len(args) == 2 {
		key = args[1]
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	state, err := app.OpenState(cfg.Database.StatePath)
	if err != nil {
		return err
	}
	defer state.Close()

	limiter, err := ratelimit.NewLimiter(state, app.RateLimitConfig(cfg.RateLimit))
	if err != nil {
		return err
	}
	defer limiter.Stop()

	stats, err := limiter.GetStats(cmd.Context(), level, key)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Level:        %s\n", stats.Level)
	fmt.Fprintf(out, "Key:          %s\n", stats.Key)
	fmt.Fprintf(out, "Hourly Count: %d\n", stats.HourlyCount)
	fmt.Fprintf(out, "Daily Count:  %d\n", stats.DailyCount)
	if !stats.HourStart.IsZero() {
		fmt.Fprintf(out, "Hour Start:   %s\n", stats.HourStart.Format("2006-01-02 15:04"))
		fmt.Fprintf(out, "Day Start:    %s\n", stats.DayStart.Format("2006-01-02 15:04"))
	}
	return nil
}
