package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/foxzi/walink/internal/models"
	"github.com/foxzi/walink/internal/repository"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Show click analytics",
	RunE:  runAnalytics,
}

var (
	analyticsDays   int
	analyticsGroup  string
	analyticsFormat string
)

func init() {
	analyticsCmd.Flags().IntVar(&analyticsDays, "days", repository.DefaultAnalyticsDays, "Window size in days")
	analyticsCmd.Flags().StringVar(&analyticsGroup, "group", "", "Group slug (default: all groups)")
	analyticsCmd.Flags().StringVar(&analyticsFormat, "format", "", "Output format: table or json (default: table on a terminal)")
}

func defaultFormat() string {
	if isatty.IsTerminal(os.Stdout.Fd()) {
		return "table"
	}
	return "json"
}

func runAnalytics(cmd *cobra.Command, args []string) error {
	format := analyticsFormat
	if format == "" {
		format = defaultFormat()
	}
	if format != "table" && format != "json" {
		return fmt.Errorf("invalid --format value: %s", format)
	}

	_, database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	q := models.AnalyticsQuery{Days: repository.ClampDays(analyticsDays)}
	if analyticsGroup != "" {
		g, err := repository.NewGroupRepository(database).GetBySlug(cmd.Context(), analyticsGroup)
		if err != nil {
			return fmt.Errorf("group %s: %w", analyticsGroup, err)
		}
		q.GroupID = g.ID
	}

	data, err := repository.NewClickRepository(database).GroupAnalytics(cmd.Context(), q)
	if err != nil {
		return err
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	return printAnalytics(cmd.OutOrStdout(), data)
}

func printAnalytics(out io.Writer, data *models.GroupAnalyticsData) error {
	fmt.Fprintf(out, "Clicks from %s to %s (%d days): %d\n\n",
		data.From.Format("2006-01-02"), data.To.Format("2006-01-02"), data.Days, data.TotalClicks)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "GROUP\tSLUG\tSTATUS\tSTRATEGY\tAGENTS\tCLICKS")
	fmt.Fprintln(w, "-----\t----\t------\t--------\t------\t------")
	for _, g := range data.Groups {
		status := "active"
		if !g.IsActive {
			status = "inactive"
		}
		strategy := string(g.Strategy)
		if strategy == "" {
			strategy = "(global)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n", g.Name, g.Slug, status, strategy, g.AgentCount, g.TotalClicks)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "AGENT\tCLICKS")
	fmt.Fprintln(w, "-----\t------")
	for _, a := range data.AgentDistribution {
		fmt.Fprintf(w, "%s\t%d\n", a.Name, a.Clicks)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "DATE\tCLICKS")
	fmt.Fprintln(w, "----\t------")
	for _, d := range data.DailyData {
		fmt.Fprintf(w, "%s\t%d\n", d.Date, d.Clicks)
	}

	return w.Flush()
}
