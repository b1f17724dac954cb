package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/camden-git/attendancesys/database"
	"github.com/camden-git/attendancesys/repository"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show today's summary and the most recent sightings",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var unknownCmd = &cobra.Command{
	Use:   "unknown",
	Short: "List recent unknown-person snapshots",
	Args:  cobra.NoArgs,
	RunE:  runUnknown,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(unknownCmd)

	statsCmd.Flags().Int("logs", 10, "Number of recent sightings to show")
	unknownCmd.Flags().Int("limit", 20, "Number of snapshots to list")
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	stats, err := database.GetStatistics(ctx, a.sqlDB, time.Now().Format("2006-01-02"))
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	fmt.Println(bold.Sprint("Today"))
	fmt.Printf("  Registered:   %d (%d face encodings)\n", stats.TotalPersons, a.faces.Count())
	fmt.Printf("  Present:      %s\n", color.New(color.FgGreen).Sprint(stats.PresentToday))
	fmt.Printf("  Sightings:    %d\n", stats.LogsToday)
	fmt.Printf("  Unknown:      %s\n", color.New(color.FgRed).Sprint(stats.UnknownToday))

	n := mustGetInt(cmd, "logs")
	if n <= 0 {
		return nil
	}
	logs, err := database.RecentLogs(ctx, a.sqlDB, n)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		return nil
	}
	fmt.Println()
	fmt.Println(bold.Sprint("Recent sightings"))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, l := range logs {
		fmt.Fprintf(w, "  %s %s\t%s\t%s\n", l.Date, l.Time, l.PersonID, l.Name)
	}
	return w.Flush()
}

func runUnknown(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rows, err := repository.NewUnknownFaceRepository(a.gdb).ListRecent(context.Background(), mustGetInt(cmd, "limit"))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No unknown faces recorded")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DETECTED\tSNAPSHOT")
	for _, u := range rows {
		fmt.Fprintf(w, "%s\t%s\n", time.Unix(u.DetectedAt, 0).Format("2006-01-02 15:04:05"), a.fullPath(u.SnapshotPath))
	}
	return w.Flush()
}
