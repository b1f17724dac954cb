package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/camden-git/attendancesys/database"
	"github.com/camden-git/attendancesys/services"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show attendance for today or a date range",
	Long: `Show attendance records. Without --start and --end today's attendance is
printed; with them, an inclusive date-range report newest day first.

Examples:
  attendancesys report
  attendancesys report --start 2025-03-01 --end 2025-03-31
  attendancesys report --start 2025-03-01 --end 2025-03-31 --person E001 --export`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export today's attendance to CSV",
	Long: `Write today's attendance to a CSV file in the exports directory and
print its path. Use "report --export" for a date range.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(exportCmd)

	reportCmd.Flags().String("start", "", "First day (YYYY-MM-DD)")
	reportCmd.Flags().String("end", "", "Last day (YYYY-MM-DD)")
	reportCmd.Flags().String("person", "", "Limit to one person ID")
	reportCmd.Flags().Bool("export", false, "Also write the report to CSV")
}

func parseDay(flag, value string) error {
	if _, err := time.Parse("2006-01-02", value); err != nil {
		return fmt.Errorf("--%s must be YYYY-MM-DD, got %q", flag, value)
	}
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	start := mustGetString(cmd, "start")
	end := mustGetString(cmd, "end")
	personID := mustGetString(cmd, "person")
	export := mustGetBool(cmd, "export")

	ranged := start != "" || end != ""
	if ranged {
		if start == "" || end == "" {
			return errors.New("--start and --end must be given together")
		}
		if err := parseDay("start", start); err != nil {
			return err
		}
		if err := parseDay("end", end); err != nil {
			return err
		}
		if start > end {
			return errors.New("--start must not be after --end")
		}
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	exporter := services.NewExportService(a.sqlDB, a.store)
	var (
		rows []database.AttendanceRow
		path string
	)
	if ranged {
		filter := database.ReportFilter{Start: start, End: end, PersonID: personID}
		if rows, err = database.AttendanceReport(ctx, a.sqlDB, filter); err != nil {
			return err
		}
		if export {
			if path, err = exporter.ExportRange(ctx, filter); err != nil {
				return err
			}
		}
	} else {
		if rows, err = database.TodayAttendance(ctx, a.sqlDB, time.Now().Format("2006-01-02")); err != nil {
			return err
		}
		if export {
			if path, err = exporter.ExportToday(ctx); err != nil {
				return err
			}
		}
	}

	if err := printAttendance(rows); err != nil {
		return err
	}
	if path != "" {
		fmt.Printf("Exported to %s\n", a.fullPath(path))
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	path, err := services.NewExportService(a.sqlDB, a.store).ExportToday(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Exported to %s\n", a.fullPath(path))
	return nil
}

func printAttendance(rows []database.AttendanceRow) error {
	if len(rows) == 0 {
		fmt.Println("No attendance records")
		return nil
	}
	green := color.New(color.FgGreen)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tID\tNAME\tARRIVAL\tLEAVING\tDURATION\tSTATUS")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Date, r.PersonID, r.Name, dash(r.ArrivalTime), dash(r.LeavingTime),
			services.FormatDuration(r.ArrivalTime, r.LeavingTime), green.Sprint(r.Status))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d record(s)\n", len(rows))
	return nil
}

// fullPath resolves a stored asset for display, falling back to the relative path.
func (a *app) fullPath(rel string) string {
	if p, err := a.store.GetFullPath(rel); err == nil {
		return p
	}
	return rel
}
